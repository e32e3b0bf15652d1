package server

import (
	"net/http"
	"os"
)

// defaultSwaggerSpecPath is where `go:generate swag init` would drop
// the generated OpenAPI document, mirroring the teacher's own
// docs/swagger/swagger.json layout.
const defaultSwaggerSpecPath = "docs/swagger/swagger.json"

// handleSwagger serves the static OpenAPI document describing the six
// book endpoints. Grounded on the teacher's
// internal/server/endpoints/swagger.go SwaggerEndpoint, which likewise
// reads a pre-generated file rather than building the spec at runtime.
func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(defaultSwaggerSpecPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "swagger.json not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read swagger.json")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// swaggerUIHTML embeds the CDN-hosted Swagger UI, pointed at /swagger.json.
const swaggerUIHTML = `<!DOCTYPE html>
<html>
<head>
  <title>distill API</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/swagger.json',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`

func (s *Server) handleSwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(swaggerUIHTML))
}
