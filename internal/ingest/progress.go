package ingest

import (
	"encoding/json"
	"fmt"
	"io"
)

// flusher is satisfied by http.Flusher without importing net/http here,
// keeping the Progress Channel (§2) transport-agnostic the way the rest
// of this package is.
type flusher interface{ Flush() }

// Emitter writes the SSE event stream §6 specifies for
// `POST /book/upload-stream`: a run of `{type:"progress",...}` events
// ending in exactly one `{type:"result",...}` or `{type:"error",...}`.
// Grounded on the SSE write-and-flush idiom in the kadirpekel-hector
// example's pkg/a2a/server.go sendSSEEvent, generalized from that
// package's named-event framing to the bare `data:` framing this
// system's UI consumes.
type Emitter struct {
	w io.Writer
	f flusher
}

// NewEmitter wraps w (and its optional flusher f, nil if w can't flush)
// as a Progress Channel sink.
func NewEmitter(w io.Writer, f flusher) *Emitter {
	return &Emitter{w: w, f: f}
}

// Progress emits one progress event. Safe to call repeatedly.
func (e *Emitter) Progress(step string, progress int, message string) {
	e.send(map[string]any{
		"type":     "progress",
		"step":     step,
		"progress": progress,
		"message":  message,
	})
}

// Result emits the single terminal success event.
func (e *Emitter) Result(data any) {
	e.send(map[string]any{
		"type":    "result",
		"success": true,
		"data":    data,
	})
}

// Error emits the single terminal failure event.
func (e *Emitter) Error(err error) {
	e.send(map[string]any{
		"type":  "error",
		"error": err.Error(),
	})
}

func (e *Emitter) send(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(e.w, "data: %s\n\n", payload)
	if e.f != nil {
		e.f.Flush()
	}
}
