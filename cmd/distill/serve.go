package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/avantbook/distill/internal/config"
	"github.com/avantbook/distill/internal/home"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/llmcall"
	"github.com/avantbook/distill/internal/orchestrator"
	"github.com/avantbook/distill/internal/server"
	"github.com/avantbook/distill/internal/store"
	"github.com/avantbook/distill/internal/store/defra"
	"github.com/avantbook/distill/internal/store/memstore"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the distill HTTP server",
	Long: `Start the book-distillation core's HTTP server.

The server provides six endpoints (upload, trigger, status polling,
final-output retrieval, delete, listing) over whichever document store
internal/config points it at: DefraDB when store.url is set, or an
in-process store otherwise.

Examples:
  distill serve                  # start on default port 8080
  distill serve --port 3000      # start on a custom port
  distill serve --host 0.0.0.0   # bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: GetLogLevel(),
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		configFile := cfgFile
		if configFile == "" {
			if _, statErr := os.Stat("config.yaml"); statErr == nil {
				configFile = "config.yaml"
			} else {
				configFile = h.ConfigPath()
			}
		}
		if _, statErr := os.Stat(configFile); os.IsNotExist(statErr) {
			logger.Info("creating default config", "path", configFile)
			if err := config.WriteDefault(configFile); err != nil {
				logger.Warn("failed to write default config", "error", err)
			}
		}

		cfgMgr, err := config.NewManager(configFile)
		if err != nil {
			logger.Warn("config not loaded, using defaults", "error", err)
			cfgMgr = nil
		} else {
			cfgMgr.WatchConfig()
			logger.Info("configuration loaded", "file", configFile)
		}

		cfg := config.DefaultConfig()
		if cfgMgr != nil {
			cfg = cfgMgr.Get()
		}

		var docStore store.Store
		if cfg.Store.URL != "" {
			client := defra.NewClient(cfg.Store.URL)
			if err := client.HealthCheck(ctx); err != nil {
				return err
			}
			docStore = client
			logger.Info("using defradb store", "url", cfg.Store.URL)
		} else {
			docStore = memstore.New()
			logger.Info("using in-process store (store.url not configured)")
		}

		sink := store.NewSink(store.SinkConfig{Store: docStore, Logger: logger})
		sink.Start(ctx)

		llmClient := llm.NewHTTPClient(llm.HTTPConfig{
			APIKey:       config.ResolveEnvVars(cfg.LLM.APIKey),
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Models.Extraction,
			RPS:          cfg.LLM.RateLimit,
			Logger:       logger,
		})

		recorder := llmcall.NewRecorder(sink)
		callStore := llmcall.NewStore(docStore)

		orch := orchestrator.New(orchestrator.Config{
			Store:    docStore,
			LLM:      llmClient,
			Recorder: recorder,
			Models:   cfg.LLM.Models,
			Logger:   logger,
		})

		srv, err := server.New(server.Config{
			Host:         serveHost,
			Port:         servePort,
			Store:        docStore,
			Sink:         sink,
			LLM:          llmClient,
			Models:       cfg.LLM.Models,
			Recorder:     recorder,
			LLMCallStore: callStore,
			Orchestrator: orch,
			Logger:       logger,
		})
		if err != nil {
			return err
		}

		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "port to listen on")
	rootCmd.AddCommand(serveCmd)
}
