package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"marginalia/internal/chat"
	"marginalia/internal/config"
	"marginalia/internal/handler"
	"marginalia/internal/hub"
	"marginalia/internal/repository/sqlite"
	"marginalia/internal/service"
	"marginalia/internal/userinfo"
)

var (
	flagAddr   string
	flagDB     string
	flagConfig string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "marginalia",
	Short: "PDF annotation persistence server",
	Long: `Marginalia stores PDF annotations and their comment threads per
(document, user) scope and serves them to the viewer over a REST API,
with live change events on /events.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the annotation server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&flagDB, "db", "", "SQLite database path (overrides config)")
	serveCmd.Flags().StringVar(&flagConfig, "config", "", "config file path")
	serveCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if flagConfig != "" {
		cfg, path, err = config.LoadFromPath(flagConfig)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if path != "" {
		log.Info().Str("path", path).Msg("config loaded")
	}

	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}
	if flagDB != "" {
		cfg.Database.Path = flagDB
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if flagDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer repo.Close()
	log.Info().Str("path", cfg.Database.Path).Msg("database opened")

	bus := service.NewEventBus()

	sseHub := hub.New()
	go sseHub.Run()

	// Relay service events to connected SSE clients.
	events := bus.Subscribe()
	go func() {
		for event := range events {
			sseHub.Broadcast(event)
		}
	}()

	svc := service.NewAnnotationService(repo, bus)
	annotations := handler.NewAnnotationHandler(svc)
	users := userinfo.NewClient(cfg.Auth.UserinfoURL)
	chatProxy := chat.New(chat.Config{
		BaseURL:      cfg.Chat.BaseURL,
		APIKey:       cfg.Chat.APIKey(),
		Model:        cfg.Chat.Model,
		SystemPrompt: cfg.Chat.SystemPrompt,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/annotations", annotations.List)
	mux.HandleFunc("POST /api/annotations", annotations.Save)
	mux.HandleFunc("PUT /api/annotations", annotations.Update)
	mux.HandleFunc("DELETE /api/annotations", annotations.Delete)
	mux.HandleFunc("PATCH /api/annotations", annotations.PatchComments)

	mux.HandleFunc("GET /api/userinfo", users.Handler())
	mux.HandleFunc("POST /api/chat", chatProxy.Handler())

	mux.Handle("GET /events", sseHub)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"clients": sseHub.ClientCount(),
		})
	})

	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE and chat responses stream indefinitely
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	log.Info().Msg("server stopped")
	return nil
}
