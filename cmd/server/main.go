package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MegaGrindStone/localchat"
	"github.com/MegaGrindStone/localchat/internal/handlers"
	"github.com/MegaGrindStone/localchat/internal/services"
	"github.com/alecthomas/kong"
	"github.com/rs/cors"
)

type cli struct {
	Config   string `help:"Path to the YAML config file. Defaults to localchat/config.yaml in the user config dir." env:"LOCALCHAT_CONFIG"`
	Port     string `help:"Port to listen on, overriding the config file." env:"LOCALCHAT_PORT"`
	LogLevel string `help:"Log level (debug, info, warn, error), overriding the config file." env:"LOCALCHAT_LOG_LEVEL"`
}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("localchat"),
		kong.Description("Browser chat UI for a locally hosted model."),
		kong.UsageOnError())

	cfgFilePath := c.Config
	if cfgFilePath == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
		}
		cfgFilePath = filepath.Join(cfgDir, "localchat", "config.yaml")
	}

	cfg, err := loadConfig(cfgFilePath)
	if err != nil {
		log.Fatal(err)
	}
	if c.Port != "" {
		cfg.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}

	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	logger := newLogger(level, os.Stderr)

	ollama := services.NewOllama(&http.Client{})

	m, err := handlers.NewMain(ollama, ollama, cfg.settings(), logger)
	if err != nil {
		logger.Error("Failed to create main handler", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// Serve static files
	staticFS, err := fs.Sub(localchat.StaticFS, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	// Create custom mux
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/replies", m.HandleReplies)
	mux.HandleFunc("/settings", m.HandleSettings)
	mux.HandleFunc("/models", m.HandleModels)
	mux.HandleFunc("/sse", m.HandleSSE)

	var handler http.Handler = mux
	if len(cfg.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
		}).Handler(mux)
	}

	// Create custom server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("endpoint", cfg.settings().Endpoint),
			slog.String("model", cfg.settings().Model))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", slog.String("err", err.Error()))
			os.Exit(1)
		}

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		// Create context with timeout for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Let in-flight replies reach their pages and close the event streams, which would otherwise
		// keep srv.Shutdown waiting.
		if err := m.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown main handler", slog.String("err", err.Error()))
		}

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
}
