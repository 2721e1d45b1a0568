package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MegaGrindStone/localchat/internal/models"
	"gopkg.in/yaml.v3"
)

type config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// Endpoint and Model are the settings every new page session starts with.
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`

	// AllowedOrigins enables CORS for the listed origins. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

const (
	defaultPort     = "8080"
	defaultLogLevel = "info"
)

// loadConfig reads the YAML config file at path. A missing file is not an error: every field has a default.
func loadConfig(path string) (config, error) {
	cfg := config{}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return config{}, fmt.Errorf("error in config file: %w", err)
	}
	return cfg, nil
}

// settings returns the default session settings. Without a configured endpoint, the generate endpoint of
// OLLAMA_HOST is used, falling back to the local Ollama default.
func (c config) settings() models.Settings {
	s := models.DefaultSettings()

	switch {
	case c.Endpoint != "":
		s.Endpoint = c.Endpoint
	case os.Getenv("OLLAMA_HOST") != "":
		s.Endpoint = ollamaHostEndpoint(os.Getenv("OLLAMA_HOST"))
	}

	if c.Model != "" {
		s.Model = c.Model
	}
	return s
}

// ollamaHostEndpoint accepts OLLAMA_HOST in any of the forms Ollama itself does, with or without a scheme.
func ollamaHostEndpoint(host string) string {
	host = strings.TrimRight(host, "/")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host + "/api/generate"
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q, want one of debug, info, warn, error", level)
}

func newLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
