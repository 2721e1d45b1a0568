package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MegaGrindStone/localchat/internal/models"
	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		want    config
		wantErr bool
	}{
		{
			name: "Missing file",
			want: config{Port: defaultPort, LogLevel: defaultLogLevel},
		},
		{
			name:    "Empty file",
			content: ptr(""),
			want:    config{Port: defaultPort, LogLevel: defaultLogLevel},
		},
		{
			name: "Full file",
			content: ptr(`port: "9090"
logLevel: debug
endpoint: http://gpu.lan:11434/api/generate
model: llama3
allowedOrigins:
  - http://localhost:3000
`),
			want: config{
				Port:           "9090",
				LogLevel:       "debug",
				Endpoint:       "http://gpu.lan:11434/api/generate",
				Model:          "llama3",
				AllowedOrigins: []string{"http://localhost:3000"},
			},
		},
		{
			name:    "Invalid YAML",
			content: ptr("port: [unclosed"),
			wantErr: true,
		},
		{
			name:    "Unknown log level",
			content: ptr("logLevel: verbose\n"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if tt.content != nil {
				if err := os.WriteFile(path, []byte(*tt.content), 0600); err != nil {
					t.Fatal(err)
				}
			}

			got, err := loadConfig(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("loadConfig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "info", want: slog.LevelInfo},
		{level: "warn", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "INFO", wantErr: true},
		{level: "verbose", wantErr: true},
		{level: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := parseLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigSettings(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config
		ollamaHost string
		want       models.Settings
	}{
		{
			name: "Defaults",
			want: models.DefaultSettings(),
		},
		{
			name: "Configured",
			cfg:  config{Endpoint: "http://gpu.lan:11434/api/generate", Model: "llama3"},
			want: models.Settings{Endpoint: "http://gpu.lan:11434/api/generate", Model: "llama3"},
		},
		{
			name:       "OLLAMA_HOST without scheme",
			ollamaHost: "0.0.0.0:11500",
			want:       models.Settings{Endpoint: "http://0.0.0.0:11500/api/generate", Model: models.DefaultModel},
		},
		{
			name:       "OLLAMA_HOST with scheme",
			ollamaHost: "https://ollama.lan/",
			want:       models.Settings{Endpoint: "https://ollama.lan/api/generate", Model: models.DefaultModel},
		},
		{
			name:       "Endpoint wins over OLLAMA_HOST",
			cfg:        config{Endpoint: "http://gpu.lan:11434/api/generate"},
			ollamaHost: "0.0.0.0:11500",
			want:       models.Settings{Endpoint: "http://gpu.lan:11434/api/generate", Model: models.DefaultModel},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OLLAMA_HOST", tt.ollamaHost)

			if diff := cmp.Diff(tt.want, tt.cfg.settings()); diff != "" {
				t.Errorf("settings() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func ptr(s string) *string {
	return &s
}
