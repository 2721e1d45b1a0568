package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Settings holds the generation target of a session. It is copied by value, so a snapshot taken when a
// request starts is unaffected by later edits.
type Settings struct {
	Endpoint string
	Model    string
}

const (
	// DefaultEndpoint is the generate endpoint of an Ollama server on the local machine.
	DefaultEndpoint = "http://localhost:11434/api/generate"
	// DefaultModel is the model requested when none is configured.
	DefaultModel = "qwen2.5-coder"
)

// ErrInvalidSettings is wrapped by every error returned from Settings.Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// DefaultSettings returns the settings used by a new session when nothing else is configured.
func DefaultSettings() Settings {
	return Settings{
		Endpoint: DefaultEndpoint,
		Model:    DefaultModel,
	}
}

// Validate checks that the endpoint is an absolute http or https URL and that a model is named.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidSettings)
	}

	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: endpoint: %w", ErrInvalidSettings, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: endpoint must use http or https, got %q", ErrInvalidSettings, s.Endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: endpoint host is required", ErrInvalidSettings)
	}

	return nil
}
