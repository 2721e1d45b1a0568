package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MegaGrindStone/localchat/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama sends generation requests to an Ollama compatible endpoint and lists the models installed on the
// server behind it. The endpoint and model are taken from the settings passed to each call, so a single
// Ollama value serves every session.
type Ollama struct {
	client *http.Client
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d", e.StatusCode)
}

const generatePath = "/api/generate"

// NewOllama creates a new Ollama instance. A nil client is replaced with an http.Client without timeout,
// since generation on a local machine may take arbitrarily long.
func NewOllama(client *http.Client) Ollama {
	if client == nil {
		client = &http.Client{}
	}
	return Ollama{client: client}
}

// Generate sends the prompt to settings.Endpoint as a single, non-streamed generate request and returns the
// response text. An empty string is returned when the reply has no response field. Non-2xx statuses are
// reported as a *StatusError. The request is attempted once.
func (o Ollama) Generate(ctx context.Context, settings models.Settings, prompt string) (string, error) {
	reqBody, err := json.Marshal(ollamaGenerateRequest{
		Model:  settings.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &StatusError{StatusCode: resp.StatusCode}
	}

	var res ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}

	return res.Response, nil
}

// Models lists the names of the models installed on the Ollama server that serves endpoint.
func (o Ollama) Models(ctx context.Context, endpoint string) ([]string, error) {
	base, err := ollamaBaseURL(endpoint)
	if err != nil {
		return nil, err
	}

	res, err := api.NewClient(base, o.client).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}

	names := make([]string, 0, len(res.Models))
	for _, m := range res.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// ollamaBaseURL derives the server root from a generate endpoint. Endpoints ending with /api/generate keep
// any path prefix in front of it (for servers behind a reverse proxy); any other path maps to the host root.
func ollamaBaseURL(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("error parsing endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("endpoint %q is not an absolute URL", endpoint)
	}

	base := &url.URL{Scheme: u.Scheme, Host: u.Host, User: u.User}
	if prefix, ok := strings.CutSuffix(strings.TrimSuffix(u.Path, "/"), generatePath); ok {
		base.Path = prefix
	}
	return base, nil
}
