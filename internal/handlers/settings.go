package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/localchat/internal/models"
)

// HandleSettings applies the "endpoint" and "model" form fields to the session named by "session_id".
// Invalid values are rejected with 400 and leave the settings unchanged. On success it renders the updated
// model badge shown in the page header.
func (m Main) HandleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := m.sessions.get(r.FormValue("session_id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	settings := models.Settings{
		Endpoint: strings.TrimSpace(r.FormValue("endpoint")),
		Model:    strings.TrimSpace(r.FormValue("model")),
	}
	if err := sess.UpdateSettings(settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.logger.Info("Settings updated",
		slog.String("sessionID", sess.ID),
		slog.String("endpoint", settings.Endpoint),
		slog.String("model", settings.Model))

	if err := m.templates.ExecuteTemplate(w, "model_badge", settings); err != nil {
		m.logger.Error("Failed to render model badge", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleModels renders the models installed behind the session's endpoint as datalist options. A failure to
// list them is logged and renders no options, since the model field accepts any name.
func (m Main) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := m.sessions.get(r.URL.Query().Get("session_id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	endpoint := sess.Settings().Endpoint
	names, err := m.modelLister.Models(r.Context(), endpoint)
	if err != nil {
		m.logger.Warn("Failed to list models",
			slog.String("endpoint", endpoint),
			slog.String(errLoggerKey, err.Error()))
		names = nil
	}

	if err := m.templates.ExecuteTemplate(w, "model_options", names); err != nil {
		m.logger.Error("Failed to render model options", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
