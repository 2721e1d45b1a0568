package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/localchat/internal/models"
)

type homePageData struct {
	SessionID string
	Settings  models.Settings
}

// HandleHome renders the chat page. Every load starts a new, empty session, so a reload discards the
// previous conversation.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := m.NewSession()
	m.logger.Debug("New session", slog.String("sessionID", sess.ID))

	data := homePageData{
		SessionID: sess.ID,
		Settings:  sess.Settings(),
	}

	err := m.templates.ExecuteTemplate(w, "home.html", data)
	if err != nil {
		m.logger.Error("Failed to render home page", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
