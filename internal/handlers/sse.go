package handlers

import (
	"net/http"
)

// HandleSSE streams the events of the session named by the "session_id" query parameter. The session is
// kept alive while at least one stream is open.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if !m.sessions.attach(sessionID) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	defer m.sessions.detach(sessionID)

	m.sseSrv.ServeHTTP(w, r)
}
