package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MegaGrindStone/localchat/internal/models"
	"github.com/tmaxmax/go-sse"
)

type message struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time

	// ReplyTo is the ID of the user message an assistant message answers.
	ReplyTo        string
	StreamingState string
}

// SSE event types for real-time updates.
var (
	messagesSSEType     = sse.Type("messages")
	closeMessageSSEType = sse.Type("closeMessage")
)

const (
	streamingStateLoading = "loading"
	streamingStateEnded   = "ended"
)

// HandleChats accepts a user message through an HTTP POST form with "session_id" and "message" fields.
//
// The user message is appended to the session before the handler returns, and the response contains the
// rendered user message followed by an assistant placeholder in loading state. Generation then runs in the
// background; its outcome, a reply or a description of the failure, is appended as the assistant message
// and published on the session's SSE topic.
//
// Empty messages are rejected with 400, submissions while a previous one is in flight with 409, and
// submissions during shutdown with 503. In every case nothing is appended and no request is issued.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !m.turns.add() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	started := false
	defer func() {
		if !started {
			m.turns.done()
		}
	}()

	sess, ok := m.sessions.get(r.FormValue("session_id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	turn, err := sess.Begin(r.FormValue("message"))
	switch {
	case errors.Is(err, models.ErrEmptyPrompt):
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	case errors.Is(err, models.ErrBusy):
		http.Error(w, "A reply is still being generated", http.StatusConflict)
		return
	case err != nil:
		m.logger.Error("Failed to begin turn", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Render before generation starts so a template failure can't leave a reply without its placeholder.
	var buf bytes.Buffer
	err = m.templates.ExecuteTemplate(&buf, "user_message", message{
		ID:             turn.User.ID,
		Role:           string(turn.User.Role),
		Content:        turn.User.Content,
		Timestamp:      turn.User.Timestamp,
		StreamingState: streamingStateEnded,
	})
	if err == nil {
		err = m.templates.ExecuteTemplate(&buf, "ai_message", message{
			Role:           string(models.RoleAssistant),
			ReplyTo:        turn.User.ID,
			StreamingState: streamingStateLoading,
		})
	}

	started = true
	go m.chat(sess, turn)

	if err != nil {
		m.logger.Error("Failed to render messages", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		m.logger.Error("Failed to write response", slog.String(errLoggerKey, err.Error()))
	}
}

// chat settles turn: it always appends exactly one assistant message, then pushes it to the page.
func (m Main) chat(sess *models.Session, turn models.Turn) {
	defer m.turns.done()

	am := sess.Complete(m.reply(turn))

	// Ensure the page re-enables its input whatever happens to the reply event.
	defer func() {
		e := &sse.Message{Type: closeMessageSSEType}
		e.AppendData(turn.User.ID)
		_ = m.sseSrv.Publish(e, sessionTopic(sess.ID))
	}()

	var sb bytes.Buffer
	if err := m.renderReply(&sb, turn.User.ID, am); err != nil {
		m.logger.Error("Failed to render reply",
			slog.String("message", fmt.Sprintf("%+v", am)),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{
		Type: messagesSSEType,
	}
	msg.AppendData(sb.String())
	if err := m.sseSrv.Publish(&msg, sessionTopic(sess.ID)); err != nil {
		m.logger.Error("Failed to publish reply",
			slog.String("sessionID", sess.ID),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) renderReply(w io.Writer, userID string, am models.Message) error {
	return m.templates.ExecuteTemplate(w, "ai_message", message{
		ID:             am.ID,
		Role:           string(am.Role),
		Content:        am.Content,
		Timestamp:      am.Timestamp,
		ReplyTo:        userID,
		StreamingState: streamingStateEnded,
	})
}

// HandleReplies renders the settled reply to the user message named by "reply_to" in the session named by
// "session_id". It answers 204 while the reply is still pending. The page calls it whenever its event stream
// (re)connects, so a reply published while no stream was open still reaches it.
func (m Main) HandleReplies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := m.sessions.get(r.URL.Query().Get("session_id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	userID := r.URL.Query().Get("reply_to")
	am, ok := sess.ReplyTo(userID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var buf bytes.Buffer
	if err := m.renderReply(&buf, userID, am); err != nil {
		m.logger.Error("Failed to render reply", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		m.logger.Error("Failed to write response", slog.String(errLoggerKey, err.Error()))
	}
}

// reply sends the turn's prompt once and turns the outcome into assistant content. The request is not
// bound to the HTTP request that submitted it, so closing the page doesn't abort it.
func (m Main) reply(turn models.Turn) string {
	text, err := m.generator.Generate(context.Background(), turn.Settings, turn.Prompt)
	if err != nil {
		m.logger.Error("Request failed",
			slog.String("endpoint", turn.Settings.Endpoint),
			slog.String("model", turn.Settings.Model),
			slog.String(errLoggerKey, err.Error()))
		return models.FailureReply(err, turn.Settings.Endpoint)
	}

	if text == "" {
		return models.FallbackReply
	}
	return text
}
