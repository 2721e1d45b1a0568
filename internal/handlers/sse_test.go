package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MegaGrindStone/localchat/internal/models"
	"github.com/tmaxmax/go-sse"
)

// queuedGenerator answers each Generate call with the next value sent on replies.
type queuedGenerator struct {
	replies chan string
}

func (g queuedGenerator) Generate(context.Context, models.Settings, string) (string, error) {
	return <-g.replies, nil
}

func TestHandleSSEDeliversReplies(t *testing.T) {
	gen := queuedGenerator{replies: make(chan string)}
	m, err := NewMain(gen, nil, models.DefaultSettings(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewMain() error = %v", err)
	}
	sess := m.NewSession()

	srv := httptest.NewServer(http.HandlerFunc(m.HandleSSE))
	defer srv.Close()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}()

	streamURL := srv.URL + "/sse?session_id=" + url.QueryEscape(sess.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := listen(t, ctx, streamURL, "")
	waitSubscribed(t, m, sess.ID, events)

	first := beginChat(t, m, sess, "first")
	gen.replies <- "**hello**"

	lastID := expectReply(t, events, first, "<strong>hello</strong>")

	// The next reply may be published before the page reconnects; the last seen ID recovers it.
	cancel()
	second := beginChat(t, m, sess, "second")
	gen.replies <- "while away"

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	events = listen(t, ctx, streamURL, lastID)

	expectReply(t, events, second, "while away")
}

func listen(t *testing.T, ctx context.Context, target, lastEventID string) <-chan sse.Event {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		t.Fatal(err)
	}
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	events := make(chan sse.Event, 64)
	conn := sse.NewConnection(req)
	conn.SubscribeToAll(func(e sse.Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})
	go func() { _ = conn.Connect() }()

	return events
}

// waitSubscribed publishes pings on the session topic until one reaches the stream.
func waitSubscribed(t *testing.T, m Main, sessionID string, events <-chan sse.Event) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		ping := &sse.Message{Type: sse.Type("ping")}
		ping.AppendData("ping")
		if err := m.sseSrv.Publish(ping, sessionTopic(sessionID)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}

		select {
		case e := <-events:
			if e.Type == "ping" {
				return
			}
		case <-tick.C:
		case <-deadline:
			t.Fatal("stream did not subscribe in time")
		}
	}
}

func beginChat(t *testing.T, m Main, sess *models.Session, text string) string {
	t.Helper()

	form := url.Values{"session_id": {sess.ID}, "message": {text}}
	req := httptest.NewRequest(http.MethodPost, "/chats", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	m.HandleChats(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("HandleChats() status = %v, want %v", w.Code, http.StatusOK)
	}

	msgs := sess.Messages()
	return msgs[len(msgs)-1].ID
}

// expectReply reads events until the close message of userID, checking the reply markup came first. It
// returns the ID of the close message.
func expectReply(t *testing.T, events <-chan sse.Event, userID, wantContent string) string {
	t.Helper()

	deadline := time.After(5 * time.Second)
	var reply string
	for {
		select {
		case e := <-events:
			switch e.Type {
			case messagesSSEType.String():
				if strings.Contains(e.Data, `data-reply-to="`+userID+`"`) {
					reply = e.Data
				}
			case closeMessageSSEType.String():
				if e.Data != userID {
					continue
				}
				if reply == "" {
					t.Fatalf("closeMessage for %s arrived without its reply", userID)
				}
				if !strings.Contains(reply, wantContent) {
					t.Errorf("reply = %q, want to contain %q", reply, wantContent)
				}
				if !strings.Contains(reply, `data-state="ended"`) {
					t.Errorf("reply = %q, want ended state", reply)
				}
				return e.LastEventID
			}
		case <-deadline:
			t.Fatalf("reply to %s did not arrive in time", userID)
		}
	}
}
