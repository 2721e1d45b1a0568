package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"github.com/MegaGrindStone/localchat"
	"github.com/MegaGrindStone/localchat/internal/models"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// Generator sends a prompt to the endpoint named in settings and returns the generated text. An empty
// string means the endpoint answered without response text.
type Generator interface {
	Generate(ctx context.Context, settings models.Settings, prompt string) (string, error)
}

// ModelLister lists the models available on the server behind an endpoint.
type ModelLister interface {
	Models(ctx context.Context, endpoint string) ([]string, error)
}

// Main handles the chat application: it renders the page, keeps the state of every open page session,
// runs generation for accepted submissions and pushes the replies to the page over server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	generator   Generator
	modelLister ModelLister
	defaults    models.Settings

	sessions *sessionStore
	turns    *turnTracker

	logger *slog.Logger
}

const (
	errLoggerKey = "err"

	// sessionGrace is how long a session survives without an open event stream, covering both the gap
	// between page render and stream connect and browser reconnects.
	sessionGrace = time.Minute
)

// NewMain creates a new Main instance. New sessions start with the defaults settings, which must be valid.
// The SSE server subscribes every client to the default topic and to the topic of the session named by the
// session_id query parameter; clients of unknown sessions are refused. Events are kept for the session grace
// period, so a client reconnecting with Last-Event-ID receives what it missed.
func NewMain(generator Generator, modelLister ModelLister, defaults models.Settings, logger *slog.Logger) (Main, error) {
	if err := defaults.Validate(); err != nil {
		return Main{}, fmt.Errorf("invalid default settings: %w", err)
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"markdown": markdownRenderer(),
	}).ParseFS(
		localchat.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	replayer, err := sse.NewValidReplayer(sessionGrace, true)
	if err != nil {
		return Main{}, fmt.Errorf("failed to create SSE replayer: %w", err)
	}

	sessions := newSessionStore(sessionGrace)

	return Main{
		sseSrv: &sse.Server{
			Provider: &sse.Joe{Replayer: replayer},
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				sessionID := s.Req.URL.Query().Get("session_id")
				if _, ok := sessions.get(sessionID); !ok {
					return sse.Subscription{}, false
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic, sessionTopic(sessionID)},
				}, true
			},
		},
		templates:   tmpl,
		generator:   generator,
		modelLister: modelLister,
		defaults:    defaults,
		sessions:    sessions,
		turns:       &turnTracker{},
		logger:      logger.With(slog.String("module", "main")),
	}, nil
}

func sessionTopic(sessionID string) string {
	return fmt.Sprintf("session-%s", sessionID)
}

// NewSession registers a new page session with the default settings.
func (m Main) NewSession() *models.Session {
	sess := models.NewSession(uuid.New().String(), m.defaults)
	m.sessions.add(sess)
	return sess
}

// Session returns the registered session with the given ID.
func (m Main) Session(id string) (*models.Session, bool) {
	return m.sessions.get(id)
}

// Shutdown stops accepting new turns and waits for in-flight generations to publish their replies. It then
// broadcasts a close message to all connected clients and shuts the SSE server down. Waiting for
// generations is bounded by ctx; the SSE server gets at most 5 more seconds after that. Generations still
// running when ctx expires keep going, but their replies are no longer delivered.
func (m Main) Shutdown(ctx context.Context) error {
	var waitErr error
	select {
	case <-m.turns.close():
	case <-ctx.Done():
		waitErr = fmt.Errorf("in-flight generations did not finish: %w", ctx.Err())
	}

	e := &sse.Message{Type: sse.Type("closeChat")}
	// SSE requires data on every event.
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	sseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*5)
	defer cancel()

	m.sessions.close()

	if err := m.sseSrv.Shutdown(sseCtx); err != nil {
		return err
	}
	return waitErr
}

// turnTracker counts running generations. Once closed it refuses new ones, so the count can only drain.
type turnTracker struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (t *turnTracker) add() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.wg.Add(1)
	return true
}

func (t *turnTracker) done() {
	t.wg.Done()
}

// close refuses further turns and returns a channel closed once every running turn is done.
func (t *turnTracker) close() <-chan struct{} {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	return done
}
