package models

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrEmptyPrompt is returned by Session.Begin when the prompt is empty or only whitespace.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrBusy is returned by Session.Begin while a previous turn has not completed.
	ErrBusy = errors.New("a request is already in flight")
)

// Session is the state of one loaded chat page: the ordered message list, the generation settings, and the
// loading flag that keeps at most one request in flight. A Session is safe for concurrent use.
type Session struct {
	ID string

	mu       sync.Mutex
	messages []Message
	settings Settings
	loading  bool
}

// Turn is one accepted submission. It carries the prompt, the user message that was appended for it, and the
// settings as they were when the turn began.
type Turn struct {
	Prompt   string
	User     Message
	Settings Settings
}

// NewSession creates an empty session with the given settings.
func NewSession(id string, settings Settings) *Session {
	return &Session{
		ID:       id,
		settings: settings,
	}
}

// Begin accepts a prompt for generation. It appends the user message and sets the loading flag before
// returning, so the message is visible before any request is issued. Empty prompts and prompts submitted
// while loading are rejected without touching the message list.
//
// Every Turn returned by Begin must be finished with exactly one call to Complete.
func (s *Session) Begin(prompt string) (Turn, error) {
	if strings.TrimSpace(prompt) == "" {
		return Turn{}, ErrEmptyPrompt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading {
		return Turn{}, ErrBusy
	}

	um := NewMessage(RoleUser, prompt)
	s.messages = append(s.messages, um)
	s.loading = true

	return Turn{
		Prompt:   prompt,
		User:     um,
		Settings: s.settings,
	}, nil
}

// Complete appends the assistant message that settles the current turn and clears the loading flag.
func (s *Session) Complete(content string) Message {
	am := NewMessage(RoleAssistant, content)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, am)
	s.loading = false

	return am
}

// Messages returns a copy of the messages in display order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.messages)
}

// ReplyTo returns the assistant message that answered the user message with the given ID. It reports false
// while that turn is still in flight, or when no such user message exists.
func (s *Session) ReplyTo(userID string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, msg := range s.messages {
		if msg.ID != userID || msg.Role != RoleUser {
			continue
		}
		if i+1 < len(s.messages) && s.messages[i+1].Role == RoleAssistant {
			return s.messages[i+1], true
		}
		return Message{}, false
	}
	return Message{}, false
}

// Settings returns the current settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings
}

// UpdateSettings replaces the settings after validating them. Turns already begun keep the settings they
// started with.
func (s *Session) UpdateSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	return nil
}

// Loading reports whether a turn is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loading
}
