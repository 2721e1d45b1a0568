package handlers

import (
	"sync"
	"time"

	"github.com/MegaGrindStone/localchat/internal/models"
)

// sessionStore keeps the open page sessions in memory. A session is dropped once it has had no event stream
// attached for the grace period.
type sessionStore struct {
	grace time.Duration

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	session *models.Session
	streams int
	expiry  *time.Timer
}

func newSessionStore(grace time.Duration) *sessionStore {
	return &sessionStore{
		grace:   grace,
		entries: make(map[string]*sessionEntry),
	}
}

func (s *sessionStore) add(sess *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &sessionEntry{session: sess}
	s.entries[sess.ID] = e
	s.scheduleExpiry(sess.ID, e)
}

func (s *sessionStore) get(id string) (*models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// attach marks an event stream as open for the session, cancelling any pending expiry.
func (s *sessionStore) attach(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.streams++
	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}
	return true
}

// detach marks an event stream as closed. The last stream to close starts the expiry timer.
func (s *sessionStore) detach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.streams--
	if e.streams == 0 {
		s.scheduleExpiry(id, e)
	}
}

// scheduleExpiry must be called with s.mu held.
func (s *sessionStore) scheduleExpiry(id string, e *sessionEntry) {
	e.expiry = time.AfterFunc(s.grace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// The entry may have been replaced or re-attached while the timer fired.
		if cur, ok := s.entries[id]; ok && cur == e && e.streams == 0 {
			delete(s.entries, id)
		}
	})
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *sessionStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if e.expiry != nil {
			e.expiry.Stop()
		}
		delete(s.entries, id)
	}
}
