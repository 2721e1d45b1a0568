package handlers

import (
	"testing"
	"time"

	"github.com/MegaGrindStone/localchat/internal/models"
)

func TestSessionStoreExpiry(t *testing.T) {
	store := newSessionStore(20 * time.Millisecond)
	defer store.close()

	detached := models.NewSession("detached", models.DefaultSettings())
	attached := models.NewSession("attached", models.DefaultSettings())
	store.add(detached)
	store.add(attached)

	if !store.attach(attached.ID) {
		t.Fatal("attach() should find the session")
	}
	if store.attach("missing") {
		t.Error("attach() should not find an unknown session")
	}

	waitFor(t, func() bool { return store.count() == 1 })

	if _, ok := store.get(detached.ID); ok {
		t.Error("session without a stream should expire")
	}
	if _, ok := store.get(attached.ID); !ok {
		t.Fatal("session with an open stream should not expire")
	}

	store.detach(attached.ID)
	waitFor(t, func() bool { return store.count() == 0 })
}

func TestSessionStoreReattach(t *testing.T) {
	store := newSessionStore(50 * time.Millisecond)
	defer store.close()

	sess := models.NewSession("1", models.DefaultSettings())
	store.add(sess)

	store.attach(sess.ID)
	store.detach(sess.ID)
	// A reconnect inside the grace period keeps the session.
	store.attach(sess.ID)

	time.Sleep(100 * time.Millisecond)

	if _, ok := store.get(sess.ID); !ok {
		t.Error("re-attached session should not expire")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
