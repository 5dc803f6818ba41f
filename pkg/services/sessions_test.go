package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabiora/landing/pkg/models"
)

func mustCreate(t *testing.T, store *SessionStore) *Session {
	t.Helper()
	s, err := store.Create()
	require.NoError(t, err)
	return s
}

func newTestStore(t *testing.T, ttl time.Duration) (*SessionStore, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{resp: &models.WaitlistResponse{}}
	store := NewSessionStore(ControllerDeps{API: api, Options: fastOptions}, ttl, 0)
	t.Cleanup(store.Close)
	return store, api
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)

	a := mustCreate(t, store)
	b := mustCreate(t, store)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, store.Len())

	got, err := store.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_IsolatesForms(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)

	a := mustCreate(t, store)
	b := mustCreate(t, store)
	a.Controller.UpdateField(models.FieldFirstName, "Ada")

	assert.Equal(t, "Ada", a.Controller.Snapshot().Applicant.FirstName)
	assert.Empty(t, b.Controller.Snapshot().Applicant.FirstName)
}

func TestSessionStore_Expiry(t *testing.T) {
	store, _ := newTestStore(t, 20*time.Millisecond)

	s := mustCreate(t, store)

	require.Eventually(t, func() bool {
		_, err := store.Get(s.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, store.Len())
}

func TestSessionStore_ExpiredOnGet(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	s := mustCreate(t, store)
	s.ExpiresAt = time.Now().Add(-time.Second)

	_, err := store.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = store.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSession_CelebrationIsOneShot(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	s := mustCreate(t, store)
	s.Controller.UpdateField(models.FieldFirstName, "Ada")
	s.Controller.UpdateField(models.FieldLastName, "Lovelace")
	s.Controller.UpdateField(models.FieldEmail, "ada@example.com")

	assert.False(t, s.TakeCelebration())

	_, err := s.Controller.Submit(context.Background(), nil)
	require.NoError(t, err)

	require.Eventually(t, s.TakeCelebration, time.Second, time.Millisecond)
	assert.False(t, s.TakeCelebration())
}

func TestSessionStore_Close(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	mustCreate(t, store)
	store.Close()

	assert.Zero(t, store.Len())
	s := mustCreate(t, store)
	_, err := store.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_MaxSessions(t *testing.T) {
	store := NewSessionStore(ControllerDeps{API: &fakeAPI{}, Options: fastOptions}, time.Minute, 2)
	t.Cleanup(store.Close)

	a := mustCreate(t, store)
	mustCreate(t, store)

	_, err := store.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 2, store.Len())

	// Closing a form frees its slot
	store.Delete(a.ID)
	mustCreate(t, store)
}
