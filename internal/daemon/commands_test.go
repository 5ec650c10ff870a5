package daemon

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oselz/orderline/pkg/session"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) Send(_ context.Context, _ string, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return nil
}

func (n *recordingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return ""
	}
	return n.sent[len(n.sent)-1]
}

func TestCommandRouter_Reset(t *testing.T) {
	store := session.NewMemoryStore()
	notifier := &recordingNotifier{}
	router := newCommandRouter(store, notifier, zerolog.Nop())

	require.NoError(t, store.Mutate("628111", func(s *session.Session) {
		s.CustomerName = "Ibu Sari"
		s.Pending = append(s.Pending, session.Attachment{Data: []byte{1}}, session.Attachment{Data: []byte{2}})
	}))

	require.NoError(t, router.Route(context.Background(), "628111", "/reset"))

	s := store.GetOrCreate("628111")
	assert.Empty(t, s.CustomerName)
	assert.Empty(t, s.Pending)
	assert.Contains(t, notifier.last(), "2 buffered photo(s)")
}

func TestCommandRouter_ResetEmptySession(t *testing.T) {
	store := session.NewMemoryStore()
	notifier := &recordingNotifier{}
	router := newCommandRouter(store, notifier, zerolog.Nop())

	require.NoError(t, router.Route(context.Background(), "628111", "/reset"))
	assert.Equal(t, "Session cleared.", notifier.last())
}

func TestCommandRouter_Status(t *testing.T) {
	store := session.NewMemoryStore()
	notifier := &recordingNotifier{}
	router := newCommandRouter(store, notifier, zerolog.Nop())

	require.NoError(t, router.Route(context.Background(), "628111", "/status"))
	assert.Contains(t, notifier.last(), "(not set)")
	assert.Contains(t, notifier.last(), "Buffered photos: 0")

	require.NoError(t, store.Mutate("628111", func(s *session.Session) {
		s.CustomerName = "Pak Budi"
		s.Pending = append(s.Pending, session.Attachment{Data: []byte{1}})
	}))

	require.NoError(t, router.Route(context.Background(), "628111", "/status"))
	assert.Contains(t, notifier.last(), "Pak Budi")
	assert.Contains(t, notifier.last(), "Buffered photos: 1")
}

func TestCommandRouter_UnknownCommand(t *testing.T) {
	store := session.NewMemoryStore()
	notifier := &recordingNotifier{}
	router := newCommandRouter(store, notifier, zerolog.Nop())

	require.NoError(t, router.Route(context.Background(), "628111", "/export all"))
	assert.Contains(t, notifier.last(), "Unknown command /export")
}

func TestCommandRouter_CaseInsensitive(t *testing.T) {
	store := session.NewMemoryStore()
	notifier := &recordingNotifier{}
	router := newCommandRouter(store, notifier, zerolog.Nop())

	require.NoError(t, router.Route(context.Background(), "628111", "/RESET"))
	assert.Contains(t, notifier.last(), "Session cleared")
}
