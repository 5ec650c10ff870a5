package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_SweepEvictsIdleSessions(t *testing.T) {
	store := NewMemoryStore()
	j := NewJanitor(store, time.Hour, "")

	// One sender idle past retention with a buffered, never-claimed attachment.
	store.Mutate("idle", func(s *Session) {
		s.Pending = []Attachment{{Data: []byte("img"), ReceivedAt: time.Now().Add(-61 * time.Minute)}}
		s.LastActivityAt = time.Now().Add(-61 * time.Minute)
	})
	store.Mutate("active", func(s *Session) {
		s.LastActivityAt = time.Now()
	})

	evicted := j.Sweep()
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, store.Len())

	snap := store.SnapshotAll()
	require.Len(t, snap, 1)
	assert.Equal(t, "active", snap[0].SenderID)
}

func TestJanitor_SweepKeepsPendingStateUnderRetention(t *testing.T) {
	store := NewMemoryStore()
	j := NewJanitor(store, time.Hour, "")

	store.Mutate("recent", func(s *Session) {
		s.CustomerName = "Ana"
		s.LastActivityAt = time.Now().Add(-30 * time.Minute)
	})

	assert.Equal(t, 0, j.Sweep())
	s := store.GetOrCreate("recent")
	assert.Equal(t, "Ana", s.CustomerName)
}

func TestJanitor_SetRetention(t *testing.T) {
	store := NewMemoryStore()
	j := NewJanitor(store, time.Hour, "")

	store.Mutate("sender-1", func(s *Session) {
		s.LastActivityAt = time.Now().Add(-10 * time.Minute)
	})

	assert.Equal(t, 0, j.Sweep())

	j.SetRetention(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, j.Retention())
	assert.Equal(t, 1, j.Sweep())

	// Non-positive values are ignored
	j.SetRetention(0)
	assert.Equal(t, 5*time.Minute, j.Retention())
}

func TestJanitor_OnEvictCallback(t *testing.T) {
	store := NewMemoryStore()
	j := NewJanitor(store, time.Minute, "")

	var got int
	j.SetOnEvict(func(n int) { got = n })

	store.Mutate("a", func(s *Session) { s.LastActivityAt = time.Now().Add(-2 * time.Minute) })
	store.Mutate("b", func(s *Session) { s.LastActivityAt = time.Now().Add(-2 * time.Minute) })

	j.Sweep()
	assert.Equal(t, 2, got)
}

func TestJanitor_StartStop(t *testing.T) {
	store := NewMemoryStore()
	j := NewJanitor(store, time.Hour, "@every 1h")

	require.NoError(t, j.Start())
	assert.True(t, j.IsRunning())
	assert.Error(t, j.Start(), "double start must fail")

	j.Stop()
	assert.False(t, j.IsRunning())
}

func TestJanitor_StartRejectsBadSchedule(t *testing.T) {
	j := NewJanitor(NewMemoryStore(), time.Hour, "not-a-schedule")
	assert.Error(t, j.Start())
}
