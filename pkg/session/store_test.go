package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetOrCreate(t *testing.T) {
	store := NewMemoryStore()

	s := store.GetOrCreate("whatsapp:+5215550000001")
	assert.Equal(t, "whatsapp:+5215550000001", s.SenderID)
	assert.Empty(t, s.CustomerName)
	assert.Empty(t, s.Pending)
	assert.Equal(t, 1, store.Len())

	// Second call returns the same session, not a new one
	store.Mutate("whatsapp:+5215550000001", func(s *Session) {
		s.CustomerName = "Maria Lopez"
	})
	s = store.GetOrCreate("whatsapp:+5215550000001")
	assert.Equal(t, "Maria Lopez", s.CustomerName)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_MutateIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Mutate("sender-1", func(s *Session) {
				s.Pending = append(s.Pending, Attachment{
					Data:        []byte("img"),
					ContentType: "image/jpeg",
					ReceivedAt:  time.Now(),
				})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s := store.GetOrCreate("sender-1")
	assert.Len(t, s.Pending, goroutines, "no appends may be lost under concurrency")
}

func TestMemoryStore_SendersAreIsolated(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("sender-%d", n)
			store.Mutate(id, func(s *Session) {
				s.CustomerName = id
				s.Pending = append(s.Pending, Attachment{Data: []byte(id)})
			})
		}(i)
	}
	wg.Wait()

	require.Equal(t, 20, store.Len())
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("sender-%d", i)
		s := store.GetOrCreate(id)
		assert.Equal(t, id, s.CustomerName)
		require.Len(t, s.Pending, 1)
		assert.Equal(t, []byte(id), s.Pending[0].Data)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()

	store.GetOrCreate("sender-1")
	require.Equal(t, 1, store.Len())

	store.Delete("sender-1")
	assert.Equal(t, 0, store.Len())

	// Deleting a missing session is a no-op
	store.Delete("sender-1")
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_DeleteIdle(t *testing.T) {
	store := NewMemoryStore()

	store.Mutate("stale", func(s *Session) {
		s.LastActivityAt = time.Now().Add(-2 * time.Hour)
	})
	store.Mutate("fresh", func(s *Session) {
		s.LastActivityAt = time.Now()
	})

	cutoff := time.Now().Add(-time.Hour)
	assert.True(t, store.DeleteIdle("stale", cutoff))
	assert.False(t, store.DeleteIdle("fresh", cutoff), "active session must survive")
	assert.False(t, store.DeleteIdle("missing", cutoff))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_SnapshotCopiesDoNotAlias(t *testing.T) {
	store := NewMemoryStore()

	store.Mutate("sender-1", func(s *Session) {
		s.Pending = []Attachment{{Data: []byte("original")}}
	})

	snap := store.SnapshotAll()
	require.Len(t, snap, 1)
	snap[0].Pending[0].Data[0] = 'X'
	snap[0].Pending = append(snap[0].Pending, Attachment{})

	s := store.GetOrCreate("sender-1")
	require.Len(t, s.Pending, 1)
	assert.Equal(t, []byte("Xriginal"), s.Pending[0].Data,
		"byte slices are shared, but the attachment list itself must not alias")
}

func TestMemoryStore_SnapshotAll(t *testing.T) {
	store := NewMemoryStore()
	for i := 0; i < 5; i++ {
		store.GetOrCreate(fmt.Sprintf("sender-%d", i))
	}

	snap := store.SnapshotAll()
	assert.Len(t, snap, 5)

	seen := make(map[string]bool)
	for _, s := range snap {
		seen[s.SenderID] = true
	}
	assert.Len(t, seen, 5)
}
