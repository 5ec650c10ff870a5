package session

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oselz/orderline/internal/observability"
)

const defaultShardCount = 32

// Store is the only access path to session state. Mutations for a single
// sender are strictly serialized; operations on different senders proceed
// independently.
type Store interface {
	// GetOrCreate returns a copy of the session for senderID, creating an
	// empty one if none exists. Creation is idempotent under concurrency.
	GetOrCreate(senderID string) Session

	// Mutate applies fn to the session for senderID as a single atomic
	// read-modify-write step, creating the session first if needed.
	Mutate(senderID string, fn func(*Session)) error

	// Delete removes the session for senderID if present.
	Delete(senderID string)

	// DeleteIdle removes the session only if its LastActivityAt is before
	// cutoff at the moment of deletion. Returns true if it was removed.
	DeleteIdle(senderID string, cutoff time.Time) bool

	// SnapshotAll returns copies of every session. It never blocks Mutate
	// calls on unrelated senders for the duration of the whole scan.
	SnapshotAll() []Session

	// Len returns the number of live sessions.
	Len() int
}

// MemoryStore is the in-process Store. Sessions are partitioned into a fixed
// number of shards keyed by an FNV hash of the sender id; each session
// carries its own mutex so same-sender operations serialize and
// cross-sender operations do not.
type MemoryStore struct {
	shards []*shard
	count  atomic.Int64
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu sync.Mutex
	s  Session
}

// NewMemoryStore creates a MemoryStore with the default shard count.
func NewMemoryStore() *MemoryStore {
	observability.EnsureRegistered()

	shards := make([]*shard, defaultShardCount)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[string]*entry)}
	}
	return &MemoryStore{shards: shards}
}

func (m *MemoryStore) shardFor(senderID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(senderID))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// getOrCreateEntry returns the entry for senderID, creating it if absent.
func (m *MemoryStore) getOrCreateEntry(senderID string) *entry {
	sh := m.shardFor(senderID)

	sh.mu.RLock()
	e, ok := sh.sessions[senderID]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok = sh.sessions[senderID]; ok {
		return e
	}
	e = &entry{s: Session{SenderID: senderID, LastActivityAt: time.Now()}}
	sh.sessions[senderID] = e
	observability.SetActiveSessions(int(m.count.Add(1)))
	log.Debug().Str("sender_id", senderID).Msg("Session created")
	return e
}

// GetOrCreate returns a copy of the session for senderID.
func (m *MemoryStore) GetOrCreate(senderID string) Session {
	e := m.getOrCreateEntry(senderID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.clone()
}

// Mutate applies fn under the per-sender lock.
func (m *MemoryStore) Mutate(senderID string, fn func(*Session)) error {
	e := m.getOrCreateEntry(senderID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.s)
	return nil
}

// Delete removes the session for senderID.
func (m *MemoryStore) Delete(senderID string) {
	sh := m.shardFor(senderID)
	sh.mu.Lock()
	_, ok := sh.sessions[senderID]
	delete(sh.sessions, senderID)
	sh.mu.Unlock()
	if ok {
		observability.SetActiveSessions(int(m.count.Add(-1)))
	}
}

// DeleteIdle removes the session only if it is still idle at deletion time.
// The activity check and the map removal happen under the shard lock with the
// session lock held, so a sender that became active after a snapshot was
// taken is never evicted.
func (m *MemoryStore) DeleteIdle(senderID string, cutoff time.Time) bool {
	sh := m.shardFor(senderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.sessions[senderID]
	if !ok {
		return false
	}
	e.mu.Lock()
	idle := e.s.LastActivityAt.Before(cutoff)
	e.mu.Unlock()
	if !idle {
		return false
	}
	delete(sh.sessions, senderID)
	observability.SetActiveSessions(int(m.count.Add(-1)))
	return true
}

// SnapshotAll copies every session, locking one shard at a time.
func (m *MemoryStore) SnapshotAll() []Session {
	var out []Session
	for _, sh := range m.shards {
		sh.mu.RLock()
		entries := make([]*entry, 0, len(sh.sessions))
		for _, e := range sh.sessions {
			entries = append(entries, e)
		}
		sh.mu.RUnlock()

		for _, e := range entries {
			e.mu.Lock()
			out = append(out, e.s.clone())
			e.mu.Unlock()
		}
	}
	return out
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	return int(m.count.Load())
}
