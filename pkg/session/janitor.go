package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRetention     = time.Hour
	DefaultSweepSchedule = "@every 1m"
)

// Janitor periodically evicts sessions idle beyond the retention threshold.
// Eviction is destructive: any unpaired attachments in an evicted session are
// discarded without notifying the sender.
type Janitor struct {
	store     Store
	retention atomic.Int64 // nanoseconds
	schedule  string
	cron      *cron.Cron
	onEvict   func(evicted int)

	mu      sync.Mutex
	running bool
}

// NewJanitor creates a janitor sweeping store on the given cron schedule.
// Zero values fall back to DefaultRetention and DefaultSweepSchedule.
func NewJanitor(store Store, retention time.Duration, schedule string) *Janitor {
	if retention == 0 {
		retention = DefaultRetention
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	j := &Janitor{store: store, schedule: schedule}
	j.retention.Store(int64(retention))
	return j
}

// SetOnEvict registers a callback invoked after each sweep that evicted at
// least one session. Must be called before Start.
func (j *Janitor) SetOnEvict(fn func(evicted int)) {
	j.onEvict = fn
}

// Start begins the background sweep.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() { j.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule janitor sweep: %w", err)
	}
	c.Start()
	j.cron = c
	j.running = true

	log.Info().
		Str("schedule", j.schedule).
		Dur("retention", j.Retention()).
		Msg("Session janitor started")
	return nil
}

// Stop halts the background sweep and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}
	<-j.cron.Stop().Done()
	j.running = false

	log.Info().Msg("Session janitor stopped")
}

// Sweep evicts every session idle longer than the retention threshold and
// returns how many were removed. Safe to call directly.
func (j *Janitor) Sweep() int {
	cutoff := time.Now().Add(-j.Retention())
	evicted := 0

	for _, s := range j.store.SnapshotAll() {
		if !s.LastActivityAt.Before(cutoff) {
			continue
		}
		// DeleteIdle re-checks activity atomically; a sender that woke up
		// since the snapshot is left alone.
		if j.store.DeleteIdle(s.SenderID, cutoff) {
			evicted++
			log.Debug().
				Str("sender_id", s.SenderID).
				Int("pending", len(s.Pending)).
				Msg("Idle session evicted")
		}
	}

	if evicted > 0 {
		log.Info().Int("evicted", evicted).Msg("Janitor sweep completed")
		if j.onEvict != nil {
			j.onEvict(evicted)
		}
	}
	return evicted
}

// Retention returns the current retention threshold.
func (j *Janitor) Retention() time.Duration {
	return time.Duration(j.retention.Load())
}

// SetRetention updates the retention threshold at runtime.
func (j *Janitor) SetRetention(d time.Duration) {
	if d <= 0 {
		return
	}
	j.retention.Store(int64(d))
	log.Info().Dur("retention", d).Msg("Janitor retention updated")
}

// IsRunning returns whether the background sweep is active.
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}
