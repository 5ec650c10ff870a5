package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is an asynchronous unit of work.
type Task func(ctx context.Context) error

type taskRecord struct {
	id   string
	task Task
	done func(err error)
}

// laneState manages execution for a single lane.
type laneState struct {
	concurrency int
	queue       []*taskRecord
	running     int
	mu          sync.Mutex
}

// Queue serializes tasks into named lanes with per-lane concurrency limits.
// A lane with concurrency 1 processes its tasks strictly in submission order,
// which is how per-sender event ordering is preserved upstream.
type Queue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates an empty Queue.
func New() *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// EnsureLane creates a lane with the given concurrency if it does not exist.
// Lanes created implicitly by Submit default to concurrency 1.
func (q *Queue) EnsureLane(lane string, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.lanes[lane]; !exists {
		q.lanes[lane] = &laneState{concurrency: concurrency}
		log.Debug().Str("lane", lane).Int("concurrency", concurrency).Msg("Lane initialized")
	}
}

// Submit enqueues a task without waiting for it. done, if non-nil, is invoked
// with the task's error once it finishes; this keeps fire-and-forget work
// observable instead of detached.
func (q *Queue) Submit(lane string, task Task, done func(err error)) {
	q.EnsureLane(lane, 1)

	q.mu.Lock()
	q.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", lane, q.taskIDSeq)
	ls := q.lanes[lane]
	q.mu.Unlock()

	record := &taskRecord{id: taskID, task: task, done: done}

	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	log.Debug().
		Str("lane", lane).
		Str("task_id", taskID).
		Int("queue_size", queueSize).
		Msg("Task submitted")

	q.processLane(lane, ls)
}

// processLane starts queued tasks while the lane has capacity.
func (q *Queue) processLane(lane string, ls *laneState) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]
		ls.running++

		q.wg.Add(1)
		go q.executeTask(lane, ls, record)
	}
}

func (q *Queue) executeTask(lane string, ls *laneState, record *taskRecord) {
	defer q.wg.Done()

	runCtx, cancel := context.WithCancel(context.Background())
	stopCancel := context.AfterFunc(q.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	start := time.Now()
	err := record.task(runCtx)
	duration := time.Since(start)

	ls.mu.Lock()
	ls.running--
	ls.mu.Unlock()

	if err != nil {
		log.Error().
			Str("lane", lane).
			Str("task_id", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		log.Debug().
			Str("lane", lane).
			Str("task_id", record.id).
			Dur("duration", duration).
			Msg("Task completed")
	}

	if record.done != nil {
		record.done(err)
	}

	q.processLane(lane, ls)
}

// QueueSize returns the number of queued (not yet running) tasks in a lane.
func (q *Queue) QueueSize(lane string) int {
	q.mu.RLock()
	ls, exists := q.lanes[lane]
	q.mu.RUnlock()
	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// Running returns the number of currently executing tasks in a lane.
func (q *Queue) Running(lane string) int {
	q.mu.RLock()
	ls, exists := q.lanes[lane]
	q.mu.RUnlock()
	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.running
}

// Drain waits until all lanes are empty and idle, or the timeout elapses.
// Returns true if everything drained.
func (q *Queue) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		idle := true
		q.mu.RLock()
		for _, ls := range q.lanes {
			ls.mu.Lock()
			if ls.running > 0 || len(ls.queue) > 0 {
				idle = false
			}
			ls.mu.Unlock()
		}
		q.mu.RUnlock()

		if idle {
			return true
		}
		if time.Now().After(deadline) {
			log.Warn().Dur("timeout", timeout).Msg("Timeout draining task queue")
			return false
		}
		<-ticker.C
	}
}

// Close cancels running task contexts and waits for them to return.
func (q *Queue) Close() error {
	q.cancel()
	q.wg.Wait()
	return nil
}
