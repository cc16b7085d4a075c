// Package scheduler serializes automation work through a priority queue
// drained by a single background worker.
//
// The queue is partitioned into one FIFO lane per priority level. The worker
// always drains the highest populated lane first: a continuous stream of
// critical work can starve low-priority work indefinitely. That trade-off is
// intentional and covered by tests.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/logging"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/metrics"
)

var (
	// ErrNilTask is returned when Enqueue is called without a task.
	ErrNilTask = errors.New("scheduler: task must not be nil")
	// ErrStopped is returned when enqueueing on a stopped scheduler.
	ErrStopped = errors.New("scheduler: stopped")
)

// DefaultPollInterval bounds how long the worker sleeps when all lanes are
// empty.
const DefaultPollInterval = 50 * time.Millisecond

// lane is a FIFO sub-queue for one priority level. Multiple producers may
// append concurrently; only the worker pops.
type lane struct {
	mu    sync.Mutex
	items []*entry
}

func (l *lane) push(e *entry) {
	l.mu.Lock()
	l.items = append(l.items, e)
	l.mu.Unlock()
}

func (l *lane) pop() *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return nil
	}
	e := l.items[0]
	l.items = l.items[1:]
	return e
}

func (l *lane) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Scheduler owns the priority lanes and the single worker loop.
type Scheduler struct {
	lanes        [numPriorities]lane
	pollInterval time.Duration

	mu      sync.Mutex // guards pending
	pending map[string]*entry

	subMu       sync.RWMutex
	subscribers []chan Event

	running atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	done    chan struct{}

	log *zap.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPollInterval overrides the empty-queue poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// New creates a Scheduler. The worker loop starts lazily on first Enqueue.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		pollInterval: DefaultPollInterval,
		pending:      make(map[string]*entry),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
		log:          logging.L().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue adds a task at the given priority, scheduled to run immediately.
// It never blocks and returns the entry id used for cancellation.
func (s *Scheduler) Enqueue(task *Task, priority Priority) (string, error) {
	return s.EnqueueAt(task, priority, time.Time{})
}

// EnqueueAt adds a task that should not run before scheduledFor. A zero
// time means "now". Raises a queued event and starts the worker if needed.
func (s *Scheduler) EnqueueAt(task *Task, priority Priority, scheduledFor time.Time) (string, error) {
	if task == nil || task.Action == nil {
		return "", ErrNilTask
	}
	if s.stopped.Load() {
		return "", ErrStopped
	}
	if priority < PriorityLow || priority > PriorityCritical {
		priority = PriorityNormal
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		id:           uuid.New().String(),
		task:         task,
		priority:     priority,
		scheduledFor: scheduledFor,
		enqueuedAt:   time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}

	s.mu.Lock()
	s.pending[e.id] = e
	s.mu.Unlock()
	s.lanes[priority].push(e)

	m := metrics.Get()
	m.TasksQueued.WithLabelValues(priority.String()).Inc()
	m.QueueDepth.WithLabelValues(priority.String()).Set(float64(s.lanes[priority].len()))

	s.emit(Event{
		Kind:        EventQueued,
		EntryID:     e.id,
		TaskID:      task.ID,
		Description: task.Description,
		Priority:    priority,
	})
	s.log.Debug("task queued",
		zap.String("entry", e.id),
		zap.String("task", task.Description),
		zap.String("priority", priority.String()))

	// Single active worker: only the first successful swap spawns the loop.
	if s.running.CompareAndSwap(false, true) {
		go s.loop()
	}
	return e.id, nil
}

// Cancel signals the entry's cancellation handle. Returns false when no
// matching live entry exists, including entries already completed or
// already cancelled.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	e, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.cancel()
	s.log.Info("task cancellation requested", zap.String("entry", id))
	return true
}

// Stop halts the worker loop and cancels every still-queued entry. It does
// not interrupt a task already executing, but waits for it to finish. The
// scheduler cannot be restarted afterwards.
func (s *Scheduler) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopCh)

	// Cancel everything still waiting in a lane.
	for p := PriorityCritical; p >= PriorityLow; p-- {
		for {
			e := s.lanes[p].pop()
			if e == nil {
				break
			}
			s.finish(e)
			e.cancel()
			s.emitCancelled(e)
		}
	}

	if s.running.Load() {
		<-s.done
	}
	s.log.Info("scheduler stopped")
}

// QueueLength returns the total number of entries waiting across all lanes.
func (s *Scheduler) QueueLength() int {
	total := 0
	for i := range s.lanes {
		total += s.lanes[i].len()
	}
	return total
}

// loop is the single worker. It drains the highest populated lane, honors
// scheduled times, and survives task failures.
func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		e := s.dequeue()
		if e == nil {
			select {
			case <-s.stopCh:
				return
			case <-time.After(s.pollInterval):
			}
			continue
		}
		s.execute(e)
	}
}

// dequeue pops the head of the highest non-empty lane.
func (s *Scheduler) dequeue() *entry {
	for p := PriorityCritical; p >= PriorityLow; p-- {
		if e := s.lanes[p].pop(); e != nil {
			metrics.Get().QueueDepth.WithLabelValues(p.String()).Set(float64(s.lanes[p].len()))
			return e
		}
	}
	return nil
}

func (s *Scheduler) execute(e *entry) {
	// Honor a future scheduled time, cooperatively cancellable.
	if wait := time.Until(e.scheduledFor); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-e.ctx.Done():
			timer.Stop()
			s.finish(e)
			s.emitCancelled(e)
			return
		case <-s.stopCh:
			timer.Stop()
			s.finish(e)
			e.cancel()
			s.emitCancelled(e)
			return
		case <-timer.C:
		}
	}

	if e.ctx.Err() != nil {
		s.finish(e)
		s.emitCancelled(e)
		return
	}

	report := func(percent int, step string) {
		s.emit(Event{
			Kind:        EventProgress,
			EntryID:     e.id,
			TaskID:      e.task.ID,
			Description: e.task.Description,
			Priority:    e.priority,
			Percent:     percent,
			Step:        step,
		})
	}

	err := s.runSafely(e, report)
	s.finish(e)

	switch {
	case errors.Is(err, context.Canceled) || e.ctx.Err() != nil:
		s.emitCancelled(e)
	case err != nil:
		// A single task's failure never stops the worker.
		metrics.Get().TasksFailed.Inc()
		s.log.Error("task failed",
			zap.String("entry", e.id),
			zap.String("task", e.task.Description),
			zap.Error(err))
	default:
		metrics.Get().TasksCompleted.WithLabelValues(e.priority.String()).Inc()
		s.emit(Event{
			Kind:        EventCompleted,
			EntryID:     e.id,
			TaskID:      e.task.ID,
			Description: e.task.Description,
			Priority:    e.priority,
		})
	}
}

// runSafely executes the task action, converting panics into errors so the
// loop keeps running.
func (s *Scheduler) runSafely(e *entry, report ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return e.task.Action(e.ctx, report)
}

// finish drops the entry from the pending index; later Cancel calls for the
// same id return false.
func (s *Scheduler) finish(e *entry) {
	s.mu.Lock()
	delete(s.pending, e.id)
	s.mu.Unlock()
	e.cancel()
}

func (s *Scheduler) emitCancelled(e *entry) {
	metrics.Get().TasksCancelled.Inc()
	s.emit(Event{
		Kind:        EventCancelled,
		EntryID:     e.id,
		TaskID:      e.task.ID,
		Description: e.task.Description,
		Priority:    e.priority,
	})
	s.log.Info("task cancelled",
		zap.String("entry", e.id),
		zap.String("task", e.task.Description))
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", p.value)
}
