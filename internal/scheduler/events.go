package scheduler

import "time"

// EventKind classifies scheduler notifications.
type EventKind string

const (
	EventQueued    EventKind = "queued"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventCancelled EventKind = "cancelled"
)

// Event is emitted for every observable state change of a queued entry.
// Subscribe to receive these for UI or audit logging.
type Event struct {
	Kind        EventKind `json:"kind"`
	EntryID     string    `json:"entry_id"`
	TaskID      string    `json:"task_id"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	Percent     int       `json:"percent,omitempty"`
	Step        string    `json:"step,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Subscribe returns a channel receiving scheduler events. Slow subscribers
// drop events rather than blocking the worker.
func (s *Scheduler) Subscribe(bufferSize int) chan Event {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ch := make(chan Event, bufferSize)
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (s *Scheduler) Unsubscribe(ch chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (s *Scheduler) emit(ev Event) {
	ev.Timestamp = time.Now()
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is slow.
		}
	}
}
