package timesync

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/maximewewer/ntp-sync/pkg/logger"
)

// ListenerID identifies a registered listener so it can be removed
type ListenerID string

// HistoryHandler receives a private copy of the history after each successful sync
type HistoryHandler func(HistoryState)

type listenerEntry struct {
	id      ListenerID
	handler HistoryHandler
}

// listenerSet keeps handlers in registration order
type listenerSet struct {
	mu      sync.RWMutex
	entries []listenerEntry
}

func (s *listenerSet) add(h HistoryHandler) ListenerID {
	id := ListenerID(uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, listenerEntry{id: id, handler: h})
	return id
}

func (s *listenerSet) remove(id ListenerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *listenerSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// notify calls every handler synchronously, each with its own snapshot. A
// panicking handler is logged and does not stop the others.
func (s *listenerSet) notify(snapshot func() HistoryState) {
	s.mu.RLock()
	entries := make([]listenerEntry, len(s.entries))
	copy(entries, s.entries)
	s.mu.RUnlock()

	for _, e := range entries {
		callListener(e, snapshot())
	}
}

func callListener(e listenerEntry, state HistoryState) {
	defer func() {
		if r := recover(); r != nil {
			logger.SafeError("timesync", "Listener panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"listener": string(e.id),
			})
		}
	}()
	e.handler(state)
}
