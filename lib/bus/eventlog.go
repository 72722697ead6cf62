package bus

import "sync"

// memoryEventLog is an in-process EventLog keeping all events in a map.
// Useful for tests and for setups that want replay durability without a
// database file.
type memoryEventLog struct {
	mu     sync.RWMutex
	events map[string]Event
}

// NewMemoryEventLog creates an EventLog backed by process memory.
func NewMemoryEventLog() EventLog {
	return &memoryEventLog{events: make(map[string]Event)}
}

func (m *memoryEventLog) SaveEvent(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return nil
}

func (m *memoryEventLog) GetEvent(id string) (Event, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	return e, ok, nil
}

func (m *memoryEventLog) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string]Event)
	return nil
}
