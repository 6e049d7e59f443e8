package mode

import (
	"sync"
)

// ChangeCallback is called once per confirmed mode transition.
type ChangeCallback func(from, to Mode)

// Manager holds the engine's mode as last reported, the macro recording flag
// and the global enable toggle.
type Manager struct {
	mu sync.RWMutex

	current   Mode
	recording bool
	enabled   bool

	nextID    int
	callbacks map[int]ChangeCallback
	order     []int
}

// NewManager creates a manager in unknown mode with the bridge enabled.
func NewManager() *Manager {
	return &Manager{
		enabled:   true,
		callbacks: make(map[int]ChangeCallback),
	}
}

// Current returns the current mode.
func (m *Manager) Current() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsInsertMode returns true if the engine is in insert mode.
func (m *Manager) IsInsertMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.IsInsert()
}

// IsRecordingInInsertMode returns true while a macro is being recorded or
// replayed and the engine is in insert mode.
func (m *Manager) IsRecordingInInsertMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recording && m.current.IsInsert()
}

// Recording reports whether a macro is being recorded, in any mode.
func (m *Manager) Recording() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recording
}

// SetRecording updates the recording flag. It does not emit a change.
func (m *Manager) SetRecording(recording bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recording = recording
}

// Enabled reports whether input is routed through the engine at all.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Toggle flips the enable flag and returns the new value.
func (m *Manager) Toggle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = !m.enabled
	return m.enabled
}

// Set records a mode reported by the engine. Callbacks run after the lock is
// released, and only if the mode actually changed.
func (m *Manager) Set(to Mode) {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return
	}
	m.current = to

	callbacks := make([]ChangeCallback, 0, len(m.order))
	for _, id := range m.order {
		callbacks = append(callbacks, m.callbacks[id])
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(from, to)
	}
}

// OnChange registers a callback for mode transitions. The returned function
// removes it.
func (m *Manager) OnChange(cb ChangeCallback) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.callbacks[id] = cb
	m.order = append(m.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.callbacks, id)
			for i, v := range m.order {
				if v == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}
