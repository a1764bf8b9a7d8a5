package schedule

import (
	"fmt"
	"sync"
	"time"
)

// Manual is a virtual-time Runner. Tasks run only inside Advance, in due
// order, ties broken by registration order.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tasks   []*manualTask
	running bool
}

type manualTask struct {
	name  string
	every time.Duration
	next  time.Time
	fn    func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Every(name string, d time.Duration, fn func()) error {
	if d <= 0 {
		return fmt.Errorf("register %s: %w", name, ErrInvalidInterval)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, &manualTask{name: name, every: d, next: m.now.Add(d), fn: fn})
	return nil
}

func (m *Manual) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	for _, t := range m.tasks {
		t.next = m.now.Add(t.every)
	}
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d, running every task that falls due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		if !m.running {
			break
		}
		task := m.nextDue(target)
		if task == nil {
			break
		}
		m.now = task.next
		task.next = task.next.Add(task.every)
		fn := task.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) nextDue(target time.Time) *manualTask {
	var due *manualTask
	for _, t := range m.tasks {
		if t.next.After(target) {
			continue
		}
		if due == nil || t.next.Before(due.next) {
			due = t
		}
	}
	return due
}
