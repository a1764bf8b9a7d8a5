package state

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"tradedesk/internal/analysis"
)

// Status is the operator-facing session status.
type Status struct {
	Monitoring     bool              `json:"monitoring"`
	LastAction     string            `json:"last_action"`
	CurrentThought string            `json:"current_thought"`
	Intelligence   float64           `json:"intelligence"`
	Skills         []string          `json:"skills"`
	Sources        []analysis.Source `json:"sources"`
	LastSweep      time.Time         `json:"last_sweep"`
	// Error is the most recent operational failure; a clean sweep clears it.
	Error string `json:"error,omitempty"`
}

type Store struct {
	mu     sync.RWMutex
	status Status
}

func NewStore(initial Status) *Store {
	return &Store{status: clone(initial)}
}

func clone(s Status) Status {
	s.Skills = append([]string(nil), s.Skills...)
	s.Sources = append([]analysis.Source(nil), s.Sources...)
	return s
}

func (s *Store) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.status)
}

// Update applies fn to the status under the write lock.
func (s *Store) Update(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

func (s *Store) SetMonitoring(on bool) {
	s.Update(func(st *Status) { st.Monitoring = on })
}

func (s *Store) Monitoring() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Monitoring
}

func (s *Store) SetLastAction(action string) {
	s.Update(func(st *Status) { st.LastAction = action })
}

func (s *Store) SetError(err error) {
	s.Update(func(st *Status) {
		st.Error = ""
		if err != nil {
			st.Error = err.Error()
		}
	})
}

// persisted is the subset of Status that survives a restart.
type persisted struct {
	Intelligence float64           `json:"intelligence"`
	Skills       []string          `json:"skills"`
	Sources      []analysis.Source `json:"sources"`
	SavedAt      time.Time         `json:"saved_at"`
}

func (s *Store) Save(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(persisted{
		Intelligence: s.status.Intelligence,
		Skills:       s.status.Skills,
		Sources:      s.status.Sources,
		SavedAt:      time.Now().UTC(),
	}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load restores persisted fields. A missing file is not an error.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Intelligence > 0 {
		s.status.Intelligence = p.Intelligence
	}
	if len(p.Skills) > 0 {
		s.status.Skills = p.Skills
	}
	s.status.Sources = p.Sources
	return nil
}
