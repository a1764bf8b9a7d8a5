package desk

import (
	"sync"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelTrade Level = "trade"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Activity struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Feed keeps the most recent activity entries, newest first.
type Feed struct {
	mu      sync.Mutex
	limit   int
	entries []Activity
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = 100
	}
	return &Feed{limit: limit}
}

func (f *Feed) Add(entry Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append([]Activity{entry}, f.entries...)
	if len(f.entries) > f.limit {
		f.entries = f.entries[:f.limit]
	}
}

func (f *Feed) Entries() []Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Activity(nil), f.entries...)
}
