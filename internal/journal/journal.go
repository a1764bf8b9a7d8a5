// Package journal archives fills and gate outcomes. Sinks are write-mostly
// and never feed back into trading.
package journal

import (
	"fmt"
	"time"
)

type TradeEntry struct {
	RunID     string    `json:"run_id"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Channel   string    `json:"channel"`
	Rationale string    `json:"rationale"`
	Forced    bool      `json:"forced,omitempty"`
}

// Outcome of one gate evaluation.
type Outcome string

const (
	Executed Outcome = "executed"
	Rejected Outcome = "rejected"
	Held     Outcome = "hold"
	Failed   Outcome = "failed"
)

type DecisionEntry struct {
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	Symbol       string    `json:"symbol"`
	Decision     string    `json:"decision"`
	Confidence   float64   `json:"confidence"`
	Price        float64   `json:"price"`
	Rationale    string    `json:"rationale"`
	Outcome      Outcome   `json:"outcome"`
	RejectReason string    `json:"reject_reason,omitempty"`
	TradeID      string    `json:"trade_id,omitempty"`
	Fallback     bool      `json:"fallback,omitempty"`
}

type Journal interface {
	RecordTrade(entry TradeEntry) error
	RecordDecision(entry DecisionEntry) error
	Close() error
}

type Kind string

const (
	KindNone   Kind = "none"
	KindNDJSON Kind = "ndjson"
	KindSQLite Kind = "sqlite"
)

// Open builds the sink named by kind. path is ignored for KindNone.
func Open(kind Kind, path, runID string) (Journal, error) {
	switch kind {
	case KindNone, "":
		return Noop{}, nil
	case KindNDJSON:
		return NewNDJSON(path, runID)
	case KindSQLite:
		return NewSQLite(path, runID)
	default:
		return nil, fmt.Errorf("unknown journal kind: %q", kind)
	}
}

type Noop struct{}

func (Noop) RecordTrade(TradeEntry) error       { return nil }
func (Noop) RecordDecision(DecisionEntry) error { return nil }
func (Noop) Close() error                       { return nil }
