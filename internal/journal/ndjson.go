package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// NDJSON appends one JSON object per line. Each line carries a "kind" of
// trade or decision.
type NDJSON struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

type tradeLine struct {
	Kind string `json:"kind"`
	TradeEntry
}

type decisionLine struct {
	Kind string `json:"kind"`
	DecisionEntry
}

func NewNDJSON(path, runID string) (*NDJSON, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &NDJSON{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (n *NDJSON) RunID() string {
	return n.runID
}

func (n *NDJSON) RecordTrade(entry TradeEntry) error {
	entry.RunID = n.runID
	return n.append(tradeLine{Kind: "trade", TradeEntry: entry})
}

func (n *NDJSON) RecordDecision(entry DecisionEntry) error {
	entry.RunID = n.runID
	return n.append(decisionLine{Kind: "decision", DecisionEntry: entry})
}

func (n *NDJSON) append(line any) error {
	payload, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal journal line: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write journal line: %w", err)
	}
	if err := n.writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

func (n *NDJSON) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writer.Flush(); err != nil {
		_ = n.file.Close()
		return err
	}
	return n.file.Close()
}
