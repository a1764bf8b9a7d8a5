package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite archives trades and decisions in a local database file.
type SQLite struct {
	runID string
	db    *sql.DB
	mu    sync.Mutex
}

func NewSQLite(path, runID string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{runID: runID, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("sqlite journal opened", "path", path, "run_id", runID)
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id         TEXT PRIMARY KEY,
			run_id     TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			symbol     TEXT NOT NULL,
			side       TEXT NOT NULL,
			price      REAL NOT NULL,
			size       REAL NOT NULL,
			channel    TEXT,
			rationale  TEXT,
			forced     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(timestamp)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id        TEXT NOT NULL,
			timestamp     INTEGER NOT NULL,
			symbol        TEXT NOT NULL,
			decision      TEXT,
			confidence    REAL,
			price         REAL,
			rationale     TEXT,
			outcome       TEXT,
			reject_reason TEXT,
			trade_id      TEXT,
			fallback      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(timestamp)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLite) RecordTrade(e TradeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO trades (id, run_id, timestamp, symbol, side, price, size, channel, rationale, forced)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, s.runID, e.Timestamp.UnixMilli(), e.Symbol, e.Side, e.Price, e.Size, e.Channel, e.Rationale, boolInt(e.Forced),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (s *SQLite) RecordDecision(e DecisionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO decisions (run_id, timestamp, symbol, decision, confidence, price, rationale, outcome, reject_reason, trade_id, fallback)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, e.Timestamp.UnixMilli(), e.Symbol, e.Decision, e.Confidence, e.Price, e.Rationale, string(e.Outcome), e.RejectReason, e.TradeID, boolInt(e.Fallback),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// Trades returns up to limit archived trades, newest first, across runs.
func (s *SQLite) Trades(limit int) ([]TradeEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, timestamp, symbol, side, price, size, channel, rationale, forced
		 FROM trades ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeEntry
	for rows.Next() {
		var (
			e      TradeEntry
			ts     int64
			forced int
		)
		if err := rows.Scan(&e.ID, &e.RunID, &ts, &e.Symbol, &e.Side, &e.Price, &e.Size, &e.Channel, &e.Rationale, &forced); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.Forced = forced != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// DecisionCounts tallies archived decisions by outcome for one run, or all
// runs when runID is empty.
func (s *SQLite) DecisionCounts(runID string) (map[Outcome]int, error) {
	rows, err := s.db.Query(
		`SELECT outcome, COUNT(*) FROM decisions WHERE (? = '' OR run_id = ?) GROUP BY outcome`, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan decision count: %w", err)
		}
		counts[Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
