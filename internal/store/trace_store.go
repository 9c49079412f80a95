// Package store persists inference traces so agents and operators can
// review what was asked of a knowledge base and what it answered.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"agentkb/internal/core"
	"agentkb/internal/logging"
	"agentkb/internal/term"
)

// TraceStore records every inference the engine answers.
//
// Architecture:
// - Implements core.Tracer for write operations
// - Backed by SQLite (modernc, no cgo)
// - Thread-safe with read-write mutex
type TraceStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// TraceRecord is a persisted inference.
type TraceRecord struct {
	ID         string    `json:"id"`
	Context    string    `json:"context"`
	Goal       string    `json:"goal"`
	Result     string    `json:"result"`
	Hypotheses []string  `json:"hypotheses,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"timestamp"`
}

// TraceStats summarises the stored traces.
type TraceStats struct {
	Total    int64
	ByResult map[string]int64
	AvgMs    float64
}

// NewTraceStore opens (creating if needed) the trace database at path. Use
// ":memory:" for a throwaway store.
func NewTraceStore(path string) (*TraceStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewTraceStore")
	defer timer.Stop()

	logging.StoreDebug("Initializing TraceStore at path: %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create directory for %s: %v", path, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
	}

	store := &TraceStore{db: db, dbPath: path}
	if err := store.ensureSchema(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to ensure trace schema: %v", err)
		db.Close()
		return nil, fmt.Errorf("failed to ensure trace schema: %w", err)
	}

	logging.Store("TraceStore initialized at %s", path)
	return store, nil
}

// ensureSchema creates the inference_traces table if it doesn't exist.
func (ts *TraceStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS inference_traces (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		context TEXT NOT NULL,
		goal TEXT NOT NULL,
		result TEXT NOT NULL,
		hypotheses TEXT,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_traces_context ON inference_traces(context);
	CREATE INDEX IF NOT EXISTS idx_traces_created ON inference_traces(created_at);
	`
	_, err := ts.db.Exec(schema)
	return err
}

// Path returns the database path.
func (ts *TraceStore) Path() string { return ts.dbPath }

// ========== Write Operations (core.Tracer) ==========

// RecordInference persists one engine inference.
func (ts *TraceStore) RecordInference(trace core.InferenceTrace) error {
	created := trace.Timestamp
	if created.IsZero() {
		created = time.Now()
	}
	return ts.Store(&TraceRecord{
		ID:         uuid.NewString(),
		Context:    trace.Context,
		Goal:       trace.Goal,
		Result:     trace.Result.String(),
		Hypotheses: trace.Hypotheses,
		DurationMs: trace.Duration.Milliseconds(),
		CreatedAt:  created,
	})
}

// Store persists a trace record. A record with an empty ID gets a fresh one.
func (ts *TraceStore) Store(rec *TraceRecord) error {
	timer := logging.StartTimer(logging.CategoryStore, "StoreTrace")
	defer timer.Stop()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if _, ok := term.ParseTribool(rec.Result); !ok {
		return fmt.Errorf("trace %s: unknown result %q", rec.ID, rec.Result)
	}

	hypsJSON, err := json.Marshal(rec.Hypotheses)
	if err != nil {
		return fmt.Errorf("trace %s: %w", rec.ID, err)
	}

	logging.StoreDebug("Storing trace: id=%s context=%s goal=%s result=%s", rec.ID, rec.Context, rec.Goal, rec.Result)

	_, err = ts.db.Exec(`
		INSERT OR REPLACE INTO inference_traces
		(id, context, goal, result, hypotheses, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Context, rec.Goal, rec.Result, string(hypsJSON),
		rec.DurationMs, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to store trace %s: %v", rec.ID, err)
		return err
	}
	return nil
}

// ========== Read Operations ==========

// Recent returns the most recent traces, newest first.
func (ts *TraceStore) Recent(limit int) ([]TraceRecord, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Recent")
	defer timer.Stop()

	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := ts.db.Query(`
		SELECT id, context, goal, result, hypotheses, duration_ms, created_at
		FROM inference_traces
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, limit)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to retrieve recent traces: %v", err)
		return nil, err
	}
	defer rows.Close()

	return scanTraces(rows)
}

// ByContext returns the traces of one context, newest first.
func (ts *TraceStore) ByContext(context string, limit int) ([]TraceRecord, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ByContext")
	defer timer.Stop()

	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	logging.StoreDebug("Retrieving traces for context=%s (limit=%d)", context, limit)

	rows, err := ts.db.Query(`
		SELECT id, context, goal, result, hypotheses, duration_ms, created_at
		FROM inference_traces
		WHERE context = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, context, limit)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to retrieve traces for context=%s: %v", context, err)
		return nil, err
	}
	defer rows.Close()

	return scanTraces(rows)
}

// Stats counts traces per result value.
func (ts *TraceStore) Stats() (TraceStats, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	stats := TraceStats{ByResult: make(map[string]int64)}
	var avg sql.NullFloat64
	if err := ts.db.QueryRow("SELECT COUNT(*), AVG(duration_ms) FROM inference_traces").Scan(&stats.Total, &avg); err != nil {
		return stats, err
	}
	stats.AvgMs = avg.Float64

	rows, err := ts.db.Query("SELECT result, COUNT(*) FROM inference_traces GROUP BY result")
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var result string
		var count int64
		if err := rows.Scan(&result, &count); err != nil {
			return stats, err
		}
		stats.ByResult[result] = count
	}
	return stats, rows.Err()
}

// Cleanup removes traces older than retention.
func (ts *TraceStore) Cleanup(retention time.Duration) (int64, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}

	cutoff := time.Now().Add(-retention).UnixNano()
	result, err := ts.db.Exec(`DELETE FROM inference_traces WHERE created_at < ?`, cutoff)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to cleanup old traces: %v", err)
		return 0, err
	}

	n, _ := result.RowsAffected()
	logging.Store("Cleaned up %d old traces (retention=%v)", n, retention)
	return n, nil
}

// Close closes the database.
func (ts *TraceStore) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.db.Close()
}

// ========== Helper Methods ==========

func scanTraces(rows *sql.Rows) ([]TraceRecord, error) {
	var traces []TraceRecord
	for rows.Next() {
		var (
			rec      TraceRecord
			hypsJSON sql.NullString
			created  int64
		)
		if err := rows.Scan(&rec.ID, &rec.Context, &rec.Goal, &rec.Result, &hypsJSON, &rec.DurationMs, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(0, created)
		if hypsJSON.Valid && hypsJSON.String != "" && hypsJSON.String != "null" {
			if err := json.Unmarshal([]byte(hypsJSON.String), &rec.Hypotheses); err != nil {
				logging.StoreDebug("Trace %s: bad hypotheses column: %v", rec.ID, err)
			}
		}
		traces = append(traces, rec)
	}
	return traces, rows.Err()
}
