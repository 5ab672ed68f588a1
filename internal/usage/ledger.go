// Package usage keeps a local SQLite ledger of per-call token spend so the
// CLI can answer "what did this cost me" without the provider console.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tickerlab/internal/engine"
	"tickerlab/internal/logging"
)

// Ledger records one row per model call.
type Ledger struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// NewLedger opens or creates the ledger database under dir.
func NewLedger(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage directory: %w", err)
	}
	dbPath := filepath.Join(dir, "usage.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal_mode: %w", err)
	}

	l := &Ledger{db: db, dbPath: dbPath}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		engine_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		model TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_ts ON usage_log(ts);
	CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_log(model);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize usage schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.dbPath
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends one call to the ledger. Accounting must never interfere
// with a workflow, so failures are logged and swallowed.
func (l *Ledger) Record(ctx context.Context, engineID, subject, modelID string, usage engine.TokenUsage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO usage_log (ts, engine_id, subject, model, prompt_tokens, completion_tokens, total_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UnixMilli(), engineID, subject, modelID,
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens,
	)
	if err != nil {
		logging.Get(logging.CategoryUsage).Error("[Ledger] record failed: engine=%s model=%s: %v", engineID, modelID, err)
		return
	}
	logging.UsageDebug("[Ledger] recorded: engine=%s subject=%q model=%s tokens=%d", engineID, subject, modelID, usage.TotalTokens)
}

// ModelTotals aggregates the ledger per model.
type ModelTotals struct {
	ModelID          string
	Calls            int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Summary aggregates calls recorded at or after since, heaviest model
// first.
func (l *Ledger) Summary(ctx context.Context, since time.Time) ([]ModelTotals, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx,
		`SELECT model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		 FROM usage_log WHERE ts >= ?
		 GROUP BY model ORDER BY SUM(total_tokens) DESC`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var out []ModelTotals
	for rows.Next() {
		var mt ModelTotals
		if err := rows.Scan(&mt.ModelID, &mt.Calls, &mt.PromptTokens, &mt.CompletionTokens, &mt.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		out = append(out, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage rows: %w", err)
	}
	return out, nil
}
