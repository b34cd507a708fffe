// Package journal persists one record per reconciliation cycle in a local
// SQLite database, so operators can answer "what did the last N cycles do"
// without the tracker being reachable. The journal is write-only
// observability: the engine never reads it to make decisions, keeping every
// cycle cold-start per the reconciliation model.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ironverse/guardian/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Journal is an open run journal.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path and applies the
// schema. Safe to call on every invocation.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// Single connection: one writer, and the scheduler guarantees one
	// cycle at a time anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record persists one cycle report.
func (j *Journal) Record(ctx context.Context, report *models.CycleReport) error {
	paths := make([]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		paths = append(paths, v.Path+"="+string(v.Kind))
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, outcome, branch, head_sha,
			violated_paths, target_sha, restored_sha, alert_url, alert_key, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(report.Outcome),
		report.Branch,
		report.HeadSHA,
		strings.Join(paths, ","),
		report.TargetSHA,
		report.RestoredSHA,
		report.AlertURL,
		report.AlertKey,
		report.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}
	return nil
}

// Recent returns the most recent cycle records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.CycleReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, outcome, branch, head_sha,
			violated_paths, target_sha, restored_sha, alert_url, alert_key, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var reports []models.CycleReport
	for rows.Next() {
		var r models.CycleReport
		var started, finished, outcome, paths string
		if err := rows.Scan(&r.RunID, &started, &finished, &outcome, &r.Branch, &r.HeadSHA,
			&paths, &r.TargetSHA, &r.RestoredSHA, &r.AlertURL, &r.AlertKey, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan cycle row: %w", err)
		}
		r.Outcome = models.CycleOutcome(outcome)
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("failed to parse cycle start time %q: %w", started, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("failed to parse cycle finish time %q: %w", finished, err)
		}
		for _, pair := range strings.Split(paths, ",") {
			if pair == "" {
				continue
			}
			path, kind, _ := strings.Cut(pair, "=")
			r.Violations = append(r.Violations, models.Violation{
				Path: path,
				Kind: models.ViolationKind(kind),
			})
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
