package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/replay"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/txlog"
)

// ErrRunNotFound is returned by ReadRun for an unknown run ID.
var ErrRunNotFound = errors.New("replay run not found")

// Run is the summary of one replay of a log against a service.
type Run struct {
	ID          string    `json:"id"`
	Service     string    `json:"service"`
	Interface   string    `json:"interface"`
	LogPath     string    `json:"log_path"`
	SpecHash    string    `json:"spec_hash,omitempty"`
	ToolVersion string    `json:"tool_version"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Total       int       `json:"total"`
	Mismatched  int       `json:"mismatched"`
	AllMatched  bool      `json:"all_matched"`
}

// NewRunID returns a time-sortable UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RunFromReport fills the counters of run from report.
func RunFromReport(run Run, report *replay.Report) Run {
	run.Total = len(report.Results)
	run.Mismatched = len(report.Mismatches())
	run.AllMatched = report.AllMatched
	return run
}

// WriteRun stores run and its results in one transaction. An empty run.ID
// is replaced by a new UUIDv7. Returns the run ID.
func (s *Store) WriteRun(ctx context.Context, run Run, results []replay.Result) (string, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO replay_runs
		(id, service, interface, log_path, spec_hash, tool_version, started_at, finished_at, total, mismatched, all_matched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Service,
		run.Interface,
		run.LogPath,
		run.SpecHash,
		run.ToolVersion,
		run.StartedAt.UnixNano(),
		run.FinishedAt.UnixNano(),
		run.Total,
		run.Mismatched,
		boolToInt(run.AllMatched),
	)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO replay_results
		(run_id, seq, code, flags, expected_status, actual_status, error, matched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("write run: prepare results: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		_, err := stmt.ExecContext(ctx,
			run.ID,
			res.Index,
			res.Code,
			res.Flags,
			int32(res.Expected),
			int32(res.Actual),
			res.Error,
			boolToInt(res.Matched),
		)
		if err != nil {
			return "", fmt.Errorf("write run: result %d: %w", res.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write run: commit: %w", err)
	}
	return run.ID, nil
}

// ListRuns returns every run, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service, interface, log_path, spec_hash, tool_version, started_at, finished_at, total, mismatched, all_matched
		FROM replay_runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run, or ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, service, interface, log_path, spec_hash, tool_version, started_at, finished_at, total, mismatched, all_matched
		FROM replay_runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ReadResults returns the results of a run ordered by seq. With
// mismatchedOnly, matched results are skipped.
func (s *Store) ReadResults(ctx context.Context, runID string, mismatchedOnly bool) ([]replay.Result, error) {
	query := `
		SELECT seq, code, flags, expected_status, actual_status, error, matched
		FROM replay_results
		WHERE run_id = ?`
	if mismatchedOnly {
		query += ` AND matched = 0`
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []replay.Result{}
	for rows.Next() {
		var (
			res              replay.Result
			expected, actual int32
			matched          int
		)
		if err := rows.Scan(&res.Index, &res.Code, &res.Flags, &expected, &actual, &res.Error, &matched); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Expected = txlog.Status(expected)
		res.Actual = txlog.Status(actual)
		res.Matched = matched != 0
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run               Run
		started, finished int64
		allMatched        int
	)
	err := row.Scan(
		&run.ID,
		&run.Service,
		&run.Interface,
		&run.LogPath,
		&run.SpecHash,
		&run.ToolVersion,
		&started,
		&finished,
		&run.Total,
		&run.Mismatched,
		&allMatched,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.Unix(0, started).UTC()
	run.FinishedAt = time.Unix(0, finished).UTC()
	run.AllMatched = allMatched != 0
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
