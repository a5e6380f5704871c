package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/oho/pdfbench/internal/bench"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    backend TEXT NOT NULL,
    input_dir TEXT,
    results_path TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    total INTEGER,
    succeeded INTEGER,
    success_rate REAL,
    total_size_mb REAL,
    total_time REAL,
    throughput REAL,
    total_pages INTEGER
);
CREATE INDEX IF NOT EXISTS idx_runs_backend ON runs(backend, started_at);

CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    file TEXT NOT NULL,
    size_mb REAL,
    pages INTEGER,
    process_time REAL,
    success INTEGER NOT NULL,
    output_size INTEGER,
    output_tokens INTEGER,
    error TEXT,
    error_kind TEXT,
    stderr_tail TEXT,
    md_count INTEGER,
    json_count INTEGER,
    file_count INTEGER,
    output_dir TEXT,
    warning TEXT
);
CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);
CREATE INDEX IF NOT EXISTS idx_records_file ON records(file);
`

const runColumns = `id, backend, input_dir, results_path, started_at, finished_at,
	total, succeeded, success_rate, total_size_mb, total_time, throughput, total_pages`

const recordColumns = `file, size_mb, pages, process_time, success, output_size, output_tokens,
	error, error_kind, stderr_tail, md_count, json_count, file_count, output_dir, warning`

// Database is the run ledger.
type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite pragmas
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=10000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}
	return &Database{db: db}, nil
}

func (d *Database) Initialize() error {
	_, err := d.db.Exec(schemaDDL)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) DB() *sql.DB {
	return d.db
}

// -- Run operations --

// SaveReport stores a finished run and its records in one transaction.
func (d *Database) SaveReport(report bench.Report, resultsPath string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	s := report.Summary
	_, err = tx.Exec(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Backend, report.InputDir, resultsPath,
		formatTime(report.StartedAt), formatTime(report.FinishedAt),
		s.Total, s.Succeeded, s.SuccessRate, s.TotalSizeMB, s.TotalTime, s.Throughput, s.TotalPages,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO records (run_id, seq, ` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, r := range report.Records {
		_, err := stmt.Exec(
			report.RunID, i, r.File, r.SizeMB, r.Pages, r.ProcessTime, r.Success,
			r.OutputSize, r.OutputTokens, r.Error, string(r.ErrorKind), r.StderrTail,
			r.MDCount, r.JSONCount, r.FileCount, r.OutputDir, r.Warning,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert record %s: %w", r.File, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns runs newest first, optionally for one backend only.
func (d *Database) ListRuns(backend string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + runColumns + " FROM runs"
	args := []any{}
	if backend != "" {
		query += " WHERE backend=?"
		args = append(args, backend)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return d.scanRuns(rows)
}

// GetRun returns a run with its records, or nil when it does not exist.
func (d *Database) GetRun(id string) (*Run, error) {
	row := d.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id=?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query("SELECT "+recordColumns+" FROM records WHERE run_id=? ORDER BY seq", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	r.Records = []bench.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		r.Records = append(r.Records, rec)
	}
	return &r, rows.Err()
}

// LatestRuns returns the most recent run of every backend.
func (d *Database) LatestRuns() ([]Run, error) {
	rows, err := d.db.Query(`
		SELECT ` + runColumns + ` FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY backend ORDER BY started_at DESC, rowid DESC) AS rn
			FROM runs
		) WHERE rn = 1 ORDER BY backend`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return d.scanRuns(rows)
}

// CompareFiles returns, per file, the latest record of every backend.
func (d *Database) CompareFiles() ([]FileComparison, error) {
	rows, err := d.db.Query(`
		SELECT backend, ` + recordColumns + ` FROM (
			SELECT runs.backend AS backend, records.*,
				ROW_NUMBER() OVER (
					PARTITION BY runs.backend, records.file
					ORDER BY runs.started_at DESC, records.id DESC
				) AS rn
			FROM records JOIN runs ON records.run_id = runs.id
		) WHERE rn = 1 ORDER BY file, backend`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []FileComparison
	for rows.Next() {
		var backend string
		rec, err := scanRecord(rows, &backend)
		if err != nil {
			return nil, err
		}
		if n := len(result); n == 0 || result[n-1].File != rec.File {
			result = append(result, FileComparison{File: rec.File, Results: map[string]bench.Record{}})
		}
		result[len(result)-1].Results[backend] = rec
	}
	return result, rows.Err()
}

// DeleteRun removes a run and its records.
func (d *Database) DeleteRun(id string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	// pragmas are per connection, so the cascade is not relied upon
	if _, err := tx.Exec("DELETE FROM records WHERE run_id=?", id); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec("DELETE FROM runs WHERE id=?", id); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	s := &r.Summary
	err := row.Scan(
		&r.ID, &r.Backend, &r.InputDir, &r.ResultsPath, &r.StartedAt, &r.FinishedAt,
		&s.Total, &s.Succeeded, &s.SuccessRate, &s.TotalSizeMB, &s.TotalTime, &s.Throughput, &s.TotalPages,
	)
	return r, err
}

func (d *Database) scanRuns(rows *sql.Rows) ([]Run, error) {
	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// scanRecord reads recordColumns, preceded by any extra destinations.
func scanRecord(row scanner, extra ...any) (bench.Record, error) {
	var r bench.Record
	var kind string
	dest := append(extra,
		&r.File, &r.SizeMB, &r.Pages, &r.ProcessTime, &r.Success, &r.OutputSize, &r.OutputTokens,
		&r.Error, &kind, &r.StderrTail, &r.MDCount, &r.JSONCount, &r.FileCount, &r.OutputDir, &r.Warning,
	)
	if err := row.Scan(dest...); err != nil {
		return r, err
	}
	r.ErrorKind = bench.ErrorKind(kind)
	return r, nil
}
