// Package scanstore persists accessibility scan reports in SQLite.
//
// Each scan row carries the full merged report as JSON plus denormalized
// counts for listing. Violations are exploded into their own table with
// sanitized node HTML so the API can serve them without re-parsing the
// report.
package scanstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/axedrive/axe"
	"github.com/hazyhaar/axedrive/dbopen"
	"github.com/hazyhaar/axedrive/idgen"
)

// Schema is the scanstore SQLite schema. Pass to dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS scans (
    id TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    engine_name TEXT NOT NULL DEFAULT '',
    engine_version TEXT NOT NULL DEFAULT '',
    violation_count INTEGER NOT NULL DEFAULT 0,
    pass_count INTEGER NOT NULL DEFAULT 0,
    incomplete_count INTEGER NOT NULL DEFAULT 0,
    inapplicable_count INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    report TEXT,
    created_at TEXT NOT NULL,
    finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_scans_created ON scans(created_at DESC);

CREATE TABLE IF NOT EXISTS scan_violations (
    scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
    rule_id TEXT NOT NULL,
    impact TEXT NOT NULL DEFAULT '',
    help_url TEXT NOT NULL DEFAULT '',
    node_html TEXT NOT NULL DEFAULT '',
    target TEXT NOT NULL DEFAULT '',
    target_summary TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_violations_scan ON scan_violations(scan_id);
`

// Scan statuses.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// ErrNotFound is returned when a scan ID does not exist.
var ErrNotFound = errors.New("scanstore: scan not found")

// Scan is one recorded scan.
type Scan struct {
	ID            string          `json:"id"`
	URL           string          `json:"url"`
	Status        string          `json:"status"`
	EngineName    string          `json:"engine_name,omitempty"`
	EngineVersion string          `json:"engine_version,omitempty"`
	Violations    int             `json:"violation_count"`
	Passes        int             `json:"pass_count"`
	Incomplete    int             `json:"incomplete_count"`
	Inapplicable  int             `json:"inapplicable_count"`
	Error         string          `json:"error,omitempty"`
	Report        json.RawMessage `json:"report,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// Violation is one denormalized violation node. TargetSummary is the short
// "tag#id.class" description derived from the node's HTML; Target is the
// engine's own selector path, kept verbatim.
type Violation struct {
	RuleID        string `json:"rule_id"`
	Impact        string `json:"impact,omitempty"`
	HelpURL       string `json:"help_url,omitempty"`
	HTML          string `json:"html"`
	Target        string `json:"target"`
	TargetSummary string `json:"target_summary,omitempty"`
	Summary       string `json:"summary,omitempty"`
}

// Store provides scan persistence on top of a SQLite database.
type Store struct {
	db  *sql.DB
	ids idgen.Generator
	now func() time.Time
}

// New creates a Store. The database must have Schema applied.
func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		ids: idgen.Default,
		now: time.Now,
	}
}

// Create inserts a new pending scan for the given URL and returns it.
func (s *Store) Create(ctx context.Context, url string) (*Scan, error) {
	scan := &Scan{
		ID:        s.ids(),
		URL:       url,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (id, url, status, created_at) VALUES (?, ?, ?, ?)`,
		scan.ID, scan.URL, scan.Status, scan.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("scanstore: create: %w", err)
	}
	return scan, nil
}

// MarkRunning transitions a scan to the running state.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scans SET status = ? WHERE id = ?`, StatusRunning, id)
	if err != nil {
		return fmt.Errorf("scanstore: mark running: %w", err)
	}
	return checkAffected(res)
}

// Complete records a finished scan: the full report, denormalized counts and
// the exploded violation rows. Node HTML is sanitized before storage.
func (s *Store) Complete(ctx context.Context, id string, results *axe.Results) error {
	report := results.Raw
	if report == nil {
		var err error
		report, err = json.Marshal(results)
		if err != nil {
			return fmt.Errorf("scanstore: marshal report: %w", err)
		}
	}
	finished := s.now().UTC().Format(time.RFC3339Nano)

	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE scans SET status = ?, engine_name = ?, engine_version = ?,
			    violation_count = ?, pass_count = ?, incomplete_count = ?,
			    inapplicable_count = ?, report = ?, finished_at = ?
			 WHERE id = ?`,
			StatusDone, results.TestEngine.Name, results.TestEngine.Version,
			len(results.Violations), len(results.Passes), len(results.Incomplete),
			len(results.Inapplicable), string(report), finished, id)
		if err != nil {
			return err
		}
		if err := checkAffected(res); err != nil {
			return err
		}

		for _, rule := range results.Violations {
			for _, node := range rule.Nodes {
				target, _ := json.Marshal(node.Target)
				// Summarize from the raw HTML: sanitization may strip the
				// very attributes the summary is built from.
				_, err := tx.ExecContext(ctx,
					`INSERT INTO scan_violations (scan_id, rule_id, impact, help_url, node_html, target, target_summary, summary)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					id, rule.ID, node.Impact, rule.HelpURL,
					SanitizeHTML(node.HTML), string(target),
					TargetSummary(node.HTML), node.Summary)
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("scanstore: complete: %w", err)
	}
	return nil
}

// Fail records a scan failure with its error message.
func (s *Store) Fail(ctx context.Context, id, message string) error {
	finished := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE scans SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		StatusFailed, message, finished, id)
	if err != nil {
		return fmt.Errorf("scanstore: fail: %w", err)
	}
	return checkAffected(res)
}

// Get returns a scan by ID including its stored report.
func (s *Store) Get(ctx context.Context, id string) (*Scan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, status, engine_name, engine_version,
		    violation_count, pass_count, incomplete_count, inapplicable_count,
		    error, report, created_at, finished_at
		 FROM scans WHERE id = ?`, id)
	scan, err := scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanstore: get: %w", err)
	}
	return scan, nil
}

// List returns the most recent scans, newest first, without their reports.
func (s *Store) List(ctx context.Context, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, status, engine_name, engine_version,
		    violation_count, pass_count, incomplete_count, inapplicable_count,
		    error, NULL, created_at, finished_at
		 FROM scans ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("scanstore: list: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanstore: list: %w", err)
		}
		scans = append(scans, *scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanstore: list: %w", err)
	}
	return scans, nil
}

// Violations returns the denormalized violation nodes for a scan.
func (s *Store) Violations(ctx context.Context, scanID string) ([]Violation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_id, impact, help_url, node_html, target, target_summary, summary
		 FROM scan_violations WHERE scan_id = ? ORDER BY rule_id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("scanstore: violations: %w", err)
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var v Violation
		if err := rows.Scan(&v.RuleID, &v.Impact, &v.HelpURL, &v.HTML, &v.Target, &v.TargetSummary, &v.Summary); err != nil {
			return nil, fmt.Errorf("scanstore: violations: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanstore: violations: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(row scanner) (*Scan, error) {
	var scan Scan
	var report sql.NullString
	var createdAt string
	var finishedAt sql.NullString
	err := row.Scan(&scan.ID, &scan.URL, &scan.Status,
		&scan.EngineName, &scan.EngineVersion,
		&scan.Violations, &scan.Passes, &scan.Incomplete, &scan.Inapplicable,
		&scan.Error, &report, &createdAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if report.Valid {
		scan.Report = json.RawMessage(report.String)
	}
	scan.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		scan.FinishedAt = &t
	}
	return &scan, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
