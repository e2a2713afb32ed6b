// Package journal keeps a local SQLite history of runs, course outcomes and the
// participants each run captured.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lance13c/roster/internal/domain"
)

// DB represents the journal database connection
type DB struct {
	conn *sql.DB
}

// New opens the journal at dbPath, creating the file and schema as needed
func New(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// Enable foreign keys
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.InitSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the journal tables if they don't exist
func (db *DB) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		courses INTEGER NOT NULL DEFAULT 0,
		participants INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running'
	);

	CREATE TABLE IF NOT EXISTS course_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		course_id TEXT NOT NULL,
		ledger TEXT NOT NULL,
		registered INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		sweeps INTEGER NOT NULL DEFAULT 0,
		participants INTEGER NOT NULL DEFAULT 0,
		appended INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_result_id INTEGER NOT NULL,
		course_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		captured_at TIMESTAMP NOT NULL,
		FOREIGN KEY (course_result_id) REFERENCES course_results(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_results_run_id ON course_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_course_id ON course_results(course_id);
	CREATE INDEX IF NOT EXISTS idx_participants_email ON participants(email);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// StartRun records the beginning of a run and returns its id
func (db *DB) StartRun(startedAt time.Time) (int64, error) {
	result, err := db.conn.Exec(`INSERT INTO runs (started_at, status) VALUES (?, ?)`, startedAt, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// FinishRun stamps the run with its end time, totals and final status
func (db *DB) FinishRun(runID int64, finishedAt time.Time, status string) error {
	query := `
		UPDATE runs SET
			finished_at = ?,
			status = ?,
			courses = (SELECT COUNT(*) FROM course_results WHERE run_id = ?),
			participants = (SELECT COALESCE(SUM(participants), 0) FROM course_results WHERE run_id = ?)
		WHERE id = ?
	`

	result, err := db.conn.Exec(query, finishedAt, status, runID, runID, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d not found", runID)
	}
	return nil
}

// SaveCourseResult stores a course outcome with the participants it captured
func (db *DB) SaveCourseResult(res *CourseResult, participants []domain.Participant) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO course_results (run_id, course_id, ledger, registered, failures, sweeps, participants, appended, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.RunID,
		res.CourseID,
		res.Ledger,
		res.Registered,
		res.Failures,
		res.Sweeps,
		len(participants),
		res.Appended,
		nullString(res.Error),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save course result: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO participants (course_result_id, course_id, name, email, captured_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range participants {
		if _, err := stmt.Exec(id, p.CourseID, p.Name, p.Email, p.CapturedAt); err != nil {
			return 0, fmt.Errorf("failed to save participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	res.ID = id
	res.Participants = len(participants)
	return id, nil
}

// GetRecentRuns retrieves the most recent runs, newest first
func (db *DB) GetRecentRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, finished_at, courses, participants, status
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var finished sql.NullTime
		err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&finished,
			&run.Courses,
			&run.Participants,
			&run.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetCourseResults retrieves the course outcomes of a run in the order they were recorded
func (db *DB) GetCourseResults(runID int64) ([]CourseResult, error) {
	query := `
		SELECT id, run_id, course_id, ledger, registered, failures, sweeps, participants, appended, error, created_at
		FROM course_results
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := db.conn.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query course results: %w", err)
	}
	defer rows.Close()

	var results []CourseResult
	for rows.Next() {
		var res CourseResult
		var errorStr sql.NullString
		err := rows.Scan(
			&res.ID,
			&res.RunID,
			&res.CourseID,
			&res.Ledger,
			&res.Registered,
			&res.Failures,
			&res.Sweeps,
			&res.Participants,
			&res.Appended,
			&errorStr,
			&res.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course result: %w", err)
		}
		if errorStr.Valid {
			res.Error = errorStr.String
		}
		results = append(results, res)
	}

	return results, rows.Err()
}

// CountParticipants returns how many participants have been captured for a course across all runs
func (db *DB) CountParticipants(courseID string) (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM participants WHERE course_id = ?`, courseID).Scan(&count)
	return count, err
}

// GetStatistics returns journal totals
func (db *DB) GetStatistics() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	for key, query := range map[string]string{
		"total_runs":         "SELECT COUNT(*) FROM runs",
		"total_participants": "SELECT COUNT(*) FROM participants",
		"distinct_emails":    "SELECT COUNT(DISTINCT lower(email)) FROM participants",
		"failed_courses":     "SELECT COUNT(*) FROM course_results WHERE error IS NOT NULL AND error != ''",
	} {
		var n int
		if err := db.conn.QueryRow(query).Scan(&n); err != nil {
			return nil, err
		}
		stats[key] = n
	}

	return stats, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
