package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"fall-detection/fall"
	"fall-detection/models"
	"fall-detection/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" && !strings.HasPrefix(dbPath, ":memory:") {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	// Busy timeout in milliseconds, foreign keys for cascading event deletes
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}
	if !strings.Contains(dataSourceName, "_foreign_keys") {
		dataSourceName += "&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist
func createTables(db *sql.DB) error {
	createRunsTable := `
    CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        created_at DATETIME NOT NULL,
        source TEXT NOT NULL,
        source_type TEXT NOT NULL,
        total_frames INTEGER NOT NULL DEFAULT 0,
        fps INTEGER NOT NULL DEFAULT 0,
        total_falls INTEGER NOT NULL DEFAULT 0,
        alert_sent INTEGER NOT NULL DEFAULT 0,
        summary TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
    `

	createFallEventsTable := `
    CREATE TABLE IF NOT EXISTS fall_events (
        run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
        frame INTEGER NOT NULL,
        timestamp REAL NOT NULL,
        confidence REAL NOT NULL,
        datetime TEXT NOT NULL,
        PRIMARY KEY (run_id, frame)
    );
    `

	if _, err := db.Exec(createRunsTable); err != nil {
		return fmt.Errorf("error creating runs table: %w", err)
	}
	if _, err := db.Exec(createFallEventsTable); err != nil {
		return fmt.Errorf("error creating fall_events table: %w", err)
	}
	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// StoreRun inserts the run and its fall events in one transaction.
func (db *SQLiteClient) StoreRun(run *models.Run) error {
	if run.ID == "" {
		run.ID = utils.GenerateRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("error marshaling summary: %w", err)
	}

	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO runs (
			id, created_at, source, source_type, total_frames,
			fps, total_falls, alert_sent, summary
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.CreatedAt,
		run.Source,
		run.SourceType,
		run.TotalFrames,
		run.FPS,
		run.TotalFalls,
		boolToInt(run.AlertSent),
		string(summaryJSON),
	)
	if err != nil {
		tx.Rollback()
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("run %s already exists: %w", run.ID, err)
		}
		return fmt.Errorf("error inserting run: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO fall_events (run_id, frame, timestamp, confidence, datetime) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range run.FallEvents {
		if _, err := stmt.Exec(run.ID, e.FrameIndex, e.TimestampSeconds, e.ConfidencePercent, e.WallClockTime); err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting fall event: %w", err)
		}
	}

	return tx.Commit()
}

const runColumns = "id, created_at, source, source_type, total_frames, fps, total_falls, alert_sent, summary"

// GetRun returns the run with its events, or ErrRunNotFound.
func (db *SQLiteClient) GetRun(id string) (*models.Run, error) {
	row := db.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, err
	}

	events, err := db.getFallEvents(id)
	if err != nil {
		return nil, err
	}
	run.FallEvents = events
	return run, nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all runs.
func (db *SQLiteClient) ListRuns(limit int) ([]models.Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, *run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	for i := range runs {
		events, err := db.getFallEvents(runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].FallEvents = events
	}
	return runs, nil
}

// DeleteRun removes a run and its events.
func (db *SQLiteClient) DeleteRun(id string) error {
	res, err := db.db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func (db *SQLiteClient) getFallEvents(runID string) ([]fall.FallEvent, error) {
	rows, err := db.db.Query("SELECT frame, timestamp, confidence, datetime FROM fall_events WHERE run_id = ? ORDER BY frame", runID)
	if err != nil {
		return nil, fmt.Errorf("error querying fall events: %w", err)
	}
	defer rows.Close()

	events := []fall.FallEvent{}
	for rows.Next() {
		var e fall.FallEvent
		if err := rows.Scan(&e.FrameIndex, &e.TimestampSeconds, &e.ConfidencePercent, &e.WallClockTime); err != nil {
			return nil, fmt.Errorf("error scanning fall event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var run models.Run
	var alertSent int
	var summaryJSON sql.NullString

	err := row.Scan(
		&run.ID,
		&run.CreatedAt,
		&run.Source,
		&run.SourceType,
		&run.TotalFrames,
		&run.FPS,
		&run.TotalFalls,
		&alertSent,
		&summaryJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning run: %w", err)
	}

	run.AlertSent = alertSent == 1
	if summaryJSON.Valid && summaryJSON.String != "" {
		if err := json.Unmarshal([]byte(summaryJSON.String), &run.Summary); err != nil {
			return nil, fmt.Errorf("error unmarshaling summary: %w", err)
		}
	}
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
