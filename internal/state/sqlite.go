package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'pending'
);
CREATE TABLE IF NOT EXISTS stages (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id       TEXT NOT NULL,
    stage        TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    detail       TEXT NOT NULL DEFAULT '',
    scratch_path TEXT NOT NULL DEFAULT '',
    started_at   TEXT NOT NULL,
    finished_at  TEXT NOT NULL DEFAULT ''
);
`

// SQLiteState journals every run and stage outcome. The journal is history:
// nothing reads it to decide whether a stage can be skipped.
type SQLiteState struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
	runID  string
	now    func() time.Time
}

func NewSQLite(dbPath string) (*SQLiteState, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLiteState{db: db, dbPath: dbPath, now: time.Now}

	if err := s.recover(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to recover: %w", err)
	}

	return s, nil
}

// recover marks stages left pending by an interrupted run as failed and
// removes the scratch directories they were writing to.
func (s *SQLiteState) recover() error {
	rows, err := s.db.Query("SELECT id, run_id, stage, scratch_path FROM stages WHERE status = 'pending'")
	if err != nil {
		return err
	}
	defer rows.Close()

	type pending struct {
		id      int64
		runID   string
		stage   string
		scratch string
	}

	var stale []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.runID, &p.stage, &p.scratch); err != nil {
			return err
		}
		stale = append(stale, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	log := logger.Logger()
	finished := s.now().UTC().Format(time.RFC3339)

	for _, p := range stale {
		log.Warnf("recovering from interrupted %s stage (run %s)", p.stage, p.runID)

		if p.scratch != "" {
			if err := os.RemoveAll(p.scratch); err != nil {
				log.Warnf("failed to remove %s: %v", p.scratch, err)
			}
		}

		if _, err := s.db.Exec(
			"UPDATE stages SET status = ?, detail = ?, finished_at = ? WHERE id = ?",
			string(domain.StatusFailed), "interrupted", finished, p.id); err != nil {
			return fmt.Errorf("failed to close stage %s: %w", p.stage, err)
		}
		if _, err := s.db.Exec(
			"UPDATE runs SET status = ?, finished_at = ? WHERE id = ? AND status = 'pending'",
			string(domain.StatusFailed), finished, p.runID); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteState) StartRun() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	if _, err := s.db.Exec("INSERT INTO runs (id, started_at) VALUES (?, ?)",
		id, s.now().UTC().Format(time.RFC3339)); err != nil {
		return "", err
	}
	s.runID = id
	return id, nil
}

func (s *SQLiteState) EndRun(status domain.StageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runID == "" {
		return nil
	}
	_, err := s.db.Exec("UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
		string(status), s.now().UTC().Format(time.RFC3339), s.runID)
	return err
}

func (s *SQLiteState) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Begin records stage as pending. scratch, when set, is removed by recovery
// if the process dies before Finish.
func (s *SQLiteState) Begin(stage domain.Stage, scratch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runID == "" {
		return fmt.Errorf("no run started")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO stages (run_id, stage, status, scratch_path, started_at)
		VALUES (?, ?, 'pending', ?, ?)`,
		s.runID, string(stage), scratch, s.now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteState) Finish(stage domain.Stage, status domain.StageStatus, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runID == "" {
		return fmt.Errorf("no run started")
	}

	_, err := s.db.Exec(`
		UPDATE stages SET status = ?, detail = ?, finished_at = ?
		WHERE id = (SELECT MAX(id) FROM stages WHERE run_id = ? AND stage = ? AND status = 'pending')`,
		string(status), detail, s.now().UTC().Format(time.RFC3339), s.runID, string(stage))
	return err
}

// Stages returns the stage records of a run in execution order.
func (s *SQLiteState) Stages(runID string) ([]domain.StageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query(`
		SELECT run_id, stage, status, detail, started_at, finished_at
		FROM stages WHERE run_id = ? ORDER BY id`, runID)
}

// History returns the most recent stage records across runs, newest first.
func (s *SQLiteState) History(limit int) ([]domain.StageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	return s.query(`
		SELECT run_id, stage, status, detail, started_at, finished_at
		FROM stages ORDER BY id DESC LIMIT ?`, limit)
}

func (s *SQLiteState) query(q string, args ...any) ([]domain.StageRecord, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.StageRecord
	for rows.Next() {
		var r domain.StageRecord
		var stage, status, startedAt, finishedAt string
		if err := rows.Scan(&r.RunID, &stage, &status, &r.Detail, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		r.Stage = domain.Stage(stage)
		r.Status = domain.StageStatus(status)
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (s *SQLiteState) Close() error {
	return s.db.Close()
}
