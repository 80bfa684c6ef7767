package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fieldflow-ai/fieldflow/internal/field"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS onboarding_sessions (
    id            TEXT PRIMARY KEY,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL,
    current_index INTEGER DEFAULT 0,
    current_field TEXT DEFAULT '',
    completed     INTEGER DEFAULT 0,
    fields        TEXT NOT NULL DEFAULT '[]',
    history       TEXT NOT NULL DEFAULT '[]',
    extracted     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_onboarding_sessions_updated_at ON onboarding_sessions(updated_at);
`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default database path
// (~/.local/share/fieldflow/sessions.db).
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "fieldflow", "sessions.db"), nil
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(sess *Session) error {
	sess.UpdatedAt = time.Now()

	fieldsJSON, err := json.Marshal(sess.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	historyJSON, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	extractedJSON, err := json.Marshal(sess.Extracted)
	if err != nil {
		return fmt.Errorf("marshal extracted: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO onboarding_sessions
			(id, created_at, updated_at, current_index, current_field, completed, fields, history, extracted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.CreatedAt.Format(time.RFC3339Nano),
		sess.UpdatedAt.Format(time.RFC3339Nano),
		sess.CurrentIndex,
		sess.CurrentField,
		boolToInt(sess.Completed),
		string(fieldsJSON),
		string(historyJSON),
		string(extractedJSON),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, updated_at, current_index, current_field, completed, fields, history, extracted
		FROM onboarding_sessions WHERE id = ?`, id)

	var sess Session
	var createdAt, updatedAt, fieldsJSON, historyJSON, extractedJSON string
	var completed int
	err := row.Scan(
		&sess.ID, &createdAt, &updatedAt,
		&sess.CurrentIndex, &sess.CurrentField, &completed,
		&fieldsJSON, &historyJSON, &extractedJSON,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess.Completed = completed != 0
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	var fields []field.Spec
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	sess.Fields = fields

	var history []Message
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	sess.History = history

	extracted := make(map[string]string)
	if err := json.Unmarshal([]byte(extractedJSON), &extracted); err != nil {
		return nil, fmt.Errorf("unmarshal extracted: %w", err)
	}
	sess.Extracted = extracted

	return &sess, nil
}

func (s *SQLiteStore) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM onboarding_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List() ([]Info, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, updated_at, completed,
		       json_array_length(fields), json_array_length(history)
		FROM onboarding_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		var createdAt, updatedAt string
		var completed int
		if err := rows.Scan(&info.ID, &createdAt, &updatedAt, &completed, &info.Fields, &info.Messages); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.Completed = completed != 0
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
