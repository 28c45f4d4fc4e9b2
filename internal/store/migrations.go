package store

import (
	"database/sql"
	"fmt"

	"tavern/internal/logging"
)

// Schema versions:
// v1: tasks table (id, model, system_prompt, messages, tools, status,
//     response, error, created_at, last_updated)
// v2: adds claimed_at column for operator visibility into stuck tasks
// v3: adds avatar column so the worker knows which in-world identity the
//     task's tool calls act as
const currentSchemaVersion = 3

func (s *TaskStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	version, err := readSchemaVersion(s.db)
	if err != nil {
		return err
	}

	if version < 1 {
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS tasks (
				id            TEXT PRIMARY KEY,
				model         TEXT NOT NULL,
				system_prompt TEXT NOT NULL,
				messages      TEXT NOT NULL,
				tools         TEXT,
				status        TEXT NOT NULL DEFAULT 'pending',
				response      TEXT,
				error         TEXT,
				created_at    TIMESTAMP NOT NULL,
				last_updated  TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_tasks_status_created
				ON tasks (status, created_at);
		`); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}

	if version < 2 {
		if !columnExists(s.db, "tasks", "claimed_at") {
			if _, err := s.db.Exec(`ALTER TABLE tasks ADD COLUMN claimed_at TIMESTAMP;`); err != nil {
				return fmt.Errorf("migrate v2: %w", err)
			}
		}
	}

	if version < 3 {
		if !columnExists(s.db, "tasks", "avatar") {
			if _, err := s.db.Exec(`ALTER TABLE tasks ADD COLUMN avatar TEXT NOT NULL DEFAULT '';`); err != nil {
				return fmt.Errorf("migrate v3: %w", err)
			}
		}
	}

	if version < currentSchemaVersion {
		if err := writeSchemaVersion(s.db, currentSchemaVersion); err != nil {
			return err
		}
		logging.Store("task schema migrated %d -> %d", version, currentSchemaVersion)
	}
	return nil
}

func readSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1;`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func writeSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(`DELETE FROM schema_version;`); err != nil {
		return fmt.Errorf("clear schema version: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?);`, version); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
