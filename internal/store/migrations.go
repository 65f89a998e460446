package store

import (
	"database/sql"
	"fmt"
)

// migrate brings databases written by older releases up to the current
// shape. Every step checks before it changes anything, so running it on an
// up-to-date database is a no-op.
func (s *Store) migrate() error {
	if err := s.migration001RenamePlates(); err != nil {
		return fmt.Errorf("migration 001: %w", err)
	}
	if err := s.initSchema(); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	if err := s.migration002AddColumns(); err != nil {
		return fmt.Errorf("migration 002: %w", err)
	}
	if err := s.migration003ToolTarget(); err != nil {
		return fmt.Errorf("migration 003: %w", err)
	}
	if err := s.initIndexes(); err != nil {
		return fmt.Errorf("init indexes: %w", err)
	}
	return nil
}

func (s *Store) tableExists(name string) (bool, error) {
	var found string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) columnExists(table, column string) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?)
		WHERE name=?
	`, table, column).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// migration001RenamePlates renames the table used by the first releases.
func (s *Store) migration001RenamePlates() error {
	hasPlates, err := s.tableExists("plates")
	if err != nil || !hasPlates {
		return err
	}
	hasSessions, err := s.tableExists("sessions")
	if err != nil || hasSessions {
		return err
	}
	_, err = s.db.Exec(`ALTER TABLE plates RENAME TO sessions`)
	return err
}

// migration002AddColumns adds any optional column the table is missing.
func (s *Store) migration002AddColumns() error {
	for _, col := range optionalColumns {
		ok, err := s.columnExists("sessions", col)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := s.db.Exec(fmt.Sprintf(`ALTER TABLE sessions ADD COLUMN %s TEXT`, col)); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

// migration003ToolTarget copies the legacy tmux_target column into
// tool_target where the latter is unset.
func (s *Store) migration003ToolTarget() error {
	ok, err := s.columnExists("sessions", "tmux_target")
	if err != nil || !ok {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE sessions SET tool_target = tmux_target
		WHERE tool_target IS NULL AND tmux_target IS NOT NULL
	`)
	return err
}
