package storage

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
)

// classifySQLite maps SQLite driver errors onto the common error taxonomy.
// Errors it does not recognize are returned unchanged.
func classifySQLite(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch {
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %w", common.ErrDuplicateEntry, err)
	case sqliteErr.Code == sqlite3.ErrConstraint:
		return fmt.Errorf("%w: %w", common.ErrConstraint, err)
	case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: %w", common.ErrTransient, err)
	case sqliteErr.Code == sqlite3.ErrReadonly, sqliteErr.Code == sqlite3.ErrAuth, sqliteErr.Code == sqlite3.ErrPerm:
		return fmt.Errorf("%w: %w", common.ErrPermissionDenied, err)
	case sqliteErr.Code == sqlite3.ErrCorrupt, sqliteErr.Code == sqlite3.ErrNotADB:
		return fmt.Errorf("%w: %w", common.ErrDatabaseCorrupted, err)
	default:
		return err
	}
}
