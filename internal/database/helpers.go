package database

import (
	"database/sql"
	"errors"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

// execRequireRows validates that an exec affected at least one row.
// Returns err if non-nil, or notFoundErr if no row was affected.
func execRequireRows(result sql.Result, err, notFoundErr error) error {
	if err != nil {
		return err
	}
	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return affectedErr
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// rowsAffected returns the affected row count of an exec, or its error.
func rowsAffected(result sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// notFoundOr maps sql.ErrNoRows to a NotFoundError and wraps anything else
// as a store failure.
func notFoundOr(op, entity, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFound(entity, id)
	}
	return domain.StoreUnavailable(op, err)
}
