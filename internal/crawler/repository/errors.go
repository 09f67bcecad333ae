package repository

import (
	"errors"
	"fmt"

	"golang-fundamental-scryper/internal/crawler/allowlist"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	// ErrTransport covers network failures, timeouts and non-success status codes from the source site.
	ErrTransport = errors.New("transport failure")
	// ErrPersistence covers store failures other than allow-list rejections.
	ErrPersistence = errors.New("persistence failure")
	// ErrStaleAllowList means members dropped from the configured allow-list are still
	// referenced by instrument rows, so the database guard would admit more than configured.
	ErrStaleAllowList = errors.New("removed allow-list members still referenced by instruments")
)

const foreignKeyViolation = "23503"

// mapStoreError turns a driver error into ErrAllowListViolation when the allow-list
// foreign key rejected the row, and into ErrPersistence otherwise.
func mapStoreError(err error, op, identifier string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %q rejected by %s", allowlist.ErrAllowListViolation, identifier, pgErr.ConstraintName)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolation {
		return fmt.Errorf("%w: %q rejected by %s", allowlist.ErrAllowListViolation, identifier, pqErr.Constraint)
	}
	return fmt.Errorf("%w: failed to %s %q: %v", ErrPersistence, op, identifier, err)
}
