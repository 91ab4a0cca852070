package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shared sentinel errors for data-layer repositories.
var (
	// ErrRecordNotFound is returned when a record id does not exist for the tenant.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRecordAlreadyExists is returned when creating a record with a taken id.
	ErrRecordAlreadyExists = errors.New("record already exists")
	// ErrTenantRequired is returned when a repository call omits the tenant.
	ErrTenantRequired = errors.New("tenant is required")
)

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
