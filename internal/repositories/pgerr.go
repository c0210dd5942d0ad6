package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repository reacts to.
const (
	sqlStateUniqueViolation = "23505"
	sqlStateUndefinedTable  = "42P01"
)

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUniqueViolation matches a duplicate render or artifact id.
func isUniqueViolation(err error) bool { return pgErrCode(err) == sqlStateUniqueViolation }

// isUndefinedTable matches a database the schema was never applied to.
func isUndefinedTable(err error) bool { return pgErrCode(err) == sqlStateUndefinedTable }
