package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const sqlStateUniqueViolation = "23505"

// uniqueMessages catch drivers whose errors gorm does not translate: mysql
// 1062, sqlite 2067 and wrapped postgres text.
var uniqueMessages = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

// IsDuplicateKeyErr reports a unique constraint violation from any of the
// supported drivers.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if state, ok := sqlState(err); ok {
		return state == sqlStateUniqueViolation
	}
	msg := err.Error()
	for _, m := range uniqueMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// sqlState extracts the SQLSTATE from pgx or lib/pq errors.
func sqlState(err error) (string, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	return "", false
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
