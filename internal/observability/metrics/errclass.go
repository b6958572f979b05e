package metrics

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/monstrox/monstro/internal/authorization"
	"gorm.io/gorm"
)

// Kinds group job errors for logs, reasons label the error counter.
const (
	KindDeadline     = "deadline_exceeded"
	KindAuthorization = "authorization"
	KindDatabase     = "db"
	KindBusinessRule = "business_rule"

	ReasonDeadlineExceeded = "deadline_exceeded"
	ReasonForbidden        = "forbidden"
	ReasonLockTimeout      = "db_lock_timeout"
	ReasonSerialization    = "serialization_failure"
	ReasonUniqueViolation  = "unique_violation"
	ReasonUnknown          = "unknown"
)

// JobError is the low-cardinality description of a background failure.
type JobError struct {
	Kind      string
	Reason    string
	Retryable bool
}

// postgres SQLSTATEs worth telling apart on dashboards
var pgReasons = map[string]string{
	"55P03": ReasonLockTimeout,
	"40001": ReasonSerialization,
	"40P01": ReasonSerialization,
	"23505": ReasonUniqueViolation,
}

var gormDBErrors = []error{
	gorm.ErrInvalidDB,
	gorm.ErrInvalidTransaction,
	gorm.ErrInvalidData,
	gorm.ErrMissingWhereClause,
	gorm.ErrDuplicatedKey,
}

// ClassifyJobError never returns an empty Kind or Reason.
func ClassifyJobError(err error) JobError {
	if err == nil {
		return JobError{Kind: KindBusinessRule, Reason: ReasonUnknown}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobError{Kind: KindDeadline, Reason: ReasonDeadlineExceeded, Retryable: true}
	}
	if errors.Is(err, authorization.ErrForbidden) ||
		errors.Is(err, authorization.ErrInvalidActor) ||
		errors.Is(err, authorization.ErrInvalidLocation) {
		return JobError{Kind: KindAuthorization, Reason: ReasonForbidden}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		reason, ok := pgReasons[pgErr.Code]
		if !ok {
			reason = ReasonUnknown
		}
		return JobError{Kind: KindDatabase, Reason: reason, Retryable: true}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return JobError{Kind: KindBusinessRule, Reason: ReasonUnknown}
	}
	for _, target := range gormDBErrors {
		if errors.Is(err, target) {
			reason := ReasonUnknown
			if target == gorm.ErrDuplicatedKey {
				reason = ReasonUniqueViolation
			}
			return JobError{Kind: KindDatabase, Reason: reason, Retryable: true}
		}
	}
	return JobError{Kind: KindBusinessRule, Reason: ReasonUnknown}
}
