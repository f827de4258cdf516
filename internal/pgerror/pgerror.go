// Package pgerror tells permanent postgres failures apart from the ones worth
// retrying.
package pgerror

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type ViolationKind int8

const (
	UniqueViolation ViolationKind = iota + 1
	ForeignKeyViolation
	CheckViolation
	NotNullViolation
)

var violationCodes = map[string]ViolationKind{
	"23505": UniqueViolation,
	"23503": ForeignKeyViolation,
	"23514": CheckViolation,
	"23502": NotNullViolation,
}

func (k ViolationKind) String() string {
	switch k {
	case UniqueViolation:
		return "unique"
	case ForeignKeyViolation:
		return "foreign key"
	case CheckViolation:
		return "check"
	case NotNullViolation:
		return "not null"
	}
	return "unknown"
}

// Violation is an integrity constraint error, resending the same row gives
// the same error.
type Violation struct {
	Kind       ViolationKind
	Constraint string
	Column     string
}

func AsViolation(err error) (Violation, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return Violation{}, false
	}
	kind, ok := violationCodes[pgErr.Code]
	if !ok {
		return Violation{}, false
	}
	return Violation{
		Kind:       kind,
		Constraint: pgErr.ConstraintName,
		Column:     pgErr.ColumnName,
	}, true
}

// IsPermanent reports errors that no retry can fix: constraint violations
// and malformed data.
func IsPermanent(err error) bool {
	if _, ok := AsViolation(err); ok {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 22xxx: data exception
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "22"
	}
	return false
}

// RecordError points at the record of a batch whose statement failed.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// FailedRecord returns the index of the batch record err points at.
func FailedRecord(err error) (int, bool) {
	var recErr *RecordError
	if !errors.As(err, &recErr) {
		return 0, false
	}
	return recErr.Index, true
}
