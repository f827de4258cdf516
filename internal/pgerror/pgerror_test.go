package pgerror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestAsViolation(t *testing.T) {
	_, ok := AsViolation(nil)
	assert.False(t, ok)

	_, ok = AsViolation(errors.New("boom"))
	assert.False(t, ok)

	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23502", ConstraintName: "", ColumnName: "node"})
	v, ok := AsViolation(err)
	assert.True(t, ok)
	assert.Equal(t, Violation{Kind: NotNullViolation, Column: "node"}, v)
	assert.Equal(t, "not null", v.Kind.String())

	_, ok = AsViolation(&pgconn.PgError{Code: "42P01", ConstraintName: "x"})
	assert.False(t, ok)
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, expected: true},
		{name: "invalid uuid", err: fmt.Errorf("save: %w", &pgconn.PgError{Code: "22P02"}), expected: true},
		{name: "undefined table", err: &pgconn.PgError{Code: "42P01"}},
		{name: "connection", err: errors.New("connection refused")},
		{name: "cancelled", err: context.Canceled},
		{name: "nil", err: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsPermanent(tt.err))
		})
	}
}

func TestFailedRecord(t *testing.T) {
	err := fmt.Errorf("save: %w", &RecordError{Index: 2, Err: &pgconn.PgError{Code: "22P02"}})

	idx, ok := FailedRecord(err)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.True(t, IsPermanent(err))

	_, ok = FailedRecord(errors.New("connection refused"))
	assert.False(t, ok)
}
