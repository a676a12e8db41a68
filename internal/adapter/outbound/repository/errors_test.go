package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantIs   error
		wantText string
	}{
		{name: "no rows", err: pgx.ErrNoRows, wantIs: ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, wantIs: ErrAlreadyExists},
		{name: "not null violation", err: &pgconn.PgError{Code: "23502"}, wantIs: ErrConstraintViolation},
		{name: "undefined table", err: &pgconn.PgError{Code: "42P01"}, wantIs: ErrSchemaMissing},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, wantIs: ErrConnectionFailed},
		{name: "other", err: errors.New("boom"), wantText: "fetch failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapError(tt.err, "fetch")
			if tt.wantIs != nil {
				assert.ErrorIs(t, got, tt.wantIs)
			}
			if tt.wantText != "" {
				assert.EqualError(t, got, tt.wantText)
			}
		})
	}

	assert.NoError(t, WrapError(nil, "fetch"))
}

func TestIsTransientError(t *testing.T) {
	assert.True(t, IsTransientError(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsTransientError(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsTransientError(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "08003"})))
	assert.True(t, IsTransientError(context.DeadlineExceeded))
	assert.False(t, IsTransientError(&pgconn.PgError{Code: "22P02"}))
	assert.False(t, IsTransientError(nil))
}

func TestRepositoryError(t *testing.T) {
	err := NewRepositoryError("mark", pgx.ErrNoRows)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "repository operation 'mark' failed")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "57P01"}))
	assert.False(t, IsRetryable(fmt.Errorf("mark: %w", ErrNotFound)))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "42703"}))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23502"}))
}
