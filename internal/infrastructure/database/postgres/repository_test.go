package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"library-api/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

const pgxmockExpectationsNotMetMsg = "pgxmock expectations not met"

func setupPool(t *testing.T) (context.Context, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}
	t.Cleanup(mockPool.Close)
	return context.Background(), mockPool
}

func TestTranslateDBError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"no rows", pgx.ErrNoRows, apperrors.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: constraintBooksIsbn}, apperrors.ErrAlreadyExists},
		{"foreign key violation", &pgconn.PgError{Code: codeForeignKeyViolation}, apperrors.ErrConflict},
		{"serialization failure", &pgconn.PgError{Code: codeSerializationFailure}, apperrors.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, apperrors.ErrConflict},
		{"other postgres error", &pgconn.PgError{Code: "42P01"}, apperrors.ErrDatabase},
		{"generic error", context.DeadlineExceeded, apperrors.ErrDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateDBError(tt.err, logger), tt.target)
		})
	}

	assert.NoError(t, translateDBError(nil, logger))
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%aven%", containsPattern("aven"))
	assert.Equal(t, `%50\%\_off\\%`, containsPattern(`50%_off\`))
}

func TestEnsureSchema(t *testing.T) {
	t.Run("applies the embedded schema", func(t *testing.T) {
		ctx, mockPool := setupPool(t)
		mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS books").WillReturnResult(pgxmock.NewResult("CREATE", 0))

		assert.NoError(t, EnsureSchema(ctx, mockPool, logger))
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("wraps failures as database errors", func(t *testing.T) {
		ctx, mockPool := setupPool(t)
		mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS books").WillReturnError(context.DeadlineExceeded)

		err := EnsureSchema(ctx, mockPool, logger)
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
	})

	t.Run("schema declares the one active loan per book index", func(t *testing.T) {
		assert.Contains(t, schemaSQL, "CREATE UNIQUE INDEX IF NOT EXISTS loans_one_active_per_book")
		assert.Contains(t, schemaSQL, "WHERE returned IS NOT TRUE")
	})
}

func TestVerifyConnection(t *testing.T) {
	t.Run("ping succeeds", func(t *testing.T) {
		ctx, mockPool := setupPool(t)
		mockPool.ExpectPing()

		assert.NoError(t, verifyConnection(ctx, mockPool, logger))
	})

	t.Run("ping fails", func(t *testing.T) {
		ctx, mockPool := setupPool(t)
		mockPool.ExpectPing().WillReturnError(context.DeadlineExceeded)

		err := verifyConnection(ctx, mockPool, logger)
		assert.ErrorContains(t, err, "failed to ping database on connect")
	})
}
