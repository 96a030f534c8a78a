package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinmap/pkg/utils"
)

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, utils.DatabaseConfig{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "app.db"),
	})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(ctx, db))

	insert := `INSERT INTO users (id, display_name, email) VALUES ($1, $2, $3)`
	_, err = db.ExecContext(ctx, insert, "u1", "a", "a@example.com")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "u2", "b", "a@example.com")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(fmt.Errorf("create user: %w", err)))

	_, err = db.ExecContext(ctx, insert, "u1", "c", "c@example.com")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	_, err = db.ExecContext(ctx, `INSERT INTO users (id, display_name) VALUES ($1, $2)`, "u3", "no contact")
	require.Error(t, err, "check constraint")
	assert.False(t, IsUniqueViolation(err))

	_, err = db.ExecContext(ctx, `INSERT INTO missing_table (id) VALUES ($1)`, "x")
	require.Error(t, err)
	assert.False(t, IsUniqueViolation(err))

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}
