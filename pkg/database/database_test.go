package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/resilience"
)

func openSQLite(t *testing.T) *Client {
	t.Helper()
	c, err := New(config.StoreConfig{Driver: "sqlite3", Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInTxCommitsAndRollsBack(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()
	_, err := c.DB.ExecContext(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER)`)
	require.NoError(t, err)

	require.NoError(t, c.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ($1, $2)`, "a", 1)
		return err
	}))

	boom := errors.New("boom")
	err = c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ($1, $2)`, "b", 2); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, c.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(config.StoreConfig{Driver: "nosuchdriver"})
	assert.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
}
