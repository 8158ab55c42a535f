// Package database opens the SQL store behind the corpus snapshots. Both
// PostgreSQL (lib/pq) and SQLite (mattn/go-sqlite3) are supported; the
// queries issued through it stick to the dialect the two share.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/resilience"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Client is an open, pinged connection pool.
type Client struct {
	DB     *sql.DB
	Driver string
}

// New opens and pings the configured database. An unknown driver is a
// permanent error; a failed ping is not.
func New(cfg config.StoreConfig) (*Client, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("opening %s connection: %w", cfg.Driver, err))
	}

	if cfg.Driver == "sqlite3" {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", cfg.Driver, err)
	}
	return &Client{DB: db, Driver: cfg.Driver}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
