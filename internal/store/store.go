// Package store persists corpus snapshots to PostgreSQL or SQLite and
// periodically saves the live corpus.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/resilience"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS termvec_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS termvec_terms (
		id       INTEGER PRIMARY KEY,
		token    TEXT NOT NULL UNIQUE,
		doc_freq DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS termvec_documents (
		doc_id     TEXT PRIMARY KEY,
		position   INTEGER NOT NULL,
		tag        INTEGER NOT NULL,
		tokens     INTEGER NOT NULL,
		counts     TEXT NOT NULL,
		indexed_at TEXT NOT NULL
	)`,
}

const metaDocumentCount = "document_count"

// SQLStore keeps the most recent corpus snapshot. Each Save replaces the
// previous one inside a single transaction.
type SQLStore struct {
	db      *database.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a store backed by db. m may be nil.
func New(db *database.Client, m *metrics.Metrics) *SQLStore {
	return &SQLStore{
		db:      db,
		metrics: m,
		logger:  slog.Default().With("component", "corpus-store"),
	}
}

// Migrate creates the snapshot tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	return nil
}

// Save replaces the stored snapshot with snap.
func (s *SQLStore) Save(ctx context.Context, snap corpus.Snapshot) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"termvec_meta", "termvec_terms", "termvec_documents"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO termvec_meta (key, value) VALUES ($1, $2)`,
			metaDocumentCount, strconv.Itoa(snap.Dictionary.DocumentCount),
		); err != nil {
			return fmt.Errorf("saving document count: %w", err)
		}

		termStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO termvec_terms (id, token, doc_freq) VALUES ($1, $2, $3)`)
		if err != nil {
			return fmt.Errorf("preparing term insert: %w", err)
		}
		defer termStmt.Close()
		for _, t := range snap.Dictionary.Terms {
			if _, err := termStmt.ExecContext(ctx, t.ID, t.Token, t.DocFreq); err != nil {
				return fmt.Errorf("saving term %q: %w", t.Token, err)
			}
		}

		docStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO termvec_documents (doc_id, position, tag, tokens, counts, indexed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`)
		if err != nil {
			return fmt.Errorf("preparing document insert: %w", err)
		}
		defer docStmt.Close()
		for i, d := range snap.Documents {
			counts, err := json.Marshal(d.Counts)
			if err != nil {
				return fmt.Errorf("marshaling counts for %s: %w", d.ID, err)
			}
			if _, err := docStmt.ExecContext(ctx,
				d.ID, i, d.Tag, d.Tokens, string(counts), d.IndexedAt.UTC().Format(time.RFC3339Nano),
			); err != nil {
				return fmt.Errorf("saving document %s: %w", d.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("corpus snapshot saved",
		"documents", len(snap.Documents),
		"terms", len(snap.Dictionary.Terms),
	)
	return nil
}

// Load returns the stored snapshot. found is false when nothing has been
// saved yet.
func (s *SQLStore) Load(ctx context.Context) (snap corpus.Snapshot, found bool, err error) {
	var raw string
	err = s.db.DB.QueryRowContext(ctx,
		`SELECT value FROM termvec_meta WHERE key = $1`, metaDocumentCount,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return corpus.Snapshot{}, false, nil
	}
	if err != nil {
		return corpus.Snapshot{}, false, fmt.Errorf("querying document count: %w", err)
	}
	docCount, err := strconv.Atoi(raw)
	if err != nil {
		return corpus.Snapshot{}, false, fmt.Errorf("parsing document count %q: %w", raw, err)
	}
	snap.Dictionary.DocumentCount = docCount

	rows, err := s.db.DB.QueryContext(ctx, `SELECT id, token, doc_freq FROM termvec_terms ORDER BY id`)
	if err != nil {
		return corpus.Snapshot{}, false, fmt.Errorf("listing terms: %w", err)
	}
	for rows.Next() {
		var t dictionary.Term
		if err := rows.Scan(&t.ID, &t.Token, &t.DocFreq); err != nil {
			rows.Close()
			return corpus.Snapshot{}, false, fmt.Errorf("scanning term row: %w", err)
		}
		snap.Dictionary.Terms = append(snap.Dictionary.Terms, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return corpus.Snapshot{}, false, fmt.Errorf("listing terms: %w", err)
	}

	rows, err = s.db.DB.QueryContext(ctx,
		`SELECT doc_id, tag, tokens, counts, indexed_at FROM termvec_documents ORDER BY position`)
	if err != nil {
		return corpus.Snapshot{}, false, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			d                 corpus.DocumentState
			counts, indexedAt string
		)
		if err := rows.Scan(&d.ID, &d.Tag, &d.Tokens, &counts, &indexedAt); err != nil {
			return corpus.Snapshot{}, false, fmt.Errorf("scanning document row: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &d.Counts); err != nil {
			return corpus.Snapshot{}, false, fmt.Errorf("unmarshaling counts for %s: %w", d.ID, err)
		}
		if d.IndexedAt, err = time.Parse(time.RFC3339Nano, indexedAt); err != nil {
			return corpus.Snapshot{}, false, fmt.Errorf("parsing indexed_at for %s: %w", d.ID, err)
		}
		snap.Documents = append(snap.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return corpus.Snapshot{}, false, fmt.Errorf("listing documents: %w", err)
	}
	return snap, true, nil
}

// SaveCorpus snapshots c and saves it within timeout.
func (s *SQLStore) SaveCorpus(ctx context.Context, c *corpus.Corpus, timeout time.Duration) error {
	err := resilience.WithTimeout(ctx, timeout, "corpus snapshot", func(ctx context.Context) error {
		return s.Save(ctx, c.Snapshot())
	})
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.SnapshotsTotal.WithLabelValues(status).Inc()
	}
	return err
}

// Run saves c every interval until ctx is cancelled, skipping rounds in
// which nothing was indexed, and writes a final snapshot on the way out.
func (s *SQLStore) Run(ctx context.Context, c *corpus.Corpus, interval, timeout time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	saved := c.Generation()
	s.logger.Info("periodic snapshot started", "interval", interval)

	for {
		select {
		case <-ticker.C:
			gen := c.Generation()
			if gen == saved {
				continue
			}
			if err := s.SaveCorpus(ctx, c, timeout); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
				continue
			}
			saved = gen
		case <-ctx.Done():
			if c.Generation() == saved {
				return nil
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := s.SaveCorpus(shutdownCtx, c, timeout); err != nil {
				return fmt.Errorf("final snapshot: %w", err)
			}
			return nil
		}
	}
}
