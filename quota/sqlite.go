package quota

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/creastat/assistant/sqlitedb"
)

const ledgerSchema = `CREATE TABLE IF NOT EXISTS quota_usage (
	slug    TEXT NOT NULL,
	day     TEXT NOT NULL,
	feature TEXT NOT NULL,
	used    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (slug, day, feature)
)`

// SQLiteStore keeps one row per tenant, day and feature.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the schema on db and returns the store.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if err := sqlitedb.Migrate(ctx, db, ledgerSchema); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, slug string) (Ledger, error) {
	return loadLedger(ctx, s.db, slug)
}

// Update implements Store. The whole read-modify-write runs in one transaction.
func (s *SQLiteStore) Update(ctx context.Context, slug string, mutate func(Ledger) bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ledger, err := loadLedger(ctx, tx, slug)
	if err != nil {
		return err
	}
	if !mutate(ledger) {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO quota_usage (slug, day, feature, used)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (slug, day, feature) DO UPDATE SET used = excluded.used`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for day, counters := range ledger {
		for feature, used := range counters {
			if _, err := stmt.ExecContext(ctx, slug, day, string(feature), used); err != nil {
				return fmt.Errorf("write ledger row: %w", err)
			}
		}
	}
	return tx.Commit()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadLedger(ctx context.Context, q querier, slug string) (Ledger, error) {
	rows, err := q.QueryContext(ctx, `SELECT day, feature, used FROM quota_usage WHERE slug = ?`, slug)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	defer rows.Close()

	ledger := Ledger{}
	for rows.Next() {
		var (
			day, feature string
			used         int64
		)
		if err := rows.Scan(&day, &feature, &used); err != nil {
			return nil, err
		}
		ledger.Add(day, Feature(feature), used)
	}
	return ledger, rows.Err()
}
