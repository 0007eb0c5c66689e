package conversation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/sqlitedb"
)

const exchangeSchema = `CREATE TABLE IF NOT EXISTS conversation_exchanges (
	slug           TEXT NOT NULL,
	idx            INTEGER NOT NULL,
	user_text      TEXT NOT NULL,
	assistant_text TEXT NOT NULL,
	date           TEXT NOT NULL,
	time           TEXT NOT NULL,
	kind           TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (slug, idx)
)`

// SQLiteStore keeps one row per exchange.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the schema on db and returns the store.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if err := sqlitedb.Migrate(ctx, db, exchangeSchema); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, slug string) ([]assistant.Exchange, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_text, assistant_text, date, time, kind
		FROM conversation_exchanges WHERE slug = ? ORDER BY idx`, slug)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	defer rows.Close()

	out := []assistant.Exchange{}
	for rows.Next() {
		var (
			e    assistant.Exchange
			kind string
		)
		if err := rows.Scan(&e.User, &e.Assistant, &e.Date, &e.Time, &kind); err != nil {
			return nil, err
		}
		e.Kind = assistant.ExchangeKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, slug string, e assistant.Exchange) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(idx) + 1, 0) FROM conversation_exchanges WHERE slug = ?`, slug,
	).Scan(&next); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_exchanges
		(slug, idx, user_text, assistant_text, date, time, kind) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		slug, next, e.User, e.Assistant, e.Date, e.Time, string(e.Kind)); err != nil {
		return 0, fmt.Errorf("append exchange: %w", err)
	}
	return next, tx.Commit()
}

// Replace implements Store.
func (s *SQLiteStore) Replace(ctx context.Context, slug string, index int, e assistant.Exchange) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversation_exchanges
		SET user_text = ?, assistant_text = ?, date = ?, time = ?, kind = ?
		WHERE slug = ? AND idx = ?`,
		e.User, e.Assistant, e.Date, e.Time, string(e.Kind), slug, index)
	if err != nil {
		return fmt.Errorf("replace exchange: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return assistant.ErrNotFound
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
