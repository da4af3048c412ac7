package ledger

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lox/blackjack/blackjack"
)

//go:embed schema.sql
var schema embed.FS

// PostgresStore keeps named ledgers in Postgres
type PostgresStore struct {
	pool *pgxpool.Pool
	name string
}

// OpenPostgres connects to dsn and returns a store for the ledger called
// name. Call Migrate once before first use.
func OpenPostgres(ctx context.Context, dsn, name string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to ledger database: %w", err)
	}
	return &PostgresStore{pool: pool, name: name}, nil
}

// Named returns a store for another ledger sharing the same pool
func (s *PostgresStore) Named(name string) *PostgresStore {
	return &PostgresStore{pool: s.pool, name: name}
}

// Close releases the pool
func (s *PostgresStore) Close() { s.pool.Close() }

// Ping checks the connection
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate creates the ledger tables if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("migrating ledger schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (Save, error) {
	var (
		save     Save
		savedAt  time.Time
		bankroll *int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT schema_version, saved_at, bankroll_cents, hand_counter
		  FROM bankroll_ledgers WHERE name = $1
	`, s.name).Scan(&save.SchemaVersion, &savedAt, &bankroll, &save.HandCounter)
	if errors.Is(err, pgx.ErrNoRows) {
		return Save{}, ErrNotFound
	}
	if err != nil {
		return Save{}, fmt.Errorf("loading ledger %q: %w", s.name, err)
	}
	save.SavedAt = savedAt.UnixMilli()
	if bankroll != nil {
		b := blackjack.Money(*bankroll)
		save.Bankroll = &b
	}

	rows, err := s.pool.Query(ctx, `
		SELECT idx, bankroll_cents FROM bankroll_points
		 WHERE name = $1 ORDER BY idx
	`, s.name)
	if err != nil {
		return Save{}, fmt.Errorf("loading ledger points: %w", err)
	}
	save.Ledger, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e     Entry
			cents int64
		)
		err := row.Scan(&e.Index, &cents)
		e.BankrollAfter = blackjack.Money(cents)
		return e, err
	})
	if err != nil {
		return Save{}, fmt.Errorf("loading ledger points: %w", err)
	}
	return save, nil
}

func (s *PostgresStore) Save(ctx context.Context, save Save) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var bankroll *int64
	if save.Bankroll != nil {
		b := int64(*save.Bankroll)
		bankroll = &b
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO bankroll_ledgers(name, schema_version, saved_at, bankroll_cents, hand_counter)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		   SET schema_version = EXCLUDED.schema_version,
		       saved_at = EXCLUDED.saved_at,
		       bankroll_cents = EXCLUDED.bankroll_cents,
		       hand_counter = EXCLUDED.hand_counter
	`, s.name, save.SchemaVersion, time.UnixMilli(save.SavedAt), bankroll, save.HandCounter)
	if err != nil {
		return fmt.Errorf("saving ledger %q: %w", s.name, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM bankroll_points WHERE name = $1`, s.name); err != nil {
		return fmt.Errorf("clearing ledger points: %w", err)
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"bankroll_points"},
		[]string{"name", "idx", "bankroll_cents"},
		pgx.CopyFromSlice(len(save.Ledger), func(i int) ([]any, error) {
			e := save.Ledger[i]
			return []any{s.name, e.Index, int64(e.BankrollAfter)}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("writing ledger points: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM bankroll_ledgers WHERE name = $1`, s.name); err != nil {
		return fmt.Errorf("resetting ledger %q: %w", s.name, err)
	}
	return nil
}
