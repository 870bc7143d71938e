package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps keys in a two-column table. Each batch runs in a single
// transaction.
type PostgresStore struct {
	pool    *pgxpool.Pool
	table   string
	metrics MetricsHook
}

func NewPostgresStore(ctx context.Context, dsn, table string, opts ...Option) (*PostgresStore, error) {
	o := buildOptions(opts)
	if table == "" {
		table = "snaplog_kv"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{
		pool:    pool,
		table:   pgx.Identifier{table}.Sanitize(),
		metrics: o.metrics,
	}

	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initialize(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key BYTEA PRIMARY KEY,
		value BYTEA NOT NULL
	)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, s.table)
}

func (s *PostgresStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	start := time.Now()
	var value []byte

	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.table), key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	s.metrics.ObserveRead(time.Since(start), len(value))
	return value, nil
}

func (s *PostgresStore) Put(ctx context.Context, key, value []byte) error {
	start := time.Now()
	if _, err := s.pool.Exec(ctx, s.upsertSQL(), key, value); err != nil {
		return fmt.Errorf("failed to put key: %w", err)
	}
	s.metrics.ObserveWrite(time.Since(start), len(key)+len(value))
	return nil
}

func (s *PostgresStore) NewBatch() Batch {
	return &postgresBatch{store: s}
}

type postgresBatch struct {
	store *PostgresStore
	puts  []pendingPut
}

func (b *postgresBatch) Put(key, value []byte) {
	b.puts = append(b.puts, copyPut(key, value))
}

func (b *postgresBatch) Len() int {
	return len(b.puts)
}

func (b *postgresBatch) Write(ctx context.Context) error {
	start := time.Now()

	err := pgx.BeginFunc(ctx, b.store.pool, func(tx pgx.Tx) error {
		query := b.store.upsertSQL()
		for _, p := range b.puts {
			if _, err := tx.Exec(ctx, query, p.key, p.value); err != nil {
				return fmt.Errorf("failed to put key %q: %w", p.key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.store.metrics.ObserveBatchCommit(time.Since(start), len(b.puts), putsSize(b.puts))
	return nil
}
