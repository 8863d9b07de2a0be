package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists exchange history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_client_created ON exchanges (client_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveExchange(ctx context.Context, record ExchangeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO exchanges (id, client_id, session_id, kind, prompt, response, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID,
		record.ClientID,
		record.SessionID,
		record.Kind,
		record.Prompt,
		record.Response,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save exchange: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, clientID string, limit int) ([]ExchangeRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, client_id, session_id, kind, prompt, response, created_at
		 FROM exchanges WHERE client_id=$1 ORDER BY created_at DESC LIMIT $2`,
		clientID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent exchanges: %w", err)
	}
	defer rows.Close()

	items := make([]ExchangeRecord, 0, limit)
	for rows.Next() {
		var r ExchangeRecord
		if err := rows.Scan(&r.ID, &r.ClientID, &r.SessionID, &r.Kind, &r.Prompt, &r.Response, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange rows: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
