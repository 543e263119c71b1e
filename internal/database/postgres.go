package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cycletrader/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS submitted_trades (
	id SERIAL PRIMARY KEY,
	cycle_id VARCHAR(36) NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	currency VARCHAR(20) NOT NULL,
	market VARCHAR(40) NOT NULL,
	side VARCHAR(4) NOT NULL,
	quantity NUMERIC(30, 12) NOT NULL,
	rate NUMERIC(30, 12) NOT NULL,
	success BOOLEAN NOT NULL,
	order_id VARCHAR(64) NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS path_reports (
	id SERIAL PRIMARY KEY,
	cycle_id VARCHAR(36) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	currency VARCHAR(20) NOT NULL,
	chain VARCHAR(100) NOT NULL,
	markets TEXT[] NOT NULL,
	headline DOUBLE PRECISION NOT NULL,
	realized DOUBLE PRECISION NOT NULL,
	amount DOUBLE PRECISION NOT NULL,
	status VARCHAR(20) NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS path_reports_cycle_idx ON path_reports (cycle_id);
`

// PostgresRepository stores submitted trades and path reports in PostgreSQL.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects a pool and verifies the connection.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

// Migrate creates the tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// LogTrade records an instruction handed to the exchange.
func (r *PostgresRepository) LogTrade(ctx context.Context, trade model.SubmittedTrade) error {
	const query = `
		INSERT INTO submitted_trades (
			cycle_id, timestamp, currency, market, side, quantity, rate, success, order_id, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.Pool.Exec(ctx, query,
		trade.CycleID, trade.Timestamp, trade.Currency, trade.Market, string(trade.Side),
		trade.Quantity, trade.Rate, trade.Success, trade.OrderID, trade.Message,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", trade.Market, err)
	}
	return nil
}

// LogPathReports inserts the reports of one currency in a single batch.
func (r *PostgresRepository) LogPathReports(ctx context.Context, reports []model.PathReport) error {
	if len(reports) == 0 {
		return nil
	}
	const query = `
		INSERT INTO path_reports (
			cycle_id, created_at, currency, chain, markets, headline, realized, amount, status, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	batch := &pgx.Batch{}
	for _, rep := range reports {
		batch.Queue(query,
			rep.CycleID, rep.CreatedAt, rep.Currency, rep.Chain, rep.Markets,
			rep.Headline, rep.Realized, rep.Amount, string(rep.Status), rep.Error,
		)
	}
	if err := r.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert %d path reports: %w", len(reports), err)
	}
	return nil
}
