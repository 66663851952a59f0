package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/polymirror/polymirror/internal/model"
)

// PostgresTradeRepo is the append-only trade log. Rows are written once
// per mirror attempt and never updated.
type PostgresTradeRepo struct {
	db *sqlx.DB
}

func NewPostgresTradeRepo(db *sqlx.DB) *PostgresTradeRepo {
	repo := &PostgresTradeRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresTradeRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			market TEXT NOT NULL,
			outcome TEXT NOT NULL,
			side TEXT NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_trades_created ON trades(created_at DESC)`)
	return nil
}

func (r *PostgresTradeRepo) Append(ctx context.Context, rec model.TradeRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trades (id, created_at, market, outcome, side, size, price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.CreatedAt, rec.Market, rec.Outcome, rec.Side, rec.Size, rec.Price, rec.Status)
	return err
}

// Recent returns the latest trades, newest first.
func (r *PostgresTradeRepo) Recent(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	records := make([]model.TradeRecord, 0, limit)
	err := r.db.SelectContext(ctx, &records, `
		SELECT id, created_at, market, outcome, side, size, price, status
		FROM trades
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Since returns trades created after the given time, newest first.
func (r *PostgresTradeRepo) Since(ctx context.Context, after time.Time, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	records := make([]model.TradeRecord, 0, limit)
	err := r.db.SelectContext(ctx, &records, `
		SELECT id, created_at, market, outcome, side, size, price, status
		FROM trades
		WHERE created_at > $1
		ORDER BY created_at DESC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Stats aggregates the successful trades for the dashboard.
func (r *PostgresTradeRepo) Stats(ctx context.Context) (model.TradeStats, error) {
	var stats model.TradeStats
	err := r.db.QueryRowxContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size * price), 0), MAX(created_at)
		FROM trades
		WHERE status = $1
	`, model.StatusSuccess).Scan(&stats.TotalTrades, &stats.TotalVolume, &stats.LastTradeAt)
	if err != nil {
		return model.TradeStats{}, err
	}
	return stats, nil
}
