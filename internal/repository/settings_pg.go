package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/polymirror/polymirror/internal/model"
	"github.com/polymirror/polymirror/internal/pkg/apperrors"
)

// Default settings seeded on first boot. The bot starts inactive so a
// fresh deployment never trades before an operator turns it on.
var defaultSettings = model.BotSettings{
	IsActive:      false,
	CopyRatio:     0.1,
	MaxNotional:   500,
	TargetAccount: "0x6031b6eed1c97e853c6e0f03ad3ce3529351f96d",
}

// PostgresSettingsRepo stores the single mutable settings row. The id=1
// constraint keeps it a singleton; every write is a full-row upsert.
type PostgresSettingsRepo struct {
	db *sqlx.DB
}

func NewPostgresSettingsRepo(db *sqlx.DB) *PostgresSettingsRepo {
	repo := &PostgresSettingsRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresSettingsRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bot_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			is_active BOOLEAN NOT NULL,
			copy_ratio DOUBLE PRECISION NOT NULL,
			max_notional DOUBLE PRECISION NOT NULL,
			target_account TEXT NOT NULL
		)
	`)
	return err
}

// EnsureDefaults seeds the settings row if it does not exist yet.
// Idempotent: an existing row is left untouched.
func (r *PostgresSettingsRepo) EnsureDefaults(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bot_settings (id, is_active, copy_ratio, max_notional, target_account)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, defaultSettings.IsActive, defaultSettings.CopyRatio,
		defaultSettings.MaxNotional, defaultSettings.TargetAccount)
	if err != nil {
		return apperrors.New(apperrors.ErrConfigUnavailable, "failed to seed default settings", err)
	}
	return nil
}

func (r *PostgresSettingsRepo) Load(ctx context.Context) (model.BotSettings, error) {
	var settings model.BotSettings
	err := r.db.GetContext(ctx, &settings, `
		SELECT is_active, copy_ratio, max_notional, target_account
		FROM bot_settings WHERE id = 1
	`)
	if err != nil {
		return model.BotSettings{}, apperrors.New(apperrors.ErrConfigUnavailable, "failed to load settings", err)
	}
	return settings, nil
}

func (r *PostgresSettingsRepo) Save(ctx context.Context, settings model.BotSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bot_settings (id, is_active, copy_ratio, max_notional, target_account)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			copy_ratio = EXCLUDED.copy_ratio,
			max_notional = EXCLUDED.max_notional,
			target_account = EXCLUDED.target_account
	`, settings.IsActive, settings.CopyRatio, settings.MaxNotional, settings.TargetAccount)
	if err != nil {
		return apperrors.New(apperrors.ErrConfigUnavailable, "failed to save settings", err)
	}
	return nil
}

// SetActive flips only the trading toggle, leaving tuning untouched.
func (r *PostgresSettingsRepo) SetActive(ctx context.Context, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE bot_settings SET is_active = $1 WHERE id = 1`, active)
	if err != nil {
		return apperrors.New(apperrors.ErrConfigUnavailable, "failed to toggle bot", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrConfigUnavailable, "settings row missing", nil)
	}
	return nil
}
