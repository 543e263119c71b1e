package database

import (
	"context"

	"cycletrader/internal/model"
)

// Repository defines the standard interface for database operations.
type Repository interface {
	Migrate(ctx context.Context) error
	LogTrade(ctx context.Context, trade model.SubmittedTrade) error
	LogPathReports(ctx context.Context, reports []model.PathReport) error
}

// NopRepository discards everything. It is used when no database is configured.
type NopRepository struct{}

func (NopRepository) Migrate(context.Context) error                            { return nil }
func (NopRepository) LogTrade(context.Context, model.SubmittedTrade) error     { return nil }
func (NopRepository) LogPathReports(context.Context, []model.PathReport) error { return nil }
