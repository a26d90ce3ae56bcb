package store

import (
	"context"

	"github.com/nulzo/streamchat/internal/store/model"
)

// Repository is the main contract for the data layer.
type Repository interface {
	StreamLogs() StreamLogRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type StreamLogRepository interface {
	// Log stores a finished stream.
	Log(ctx context.Context, log *model.StreamLog) error
	// GetByID returns a single stream log.
	GetByID(ctx context.Context, id string) (*model.StreamLog, error)
	// GetRecent returns the last N logs, newest first.
	GetRecent(ctx context.Context, limit int) ([]model.StreamLog, error)
	// GetDailyStats returns aggregated stats grouped by day and provider.
	GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error)
}
