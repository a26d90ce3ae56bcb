package analytics

import (
	"context"

	"github.com/nulzo/streamchat/internal/store"
	"github.com/nulzo/streamchat/internal/store/model"
)

const (
	defaultDays  = 7
	defaultLimit = 20
	maxLimit     = 200
)

type Service interface {
	GetUsageOverview(ctx context.Context, days int) ([]model.DailyStats, error)
	GetRecent(ctx context.Context, limit int) ([]model.StreamLog, error)
}

type service struct {
	repo store.Repository
}

func NewService(repo store.Repository) Service {
	return &service{
		repo: repo,
	}
}

func (s *service) GetUsageOverview(ctx context.Context, days int) ([]model.DailyStats, error) {
	if days <= 0 {
		days = defaultDays
	}
	return s.repo.StreamLogs().GetDailyStats(ctx, days)
}

func (s *service) GetRecent(ctx context.Context, limit int) ([]model.StreamLog, error) {
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	return s.repo.StreamLogs().GetRecent(ctx, limit)
}
