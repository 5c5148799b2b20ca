package cache

import (
	"context"
	"time"

	"bakerypos/backend/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.DailyReport, bool, error)
	Set(ctx context.Context, key string, value *domain.DailyReport, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.DailyReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.DailyReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

// DailyReportKey is the cache key of one business day's report.
func DailyReportKey(date string) string {
	return "report:daily:" + date
}

type SuggestionCache interface {
	Get(ctx context.Context, key string) (*domain.SuggestionResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.SuggestionResponse, ttl time.Duration) error
}

type NoopSuggestionCache struct{}

func (NoopSuggestionCache) Get(_ context.Context, _ string) (*domain.SuggestionResponse, bool, error) {
	return nil, false, nil
}

func (NoopSuggestionCache) Set(_ context.Context, _ string, _ *domain.SuggestionResponse, _ time.Duration) error {
	return nil
}
