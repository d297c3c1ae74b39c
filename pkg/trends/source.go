// Package trends acquires trend signals from an external provider and turns
// them into the small ranked keyword set used to enrich prompts.
package trends

import (
	"context"

	"trendscribe/pkg/domain"
)

// Source performs one trend-provider call per invocation with no retry.
// Failures are reported as *ProviderError.
type Source interface {
	FetchRawTrends(ctx context.Context, category, regionCode string, windowHours int) ([]domain.RawTrendRecord, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, category, regionCode string, windowHours int) ([]domain.RawTrendRecord, error)

func (f SourceFunc) FetchRawTrends(ctx context.Context, category, regionCode string, windowHours int) ([]domain.RawTrendRecord, error) {
	return f(ctx, category, regionCode, windowHours)
}
