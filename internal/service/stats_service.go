package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vendordesk/internal/repository"
	"vendordesk/internal/stats"
	"vendordesk/pkg/logger"
	"vendordesk/pkg/metrics"
)

const (
	summaryCacheKey      = "summary"
	DefaultStatsCacheTTL = 15 * time.Second
)

// StatsService gathers the inputs of the dashboard and computes it.
type StatsService struct {
	emails   EmailStore
	sessions SessionStore
	vendors  VendorStore
	cache    Cache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewStatsService builds the service. cache may be nil.
func NewStatsService(emails EmailStore, sessions SessionStore, vendors VendorStore, cache Cache, ttl time.Duration, logger *zap.Logger) *StatsService {
	if ttl <= 0 {
		ttl = DefaultStatsCacheTTL
	}
	return &StatsService{
		emails:   emails,
		sessions: sessions,
		vendors:  vendors,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
	}
}

// Summary returns the full dashboard summary, served from cache when fresh.
func (s *StatsService) Summary(ctx context.Context) (stats.Summary, error) {
	log := logger.WithTrace(ctx, s.logger)

	var cached stats.Summary
	if s.cache != nil {
		ok, err := s.cache.Get(ctx, summaryCacheKey, &cached)
		switch {
		case err != nil:
			metrics.IncrementStatsCache("error")
			log.Warn("Stats cache read failed, computing", zap.Error(err))
		case ok:
			metrics.IncrementStatsCache("hit")
			return cached, nil
		default:
			metrics.IncrementStatsCache("miss")
		}
	}

	summary, err := s.compute(ctx)
	if err != nil {
		return stats.Summary{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, summaryCacheKey, summary, s.ttl); err != nil {
			log.Warn("Stats cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// Dashboard returns only the headline counters.
func (s *StatsService) Dashboard(ctx context.Context) (stats.Dashboard, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return stats.Dashboard{}, err
	}
	return summary.Dashboard, nil
}

// VendorStats returns per-vendor stats ranked by session count.
func (s *StatsService) VendorStats(ctx context.Context) ([]stats.VendorStats, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return summary.Vendors, nil
}

func (s *StatsService) compute(ctx context.Context) (stats.Summary, error) {
	sessions, err := s.sessions.List(ctx, repository.SessionFilter{})
	if err != nil {
		return stats.Summary{}, fmt.Errorf("list sessions: %w", err)
	}
	vendors, err := s.vendors.List(ctx, repository.VendorFilter{})
	if err != nil {
		return stats.Summary{}, fmt.Errorf("list vendors: %w", err)
	}
	totals, err := s.emails.Totals(ctx)
	if err != nil {
		return stats.Summary{}, fmt.Errorf("email totals: %w", err)
	}
	return stats.Compute(sessions, vendors, totals), nil
}
