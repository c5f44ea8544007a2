package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-compliance-api/internal/compliance"
	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/observability"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

// DashboardService summarises a learner's compliance position.
type DashboardService interface {
	GetDashboard(ctx context.Context, userID uint) (dto.DashboardResponse, error)
	Invalidate(ctx context.Context, userID uint)
}

type dashboardService struct {
	assignments repository.AssignmentRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewDashboardService builds the dashboard aggregator. cache may be nil.
func NewDashboardService(assignments repository.AssignmentRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) DashboardService {
	return &dashboardService{
		assignments: assignments,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "dashboard_service").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func dashboardCacheKey(userID uint) string {
	return fmt.Sprintf("dashboard:compliance:%d", userID)
}

func (s *dashboardService) GetDashboard(ctx context.Context, userID uint) (dto.DashboardResponse, error) {
	cacheKey := dashboardCacheKey(userID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.DashboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.DashboardCache().WithLabelValues("hit").Inc()
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
		observability.DashboardCache().WithLabelValues("miss").Inc()
	}

	assignments, err := s.assignments.ListByAssignee(ctx, userID)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	now := s.now()
	response := dto.DashboardResponse{UserID: userID, GeneratedAt: now}
	for _, assignment := range assignments {
		response.Total++
		if assignment.IsOverdue(now) {
			response.Overdue++
		}

		status := compliance.StatusNotStarted
		if latest := assignment.LatestCompletedCycle(); latest != nil {
			status = latest.Status(now)
		}
		switch status {
		case compliance.StatusCompliant:
			response.Compliant++
		case compliance.StatusDueSoon:
			response.DueSoon++
		case compliance.StatusExpired:
			response.Expired++
		default:
			response.NotStarted++
		}
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, nil
}

// Invalidate drops the cached dashboard of a user.
func (s *dashboardService) Invalidate(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dashboardCacheKey(userID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to invalidate dashboard cache")
	}
}
