package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ruangpulih/clinic-api/internal/models"
	"github.com/ruangpulih/clinic-api/internal/repository"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
)

type conflictDetector interface {
	DetectConflicts(ctx context.Context, therapistID string, date time.Time) ([]models.ScheduleConflict, []models.SessionSnapshot, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, key string)
}

// DashboardService composes the therapist day view. Summaries are cached
// briefly since reception refreshes the same view many times a day.
type DashboardService struct {
	detector conflictDetector
	cache    summaryCache
	metrics  *MetricsService
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(detector conflictDetector, cache summaryCache, metrics *MetricsService, logger *zap.Logger, ttl time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DashboardService{detector: detector, cache: cache, metrics: metrics, logger: logger, ttl: ttl, now: time.Now}
}

// TherapistDay returns the composed day view for one therapist. The second
// return value reports whether the summary came from cache.
func (s *DashboardService) TherapistDay(ctx context.Context, therapistID, rawDate string) (*models.TherapistDaySummary, bool, error) {
	if therapistID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "therapist_id is required")
	}
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "date must be an ISO date")
	}
	day := dateOnly(date)

	cacheKey := fmt.Sprintf("dash:therapist:%s:%s", therapistID, day.Format("2006-01-02"))
	if s.cache != nil {
		var cached models.TherapistDaySummary
		switch err := s.cache.Get(ctx, cacheKey, &cached); {
		case err == nil:
			if s.metrics != nil {
				s.metrics.RecordCacheOperation(true)
			}
			return &cached, true, nil
		case !errors.Is(err, repository.ErrCacheMiss):
			s.logger.Warn("dashboard cache lookup failed", zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false)
		}
	}

	conflicts, sessions, err := s.detector.DetectConflicts(ctx, therapistID, day)
	if err != nil {
		return nil, false, err
	}

	summary := &models.TherapistDaySummary{
		TherapistID: therapistID,
		Date:        day.Format("2006-01-02"),
		ByStatus:    map[string]int{},
		Sessions:    sessions,
		Conflicts:   conflicts,
		GeneratedAt: s.now().UTC(),
	}
	for _, session := range sessions {
		summary.TotalSessions++
		summary.TotalMinutes += session.Duration
		summary.ByStatus[string(session.Status)]++
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, summary, s.ttl); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return summary, false, nil
}

// InvalidateTherapistDay drops the cached summary after a booking change.
func (s *DashboardService) InvalidateTherapistDay(ctx context.Context, therapistID string, date time.Time) {
	if s.cache == nil {
		return
	}
	key := fmt.Sprintf("dash:therapist:%s:%s", therapistID, dateOnly(date).Format("2006-01-02"))
	s.cache.Invalidate(ctx, key)
}
