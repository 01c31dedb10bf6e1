package service

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/scalehq/entitlements/internal/clock"
	"github.com/scalehq/entitlements/internal/observability/metrics"
	usagedomain "github.com/scalehq/entitlements/internal/usage/domain"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// statsEventLimit bounds the recent-events slice returned with stats.
const statsEventLimit = 100

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    usagedomain.Repository
	users   userdomain.Service
	metrics *metrics.Metrics

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    usagedomain.Repository
	Users   userdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("usage.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		users:   p.Users,
		metrics: p.Metrics,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Track implements domain.Service. Gating order is fixed: the user must
// exist, the event's feature must be entitled, and only then is quota
// consumed. A quota denial records nothing in the event log.
func (s *Service) Track(ctx context.Context, req usagedomain.TrackRequest) (*usagedomain.TrackResult, error) {
	if !req.Type.Valid() {
		return nil, usagedomain.ErrInvalidEventType
	}

	user, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	feature := strings.TrimSpace(req.Feature)
	if feature == "" {
		feature = req.Type.DefaultFeature()
	}
	if !user.HasFeature(feature) {
		s.log.Info("usage event rejected, feature not entitled",
			zap.String("user_id", user.ID),
			zap.String("tier", string(user.Tier)),
			zap.String("feature", feature),
		)
		return nil, usagedomain.ErrFeatureNotEntitled
	}

	user, err = s.users.ConsumeQuota(ctx, user.ID, req.Type.QuotaCounted())
	if err != nil {
		if err == userdomain.ErrQuotaExceeded {
			s.metrics.RecordQuotaDenied(ctx, string(user.Tier))
			return &usagedomain.TrackResult{User: user}, err
		}
		return nil, err
	}

	event := s.newEvent(user.ID, req.Type, feature, req.Metadata)
	if err := s.repo.Insert(ctx, s.db, event); err != nil {
		return nil, err
	}

	s.metrics.RecordUsageTracked(ctx, string(req.Type))
	return &usagedomain.TrackResult{Event: event, User: user}, nil
}

// Stats implements domain.Service. Aggregation runs in memory over the
// filtered listing; per-user event volume is small enough that pushing
// the group-bys into SQL buys nothing.
func (s *Service) Stats(ctx context.Context, req usagedomain.StatsRequest) (*usagedomain.StatsResponse, error) {
	user, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	query := usagedomain.EventQuery{
		UserID:    user.ID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if t := usagedomain.EventType(strings.TrimSpace(req.Type)); t != "" {
		if !t.Valid() {
			return nil, usagedomain.ErrInvalidEventType
		}
		query.Type = t
	}

	events, err := s.repo.ListByUser(ctx, s.db, query)
	if err != nil {
		return nil, err
	}

	stats := aggregate(events)
	if len(events) > statsEventLimit {
		events = events[:statsEventLimit]
	}

	return &usagedomain.StatsResponse{
		User:   user,
		Stats:  stats,
		Events: events,
	}, nil
}

// PurgeExpired implements domain.Service.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-usagedomain.RetentionWindow)
	deleted, err := s.repo.DeleteOlderThan(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("purged expired usage events",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

func (s *Service) newEvent(userID string, t usagedomain.EventType, feature string, meta usagedomain.EventMetadata) *usagedomain.UsageEvent {
	now := s.clock.Now()

	success := true
	if meta.Success != nil {
		success = *meta.Success
	}

	var extra datatypes.JSONMap
	if len(meta.Extra) > 0 {
		extra = datatypes.JSONMap(meta.Extra)
	}

	return &usagedomain.UsageEvent{
		ID:               s.nextID(now),
		UserID:           userID,
		Type:             t,
		Feature:          feature,
		Timestamp:        now,
		ModelName:        meta.ModelName,
		TokensUsed:       meta.TokensUsed,
		ResponseTimeMS:   meta.ResponseTimeMS,
		Success:          success,
		ErrorMessage:     meta.ErrorMessage,
		Source:           meta.Source,
		ExtensionVersion: meta.ExtensionVersion,
		Metadata:         extra,
	}
}

// nextID returns a ULID so event IDs sort by creation time.
func (s *Service) nextID(now time.Time) string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

func aggregate(events []usagedomain.UsageEvent) usagedomain.Stats {
	stats := usagedomain.Stats{
		TotalEvents:     int64(len(events)),
		EventsByType:    map[string]int64{},
		EventsByFeature: map[string]int64{},
		EventsByDay:     map[string]int64{},
	}
	if len(events) == 0 {
		return stats
	}

	var (
		responseTotal int64
		responseCount int64
		successCount  int64
	)
	for _, ev := range events {
		stats.EventsByType[string(ev.Type)]++
		stats.EventsByFeature[ev.Feature]++
		stats.EventsByDay[ev.Timestamp.UTC().Format("2006-01-02")]++
		if ev.ResponseTimeMS > 0 {
			responseTotal += int64(ev.ResponseTimeMS)
			responseCount++
		}
		if ev.Success {
			successCount++
		}
	}
	if responseCount > 0 {
		stats.AverageResponseTime = float64(responseTotal) / float64(responseCount)
	}
	stats.SuccessRate = float64(successCount) / float64(len(events))
	return stats
}
