package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"sports-registration/internal/metrics"
)

// Counter is anything that can count its rows.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Stats is a point-in-time view of the registration drive.
type Stats struct {
	ActiveSessions int64
	Registrations  int64
}

func (s Stats) String() string {
	return fmt.Sprintf("%d registrations saved, %d in progress", s.Registrations, s.ActiveSessions)
}

// StatsService periodically publishes how many users are mid-registration and how many finished.
type StatsService struct {
	sessions      Counter
	registrations Counter
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

func NewStatsService(sessions, registrations Counter, m *metrics.Metrics, log zerolog.Logger) *StatsService {
	return &StatsService{
		sessions:      sessions,
		registrations: registrations,
		metrics:       m,
		log:           log.With().Str("component", "stats").Logger(),
	}
}

// Collect counts sessions and registrations and updates the gauges.
func (s *StatsService) Collect(ctx context.Context) (Stats, error) {
	active, err := s.sessions.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count sessions: %w", err)
	}
	stored, err := s.registrations.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count registrations: %w", err)
	}
	s.metrics.ActiveSessions.Set(float64(active))
	s.metrics.StoredRegistrations.Set(float64(stored))
	return Stats{ActiveSessions: active, Registrations: stored}, nil
}

// Report collects and logs the current stats.
func (s *StatsService) Report(ctx context.Context) error {
	stats, err := s.Collect(ctx)
	if err != nil {
		return err
	}
	s.log.Info().
		Int64("active_sessions", stats.ActiveSessions).
		Int64("registrations", stats.Registrations).
		Msg(stats.String())
	return nil
}
