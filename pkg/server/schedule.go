package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raterudder/luminus/pkg/log"
	"github.com/raterudder/luminus/pkg/metrics"
	"github.com/robfig/cron/v3"
)

const snapshotJob = "price_snapshot"

// startScheduler runs runUpdate on updateSchedule. It returns nil when no
// schedule is configured.
func (s *Server) startScheduler(ctx context.Context) (*cron.Cron, error) {
	if s.updateSchedule == "" {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(s.updateSchedule, func() {
		s.scheduledUpdate(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid update schedule %q: %w", s.updateSchedule, err)
	}
	c.Start()
	log.Ctx(ctx).InfoContext(ctx, "price snapshot schedule started", slog.String("schedule", s.updateSchedule))
	return c, nil
}

func (s *Server) scheduledUpdate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("job", snapshotJob)))

	_, err := s.runUpdate(ctx)
	metrics.UpdateJobMetrics(snapshotJob, err)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "scheduled price snapshot failed", slog.Any("error", err))
	}
}
