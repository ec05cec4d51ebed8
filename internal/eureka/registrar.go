package eureka

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule is the heartbeat interval Eureka expects by default.
const DefaultSchedule = "@every 30s"

const heartbeatTimeout = 10 * time.Second

// Registrar registers a Client and sends heartbeats on a cron schedule.
type Registrar struct {
	client   *Client
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewRegistrar returns a registrar for client. An empty schedule means
// DefaultSchedule.
func NewRegistrar(client *Client, schedule string, logger *zap.Logger) *Registrar {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Registrar{
		client:   client,
		schedule: schedule,
		cron:     cron.New(cron.WithLogger(cron.PrintfLogger(zap.NewStdLog(logger.Named("cron"))))),
		logger:   logger,
	}
}

// Start registers the instance and schedules heartbeats. Heartbeats are
// scheduled even when registration fails, and the registration error is
// returned. Nothing is scheduled for a disabled client.
func (r *Registrar) Start(ctx context.Context) error {
	if !r.client.enabled {
		r.logger.Info("eureka registration is disabled")
		return nil
	}
	sched, err := cron.ParseStandard(r.schedule)
	if err != nil {
		return fmt.Errorf("schedule eureka heartbeat %q: %w", r.schedule, err)
	}
	// A failed registration is retried by the heartbeat job.
	regErr := r.client.Register(ctx)
	r.cron.Schedule(sched, cron.FuncJob(func() {
		hbCtx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
		defer cancel()
		if err := r.client.Heartbeat(hbCtx); err != nil {
			r.logger.Warn("eureka heartbeat failed", zap.Error(err))
		}
	}))
	r.cron.Start()
	return regErr
}

// Stop halts heartbeats, waiting for a running one up to ctx, then
// deregisters.
func (r *Registrar) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
	return r.client.Deregister(ctx)
}
