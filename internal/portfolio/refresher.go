package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher re-fetches the NAVs of held schemes on a cron schedule so that
// reports read warm cache entries.
type Refresher struct {
	service  *Service
	schedule cron.Schedule
	expr     string
	logger   *zap.Logger

	mu   sync.Mutex
	last RefreshResult
	at   time.Time
}

// NewRefresher validates expr, a standard five-field cron expression or a
// descriptor such as "@daily".
func NewRefresher(service *Service, expr string, logger *zap.Logger) (*Refresher, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", expr, err)
	}
	return &Refresher{
		service:  service,
		schedule: schedule,
		expr:     expr,
		logger:   logger.Named("refresher"),
	}, nil
}

// Run refreshes once immediately and then on every tick of the schedule
// until ctx is cancelled. A running refresh is allowed to finish.
func (r *Refresher) Run(ctx context.Context) {
	r.logger.Info("Starting NAV refresher", zap.String("schedule", r.expr))

	c := cron.New(
		cron.WithLogger(cronLogger{r.logger.Sugar()}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.logger.Sugar()})),
	)
	c.Schedule(r.schedule, cron.FuncJob(func() { r.RefreshOnce(ctx) }))

	r.RefreshOnce(ctx)
	c.Start()
	r.logger.Info("Next refresh scheduled", zap.Time("at", r.schedule.Next(time.Now())))

	<-ctx.Done()
	r.logger.Info("Stopping NAV refresher...")
	<-c.Stop().Done()
}

// RefreshOnce performs a single refresh and records its result.
func (r *Refresher) RefreshOnce(ctx context.Context) RefreshResult {
	if ctx.Err() != nil {
		return RefreshResult{}
	}

	start := time.Now()
	res, err := r.service.RefreshNAVs(ctx)
	if err != nil {
		r.logger.Error("NAV refresh failed", zap.Error(err))
	}

	l := r.logger.With(
		zap.Int("schemes", res.Schemes),
		zap.Int("refreshed", res.Refreshed),
		zap.Int("stale", len(res.Stale)),
		zap.Int("failed", len(res.Failed)),
		zap.Duration("took", time.Since(start)),
	)
	for code, ferr := range res.Failed {
		r.logger.Warn("Could not refresh scheme", zap.String("scheme_code", code), zap.Error(ferr))
	}
	if len(res.Stale) > 0 {
		l.Warn("NAV source unavailable for some schemes, cached data kept", zap.Strings("stale_schemes", res.Stale))
	} else {
		l.Info("NAV refresh complete")
	}

	r.mu.Lock()
	r.last, r.at = res, time.Now()
	r.mu.Unlock()
	return res
}

// Last returns the result of the most recent refresh and when it finished.
func (r *Refresher) Last() (RefreshResult, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.at
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
