// Package schedule optionally triggers dispatch sweeps on a timer.
//
// The schedule spec accepts crontab syntax ("*/30 9-18 * * *", "@hourly")
// or a plain Go duration ("45m"), which is normalized to "@every 45m".
// Scheduled runs that fire while the session is not ready, or while a
// sweep is already active, are skipped and logged; they are never queued.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wabot/internal/dispatch"
	logx "wabot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Spec     string
	UseImage bool
	Timezone string
}

// Runner is the sweep trigger; the real implementation is
// Dispatcher.Dispatch.
type Runner interface {
	Dispatch(ctx context.Context, useAttachment bool) (*dispatch.Result, error)
}

type Service struct {
	cfg    Config
	runner Runner
	log    logx.Logger

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, runner Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, runner: runner, log: log}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

// Start registers the schedule and begins firing. It is a no-op when the
// service is disabled or already started.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}

	spec, err := NormalizeSpec(s.cfg.Spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(spec, func() { s.run(ctx) })
	if err != nil {
		return fmt.Errorf("schedule.spec %q: %w", s.cfg.Spec, err)
	}
	c.Start()
	s.c = c
	s.log.Info("sweep schedule started", logx.String("spec", spec))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		s.log.Info("sweep schedule stopped")
	}
}

func (s *Service) run(ctx context.Context) {
	res, err := s.runner.Dispatch(ctx, s.cfg.UseImage)
	switch {
	case errors.Is(err, dispatch.ErrNotReady):
		s.log.Debug("scheduled sweep skipped: session not ready")
	case errors.Is(err, dispatch.ErrSweepActive):
		s.log.Debug("scheduled sweep skipped: sweep already running")
	case err != nil:
		s.log.Error("scheduled sweep failed", logx.Err(err))
	default:
		s.log.Info("scheduled sweep finished",
			logx.Int("sent", res.Sent),
			logx.Int("failed", res.Failed),
		)
	}
}

// NormalizeSpec validates a schedule string and rewrites plain durations
// into cron's @every form.
func NormalizeSpec(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("schedule.spec is required when schedule is enabled")
	}

	// A plain duration ("45m", "1h30m") becomes "@every 45m".
	if !strings.ContainsAny(s, " \t") && !strings.HasPrefix(s, "@") {
		if d, err := time.ParseDuration(s); err == nil {
			if d < time.Minute {
				return "", fmt.Errorf("schedule.spec %q: interval below 1m would hammer the transport", raw)
			}
			return "@every " + d.String(), nil
		}
	}

	if _, err := cron.ParseStandard(s); err != nil {
		return "", fmt.Errorf("schedule.spec %q: %w", raw, err)
	}
	return s, nil
}
