package jobs

import (
	"context"
	"fmt"
	"math"
	"time"

	"DebtPortfolioSaas/internal/config"
	"DebtPortfolioSaas/internal/logger"

	"github.com/robfig/cron/v3"
)

// StagedRowPurger removes staged rows whose jobs finished before the cutoff.
type StagedRowPurger interface {
	PurgeExpiredStagedRows(ctx context.Context, cutoff time.Time) (int64, error)
}

type RetentionConfig struct {
	Schedule      string
	TimeZone      string
	RetentionDays int
	MaxRetries    int
	RetryDelay    time.Duration
}

func NewDefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Schedule:      config.DefaultRetentionSchedule,
		TimeZone:      config.DefaultTimeZone,
		RetentionDays: config.DefaultRetentionDays,
		MaxRetries:    3,
		RetryDelay:    2 * time.Second,
	}
}

// RetryWithBackoff executes a function with exponential backoff retry logic
func RetryWithBackoff(maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			logger.Audit(fmt.Sprintf("Retrying after %v (attempt %d/%d)", delay, attempt, maxRetries))
			time.Sleep(delay)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		logger.Audit(fmt.Sprintf("Attempt %d failed: %v", attempt+1, lastErr))
	}

	return fmt.Errorf("failed after %d attempts: %v", maxRetries+1, lastErr)
}

// RetentionService purges staged rows of finished import jobs on a schedule.
type RetentionService struct {
	cfg    *RetentionConfig
	purger StagedRowPurger
	cron   *cron.Cron
}

func NewRetentionService(cfg *RetentionConfig, purger StagedRowPurger) *RetentionService {
	if cfg == nil {
		cfg = NewDefaultRetentionConfig()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultRetentionSchedule
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = config.DefaultRetentionDays
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &RetentionService{cfg: cfg, purger: purger}
}

func (s *RetentionService) Name() string { return "retention" }

func (s *RetentionService) Start() error {
	loc, err := time.LoadLocation(s.cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid timezone for retention job: %v", err)
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(s.cfg.Schedule, func() {
		logger.Audit(fmt.Sprintf("Running staged row retention purge at %s", time.Now().In(loc)))
		if err := s.RunOnce(context.Background()); err != nil {
			logger.Audit(fmt.Sprintf("Staged row retention purge failed: %v", err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention cron job: %v", err)
	}
	c.Start()
	s.cron = c
	return nil
}

func (s *RetentionService) Stop() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return nil
}

// RunOnce purges staged rows for jobs that finished before the retention cutoff.
func (s *RetentionService) RunOnce(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	var purged int64
	err := RetryWithBackoff(s.cfg.MaxRetries, s.cfg.RetryDelay, func() error {
		n, err := s.purger.PurgeExpiredStagedRows(ctx, cutoff)
		if err != nil {
			return err
		}
		purged = n
		return nil
	})
	if err != nil {
		return err
	}
	logger.Audit(fmt.Sprintf("Staged row retention purge removed %d rows older than %s", purged, cutoff.Format("2006-01-02")))
	return nil
}
