package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/branchpnl/pnl-dashboard/internal/converter"
)

// InboxScheduler periodically uploads every workbook dropped into the
// converter's input directory.
type InboxScheduler struct {
	schedule string
	cron     *cron.Cron
	conv     *converter.Converter
	opts     converter.BatchOptions
	logger   *slog.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewInboxScheduler validates schedule and registers the inbox job. The job
// does not run until Start is called.
func NewInboxScheduler(schedule string, loc *time.Location, conv *converter.Converter, opts converter.BatchOptions, logger *slog.Logger) (*InboxScheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &InboxScheduler{
		schedule: schedule,
		conv:     conv,
		opts:     opts,
		logger:   logger,
		ctx:      context.Background(),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid inbox schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduling. Runs started afterwards are cancelled with ctx.
func (s *InboxScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("inbox scheduler started", "schedule", s.schedule)
}

// Stop halts scheduling and waits for a running job to finish.
func (s *InboxScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("inbox scheduler stopped")
}

// RunOnce processes the inbox immediately.
func (s *InboxScheduler) RunOnce(ctx context.Context) (converter.BatchReport, error) {
	return s.conv.ProcessInbox(ctx, s.opts)
}

func (s *InboxScheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	s.logger.Info("inbox job starting")
	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("inbox job failed", "error", err)
		return
	}
	if report.Summary.TotalFiles == 0 {
		s.logger.Debug("inbox empty")
		return
	}
	s.logger.Info("inbox job completed",
		"files", report.Summary.TotalFiles,
		"succeeded", report.Summary.SuccessfulFiles,
		"failed", report.Summary.FailedFiles,
		"summary", report.SummaryPath)
}
