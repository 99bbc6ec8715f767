// Package jobs runs periodic maintenance functions. Each job is a plain
// function returning a Report, so it can be tested without a scheduler.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/tournament-progression/metrics"
	"github.com/go-co-op/gocron/v2"
)

type Report struct {
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Errors     []string  `json:"errors,omitempty"`
}

// Fail records one failed unit of work without aborting the sweep.
func (r *Report) Fail(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err.Error())
}

type Job func(ctx context.Context) (Report, error)

type Runner interface {
	Register(name string, every time.Duration, job Job) error
	Start()
	Shutdown() error
}

type gocronRunner struct {
	sched  gocron.Scheduler
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewGocronRunner(logger *slog.Logger) (Runner, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &gocronRunner{sched: sched, logger: logger, ctx: ctx, cancel: cancel}, nil
}

func (r *gocronRunner) Register(name string, every time.Duration, job Job) error {
	if every <= 0 {
		r.logger.Info("job disabled", slog.String("job", name))
		return nil
	}
	_, err := r.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			Execute(r.ctx, r.logger, name, job)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}
	r.logger.Info("job registered", slog.String("job", name), slog.Duration("every", every))
	return nil
}

func (r *gocronRunner) Start() {
	r.sched.Start()
}

func (r *gocronRunner) Shutdown() error {
	var err error
	r.once.Do(func() {
		r.cancel()
		err = r.sched.Shutdown()
	})
	return err
}

// Execute runs one job invocation and records its outcome.
func Execute(ctx context.Context, logger *slog.Logger, name string, job Job) Report {
	started := time.Now()
	report, err := job(ctx)
	report.Job = name
	if report.StartedAt.IsZero() {
		report.StartedAt = started
	}
	report.FinishedAt = time.Now()

	attrs := []any{
		slog.String("job", name),
		slog.Int("processed", report.Processed),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	}
	switch {
	case err != nil:
		metrics.ObserveJobRun(name, "error")
		logger.Error("job failed", append(attrs, slog.Any("error", err))...)
	case report.Failed > 0:
		metrics.ObserveJobRun(name, "partial")
		logger.Warn("job finished with failures", attrs...)
	default:
		metrics.ObserveJobRun(name, "ok")
		logger.Info("job finished", attrs...)
	}
	return report
}
