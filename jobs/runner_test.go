package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteStampsReport(t *testing.T) {
	report := Execute(context.Background(), quiet(), "audit", func(ctx context.Context) (Report, error) {
		r := Report{Processed: 3, Succeeded: 2}
		r.Fail(errors.New("lock wait timed out"))
		return r, nil
	})

	assert.Equal(t, "audit", report.Job)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"lock wait timed out"}, report.Errors)
	assert.False(t, report.StartedAt.IsZero())
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestExecuteKeepsReportOnError(t *testing.T) {
	report := Execute(context.Background(), quiet(), "resync", func(ctx context.Context) (Report, error) {
		return Report{Processed: 1}, errors.New("database unavailable")
	})
	assert.Equal(t, 1, report.Processed)
}

func TestGocronRunnerRunsRegisteredJob(t *testing.T) {
	runner, err := NewGocronRunner(quiet())
	require.NoError(t, err)

	var calls atomic.Int32
	require.NoError(t, runner.Register("tick", 20*time.Millisecond, func(ctx context.Context) (Report, error) {
		calls.Add(1)
		return Report{}, nil
	}))
	runner.Start()
	defer runner.Shutdown()

	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGocronRunnerSkipsDisabledJob(t *testing.T) {
	runner, err := NewGocronRunner(quiet())
	require.NoError(t, err)
	assert.NoError(t, runner.Register("off", 0, func(ctx context.Context) (Report, error) {
		return Report{}, nil
	}))
	runner.Start()
	assert.NoError(t, runner.Shutdown())
	assert.NoError(t, runner.Shutdown())
}
