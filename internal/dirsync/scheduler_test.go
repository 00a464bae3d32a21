package dirsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingRunner struct {
	calls      atomic.Int32
	tenantArgs []*string
	mu         sync.Mutex
	err        error
}

func (r *countingRunner) RunSync(_ context.Context, tenantID *string) ([]Summary, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.tenantArgs = append(r.tenantArgs, tenantID)
	r.mu.Unlock()
	return nil, r.err
}

func TestSchedulerRunsOnStart(t *testing.T) {
	runner := &countingRunner{}
	scheduler, err := NewScheduler(SchedulerConfig{Runner: runner, Schedule: "@every 1h", RunOnStart: true})
	require.NoError(t, err)

	scheduler.Start(context.Background())
	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	scheduler.Stop()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.tenantArgs, 1)
	assert.Nil(t, runner.tenantArgs[0])
}

func TestSchedulerSkipsStartupRunWhenDisabled(t *testing.T) {
	runner := &countingRunner{}
	scheduler, err := NewScheduler(SchedulerConfig{Runner: runner, Schedule: "@every 1h"})
	require.NoError(t, err)

	scheduler.Start(context.Background())
	scheduler.Stop()
	assert.Equal(t, int32(0), runner.calls.Load())
}

func TestSchedulerLogsRunnerFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	runner := &countingRunner{err: errors.New("list sync configs: database is locked")}
	scheduler, err := NewScheduler(SchedulerConfig{Runner: runner, RunOnStart: true, Logger: zap.New(core)})
	require.NoError(t, err)

	scheduler.Start(context.Background())
	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	scheduler.Stop()
	assert.Equal(t, 1, logs.FilterMessage("scheduled sync failed").Len())
}

func TestNewSchedulerRejectsInvalidSchedule(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{Runner: &countingRunner{}, Schedule: "every day"})
	require.Error(t, err)

	_, err = NewScheduler(SchedulerConfig{Schedule: DefaultSchedule})
	require.Error(t, err)
}
