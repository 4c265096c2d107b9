package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/persistence/memory"
)

func TestEverySpec(t *testing.T) {
	assert.Equal(t, "@every 1m0s", every(time.Minute))
	assert.Equal(t, "@every 5m0s", every(5*time.Minute))
	assert.Equal(t, "@every 30s", every(30*time.Second))

	// The formatted spec must be accepted by the cron parser.
	_, err := cron.ParseStandard(every(90 * time.Second))
	require.NoError(t, err)
}

func TestNewSweeperManagerIntervals(t *testing.T) {
	store := memory.NewPersistence()
	registry := actions.NewRegistry(slog.Default())

	sweeper := NewSweeperManager(store, nil, registry, slog.Default(), 30*time.Second, 2*time.Minute)
	assert.Equal(t, 30*time.Second, sweeper.resumeInterval)
	assert.Equal(t, 2*time.Minute, sweeper.retryInterval)

	// Zero or negative intervals fall back to the defaults.
	sweeper = NewSweeperManager(store, nil, registry, slog.Default(), 0, -time.Minute)
	assert.Equal(t, defaultResumeInterval, sweeper.resumeInterval)
	assert.Equal(t, defaultRetryInterval, sweeper.retryInterval)
}
