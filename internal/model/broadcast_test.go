package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressCounters(t *testing.T) {
	b := &Broadcast{TotalRecipients: 200, SentCount: 90, FailedCount: 6, BlockedCount: 4}

	assert.Equal(t, 100, b.Processed())
	assert.Equal(t, 100, b.Remaining())
	assert.InDelta(t, 50.0, b.ProgressPercent(), 0.001)
	assert.InDelta(t, 45.0, b.SuccessRate(), 0.001)
}

func TestProgressWithZeroTotal(t *testing.T) {
	b := &Broadcast{}

	assert.Equal(t, 0, b.Remaining())
	assert.Equal(t, float64(0), b.ProgressPercent())
	assert.Equal(t, float64(0), b.SuccessRate())
}

func TestRemainingNeverNegative(t *testing.T) {
	b := &Broadcast{TotalRecipients: 5, SentCount: 10}
	assert.Equal(t, 0, b.Remaining())
}

func TestIsTerminal(t *testing.T) {
	terminal := map[string]bool{
		StatusCompleted: true,
		StatusCancelled: true,
		StatusFailed:    true,
	}
	for _, s := range AllStatuses {
		b := &Broadcast{Status: s}
		assert.Equal(t, terminal[s], b.IsTerminal(), "status %s", s)
	}
}

func TestEstimatedCompletion(t *testing.T) {
	now := time.Now()
	started := now.Add(-time.Minute)

	b := &Broadcast{
		Status:            StatusSending,
		StartedAt:         &started,
		TotalRecipients:   100,
		SentCount:         40,
		SendRatePerMinute: 30,
	}
	eta := b.EstimatedCompletion(now)
	require.NotNil(t, eta)
	// 60 remaining at 30/min is two minutes out.
	assert.WithinDuration(t, now.Add(2*time.Minute), *eta, time.Second)

	b.Status = StatusPaused
	assert.Nil(t, b.EstimatedCompletion(now))

	b.Status = StatusSending
	b.StartedAt = nil
	assert.Nil(t, b.EstimatedCompletion(now))
}

func TestValidStatusAndTargetType(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, ValidStatus(s))
	}
	assert.False(t, ValidStatus("archived"))

	for _, tt := range AllTargetTypes {
		assert.True(t, ValidTargetType(tt))
	}
	assert.False(t, ValidTargetType("everyone"))
}
