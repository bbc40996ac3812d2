package service

import (
	"github.com/videobot/broadcast-backend/internal/repository"
)

// ProgressTracker is the single write path for delivery counters. Every
// batch outcome goes through ApplyBatchOutcome; nothing else mutates the
// sent/failed/blocked columns.
type ProgressTracker struct {
	Broadcasts repository.BroadcastRepositoryInterface
}

// ApplyBatchOutcome adds one batch's classified outcomes to the persisted
// counters and returns the updated totals. The write is a single atomic
// statement, so progress survives a crash immediately after it.
func (p *ProgressTracker) ApplyBatchOutcome(broadcastID, sent, failed, blocked int) (*repository.BatchTotals, error) {
	return p.Broadcasts.ApplyBatchOutcome(broadcastID, sent, failed, blocked)
}
