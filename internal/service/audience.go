package service

import (
	"github.com/rs/zerolog"

	"github.com/videobot/broadcast-backend/internal/model"
	"github.com/videobot/broadcast-backend/internal/repository"
)

// AudienceStats describes the resolved audience of one broadcast.
type AudienceStats struct {
	TotalRecipients  int            `json:"total_recipients"`
	TypeDistribution map[string]int `json:"user_type_distribution,omitempty"`
	TargetType       string         `json:"target_type"`
}

// AudienceResolver computes the recipient set of a broadcast from the user
// directory at query time. It is a pure read except for PersistTotal.
type AudienceResolver struct {
	Users      repository.UserRepositoryInterface
	Broadcasts repository.BroadcastRepositoryInterface
	Log        zerolog.Logger
}

// Count returns the audience size. For specific_users the id set itself
// is the audience, so no directory query runs.
func (r *AudienceResolver) Count(b *model.Broadcast) (int, error) {
	if b.TargetType == model.TargetSpecificUsers {
		return len(b.TargetUserIDs), nil
	}
	return r.Users.CountByFilter(b.TargetType, b.TargetFilters)
}

// Sample returns up to limit matching users for previews.
func (r *AudienceResolver) Sample(b *model.Broadcast, limit int) ([]model.User, error) {
	if b.TargetType == model.TargetSpecificUsers {
		return r.Users.ListByIDs(b.TargetUserIDs, 0, limit)
	}
	return r.Users.SampleByFilter(b.TargetType, b.TargetFilters, limit)
}

// Recipients pages through the audience in stable order for dispatching.
func (r *AudienceResolver) Recipients(b *model.Broadcast, offset, limit int) ([]model.User, error) {
	if b.TargetType == model.TargetSpecificUsers {
		return r.Users.ListByIDs(b.TargetUserIDs, offset, limit)
	}
	return r.Users.ListRecipients(b.TargetType, b.TargetFilters, offset, limit)
}

// Stats bundles the count with a per-user-type breakdown.
func (r *AudienceResolver) Stats(b *model.Broadcast) (*AudienceStats, error) {
	total, err := r.Count(b)
	if err != nil {
		return nil, err
	}
	stats := &AudienceStats{TotalRecipients: total, TargetType: b.TargetType}
	if b.TargetType != model.TargetSpecificUsers {
		dist, err := r.Users.TypeDistribution(b.TargetType, b.TargetFilters)
		if err != nil {
			return nil, err
		}
		stats.TypeDistribution = dist
	}
	return stats, nil
}

// PersistTotal recomputes the audience size and writes it onto the
// broadcast. Invoked asynchronously at creation and again synchronously by
// the dispatcher when the stored count is still zero.
func (r *AudienceResolver) PersistTotal(b *model.Broadcast) (int, error) {
	total, err := r.Count(b)
	if err != nil {
		return 0, err
	}
	if err := r.Broadcasts.SetTotalRecipients(b.ID, total); err != nil {
		return 0, err
	}
	b.TotalRecipients = total
	return total, nil
}

// PersistTotalAsync runs PersistTotal on its own goroutine, logging
// failures instead of surfacing them. Used right after creation so the
// admin response does not wait on a directory scan.
func (r *AudienceResolver) PersistTotalAsync(b *model.Broadcast) {
	snapshot := *b
	go func() {
		if total, err := r.PersistTotal(&snapshot); err != nil {
			r.Log.Warn().Err(err).Int("broadcast_id", snapshot.ID).Msg("audience count failed")
		} else {
			r.Log.Debug().Int("broadcast_id", snapshot.ID).Int("total", total).Msg("audience counted")
		}
	}()
}
