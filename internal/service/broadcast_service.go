package service

import (
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/videobot/broadcast-backend/internal/errors"
	"github.com/videobot/broadcast-backend/internal/identity"
	"github.com/videobot/broadcast-backend/internal/model"
	"github.com/videobot/broadcast-backend/internal/queue"
	"github.com/videobot/broadcast-backend/internal/repository"
)

const maxTitleLength = 200

// BroadcastService carries the admin-facing broadcast operations: CRUD,
// the approval gate and the lifecycle actions that hand work to the
// dispatcher through the task queue.
type BroadcastService struct {
	Broadcasts repository.BroadcastRepositoryInterface
	Audience   *AudienceResolver
	Queue      queue.DispatchQueue
	Log        zerolog.Logger
}

// CreateInput is the operator-supplied broadcast definition.
type CreateInput struct {
	Title               string                `json:"title"`
	MessageText         string                `json:"message_text"`
	ParseMode           string                `json:"parse_mode"`
	TargetType          string                `json:"target_type"`
	TargetUserIDs       []int64               `json:"target_user_ids"`
	TargetFilters       *model.TargetFilters  `json:"target_filters"`
	MediaType           *string               `json:"media_type"`
	MediaFileID         *string               `json:"media_file_id"`
	MediaCaption        *string               `json:"media_caption"`
	InlineKeyboard      *string               `json:"inline_keyboard"`
	ScheduledAt         *time.Time            `json:"scheduled_at"`
	SendRatePerMinute   int                   `json:"send_rate_per_minute"`
	DisableNotification bool                  `json:"disable_notification"`
	ProtectContent      bool                  `json:"protect_content"`
}

// UpdateInput carries partial updates; nil pointers leave fields untouched.
type UpdateInput struct {
	Title               *string              `json:"title"`
	MessageText         *string              `json:"message_text"`
	ParseMode           *string              `json:"parse_mode"`
	TargetType          *string              `json:"target_type"`
	TargetUserIDs       []int64              `json:"target_user_ids"`
	TargetFilters       *model.TargetFilters `json:"target_filters"`
	MediaType           *string              `json:"media_type"`
	MediaFileID         *string              `json:"media_file_id"`
	MediaCaption        *string              `json:"media_caption"`
	InlineKeyboard      *string              `json:"inline_keyboard"`
	ScheduledAt         *time.Time           `json:"scheduled_at"`
	SendRatePerMinute   *int                 `json:"send_rate_per_minute"`
	DisableNotification *bool                `json:"disable_notification"`
	ProtectContent      *bool                `json:"protect_content"`
}

func (in *CreateInput) validate() error {
	if in.Title == "" {
		return appErrors.NewValidation("title is required")
	}
	if len(in.Title) > maxTitleLength {
		return appErrors.NewValidation("title must be at most %d characters", maxTitleLength)
	}
	if in.MessageText == "" {
		return appErrors.NewValidation("message_text is required")
	}
	if !model.ValidTargetType(in.TargetType) {
		return appErrors.NewValidation("unknown target_type %q", in.TargetType)
	}
	if in.TargetType == model.TargetSpecificUsers && len(in.TargetUserIDs) == 0 {
		return appErrors.NewValidation("target_user_ids is required for specific_users")
	}
	if in.SendRatePerMinute < 0 {
		return appErrors.NewValidation("send_rate_per_minute must be positive")
	}
	return nil
}

// Create stores a new draft. The audience count is computed asynchronously
// unless the id set makes it trivial. A scheduled_at that is already due
// also pushes the broadcast straight into the send pipeline.
func (s *BroadcastService) Create(op identity.Operator, in CreateInput) (*model.Broadcast, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	b := &model.Broadcast{
		Title:               in.Title,
		MessageText:         in.MessageText,
		ParseMode:           in.ParseMode,
		TargetType:          in.TargetType,
		TargetUserIDs:       in.TargetUserIDs,
		TargetFilters:       in.TargetFilters,
		Status:              model.StatusDraft,
		MediaType:           in.MediaType,
		MediaFileID:         in.MediaFileID,
		MediaCaption:        in.MediaCaption,
		InlineKeyboard:      in.InlineKeyboard,
		ScheduledAt:         in.ScheduledAt,
		SendRatePerMinute:   in.SendRatePerMinute,
		DisableNotification: in.DisableNotification,
		ProtectContent:      in.ProtectContent,
		CreatedBy:           op.ID,
	}
	if b.TargetType == model.TargetSpecificUsers {
		// The id set is the audience; no directory query needed.
		b.TotalRecipients = len(b.TargetUserIDs)
	}

	if err := s.Broadcasts.Create(b); err != nil {
		return nil, err
	}

	if b.TargetType != model.TargetSpecificUsers {
		s.Audience.PersistTotalAsync(b)
	}

	if b.ScheduledAt != nil && !b.ScheduledAt.After(time.Now()) {
		if err := s.Send(op, b.ID); err != nil {
			// Creation already succeeded; an auto-trigger blocked by the
			// approval gate just leaves the draft waiting for approval.
			s.Log.Warn().Err(err).Int("broadcast_id", b.ID).Msg("auto-send after create not started")
		}
	}

	s.Log.Info().
		Int("broadcast_id", b.ID).
		Int("operator_id", op.ID).
		Str("target_type", b.TargetType).
		Msg("broadcast created")
	return b, nil
}

// Page bundles list results with pagination metadata.
type Page struct {
	Broadcasts []*model.Broadcast `json:"broadcasts"`
	Pagination map[string]int     `json:"pagination"`
}

// List pages broadcasts by filter. Page size is clamped to [1,100].
func (s *BroadcastService) List(f repository.ListFilter, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	f.Offset = (page - 1) * pageSize
	f.Limit = pageSize

	broadcasts, total, err := s.Broadcasts.List(f)
	if err != nil {
		return nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &Page{
		Broadcasts: broadcasts,
		Pagination: map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
			"total_pages": totalPages,
		},
	}, nil
}

// Progress is the derived delivery state reported on a broadcast detail.
type Progress struct {
	Processed           int        `json:"processed"`
	Remaining           int        `json:"remaining"`
	ProgressPercent     float64    `json:"progress_percent"`
	SuccessRate         float64    `json:"success_rate"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// Detail is a broadcast plus its resolved audience statistics and
// delivery progress.
type Detail struct {
	Broadcast     *model.Broadcast `json:"broadcast"`
	Progress      Progress         `json:"progress"`
	AudienceStats *AudienceStats   `json:"audience_stats,omitempty"`
}

// Get returns the full detail of one broadcast, including audience stats
// for filter-derived targets.
func (s *BroadcastService) Get(id int) (*Detail, error) {
	b, err := s.Broadcasts.GetByID(id)
	if err != nil {
		return nil, err
	}
	detail := &Detail{
		Broadcast: b,
		Progress: Progress{
			Processed:           b.Processed(),
			Remaining:           b.Remaining(),
			ProgressPercent:     b.ProgressPercent(),
			SuccessRate:         b.SuccessRate(),
			EstimatedCompletion: b.EstimatedCompletion(time.Now()),
		},
	}
	if b.TargetType != model.TargetSpecificUsers {
		stats, err := s.Audience.Stats(b)
		if err != nil {
			s.Log.Warn().Err(err).Int("broadcast_id", id).Msg("audience stats unavailable")
		} else {
			detail.AudienceStats = stats
		}
	}
	return detail, nil
}

// Update applies a partial update. Only drafts and scheduled broadcasts
// are editable; anything else conflicts.
func (s *BroadcastService) Update(op identity.Operator, id int, in UpdateInput) (*model.Broadcast, error) {
	b, err := s.Broadcasts.GetByID(id)
	if err != nil {
		return nil, err
	}
	if b.Status != model.StatusDraft && b.Status != model.StatusScheduled {
		return nil, appErrors.NewConflict("broadcast in status %q cannot be edited", b.Status)
	}

	audienceChanged := false
	if in.Title != nil {
		if *in.Title == "" || len(*in.Title) > maxTitleLength {
			return nil, appErrors.NewValidation("title must be 1..%d characters", maxTitleLength)
		}
		b.Title = *in.Title
	}
	if in.MessageText != nil {
		b.MessageText = *in.MessageText
	}
	if in.ParseMode != nil {
		b.ParseMode = *in.ParseMode
	}
	if in.TargetType != nil {
		if !model.ValidTargetType(*in.TargetType) {
			return nil, appErrors.NewValidation("unknown target_type %q", *in.TargetType)
		}
		b.TargetType = *in.TargetType
		audienceChanged = true
	}
	if in.TargetUserIDs != nil {
		b.TargetUserIDs = in.TargetUserIDs
		audienceChanged = true
	}
	if in.TargetFilters != nil {
		b.TargetFilters = in.TargetFilters
		audienceChanged = true
	}
	if in.MediaType != nil {
		b.MediaType = in.MediaType
	}
	if in.MediaFileID != nil {
		b.MediaFileID = in.MediaFileID
	}
	if in.MediaCaption != nil {
		b.MediaCaption = in.MediaCaption
	}
	if in.InlineKeyboard != nil {
		b.InlineKeyboard = in.InlineKeyboard
	}
	if in.ScheduledAt != nil {
		b.ScheduledAt = in.ScheduledAt
	}
	if in.SendRatePerMinute != nil {
		if *in.SendRatePerMinute <= 0 {
			return nil, appErrors.NewValidation("send_rate_per_minute must be positive")
		}
		b.SendRatePerMinute = *in.SendRatePerMinute
	}
	if in.DisableNotification != nil {
		b.DisableNotification = *in.DisableNotification
	}
	if in.ProtectContent != nil {
		b.ProtectContent = *in.ProtectContent
	}

	if audienceChanged {
		if b.TargetType == model.TargetSpecificUsers {
			b.TotalRecipients = len(b.TargetUserIDs)
		} else {
			b.TotalRecipients = 0
		}
	}

	if err := s.Broadcasts.Update(b); err != nil {
		return nil, err
	}
	if audienceChanged && b.TargetType != model.TargetSpecificUsers {
		s.Audience.PersistTotalAsync(b)
	}

	s.Log.Info().Int("broadcast_id", id).Int("operator_id", op.ID).Msg("broadcast updated")
	return b, nil
}

// Delete soft-deletes a broadcast. Scheduled and sending broadcasts must
// be cancelled first.
func (s *BroadcastService) Delete(op identity.Operator, id int) error {
	b, err := s.Broadcasts.GetByID(id)
	if err != nil {
		return err
	}
	if b.Status == model.StatusScheduled || b.Status == model.StatusSending {
		return appErrors.NewValidation("broadcast in status %q cannot be deleted", b.Status)
	}
	if err := s.Broadcasts.SoftDelete(id); err != nil {
		return err
	}
	s.Log.Info().Int("broadcast_id", id).Int("operator_id", op.ID).Msg("broadcast deleted")
	return nil
}

// Approve stamps the approval fields. Elevated roles only; the status is
// left alone.
func (s *BroadcastService) Approve(op identity.Operator, id int) (*model.Broadcast, error) {
	if !op.IsElevated() {
		return nil, appErrors.NewPermission("role %q may not approve broadcasts", op.Role)
	}
	if _, err := s.Broadcasts.GetByID(id); err != nil {
		return nil, err
	}
	if err := s.Broadcasts.Approve(id, op.ID); err != nil {
		return nil, err
	}
	s.Log.Info().Int("broadcast_id", id).Int("operator_id", op.ID).Msg("broadcast approved")
	return s.Broadcasts.GetByID(id)
}

// Send starts (or schedules) the delivery pipeline. Sending is gated: a
// non-elevated operator needs a prior approval on the broadcast.
func (s *BroadcastService) Send(op identity.Operator, id int) error {
	b, err := s.Broadcasts.GetByID(id)
	if err != nil {
		return err
	}
	if b.Status != model.StatusDraft && b.Status != model.StatusScheduled {
		return appErrors.NewValidation("broadcast in status %q cannot be sent", b.Status)
	}
	if !op.IsElevated() && b.ApprovedBy == nil {
		return appErrors.NewPermission("broadcast requires approval before sending")
	}

	if b.ScheduledAt != nil && b.ScheduledAt.After(time.Now()) {
		if b.Status != model.StatusScheduled {
			if err := CheckTransition(b.Status, model.StatusScheduled); err != nil {
				return err
			}
			if err := s.Broadcasts.UpdateStatus(id, model.StatusScheduled); err != nil {
				return err
			}
		}
		s.Log.Info().
			Int("broadcast_id", id).
			Time("scheduled_at", *b.ScheduledAt).
			Msg("broadcast scheduled")
		return nil
	}

	if err := s.Queue.PublishDispatch(id); err != nil {
		return err
	}
	s.Log.Info().Int("broadcast_id", id).Int("operator_id", op.ID).Msg("broadcast dispatch queued")
	return nil
}

// Cancel stops a broadcast permanently. A running dispatcher notices at
// its next checkpoint; the in-flight batch still lands.
func (s *BroadcastService) Cancel(op identity.Operator, id int) error {
	b, err := s.Broadcasts.GetByID(id)
	if err != nil {
		return err
	}
	if err := CheckTransition(b.Status, model.StatusCancelled); err != nil {
		return err
	}
	if err := s.Broadcasts.MarkCancelled(id); err != nil {
		return err
	}
	s.Log.Info().Int("broadcast_id", id).Int("operator_id", op.ID).Msg("broadcast cancelled")
	return nil
}

// Pause suspends a sending broadcast at the dispatcher's next checkpoint.
func (s *BroadcastService) Pause(op identity.Operator, id int) error {
	b, err := s.Broadcasts.GetByID(id)
	if err != nil {
		return err
	}
	if b.Status != model.StatusSending {
		return appErrors.NewInvalidTransition(b.Status, model.StatusPaused)
	}
	if err := s.Broadcasts.UpdateStatus(id, model.StatusPaused); err != nil {
		return err
	}
	s.Log.Info().Int("broadcast_id", id).Int("operator_id", op.ID).Msg("broadcast paused")
	return nil
}

// Resume re-queues a paused broadcast. Progress is counter-based, so the
// new run picks up from the persisted counts.
func (s *BroadcastService) Resume(op identity.Operator, id int) error {
	b, err := s.Broadcasts.GetByID(id)
	if err != nil {
		return err
	}
	if b.Status != model.StatusPaused {
		return appErrors.NewInvalidTransition(b.Status, model.StatusSending)
	}
	if err := s.Broadcasts.UpdateStatus(id, model.StatusSending); err != nil {
		return err
	}
	if err := s.Queue.PublishDispatch(id); err != nil {
		return err
	}
	s.Log.Info().Int("broadcast_id", id).Int("operator_id", op.ID).Msg("broadcast resumed")
	return nil
}

// PreviewResult is the audience preview returned by the admin API.
type PreviewResult struct {
	Broadcast     *model.Broadcast `json:"broadcast"`
	AudienceStats *AudienceStats   `json:"audience_stats"`
	SampleUsers   []model.User     `json:"sample_users"`
	SampleSize    int              `json:"sample_size"`
}

// Preview returns audience statistics and a bounded sample of recipients.
func (s *BroadcastService) Preview(id, limit int) (*PreviewResult, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	b, err := s.Broadcasts.GetByID(id)
	if err != nil {
		return nil, err
	}
	stats, err := s.Audience.Stats(b)
	if err != nil {
		return nil, err
	}
	sample, err := s.Audience.Sample(b, limit)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{
		Broadcast:     b,
		AudienceStats: stats,
		SampleUsers:   sample,
		SampleSize:    len(sample),
	}, nil
}
