package model

import "time"

// Broadcast statuses.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusSending   = "sending"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// AllStatuses lists every valid broadcast status.
var AllStatuses = []string{
	StatusDraft, StatusScheduled, StatusSending, StatusPaused,
	StatusCompleted, StatusCancelled, StatusFailed,
}

// Target audience types.
const (
	TargetAll           = "all"
	TargetFree          = "free"
	TargetTrial         = "trial"
	TargetPremium       = "premium"
	TargetAdmin         = "admin"
	TargetSpecificUsers = "specific_users"
)

// AllTargetTypes lists every valid audience target type.
var AllTargetTypes = []string{
	TargetAll, TargetFree, TargetTrial, TargetPremium, TargetAdmin, TargetSpecificUsers,
}

// TargetFilters is the structured audience filter applied by the resolver
// when the target type is not specific_users.
type TargetFilters struct {
	UserTypes      []string `json:"user_types,omitempty"`
	MinDownloads   int      `json:"min_downloads,omitempty"`
	LastActiveDays int      `json:"last_active_days,omitempty"`
}

// Broadcast is a single mass-message campaign: content, audience,
// delivery options and counters tracked while sending.
type Broadcast struct {
	ID          int    `db:"id" json:"id"`
	Title       string `db:"title" json:"title"`
	MessageText string `db:"message_text" json:"message_text"`
	ParseMode   string `db:"parse_mode" json:"parse_mode"`

	TargetType    string         `db:"target_type" json:"target_type"`
	TargetUserIDs []int64        `db:"target_user_ids" json:"target_user_ids,omitempty"`
	TargetFilters *TargetFilters `db:"target_filters" json:"target_filters,omitempty"`

	Status string `db:"status" json:"status"`

	MediaType      *string `db:"media_type" json:"media_type,omitempty"`
	MediaFileID    *string `db:"media_file_id" json:"media_file_id,omitempty"`
	MediaCaption   *string `db:"media_caption" json:"media_caption,omitempty"`
	InlineKeyboard *string `db:"inline_keyboard" json:"inline_keyboard,omitempty"`

	SendRatePerMinute   int  `db:"send_rate_per_minute" json:"send_rate_per_minute"`
	DisableNotification bool `db:"disable_notification" json:"disable_notification"`
	ProtectContent      bool `db:"protect_content" json:"protect_content"`

	TotalRecipients int `db:"total_recipients" json:"total_recipients"`
	SentCount       int `db:"sent_count" json:"sent_count"`
	FailedCount     int `db:"failed_count" json:"failed_count"`
	BlockedCount    int `db:"blocked_count" json:"blocked_count"`

	CreatedBy   int        `db:"created_by" json:"created_by"`
	ApprovedBy  *int       `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorReason *string    `db:"error_reason" json:"error_reason,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// Processed returns how many recipients have an outcome recorded.
func (b *Broadcast) Processed() int {
	return b.SentCount + b.FailedCount + b.BlockedCount
}

// Remaining returns how many recipients still have no recorded outcome.
func (b *Broadcast) Remaining() int {
	r := b.TotalRecipients - b.Processed()
	if r < 0 {
		return 0
	}
	return r
}

// ProgressPercent is the share of recipients with a recorded outcome.
func (b *Broadcast) ProgressPercent() float64 {
	if b.TotalRecipients == 0 {
		return 0
	}
	return float64(b.Processed()) / float64(b.TotalRecipients) * 100
}

// SuccessRate is sent over total recipients.
func (b *Broadcast) SuccessRate() float64 {
	if b.TotalRecipients == 0 {
		return 0
	}
	return float64(b.SentCount) / float64(b.TotalRecipients) * 100
}

// IsTerminal reports whether the broadcast can never change status again.
func (b *Broadcast) IsTerminal() bool {
	switch b.Status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// EstimatedCompletion projects when the run finishes at the configured rate.
// Returns nil unless the broadcast is actively sending.
func (b *Broadcast) EstimatedCompletion(now time.Time) *time.Time {
	if b.Status != StatusSending || b.StartedAt == nil || b.SendRatePerMinute <= 0 {
		return nil
	}
	remaining := b.Remaining()
	if remaining == 0 {
		return &now
	}
	eta := now.Add(time.Duration(float64(remaining)/float64(b.SendRatePerMinute)*60) * time.Second)
	return &eta
}

// ValidStatus reports whether s is a known broadcast status.
func ValidStatus(s string) bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ValidTargetType reports whether t is a known target type.
func ValidTargetType(t string) bool {
	for _, v := range AllTargetTypes {
		if v == t {
			return true
		}
	}
	return false
}
