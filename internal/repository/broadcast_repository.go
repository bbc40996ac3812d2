package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/videobot/broadcast-backend/internal/errors"
	"github.com/videobot/broadcast-backend/internal/model"
)

// ListFilter narrows and pages the broadcast list.
type ListFilter struct {
	Status     string
	TargetType string
	CreatedBy  int
	DateFrom   *time.Time
	DateTo     *time.Time
	Search     string
	SortBy     string
	SortOrder  string
	Offset     int
	Limit      int
}

// BatchTotals is the counter snapshot returned by ApplyBatchOutcome.
type BatchTotals struct {
	Sent    int
	Failed  int
	Blocked int
	Total   int
}

// WindowAggregates sums delivery counters over a reporting window.
type WindowAggregates struct {
	TotalSent       int `json:"total_sent"`
	TotalFailed     int `json:"total_failed"`
	TotalBlocked    int `json:"total_blocked"`
	TotalRecipients int `json:"total_recipients"`
}

// CreatorStat is one row of the per-creator leaderboard.
type CreatorStat struct {
	CreatedBy      int `json:"created_by"`
	BroadcastCount int `json:"broadcast_count"`
	TotalSent      int `json:"total_sent"`
}

type BroadcastRepositoryInterface interface {
	// Broadcast CRUD
	Create(b *model.Broadcast) error
	GetByID(id int) (*model.Broadcast, error)
	List(f ListFilter) ([]*model.Broadcast, int, error)
	Update(b *model.Broadcast) error
	UpdateStatus(id int, status string) error
	SoftDelete(id int) error

	// Dispatch bookkeeping
	SetTotalRecipients(id, total int) error
	MarkStarted(id int) error
	MarkCompleted(id int) error
	MarkFailed(id int, reason string) error
	MarkCancelled(id int) error
	Approve(id, approvedBy int) error
	ApplyBatchOutcome(id, sent, failed, blocked int) (*BatchTotals, error)

	// Reporting
	CountAll() (int, error)
	CountCreatedSince(from time.Time) (int, error)
	CountByStatus() (map[string]int, error)
	Aggregates(from time.Time) (*WindowAggregates, error)
	TopCreators(from time.Time, limit int) ([]CreatorStat, error)
	Recent(limit int) ([]*model.Broadcast, error)
	DueScheduled(now time.Time) ([]int, error)
}

type BroadcastRepository struct {
	DB *sql.DB
}

var _ BroadcastRepositoryInterface = (*BroadcastRepository)(nil)

const broadcastColumns = `id, title, message_text, parse_mode, target_type, target_user_ids,
    target_filters, status, media_type, media_file_id, media_caption, inline_keyboard,
    send_rate_per_minute, disable_notification, protect_content,
    total_recipients, sent_count, failed_count, blocked_count,
    created_by, approved_by, approved_at, scheduled_at, started_at, completed_at,
    error_reason, created_at, updated_at, deleted_at`

// ====================== Broadcast CRUD ======================

func (r *BroadcastRepository) Create(b *model.Broadcast) error {
	b.CreatedAt = time.Now()
	if b.Status == "" {
		b.Status = model.StatusDraft
	}
	if b.ParseMode == "" {
		b.ParseMode = "HTML"
	}
	if b.SendRatePerMinute == 0 {
		b.SendRatePerMinute = 30
	}

	ids, err := json.Marshal(b.TargetUserIDs)
	if err != nil {
		return err
	}
	filters, err := json.Marshal(b.TargetFilters)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO broadcasts (title, message_text, parse_mode, target_type, target_user_ids,
            target_filters, status, media_type, media_file_id, media_caption, inline_keyboard,
            send_rate_per_minute, disable_notification, protect_content,
            total_recipients, created_by, scheduled_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		b.Title, b.MessageText, b.ParseMode, b.TargetType, ids, filters,
		b.Status, b.MediaType, b.MediaFileID, b.MediaCaption, b.InlineKeyboard,
		b.SendRatePerMinute, b.DisableNotification, b.ProtectContent,
		b.TotalRecipients, b.CreatedBy, b.ScheduledAt, b.CreatedAt,
	).Scan(&b.ID)
}

func (r *BroadcastRepository) GetByID(id int) (*model.Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts WHERE id=$1 AND deleted_at IS NULL`
	b, err := scanBroadcast(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewBroadcastNotFound(id)
		}
		return nil, err
	}
	return b, nil
}

// sortColumns whitelists user-supplied sort fields.
var sortColumns = map[string]string{
	"created_at":       "created_at",
	"scheduled_at":     "scheduled_at",
	"started_at":       "started_at",
	"completed_at":     "completed_at",
	"title":            "title",
	"status":           "status",
	"total_recipients": "total_recipients",
	"sent_count":       "sent_count",
}

func (r *BroadcastRepository) List(f ListFilter) ([]*model.Broadcast, int, error) {
	where, args := buildListWhere(f)

	sortBy, ok := sortColumns[f.SortBy]
	if !ok {
		sortBy = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		order = "ASC"
	}

	query := fmt.Sprintf(
		`SELECT %s FROM broadcasts %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		broadcastColumns, where, sortBy, order, len(args)+1, len(args)+2,
	)
	rows, err := r.DB.Query(query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	broadcasts := []*model.Broadcast{}
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, 0, err
		}
		broadcasts = append(broadcasts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM broadcasts ` + where
	if err := r.DB.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return broadcasts, total, nil
}

func buildListWhere(f ListFilter) (string, []interface{}) {
	clauses := []string{"deleted_at IS NULL"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		clauses = append(clauses, "status="+arg(f.Status))
	}
	if f.TargetType != "" {
		clauses = append(clauses, "target_type="+arg(f.TargetType))
	}
	if f.CreatedBy != 0 {
		clauses = append(clauses, "created_by="+arg(f.CreatedBy))
	}
	if f.DateFrom != nil {
		clauses = append(clauses, "created_at>="+arg(*f.DateFrom))
	}
	if f.DateTo != nil {
		clauses = append(clauses, "created_at<="+arg(*f.DateTo))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		clauses = append(clauses, fmt.Sprintf("(title ILIKE %s OR message_text ILIKE %s)", p, p))
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

// Update rewrites the operator-editable fields. The service layer is
// responsible for only calling this while the broadcast is editable.
func (r *BroadcastRepository) Update(b *model.Broadcast) error {
	ids, err := json.Marshal(b.TargetUserIDs)
	if err != nil {
		return err
	}
	filters, err := json.Marshal(b.TargetFilters)
	if err != nil {
		return err
	}
	query := `
        UPDATE broadcasts
        SET title=$1, message_text=$2, parse_mode=$3, target_type=$4, target_user_ids=$5,
            target_filters=$6, media_type=$7, media_file_id=$8, media_caption=$9,
            inline_keyboard=$10, send_rate_per_minute=$11, disable_notification=$12,
            protect_content=$13, scheduled_at=$14, total_recipients=$15, updated_at=NOW()
        WHERE id=$16 AND deleted_at IS NULL
    `
	res, err := r.DB.Exec(query,
		b.Title, b.MessageText, b.ParseMode, b.TargetType, ids, filters,
		b.MediaType, b.MediaFileID, b.MediaCaption, b.InlineKeyboard,
		b.SendRatePerMinute, b.DisableNotification, b.ProtectContent,
		b.ScheduledAt, b.TotalRecipients, b.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, b.ID)
}

func (r *BroadcastRepository) UpdateStatus(id int, status string) error {
	res, err := r.DB.Exec(
		`UPDATE broadcasts SET status=$1, updated_at=NOW() WHERE id=$2 AND deleted_at IS NULL`,
		status, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *BroadcastRepository) SoftDelete(id int) error {
	res, err := r.DB.Exec(
		`UPDATE broadcasts SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// ====================== Dispatch bookkeeping ======================

func (r *BroadcastRepository) SetTotalRecipients(id, total int) error {
	res, err := r.DB.Exec(
		`UPDATE broadcasts SET total_recipients=$1, updated_at=NOW() WHERE id=$2 AND deleted_at IS NULL`,
		total, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *BroadcastRepository) MarkStarted(id int) error {
	res, err := r.DB.Exec(
		`UPDATE broadcasts SET status=$1, started_at=COALESCE(started_at, NOW()), updated_at=NOW()
         WHERE id=$2 AND deleted_at IS NULL`,
		model.StatusSending, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *BroadcastRepository) MarkCompleted(id int) error {
	res, err := r.DB.Exec(
		`UPDATE broadcasts SET status=$1, completed_at=NOW(), updated_at=NOW()
         WHERE id=$2 AND deleted_at IS NULL`,
		model.StatusCompleted, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *BroadcastRepository) MarkFailed(id int, reason string) error {
	res, err := r.DB.Exec(
		`UPDATE broadcasts SET status=$1, completed_at=NOW(), error_reason=$2, updated_at=NOW()
         WHERE id=$3 AND deleted_at IS NULL`,
		model.StatusFailed, reason, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *BroadcastRepository) MarkCancelled(id int) error {
	res, err := r.DB.Exec(
		`UPDATE broadcasts SET status=$1, completed_at=NOW(), updated_at=NOW()
         WHERE id=$2 AND deleted_at IS NULL`,
		model.StatusCancelled, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *BroadcastRepository) Approve(id, approvedBy int) error {
	res, err := r.DB.Exec(
		`UPDATE broadcasts SET approved_by=$1, approved_at=NOW(), updated_at=NOW()
         WHERE id=$2 AND deleted_at IS NULL`,
		approvedBy, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// ApplyBatchOutcome adds one batch's outcome to the persisted counters in a
// single atomic statement and returns the updated totals. The WHERE guard
// keeps sent+failed+blocked from ever exceeding total_recipients.
func (r *BroadcastRepository) ApplyBatchOutcome(id, sent, failed, blocked int) (*BatchTotals, error) {
	query := `
        UPDATE broadcasts
        SET sent_count = sent_count + $1,
            failed_count = failed_count + $2,
            blocked_count = blocked_count + $3,
            updated_at = NOW()
        WHERE id=$4 AND deleted_at IS NULL
          AND sent_count + failed_count + blocked_count + $1 + $2 + $3 <= total_recipients
        RETURNING sent_count, failed_count, blocked_count, total_recipients
    `
	var t BatchTotals
	err := r.DB.QueryRow(query, sent, failed, blocked, id).Scan(&t.Sent, &t.Failed, &t.Blocked, &t.Total)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewConflict("batch outcome for broadcast %d would exceed total recipients", id)
		}
		return nil, err
	}
	return &t, nil
}

// ====================== Reporting ======================

func (r *BroadcastRepository) CountAll() (int, error) {
	var n int
	err := r.DB.QueryRow(`SELECT COUNT(*) FROM broadcasts WHERE deleted_at IS NULL`).Scan(&n)
	return n, err
}

func (r *BroadcastRepository) CountCreatedSince(from time.Time) (int, error) {
	var n int
	err := r.DB.QueryRow(
		`SELECT COUNT(*) FROM broadcasts WHERE deleted_at IS NULL AND created_at>=$1`, from,
	).Scan(&n)
	return n, err
}

func (r *BroadcastRepository) CountByStatus() (map[string]int, error) {
	rows, err := r.DB.Query(
		`SELECT status, COUNT(*) FROM broadcasts WHERE deleted_at IS NULL GROUP BY status`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{}
	for _, s := range model.AllStatuses {
		stats[s] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (r *BroadcastRepository) Aggregates(from time.Time) (*WindowAggregates, error) {
	query := `
        SELECT COALESCE(SUM(sent_count),0), COALESCE(SUM(failed_count),0),
               COALESCE(SUM(blocked_count),0), COALESCE(SUM(total_recipients),0)
        FROM broadcasts
        WHERE deleted_at IS NULL AND started_at>=$1 AND status IN ($2,$3)
    `
	var a WindowAggregates
	err := r.DB.QueryRow(query, from, model.StatusCompleted, model.StatusSending).
		Scan(&a.TotalSent, &a.TotalFailed, &a.TotalBlocked, &a.TotalRecipients)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *BroadcastRepository) TopCreators(from time.Time, limit int) ([]CreatorStat, error) {
	query := `
        SELECT created_by, COUNT(*) AS broadcast_count, COALESCE(SUM(sent_count),0)
        FROM broadcasts
        WHERE deleted_at IS NULL AND created_at>=$1
        GROUP BY created_by
        ORDER BY broadcast_count DESC
        LIMIT $2
    `
	rows, err := r.DB.Query(query, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []CreatorStat{}
	for rows.Next() {
		var s CreatorStat
		if err := rows.Scan(&s.CreatedBy, &s.BroadcastCount, &s.TotalSent); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *BroadcastRepository) Recent(limit int) ([]*model.Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts
        WHERE deleted_at IS NULL ORDER BY created_at DESC LIMIT $1`
	rows, err := r.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	broadcasts := []*model.Broadcast{}
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		broadcasts = append(broadcasts, b)
	}
	return broadcasts, rows.Err()
}

// DueScheduled returns ids of scheduled broadcasts whose send time has passed.
func (r *BroadcastRepository) DueScheduled(now time.Time) ([]int, error) {
	rows, err := r.DB.Query(
		`SELECT id FROM broadcasts
         WHERE deleted_at IS NULL AND status=$1 AND scheduled_at IS NOT NULL AND scheduled_at<=$2`,
		model.StatusScheduled, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ====================== Helpers ======================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBroadcast(row rowScanner) (*model.Broadcast, error) {
	var b model.Broadcast
	var ids, filters []byte
	err := row.Scan(
		&b.ID, &b.Title, &b.MessageText, &b.ParseMode, &b.TargetType, &ids,
		&filters, &b.Status, &b.MediaType, &b.MediaFileID, &b.MediaCaption, &b.InlineKeyboard,
		&b.SendRatePerMinute, &b.DisableNotification, &b.ProtectContent,
		&b.TotalRecipients, &b.SentCount, &b.FailedCount, &b.BlockedCount,
		&b.CreatedBy, &b.ApprovedBy, &b.ApprovedAt, &b.ScheduledAt, &b.StartedAt, &b.CompletedAt,
		&b.ErrorReason, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		if err := json.Unmarshal(ids, &b.TargetUserIDs); err != nil {
			return nil, fmt.Errorf("decode target_user_ids: %w", err)
		}
	}
	if len(filters) > 0 && string(filters) != "null" {
		b.TargetFilters = &model.TargetFilters{}
		if err := json.Unmarshal(filters, b.TargetFilters); err != nil {
			return nil, fmt.Errorf("decode target_filters: %w", err)
		}
	}
	return &b, nil
}

func requireRow(res sql.Result, id int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewBroadcastNotFound(id)
	}
	return nil
}
