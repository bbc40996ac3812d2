package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/videobot/broadcast-backend/internal/model"
)

// UserRepositoryInterface is the directory view the audience resolver
// and dispatcher read from. It never writes.
type UserRepositoryInterface interface {
	CountByFilter(targetType string, f *model.TargetFilters) (int, error)
	SampleByFilter(targetType string, f *model.TargetFilters, limit int) ([]model.User, error)
	ListRecipients(targetType string, f *model.TargetFilters, offset, limit int) ([]model.User, error)
	ListByIDs(ids []int64, offset, limit int) ([]model.User, error)
	TypeDistribution(targetType string, f *model.TargetFilters) (map[string]int, error)
}

type UserRepository struct {
	DB *sql.DB
}

var _ UserRepositoryInterface = (*UserRepository)(nil)

const userColumns = `id, telegram_id, COALESCE(username,''), COALESCE(first_name,''), user_type, downloads_total, last_active_at, is_banned, is_deleted`

// buildAudienceWhere translates a target type plus structured filters into
// SQL. Deleted and banned users are always excluded.
func buildAudienceWhere(targetType string, f *model.TargetFilters) (string, []interface{}) {
	clauses := []string{"is_deleted=FALSE", "is_banned=FALSE"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch targetType {
	case model.TargetFree, model.TargetTrial, model.TargetPremium, model.TargetAdmin:
		clauses = append(clauses, "user_type="+arg(targetType))
	}

	if f != nil {
		if len(f.UserTypes) > 0 {
			clauses = append(clauses, "user_type = ANY("+arg(pq.Array(f.UserTypes))+")")
		}
		if f.MinDownloads > 0 {
			clauses = append(clauses, "downloads_total>="+arg(f.MinDownloads))
		}
		if f.LastActiveDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -f.LastActiveDays)
			clauses = append(clauses, "last_active_at>="+arg(cutoff))
		}
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (r *UserRepository) CountByFilter(targetType string, f *model.TargetFilters) (int, error) {
	where, args := buildAudienceWhere(targetType, f)
	var n int
	err := r.DB.QueryRow(`SELECT COUNT(*) FROM users `+where, args...).Scan(&n)
	return n, err
}

func (r *UserRepository) SampleByFilter(targetType string, f *model.TargetFilters, limit int) ([]model.User, error) {
	return r.ListRecipients(targetType, f, 0, limit)
}

// ListRecipients pages through the audience in a stable id order so the
// dispatcher can use processed-count offsets between batches.
func (r *UserRepository) ListRecipients(targetType string, f *model.TargetFilters, offset, limit int) ([]model.User, error) {
	where, args := buildAudienceWhere(targetType, f)
	query := fmt.Sprintf(
		`SELECT %s FROM users %s ORDER BY id LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)+1, len(args)+2,
	)
	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *UserRepository) ListByIDs(ids []int64, offset, limit int) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
        WHERE id = ANY($1) AND is_deleted=FALSE AND is_banned=FALSE
        ORDER BY id LIMIT $2 OFFSET $3`
	rows, err := r.DB.Query(query, pq.Array(ids), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// TypeDistribution breaks the audience down by user type for previews.
func (r *UserRepository) TypeDistribution(targetType string, f *model.TargetFilters) (map[string]int, error) {
	where, args := buildAudienceWhere(targetType, f)
	rows, err := r.DB.Query(`SELECT user_type, COUNT(*) FROM users `+where+` GROUP BY user_type`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dist := map[string]int{}
	for rows.Next() {
		var userType string
		var count int
		if err := rows.Scan(&userType, &count); err != nil {
			return nil, err
		}
		dist[userType] = count
	}
	return dist, rows.Err()
}

func scanUsers(rows *sql.Rows) ([]model.User, error) {
	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(
			&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.UserType,
			&u.DownloadsTotal, &u.LastActiveAt, &u.IsBanned, &u.IsDeleted,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
