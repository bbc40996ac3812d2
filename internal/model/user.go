package model

import "time"

// User is the directory view of a potential broadcast recipient.
type User struct {
	ID             int64      `db:"id" json:"id"`
	TelegramID     int64      `db:"telegram_id" json:"telegram_id"`
	Username       string     `db:"username" json:"username"`
	FirstName      string     `db:"first_name" json:"first_name"`
	UserType       string     `db:"user_type" json:"user_type"` // free, trial, premium, admin
	DownloadsTotal int        `db:"downloads_total" json:"downloads_total"`
	LastActiveAt   *time.Time `db:"last_active_at" json:"last_active_at,omitempty"`
	IsBanned       bool       `db:"is_banned" json:"is_banned"`
	IsDeleted      bool       `db:"is_deleted" json:"is_deleted"`
}
