package repository

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videobot/broadcast-backend/internal/model"
)

func TestBuildAudienceWhereExcludesBannedAndDeleted(t *testing.T) {
	where, args := buildAudienceWhere(model.TargetAll, nil)
	assert.Equal(t, "WHERE is_deleted=FALSE AND is_banned=FALSE", where)
	assert.Empty(t, args)
}

func TestBuildAudienceWhereByUserType(t *testing.T) {
	where, args := buildAudienceWhere(model.TargetPremium, nil)
	assert.Contains(t, where, "user_type=$1")
	require.Len(t, args, 1)
	assert.Equal(t, model.TargetPremium, args[0])
}

func TestBuildAudienceWhereWithFilters(t *testing.T) {
	where, args := buildAudienceWhere(model.TargetAll, &model.TargetFilters{
		UserTypes:      []string{"free", "trial"},
		MinDownloads:   10,
		LastActiveDays: 7,
	})
	assert.Contains(t, where, "user_type = ANY($1)")
	assert.Contains(t, where, "downloads_total>=$2")
	assert.Contains(t, where, "last_active_at>=$3")
	assert.Len(t, args, 3)
}

func TestCountByFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := &UserRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE is_deleted=FALSE AND is_banned=FALSE AND user_type=$1")).
		WithArgs(model.TargetTrial).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := repo.CountByFilter(model.TargetTrial, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecipientsPagesInStableOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := &UserRepository{DB: db}

	rows := sqlmock.NewRows([]string{
		"id", "telegram_id", "username", "first_name", "user_type",
		"downloads_total", "last_active_at", "is_banned", "is_deleted",
	}).
		AddRow(51, 900051, "u51", "User", "free", 3, nil, false, false).
		AddRow(52, 900052, "", "", "premium", 120, nil, false, false)

	mock.ExpectQuery("SELECT .+ FROM users .+ ORDER BY id LIMIT \\$1 OFFSET \\$2").
		WithArgs(50, 50).
		WillReturnRows(rows)

	users, err := repo.ListRecipients(model.TargetAll, nil, 50, 50)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(51), users[0].ID)
	assert.Equal(t, "premium", users[1].UserType)
	assert.NoError(t, mock.ExpectationsWereMet())
}
