package service

import (
	"time"

	"github.com/videobot/broadcast-backend/internal/model"
	"github.com/videobot/broadcast-backend/internal/repository"
)

// Overview is the aggregate reporting payload for the admin dashboard.
// Everything is computed by scanning the broadcast store; the aggregator
// keeps no state of its own.
type Overview struct {
	TotalBroadcasts  int                           `json:"total_broadcasts"`
	RecentBroadcasts int                           `json:"recent_broadcasts"`
	PeriodDays       int                           `json:"period_days"`
	StatusStats      map[string]int                `json:"status_stats"`
	SendingStats     SendingStats                  `json:"sending_stats"`
	TopCreators      []repository.CreatorStat      `json:"top_creators"`
	Recent           []*model.Broadcast            `json:"recent"`
}

// SendingStats sums delivery outcomes over the reporting window.
type SendingStats struct {
	TotalSent       int     `json:"total_sent"`
	TotalFailed     int     `json:"total_failed"`
	TotalBlocked    int     `json:"total_blocked"`
	TotalRecipients int     `json:"total_recipients"`
	SuccessRate     float64 `json:"success_rate"`
}

// StatsService answers read-only reporting queries over the broadcast store.
type StatsService struct {
	Broadcasts repository.BroadcastRepositoryInterface
}

// Overview aggregates the last `days` days of broadcast activity.
func (s *StatsService) Overview(days int) (*Overview, error) {
	if days < 1 {
		days = 30
	}
	from := time.Now().AddDate(0, 0, -days)

	total, err := s.Broadcasts.CountAll()
	if err != nil {
		return nil, err
	}
	recentCount, err := s.Broadcasts.CountCreatedSince(from)
	if err != nil {
		return nil, err
	}
	statusStats, err := s.Broadcasts.CountByStatus()
	if err != nil {
		return nil, err
	}
	agg, err := s.Broadcasts.Aggregates(from)
	if err != nil {
		return nil, err
	}
	topCreators, err := s.Broadcasts.TopCreators(from, 5)
	if err != nil {
		return nil, err
	}
	recent, err := s.Broadcasts.Recent(10)
	if err != nil {
		return nil, err
	}

	denominator := agg.TotalRecipients
	if denominator < 1 {
		denominator = 1
	}

	return &Overview{
		TotalBroadcasts:  total,
		RecentBroadcasts: recentCount,
		PeriodDays:       days,
		StatusStats:      statusStats,
		SendingStats: SendingStats{
			TotalSent:       agg.TotalSent,
			TotalFailed:     agg.TotalFailed,
			TotalBlocked:    agg.TotalBlocked,
			TotalRecipients: agg.TotalRecipients,
			SuccessRate:     float64(agg.TotalSent) / float64(denominator) * 100,
		},
		TopCreators: topCreators,
		Recent:      recent,
	}, nil
}
