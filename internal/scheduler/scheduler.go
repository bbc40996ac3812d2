package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/videobot/broadcast-backend/internal/queue"
	"github.com/videobot/broadcast-backend/internal/repository"
)

// Scheduler polls for scheduled broadcasts whose send time has passed and
// hands them to the dispatch queue. The dispatcher's lease makes it safe
// for a poll tick and an operator-triggered send to race.
type Scheduler struct {
	Broadcasts repository.BroadcastRepositoryInterface
	Queue      queue.DispatchQueue
	Log        zerolog.Logger

	cron *cron.Cron
}

func New(broadcasts repository.BroadcastRepositoryInterface, q queue.DispatchQueue, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Broadcasts: broadcasts,
		Queue:      q,
		Log:        log.With().Str("component", "scheduler").Logger(),
		cron:       cron.New(),
	}
}

// Start begins the once-a-minute poll. Non-blocking.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", s.Tick); err != nil {
		return err
	}
	s.cron.Start()
	s.Log.Info().Msg("schedule poller started")
	return nil
}

// Stop halts the poller and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Tick enqueues every due scheduled broadcast.
func (s *Scheduler) Tick() {
	ids, err := s.Broadcasts.DueScheduled(time.Now())
	if err != nil {
		s.Log.Error().Err(err).Msg("due-scheduled query failed")
		return
	}
	for _, id := range ids {
		if err := s.Queue.PublishDispatch(id); err != nil {
			s.Log.Error().Err(err).Int("broadcast_id", id).Msg("could not enqueue scheduled broadcast")
			continue
		}
		s.Log.Info().Int("broadcast_id", id).Msg("scheduled broadcast enqueued")
	}
}
