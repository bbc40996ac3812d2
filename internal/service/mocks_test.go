package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/videobot/broadcast-backend/internal/errors"
	"github.com/videobot/broadcast-backend/internal/lease"
	"github.com/videobot/broadcast-backend/internal/model"
	"github.com/videobot/broadcast-backend/internal/repository"
	"github.com/videobot/broadcast-backend/internal/transport"
)

// memBroadcastRepo is an in-memory BroadcastRepositoryInterface for tests.
type memBroadcastRepo struct {
	mu         sync.Mutex
	broadcasts map[int]*model.Broadcast
	nextID     int
}

func newMemBroadcastRepo(seed ...*model.Broadcast) *memBroadcastRepo {
	r := &memBroadcastRepo{broadcasts: map[int]*model.Broadcast{}, nextID: 1}
	for _, b := range seed {
		if b.ID == 0 {
			b.ID = r.nextID
		}
		if b.ID >= r.nextID {
			r.nextID = b.ID + 1
		}
		cp := *b
		r.broadcasts[b.ID] = &cp
	}
	return r
}

func (r *memBroadcastRepo) get(id int) (*model.Broadcast, error) {
	b, ok := r.broadcasts[id]
	if !ok || b.DeletedAt != nil {
		return nil, appErrors.NewBroadcastNotFound(id)
	}
	return b, nil
}

func (r *memBroadcastRepo) Create(b *model.Broadcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = r.nextID
	r.nextID++
	if b.Status == "" {
		b.Status = model.StatusDraft
	}
	if b.ParseMode == "" {
		b.ParseMode = "HTML"
	}
	if b.SendRatePerMinute == 0 {
		b.SendRatePerMinute = 30
	}
	b.CreatedAt = time.Now()
	cp := *b
	r.broadcasts[b.ID] = &cp
	return nil
}

func (r *memBroadcastRepo) GetByID(id int) (*model.Broadcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.get(id)
	if err != nil {
		return nil, err
	}
	cp := *b
	return &cp, nil
}

func (r *memBroadcastRepo) List(f repository.ListFilter) ([]*model.Broadcast, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := []*model.Broadcast{}
	for id := 1; id < r.nextID; id++ {
		b, ok := r.broadcasts[id]
		if !ok || b.DeletedAt != nil {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.TargetType != "" && b.TargetType != f.TargetType {
			continue
		}
		cp := *b
		matched = append(matched, &cp)
	}
	total := len(matched)
	if f.Offset > total {
		return []*model.Broadcast{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (r *memBroadcastRepo) Update(b *model.Broadcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.get(b.ID); err != nil {
		return err
	}
	cp := *b
	r.broadcasts[b.ID] = &cp
	return nil
}

func (r *memBroadcastRepo) UpdateStatus(id int, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.get(id)
	if err != nil {
		return err
	}
	b.Status = status
	return nil
}

func (r *memBroadcastRepo) SoftDelete(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.get(id)
	if err != nil {
		return err
	}
	now := time.Now()
	b.DeletedAt = &now
	return nil
}

func (r *memBroadcastRepo) SetTotalRecipients(id, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.get(id)
	if err != nil {
		return err
	}
	b.TotalRecipients = total
	return nil
}

func (r *memBroadcastRepo) MarkStarted(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.get(id)
	if err != nil {
		return err
	}
	b.Status = model.StatusSending
	if b.StartedAt == nil {
		now := time.Now()
		b.StartedAt = &now
	}
	return nil
}

func (r *memBroadcastRepo) MarkCompleted(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.get(id)
	if err != nil {
		return err
	}
	b.Status = model.StatusCompleted
	now := time.Now()
	b.CompletedAt = &now
	return nil
}

func (r *memBroadcastRepo) MarkFailed(id int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.get(id)
	if err != nil {
		return err
	}
	b.Status = model.StatusFailed
	b.ErrorReason = &reason
	now := time.Now()
	b.CompletedAt = &now
	return nil
}

func (r *memBroadcastRepo) MarkCancelled(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.get(id)
	if err != nil {
		return err
	}
	b.Status = model.StatusCancelled
	now := time.Now()
	b.CompletedAt = &now
	return nil
}

func (r *memBroadcastRepo) Approve(id, approvedBy int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.get(id)
	if err != nil {
		return err
	}
	b.ApprovedBy = &approvedBy
	now := time.Now()
	b.ApprovedAt = &now
	return nil
}

func (r *memBroadcastRepo) ApplyBatchOutcome(id, sent, failed, blocked int) (*repository.BatchTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if b.Processed()+sent+failed+blocked > b.TotalRecipients {
		return nil, appErrors.NewConflict("batch outcome for broadcast %d would exceed total recipients", id)
	}
	b.SentCount += sent
	b.FailedCount += failed
	b.BlockedCount += blocked
	return &repository.BatchTotals{
		Sent: b.SentCount, Failed: b.FailedCount, Blocked: b.BlockedCount, Total: b.TotalRecipients,
	}, nil
}

func (r *memBroadcastRepo) CountAll() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.broadcasts {
		if b.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (r *memBroadcastRepo) CountCreatedSince(from time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.broadcasts {
		if b.DeletedAt == nil && !b.CreatedAt.Before(from) {
			n++
		}
	}
	return n, nil
}

func (r *memBroadcastRepo) CountByStatus() (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{}
	for _, s := range model.AllStatuses {
		stats[s] = 0
	}
	for _, b := range r.broadcasts {
		if b.DeletedAt == nil {
			stats[b.Status]++
		}
	}
	return stats, nil
}

func (r *memBroadcastRepo) Aggregates(from time.Time) (*repository.WindowAggregates, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := &repository.WindowAggregates{}
	for _, b := range r.broadcasts {
		if b.DeletedAt != nil || b.StartedAt == nil || b.StartedAt.Before(from) {
			continue
		}
		if b.Status != model.StatusCompleted && b.Status != model.StatusSending {
			continue
		}
		a.TotalSent += b.SentCount
		a.TotalFailed += b.FailedCount
		a.TotalBlocked += b.BlockedCount
		a.TotalRecipients += b.TotalRecipients
	}
	return a, nil
}

func (r *memBroadcastRepo) TopCreators(from time.Time, limit int) ([]repository.CreatorStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byCreator := map[int]*repository.CreatorStat{}
	for _, b := range r.broadcasts {
		if b.DeletedAt != nil || b.CreatedAt.Before(from) {
			continue
		}
		s, ok := byCreator[b.CreatedBy]
		if !ok {
			s = &repository.CreatorStat{CreatedBy: b.CreatedBy}
			byCreator[b.CreatedBy] = s
		}
		s.BroadcastCount++
		s.TotalSent += b.SentCount
	}
	stats := []repository.CreatorStat{}
	for _, s := range byCreator {
		stats = append(stats, *s)
	}
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

func (r *memBroadcastRepo) Recent(limit int) ([]*model.Broadcast, error) {
	all, _, err := r.List(repository.ListFilter{Limit: limit})
	return all, err
}

func (r *memBroadcastRepo) DueScheduled(now time.Time) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []int{}
	for id, b := range r.broadcasts {
		if b.DeletedAt == nil && b.Status == model.StatusScheduled &&
			b.ScheduledAt != nil && !b.ScheduledAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

var _ repository.BroadcastRepositoryInterface = (*memBroadcastRepo)(nil)

// stubUserRepo serves a fixed directory and records the offsets the
// dispatcher requested.
type stubUserRepo struct {
	mu      sync.Mutex
	users   []model.User
	offsets []int
}

func newStubUserRepo(n int) *stubUserRepo {
	users := make([]model.User, n)
	for i := range users {
		users[i] = model.User{
			ID:         int64(i + 1),
			TelegramID: int64(100000 + i),
			UserType:   model.TargetFree,
		}
	}
	return &stubUserRepo{users: users}
}

func (r *stubUserRepo) page(users []model.User, offset, limit int) []model.User {
	if offset > len(users) {
		return []model.User{}
	}
	end := offset + limit
	if end > len(users) {
		end = len(users)
	}
	return users[offset:end]
}

func (r *stubUserRepo) CountByFilter(targetType string, f *model.TargetFilters) (int, error) {
	return len(r.users), nil
}

func (r *stubUserRepo) SampleByFilter(targetType string, f *model.TargetFilters, limit int) ([]model.User, error) {
	return r.page(r.users, 0, limit), nil
}

func (r *stubUserRepo) ListRecipients(targetType string, f *model.TargetFilters, offset, limit int) ([]model.User, error) {
	r.mu.Lock()
	r.offsets = append(r.offsets, offset)
	r.mu.Unlock()
	return r.page(r.users, offset, limit), nil
}

func (r *stubUserRepo) ListByIDs(ids []int64, offset, limit int) ([]model.User, error) {
	r.mu.Lock()
	r.offsets = append(r.offsets, offset)
	r.mu.Unlock()
	matched := []model.User{}
	for _, u := range r.users {
		for _, id := range ids {
			if u.ID == id {
				matched = append(matched, u)
				break
			}
		}
	}
	return r.page(matched, offset, limit), nil
}

func (r *stubUserRepo) TypeDistribution(targetType string, f *model.TargetFilters) (map[string]int, error) {
	dist := map[string]int{}
	for _, u := range r.users {
		dist[u.UserType]++
	}
	return dist, nil
}

var _ repository.UserRepositoryInterface = (*stubUserRepo)(nil)

// stubTransport returns a scripted outcome per recipient and can run a
// hook after each send, which tests use to pause or cancel mid-run.
type stubTransport struct {
	mu        sync.Mutex
	sends     int
	outcome   func(u model.User) transport.Outcome
	afterEach func(sends int)
}

func (t *stubTransport) Send(ctx context.Context, u model.User, b *model.Broadcast) transport.Outcome {
	t.mu.Lock()
	t.sends++
	n := t.sends
	t.mu.Unlock()
	out := transport.OutcomeSent
	if t.outcome != nil {
		out = t.outcome(u)
	}
	if t.afterEach != nil {
		t.afterEach(n)
	}
	return out
}

var _ transport.MessageTransport = (*stubTransport)(nil)

// stubLeases grants or denies every lease.
type stubLeases struct {
	denied   bool
	acquired int
	released int
}

type stubLease struct{ f *stubLeases }

func (f *stubLeases) ForBroadcast(broadcastID int) lease.Lease { return &stubLease{f: f} }

func (l *stubLease) Acquire(ctx context.Context) (bool, error) {
	if l.f.denied {
		return false, nil
	}
	l.f.acquired++
	return true, nil
}

func (l *stubLease) Release(ctx context.Context) error {
	l.f.released++
	return nil
}

// recordingWaiter records the batch sizes handed to WaitN without sleeping.
type recordingWaiter struct {
	mu    sync.Mutex
	waits []int
}

func (w *recordingWaiter) WaitN(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	w.waits = append(w.waits, n)
	w.mu.Unlock()
	return nil
}

// recordQueue records dispatch publications.
type recordQueue struct {
	mu        sync.Mutex
	published []int
	err       error
}

func (q *recordQueue) PublishDispatch(broadcastID int) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	q.published = append(q.published, broadcastID)
	q.mu.Unlock()
	return nil
}

// errUserRepo fails every directory read.
type errUserRepo struct{ stubUserRepo }

func (r *errUserRepo) ListRecipients(targetType string, f *model.TargetFilters, offset, limit int) ([]model.User, error) {
	return nil, fmt.Errorf("directory unavailable")
}
