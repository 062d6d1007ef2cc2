package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/repository"
)

var _ repository.UsageRepository = (*UsageRepo)(nil)

// UsageRepo keeps per-user day counters in process memory. Each user holds at
// most historyDays distinct days; writing a new day evicts the oldest.
type UsageRepo struct {
	mu          sync.Mutex
	historyDays int
	days        map[int64]map[string]int
	lastSeen    map[int64]time.Time
}

func NewUsageRepo(historyDays int) *UsageRepo {
	if historyDays <= 0 {
		historyDays = 7
	}
	return &UsageRepo{
		historyDays: historyDays,
		days:        make(map[int64]map[string]int),
		lastSeen:    make(map[int64]time.Time),
	}
}

func (r *UsageRepo) Get(_ context.Context, userID int64, day string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.days[userID][day], nil
}

func (r *UsageRepo) Increment(_ context.Context, userID int64, day string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.incrLocked(userID, day), nil
}

func (r *UsageRepo) IncrementIfBelow(_ context.Context, userID int64, day string, limit int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.days[userID][day]
	if cur >= limit {
		return cur, false, nil
	}
	return r.incrLocked(userID, day), true, nil
}

func (r *UsageRepo) incrLocked(userID int64, day string) int {
	m, ok := r.days[userID]
	if !ok {
		m = make(map[string]int)
		r.days[userID] = m
	}
	if _, exists := m[day]; !exists && len(m) >= r.historyDays {
		oldest := ""
		for d := range m {
			if oldest == "" || d < oldest {
				oldest = d
			}
		}
		delete(m, oldest)
	}
	m[day]++
	return m[day]
}

func (r *UsageRepo) Decrement(_ context.Context, userID int64, day string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.days[userID]
	if m == nil {
		return nil
	}
	if m[day] <= 1 {
		delete(m, day)
		return nil
	}
	m[day]--
	return nil
}

func (r *UsageRepo) Touch(_ context.Context, userID int64, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.After(r.lastSeen[userID]) {
		r.lastSeen[userID] = t
	}
	return nil
}

func (r *UsageRepo) List(_ context.Context) ([]model.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.UsageRecord
	for uid, m := range r.days {
		for day, n := range m {
			out = append(out, model.UsageRecord{UserID: uid, Day: day, Count: n})
		}
	}
	return out, nil
}

func (r *UsageRepo) Users(_ context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.lastSeen))
	for id := range r.lastSeen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *UsageRepo) Prune(_ context.Context, oldestDay string, seenBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for uid, seen := range r.lastSeen {
		if seen.Before(seenBefore) {
			delete(r.lastSeen, uid)
			delete(r.days, uid)
			removed++
		}
	}
	for uid, m := range r.days {
		for day := range m {
			if day < oldestDay {
				delete(m, day)
				removed++
			}
		}
		if len(m) == 0 {
			delete(r.days, uid)
		}
	}
	return removed, nil
}
