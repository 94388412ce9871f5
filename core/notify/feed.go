package notify

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/kilianp07/gridready/core/model"
)

// ErrNotFound is returned when a notification id is unknown.
var ErrNotFound = errors.New("notification not found")

// DefaultLimit and MaxLimit bound feed queries.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Query filters the notification feed.
type Query struct {
	UnreadOnly bool
	PlantID    string
	Limit      int
}

// Normalize clamps the limit into [1, MaxLimit], defaulting to DefaultLimit.
func (q Query) Normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q
}

// Match reports whether n passes the filter, ignoring the limit.
func (q Query) Match(n model.Notification) bool {
	if q.UnreadOnly && n.Read {
		return false
	}
	return q.PlantID == "" || n.PlantID == q.PlantID
}

// Page is a feed listing with its derived aggregates.
type Page struct {
	Notifications []model.Notification `json:"notifications"`
	Total         int                  `json:"total"`
	UnreadCount   int                  `json:"unread_count"`
}

// Feed is the append-only notification store. Only the read flag of an
// entry is mutable. Implementations must be safe for concurrent use.
type Feed interface {
	Append(ctx context.Context, n model.Notification) error
	// List returns matching notifications newest first.
	List(ctx context.Context, q Query) ([]model.Notification, error)
	// MarkRead is idempotent and returns ErrNotFound for unknown ids.
	MarkRead(ctx context.Context, id string) error
	// MarkAllRead marks every unread notification, optionally of a single
	// plant, and returns how many changed.
	MarkAllRead(ctx context.Context, plantID string) (int, error)
	UnreadCount(ctx context.Context, plantID string) (int, error)
}

// Read lists q from feed and fills the page aggregates.
func Read(ctx context.Context, feed Feed, q Query) (Page, error) {
	q = q.Normalize()
	list, err := feed.List(ctx, q)
	if err != nil {
		return Page{}, err
	}
	unread, err := feed.UnreadCount(ctx, q.PlantID)
	if err != nil {
		return Page{}, err
	}
	return Page{Notifications: list, Total: len(list), UnreadCount: unread}, nil
}

// MemoryFeed keeps notifications in memory.
type MemoryFeed struct {
	mu    sync.RWMutex
	items []model.Notification
	index map[string]int
}

// NewMemoryFeed returns an empty feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{index: make(map[string]int)}
}

func (f *MemoryFeed) Append(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.index[n.ID]; ok {
		return nil
	}
	f.index[n.ID] = len(f.items)
	f.items = append(f.items, n)
	return nil
}

func (f *MemoryFeed) List(_ context.Context, q Query) ([]model.Notification, error) {
	q = q.Normalize()
	f.mu.RLock()
	out := make([]model.Notification, 0, q.Limit)
	for i := len(f.items) - 1; i >= 0; i-- {
		if q.Match(f.items[i]) {
			out = append(out, f.items[i])
		}
	}
	f.mu.RUnlock()
	// insertion order is creation order except for clock skew between
	// concurrent writers
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *MemoryFeed) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.index[id]
	if !ok {
		return ErrNotFound
	}
	f.items[i].Read = true
	return nil
}

func (f *MemoryFeed) MarkAllRead(_ context.Context, plantID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for i := range f.items {
		if f.items[i].Read || (plantID != "" && f.items[i].PlantID != plantID) {
			continue
		}
		f.items[i].Read = true
		n++
	}
	return n, nil
}

func (f *MemoryFeed) UnreadCount(_ context.Context, plantID string) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, it := range f.items {
		if !it.Read && (plantID == "" || it.PlantID == plantID) {
			n++
		}
	}
	return n, nil
}
