package notification

import (
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// It is used by tests and by the API when no database is configured.
type InMemoryRepository struct {
	mu            sync.RWMutex
	notifications map[int64]*Notification
	nextID        int64
	now           func() time.Time
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		notifications: make(map[int64]*Notification),
		now:           time.Now,
	}
}

// FindAll returns all notifications ordered by ID.
func (r *InMemoryRepository) FindAll(_ context.Context) ([]*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Notification, 0, len(r.notifications))
	for _, n := range r.notifications {
		out = append(out, clone(n))
	}
	sortByID(out)
	return out, nil
}

// FindByID retrieves a notification by ID.
func (r *InMemoryRepository) FindByID(_ context.Context, id int64) (*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	return clone(n), nil
}

// FindByChat retrieves the notifications of a chat.
func (r *InMemoryRepository) FindByChat(_ context.Context, chatID int64) ([]*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Notification
	for _, n := range r.notifications {
		if n.ChatID == chatID {
			out = append(out, clone(n))
		}
	}
	sortByID(out)
	return out, nil
}

// Save inserts or updates a notification.
func (r *InMemoryRepository) Save(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if n.ID == 0 {
		r.nextID++
		n.ID = r.nextID
		n.CreatedAt = now
	} else if existing, ok := r.notifications[n.ID]; ok {
		n.CreatedAt = existing.CreatedAt
	} else if n.ID > r.nextID {
		r.nextID = n.ID
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	r.notifications[n.ID] = clone(n)
	return nil
}

// Delete removes a notification.
func (r *InMemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notifications[id]; !ok {
		return ErrNotificationNotFound
	}
	delete(r.notifications, id)
	return nil
}

func clone(n *Notification) *Notification {
	cpy := *n
	if w, ok := n.Schedule.(Weekly); ok {
		cpy.Schedule = Weekly{Days: slices.Clone(w.Days), Time: w.Time}
	}
	return &cpy
}

func sortByID(ns []*Notification) {
	slices.SortFunc(ns, func(a, b *Notification) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
