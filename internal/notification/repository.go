package notification

import "context"

// Repository persists notifications.
type Repository interface {
	// FindAll returns every stored notification.
	FindAll(ctx context.Context) ([]*Notification, error)

	// FindByID returns ErrNotificationNotFound when the id is unknown.
	FindByID(ctx context.Context, id int64) (*Notification, error)

	// FindByChat returns the notifications of one chat, oldest first.
	FindByChat(ctx context.Context, chatID int64) ([]*Notification, error)

	// Save inserts a notification with a zero ID, assigning one, or updates
	// an existing one. Timestamps are maintained by the repository.
	Save(ctx context.Context, n *Notification) error

	// Delete returns ErrNotificationNotFound when the id is unknown.
	Delete(ctx context.Context, id int64) error
}
