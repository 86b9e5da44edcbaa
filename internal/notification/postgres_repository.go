package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// Schedules are stored as JSONB in their tagged JSON form.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL notification repository.
// Rows whose stored schedule cannot be decoded are logged and left out of
// list queries.
func NewPostgresRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		logger: logger.With().Str("component", "notification_store").Logger(),
	}
}

const schema = `
	CREATE TABLE IF NOT EXISTS notifications (
		id         BIGSERIAL PRIMARY KEY,
		train      TEXT        NOT NULL,
		schedule   JSONB       NOT NULL,
		chat_id    BIGINT      NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS notifications_chat_id_idx ON notifications (chat_id);
`

// EnsureSchema creates the notifications table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create notifications schema: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, train, schedule, chat_id, created_at, updated_at FROM notifications`

// FindAll returns all notifications ordered by ID.
func (r *PostgresRepository) FindAll(ctx context.Context) ([]*Notification, error) {
	return r.query(ctx, selectColumns+` ORDER BY id`)
}

// FindByID retrieves a notification by ID.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return n, nil
}

// FindByChat retrieves the notifications of a chat.
func (r *PostgresRepository) FindByChat(ctx context.Context, chatID int64) ([]*Notification, error) {
	return r.query(ctx, selectColumns+` WHERE chat_id = $1 ORDER BY id`, chatID)
}

// Save inserts a new notification or updates an existing one.
func (r *PostgresRepository) Save(ctx context.Context, n *Notification) error {
	schedule, err := MarshalSchedule(n.Schedule)
	if err != nil {
		return err
	}

	if n.ID == 0 {
		query := `
			INSERT INTO notifications (train, schedule, chat_id)
			VALUES ($1, $2, $3)
			RETURNING id, created_at, updated_at
		`
		return r.pool.QueryRow(ctx, query, n.Train, schedule, n.ChatID).
			Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	}

	query := `
		UPDATE notifications
		SET train = $2, schedule = $3, chat_id = $4, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query, n.ID, n.Train, schedule, n.ChatID).Scan(&n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotificationNotFound
	}
	return err
}

// Delete removes a notification.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*Notification, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNotifications(rows, func(id int64, err error) {
		r.logger.Warn().
			Err(err).
			Int64("notification_id", id).
			Msg("skipping stored notification with undecodable schedule")
	})
}

// rowIterator is the part of pgx.Rows that collectNotifications reads.
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// collectNotifications scans every row. A row whose schedule does not decode
// is passed to skip and left out; any other scan error aborts.
func collectNotifications(rows rowIterator, skip func(id int64, err error)) ([]*Notification, error) {
	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		var bad *scheduleDecodeError
		if errors.As(err, &bad) {
			skip(bad.id, bad.err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// scheduleDecodeError is a stored row with an invalid schedule column.
type scheduleDecodeError struct {
	id  int64
	err error
}

func (e *scheduleDecodeError) Error() string {
	return fmt.Sprintf("notification %d: %v", e.id, e.err)
}

func (e *scheduleDecodeError) Unwrap() error {
	return e.err
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n        Notification
		schedule []byte
	)
	if err := row.Scan(&n.ID, &n.Train, &schedule, &n.ChatID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	s, err := UnmarshalSchedule(schedule)
	if err != nil {
		return nil, &scheduleDecodeError{id: n.ID, err: err}
	}
	n.Schedule = s
	return &n, nil
}
