package notification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
)

// Scheduler keeps the fire timers of stored notifications.
type Scheduler interface {
	Add(ctx context.Context, n *Notification) error
	Remove(ctx context.Context, n *Notification) error
}

var trainCodePattern = regexp.MustCompile(`^\d{1,6}$`)

// ServiceConfig configures the notification service.
type ServiceConfig struct {
	Repository Repository
	Scheduler  Scheduler
	Logger     zerolog.Logger

	// Now is the clock used to reject past once dates. Defaults to time.Now.
	Now func() time.Time
}

// Service provides notification operations for chats.
type Service struct {
	repo      Repository
	scheduler Scheduler
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a new notification service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:      cfg.Repository,
		scheduler: cfg.Scheduler,
		logger:    cfg.Logger.With().Str("component", "notification_service").Logger(),
		now:       cfg.Now,
	}
}

// ListForChat returns the notifications of a chat.
func (s *Service) ListForChat(ctx context.Context, chatID int64) (*models.NotificationList, error) {
	ns, err := s.repo.FindByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	items := make([]models.Notification, 0, len(ns))
	for _, n := range ns {
		items = append(items, ToAPI(n))
	}
	return &models.NotificationList{Items: items}, nil
}

// FindByID returns one notification of a chat. Notifications of other chats
// are reported as not found.
func (s *Service) FindByID(ctx context.Context, chatID, id int64) (*models.Notification, error) {
	n, err := s.owned(ctx, chatID, id)
	if err != nil {
		return nil, err
	}
	out := ToAPI(n)
	return &out, nil
}

// Create validates, stores and schedules a notification.
func (s *Service) Create(ctx context.Context, chatID int64, input *models.NotificationCreateRequest) (*models.Notification, error) {
	schedule, fieldErrors := s.validateCreateInput(input)
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	n := &Notification{
		Train:    strings.TrimSpace(input.Train),
		Schedule: schedule,
		ChatID:   chatID,
	}
	if err := s.repo.Save(ctx, n); err != nil {
		return nil, fmt.Errorf("save notification: %w", err)
	}

	if err := s.scheduler.Add(ctx, n); err != nil {
		if delErr := s.repo.Delete(ctx, n.ID); delErr != nil {
			s.logger.Error().Err(delErr).Int64("notification_id", n.ID).Msg("failed to roll back unscheduled notification")
		}
		return nil, fmt.Errorf("schedule notification: %w", err)
	}

	s.logger.Info().
		Int64("notification_id", n.ID).
		Int64("chat_id", chatID).
		Str("train", n.Train).
		Str("schedule", string(schedule.Type())).
		Msg("notification created")

	out := ToAPI(n)
	return &out, nil
}

// Unsubscribe cancels the timer of a chat's notification and deletes it.
// The timer goes first so a failed call can be retried.
func (s *Service) Unsubscribe(ctx context.Context, chatID, id int64) error {
	n, err := s.owned(ctx, chatID, id)
	if err != nil {
		return err
	}
	if err := s.scheduler.Remove(ctx, n); err != nil {
		return fmt.Errorf("unschedule notification: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotificationNotFound) {
		return fmt.Errorf("delete notification: %w", err)
	}

	s.logger.Info().Int64("notification_id", id).Int64("chat_id", chatID).Msg("notification removed")
	return nil
}

func (s *Service) owned(ctx context.Context, chatID, id int64) (*Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.ChatID != chatID {
		return nil, ErrNotificationNotFound
	}
	return n, nil
}

func (s *Service) validateCreateInput(input *models.NotificationCreateRequest) (Schedule, []models.FieldError) {
	var errs []models.FieldError

	train := strings.TrimSpace(input.Train)
	if train == "" {
		errs = append(errs, models.FieldError{Field: "train", Message: "is required", Code: "REQUIRED"})
	} else if !trainCodePattern.MatchString(train) {
		errs = append(errs, models.FieldError{Field: "train", Message: "must be a train number", Code: "INVALID_FORMAT"})
	}

	var schedule Schedule
	switch ScheduleType(input.Schedule.Type) {
	case ScheduleOnce:
		switch {
		case input.Schedule.Date == nil:
			errs = append(errs, models.FieldError{Field: "schedule.date", Message: "is required", Code: "REQUIRED"})
		case !input.Schedule.Date.Time().After(s.now()):
			errs = append(errs, models.FieldError{Field: "schedule.date", Message: "must be in the future", Code: "OUT_OF_RANGE"})
		default:
			schedule = Once{Date: input.Schedule.Date.Time()}
		}
	case ScheduleWeekly:
		w := Weekly{Days: input.Schedule.Days, Time: input.Schedule.Time}.Normalized()
		if len(w.Days) == 0 {
			errs = append(errs, models.FieldError{Field: "schedule.days", Message: "is required", Code: "REQUIRED"})
		} else if w.Days[0] < 0 || w.Days[len(w.Days)-1] > 6 {
			errs = append(errs, models.FieldError{Field: "schedule.days", Message: "must contain values between 0 and 6", Code: "OUT_OF_RANGE"})
		}
		if _, _, err := w.Clock(); err != nil {
			errs = append(errs, models.FieldError{Field: "schedule.time", Message: "must be in HH:mm format", Code: "INVALID_FORMAT"})
		}
		schedule = w
	case "":
		errs = append(errs, models.FieldError{Field: "schedule.type", Message: "is required", Code: "REQUIRED"})
	default:
		errs = append(errs, models.FieldError{Field: "schedule.type", Message: "must be once or weekly", Code: "INVALID_VALUE"})
	}

	return schedule, errs
}

// ToAPI converts a notification to its API model.
func ToAPI(n *Notification) models.Notification {
	out := models.Notification{
		ID:        n.ID,
		Train:     n.Train,
		CreatedAt: models.Timestamp(n.CreatedAt),
		UpdatedAt: models.Timestamp(n.UpdatedAt),
	}
	switch s := n.Schedule.(type) {
	case Once:
		date := models.Timestamp(s.Date)
		out.Schedule = models.Schedule{Type: string(ScheduleOnce), Date: &date}
	case Weekly:
		out.Schedule = models.Schedule{Type: string(ScheduleWeekly), Days: s.Days, Time: s.Time}
	}
	return out
}

// ValidationError represents a validation error with field details.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
