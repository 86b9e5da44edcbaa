package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
	"github.com/vonatfigyelo/vonatfigyelo/internal/notification"
)

type fakeScheduler struct {
	mu      sync.Mutex
	added   []int64
	removed []int64
	addErr  error
}

func (f *fakeScheduler) Add(_ context.Context, n *notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, n.ID)
	return nil
}

func (f *fakeScheduler) Remove(_ context.Context, n *notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, n.ID)
	return nil
}

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestService(sched *fakeScheduler) (*notification.Service, *notification.InMemoryRepository) {
	repo := notification.NewInMemoryRepository()
	svc := notification.NewService(notification.ServiceConfig{
		Repository: repo,
		Scheduler:  sched,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return testNow },
	})
	return svc, repo
}

func weeklyRequest(train string, days []int, clock string) *models.NotificationCreateRequest {
	return &models.NotificationCreateRequest{
		Train:    train,
		Schedule: models.Schedule{Type: "weekly", Days: days, Time: clock},
	}
}

func TestService_CreateWeekly(t *testing.T) {
	sched := &fakeScheduler{}
	svc, repo := newTestService(sched)
	ctx := context.Background()

	out, err := svc.Create(ctx, 42, weeklyRequest(" 2613 ", []int{5, 1, 3, 3}, "07:30"))
	require.NoError(t, err)

	assert.Equal(t, "2613", out.Train)
	assert.Equal(t, []int{1, 3, 5}, out.Schedule.Days)
	assert.Equal(t, []int64{out.ID}, sched.added)

	stored, err := repo.FindByID(ctx, out.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.ChatID)
	assert.Equal(t, notification.Weekly{Days: []int{1, 3, 5}, Time: "07:30"}, stored.Schedule)
}

func TestService_CreateOnce(t *testing.T) {
	sched := &fakeScheduler{}
	svc, _ := newTestService(sched)

	date := models.Timestamp(testNow.Add(24 * time.Hour))
	out, err := svc.Create(context.Background(), 42, &models.NotificationCreateRequest{
		Train:    "912",
		Schedule: models.Schedule{Type: "once", Date: &date},
	})
	require.NoError(t, err)
	assert.Equal(t, "once", out.Schedule.Type)
	require.NotNil(t, out.Schedule.Date)
	assert.True(t, testNow.Add(24*time.Hour).Equal(out.Schedule.Date.Time()))
}

func TestService_CreateValidation(t *testing.T) {
	past := models.Timestamp(testNow.Add(-time.Hour))

	tests := []struct {
		name  string
		input *models.NotificationCreateRequest
		field string
	}{
		{"missing train", weeklyRequest("", []int{1}, "07:30"), "train"},
		{"non numeric train", weeklyRequest("IC 920", []int{1}, "07:30"), "train"},
		{"empty days", weeklyRequest("2613", nil, "07:30"), "schedule.days"},
		{"day out of range", weeklyRequest("2613", []int{7}, "07:30"), "schedule.days"},
		{"bad time", weeklyRequest("2613", []int{1}, "7.30"), "schedule.time"},
		{"once without date", &models.NotificationCreateRequest{Train: "2613", Schedule: models.Schedule{Type: "once"}}, "schedule.date"},
		{"once in the past", &models.NotificationCreateRequest{Train: "2613", Schedule: models.Schedule{Type: "once", Date: &past}}, "schedule.date"},
		{"missing type", &models.NotificationCreateRequest{Train: "2613"}, "schedule.type"},
		{"unknown type", &models.NotificationCreateRequest{Train: "2613", Schedule: models.Schedule{Type: "daily"}}, "schedule.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &fakeScheduler{}
			svc, repo := newTestService(sched)

			_, err := svc.Create(context.Background(), 42, tt.input)

			var valErr *notification.ValidationError
			require.True(t, errors.As(err, &valErr))
			require.NotEmpty(t, valErr.Errors)
			assert.Equal(t, tt.field, valErr.Errors[0].Field)
			assert.Empty(t, sched.added)

			all, _ := repo.FindAll(context.Background())
			assert.Empty(t, all)
		})
	}
}

func TestService_CreateRollsBackWhenSchedulingFails(t *testing.T) {
	sched := &fakeScheduler{addErr: notification.ErrInvalidSchedule}
	svc, repo := newTestService(sched)

	_, err := svc.Create(context.Background(), 42, weeklyRequest("2613", []int{1}, "07:30"))
	assert.ErrorIs(t, err, notification.ErrInvalidSchedule)

	all, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_Unsubscribe(t *testing.T) {
	sched := &fakeScheduler{}
	svc, repo := newTestService(sched)
	ctx := context.Background()

	out, err := svc.Create(ctx, 42, weeklyRequest("2613", []int{1}, "07:30"))
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(ctx, 42, out.ID))
	assert.Equal(t, []int64{out.ID}, sched.removed)

	_, err = repo.FindByID(ctx, out.ID)
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)

	assert.ErrorIs(t, svc.Unsubscribe(ctx, 42, out.ID), notification.ErrNotificationNotFound)
}

func TestService_OtherChatsNotificationsAreHidden(t *testing.T) {
	sched := &fakeScheduler{}
	svc, repo := newTestService(sched)
	ctx := context.Background()

	out, err := svc.Create(ctx, 42, weeklyRequest("2613", []int{1}, "07:30"))
	require.NoError(t, err)

	_, err = svc.FindByID(ctx, 7, out.ID)
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)

	assert.ErrorIs(t, svc.Unsubscribe(ctx, 7, out.ID), notification.ErrNotificationNotFound)
	assert.Empty(t, sched.removed)

	_, err = repo.FindByID(ctx, out.ID)
	assert.NoError(t, err)
}

func TestService_ListForChat(t *testing.T) {
	svc, _ := newTestService(&fakeScheduler{})
	ctx := context.Background()

	_, err := svc.Create(ctx, 42, weeklyRequest("2613", []int{1}, "07:30"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, 42, weeklyRequest("2615", []int{2}, "08:30"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, 7, weeklyRequest("912", []int{3}, "09:30"))
	require.NoError(t, err)

	list, err := svc.ListForChat(ctx, 42)
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "2613", list.Items[0].Train)
	assert.Equal(t, "2615", list.Items[1].Train)
}
