package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonatfigyelo/vonatfigyelo/internal/notification"
)

func TestInMemoryRepository_SaveAssignsIDs(t *testing.T) {
	repo := notification.NewInMemoryRepository()
	ctx := context.Background()

	a := &notification.Notification{Train: "2613", Schedule: notification.Weekly{Days: []int{1}, Time: "07:00"}, ChatID: 1}
	b := &notification.Notification{Train: "912", Schedule: notification.Once{Date: time.Now().Add(time.Hour)}, ChatID: 2}
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.False(t, a.CreatedAt.IsZero())

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2613", all[0].Train)

	byChat, err := repo.FindByChat(ctx, 2)
	require.NoError(t, err)
	require.Len(t, byChat, 1)
	assert.Equal(t, b.ID, byChat[0].ID)
}

func TestInMemoryRepository_UpdateKeepsCreatedAt(t *testing.T) {
	repo := notification.NewInMemoryRepository()
	ctx := context.Background()

	n := &notification.Notification{Train: "2613", Schedule: notification.Weekly{Days: []int{1}, Time: "07:00"}, ChatID: 1}
	require.NoError(t, repo.Save(ctx, n))
	created := n.CreatedAt

	n.Train = "2615"
	require.NoError(t, repo.Save(ctx, n))

	got, err := repo.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "2615", got.Train)
	assert.Equal(t, created, got.CreatedAt)
}

func TestInMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := notification.NewInMemoryRepository()
	ctx := context.Background()

	n := &notification.Notification{Train: "2613", Schedule: notification.Weekly{Days: []int{1, 2}, Time: "07:00"}, ChatID: 1}
	require.NoError(t, repo.Save(ctx, n))

	got, err := repo.FindByID(ctx, n.ID)
	require.NoError(t, err)
	got.Schedule.(notification.Weekly).Days[0] = 6
	got.Train = "changed"

	again, err := repo.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "2613", again.Train)
	assert.Equal(t, []int{1, 2}, again.Schedule.(notification.Weekly).Days)
}

func TestInMemoryRepository_Delete(t *testing.T) {
	repo := notification.NewInMemoryRepository()
	ctx := context.Background()

	n := &notification.Notification{Train: "2613", Schedule: notification.Weekly{Days: []int{1}, Time: "07:00"}, ChatID: 1}
	require.NoError(t, repo.Save(ctx, n))

	require.NoError(t, repo.Delete(ctx, n.ID))
	assert.ErrorIs(t, repo.Delete(ctx, n.ID), notification.ErrNotificationNotFound)

	_, err := repo.FindByID(ctx, n.ID)
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)
}
