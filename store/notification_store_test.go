package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookwatch/hookwatch/errors"
	hwtest "github.com/hookwatch/hookwatch/internal/testing"
)

func TestCreateAndListNotifications(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	jobs := NewStore(db)
	notifs := NewNotificationStore(db)
	ctx := context.Background()

	job := createTestJob(t, jobs)

	require.NoError(t, notifs.CreateNotification(ctx, &Notification{
		UserID:  "user-1",
		Title:   "Job failed",
		Message: "boom",
		Type:    NotificationError,
		JobID:   job.ID,
	}))
	require.NoError(t, notifs.CreateNotification(ctx, &Notification{
		UserID:  "user-2",
		Title:   "Job auto-paused",
		Message: "end date passed",
		Type:    NotificationWarning,
		JobID:   job.ID,
	}))

	list, err := notifs.ListNotifications(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Job failed", list[0].Title)
	assert.Equal(t, NotificationError, list[0].Type)
	assert.False(t, list[0].Read)
}

func TestMarkNotificationRead(t *testing.T) {
	db := hwtest.CreateTestDB(t)
	notifs := NewNotificationStore(db)
	ctx := context.Background()

	n := &Notification{
		UserID:  "user-1",
		Title:   "hello",
		Message: "world",
		Type:    NotificationInfo,
	}
	require.NoError(t, notifs.CreateNotification(ctx, n))

	require.NoError(t, notifs.MarkNotificationRead(ctx, n.ID))

	unread, err := notifs.ListNotifications(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	all, err := notifs.ListNotifications(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Read)

	assert.True(t, errors.IsNotFound(notifs.MarkNotificationRead(ctx, "no-such-id")))
}
