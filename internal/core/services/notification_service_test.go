package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlot/bidsync/internal/core/domain"
	apperrors "github.com/openlot/bidsync/internal/core/errors"
	"github.com/openlot/bidsync/internal/core/mocks"
	"github.com/openlot/bidsync/internal/core/services"
)

func focusedNotifications(t *testing.T) (*mocks.FakeConn, *services.NotificationService) {
	t.Helper()
	conn := mocks.NewFakeConn()
	svc := services.NewNotificationService(conn, sessionWith(testUser), testLogger())
	require.NoError(t, svc.Focus(context.Background()))
	return conn, svc
}

func TestNotificationService_Focus(t *testing.T) {
	t.Run("joins the user-scoped room", func(t *testing.T) {
		conn, _ := focusedNotifications(t)

		joins := conn.EmittedOf(domain.EventJoinRoom)
		require.Len(t, joins, 1)
		assert.Equal(t, "notification:u-1", joins[0].Payload.(domain.JoinRoomPayload).Scope)
	})

	t.Run("requires an authenticated user", func(t *testing.T) {
		conn := mocks.NewFakeConn()
		session := mocks.NewMockSessionProvider()
		session.On("User").Return(domain.UserRef{}, false)
		svc := services.NewNotificationService(conn, session, testLogger())

		err := svc.Focus(context.Background())

		assert.ErrorIs(t, err, apperrors.ErrNoActiveUser)
		assert.Empty(t, conn.Emits)
	})
}

func TestNotificationService_Push(t *testing.T) {
	t.Run("unread notifications bump the counter", func(t *testing.T) {
		conn, svc := focusedNotifications(t)

		var counts []int
		svc.OnChange(func(n int) { counts = append(counts, n) })

		conn.Dispatch(domain.EventNotification, domain.Notification{ID: "n1", Title: "Outbid"})
		conn.Dispatch(domain.EventNotification, domain.Notification{ID: "n2", Title: "Auction ending", Read: true})

		assert.Equal(t, 1, svc.Unread(), "read pushes do not count")
		require.Len(t, svc.List(), 2)
		assert.Equal(t, "n2", svc.List()[0].ID, "newest first")
		assert.Equal(t, []int{1, 1}, counts)
	})

	t.Run("duplicate pushes are dropped", func(t *testing.T) {
		conn, svc := focusedNotifications(t)

		conn.Dispatch(domain.EventNotification, domain.Notification{ID: "n1"})
		conn.Dispatch(domain.EventNotification, domain.Notification{ID: "n1"})

		assert.Len(t, svc.List(), 1)
		assert.Equal(t, 1, svc.Unread())
	})

	t.Run("batched pushes are flattened", func(t *testing.T) {
		conn, svc := focusedNotifications(t)

		conn.DispatchRaw(domain.EventNotification, []byte(`{"notifications":[{"_id":"n1"},{"_id":"n2"}]}`))

		assert.Len(t, svc.List(), 2)
		assert.Equal(t, 2, svc.Unread())
	})
}

func TestNotificationService_UnreadCount(t *testing.T) {
	t.Run("server count replaces the local one", func(t *testing.T) {
		conn, svc := focusedNotifications(t)

		conn.DispatchRaw(domain.EventUnreadCount, []byte(`{"count":5}`))
		assert.Equal(t, 5, svc.Unread())

		conn.DispatchRaw(domain.EventUnreadCount, []byte(`2`))
		assert.Equal(t, 2, svc.Unread())
	})

	t.Run("negative server count floors at zero", func(t *testing.T) {
		conn, svc := focusedNotifications(t)

		conn.DispatchRaw(domain.EventUnreadCount, []byte(`{"count":-3}`))

		assert.Zero(t, svc.Unread())
	})
}

func TestNotificationService_MarkRead(t *testing.T) {
	t.Run("flips the notification and decrements", func(t *testing.T) {
		conn, svc := focusedNotifications(t)
		conn.Dispatch(domain.EventNotification, domain.Notification{ID: "n1"})

		svc.MarkRead("n1")

		assert.Zero(t, svc.Unread())
		assert.True(t, svc.List()[0].Read)
	})

	t.Run("marking twice changes nothing", func(t *testing.T) {
		conn, svc := focusedNotifications(t)
		conn.Dispatch(domain.EventNotification, domain.Notification{ID: "n1"})
		conn.Dispatch(domain.EventNotification, domain.Notification{ID: "n2"})

		svc.MarkRead("n1")
		svc.MarkRead("n1")

		assert.Equal(t, 1, svc.Unread())
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		conn, svc := focusedNotifications(t)
		conn.Dispatch(domain.EventNotification, domain.Notification{ID: "n1"})

		svc.MarkRead("n-404")

		assert.Equal(t, 1, svc.Unread())
	})

	t.Run("counter never goes negative", func(t *testing.T) {
		conn, svc := focusedNotifications(t)
		conn.Dispatch(domain.EventNotification, domain.Notification{ID: "n1"})
		conn.DispatchRaw(domain.EventUnreadCount, []byte(`0`))

		svc.MarkRead("n1")

		assert.Zero(t, svc.Unread())
	})
}
