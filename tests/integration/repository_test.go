//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/notify-engine/internal/domain"
	"github.com/bissquit/notify-engine/internal/notifications"
	notificationspostgres "github.com/bissquit/notify-engine/internal/notifications/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStoredNotification saves a notification directly through the repository.
// A non-empty email is stored as the recipient address.
func newStoredNotification(t *testing.T, status domain.DeliveryStatus, email string) *domain.Notification {
	t.Helper()

	n := &domain.Notification{
		ID:             uuid.NewString(),
		Type:           domain.NotificationTypeTaskAssigned,
		Title:          "Fix login",
		Message:        "Please take a look",
		RecipientID:    "user-" + uuid.NewString(),
		Priority:       domain.PriorityHigh,
		Metadata:       map[string]string{domain.MetadataLink: "https://example.com/tasks/1"},
		DeliveryStatus: status,
		CreatedAt:      time.Now().UTC(),
	}
	if email != "" {
		n.Metadata[domain.MetadataRecipientEmail] = email
	}
	repo := notificationspostgres.NewRepository(testDB)
	require.NoError(t, repo.Save(context.Background(), n))
	return n
}

func TestRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := notificationspostgres.NewRepository(testDB)
	saved := newStoredNotification(t, domain.DeliveryStatusPending, "")

	got, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)

	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, saved.Type, got.Type)
	assert.Equal(t, saved.Title, got.Title)
	assert.Equal(t, saved.RecipientID, got.RecipientID)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	assert.Equal(t, saved.Metadata, got.Metadata)
	assert.Equal(t, domain.DeliveryStatusPending, got.DeliveryStatus)
	assert.WithinDuration(t, saved.CreatedAt, got.CreatedAt, time.Millisecond)
	assert.Nil(t, got.DeliveredAt)
}

func TestRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := notificationspostgres.NewRepository(testDB)

	for _, id := range []string{uuid.NewString(), "not-a-uuid", ""} {
		_, err := repo.Get(ctx, id)
		assert.ErrorIs(t, err, notifications.ErrNotFound, "get %q", id)

		_, err = repo.UpdateDeliveryStatus(ctx, id, domain.DeliveryStatusDelivered)
		assert.ErrorIs(t, err, notifications.ErrNotFound, "update %q", id)
	}
}

func TestRepository_UpdateDeliveryStatus(t *testing.T) {
	ctx := context.Background()
	repo := notificationspostgres.NewRepository(testDB)
	n := newStoredNotification(t, domain.DeliveryStatusPending, "")

	failed, err := repo.UpdateDeliveryStatus(ctx, n.ID, domain.DeliveryStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusFailed, failed.DeliveryStatus)
	assert.Nil(t, failed.DeliveredAt)

	delivered, err := repo.UpdateDeliveryStatus(ctx, n.ID, domain.DeliveryStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusDelivered, delivered.DeliveryStatus)
	require.NotNil(t, delivered.DeliveredAt)

	t.Run("delivered is sticky", func(t *testing.T) {
		again, err := repo.UpdateDeliveryStatus(ctx, n.ID, domain.DeliveryStatusFailed)
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryStatusDelivered, again.DeliveryStatus)
		require.NotNil(t, again.DeliveredAt)
		assert.True(t, delivered.DeliveredAt.Equal(*again.DeliveredAt))
	})

	t.Run("delivered_at is stamped once", func(t *testing.T) {
		again, err := repo.UpdateDeliveryStatus(ctx, n.ID, domain.DeliveryStatusDelivered)
		require.NoError(t, err)
		require.NotNil(t, again.DeliveredAt)
		assert.True(t, delivered.DeliveredAt.Equal(*again.DeliveredAt))
	})
}

func TestRepository_Preferences(t *testing.T) {
	ctx := context.Background()
	repo := notificationspostgres.NewRepository(testDB)
	recipient := "user-" + uuid.NewString()

	_, found, err := repo.GetPreferences(ctx, recipient)
	require.NoError(t, err)
	assert.False(t, found)

	prefs := domain.NotificationPreferences{
		EmailEnabled:      true,
		MutedTypes:        []domain.NotificationType{domain.NotificationTypeMention},
		PriorityThreshold: domain.PriorityMedium,
		DeliveryChannels: map[domain.NotificationType][]domain.ChannelName{
			domain.NotificationTypeSystem: {domain.ChannelEmail},
		},
	}
	require.NoError(t, repo.SavePreferences(ctx, recipient, prefs))

	got, found, err := repo.GetPreferences(ctx, recipient)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, prefs, got)

	prefs.MutedTypes = nil
	prefs.InAppEnabled = true
	require.NoError(t, repo.SavePreferences(ctx, recipient, prefs), "upsert")

	got, found, err = repo.GetPreferences(ctx, recipient)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, prefs, got)
}
