// Package postgres provides PostgreSQL implementation of the notification store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bissquit/notify-engine/internal/domain"
	"github.com/bissquit/notify-engine/internal/notifications"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationColumns = `id, type, title, message, recipient_id, sender_id, priority, metadata,
		delivery_status, created_at, delivered_at, read_at`

// Repository implements notifications.Store and notifications.PreferenceSource
// using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Save persists a new notification.
func (r *Repository) Save(ctx context.Context, n *domain.Notification) error {
	metadata, err := encodeMetadata(n.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notifications (id, type, title, message, recipient_id, sender_id, priority, metadata, delivery_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.Exec(ctx, query,
		n.ID,
		n.Type,
		n.Title,
		n.Message,
		n.RecipientID,
		n.SenderID,
		n.Priority,
		metadata,
		n.DeliveryStatus,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// UpdateDeliveryStatus sets the delivery status. A delivered row keeps its
// status and its first delivered_at.
func (r *Repository) UpdateDeliveryStatus(ctx context.Context, id string, status domain.DeliveryStatus) (*domain.Notification, error) {
	if uuid.Validate(id) != nil {
		return nil, notifications.ErrNotFound
	}

	query := `
		UPDATE notifications
		SET delivery_status = CASE WHEN delivery_status = 'delivered' THEN delivery_status ELSE $2::varchar END,
		    delivered_at = CASE
		        WHEN delivery_status = 'delivered' OR $2::varchar = 'delivered' THEN COALESCE(delivered_at, NOW())
		        ELSE delivered_at
		    END
		WHERE id = $1
		RETURNING ` + notificationColumns

	n, err := scanNotification(r.db.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrNotFound
		}
		return nil, fmt.Errorf("update delivery status: %w", err)
	}
	return n, nil
}

// Get returns a notification by ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Notification, error) {
	// ids are UUIDs; anything else cannot exist
	if uuid.Validate(id) != nil {
		return nil, notifications.ErrNotFound
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// GetPreferences returns stored preferences for a recipient.
func (r *Repository) GetPreferences(ctx context.Context, recipientID string) (domain.NotificationPreferences, bool, error) {
	query := `SELECT preferences FROM notification_preferences WHERE recipient_id = $1`

	var raw []byte
	if err := r.db.QueryRow(ctx, query, recipientID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotificationPreferences{}, false, nil
		}
		return domain.NotificationPreferences{}, false, fmt.Errorf("get preferences: %w", err)
	}

	var prefs domain.NotificationPreferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return domain.NotificationPreferences{}, false, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, true, nil
}

// SavePreferences creates or replaces preferences for a recipient.
func (r *Repository) SavePreferences(ctx context.Context, recipientID string, prefs domain.NotificationPreferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	query := `
		INSERT INTO notification_preferences (recipient_id, preferences)
		VALUES ($1, $2)
		ON CONFLICT (recipient_id) DO UPDATE SET preferences = EXCLUDED.preferences, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, recipientID, raw); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n        domain.Notification
		metadata []byte
	)
	err := row.Scan(
		&n.ID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.RecipientID,
		&n.SenderID,
		&n.Priority,
		&metadata,
		&n.DeliveryStatus,
		&n.CreatedAt,
		&n.DeliveredAt,
		&n.ReadAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &n, nil
}

func encodeMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return raw, nil
}
