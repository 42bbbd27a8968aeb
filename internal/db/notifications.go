package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"notification-engine/internal/models"
)

const notificationColumns = `
        id, user_id, type, title, message, icon, priority, entity_type,
        entity_id, entity_url, data, is_read, read_at, is_archived,
        archived_at, delivered_at, created_at`

// Save inserts a finished notification record.
func (d *DB) Save(ctx context.Context, n models.Notification) error {
	query := `
        INSERT INTO notifications (
            id, user_id, type, title, message, icon, priority, entity_type,
            entity_id, entity_url, data, is_read, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := d.Pool.Exec(ctx, query,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Icon, n.Priority,
		n.EntityType, n.EntityID, n.EntityURL, n.Data, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// MarkDelivered stamps the time the live push succeeded.
func (d *DB) MarkDelivered(ctx context.Context, id string) error {
	query := `UPDATE notifications SET delivered_at = $1 WHERE id = $2`
	if _, err := d.Pool.Exec(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark notification %s delivered: %w", id, err)
	}
	return nil
}

// MarkRead marks one notification read and returns the owning user id so the
// caller can fan out a read receipt.
func (d *DB) MarkRead(ctx context.Context, id string) (string, error) {
	query := `
        UPDATE notifications
        SET is_read = true, read_at = $1
        WHERE id = $2
        RETURNING user_id`
	var userID string
	err := d.Pool.QueryRow(ctx, query, time.Now(), id).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("no notification found for id %s", id)
		}
		return "", fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	return userID, nil
}

// MarkAllRead marks every unread notification of a user read and reports how
// many rows changed.
func (d *DB) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	query := `
        UPDATE notifications
        SET is_read = true, read_at = $1
        WHERE user_id = $2 AND is_read = false`
	tag, err := d.Pool.Exec(ctx, query, time.Now(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read for user %s: %w", userID, err)
	}
	return tag.RowsAffected(), nil
}

// Archive dismisses a notification from the user's list.
func (d *DB) Archive(ctx context.Context, id string) error {
	query := `
        UPDATE notifications
        SET is_archived = true, archived_at = $1
        WHERE id = $2`
	tag, err := d.Pool.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to archive notification %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no notification found for id %s", id)
	}
	return nil
}

// UnreadCount returns the number of unread, unarchived notifications.
func (d *DB) UnreadCount(ctx context.Context, userID string) (int, error) {
	query := `
        SELECT COUNT(*) FROM notifications
        WHERE user_id = $1 AND is_read = false AND is_archived = false`
	var count int
	if err := d.Pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications for user %s: %w", userID, err)
	}
	return count, nil
}

// ListForUser fetches a user's notifications newest-first with pagination and
// returns the filtered total alongside the page.
func (d *DB) ListForUser(ctx context.Context, userID string, filter models.ListFilter) ([]models.Notification, int, error) {
	where := `WHERE user_id = $1`
	if !filter.IncludeArchived {
		where += ` AND is_archived = false`
	}
	if filter.UnreadOnly {
		where += ` AND is_read = false`
	}

	var total int
	countQ := `SELECT COUNT(*) FROM notifications ` + where
	if err := d.Pool.QueryRow(ctx, countQ, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications for user %s: %w", userID, err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + notificationColumns + `
        FROM notifications ` + where + `
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := d.Pool.Query(ctx, query, userID, limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications for user %s: %w", userID, err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read notification rows: %w", err)
	}

	return notifications, total, nil
}

// GetByID fetches a single notification.
func (d *DB) GetByID(ctx context.Context, id string) (models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	row := d.Pool.QueryRow(ctx, query, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Notification{}, fmt.Errorf("no notification found for id %s", id)
		}
		return models.Notification{}, fmt.Errorf("failed to get notification %s: %w", id, err)
	}
	return n, nil
}

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Icon, &n.Priority,
		&n.EntityType, &n.EntityID, &n.EntityURL, &n.Data, &n.IsRead, &n.ReadAt,
		&n.IsArchived, &n.ArchivedAt, &n.DeliveredAt, &n.CreatedAt,
	)
	if err != nil {
		return models.Notification{}, err
	}
	return n, nil
}
