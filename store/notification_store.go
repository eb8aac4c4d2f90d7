package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/hookwatch/hookwatch/errors"
)

// Notification is an in-app message tied to a user and optionally to a job
// or execution. Scheduling code only ever appends notifications; the read
// state is mutated by the notification API alone.
type Notification struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Type        string    `json:"type"` // success | error | warning | info
	JobID       string    `json:"job_id,omitempty"`
	ExecutionID string    `json:"execution_id,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification type constants.
const (
	NotificationSuccess = "success"
	NotificationError   = "error"
	NotificationWarning = "warning"
	NotificationInfo    = "info"
)

// NotificationStore handles persistence of notifications.
type NotificationStore struct {
	db *sql.DB
}

// NewNotificationStore creates a new notification store.
func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// CreateNotification appends a notification row.
func (s *NotificationStore) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, job_id, execution_id, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`,
		n.ID, n.UserID, n.Title, n.Message, n.Type,
		nullStr(n.JobID), nullStr(n.ExecutionID),
		n.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create notification")
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *NotificationStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error) {
	query := `
		SELECT id, user_id, title, message, type, job_id, execution_id, read, created_at
		FROM notifications
		WHERE user_id = ?
	`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT 200`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	defer rows.Close()

	var items []*Notification
	for rows.Next() {
		var n Notification
		var jobID, execID sql.NullString
		var createdAt string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &jobID, &execID, &n.Read, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan notification")
		}
		n.JobID = jobID.String
		n.ExecutionID = execID.String
		n.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse created_at for notification %s", n.ID)
		}
		items = append(items, &n)
	}
	return items, rows.Err()
}

// MarkNotificationRead flips a notification's read flag.
func (s *NotificationStore) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to mark notification read")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("notification not found: %s", id)
	}
	return nil
}
