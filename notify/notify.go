// Package notify fans scheduler events out to in-app notifications and
// the best-effort email and Slack collaborators.
//
// Delivery transports are external: the scheduler never depends on email
// or Slack succeeding, and failures here are logged, not propagated.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/hookwatch/hookwatch/store"
)

// EmailSender delivers failure/success mails. Implementations are external
// collaborators; the default logs instead of sending.
type EmailSender interface {
	SendEmail(ctx context.Context, addresses []string, subject, body string) error
}

// SlackPoster delivers best-effort Slack messages.
type SlackPoster interface {
	PostMessage(ctx context.Context, message string) error
}

// Notifier appends in-app notifications and forwards to the optional
// email/Slack collaborators.
type Notifier struct {
	store *store.NotificationStore
	email EmailSender
	slack SlackPoster
	log   *zap.SugaredLogger
}

// New creates a Notifier. email and slack may be nil.
func New(ns *store.NotificationStore, email EmailSender, slack SlackPoster, log *zap.SugaredLogger) *Notifier {
	return &Notifier{store: ns, email: email, slack: slack, log: log}
}

// Notify appends an in-app notification for a user.
// jobID and executionID may be empty.
func (n *Notifier) Notify(ctx context.Context, userID, title, message, typ, jobID, executionID string) {
	err := n.store.CreateNotification(ctx, &store.Notification{
		UserID:      userID,
		Title:       title,
		Message:     message,
		Type:        typ,
		JobID:       jobID,
		ExecutionID: executionID,
	})
	if err != nil {
		n.log.Errorw("Failed to create notification",
			"user_id", userID,
			"title", title,
			"error", err)
	}
}

// SendEmail delivers a mail best-effort.
func (n *Notifier) SendEmail(ctx context.Context, addresses []string, subject, body string) {
	if n.email == nil || len(addresses) == 0 {
		return
	}
	if err := n.email.SendEmail(ctx, addresses, subject, body); err != nil {
		n.log.Warnw("Failed to send email",
			"recipients", len(addresses),
			"subject", subject,
			"error", err)
	}
}

// PostSlack delivers a Slack message best-effort.
// Returns the delivery error so sweep callers can log per item, but callers
// must treat it as non-fatal.
func (n *Notifier) PostSlack(ctx context.Context, message string) error {
	if n.slack == nil {
		return nil
	}
	return n.slack.PostMessage(ctx, message)
}

// LogEmailSender is the default EmailSender: it records the mail in the
// log instead of delivering it. Used when no SMTP transport is wired.
type LogEmailSender struct {
	Log *zap.SugaredLogger
}

func (s LogEmailSender) SendEmail(_ context.Context, addresses []string, subject, _ string) error {
	s.Log.Infow("Email delivery skipped (no transport configured)",
		"recipients", len(addresses),
		"subject", subject)
	return nil
}
