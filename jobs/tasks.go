// Package jobs runs the background side of the invitation and session
// lifecycles: outgoing invite email and the periodic sweeps that stamp
// expired rows. Nothing here is load-bearing for correctness; the write
// paths check expiry themselves.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gigboard/gigboard/internal/observability"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInviteEmail delivers the invitation link to the invitee.
	TaskInviteEmail = "invite:email"
	// TaskInviteCleanup sweeps expired pending invitations.
	TaskInviteCleanup = "invite:cleanup"
	// TaskSessionCleanup stamps expired sessions and prunes old rows.
	TaskSessionCleanup = "session:cleanup"
)

// InviteEmailPayload describes one invitation email.
type InviteEmailPayload struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewInviteEmailTask constructs an Asynq task.
func NewInviteEmailTask(payload InviteEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInviteEmail, data, asynq.Queue(QueueDefault)), nil
}

// NewInviteCleanupTask constructs the periodic invitation sweep task.
func NewInviteCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskInviteCleanup, nil, asynq.Queue(QueueDefault))
}

// NewSessionCleanupTask constructs the periodic session sweep task.
func NewSessionCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskSessionCleanup, nil, asynq.Queue(QueueDefault))
}

// Mailer sends one message. Implemented by SMTPMailer; tests stub it.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewInviteEmailHandler returns the handler for TaskInviteEmail.
func NewInviteEmailHandler(mailer Mailer, baseURL string, logger *slog.Logger, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload InviteEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		link := fmt.Sprintf("%s/invites/%s", baseURL, payload.Token)
		body := fmt.Sprintf(
			"You have been invited to join Gigboard.\r\n\r\n"+
				"Open %s to set up your account.\r\n\r\n"+
				"The invitation expires on %s.\r\n",
			link, payload.ExpiresAt.Format(time.RFC1123))
		err := mailer.Send(ctx, payload.Email, "You're invited to Gigboard", body)
		metrics.JobProcessed(TaskInviteEmail, err)
		if err != nil {
			logger.Error("send invite email", slog.String("email", payload.Email), slog.Any("error", err))
			return err
		}
		logger.Info("invite email sent", slog.String("email", payload.Email))
		return nil
	}
}

// InviteSweeper is the slice of the invitation service the cleanup needs.
type InviteSweeper interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// NewInviteCleanupHandler returns the handler for TaskInviteCleanup.
func NewInviteCleanupHandler(sweeper InviteSweeper, logger *slog.Logger, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		n, err := sweeper.ExpireStale(ctx)
		metrics.JobProcessed(TaskInviteCleanup, err)
		if err != nil {
			logger.Error("invite cleanup", slog.Any("error", err))
			return err
		}
		logger.Info("invite cleanup done", slog.Int64("expired", n))
		return nil
	}
}

// SessionSweeper is the slice of the session service the cleanup needs.
type SessionSweeper interface {
	ExpireStale(ctx context.Context) (int64, error)
	PurgeTerminated(ctx context.Context, retention time.Duration) (int64, error)
}

// NewSessionCleanupHandler returns the handler for TaskSessionCleanup.
func NewSessionCleanupHandler(sweeper SessionSweeper, retention time.Duration, logger *slog.Logger, metrics *observability.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		expired, err := sweeper.ExpireStale(ctx)
		if err == nil {
			var purged int64
			purged, err = sweeper.PurgeTerminated(ctx, retention)
			if err == nil {
				logger.Info("session cleanup done",
					slog.Int64("expired", expired),
					slog.Int64("purged", purged),
				)
			}
		}
		metrics.JobProcessed(TaskSessionCleanup, err)
		if err != nil {
			logger.Error("session cleanup", slog.Any("error", err))
		}
		return err
	}
}
