package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigboard/gigboard/internal/observability"
)

type captureMailer struct {
	to      []string
	subject []string
	body    []string
	fail    error
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string) error {
	if m.fail != nil {
		return m.fail
	}
	m.to = append(m.to, to)
	m.subject = append(m.subject, subject)
	m.body = append(m.body, body)
	return nil
}

type stubInviteSweeper struct {
	count int64
	fail  error
}

func (s *stubInviteSweeper) ExpireStale(context.Context) (int64, error) {
	return s.count, s.fail
}

type stubSessionSweeper struct {
	expired    int64
	purged     int64
	retentions []time.Duration
	fail       error
}

func (s *stubSessionSweeper) ExpireStale(context.Context) (int64, error) {
	return s.expired, s.fail
}

func (s *stubSessionSweeper) PurgeTerminated(_ context.Context, retention time.Duration) (int64, error) {
	s.retentions = append(s.retentions, retention)
	return s.purged, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInviteEmailHandlerBuildsLink(t *testing.T) {
	mailer := &captureMailer{}
	handler := NewInviteEmailHandler(mailer, "https://gig.example.com", testLogger(), observability.NewMetrics())

	task, err := NewInviteEmailTask(InviteEmailPayload{
		Email:     "worker@example.com",
		Token:     "abc123",
		ExpiresAt: time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Len(t, mailer.to, 1)
	assert.Equal(t, "worker@example.com", mailer.to[0])
	assert.Contains(t, mailer.body[0], "https://gig.example.com/invites/abc123")
	assert.True(t, strings.Contains(mailer.body[0], "expires"))
}

func TestInviteEmailHandlerPropagatesSendFailure(t *testing.T) {
	mailer := &captureMailer{fail: errors.New("relay down")}
	handler := NewInviteEmailHandler(mailer, "http://localhost:8080", testLogger(), observability.NewMetrics())

	task, err := NewInviteEmailTask(InviteEmailPayload{Email: "a@b.co", Token: "t"})
	require.NoError(t, err)

	assert.Error(t, handler(context.Background(), task))
}

func TestInviteEmailHandlerSkipsBadPayload(t *testing.T) {
	handler := NewInviteEmailHandler(&captureMailer{}, "http://localhost:8080", testLogger(), observability.NewMetrics())

	task := asynq.NewTask(TaskInviteEmail, []byte("{not json"))
	err := handler(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestInviteCleanupHandler(t *testing.T) {
	sweeper := &stubInviteSweeper{count: 3}
	handler := NewInviteCleanupHandler(sweeper, testLogger(), observability.NewMetrics())

	assert.NoError(t, handler(context.Background(), NewInviteCleanupTask()))
}

func TestInviteCleanupHandlerPropagatesFailure(t *testing.T) {
	sweeper := &stubInviteSweeper{fail: errors.New("db down")}
	handler := NewInviteCleanupHandler(sweeper, testLogger(), observability.NewMetrics())

	assert.Error(t, handler(context.Background(), NewInviteCleanupTask()))
}

func TestSessionCleanupHandler(t *testing.T) {
	sweeper := &stubSessionSweeper{expired: 2, purged: 5}
	retention := 30 * 24 * time.Hour
	handler := NewSessionCleanupHandler(sweeper, retention, testLogger(), observability.NewMetrics())

	require.NoError(t, handler(context.Background(), NewSessionCleanupTask()))
	require.Len(t, sweeper.retentions, 1)
	assert.Equal(t, retention, sweeper.retentions[0])
}

func TestSessionCleanupHandlerStopsOnExpireFailure(t *testing.T) {
	sweeper := &stubSessionSweeper{fail: errors.New("db down")}
	handler := NewSessionCleanupHandler(sweeper, time.Hour, testLogger(), observability.NewMetrics())

	assert.Error(t, handler(context.Background(), NewSessionCleanupTask()))
	assert.Empty(t, sweeper.retentions, "purge must not run after a failed sweep")
}
