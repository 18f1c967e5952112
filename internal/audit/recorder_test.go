package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	err      error
	lastSQL  string
	lastArgs []any
	calls    int
}

func (s *stubExecutor) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls++
	s.lastSQL = sql
	s.lastArgs = args
	return pgconn.CommandTag{}, s.err
}

func TestRecordInRequiresAction(t *testing.T) {
	rec := &Recorder{}
	exec := &stubExecutor{}
	if err := rec.RecordIn(context.Background(), exec, Entry{}); err == nil {
		t.Fatalf("expected error for missing action")
	}
	if exec.calls != 0 {
		t.Fatalf("exec must not be called for invalid entries")
	}
}

func TestRecordInWritesAllFields(t *testing.T) {
	rec := &Recorder{}
	exec := &stubExecutor{}
	actor := int64(1)
	target := int64(2)
	entry := Entry{
		ActorUserID:  &actor,
		TargetUserID: &target,
		Action:       ActionInviteCreated,
		Resource:     ResourceInvitation,
		ResourceID:   "42",
		Meta:         map[string]any{"email": "bob@example.com"},
		IPAddress:    "203.0.113.9",
		UserAgent:    "test-agent",
	}
	if err := rec.RecordIn(context.Background(), exec, entry); err != nil {
		t.Fatalf("record: %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("expected exactly one insert, got %d", exec.calls)
	}
	if len(exec.lastArgs) != 9 {
		t.Fatalf("expected 9 args, got %d", len(exec.lastArgs))
	}
	if exec.lastArgs[2] != "INVITE_CREATED" {
		t.Fatalf("unexpected action arg: %v", exec.lastArgs[2])
	}
}

// A failed audit write must surface to the caller: the surrounding mutation
// fails rather than committing without its trail.
func TestRecordInPropagatesStoreFailure(t *testing.T) {
	rec := &Recorder{}
	storeErr := errors.New("connection reset")
	exec := &stubExecutor{err: storeErr}
	err := rec.RecordIn(context.Background(), exec, Entry{Action: ActionSessionRevoked})
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestRecordWithoutPoolFails(t *testing.T) {
	var rec *Recorder
	if err := rec.Record(context.Background(), Entry{Action: ActionInviteRevoked}); err == nil {
		t.Fatalf("expected error for unconfigured recorder")
	}
}
