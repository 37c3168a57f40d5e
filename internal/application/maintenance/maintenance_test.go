package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/domain"
)

type mockAdmin struct {
	purgedDays   int
	retriedLimit int
	purgeErr     error
}

func (m *mockAdmin) PurgeOldJobs(_ context.Context, days int) (int64, error) {
	m.purgedDays = days
	return 3, m.purgeErr
}

func (m *mockAdmin) RetryTransientFailedJobs(_ context.Context, limit int) (int, error) {
	m.retriedLimit = limit
	return 1, nil
}

type mockTickQueue struct {
	inFlight map[string]bool
	enqueued []worker.EnqueueParams
}

func (m *mockTickQueue) Enqueue(_ context.Context, params worker.EnqueueParams) (string, error) {
	m.enqueued = append(m.enqueued, params)
	return "job-1", nil
}

func (m *mockTickQueue) HasInFlightMediaReviewJob(_ context.Context, userID string) (bool, error) {
	return m.inFlight[userID], nil
}

type mockPreviews struct {
	purged int
	err    error
}

func (m *mockPreviews) PurgeExpired(context.Context, time.Time) (int64, error) {
	m.purged++
	return 2, m.err
}

type mockMedia struct {
	purged int
}

func (m *mockMedia) PurgeDeleted(context.Context) (int64, error) {
	m.purged++
	return 1, nil
}

type mockModeration struct {
	users []string
	limit int
}

func (m *mockModeration) UsersWithPendingModeration(_ context.Context, limit int) ([]string, error) {
	m.limit = limit
	return m.users, nil
}

func tickFixture() (*Tick, *mockAdmin, *mockTickQueue, *mockPreviews, *mockMedia, *mockModeration) {
	admin := &mockAdmin{}
	queue := &mockTickQueue{inFlight: map[string]bool{}}
	previews := &mockPreviews{}
	media := &mockMedia{}
	moderation := &mockModeration{}
	cfg := config.WorkerConfig{
		MaintenanceInterval:       time.Hour,
		PurgeAfterDays:            30,
		MediaReviewSweepUserLimit: 100,
	}
	return New(admin, queue, previews, media, moderation, cfg), admin, queue, previews, media, moderation
}

func TestRunOnce_AllSweepsRun(t *testing.T) {
	tick, admin, _, previews, media, moderation := tickFixture()
	moderation.users = []string{"user-1"}

	tick.RunOnce(context.Background())

	if admin.purgedDays != 30 {
		t.Errorf("purge days = %d, want 30", admin.purgedDays)
	}
	if admin.retriedLimit != 50 {
		t.Errorf("retry limit = %d, want 50", admin.retriedLimit)
	}
	if previews.purged != 1 {
		t.Errorf("preview purge ran %d times, want 1", previews.purged)
	}
	if media.purged != 1 {
		t.Errorf("media purge ran %d times, want 1", media.purged)
	}
	if moderation.limit != 100 {
		t.Errorf("moderation sweep limit = %d, want 100", moderation.limit)
	}
}

func TestRunOnce_SweepFailureDoesNotStopOthers(t *testing.T) {
	tick, admin, _, previews, media, _ := tickFixture()
	admin.purgeErr = errors.New("store outage")
	previews.err = errors.New("store outage")

	tick.RunOnce(context.Background())

	if media.purged != 1 {
		t.Error("media purge skipped after earlier sweep failures")
	}
	if admin.retriedLimit != 50 {
		t.Error("retry sweep skipped after purge failure")
	}
}

func TestRunOnce_SweepPanicContained(t *testing.T) {
	tick, _, _, _, media, _ := tickFixture()
	tick.AddHook("exploding_hook", func(context.Context) error {
		panic("boom")
	})

	ran := false
	tick.AddHook("after_panic", func(context.Context) error {
		ran = true
		return nil
	})

	tick.RunOnce(context.Background())

	if !ran {
		t.Error("hook after a panicking hook did not run")
	}
	if media.purged != 1 {
		t.Error("built-in sweep did not run alongside panicking hook")
	}
}

func TestEscalateMediaReviews_Idempotent(t *testing.T) {
	tick, _, queue, _, _, moderation := tickFixture()
	moderation.users = []string{"user-1", "user-2", "user-3"}
	queue.inFlight["user-2"] = true

	tick.RunOnce(context.Background())

	if len(queue.enqueued) != 2 {
		t.Fatalf("enqueued %d escalations, want 2", len(queue.enqueued))
	}
	for _, params := range queue.enqueued {
		if params.Type != domain.JobMediaReviewEscalation {
			t.Errorf("job type = %s, want %s", params.Type, domain.JobMediaReviewEscalation)
		}
		var payload EscalationPayload
		raw, _ := params.Payload.(json.RawMessage)
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("bad escalation payload: %v", err)
		}
		if payload.UserID == "user-2" {
			t.Error("escalation enqueued for user with an in-flight job")
		}
	}
}

func TestRunOnce_NilCollaboratorsSkipped(t *testing.T) {
	admin := &mockAdmin{}
	queue := &mockTickQueue{}
	cfg := config.WorkerConfig{MaintenanceInterval: time.Hour, PurgeAfterDays: 30}
	tick := New(admin, queue, nil, nil, nil, cfg)

	tick.RunOnce(context.Background())

	if admin.purgedDays != 30 {
		t.Error("purge sweep did not run with nil optional collaborators")
	}
	if len(queue.enqueued) != 0 {
		t.Error("escalation enqueued without a moderation reader")
	}
}

func TestHooks_RunInOrder(t *testing.T) {
	tick, _, _, _, _, _ := tickFixture()

	var order []string
	tick.AddHook("renewal_checks", func(context.Context) error {
		order = append(order, "renewal_checks")
		return nil
	})
	tick.AddHook("compliance_snapshot", func(context.Context) error {
		order = append(order, "compliance_snapshot")
		return errors.New("snapshot failed")
	})
	tick.AddHook("revenue_reconciliation", func(context.Context) error {
		order = append(order, "revenue_reconciliation")
		return nil
	})

	tick.RunOnce(context.Background())

	want := []string{"renewal_checks", "compliance_snapshot", "revenue_reconciliation"}
	if len(order) != len(want) {
		t.Fatalf("ran %d hooks, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("hook %d = %s, want %s", i, order[i], want[i])
		}
	}
}
