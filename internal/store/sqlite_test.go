package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailsweep/internal/model"
	"github.com/nhle/mailsweep/tests/testutil"
)

func TestRunLifecycle(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	run := model.Run{
		ID:        uuid.NewString(),
		Kind:      model.RunKindScan,
		Mailbox:   "me@example.com",
		StartedAt: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	if err := s.StartRun(ctx, run); err != nil {
		t.Fatalf("start run: %v", err)
	}

	run.FinishedAt = run.StartedAt.Add(2 * time.Minute)
	run.Scanned = 120
	run.Skipped = 30
	run.Domains = 14
	run.ReportPath = "report.csv"
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %v", runs)
	}
	got := runs[0]
	if got.ID != run.ID || got.Kind != model.RunKindScan {
		t.Errorf("run = %+v", got)
	}
	if got.Scanned != 120 || got.Skipped != 30 || got.Domains != 14 {
		t.Errorf("counters = %+v", got)
	}
	if got.ReportPath != "report.csv" {
		t.Errorf("report path = %q", got.ReportPath)
	}
}

func TestOutcomesPerRun(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	runID := uuid.NewString()
	if err := s.StartRun(ctx, model.Run{
		ID:        runID,
		Kind:      model.RunKindUnsubscribe,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	outcomes := []model.Outcome{
		{
			RunID:       runID,
			Domain:      "a.example.com",
			Status:      model.SuccessStatus(model.MethodStoredURL),
			Method:      model.MethodStoredURL,
			AttemptedAt: time.Now().UTC(),
		},
		{
			RunID:       runID,
			Domain:      "b.example.com",
			Status:      model.FailedStatus("all methods failed"),
			Reason:      "all methods failed",
			AttemptedAt: time.Now().UTC(),
		},
	}
	for _, o := range outcomes {
		if err := s.RecordOutcome(ctx, o); err != nil {
			t.Fatalf("record outcome: %v", err)
		}
	}

	got, err := s.Outcomes(ctx, runID)
	if err != nil {
		t.Fatalf("outcomes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("outcomes = %v", got)
	}
	if got[0].Domain != "a.example.com" || got[0].Method != model.MethodStoredURL {
		t.Errorf("outcome[0] = %+v", got[0])
	}
	if got[1].Status != "Failed: all methods failed" {
		t.Errorf("outcome[1] = %+v", got[1])
	}

	other, err := s.Outcomes(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("outcomes for unknown run: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("unexpected outcomes: %v", other)
	}
}
