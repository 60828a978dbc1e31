package snapshots

import (
	"context"
	"testing"
)

func TestRecordAndHistory(t *testing.T) {
	svc, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := svc.Record(ctx, []byte(`{"rev":1}`), "first"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := svc.Record(ctx, []byte(`{"rev":2}`), "second"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	commits, err := svc.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("commits = %d, want 2", len(commits))
	}
	if commits[0].Message != "second" || commits[1].Message != "first" {
		t.Errorf("order = %q, %q, want newest first", commits[0].Message, commits[1].Message)
	}
	if commits[0].Hash == "" || commits[0].When.IsZero() {
		t.Errorf("commit metadata missing: %+v", commits[0])
	}
}

func TestRecordUnchangedPayloadSkipsCommit(t *testing.T) {
	svc, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := svc.Record(ctx, []byte(`{"rev":1}`), "first"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := svc.Record(ctx, []byte(`{"rev":1}`), "again"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	commits, err := svc.History(0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 1 {
		t.Errorf("commits = %d, want 1", len(commits))
	}
}

func TestHistoryOnEmptyRepo(t *testing.T) {
	svc, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	commits, err := svc.History(5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("commits = %v, want none", commits)
	}
}

func TestHistoryLimit(t *testing.T) {
	svc, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	payloads := []string{`{"rev":1}`, `{"rev":2}`, `{"rev":3}`}
	for i, p := range payloads {
		if err := svc.Record(ctx, []byte(p), payloads[i]); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	commits, err := svc.History(2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(commits) != 2 {
		t.Errorf("commits = %d, want 2", len(commits))
	}
}
