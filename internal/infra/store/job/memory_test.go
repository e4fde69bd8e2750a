package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/you-humble/mybook/internal/domain"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	keys := []string{"raw-input/j1/a.txt", "raw-input/j1/b.png"}
	if err := s.Create(ctx, "j1", keys); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := s.Job(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.StatusPending {
		t.Errorf("new job status = %s, want PENDING", job.Status)
	}
	if job.Progress != 0 {
		t.Errorf("new job progress = %d, want 0", job.Progress)
	}
	if len(job.InputKeys) != 2 || job.InputKeys[0] != keys[0] || job.InputKeys[1] != keys[1] {
		t.Errorf("input keys = %v, want %v", job.InputKeys, keys)
	}
	if job.ResultKey != "" || job.Error != "" {
		t.Errorf("new job must have neither result nor error, got %q / %q", job.ResultKey, job.Error)
	}
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	s := NewMemoryJobStore()

	_, err := s.Job(context.Background(), "nope")
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("get unknown = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryStore_UpdateUnknown(t *testing.T) {
	s := NewMemoryJobStore()

	err := s.Update(context.Background(), "nope",
		domain.StatusPatch(domain.StatusProcessing, domain.ProgressProcessing))
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("update unknown = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryStore_PartialPatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	if err := s.Create(ctx, "j1", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Update(ctx, "j1", domain.StatusPatch(domain.StatusProcessing, domain.ProgressProcessing)); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Progress-only patch must leave status alone.
	progress := 50
	if err := s.Update(ctx, "j1", domain.JobPatch{Progress: &progress}); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	job, err := s.Job(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.StatusProcessing {
		t.Errorf("status = %s, want PROCESSING", job.Status)
	}
	if job.Progress != 50 {
		t.Errorf("progress = %d, want 50", job.Progress)
	}
}

func TestMemoryStore_TerminalRejectsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	if err := s.Create(ctx, "j1", nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	result := "generated-books/book-j1.txt"
	completed := domain.StatusPatch(domain.StatusCompleted, domain.ProgressDone)
	completed.ResultKey = &result
	if err := s.Update(ctx, "j1", completed); err != nil {
		t.Fatalf("complete: %v", err)
	}

	errMsg := "late failure"
	failed := domain.StatusPatch(domain.StatusFailed, domain.ProgressCreated)
	failed.Error = &errMsg
	if err := s.Update(ctx, "j1", failed); !errors.Is(err, domain.ErrJobTerminal) {
		t.Fatalf("update after terminal = %v, want ErrJobTerminal", err)
	}

	job, err := s.Job(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.StatusCompleted {
		t.Errorf("terminal status corrupted: %s", job.Status)
	}
	if job.ResultKey != result {
		t.Errorf("result = %q, want %q", job.ResultKey, result)
	}
	if job.Error != "" {
		t.Errorf("completed job carries error %q", job.Error)
	}
}

func TestMemoryStore_StaleAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	if err := s.Create(ctx, "stuck", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, "done", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Update(ctx, "done", domain.StatusPatch(domain.StatusCompleted, domain.ProgressDone)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	future := time.Now().Add(time.Hour)

	stale := s.StaleJobIDs(ctx, future, 30*time.Minute)
	if len(stale) != 1 || stale[0] != "stuck" {
		t.Errorf("stale = %v, want [stuck]", stale)
	}

	if n := s.DeleteOlderThan(ctx, future, 30*time.Minute); n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if _, err := s.Job(ctx, "stuck"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("job survived deletion: %v", err)
	}
}
