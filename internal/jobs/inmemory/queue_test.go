package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guiplbarros-ai/cortex-ingest/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ImportStatementJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached status %s, last seen: %+v", jobID, want, job)
	return nil
}

func TestQueueProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	var handled int32
	handler := func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ImportStatementJob{AccountID: "acc-1", Source: "gs://statements/out.csv"}
	if err := q.PublishImport(context.Background(), job); err != nil {
		t.Fatalf("PublishImport() error = %v", err)
	}
	if job.JobID == "" {
		t.Fatal("publish should assign a job id")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("completed job should carry start and completion timestamps")
	}
	if got := atomic.LoadInt32(&handled); got != 1 {
		t.Errorf("handler ran %d times, want 1", got)
	}
}

func TestQueueRetriesFailedJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var attempts int32
	handler := func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.ImportStatementJob{AccountID: "acc-1", Source: "gs://statements/out.csv", MaxRetries: 1}
	if err := q.PublishImport(context.Background(), job); err != nil {
		t.Fatalf("PublishImport() error = %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.Error == "" {
		t.Error("failed job should record the handler error")
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("handler ran %d times, want 2 (initial + one retry)", got)
	}
}

func TestQueueRejectsPublishAfterClose(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	err := q.PublishImport(context.Background(), &jobs.ImportStatementJob{AccountID: "acc-1"})
	if err == nil {
		t.Fatal("expected error publishing to a closed queue")
	}
}

func TestStoreFiltersJobs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	seed := []*jobs.ImportStatementJob{
		{JobID: "j1", AccountID: "acc-1", Status: jobs.JobStatusCompleted},
		{JobID: "j2", AccountID: "acc-1", Status: jobs.JobStatusPending},
		{JobID: "j3", AccountID: "acc-2", Status: jobs.JobStatusPending},
	}
	for _, job := range seed {
		if err := store.SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob(%s) error = %v", job.JobID, err)
		}
	}

	byAccount, err := store.ListJobs(ctx, jobs.JobFilter{AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(byAccount) != 2 {
		t.Errorf("account filter returned %d jobs, want 2", len(byAccount))
	}

	pending, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusPending})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("status filter returned %d jobs, want 2", len(pending))
	}

	if err := store.UpdateJobStatus(ctx, "j2", jobs.JobStatusRunning, ""); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}
	job, err := store.GetJob(ctx, "j2")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Status != jobs.JobStatusRunning {
		t.Errorf("status = %s, want running", job.Status)
	}

	if _, err := store.GetJob(ctx, "missing"); err == nil {
		t.Error("expected error for unknown job id")
	}
}
