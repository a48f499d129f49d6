package inmemory

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/jobs"
)

// waitForStatus polls the store until the job reaches the wanted status or
// the deadline passes.
func waitForStatus(t *testing.T, store jobs.JobStore, jobID string, want jobs.JobStatus) *jobs.ReconcileBatchJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %q", jobID, want)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 2, store)
	defer queue.Close()

	var handled atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		handled.Add(1)
		return nil
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &jobs.ReconcileBatchJob{
		Provider: domain.ProviderStripe,
		Batch:    []*domain.NormalizedTransaction{{ExternalID: "stripe_1"}},
	}
	if err := queue.PublishReconcileBatch(context.Background(), job); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("publish did not assign a job id")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if handled.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", handled.Load())
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("completed job missing timestamps")
	}
	if done.Error != "" {
		t.Errorf("Error = %q, want empty", done.Error)
	}
}

func TestQueue_RetriesFailedJob(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, store)
	defer queue.Close()

	var attempts atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) == 1 {
			return fmt.Errorf("transient failure")
		}
		return nil
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatal(err)
	}

	job := &jobs.ReconcileBatchJob{Provider: domain.ProviderGlofox}
	if err := queue.PublishReconcileBatch(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	if done.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", done.RetryCount)
	}
}

func TestQueue_ExhaustsRetries(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, store)
	defer queue.Close()

	handler := func(ctx context.Context, job jobs.Job) error {
		return fmt.Errorf("permanent failure")
	}
	if err := queue.Start(context.Background(), handler); err != nil {
		t.Fatal(err)
	}

	job := &jobs.ReconcileBatchJob{Provider: domain.ProviderStarling, MaxRetries: 1}
	if err := queue.PublishReconcileBatch(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if done.Error == "" {
		t.Error("failed job should carry the handler error")
	}
}

func TestQueue_PublishAfterStop(t *testing.T) {
	queue := NewQueue(10, 1, NewStore())
	if err := queue.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := queue.PublishReconcileBatch(context.Background(), &jobs.ReconcileBatchJob{})
	if err == nil {
		t.Error("expected publish to a stopped queue to fail")
	}
}

func TestJobStore_Filters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	seed := []*jobs.ReconcileBatchJob{
		{JobID: "a", Provider: domain.ProviderStripe, Status: jobs.JobStatusCompleted},
		{JobID: "b", Provider: domain.ProviderStripe, Status: jobs.JobStatusFailed},
		{JobID: "c", Provider: domain.ProviderStarling, Status: jobs.JobStatusCompleted},
	}
	for _, job := range seed {
		if err := store.SaveJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	byProvider, err := store.ListJobs(ctx, jobs.JobFilter{Provider: domain.ProviderStripe})
	if err != nil {
		t.Fatal(err)
	}
	if len(byProvider) != 2 {
		t.Errorf("stripe jobs = %d, want 2", len(byProvider))
	}

	byStatus, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(byStatus) != 1 || byStatus[0].JobID != "b" {
		t.Errorf("failed jobs = %+v, want just b", byStatus)
	}

	limited, err := store.ListJobs(ctx, jobs.JobFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limited jobs = %d, want 1", len(limited))
	}
}
