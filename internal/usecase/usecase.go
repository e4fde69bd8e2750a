package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/you-humble/mybook/internal/domain"
	filestore "github.com/you-humble/mybook/internal/infra/store/file"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type JobStore interface {
	Create(ctx context.Context, id string, inputKeys []string) error
	Job(ctx context.Context, id string) (domain.Job, error)
	Update(ctx context.Context, id string, patch domain.JobPatch) error
}

type FileStore interface {
	Save(ctx context.Context, reader io.Reader, key string, size int64, contentType string) (int64, error)
	Open(ctx context.Context, key string) (filestore.Object, error)
	Delete(ctx context.Context, key string) error
}

type WorkQueue interface {
	Enqueue(ctx context.Context, item domain.WorkItem) error
}

type usecase struct {
	jobStore    JobStore
	inputStore  FileStore
	outputStore FileStore
	queue       WorkQueue
}

func New(jobStore JobStore, inputStore, outputStore FileStore, queue WorkQueue) *usecase {
	return &usecase{
		jobStore:    jobStore,
		inputStore:  inputStore,
		outputStore: outputStore,
		queue:       queue,
	}
}

// Submit validates the request, creates the job record, persists every input
// and enqueues the work item. Side effects are strictly ordered: the record
// exists before any status write, and every file is durable before the item
// is published. Returns the new job id without waiting for processing.
func (uc *usecase) Submit(ctx context.Context, files []domain.Upload, timeline domain.Timeline, prompt string) (string, error) {
	if err := validate(files, timeline, prompt); err != nil {
		return "", err
	}

	jobID := uuid.NewString()

	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = inputKey(jobID, f.Name)
	}

	if err := uc.jobStore.Create(ctx, jobID, keys); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	if err := uc.jobStore.Update(ctx, jobID,
		domain.StatusPatch(domain.StatusUploadingFiles, domain.ProgressUploading),
	); err != nil {
		return "", fmt.Errorf("mark uploading: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if _, err := uc.inputStore.Save(gctx, f.Content, keys[i], f.Size, f.ContentType); err != nil {
				return fmt.Errorf("save input %q: %w", f.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		uc.abandon(ctx, jobID, keys, err)
		return "", err
	}

	item := domain.WorkItem{
		JobID:    jobID,
		FileKeys: keys,
		Timeline: timeline,
		Prompt:   prompt,
	}
	if err := uc.queue.Enqueue(ctx, item); err != nil {
		uc.abandon(ctx, jobID, keys, err)
		return "", fmt.Errorf("enqueue: %w", err)
	}

	if err := uc.jobStore.Update(ctx, jobID,
		domain.StatusPatch(domain.StatusQueued, domain.ProgressQueued),
	); err != nil {
		// The item is already published; the processor advances the job from
		// here even if this write was lost.
		return "", fmt.Errorf("mark queued: %w", err)
	}

	return jobID, nil
}

func (uc *usecase) GetStatus(ctx context.Context, jobID string) (domain.StatusResponse, error) {
	job, err := uc.jobStore.Job(ctx, jobID)
	if err != nil {
		return domain.StatusResponse{}, err
	}

	return domain.StatusResponse{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Result:   job.ResultKey,
		Error:    job.Error,
	}, nil
}

// Download opens the generated output. Only COMPLETED jobs with a recorded
// result key are downloadable; a recorded key with no object behind it
// surfaces as ErrNotFound from the store.
func (uc *usecase) Download(ctx context.Context, jobID string) (filestore.Object, error) {
	job, err := uc.jobStore.Job(ctx, jobID)
	if err != nil {
		return filestore.Object{}, err
	}

	if job.Status != domain.StatusCompleted || job.ResultKey == "" {
		return filestore.Object{}, domain.ErrJobNotReady
	}

	obj, err := uc.outputStore.Open(ctx, job.ResultKey)
	if err != nil {
		return filestore.Object{}, fmt.Errorf("open result: %w", err)
	}

	return obj, nil
}

func validate(files []domain.Upload, timeline domain.Timeline, prompt string) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: at least one file is required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(timeline.Start) == "" || strings.TrimSpace(timeline.End) == "" {
		return fmt.Errorf("%w: timeline start and end are required", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt must not be empty", domain.ErrInvalidRequest)
	}
	return nil
}

// abandon marks the job FAILED and drops whatever inputs made it to storage.
// Both are best effort: the submission error is what the caller sees.
func (uc *usecase) abandon(ctx context.Context, jobID string, keys []string, cause error) {
	errMsg := cause.Error()
	failed := domain.StatusPatch(domain.StatusFailed, domain.ProgressCreated)
	failed.Error = &errMsg

	if err := uc.jobStore.Update(ctx, jobID, failed); err != nil && !errors.Is(err, domain.ErrJobTerminal) {
		slog.Warn("mark job failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	for _, key := range keys {
		if err := uc.inputStore.Delete(ctx, key); err != nil {
			slog.Warn("delete abandoned input",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func inputKey(jobID, filename string) string {
	name := path.Base(filename)
	if name == "." || name == "/" || name == "" {
		name = "unnamed"
	}
	return "raw-input/" + jobID + "/" + name
}
