package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/you-humble/mybook/internal/domain"
	filestore "github.com/you-humble/mybook/internal/infra/store/file"
)

type JobStore interface {
	Job(ctx context.Context, id string) (domain.Job, error)
	Update(ctx context.Context, id string, patch domain.JobPatch) error
	StaleJobIDs(ctx context.Context, now time.Time, ttl time.Duration) []string
	DeleteOlderThan(ctx context.Context, now time.Time, age time.Duration) int
}

type FileStore interface {
	Save(ctx context.Context, reader io.Reader, key string, size int64, contentType string) (int64, error)
	Open(ctx context.Context, key string) (filestore.Object, error)
	Delete(ctx context.Context, key string) error
	CleanupOlderThan(ctx context.Context, maxAge time.Duration) error
}

type Extractor interface {
	ExtractText(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Processor drives one work item through the job state machine. Process is
// safe under at-least-once redelivery: a replayed item for a terminal job is
// acknowledged without touching stored state.
type Processor struct {
	jobStore          JobStore
	inputStore        FileStore
	outputStore       FileStore
	extractor         Extractor
	generator         Generator
	generationTimeout time.Duration
}

func New(
	jobStore JobStore,
	inputStore, outputStore FileStore,
	extractor Extractor,
	generator Generator,
	generationTimeout time.Duration,
) *Processor {
	if generationTimeout <= 0 {
		generationTimeout = 2 * time.Minute
	}

	return &Processor{
		jobStore:          jobStore,
		inputStore:        inputStore,
		outputStore:       outputStore,
		extractor:         extractor,
		generator:         generator,
		generationTimeout: generationTimeout,
	}
}

// Process handles one delivery. A nil return means the item is done and must
// be acknowledged, including the cases where the job failed fatally or was
// already terminal. A non-nil return means the failure looks transient and
// the item should be redelivered.
func (p *Processor) Process(ctx context.Context, item domain.WorkItem) error {
	logger := slog.With(slog.String("job_id", item.JobID))

	job, err := p.jobStore.Job(ctx, item.JobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		logger.Error("work item for unknown job, dropping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	if job.Status.IsTerminal() {
		logger.Info("job already terminal, skipping redelivery",
			slog.String("status", string(job.Status)),
		)
		return nil
	}

	err = p.jobStore.Update(ctx, item.JobID,
		domain.StatusPatch(domain.StatusProcessing, domain.ProgressProcessing),
	)
	if errors.Is(err, domain.ErrJobTerminal) {
		logger.Info("job turned terminal concurrently, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	logger.Info("processing started", slog.Int("files", len(item.FileKeys)))

	content := p.extractAll(ctx, logger, item.FileKeys)

	genCtx, cancel := context.WithTimeout(ctx, p.generationTimeout)
	defer cancel()

	book, err := p.generator.Generate(genCtx, buildPrompt(item.Timeline, content, item.Prompt))
	if err != nil {
		p.fail(ctx, item.JobID, fmt.Errorf("generation failed: %w", err))
		return nil
	}

	outputKey := outputKey(item.JobID)
	if _, err := p.outputStore.Save(ctx, strings.NewReader(book), outputKey, int64(len(book)), "text/plain"); err != nil {
		p.fail(ctx, item.JobID, fmt.Errorf("store output: %w", err))
		return nil
	}

	completed := domain.StatusPatch(domain.StatusCompleted, domain.ProgressDone)
	completed.ResultKey = &outputKey

	err = p.jobStore.Update(ctx, item.JobID, completed)
	if errors.Is(err, domain.ErrJobTerminal) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	logger.Info("job completed", slog.String("output_key", outputKey))
	return nil
}

// extractAll reads every referenced input in order, extracts text per content
// type and concatenates the pieces labeled by source. A missing input is
// skipped; a failing extractor yields a placeholder marker. Each input is
// deleted the moment it has been read, whatever the extraction outcome.
func (p *Processor) extractAll(ctx context.Context, logger *slog.Logger, fileKeys []string) string {
	var sb strings.Builder

	for _, key := range fileKeys {
		obj, err := p.inputStore.Open(ctx, key)
		if err != nil {
			if errors.Is(err, filestore.ErrNotFound) {
				logger.Warn("input object missing, skipping", slog.String("key", key))
			} else {
				logger.Warn("open input failed, skipping",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		data, readErr := io.ReadAll(obj.Content)
		obj.Content.Close()

		p.deleteInput(ctx, logger, key)

		var text string
		if readErr != nil {
			logger.Warn("read input failed",
				slog.String("key", key),
				slog.String("error", readErr.Error()),
			)
			text = placeholder(key)
		} else {
			text, err = p.extractor.ExtractText(ctx, key, obj.ContentType, data)
			if err != nil {
				logger.Warn("extraction failed, substituting placeholder",
					slog.String("key", key),
					slog.String("content_type", obj.ContentType),
					slog.String("error", err.Error()),
				)
				text = placeholder(key)
			}
		}

		sb.WriteString("\n\n--- Content from ")
		sb.WriteString(key)
		sb.WriteString(" ---\n")
		sb.WriteString(text)
	}

	return sb.String()
}

func (p *Processor) deleteInput(ctx context.Context, logger *slog.Logger, key string) {
	if err := p.inputStore.Delete(ctx, key); err != nil {
		logger.Warn("delete input failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("input deleted", slog.String("key", key))
}

// fail records the terminal FAILED state. Best effort: when even this write
// is lost the job stays in its last durable state until the cleanup sweep
// picks it up.
func (p *Processor) fail(ctx context.Context, jobID string, cause error) {
	slog.Error("job failed",
		slog.String("job_id", jobID),
		slog.String("error", cause.Error()),
	)

	errMsg := cause.Error()
	failed := domain.StatusPatch(domain.StatusFailed, domain.ProgressCreated)
	failed.Error = &errMsg

	if err := p.jobStore.Update(ctx, jobID, failed); err != nil && !errors.Is(err, domain.ErrJobTerminal) {
		slog.Error("recording FAILED state failed, job left to cleanup sweep",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func buildPrompt(timeline domain.Timeline, content, userPrompt string) string {
	return fmt.Sprintf(
		"Based on the following timeline and content, generate a compelling book chapter or story. "+
			"Focus on incorporating details from the content and adhering to the timeline.\n\n"+
			"Timeline: %s to %s\n\nContent: %s\n\nUser Prompt: %s\n\nGenerated Book:",
		timeline.Start, timeline.End, content, userPrompt,
	)
}

func placeholder(key string) string {
	return fmt.Sprintf("[Content from %s could not be extracted]", key)
}

func outputKey(jobID string) string {
	return "generated-books/book-" + jobID + ".txt"
}
