package processor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/you-humble/mybook/internal/domain"

	"github.com/nats-io/nats.go"
)

const consumerName = "book-processor"

// Consumer pulls work items off the JetStream stream and feeds them to the
// Processor with a pool of workers. Unacknowledged items come back after the
// ack wait, which is where the at-least-once semantics live.
type Consumer struct {
	js        nats.JetStreamContext
	stream    string
	subject   string
	size      int
	processor *Processor

	jobTTL          time.Duration
	cleanupInterval time.Duration

	done chan struct{}
	sub  *nats.Subscription
}

func NewConsumer(
	js nats.JetStreamContext,
	stream, subject string,
	size int,
	processor *Processor,
	jobTTL, cleanupInterval time.Duration,
) *Consumer {
	if size <= 0 {
		size = 1
	}

	return &Consumer{
		js:              js,
		stream:          stream,
		subject:         subject,
		size:            size,
		processor:       processor,
		jobTTL:          jobTTL,
		cleanupInterval: cleanupInterval,
		done:            make(chan struct{}, size),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	_, err := c.js.AddConsumer(c.stream, &nats.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: c.subject,
		MaxAckPending: c.size * 2,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return err
	}

	sub, err := c.js.PullSubscribe(c.subject, consumerName)
	if err != nil {
		return err
	}
	c.sub = sub

	for i := 0; i < c.size; i++ {
		go func() {
			defer func() { c.done <- struct{}{} }()
			c.runWorker(ctx)
		}()
	}

	slog.Info("processor consumer is running",
		slog.Int("workers", c.size),
		slog.String("subject", c.subject),
	)
	return nil
}

func (c *Consumer) Stop(ctx context.Context) {
	<-ctx.Done()

	for i := 0; i < c.size; i++ {
		<-c.done
	}

	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			slog.Warn("NATS subscription drain", slog.String("error", err.Error()))
		}
	}

	slog.Info("processor consumer stopped")
}

func (c *Consumer) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping")
			return
		default:
		}

		msgs, err := c.sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			slog.Warn("NATS Fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *nats.Msg) {
	var item domain.WorkItem
	if err := json.Unmarshal(msg.Data, &item); err != nil {
		slog.Error("malformed work item, dropping", slog.String("error", err.Error()))
		if err := msg.Ack(); err != nil {
			slog.Warn("NATS Ack", slog.String("error", err.Error()))
		}
		return
	}

	if err := c.processor.Process(ctx, item); err != nil {
		slog.Error("process",
			slog.String("job_id", item.JobID),
			slog.String("error", err.Error()),
		)
		if err := msg.Nak(); err != nil {
			slog.Warn("NATS Nak", slog.String("error", err.Error()))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		slog.Warn("NATS Ack", slog.String("error", err.Error()))
	}
}

// StartCleanup runs the out-of-band reconciliation sweep: jobs stuck in a
// non-terminal state past the job TTL are failed (covers the case where the
// final FAILED write itself was lost), their leftover inputs removed, and
// records plus objects past twice the TTL are dropped for good.
func (c *Consumer) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(c.cleanupInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				c.sweep(ctx, now)
			}
		}
	}()
}

func (c *Consumer) sweep(ctx context.Context, now time.Time) {
	p := c.processor

	stale := p.jobStore.StaleJobIDs(ctx, now, c.jobTTL)
	if len(stale) > 0 {
		slog.Info("cleanup", slog.Int("stale_jobs", len(stale)))
	}

	for _, id := range stale {
		job, err := p.jobStore.Job(ctx, id)
		if err != nil || job.Status.IsTerminal() {
			continue
		}

		p.fail(ctx, id, errors.New("job expired before completion"))

		for _, key := range job.InputKeys {
			if err := p.inputStore.Delete(ctx, key); err != nil {
				slog.Warn("cleanup input file", slog.String("error", err.Error()))
			}
		}
	}

	if n := p.jobStore.DeleteOlderThan(ctx, now, 2*c.jobTTL); n > 0 {
		slog.Info("cleanup job records", slog.Int("deleted_jobs", n))
	}

	if err := p.inputStore.CleanupOlderThan(ctx, 2*c.jobTTL); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("cleanup old inputs", slog.String("error", err.Error()))
	}
	if err := p.outputStore.CleanupOlderThan(ctx, 2*c.jobTTL); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("cleanup old outputs", slog.String("error", err.Error()))
	}
}
