package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/you-humble/mybook/internal/domain"

	"github.com/nats-io/nats.go"
)

type queue struct {
	js      nats.JetStreamContext
	subject string
}

func New(js nats.JetStreamContext, subject string) *queue {
	return &queue{
		js:      js,
		subject: subject,
	}
}

// Enqueue publishes the work item to the stream. JetStream keeps the message
// until a consumer acknowledges it, which gives the at-least-once delivery
// the processor is written against.
func (q *queue) Enqueue(ctx context.Context, item domain.WorkItem) error {
	if item.JobID == "" {
		return fmt.Errorf("empty jobID")
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}

	msg := &nats.Msg{
		Subject: q.subject,
		Data:    data,
		Header:  nats.Header{},
	}

	ack, err := q.js.PublishMsg(msg)
	if err != nil {
		return fmt.Errorf("enqueue job %s: publish failed: %w", item.JobID, err)
	}

	slog.Debug(
		"work item enqueued",
		slog.String("job_id", item.JobID),
		slog.String("subject", q.subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return nil
}
