package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/pkg/logging"
)

// JobRecorder persists the pending record when a job is accepted.
type JobRecorder interface {
	PutPending(ctx context.Context, p Payload) error
}

// Publisher accepts inbound messages and enqueues them as jobs. The webhook
// handler returns as soon as Publish does; processing happens on the
// dispatcher side.
type Publisher struct {
	queue  Client
	jobs   JobRecorder
	logger *logging.Logger
	now    func() time.Time
}

// NewPublisher creates a job publisher.
func NewPublisher(queue Client, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("queue: queue client cannot be nil")
	}
	if jobs == nil {
		panic("queue: job recorder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
	}
}

// Publish assigns a job id, records the pending job, and enqueues it.
// Returns the job id for status polling.
func (p *Publisher) Publish(ctx context.Context, companyID uuid.UUID, subjectAddress, rawText string, metadata map[string]string) (uuid.UUID, error) {
	if companyID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("queue: company id required")
	}
	if subjectAddress == "" {
		return uuid.Nil, fmt.Errorf("queue: subject address required")
	}

	payload := Payload{
		JobID:          uuid.New(),
		CompanyID:      companyID,
		SubjectAddress: subjectAddress,
		RawText:        rawText,
		Metadata:       metadata,
		ReceivedAt:     p.now().UTC(),
		Attempt:        1,
	}

	if err := p.jobs.PutPending(ctx, payload); err != nil {
		return uuid.Nil, err
	}

	body, err := payload.Encode()
	if err != nil {
		return uuid.Nil, err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return uuid.Nil, err
	}

	p.logger.Info("inbound job enqueued",
		"job_id", payload.JobID, "company_id", companyID, "subject", subjectAddress)
	return payload.JobID, nil
}
