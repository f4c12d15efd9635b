package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agendia-app/agendia-platform/internal/store"
)

// Job statuses persisted alongside the queue for status queries and
// dead-letter inspection.
const (
	JobStatusPending   = "pending"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// ErrJobNotFound indicates the job id has no persisted record.
var ErrJobNotFound = errors.New("queue: job not found")

// JobRecord mirrors a row of the jobs table.
type JobRecord struct {
	JobID        uuid.UUID `json:"job_id"`
	CompanyID    uuid.UUID `json:"company_id"`
	Status       string    `json:"status"`
	Payload      Payload   `json:"payload"`
	Attempts     int       `json:"attempts"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QueueHealth aggregates job counts by status.
type QueueHealth struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// JobStore persists job lifecycle state to PostgreSQL. The queue remains the
// source of work; this table exists for status lookups and dead letters.
type JobStore struct {
	db store.DB
}

// NewJobStore builds a Postgres-backed job store.
func NewJobStore(db store.DB) *JobStore {
	if db == nil {
		panic("queue: db cannot be nil")
	}
	return &JobStore{db: db}
}

// PutPending inserts a pending job record. Re-inserting the same job id is a
// no-op, so publish retries stay idempotent.
func (s *JobStore) PutPending(ctx context.Context, p Payload) error {
	payloadJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("queue: failed to encode job payload: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO jobs (job_id, company_id, status, payload, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (job_id) DO NOTHING
	`, p.JobID, p.CompanyID, JobStatusPending, payloadJSON, now)
	if err != nil {
		return fmt.Errorf("queue: failed to persist job: %w", err)
	}
	return nil
}

// MarkCompleted finalizes a successful job.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID uuid.UUID, attempts int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, attempts = $3, error_message = '', updated_at = $4
		WHERE job_id = $1
	`, jobID, JobStatusCompleted, attempts, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("queue: failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed records the terminal failure of a job after retries ran out.
// The row is retained as the dead letter.
func (s *JobStore) MarkFailed(ctx context.Context, jobID uuid.UUID, attempts int, errMsg string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, attempts = $3, error_message = $4, updated_at = $5
		WHERE job_id = $1
	`, jobID, JobStatusFailed, attempts, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("queue: failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// CancelPending marks a not-yet-started job as cancelled. SQS offers no
// removal of an enqueued message, so the dispatcher consults this status and
// drops the message before handling. Returns false when the job was already
// picked up (or never existed).
func (s *JobStore) CancelPending(ctx context.Context, jobID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = $2, updated_at = $3
		WHERE job_id = $1 AND status = $4
	`, jobID, JobStatusCancelled, time.Now().UTC(), JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("queue: failed to cancel job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IsCancelled reports whether the job was cancelled before handling. Unknown
// jobs read as not cancelled so the queue stays authoritative for work.
func (s *JobStore) IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM jobs WHERE job_id = $1`, jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("queue: failed to load job status: %w", err)
	}
	return status == JobStatusCancelled, nil
}

// Get loads a job record by id.
func (s *JobStore) Get(ctx context.Context, jobID uuid.UUID) (*JobRecord, error) {
	var (
		rec         JobRecord
		payloadJSON []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT job_id, company_id, status, payload, attempts, COALESCE(error_message, ''), created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`, jobID).Scan(&rec.JobID, &rec.CompanyID, &rec.Status, &payloadJSON, &rec.Attempts, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("queue: failed to load job: %w", err)
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
			return nil, fmt.Errorf("queue: failed to decode job payload: %w", err)
		}
	}
	return &rec, nil
}

// Health counts jobs by status.
func (s *JobStore) Health(ctx context.Context) (QueueHealth, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, COUNT(*) FROM jobs GROUP BY status
	`)
	if err != nil {
		return QueueHealth{}, fmt.Errorf("queue: failed to count jobs: %w", err)
	}
	defer rows.Close()

	var health QueueHealth
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return QueueHealth{}, fmt.Errorf("queue: failed to scan job count: %w", err)
		}
		switch status {
		case JobStatusPending:
			health.Pending = count
		case JobStatusCompleted:
			health.Completed = count
		case JobStatusFailed:
			health.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return QueueHealth{}, fmt.Errorf("queue: failed to read job counts: %w", err)
	}
	return health, nil
}
