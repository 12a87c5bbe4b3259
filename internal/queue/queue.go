// Package queue holds delayed delivery jobs and per-key locks.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobKind selects the handler that processes a job.
type JobKind string

const (
	JobSendMessage      JobKind = "send_message"
	JobWebhook          JobKind = "webhook"
	JobInboundEmail     JobKind = "inbound_email"
	JobInboundMessaging JobKind = "inbound_messaging"
)

// Job is one unit of deferred work.
type Job struct {
	ID       string          `json:"id"`
	Kind     JobKind         `json:"kind"`
	TenantID int64           `json:"tenant_id"`
	Attempt  int             `json:"attempt"`
	Payload  json.RawMessage `json:"payload"`
	// LastError is the failure of the previous attempt, if any.
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob builds a job with a fresh id and a JSON payload.
func NewJob(kind JobKind, tenantID int64, payload any) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode job payload: %w", err)
	}
	return Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		TenantID:   tenantID,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Kind, err)
	}
	return nil
}

// Queue stores jobs until they become due.
type Queue interface {
	Enqueue(ctx context.Context, job Job, runAt time.Time) error
	// Dequeue removes and returns one job due at now, or nil when none is due.
	Dequeue(ctx context.Context, now time.Time) (*Job, error)
	Len(ctx context.Context) (int, error)
}

type scheduled struct {
	job   Job
	runAt time.Time
}

// MemoryQueue is an in-process Queue.
type MemoryQueue struct {
	mu    sync.Mutex
	items []scheduled
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue schedules job at runAt.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job, runAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, scheduled{job: job, runAt: runAt})
	slices.SortStableFunc(q.items, func(a, b scheduled) int { return a.runAt.Compare(b.runAt) })
	return nil
}

// Dequeue pops the earliest due job.
func (q *MemoryQueue) Dequeue(_ context.Context, now time.Time) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || q.items[0].runAt.After(now) {
		return nil, nil
	}
	job := q.items[0].job
	q.items = q.items[1:]
	return &job, nil
}

// Len returns the number of queued jobs.
func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// Pending returns a snapshot of queued jobs with their due times.
func (q *MemoryQueue) Pending() ([]Job, []time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]Job, len(q.items))
	due := make([]time.Time, len(q.items))
	for i, it := range q.items {
		jobs[i] = it.job
		due[i] = it.runAt
	}
	return jobs, due
}
