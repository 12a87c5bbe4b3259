package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/observability"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

// Outcome classifies a single attempt.
type Outcome int

const (
	Success Outcome = iota
	RetryableFailure
	TerminalFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable_failure"
	default:
		return "terminal_failure"
	}
}

// Result is what a handler reports for one attempt. The correlation ids and
// response details end up in the delivery log.
type Result struct {
	Outcome      Outcome
	Kind         domain.DeliveryKind
	StatusCode   int
	ResponseBody string
	Err          error

	ChannelID *int64
	TicketID  *int64
	MessageID *int64
	WebhookID *int64
}

// Succeeded builds a successful Result.
func Succeeded(kind domain.DeliveryKind) Result {
	return Result{Outcome: Success, Kind: kind}
}

// Retry builds a retryable Result.
func Retry(kind domain.DeliveryKind, err error) Result {
	return Result{Outcome: RetryableFailure, Kind: kind, Err: err}
}

// Terminal builds a Result that will not be retried.
func Terminal(kind domain.DeliveryKind, err error) Result {
	return Result{Outcome: TerminalFailure, Kind: kind, Err: err}
}

// Handler processes one job attempt.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job) Result
}

// Failer is implemented by handlers that react once a job is given up on.
type Failer interface {
	Fail(ctx context.Context, job *queue.Job, res Result)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *queue.Job) Result

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *queue.Job) Result { return f(ctx, job) }

var defaultKinds = map[queue.JobKind]domain.DeliveryKind{
	queue.JobSendMessage:      domain.DeliveryKindReply,
	queue.JobWebhook:          domain.DeliveryKindWebhook,
	queue.JobInboundEmail:     domain.DeliveryKindInboundWebhook,
	queue.JobInboundMessaging: domain.DeliveryKindInboundWebhook,
}

// Runner consumes due jobs and applies the retry policy.
type Runner struct {
	queue    queue.Queue
	store    repository.Store
	logger   *zap.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
	poll     time.Duration
	workers  int
	now      func() time.Time
	mu       sync.RWMutex
	handlers map[queue.JobKind]Handler
}

// RunnerDependencies bundles the runner collaborators.
type RunnerDependencies struct {
	Queue   queue.Queue
	Store   repository.Store
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// AttemptTimeout bounds one handler call; defaults to 10 seconds.
	AttemptTimeout time.Duration
	PollInterval   time.Duration
	Workers        int
	Now            func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(deps RunnerDependencies) *Runner {
	r := &Runner{
		queue:    deps.Queue,
		store:    deps.Store,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		timeout:  deps.AttemptTimeout,
		poll:     deps.PollInterval,
		workers:  deps.Workers,
		now:      deps.Now,
		handlers: make(map[queue.JobKind]Handler),
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Second
	}
	if r.poll <= 0 {
		r.poll = 500 * time.Millisecond
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// Register binds a handler to a job kind.
func (r *Runner) Register(kind queue.JobKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Run starts the workers and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.loop(ctx, worker)
		}(i)
	}
	wg.Wait()
	return nil
}

func (r *Runner) loop(ctx context.Context, worker int) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		processed, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("dequeue failed", zap.Int("worker", worker), zap.Error(err))
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes at most one due job and reports whether it found one.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.queue.Dequeue(ctx, r.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	r.Process(ctx, job)
	return true, nil
}

// Process runs one attempt of job, records it and reschedules or fails it.
func (r *Runner) Process(ctx context.Context, job *queue.Job) Result {
	attempt := job.Attempt + 1
	r.mu.RLock()
	h, ok := r.handlers[job.Kind]
	r.mu.RUnlock()

	started := r.now()
	var res Result
	if !ok {
		res = Terminal(defaultKinds[job.Kind], domain.NewConfigError("no handler for job kind %q", job.Kind))
	} else {
		res = r.invoke(ctx, h, job)
	}
	duration := r.now().Sub(started)
	if res.Kind == "" {
		res.Kind = defaultKinds[job.Kind]
	}

	policy := PolicyFor(res.Kind)
	if res.Outcome == RetryableFailure && policy.Exhausted(attempt) {
		res.Outcome = TerminalFailure
	}

	r.record(ctx, job, attempt, started, duration, res)
	r.metrics.RecordDelivery(string(res.Kind), res.Outcome.String(), duration)

	logFields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("job_kind", string(job.Kind)),
		zap.Int64("tenant_id", job.TenantID),
		zap.Int("attempt", attempt),
		zap.String("outcome", res.Outcome.String()),
	}
	switch res.Outcome {
	case Success:
		r.logger.Debug("job delivered", logFields...)
	case RetryableFailure:
		delay := policy.Delay(attempt)
		next := *job
		next.Attempt = attempt
		next.LastError = errText(res.Err)
		if err := r.queue.Enqueue(ctx, next, r.now().Add(delay)); err != nil {
			r.logger.Error("reschedule failed", append(logFields, zap.Error(err))...)
		} else {
			r.logger.Warn("job attempt failed, retrying", append(logFields, zap.Duration("retry_in", delay), zap.Error(res.Err))...)
		}
	case TerminalFailure:
		r.logger.Error("job failed", append(logFields, zap.Error(res.Err))...)
		if f, ok := h.(Failer); ok {
			f.Fail(ctx, job, res)
		}
	}
	return res
}

func (r *Runner) invoke(ctx context.Context, h Handler, job *queue.Job) (res Result) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			res = Retry(defaultKinds[job.Kind], fmt.Errorf("handler panic: %v", p))
		}
	}()
	res = h.Handle(attemptCtx, job)
	if res.Outcome != Success && res.Err == nil {
		res.Err = errors.New("delivery failed")
	}
	return res
}

func (r *Runner) record(ctx context.Context, job *queue.Job, attempt int, started time.Time, duration time.Duration, res Result) {
	if r.store == nil {
		return
	}
	entry := &domain.DeliveryLog{
		TenantID:     job.TenantID,
		Kind:         res.Kind,
		Status:       domain.AttemptSuccess,
		Attempt:      attempt,
		ChannelID:    res.ChannelID,
		TicketID:     res.TicketID,
		MessageID:    res.MessageID,
		WebhookID:    res.WebhookID,
		StatusCode:   res.StatusCode,
		ResponseBody: res.ResponseBody,
		Duration:     duration,
		StartedAt:    started,
	}
	if res.Outcome != Success {
		entry.Status = domain.AttemptFailure
		entry.Error = errText(res.Err)
	}
	if err := r.store.Repos().DeliveryLogs.Create(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn("write delivery log failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
