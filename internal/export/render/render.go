// Package render turns filled template markup into paginated PDF documents.
//
// Every Start builds its own rendering session, so a Renderer is safe for
// concurrent use and no export can observe another's state.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"certexport/internal/export/models"
	dErrors "certexport/pkg/domain-errors"
)

// DefaultTimeout bounds a render whose backend never finishes.
const DefaultTimeout = 10 * time.Second

// Output is what a backend produces for one markup document.
type Output struct {
	Data  []byte
	Pages int
}

// Backend rasterizes markup into a document. Implementations must not keep
// per-call state between calls and should return promptly once ctx is done.
type Backend interface {
	Render(ctx context.Context, markup []byte) (Output, error)
}

// Recorder receives render timings by outcome.
type Recorder interface {
	ObserveRender(outcome string, seconds float64)
}

// Outcome labels reported to a Recorder.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
)

// Renderer starts render jobs on a Backend.
type Renderer struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithBackend replaces the default SVGBackend.
func WithBackend(b Backend) Option {
	return func(r *Renderer) {
		r.backend = b
	}
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger for failures, timeouts and cancellations.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// WithMetrics records the duration and outcome of every job.
func WithMetrics(m Recorder) Option {
	return func(r *Renderer) {
		r.metrics = m
	}
}

// WithClock replaces time.Now for timings and RenderedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		r.now = now
	}
}

// New creates a Renderer with DefaultTimeout and an A4 SVGBackend.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.backend == nil {
		r.backend = NewSVGBackend()
	}
	return r
}

// Result is the single completion value of a Job.
type Result struct {
	Document *models.Document
	Err      error
}

// Job is one in-flight render. Done delivers exactly one Result and is then
// closed; a cancelled job's channel is closed without a value.
type Job struct {
	ID        uuid.UUID
	done      chan Result
	cancel    context.CancelFunc
	parent    context.Context
	abandoned *atomic.Bool
}

func newJob(ctx context.Context, id uuid.UUID, cancel context.CancelFunc) *Job {
	return &Job{
		ID:        id,
		done:      make(chan Result, 1),
		cancel:    cancel,
		parent:    ctx,
		abandoned: new(atomic.Bool),
	}
}

// Done returns the completion channel.
func (j *Job) Done() <-chan Result { return j.done }

// Cancel discards the pending result and releases the session. It is safe
// to call more than once and after completion.
func (j *Job) Cancel() {
	j.abandoned.Store(true)
	j.cancel()
}

func (j *Job) cancelled() bool {
	return j.abandoned.Load() || j.parent.Err() != nil
}

// Then returns a job that delivers fn applied to j's result. Both jobs share
// cancellation, and fn never runs for a cancelled job.
func (j *Job) Then(fn func(Result) Result) *Job {
	next := &Job{
		ID:        j.ID,
		done:      make(chan Result, 1),
		cancel:    j.cancel,
		parent:    j.parent,
		abandoned: j.abandoned,
	}
	go func() {
		defer close(next.done)
		res, ok := <-j.done
		if !ok || j.cancelled() {
			return
		}
		res = fn(res)
		if j.cancelled() {
			return
		}
		next.done <- res
	}()
	return next
}

// Completed returns a job that has already delivered doc.
func Completed(ctx context.Context, doc *models.Document) *Job {
	job := newJob(ctx, doc.ID, func() {})
	job.done <- Result{Document: doc}
	close(job.done)
	return job
}

// Wait blocks until the job completes or ctx is done. Abandoning a job by
// ctx cancels it.
func (j *Job) Wait(ctx context.Context) (*models.Document, error) {
	select {
	case res, ok := <-j.done:
		if !ok {
			return nil, context.Canceled
		}
		return res.Document, res.Err
	case <-ctx.Done():
		j.Cancel()
		return nil, ctx.Err()
	}
}

// Start renders filled asynchronously. Cancelling ctx has the same effect
// as Job.Cancel.
func (r *Renderer) Start(ctx context.Context, filled models.FilledTemplate) *Job {
	jobCtx, cancel := context.WithCancel(ctx)
	job := newJob(ctx, uuid.New(), cancel)
	go r.run(jobCtx, job, filled)
	return job
}

// Render is Start followed by Wait.
func (r *Renderer) Render(ctx context.Context, filled models.FilledTemplate) (*models.Document, error) {
	return r.Start(ctx, filled).Wait(ctx)
}

type backendOutcome struct {
	out Output
	err error
}

func (r *Renderer) run(ctx context.Context, job *Job, filled models.FilledTemplate) {
	defer job.cancel()
	defer close(job.done)

	start := r.now()
	results := make(chan backendOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				results <- backendOutcome{err: fmt.Errorf("backend panic: %v", p)}
			}
		}()
		out, err := r.backend.Render(ctx, filled.Markup)
		results <- backendOutcome{out: out, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	cancelled := func() {
		r.observe(start, OutcomeCancelled)
		r.logger.DebugContext(ctx, "render cancelled", "job_id", job.ID.String())
	}

	select {
	case <-ctx.Done():
		cancelled()
	case <-timer.C:
		if ctx.Err() != nil {
			cancelled()
			return
		}
		r.observe(start, OutcomeTimeout)
		r.logger.WarnContext(ctx, "render timed out",
			"job_id", job.ID.String(),
			"timeout", r.timeout.String(),
		)
		job.done <- Result{Err: dErrors.New(dErrors.CodeRenderTimeout,
			fmt.Sprintf("render did not finish within %s", r.timeout))}
	case res := <-results:
		// A backend that returns because the job was cancelled must not
		// deliver its error.
		if ctx.Err() != nil {
			cancelled()
			return
		}
		if res.err == nil && len(res.out.Data) == 0 {
			res.err = errors.New("backend produced no output")
		}
		if res.err != nil {
			r.observe(start, OutcomeFailure)
			r.logger.ErrorContext(ctx, "render failed",
				"job_id", job.ID.String(),
				"error", res.err,
			)
			job.done <- Result{Err: dErrors.Wrap(res.err, dErrors.CodeRender, "render failed")}
			return
		}
		r.observe(start, OutcomeSuccess)
		job.done <- Result{Document: &models.Document{
			ID:          job.ID,
			Type:        filled.Type,
			ContentType: models.ContentTypePDF,
			Data:        res.out.Data,
			Pages:       res.out.Pages,
			RenderedAt:  r.now(),
		}}
	}
}

func (r *Renderer) observe(start time.Time, outcome string) {
	if r.metrics != nil {
		r.metrics.ObserveRender(outcome, r.now().Sub(start).Seconds())
	}
}
