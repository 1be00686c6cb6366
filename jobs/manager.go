// Package jobs provides background job execution with cooperative
// cancellation and stale-result protection for asynchronous callbacks.
package jobs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"

	"github.com/phagelab/go-playback/logger"
)

// CancelToken is a thread-safe cooperative cancellation flag. Workers
// must poll IsCancelled; nothing is interrupted for them.
type CancelToken struct {
	cancelled atomic.Bool
}

// Cancel marks the token. Idempotent.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called.
func (t *CancelToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Func is a job body. It receives a progress reporter (value clamped to
// 0..100) and the job's cancel token, and should return early when the
// token fires.
type Func func(ctx context.Context, progress func(value int, message string), token *CancelToken) (any, error)

// Handle identifies a submitted job.
type Handle struct {
	// Name is the display name used in logs.
	Name string
	// ID is the unique job identifier, suitable for StaleResultGuard.
	ID string
	// Token is the job's cooperative cancellation token.
	Token *CancelToken
}

type submitConfig struct {
	onResult   func(any)
	onError    func(error)
	onProgress func(int, string)
	token      *CancelToken
}

// SubmitOption configures a single Submit call.
type SubmitOption func(*submitConfig)

// OnResult registers a callback invoked with the job's result when it
// completes without error or cancellation. Callbacks run on the worker
// goroutine; pair them with a StaleResultGuard when results can be
// superseded.
func OnResult(fn func(any)) SubmitOption {
	return func(c *submitConfig) { c.onResult = fn }
}

// OnError registers a callback invoked when the job returns an error or
// panics.
func OnError(fn func(error)) SubmitOption {
	return func(c *submitConfig) { c.onError = fn }
}

// OnProgress registers a callback for progress updates reported by the
// job body.
func OnProgress(fn func(value int, message string)) SubmitOption {
	return func(c *submitConfig) { c.onProgress = fn }
}

// WithToken supplies an externally owned cancel token, letting several
// jobs share one cancellation scope.
func WithToken(token *CancelToken) SubmitOption {
	return func(c *submitConfig) { c.token = token }
}

// Manager runs submitted jobs on background goroutines with bounded
// concurrency.
type Manager struct {
	logger logger.Logger
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu     sync.Mutex
	tokens map[string]*CancelToken
}

// NewManager returns a Manager that runs at most maxConcurrent jobs at
// a time. Non-positive values are clamped to 1.
func NewManager(log logger.Logger, maxConcurrent int64) *Manager {
	if log == nil {
		log = logger.Discard
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		logger: log.WithPrefix("jobs"),
		sem:    semaphore.NewWeighted(maxConcurrent),
		tokens: make(map[string]*CancelToken),
	}
}

// Submit schedules fn and returns immediately with a handle. The job
// waits for a concurrency slot, honoring ctx while queued. Jobs
// cancelled before acquiring a slot never run.
func (m *Manager) Submit(ctx context.Context, name string, fn Func, opts ...SubmitOption) Handle {
	var cfg submitConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	token := cfg.token
	if token == nil {
		token = &CancelToken{}
	}
	id := NewJobID()

	m.mu.Lock()
	m.tokens[id] = token
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, name, id, fn, token, cfg)

	return Handle{Name: name, ID: id, Token: token}
}

func (m *Manager) run(ctx context.Context, name, id string, fn Func, token *CancelToken, cfg submitConfig) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.tokens, id)
		m.mu.Unlock()
	}()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.logger.Debug("job %s (%s) abandoned while queued: %v", name, id, err)
		return
	}
	defer m.sem.Release(1)

	if token.IsCancelled() {
		m.logger.Info("job cancelled before run: %s (%s)", name, id)
		return
	}

	m.logger.Info("job started: %s (%s)", name, id)
	progress := func(value int, message string) {
		if cfg.onProgress == nil {
			return
		}
		if value < 0 {
			value = 0
		} else if value > 100 {
			value = 100
		}
		cfg.onProgress(value, message)
	}

	result, err := m.call(ctx, fn, progress, token)
	switch {
	case token.IsCancelled():
		m.logger.Info("job cancelled: %s (%s)", name, id)
	case err != nil:
		m.logger.Error("job error: %s (%s): %v", name, id, err)
		if cfg.onError != nil {
			cfg.onError(err)
		}
	default:
		m.logger.Info("job finished: %s (%s)", name, id)
		if cfg.onResult != nil {
			cfg.onResult(result)
		}
	}
}

// call invokes the job body, converting a panic into an error so one
// bad job cannot take the process down.
func (m *Manager) call(ctx context.Context, fn Func, progress func(int, string), token *CancelToken) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("job panic: %v", r)
		}
	}()
	return fn(ctx, progress, token)
}

// Cancel requests cancellation for a job by id. Unknown ids are
// ignored.
func (m *Manager) Cancel(id string) {
	m.mu.Lock()
	token := m.tokens[id]
	m.mu.Unlock()
	if token != nil {
		token.Cancel()
	}
}

// CancelAll requests cancellation for every tracked job.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	tokens := make([]*CancelToken, 0, len(m.tokens))
	for _, t := range m.tokens {
		tokens = append(tokens, t)
	}
	m.mu.Unlock()
	for _, t := range tokens {
		t.Cancel()
	}
}

// Wait blocks until every submitted job has finished, been cancelled,
// or been abandoned.
func (m *Manager) Wait() {
	m.wg.Wait()
}
