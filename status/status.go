// Package status polls the background job state and triggers job runs.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robertmeta/trss-cli/model"
	"github.com/robertmeta/trss-cli/poll"
)

// DefaultInterval is how often the job status is refetched.
const DefaultInterval = 5 * time.Second

// Source is the part of the API the poller needs.
type Source interface {
	Status(ctx context.Context) (model.JobStatus, error)
	TriggerJob(ctx context.Context) error
}

// Poller tracks the last known job status.
type Poller struct {
	src Source

	mu       sync.Mutex
	status   model.JobStatus
	known    bool
	issued   uint64
	applied  uint64
	onChange func(model.JobStatus)

	notifyMu sync.Mutex
	notified uint64
}

// New creates a Poller for src.
func New(src Source) *Poller {
	return &Poller{src: src}
}

// OnChange registers fn to be called whenever the running state changes.
// Calls are serialized in poll order; fn must not call Refresh.
func (p *Poller) OnChange(fn func(model.JobStatus)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Status returns the last successfully polled status and whether any poll
// has succeeded yet.
func (p *Poller) Status() (model.JobStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.known
}

// Refresh fetches the status once. Failures are not surfaced: the last
// known status is kept until a later poll succeeds.
func (p *Poller) Refresh(ctx context.Context) {
	p.mu.Lock()
	p.issued++
	gen := p.issued
	p.mu.Unlock()

	st, err := p.src.Status(ctx)
	if err != nil {
		slog.Debug("status poll failed", "err", err)
		return
	}

	p.mu.Lock()
	if gen < p.applied {
		p.mu.Unlock()
		return
	}
	p.applied = gen
	changed := !p.known || p.status != st
	p.status, p.known = st, true
	fn := p.onChange
	p.mu.Unlock()

	if changed {
		p.notify(gen, fn, st)
	}
}

// notify delivers st unless a newer status has already been delivered.
func (p *Poller) notify(gen uint64, fn func(model.JobStatus), st model.JobStatus) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	if gen < p.notified {
		return
	}
	p.notified = gen
	if fn != nil {
		fn(st)
	}
}

// Start polls every interval until the returned task is stopped.
func (p *Poller) Start(ctx context.Context, interval time.Duration) *poll.Task {
	return poll.Start(ctx, interval, p.Refresh)
}

// TriggerJob asks the server to start a run. The running flag is not set
// locally; on success the status is refetched right away.
func (p *Poller) TriggerJob(ctx context.Context) error {
	if err := p.src.TriggerJob(ctx); err != nil {
		slog.Error("start job failed", "err", err)
		return fmt.Errorf("failed to start job: %w", err)
	}
	p.Refresh(ctx)
	return nil
}
