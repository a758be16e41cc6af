package tailoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"jobtailor/internal/shared/metrics"
	"jobtailor/internal/shared/telemetry"
	"jobtailor/internal/tailorapi"
)

// DefaultPollInterval is the spacing between status requests.
const DefaultPollInterval = 3 * time.Second

// maxConsecutiveDrops is how many transport failures in a row end polling.
const maxConsecutiveDrops = 2

// StatusFetcher performs one status request.
type StatusFetcher interface {
	Status(ctx context.Context, jobID string) (tailorapi.StatusResponse, error)
}

// PollHandlers receive poll outcomes. They run on the poller goroutine and must
// not wait for their own run to stop.
type PollHandlers struct {
	OnProgress  func(jobID string, resp tailorapi.StatusResponse)
	OnCompleted func(jobID string, resp tailorapi.StatusResponse)
	OnFailed    func(jobID string, err *ClassifiedError)
}

// Poller owns at most one live status timer.
type Poller struct {
	fetcher  StatusFetcher
	interval time.Duration

	mu      sync.Mutex
	active  bool
	current *PollRun
}

// PollRun is the handle of one Start call. Stopping a run never touches a
// later one.
type PollRun struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed once the run's goroutine has exited.
func (r *PollRun) Done() <-chan struct{} {
	return r.done
}

// NewPoller constructs a Poller ticking every interval.
func NewPoller(fetcher StatusFetcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{fetcher: fetcher, interval: interval}
}

// Start begins polling jobID. It returns ErrPollerActive if a timer is already live.
func (p *Poller) Start(ctx context.Context, jobID string, h PollHandlers) (*PollRun, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return nil, ErrPollerActive
	}

	pollCtx, cancel := context.WithCancel(ctx)
	run := &PollRun{jobID: jobID, cancel: cancel, done: make(chan struct{})}
	p.active = true
	p.current = run

	telemetry.Info("poller.start", map[string]any{"job_id": jobID, "interval_ms": p.interval.Milliseconds()})
	go p.run(pollCtx, run, h)
	return run, nil
}

// Cancel ends run without waiting for its goroutine. Once it returns, Start
// may begin a new run. It never blocks, so callers may hold their own locks.
func (p *Poller) Cancel(run *PollRun) {
	if run == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	run.cancel()
	if p.current == run {
		p.active = false
	}
}

// StopRun cancels run and waits for its goroutine to exit. It is safe to call repeatedly.
func (p *Poller) StopRun(run *PollRun) {
	if run == nil {
		return
	}
	p.Cancel(run)
	<-run.done
}

// Stop stops the most recent run, if any, and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	run := p.current
	p.mu.Unlock()
	p.StopRun(run)
}

// Active reports whether a timer is live.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// finish marks run as no longer live.
func (p *Poller) finish(run *PollRun) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == run {
		p.active = false
	}
}

func (p *Poller) run(ctx context.Context, run *PollRun, h PollHandlers) {
	defer close(run.done)
	jobID := run.jobID
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	drops := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		metrics.IncPollTick()
		resp, err := p.fetcher.Status(ctx, jobID)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			var transportErr *tailorapi.TransportError
			if errors.As(err, &transportErr) {
				drops++
				metrics.IncPollDropped()
				telemetry.Warn("poller.tick_dropped", map[string]any{"job_id": jobID, "consecutive": drops, "err": err.Error()})
				if drops < maxConsecutiveDrops {
					continue
				}
			}
			ticker.Stop()
			p.finish(run)
			telemetry.Error("poller.stopped", map[string]any{"job_id": jobID, "err": err.Error()})
			if h.OnFailed != nil {
				h.OnFailed(jobID, NewClassifiedError(KindNetwork, err.Error()))
			}
			return
		}
		drops = 0

		switch resp.Status {
		case tailorapi.StatusCompleted:
			ticker.Stop()
			p.finish(run)
			if h.OnCompleted != nil {
				h.OnCompleted(jobID, resp)
			}
			return
		case tailorapi.StatusFailed:
			ticker.Stop()
			p.finish(run)
			message := resp.Message
			if message == "" {
				message = "Job failed"
			}
			if h.OnFailed != nil {
				h.OnFailed(jobID, NewClassifiedError(Classify(message), message))
			}
			return
		default:
			if h.OnProgress != nil {
				h.OnProgress(jobID, resp)
			}
		}
	}
}
