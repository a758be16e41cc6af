package tailoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jobtailor/internal/shared/metrics"
	"jobtailor/internal/shared/telemetry"
	"jobtailor/internal/tailorapi"
)

// Options configures a Coordinator.
type Options struct {
	PollInterval time.Duration
	Guard        Guard
	Now          func() time.Time
}

// RouteView is the coordinator state after a route entry.
type RouteView struct {
	Route    Route       `json:"route"`
	Redirect Route       `json:"redirect,omitempty"`
	Resume   *ResumeInfo `json:"resume,omitempty"`
	State    JobState    `json:"state"`
}

// Coordinator owns the job state machine for one session. All state changes
// happen under mu; poller callbacks are matched against the attempt that
// started them. storeMu orders session store writes and is always taken
// before mu.
type Coordinator struct {
	submitter *Submitter
	recovery  *Recovery
	poller    *Poller
	guard     Guard
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	storeMu sync.Mutex

	mu        sync.Mutex
	run       *PollRun
	state     JobState
	resume    *ResumePayload
	request   TailoringRequest
	attempt   uint64
	startedAt time.Time
	changed   chan struct{}
}

// NewCoordinator wires a coordinator around the remote api and the session recovery.
func NewCoordinator(api TailorAPI, recovery *Recovery, opts Options) *Coordinator {
	if opts.Guard == nil {
		opts.Guard = &FlagGuard{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	submitter := NewSubmitter(api, recovery)
	submitter.now = opts.Now
	return &Coordinator{
		submitter: submitter,
		recovery:  recovery,
		poller:    NewPoller(api, opts.PollInterval),
		guard:     opts.Guard,
		now:       opts.Now,
		ctx:       ctx,
		cancel:    cancel,
		state:     JobState{Status: StatusIdle},
		changed:   make(chan struct{}),
	}
}

// AcceptResume replaces the current resume. Any job in flight is abandoned.
func (c *Coordinator) AcceptResume(ctx context.Context, p *ResumePayload) error {
	c.storeMu.Lock()
	c.mu.Lock()
	stale := c.discardLocked("new_upload")
	c.resume = p
	c.mu.Unlock()

	err := c.recovery.SaveResume(ctx, p)
	if err == nil {
		err = c.recovery.ClearResult(ctx)
	}
	c.storeMu.Unlock()

	c.poller.StopRun(stale)
	if err != nil {
		return err
	}
	telemetry.Info("tailoring.resume_accepted", map[string]any{"name": p.Filename, "type": p.MIMEType, "size": p.SizeBytes})
	return nil
}

// Resume returns the resume currently held, or nil.
func (c *Coordinator) Resume() *ResumePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resume
}

// Submit starts a new attempt. Validation failures leave the job state untouched.
func (c *Coordinator) Submit(ctx context.Context, req TailoringRequest) (Job, error) {
	c.mu.Lock()
	if c.state.Status.InFlight() {
		c.mu.Unlock()
		return Job{}, ErrJobInProgress
	}
	if req.Resume == nil {
		req.Resume = c.resume
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		c.mu.Unlock()
		return Job{}, err
	}

	c.attempt++
	attempt := c.attempt
	c.request = req
	c.resume = req.Resume
	c.state = JobState{Status: StatusIdle}
	if err := c.advanceLocked(StatusSubmitting); err != nil {
		c.mu.Unlock()
		return Job{}, err
	}
	c.state.Message = "Submitting your resume for tailoring..."
	c.startedAt = c.now()
	c.guard.Engage()
	c.notifyLocked()
	c.mu.Unlock()

	job, err := c.submitter.Submit(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt != c.attempt {
		return Job{}, ErrAttemptDiscarded
	}
	if err != nil {
		classified := ClassifyError(err)
		c.failLocked(classified)
		return Job{}, classified
	}

	metrics.IncJobSubmitted()
	c.state.Job = &job
	c.state.Message = "Job submitted and processing started"
	if err := c.advanceLocked(StatusProcessing); err != nil {
		return Job{}, err
	}
	run, err := c.poller.Start(c.ctx, job.ID, c.handlers(attempt))
	if err != nil {
		c.failLocked(NewClassifiedError(KindGeneric, err.Error()))
		return Job{}, err
	}
	c.run = run
	c.notifyLocked()
	return job, nil
}

// ExtractJobURL previews what the service recovers from a job posting URL.
func (c *Coordinator) ExtractJobURL(ctx context.Context, jobURL string) (tailorapi.JobDetails, error) {
	return c.submitter.ExtractJobURL(ctx, jobURL)
}

// Cancel abandons the attempt in flight. The remote service is not told; the
// job may still complete there. Calling Cancel with nothing in flight is a no-op.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	stale := c.discardLocked("cancel")
	c.mu.Unlock()
	c.poller.StopRun(stale)
}

// EnterRoute reconciles state for a route transition.
func (c *Coordinator) EnterRoute(ctx context.Context, route Route) (RouteView, error) {
	c.storeMu.Lock()
	c.mu.Lock()
	mem := MemoryState{
		Resume:  c.resume,
		Result:  c.state.Result,
		Polling: c.state.Status.InFlight(),
	}
	snap, err := c.recovery.Reconcile(ctx, route, mem)
	if err != nil {
		c.mu.Unlock()
		c.storeMu.Unlock()
		return RouteView{}, err
	}

	var stale *PollRun
	if snap.DiscardJob {
		stale = c.discardLocked("route_" + string(route))
		if !c.state.Status.InFlight() {
			c.state = JobState{Status: StatusIdle}
		}
	}
	c.resume = snap.Resume
	if snap.Result != nil && c.state.Result == nil && c.state.Status == StatusIdle {
		c.state.Status = StatusCompleted
		c.state.Result = snap.Result
	}
	c.notifyLocked()

	view := RouteView{Route: route, Redirect: snap.Redirect, State: c.stateLocked()}
	if c.resume != nil {
		info := c.resume.Info()
		view.Resume = &info
	}
	c.mu.Unlock()
	c.storeMu.Unlock()

	c.poller.StopRun(stale)
	return view, nil
}

// State returns a copy of the current job state.
func (c *Coordinator) State() JobState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Wait blocks until no attempt is in flight or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) (JobState, error) {
	for {
		c.mu.Lock()
		if !c.state.Status.InFlight() {
			st := c.stateLocked()
			c.mu.Unlock()
			return st, nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return c.State(), ctx.Err()
		case <-ch:
		}
	}
}

// Close stops polling. The coordinator must not be used afterwards.
func (c *Coordinator) Close() {
	c.cancel()
	c.poller.Stop()
}

func (c *Coordinator) handlers(attempt uint64) PollHandlers {
	return PollHandlers{
		OnProgress: func(jobID string, resp tailorapi.StatusResponse) {
			c.onProgress(attempt, jobID, resp)
		},
		OnCompleted: func(jobID string, resp tailorapi.StatusResponse) {
			c.onCompleted(attempt, jobID, resp)
		},
		OnFailed: func(jobID string, err *ClassifiedError) {
			c.onFailed(attempt, jobID, err)
		},
	}
}

func (c *Coordinator) currentJobLocked(attempt uint64, jobID string) bool {
	return attempt == c.attempt && c.state.Job != nil && c.state.Job.ID == jobID && c.state.Status == StatusProcessing
}

func (c *Coordinator) onProgress(attempt uint64, jobID string, resp tailorapi.StatusResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentJobLocked(attempt, jobID) {
		return
	}
	if resp.Message != "" {
		c.state.Message = resp.Message
	} else {
		c.state.Message = "Processing..."
	}
	telemetry.Info("tailoring.status", map[string]any{"job_id": jobID, "status": resp.Status})
	c.notifyLocked()
}

// onCompleted persists the result before publishing COMPLETED. The store write
// happens outside mu so State and the handlers stay responsive meanwhile.
func (c *Coordinator) onCompleted(attempt uint64, jobID string, resp tailorapi.StatusResponse) {
	c.mu.Lock()
	if !c.currentJobLocked(attempt, jobID) {
		c.mu.Unlock()
		return
	}
	withCoverLetter := c.request.GenerateCoverLetter
	c.mu.Unlock()

	result := Assemble(resp, withCoverLetter)
	storeCtx := context.WithoutCancel(c.ctx)

	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if err := c.recovery.SaveResult(storeCtx, &result); err != nil {
		telemetry.Error("tailoring.result_persist_failed", map[string]any{"job_id": jobID, "err": err.Error()})
	}

	c.mu.Lock()
	current := c.currentJobLocked(attempt, jobID)
	if current {
		c.completeLocked(jobID, &result, resp.Message)
	}
	c.mu.Unlock()

	if !current {
		// Discarded while the result was being written.
		if err := c.recovery.ClearResult(storeCtx); err != nil {
			telemetry.Error("tailoring.result_clear_failed", map[string]any{"job_id": jobID, "err": err.Error()})
		}
	}
}

func (c *Coordinator) completeLocked(jobID string, result *TailoringResult, message string) {
	c.state.Result = result
	c.state.Message = message
	if err := c.advanceLocked(StatusCompleted); err != nil {
		return
	}
	c.state.Job.Status = StatusCompleted
	c.guard.Release()
	metrics.IncJobCompleted()
	metrics.ObserveJobDurationMs(float64(c.now().Sub(c.startedAt).Milliseconds()))
	telemetry.Info("tailoring.completed", map[string]any{"job_id": jobID, "file_type": result.FileType})
	c.notifyLocked()
}

func (c *Coordinator) onFailed(attempt uint64, jobID string, err *ClassifiedError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentJobLocked(attempt, jobID) {
		return
	}
	c.failLocked(err)
}

func (c *Coordinator) failLocked(err *ClassifiedError) {
	if advanceErr := c.advanceLocked(StatusFailed); advanceErr != nil {
		return
	}
	if c.state.Job != nil {
		c.state.Job.Status = StatusFailed
	}
	c.state.Error = err
	c.state.Message = err.Message()
	c.guard.Release()
	metrics.IncJobFailed()
	fields := map[string]any{"kind": err.Kind(), "err": err.Message()}
	if c.state.Job != nil {
		fields["job_id"] = c.state.Job.ID
	}
	telemetry.Error("tailoring.failed", fields)
	c.notifyLocked()
}

// advanceLocked moves the status forward. Backward or sideways moves are rejected.
func (c *Coordinator) advanceLocked(next JobStatus) error {
	cur := c.state.Status
	if next.rank() <= cur.rank() {
		telemetry.Warn("tailoring.invalid_transition", map[string]any{"from": cur, "to": next})
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}
	c.state.Status = next
	return nil
}

// discardLocked drops any attempt in flight. Its poll run is cancelled before
// IDLE is published, so a new Submit can start polling at once. The returned
// run, if any, is for the caller to wait on after releasing mu.
func (c *Coordinator) discardLocked(reason string) *PollRun {
	run := c.run
	c.run = nil
	if !c.state.Status.InFlight() {
		return nil
	}
	c.poller.Cancel(run)
	fields := map[string]any{"reason": reason, "status": c.state.Status}
	if c.state.Job != nil {
		fields["job_id"] = c.state.Job.ID
	}
	telemetry.Info("tailoring.discarded", fields)

	c.attempt++
	c.state = JobState{Status: StatusIdle}
	c.guard.Release()
	metrics.IncJobCancelled()
	c.notifyLocked()
	return run
}

func (c *Coordinator) stateLocked() JobState {
	st := c.state
	if st.Job != nil {
		job := *st.Job
		st.Job = &job
	}
	st.LeaveWarning = c.guard.Active()
	return st
}

func (c *Coordinator) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}
