package tailoring

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtailor/internal/shared/storage/session"
	"jobtailor/internal/tailorapi"
)

func waitState(t *testing.T, c *Coordinator) JobState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := c.Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestCoordinatorCompletesJob(t *testing.T) {
	api := newFakeAPI(processing(), completed())
	c, store := newTestCoordinator(t, api)
	ctx := context.Background()

	require.NoError(t, c.AcceptResume(ctx, pdfResume(t, 2*1024*1024)))
	job, err := c.Submit(ctx, TailoringRequest{JobTitle: "Data Engineer"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, StatusProcessing, job.Status)

	st := waitState(t, c)
	assert.Equal(t, StatusCompleted, st.Status)
	require.NotNil(t, st.Job)
	assert.Equal(t, StatusCompleted, st.Job.Status)
	require.NotNil(t, st.Result)
	assert.Equal(t, "https://cdn.example.com/resume.pdf", st.Result.ResumeArtifacts.PdfURL)
	assert.Nil(t, st.Result.CoverLetterArtifacts)
	assert.Nil(t, st.Error)
	assert.False(t, st.LeaveWarning)

	api.mu.Lock()
	sent := api.lastOptimize
	api.mu.Unlock()
	assert.Equal(t, "Data Engineer", sent.JobTitle)
	assert.Equal(t, "dual", sent.OutputFormat)
	assert.Equal(t, "professional", sent.ResumeTemplate)
	assert.True(t, strings.HasPrefix(sent.Resume, "data:application/pdf;base64,"))
	assert.Nil(t, sent.CoverLetterFormat)

	data, err := store.Load(ctx, NewKeys("test").Result)
	require.NoError(t, err)
	assert.Contains(t, string(data), "resume.pdf")

	_, calls, _ := api.calls()
	time.Sleep(20 * time.Millisecond)
	_, after, _ := api.calls()
	assert.Equal(t, calls, after, "polling stops after completion")
}

func TestCoordinatorValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) TailoringRequest
	}{
		{
			name: "cover letter without company",
			req: func(t *testing.T) TailoringRequest {
				return TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer", GenerateCoverLetter: true}
			},
		},
		{
			name: "oversize resume",
			req: func(t *testing.T) TailoringRequest {
				big := make([]byte, MaxResumeBytes+1)
				return TailoringRequest{
					Resume:   &ResumePayload{Content: big, SizeBytes: int64(len(big)), Filename: "big.pdf", MIMEType: mimePDF},
					JobTitle: "Data Engineer",
				}
			},
		},
		{
			name: "no resume",
			req: func(t *testing.T) TailoringRequest {
				return TailoringRequest{JobTitle: "Data Engineer"}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			c, _ := newTestCoordinator(t, api)

			_, err := c.Submit(context.Background(), tt.req(t))
			require.Error(t, err)
			assert.Equal(t, KindValidation, ClassifyError(err).Kind())

			optimize, status, extract := api.calls()
			assert.Zero(t, optimize)
			assert.Zero(t, status)
			assert.Zero(t, extract)
			assert.Equal(t, StatusIdle, c.State().Status)
		})
	}
}

func TestCoordinatorRemoteFailureIsClassified(t *testing.T) {
	api := newFakeAPI(processing(), failed("document format is not supported"))
	c, _ := newTestCoordinator(t, api)

	_, err := c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"})
	require.NoError(t, err)

	st := waitState(t, c)
	assert.Equal(t, StatusFailed, st.Status)
	require.NotNil(t, st.Job)
	assert.Equal(t, StatusFailed, st.Job.Status)
	require.NotNil(t, st.Error)
	assert.Equal(t, KindParsing, st.Error.Kind())
	assert.Equal(t, RouteUpload, st.Error.RecoveryRoute())
	assert.Equal(t, "document format is not supported", st.Message)
	assert.False(t, c.poller.Active())

	_, calls, _ := api.calls()
	time.Sleep(20 * time.Millisecond)
	_, after, _ := api.calls()
	assert.Equal(t, calls, after)
}

func TestCoordinatorSubmitTransportFailure(t *testing.T) {
	api := newFakeAPI()
	api.optimizeErr = &tailorapi.TransportError{Op: "optimize", Err: io.ErrUnexpectedEOF}
	c, _ := newTestCoordinator(t, api)

	_, err := c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"})
	require.Error(t, err)
	assert.Equal(t, KindNetwork, ClassifyError(err).Kind())

	st := c.State()
	assert.Equal(t, StatusFailed, st.Status)
	assert.Nil(t, st.Job)
	assert.False(t, st.LeaveWarning)
	_, status, _ := api.calls()
	assert.Zero(t, status)
}

func TestCoordinatorRejectsConcurrentSubmit(t *testing.T) {
	api := newFakeAPI()
	c, _ := newTestCoordinator(t, api)
	req := TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"}

	_, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, c.State().LeaveWarning)

	_, err = c.Submit(context.Background(), req)
	assert.ErrorIs(t, err, ErrJobInProgress)
	optimize, _, _ := api.calls()
	assert.Equal(t, 1, optimize)
}

func TestCoordinatorCancelDiscardsLateUpdates(t *testing.T) {
	api := newFakeAPI()
	c, _ := newTestCoordinator(t, api)

	_, err := c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, status, _ := api.calls()
		return status > 0
	}, time.Second, time.Millisecond)

	c.mu.Lock()
	abandoned := c.attempt
	c.mu.Unlock()

	c.Cancel()
	assert.False(t, c.poller.Active())
	assert.Equal(t, StatusIdle, c.State().Status)
	assert.False(t, c.State().LeaveWarning)

	_, calls, _ := api.calls()
	time.Sleep(20 * time.Millisecond)
	_, after, _ := api.calls()
	assert.Equal(t, calls, after)

	c.onCompleted(abandoned, "job-1", completed().resp)
	c.onFailed(abandoned, "job-1", NewClassifiedError(KindGeneric, "late"))
	st := c.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Nil(t, st.Result)
	assert.Nil(t, st.Error)

	c.Cancel()
	assert.Equal(t, StatusIdle, c.State().Status)

	// The service hands out the same id again; the abandoned attempt's
	// callbacks must not touch the new one.
	_, err = c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"})
	require.NoError(t, err)
	c.onCompleted(abandoned, "job-1", completed().resp)
	c.onFailed(abandoned, "job-1", NewClassifiedError(KindGeneric, "late"))
	st = c.State()
	assert.Equal(t, StatusProcessing, st.Status)
	assert.Nil(t, st.Result)
	assert.Nil(t, st.Error)
	assert.True(t, c.poller.Active())
}

func TestCoordinatorCancelRacingSubmitKeepsPolling(t *testing.T) {
	api := newFakeAPI()
	c, _ := newTestCoordinator(t, api)
	req := TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"}

	for i := 0; i < 100; i++ {
		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := c.Submit(context.Background(), req)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			c.Cancel()
		}()
		go func() {
			defer wg.Done()
			_, err := c.Submit(context.Background(), req)
			errs <- err
		}()
		wg.Wait()
		close(errs)

		for err := range errs {
			if err == nil {
				continue
			}
			assert.NotErrorIs(t, err, ErrPollerActive)
			assert.True(t, errors.Is(err, ErrJobInProgress) || errors.Is(err, ErrAttemptDiscarded), "unexpected submit error: %v", err)
		}

		st := c.State()
		require.NotEqual(t, StatusFailed, st.Status)
		assert.Equal(t, st.Status == StatusProcessing, c.poller.Active(), "iteration %d: status %s", i, st.Status)
		assert.Equal(t, st.Status.InFlight(), st.LeaveWarning)

		c.Cancel()
		require.False(t, c.poller.Active())
	}

	api.mu.Lock()
	api.statuses = []statusReply{completed()}
	api.statusCalls = 0
	api.mu.Unlock()

	_, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, waitState(t, c).Status)
}

func TestCoordinatorSubmitRejectionKeepsServerMessage(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "error status with message field", status: http.StatusBadRequest, body: `{"message":"Unable to extract text from PDF"}`},
		{name: "success status reporting FAILED", status: http.StatusOK, body: `{"status":"FAILED","message":"Unable to extract text from PDF"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			client, err := tailorapi.New(srv.URL, "", time.Second)
			require.NoError(t, err)

			c := NewCoordinator(client, NewRecovery(session.NewMemoryStore(), "test"), Options{PollInterval: 5 * time.Millisecond})
			defer c.Close()

			_, err = c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"})
			var classified *ClassifiedError
			require.ErrorAs(t, err, &classified)
			assert.Equal(t, KindParsing, classified.Kind())
			assert.Equal(t, "Unable to extract text from PDF", classified.Message())

			st := c.State()
			assert.Equal(t, StatusFailed, st.Status)
			require.NotNil(t, st.Error)
			assert.Equal(t, RouteUpload, st.Error.RecoveryRoute())
			assert.False(t, c.poller.Active())
		})
	}
}

// gatedStore blocks result writes until gate is closed.
type gatedStore struct {
	session.Store
	key     string
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (s *gatedStore) Save(ctx context.Context, key string, value []byte) error {
	if key == s.key {
		s.once.Do(func() { close(s.entered) })
		<-s.gate
	}
	return s.Store.Save(ctx, key, value)
}

func TestCoordinatorStaysResponsiveWhileResultPersists(t *testing.T) {
	api := newFakeAPI(completed())
	mem := session.NewMemoryStore()
	store := &gatedStore{Store: mem, key: NewKeys("test").Result, entered: make(chan struct{}), gate: make(chan struct{})}
	c := NewCoordinator(api, NewRecovery(store, "test"), Options{PollInterval: 5 * time.Millisecond})
	defer c.Close()

	_, err := c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"})
	require.NoError(t, err)

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("result was never persisted")
	}

	states := make(chan JobState, 1)
	go func() { states <- c.State() }()
	select {
	case st := <-states:
		assert.Equal(t, StatusProcessing, st.Status)
	case <-time.After(time.Second):
		t.Fatal("State blocked behind the result write")
	}

	close(store.gate)
	st := waitState(t, c)
	assert.Equal(t, StatusCompleted, st.Status)
	data, err := mem.Load(context.Background(), NewKeys("test").Result)
	require.NoError(t, err)
	assert.Contains(t, string(data), "resume.pdf")
}

func TestCoordinatorDropsResultDiscardedDuringWrite(t *testing.T) {
	api := newFakeAPI(completed())
	mem := session.NewMemoryStore()
	store := &gatedStore{Store: mem, key: NewKeys("test").Result, entered: make(chan struct{}), gate: make(chan struct{})}
	c := NewCoordinator(api, NewRecovery(store, "test"), Options{PollInterval: 5 * time.Millisecond})
	defer c.Close()

	_, err := c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"})
	require.NoError(t, err)
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("result was never persisted")
	}

	cancelled := make(chan struct{})
	go func() {
		c.Cancel()
		close(cancelled)
	}()
	require.Eventually(t, func() bool { return c.State().Status == StatusIdle }, time.Second, time.Millisecond)

	close(store.gate)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not return")
	}

	st := c.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Nil(t, st.Result)
	_, err = mem.Load(context.Background(), NewKeys("test").Result)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCoordinatorResubmitAfterFailure(t *testing.T) {
	api := newFakeAPI(failed("Job failed"))
	c, _ := newTestCoordinator(t, api)
	req := TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"}

	_, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, waitState(t, c).Status)

	api.mu.Lock()
	api.statuses = []statusReply{completed()}
	api.statusCalls = 0
	api.mu.Unlock()

	_, err = c.Submit(context.Background(), req)
	require.NoError(t, err)
	st := waitState(t, c)
	assert.Equal(t, StatusCompleted, st.Status)
	assert.Nil(t, st.Error)
}

func TestCoordinatorNewUploadAbandonsJob(t *testing.T) {
	api := newFakeAPI()
	c, _ := newTestCoordinator(t, api)
	ctx := context.Background()

	_, err := c.Submit(ctx, TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"})
	require.NoError(t, err)

	fresh := pdfResume(t, 4096)
	require.NoError(t, c.AcceptResume(ctx, fresh))
	assert.Equal(t, StatusIdle, c.State().Status)
	assert.False(t, c.poller.Active())
	assert.Same(t, fresh, c.Resume())
}

func TestCoordinatorEnterUploadAbandonsJob(t *testing.T) {
	api := newFakeAPI()
	c, _ := newTestCoordinator(t, api)
	ctx := context.Background()

	require.NoError(t, c.AcceptResume(ctx, pdfResume(t, 1024)))
	_, err := c.Submit(ctx, TailoringRequest{JobTitle: "Data Engineer"})
	require.NoError(t, err)

	view, err := c.EnterRoute(ctx, RouteUpload)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, view.State.Status)
	assert.Nil(t, view.Resume)
	assert.Nil(t, c.Resume())
	assert.False(t, c.poller.Active())
}

func TestCoordinatorRestoresAfterRestart(t *testing.T) {
	api := newFakeAPI(completed())
	first, store := newTestCoordinator(t, api)
	ctx := context.Background()

	require.NoError(t, first.AcceptResume(ctx, pdfResume(t, 2048)))
	_, err := first.Submit(ctx, TailoringRequest{JobTitle: "Data Engineer"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, waitState(t, first).Status)
	first.Close()

	second := NewCoordinator(api, NewRecovery(store, "test"), Options{PollInterval: 5 * time.Millisecond})
	t.Cleanup(second.Close)

	view, err := second.EnterRoute(ctx, RouteResults)
	require.NoError(t, err)
	assert.Equal(t, RouteNone, view.Redirect)
	assert.Equal(t, StatusCompleted, view.State.Status)
	require.NotNil(t, view.State.Result)
	assert.Equal(t, "https://cdn.example.com/resume.pdf", view.State.Result.ResumeArtifacts.PdfURL)
	assert.Nil(t, view.State.Job)

	view, err = second.EnterRoute(ctx, RouteJobDetails)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, view.State.Status)
	assert.Nil(t, view.State.Result)
	require.NotNil(t, view.Resume)
	assert.Equal(t, "resume.pdf", view.Resume.Filename)
	assert.EqualValues(t, 2048, view.Resume.SizeBytes)
}

func TestCoordinatorResultsWithoutStateRedirects(t *testing.T) {
	c, _ := newTestCoordinator(t, newFakeAPI())
	view, err := c.EnterRoute(context.Background(), RouteResults)
	require.NoError(t, err)
	assert.Equal(t, RouteUpload, view.Redirect)
	assert.Equal(t, StatusIdle, view.State.Status)
}

func TestCoordinatorJobURLExtraction(t *testing.T) {
	details := tailorapi.JobDetails{JobTitle: "Platform Engineer", Company: "Acme", Description: "Build pipelines"}

	t.Run("extraction fills the request", func(t *testing.T) {
		api := newFakeAPI()
		api.extract = details
		c, _ := newTestCoordinator(t, api)

		_, err := c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobURL: "https://jobs.example.com/42"})
		require.NoError(t, err)

		api.mu.Lock()
		sent := api.lastOptimize
		api.mu.Unlock()
		assert.Equal(t, "Platform Engineer", sent.JobTitle)
		assert.Equal(t, "Acme", sent.CompanyName)
		assert.Equal(t, "Build pipelines", sent.JobDescription)
	})

	t.Run("manual title wins", func(t *testing.T) {
		api := newFakeAPI()
		api.extract = details
		c, _ := newTestCoordinator(t, api)

		_, err := c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobURL: "https://jobs.example.com/42", JobTitle: "Data Engineer"})
		require.NoError(t, err)

		api.mu.Lock()
		sent := api.lastOptimize
		api.mu.Unlock()
		assert.Equal(t, "Data Engineer", sent.JobTitle)
		assert.Equal(t, "Acme", sent.CompanyName)
	})

	t.Run("failure falls back to manual fields", func(t *testing.T) {
		api := newFakeAPI()
		api.extractErr = errors.New("HTTP 404: not found")
		c, _ := newTestCoordinator(t, api)

		_, err := c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobURL: "https://jobs.example.com/42", JobTitle: "Data Engineer"})
		require.NoError(t, err)
		optimize, _, extract := api.calls()
		assert.Equal(t, 1, optimize)
		assert.Equal(t, 1, extract)
	})

	t.Run("failure without manual fields", func(t *testing.T) {
		api := newFakeAPI()
		api.extractErr = errors.New("HTTP 404: not found")
		c, _ := newTestCoordinator(t, api)

		_, err := c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobURL: "https://jobs.example.com/42"})
		require.Error(t, err)
		classified := ClassifyError(err)
		assert.Equal(t, KindValidation, classified.Kind())
		assert.Contains(t, classified.Message(), "manual fields")
		optimize, _, _ := api.calls()
		assert.Zero(t, optimize)
		assert.Equal(t, StatusFailed, c.State().Status)
	})
}

func TestCoordinatorWaitHonoursContext(t *testing.T) {
	c, _ := newTestCoordinator(t, newFakeAPI())
	_, err := c.Submit(context.Background(), TailoringRequest{Resume: pdfResume(t, 1024), JobTitle: "Data Engineer"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	st, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusProcessing, st.Status)
}
