package tailoring

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtailor/internal/tailorapi"
)

type fakeDownloader struct {
	mu    sync.Mutex
	jobID string
	kind  ArtifactKind
}

func (f *fakeDownloader) Download(ctx context.Context, jobID string, result TailoringResult, kind ArtifactKind) (StoredArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobID, f.kind = jobID, kind
	_, ext, ok := result.ArtifactURL(kind)
	if !ok {
		return StoredArtifact{}, ErrNoResult
	}
	return StoredArtifact{Kind: kind, Key: "ns/" + jobID + "/" + string(kind) + ext, ContentType: mimePDF, SizeBytes: 42}, nil
}

func newTestRouter(t *testing.T, api *fakeAPI, artifacts ArtifactDownloader) (*gin.Engine, *Coordinator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := newTestCoordinator(t, api)
	r := gin.New()
	NewHandler(c, artifacts).RegisterRoutes(r.Group("/api/v1"))
	return r, c
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func uploadFile(t *testing.T, r http.Handler, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("lastModified", "1700000000000"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resume", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body), resp.Body.String())
	return body
}

func errorBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := decodeBody(t, resp)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, resp.Body.String())
	return errObj
}

func pdfBytes(size int) []byte {
	return append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), size-9)...)
}

func TestHandlerUploadResume(t *testing.T) {
	r, c := newTestRouter(t, newFakeAPI(), nil)

	resp := uploadFile(t, r, "resume.pdf", pdfBytes(2048))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	body := decodeBody(t, resp)
	assert.Equal(t, "resume.pdf", body["name"])
	assert.Equal(t, "application/pdf", body["type"])
	assert.EqualValues(t, 2048, body["size"])

	require.NotNil(t, c.Resume())
	assert.Equal(t, time.UnixMilli(1700000000000).UnixMilli(), c.Resume().LastModified.UnixMilli())

	resp = doJSON(t, r, http.MethodGet, "/api/v1/resume", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHandlerUploadRejections(t *testing.T) {
	r, _ := newTestRouter(t, newFakeAPI(), nil)

	resp := uploadFile(t, r, "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", errorBody(t, resp)["code"])

	png := []byte("\x89PNG\r\n\x1a\n" + strings.Repeat("x", 64))
	resp = uploadFile(t, r, "photo.png", png)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", errorBody(t, resp)["code"])

	resp = doJSON(t, r, http.MethodGet, "/api/v1/resume", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandlerSubmitAndPoll(t *testing.T) {
	api := newFakeAPI(processing(), completed())
	r, _ := newTestRouter(t, api, nil)

	require.Equal(t, http.StatusCreated, uploadFile(t, r, "resume.pdf", pdfBytes(4096)).Code)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/jobs", map[string]any{"jobTitle": "Data Engineer"})
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())
	job := decodeBody(t, resp)["job"].(map[string]any)
	assert.Equal(t, "job-1", job["id"])

	require.Eventually(t, func() bool {
		resp := doJSON(t, r, http.MethodGet, "/api/v1/jobs/current", nil)
		return decodeBody(t, resp)["status"] == string(StatusCompleted)
	}, 2*time.Second, 5*time.Millisecond)

	body := decodeBody(t, doJSON(t, r, http.MethodGet, "/api/v1/jobs/current", nil))
	result := body["result"].(map[string]any)
	artifacts := result["resumeArtifacts"].(map[string]any)
	assert.Equal(t, "https://cdn.example.com/resume.pdf", artifacts["pdfUrl"])
}

func TestHandlerSubmitValidation(t *testing.T) {
	api := newFakeAPI()
	r, _ := newTestRouter(t, api, nil)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/jobs", map[string]any{"jobTitle": "Data Engineer"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	errObj := errorBody(t, resp)
	assert.Equal(t, "validation_error", errObj["code"])
	assert.Equal(t, "Please upload a resume", errObj["message"])

	resp = doJSON(t, r, http.MethodPost, "/api/v1/jobs", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	optimize, _, _ := api.calls()
	assert.Zero(t, optimize)
}

func TestHandlerSubmitConflictAndCancel(t *testing.T) {
	api := newFakeAPI()
	r, _ := newTestRouter(t, api, nil)
	require.Equal(t, http.StatusCreated, uploadFile(t, r, "resume.pdf", pdfBytes(1024)).Code)

	req := map[string]any{"jobTitle": "Data Engineer"}
	require.Equal(t, http.StatusAccepted, doJSON(t, r, http.MethodPost, "/api/v1/jobs", req).Code)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/jobs", req)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "conflict", errorBody(t, resp)["code"])

	body := decodeBody(t, doJSON(t, r, http.MethodGet, "/api/v1/jobs/current", nil))
	assert.Equal(t, true, body["leaveWarning"])

	resp = doJSON(t, r, http.MethodDelete, "/api/v1/jobs/current", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body = decodeBody(t, resp)
	assert.Equal(t, string(StatusIdle), body["status"])
	assert.Equal(t, false, body["leaveWarning"])
}

func TestHandlerReportsParsingFailure(t *testing.T) {
	api := newFakeAPI(failed("document format is not supported"))
	r, _ := newTestRouter(t, api, nil)
	require.Equal(t, http.StatusCreated, uploadFile(t, r, "resume.pdf", pdfBytes(1024)).Code)
	require.Equal(t, http.StatusAccepted, doJSON(t, r, http.MethodPost, "/api/v1/jobs", map[string]any{"jobTitle": "Data Engineer"}).Code)

	var body map[string]any
	require.Eventually(t, func() bool {
		body = decodeBody(t, doJSON(t, r, http.MethodGet, "/api/v1/jobs/current", nil))
		return body["status"] == string(StatusFailed)
	}, 2*time.Second, 5*time.Millisecond)

	errObj := body["error"].(map[string]any)
	assert.Equal(t, string(KindParsing), errObj["kind"])
	assert.Equal(t, string(RouteUpload), errObj["recoveryRoute"])
}

func TestHandlerExtractJobURL(t *testing.T) {
	api := newFakeAPI()
	api.extract = tailorapi.JobDetails{JobTitle: "Data Engineer", Company: "Acme", Description: "Pipelines"}
	r, _ := newTestRouter(t, api, nil)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/job-url/extract", map[string]any{"jobUrl": "https://jobs.example.com/42"})
	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, "Data Engineer", body["jobTitle"])
	assert.Equal(t, "Acme", body["companyName"])

	resp = doJSON(t, r, http.MethodPost, "/api/v1/job-url/extract", map[string]any{"jobUrl": " "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandlerExtractJobURLFailure(t *testing.T) {
	api := newFakeAPI()
	api.extractErr = &tailorapi.APIError{Op: "extract", StatusCode: 502, Message: "HTTP 502: upstream unavailable"}
	r, _ := newTestRouter(t, api, nil)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/job-url/extract", map[string]any{"jobUrl": "https://jobs.example.com/42"})
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Equal(t, string(KindGeneric), errorBody(t, resp)["code"])
}

func TestHandlerEnterRoute(t *testing.T) {
	r, _ := newTestRouter(t, newFakeAPI(), nil)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/routes/results/enter", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, string(RouteUpload), decodeBody(t, resp)["redirect"])

	resp = doJSON(t, r, http.MethodPost, "/api/v1/routes/job-description/enter", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, string(RouteJobDetails), body["route"])
	assert.Equal(t, string(RouteUpload), body["redirect"])
}

func TestHandlerArtifacts(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		r, _ := newTestRouter(t, newFakeAPI(), nil)
		resp := doJSON(t, r, http.MethodPost, "/api/v1/jobs/current/artifacts/resume-pdf", nil)
		assert.Equal(t, http.StatusNotImplemented, resp.Code)
	})

	t.Run("no result yet", func(t *testing.T) {
		r, _ := newTestRouter(t, newFakeAPI(), &fakeDownloader{})
		resp := doJSON(t, r, http.MethodPost, "/api/v1/jobs/current/artifacts/resume-pdf", nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("unknown kind", func(t *testing.T) {
		r, _ := newTestRouter(t, newFakeAPI(), &fakeDownloader{})
		resp := doJSON(t, r, http.MethodPost, "/api/v1/jobs/current/artifacts/avatar", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("stores completed artifact", func(t *testing.T) {
		dl := &fakeDownloader{}
		r, c := newTestRouter(t, newFakeAPI(completed()), dl)
		require.Equal(t, http.StatusCreated, uploadFile(t, r, "resume.pdf", pdfBytes(1024)).Code)
		require.Equal(t, http.StatusAccepted, doJSON(t, r, http.MethodPost, "/api/v1/jobs", map[string]any{"jobTitle": "Data Engineer"}).Code)
		require.Equal(t, StatusCompleted, waitState(t, c).Status)

		resp := doJSON(t, r, http.MethodPost, "/api/v1/jobs/current/artifacts/resume-pdf", nil)
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
		body := decodeBody(t, resp)
		assert.Equal(t, "ns/job-1/resume-pdf.pdf", body["key"])
		assert.Equal(t, "job-1", dl.jobID)

		resp = doJSON(t, r, http.MethodPost, "/api/v1/jobs/current/artifacts/cover-letter-pdf", nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}
