package tailoring

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"jobtailor/internal/shared/server/middleware"
	"jobtailor/internal/shared/server/respond"
)

const maxUploadRequestBytes = MaxResumeBytes + 1<<20

// Handler exposes the coordinator over HTTP for a browser front end.
type Handler struct {
	Coord     *Coordinator
	Artifacts ArtifactDownloader
}

// NewHandler constructs a Handler. artifacts may be nil, which disables downloads.
func NewHandler(coord *Coordinator, artifacts ArtifactDownloader) *Handler {
	return &Handler{Coord: coord, Artifacts: artifacts}
}

// RegisterRoutes attaches tailoring routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/resume", h.uploadResume)
	rg.GET("/resume", h.currentResume)
	rg.POST("/routes/:route/enter", h.enterRoute)
	rg.POST("/job-url/extract", h.extractJobURL)
	rg.POST("/jobs", h.submit)
	rg.GET("/jobs/current", h.current)
	rg.DELETE("/jobs/current", h.cancel)
	rg.POST("/jobs/current/artifacts/:kind", h.downloadArtifact)
}

func (h *Handler) uploadResume(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadRequestBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", "File size exceeds 5MB limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if fileHeader.Size > MaxResumeBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", "File size exceeds 5MB limit", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, MaxResumeBytes+1))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	lastModified := time.Now()
	if raw := strings.TrimSpace(c.PostForm("lastModified")); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			lastModified = time.UnixMilli(ms)
		}
	}

	payload, err := NewResumePayload(fileHeader.Filename, fileHeader.Header.Get("Content-Type"), content, lastModified)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Coord.AcceptResume(c.Request.Context(), payload); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store resume", nil)
		return
	}
	respond.JSON(c, http.StatusCreated, payload.Info())
}

func (h *Handler) currentResume(c *gin.Context) {
	resume := h.Coord.Resume()
	if resume == nil {
		respond.Error(c, http.StatusNotFound, "not_found", "no resume uploaded", nil)
		return
	}
	respond.OK(c, resume.Info())
}

func (h *Handler) enterRoute(c *gin.Context) {
	route := ParseRoute(c.Param("route"))
	view, err := h.Coord.EnterRoute(c.Request.Context(), route)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to restore session", nil)
		return
	}
	respond.OK(c, view)
}

type extractRequest struct {
	JobURL string `json:"jobUrl"`
}

func (h *Handler) extractJobURL(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.JobURL = strings.TrimSpace(req.JobURL)
	if req.JobURL == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "jobUrl is required", nil)
		return
	}

	details, err := h.Coord.ExtractJobURL(c.Request.Context(), req.JobURL)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{
		"jobTitle":    details.JobTitle,
		"companyName": details.Company,
		"description": details.Description,
	})
}

func (h *Handler) submit(c *gin.Context) {
	var req TailoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	job, err := h.Coord.Submit(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(middleware.JobIDKey, job.ID)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"job":   job,
		"state": h.Coord.State(),
	})
}

func (h *Handler) current(c *gin.Context) {
	respond.OK(c, h.Coord.State())
}

func (h *Handler) cancel(c *gin.Context) {
	h.Coord.Cancel()
	respond.OK(c, h.Coord.State())
}

func (h *Handler) downloadArtifact(c *gin.Context) {
	if h.Artifacts == nil {
		respond.Error(c, http.StatusNotImplemented, "not_configured", "artifact storage is not configured", nil)
		return
	}
	kind, err := ParseArtifactKind(c.Param("kind"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	state := h.Coord.State()
	if state.Status != StatusCompleted || state.Result == nil {
		respond.Error(c, http.StatusNotFound, "not_found", ErrNoResult.Error(), nil)
		return
	}
	jobID := "restored"
	if state.Job != nil {
		jobID = state.Job.ID
	}

	stored, err := h.Artifacts.Download(c.Request.Context(), jobID, *state.Result, kind)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusCreated, stored)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrJobInProgress), errors.Is(err, ErrAttemptDiscarded):
		respond.Error(c, http.StatusConflict, "conflict", err.Error(), nil)
		return
	case errors.Is(err, ErrNoResult):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
		return
	}

	var classified *ClassifiedError
	if !errors.As(err, &classified) {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "unexpected error", nil)
		return
	}
	details := map[string]string{}
	if route := classified.RecoveryRoute(); route != RouteNone {
		details["recoveryRoute"] = string(route)
	}
	var status int
	switch classified.Kind() {
	case KindValidation:
		status = http.StatusBadRequest
	case KindParsing:
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusBadGateway
	}
	if len(details) == 0 {
		respond.Error(c, status, string(classified.Kind()), classified.Message(), nil)
		return
	}
	respond.Error(c, status, string(classified.Kind()), classified.Message(), details)
}
