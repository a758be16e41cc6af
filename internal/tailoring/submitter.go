package tailoring

import (
	"context"
	"time"

	"jobtailor/internal/shared/telemetry"
	"jobtailor/internal/tailorapi"
)

// TailorAPI is the remote tailoring service.
type TailorAPI interface {
	StatusFetcher
	Optimize(ctx context.Context, req tailorapi.OptimizeRequest) (tailorapi.OptimizeResponse, error)
	ExtractJobURL(ctx context.Context, jobURL string) (tailorapi.JobDetails, error)
}

// Submitter validates a request and issues exactly one optimize call.
type Submitter struct {
	api      TailorAPI
	recovery *Recovery
	now      func() time.Time
}

// NewSubmitter constructs a Submitter.
func NewSubmitter(api TailorAPI, recovery *Recovery) *Submitter {
	return &Submitter{api: api, recovery: recovery, now: time.Now}
}

// Submit validates req, resolves the job URL if one is set, persists the resume
// and submits the job. Failures are returned as *ClassifiedError.
func (s *Submitter) Submit(ctx context.Context, req TailoringRequest) (Job, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return Job{}, err
	}

	resolved, err := s.resolveJobURL(ctx, req)
	if err != nil {
		return Job{}, err
	}
	if err := resolved.validateResolved(); err != nil {
		return Job{}, err
	}

	if s.recovery != nil {
		if err := s.recovery.SaveResume(ctx, resolved.Resume); err != nil {
			telemetry.Error("tailoring.resume_persist_failed", map[string]any{"err": err.Error()})
		}
	}

	resp, err := s.api.Optimize(ctx, optimizeRequest(resolved))
	if err != nil {
		classified := ClassifyError(err)
		telemetry.Error("tailoring.submit_failed", map[string]any{"kind": classified.Kind(), "err": classified.Message()})
		return Job{}, classified
	}

	telemetry.Info("tailoring.submitted", map[string]any{
		"job_id":       resp.JobID,
		"cover_letter": resolved.GenerateCoverLetter,
		"output":       resolved.OutputFormat,
		"resume_bytes": resolved.Resume.SizeBytes,
	})
	return Job{ID: resp.JobID, Status: StatusProcessing, CreatedAt: s.now().UTC()}, nil
}

// ExtractJobURL resolves a posting URL into job details.
func (s *Submitter) ExtractJobURL(ctx context.Context, jobURL string) (tailorapi.JobDetails, error) {
	details, err := s.api.ExtractJobURL(ctx, jobURL)
	if err != nil {
		return tailorapi.JobDetails{}, ClassifyError(err)
	}
	return details, nil
}

// resolveJobURL overlays extracted details on the manual fields. If extraction
// fails the manual fields are used when they are sufficient on their own.
func (s *Submitter) resolveJobURL(ctx context.Context, req TailoringRequest) (TailoringRequest, error) {
	if req.JobURL == "" {
		return req, nil
	}
	details, err := s.api.ExtractJobURL(ctx, req.JobURL)
	if err != nil {
		telemetry.Warn("tailoring.job_url_extract_failed", map[string]any{"url": req.JobURL, "err": err.Error()})
		if req.JobTitle == "" || (req.GenerateCoverLetter && (req.CompanyName == "" || req.JobDescription == "")) {
			fields := "Job Title"
			if req.GenerateCoverLetter {
				fields = "Job Title, Company Name, and Job Description"
			}
			return req, validationError("Could not read the job posting URL. Please fill in the manual fields: " + fields + ".")
		}
		return req, nil
	}

	if details.Company != "" {
		req.CompanyName = details.Company
	}
	if details.Description != "" {
		req.JobDescription = details.Description
	}
	if req.JobTitle == "" && details.JobTitle != "" {
		req.JobTitle = details.JobTitle
	}
	return req, nil
}

func optimizeRequest(req TailoringRequest) tailorapi.OptimizeRequest {
	out := tailorapi.OptimizeRequest{
		Resume:         req.Resume.DataURL(),
		JobTitle:       req.JobTitle,
		CompanyName:    req.CompanyName,
		JobDescription: req.JobDescription,
		GenerateCV:     req.GenerateCoverLetter,
		OutputFormat:   string(req.OutputFormat),
		ResumeTemplate: req.ResumeTemplate,
	}
	if req.GenerateCoverLetter {
		format := string(req.OutputFormat)
		out.CoverLetterFormat = &format
	}
	return out
}
