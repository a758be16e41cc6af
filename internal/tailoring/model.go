package tailoring

import "time"

// OutputFormat selects which document renditions the service produces.
type OutputFormat string

const (
	FormatPDF  OutputFormat = "pdf"
	FormatWord OutputFormat = "word"
	FormatDual OutputFormat = "dual"
)

// JobStatus is the lifecycle state of one tailoring attempt.
type JobStatus string

const (
	StatusIdle       JobStatus = "IDLE"
	StatusSubmitting JobStatus = "SUBMITTING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

func (s JobStatus) rank() int {
	switch s {
	case StatusSubmitting:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return 0
	}
}

// InFlight reports whether the attempt is still waiting on the remote service.
func (s JobStatus) InFlight() bool {
	return s == StatusSubmitting || s == StatusProcessing
}

// Terminal reports whether the attempt has finished.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TailoringRequest is one submission of a resume against a target job.
type TailoringRequest struct {
	Resume              *ResumePayload `json:"-"`
	JobTitle            string         `json:"jobTitle" validate:"max=100"`
	JobURL              string         `json:"jobUrl,omitempty" validate:"omitempty,url"`
	CompanyName         string         `json:"companyName,omitempty" validate:"required_if=GenerateCoverLetter true"`
	JobDescription      string         `json:"jobDescription,omitempty"`
	GenerateCoverLetter bool           `json:"generateCoverLetter"`
	OutputFormat        OutputFormat   `json:"outputFormat,omitempty" validate:"omitempty,oneof=pdf word dual"`
	ResumeTemplate      string         `json:"resumeTemplate,omitempty"`
}

// Job is a remote tailoring job accepted by the service.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Artifacts holds download links for one generated document.
type Artifacts struct {
	PdfURL  string `json:"pdfUrl,omitempty"`
	WordURL string `json:"wordUrl,omitempty"`
}

// Empty reports whether no rendition is available.
func (a Artifacts) Empty() bool {
	return a.PdfURL == "" && a.WordURL == ""
}

// ScoreBreakdown is the applicant-tracking compatibility score.
type ScoreBreakdown struct {
	Overall   float64         `json:"overall"`
	Rating    string          `json:"rating"`
	Breakdown ScoreDimensions `json:"breakdown"`
}

// ScoreDimensions holds the per-dimension scores.
type ScoreDimensions struct {
	Keywords   float64 `json:"keywords"`
	Formatting float64 `json:"formatting"`
	Skills     float64 `json:"skills"`
	Experience float64 `json:"experience"`
	Contact    float64 `json:"contact"`
}

// TailoringResult is the normalized outcome of a completed job.
type TailoringResult struct {
	ResumeArtifacts      Artifacts       `json:"resumeArtifacts"`
	CoverLetterArtifacts *Artifacts      `json:"coverLetterArtifacts,omitempty"`
	PreviewText          string          `json:"previewText"`
	OriginalText         string          `json:"originalText,omitempty"`
	CoverLetterText      string          `json:"coverLetterText,omitempty"`
	ATSScore             *ScoreBreakdown `json:"atsScore,omitempty"`
	FileType             string          `json:"fileType,omitempty"`
}

// JobState is the single view of the current attempt.
type JobState struct {
	Status       JobStatus        `json:"status"`
	Job          *Job             `json:"job,omitempty"`
	Message      string           `json:"message,omitempty"`
	Result       *TailoringResult `json:"result,omitempty"`
	Error        *ClassifiedError `json:"error,omitempty"`
	LeaveWarning bool             `json:"leaveWarning"`
}
