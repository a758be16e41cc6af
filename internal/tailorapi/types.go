package tailorapi

// Remote job states reported by the status endpoint.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// OptimizeRequest is the body of POST /optimize.
type OptimizeRequest struct {
	Resume            string  `json:"resume"`
	JobTitle          string  `json:"jobTitle"`
	CompanyName       string  `json:"companyName"`
	JobDescription    string  `json:"jobDescription"`
	GenerateCV        bool    `json:"generateCV"`
	OutputFormat      string  `json:"outputFormat"`
	CoverLetterFormat *string `json:"coverLetterFormat"`
	ResumeTemplate    string  `json:"resumeTemplate"`
}

// OptimizeResponse is the accepted-job answer of POST /optimize.
type OptimizeResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status             string    `json:"status"`
	Message            string    `json:"message"`
	PdfURL             string    `json:"pdfUrl"`
	WordURL            string    `json:"wordUrl"`
	OptimizedResumeURL string    `json:"optimizedResumeUrl"`
	FileType           string    `json:"fileType"`
	ContentType        string    `json:"contentType"`
	DownloadFilename   string    `json:"downloadFilename"`
	CoverLetterURL     string    `json:"coverLetterUrl"`
	CoverLetterPdfURL  string    `json:"coverLetterPdfUrl"`
	CoverLetterWordURL string    `json:"coverLetterWordUrl"`
	CoverLetterText    string    `json:"coverLetterText"`
	ATSScore           *ATSScore `json:"atsScore"`
	PreviewText        string    `json:"previewText"`
	OriginalText       string    `json:"originalText"`
}

// ATSScore is the applicant-tracking compatibility score attached to a completed job.
type ATSScore struct {
	Overall   float64      `json:"overall"`
	Rating    string       `json:"rating"`
	Breakdown ATSBreakdown `json:"breakdown"`
}

// ATSBreakdown holds the per-dimension scores.
type ATSBreakdown struct {
	Keywords   float64 `json:"keywords"`
	Formatting float64 `json:"formatting"`
	Skills     float64 `json:"skills"`
	Experience float64 `json:"experience"`
	Contact    float64 `json:"contact"`
}

// JobDetails is what the extraction endpoint recovered from a job posting URL.
type JobDetails struct {
	JobTitle    string `json:"job_title"`
	Company     string `json:"company"`
	Description string `json:"description"`
}

type extractRequest struct {
	JobURL string `json:"jobUrl"`
}

type extractResponse struct {
	Success bool       `json:"success"`
	Data    JobDetails `json:"data"`
	Error   string     `json:"error"`
	Message string     `json:"message"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
