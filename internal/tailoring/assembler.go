package tailoring

import (
	"strings"

	"jobtailor/internal/tailorapi"
)

// PreviewUnavailable replaces the preview when the service sends none.
const PreviewUnavailable = "Preview not available for this format.\n\n" +
	"Your tailored resume has been generated successfully. " +
	"Download the document to view it in a PDF reader or Microsoft Word."

const defaultFileType = "docx"

// Assemble normalizes a COMPLETED status payload into a TailoringResult.
// Cover letter fields are only read when the request asked for one.
func Assemble(raw tailorapi.StatusResponse, generateCoverLetter bool) TailoringResult {
	fileType := strings.ToLower(strings.TrimSpace(raw.FileType))
	if fileType == "" {
		fileType = defaultFileType
	}

	result := TailoringResult{
		ResumeArtifacts: withFallback(Artifacts{PdfURL: raw.PdfURL, WordURL: raw.WordURL}, raw.OptimizedResumeURL, fileType),
		PreviewText:     raw.PreviewText,
		OriginalText:    raw.OriginalText,
		FileType:        fileType,
	}
	if strings.TrimSpace(result.PreviewText) == "" {
		result.PreviewText = PreviewUnavailable
	}

	if generateCoverLetter {
		letter := withFallback(Artifacts{PdfURL: raw.CoverLetterPdfURL, WordURL: raw.CoverLetterWordURL}, raw.CoverLetterURL, fileType)
		if !letter.Empty() {
			result.CoverLetterArtifacts = &letter
		}
		result.CoverLetterText = raw.CoverLetterText
	}

	if raw.ATSScore != nil {
		result.ATSScore = &ScoreBreakdown{
			Overall: raw.ATSScore.Overall,
			Rating:  raw.ATSScore.Rating,
			Breakdown: ScoreDimensions{
				Keywords:   raw.ATSScore.Breakdown.Keywords,
				Formatting: raw.ATSScore.Breakdown.Formatting,
				Skills:     raw.ATSScore.Breakdown.Skills,
				Experience: raw.ATSScore.Breakdown.Experience,
				Contact:    raw.ATSScore.Breakdown.Contact,
			},
		}
	}
	return result
}

// withFallback fills the rendition matching fileType from a single legacy URL.
func withFallback(a Artifacts, legacyURL, fileType string) Artifacts {
	if legacyURL == "" {
		return a
	}
	if fileType == "pdf" {
		if a.PdfURL == "" {
			a.PdfURL = legacyURL
		}
		return a
	}
	if a.WordURL == "" {
		a.WordURL = legacyURL
	}
	return a
}
