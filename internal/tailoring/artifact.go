package tailoring

import (
	"context"
	"fmt"
)

// ArtifactKind names one downloadable rendition.
type ArtifactKind string

const (
	ArtifactResumePDF       ArtifactKind = "resume-pdf"
	ArtifactResumeWord      ArtifactKind = "resume-word"
	ArtifactCoverLetterPDF  ArtifactKind = "cover-letter-pdf"
	ArtifactCoverLetterWord ArtifactKind = "cover-letter-word"
)

// ParseArtifactKind validates a kind string.
func ParseArtifactKind(raw string) (ArtifactKind, error) {
	switch k := ArtifactKind(raw); k {
	case ArtifactResumePDF, ArtifactResumeWord, ArtifactCoverLetterPDF, ArtifactCoverLetterWord:
		return k, nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", raw)
	}
}

// ArtifactURL returns the download link and file extension for kind.
func (r TailoringResult) ArtifactURL(kind ArtifactKind) (string, string, bool) {
	var url, ext string
	switch kind {
	case ArtifactResumePDF:
		url, ext = r.ResumeArtifacts.PdfURL, ".pdf"
	case ArtifactResumeWord:
		url, ext = r.ResumeArtifacts.WordURL, ".docx"
	case ArtifactCoverLetterPDF:
		if r.CoverLetterArtifacts != nil {
			url, ext = r.CoverLetterArtifacts.PdfURL, ".pdf"
		}
	case ArtifactCoverLetterWord:
		if r.CoverLetterArtifacts != nil {
			url, ext = r.CoverLetterArtifacts.WordURL, ".docx"
		}
	}
	return url, ext, url != ""
}

// StoredArtifact is a downloaded artifact saved in the object store.
type StoredArtifact struct {
	Kind        ArtifactKind `json:"kind"`
	Key         string       `json:"key"`
	ContentType string       `json:"contentType"`
	SizeBytes   int64        `json:"sizeBytes"`
}

// ArtifactDownloader fetches an artifact link and stores the document.
type ArtifactDownloader interface {
	Download(ctx context.Context, jobID string, result TailoringResult, kind ArtifactKind) (StoredArtifact, error)
}
