package tailoring

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"jobtailor/internal/shared/util"
)

// MaxResumeBytes is the largest resume the service accepts.
const MaxResumeBytes = 5 * 1024 * 1024

const (
	mimePDF  = "application/pdf"
	mimeDOC  = "application/msword"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeText = "text/plain"
)

var allowedExtensions = map[string]string{
	".pdf":  mimePDF,
	".doc":  mimeDOC,
	".docx": mimeDOCX,
	".txt":  mimeText,
}

// ResumePayload is an accepted resume file held in memory.
type ResumePayload struct {
	Content      []byte
	MIMEType     string
	Filename     string
	SizeBytes    int64
	LastModified time.Time
}

// ResumeInfo describes a payload without its content.
type ResumeInfo struct {
	Filename     string    `json:"name"`
	MIMEType     string    `json:"type"`
	SizeBytes    int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// NewResumePayload validates an uploaded file. An empty or generic mimeType is
// replaced by content detection, falling back to the file extension.
func NewResumePayload(filename, mimeType string, content []byte, lastModified time.Time) (*ResumePayload, error) {
	if len(content) == 0 {
		return nil, validationError("Resume file is empty")
	}
	if len(content) > MaxResumeBytes {
		return nil, validationError("File size exceeds 5MB limit")
	}
	name, err := util.SanitizeFileName(filename)
	if err != nil {
		return nil, validationError("Resume file name is invalid")
	}

	resolved := resolveMIMEType(name, mimeType, content)
	if resolved == "" {
		return nil, validationError("Unsupported file type. Please upload a PDF, DOC, DOCX or TXT file")
	}
	if lastModified.IsZero() {
		lastModified = time.Now()
	}

	return &ResumePayload{
		Content:      content,
		MIMEType:     resolved,
		Filename:     name,
		SizeBytes:    int64(len(content)),
		LastModified: lastModified.Truncate(time.Millisecond),
	}, nil
}

func resolveMIMEType(filename, declared string, content []byte) string {
	if mt := baseMIMEType(declared); allowedMIMEType(mt) {
		return mt
	}
	detected := mimetype.Detect(content)
	for m := detected; m != nil; m = m.Parent() {
		if mt := baseMIMEType(m.String()); allowedMIMEType(mt) {
			return mt
		}
	}
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

func baseMIMEType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return mt
}

func allowedMIMEType(mt string) bool {
	switch mt {
	case mimePDF, mimeDOC, mimeDOCX, mimeText:
		return true
	default:
		return false
	}
}

// Info returns the payload metadata.
func (p *ResumePayload) Info() ResumeInfo {
	return ResumeInfo{
		Filename:     p.Filename,
		MIMEType:     p.MIMEType,
		SizeBytes:    p.SizeBytes,
		LastModified: p.LastModified,
	}
}

// DataURL encodes the content as a base64 data URL.
func (p *ResumePayload) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Content)
}

// DecodeDataURL splits a base64 data URL into its media type and bytes.
func DecodeDataURL(raw string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data url missing payload")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return mediaType, data, nil
}

type resumeSnapshot struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
	Content      string `json:"content"`
}

// MarshalSnapshot returns the persisted form of the payload.
func (p *ResumePayload) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(resumeSnapshot{
		Name:         p.Filename,
		Type:         p.MIMEType,
		Size:         p.SizeBytes,
		LastModified: p.LastModified.UnixMilli(),
		Content:      p.DataURL(),
	})
}

// UnmarshalResumeSnapshot restores a payload written by MarshalSnapshot.
func UnmarshalResumeSnapshot(data []byte) (*ResumePayload, error) {
	var snap resumeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode resume snapshot: %w", err)
	}
	mediaType, content, err := DecodeDataURL(snap.Content)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) != snap.Size {
		return nil, fmt.Errorf("resume snapshot size mismatch: header %d, content %d", snap.Size, len(content))
	}
	mimeType := snap.Type
	if mimeType == "" {
		mimeType = mediaType
	}
	if snap.Name == "" {
		return nil, fmt.Errorf("resume snapshot missing name")
	}
	return &ResumePayload{
		Content:      content,
		MIMEType:     mimeType,
		Filename:     snap.Name,
		SizeBytes:    snap.Size,
		LastModified: time.UnixMilli(snap.LastModified),
	}, nil
}
