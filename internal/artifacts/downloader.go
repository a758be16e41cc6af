package artifacts

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"jobtailor/internal/shared/storage/object"
	"jobtailor/internal/shared/telemetry"
	"jobtailor/internal/shared/util"
	"jobtailor/internal/tailoring"
)

// MaxArtifactBytes caps a single downloaded document.
const MaxArtifactBytes = 25 << 20

// Downloader copies generated documents from the service's links into an object store.
type Downloader struct {
	HTTP   *http.Client
	Store  object.ObjectStore
	prefix string
}

// New constructs a Downloader writing under a prefix derived from namespace.
func New(store object.ObjectStore, namespace string, timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Downloader{
		HTTP:   &http.Client{Timeout: timeout},
		Store:  store,
		prefix: util.HashKey(namespace),
	}
}

// StorageKey returns where kind is stored for jobID.
func (d *Downloader) StorageKey(jobID string, kind tailoring.ArtifactKind, ext string) string {
	return path.Join(d.prefix, jobID, string(kind)+ext)
}

// Download fetches the link for kind from result and stores the document.
func (d *Downloader) Download(ctx context.Context, jobID string, result tailoring.TailoringResult, kind tailoring.ArtifactKind) (tailoring.StoredArtifact, error) {
	url, ext, ok := result.ArtifactURL(kind)
	if !ok {
		return tailoring.StoredArtifact{}, fmt.Errorf("%s: %w", kind, tailoring.ErrNoResult)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return tailoring.StoredArtifact{}, tailoring.NewClassifiedError(tailoring.KindGeneric, "invalid artifact link")
	}
	resp, err := d.HTTP.Do(req)
	if err != nil {
		telemetry.Error("artifacts.fetch_failed", map[string]any{"job_id": jobID, "kind": kind, "err": err.Error()})
		return tailoring.StoredArtifact{}, tailoring.NewClassifiedError(tailoring.KindNetwork, "artifact download network error: "+err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		telemetry.Error("artifacts.fetch_failed", map[string]any{"job_id": jobID, "kind": kind, "status": resp.StatusCode})
		return tailoring.StoredArtifact{}, tailoring.NewClassifiedError(tailoring.KindNetwork, fmt.Sprintf("Artifact download failed: %d", resp.StatusCode))
	}

	body := io.Reader(io.LimitReader(resp.Body, MaxArtifactBytes+1))
	contentType := mediaType(resp.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		sniffed, r, err := object.Sniff(body)
		if err != nil {
			return tailoring.StoredArtifact{}, tailoring.NewClassifiedError(tailoring.KindNetwork, "artifact download network error: "+err.Error())
		}
		contentType, body = sniffed, r
	}

	key := d.StorageKey(jobID, kind, ext)
	size, err := d.Store.Put(ctx, key, contentType, body)
	if err != nil {
		return tailoring.StoredArtifact{}, fmt.Errorf("store artifact: %w", err)
	}
	if size > MaxArtifactBytes {
		return tailoring.StoredArtifact{}, tailoring.NewClassifiedError(tailoring.KindGeneric, "Artifact exceeds the download size limit")
	}

	telemetry.Info("artifacts.stored", map[string]any{"job_id": jobID, "kind": kind, "key": key, "size": size, "content_type": contentType})
	return tailoring.StoredArtifact{Kind: kind, Key: key, ContentType: contentType, SizeBytes: size}, nil
}

func mediaType(raw string) string {
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return mt
}
