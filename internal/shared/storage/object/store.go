package object

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Put(ctx context.Context, storageKey string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// Sniff peeks at the head of r to detect its content type and returns a reader
// that still yields the full stream.
func Sniff(r io.Reader) (string, io.Reader, error) {
	var head [3072]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, fmt.Errorf("read sniff: %w", err)
	}
	mtype := mimetype.Detect(head[:n])
	return mtype.String(), io.MultiReader(bytes.NewReader(head[:n]), r), nil
}
