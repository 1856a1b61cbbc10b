// Package archive stores raw webhook envelopes in Google Cloud Storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// writerOpener opens a writer for a new object in the archive bucket.
type writerOpener func(ctx context.Context, objectName string) io.WriteCloser

// GCS writes each envelope to its own object under
// prefix/YYYY/MM/DD/<uuid>.json.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string

	open  writerOpener
	now   func() time.Time
	newID func() string
}

// NewGCS creates a storage client using Application Default Credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive.NewGCS: create storage client: %w", err)
	}

	a := newGCS(bucket, prefix, func(ctx context.Context, objectName string) io.WriteCloser {
		w := client.Bucket(bucket).Object(objectName).NewWriter(ctx)
		w.ContentType = "application/json"
		return w
	})
	a.client = client
	return a, nil
}

func newGCS(bucket, prefix string, open writerOpener) *GCS {
	return &GCS{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		open:   open,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Close closes the storage client.
func (a *GCS) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// ObjectName returns the object name for an envelope received at t.
func (a *GCS) ObjectName(t time.Time, id string) string {
	t = t.UTC()
	return path.Join(a.prefix, t.Format("2006"), t.Format("01"), t.Format("02"), id+".json")
}

// Archive uploads body and returns its gs:// URI.
func (a *GCS) Archive(ctx context.Context, body []byte) (string, error) {
	name := a.ObjectName(a.now(), a.newID())

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w := a.open(ctx, name)
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("archive.Archive: copy to writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("archive.Archive: finalize upload: %w", err)
	}
	return "gs://" + a.bucket + "/" + name, nil
}

// Nop discards envelopes. The webhook handler falls back to it when no
// bucket is configured.
type Nop struct{}

// Archive implements the archiver contract.
func (Nop) Archive(context.Context, []byte) (string, error) { return "", nil }
