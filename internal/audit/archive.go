package audit

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// GCSArchive stores canonical snapshot envelopes in a bucket, one object per
// query under snapshots/<user>/<yyyy>/<mm>/<query>.json.
// It assumes Application Default Credentials are configured.
type GCSArchive struct {
	client *storage.Client
	bucket string
}

// NewGCSArchive creates a storage client for bucket.
func NewGCSArchive(ctx context.Context, bucket string) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSArchive: create storage client: %w", err)
	}
	return &GCSArchive{client: client, bucket: bucket}, nil
}

// Close closes the storage client.
func (a *GCSArchive) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// ObjectName returns the object path a run's snapshot is archived under.
func ObjectName(run Run) string {
	ts := run.AssembledAt.UTC()
	return path.Join("snapshots", run.UserID, ts.Format("2006"), ts.Format("01"), run.QueryID+".json")
}

// PutSnapshot implements SnapshotArchive.
func (a *GCSArchive) PutSnapshot(ctx context.Context, run Run, canonical []byte) (string, error) {
	objectName := ObjectName(run)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{
		"query_id":        run.QueryID,
		"snapshot_digest": run.SnapshotDigest,
	}

	if _, err := w.Write(canonical); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("PutSnapshot: write object: %w", err)
	}
	// Close finalizes the upload
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("PutSnapshot: finalize upload: %w", err)
	}

	return "gs://" + a.bucket + "/" + objectName, nil
}

// FetchSnapshot downloads an archived envelope by its gs:// URI.
func (a *GCSArchive) FetchSnapshot(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := a.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchSnapshot: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchSnapshot: reading bytes: %w", err)
	}
	return data, nil
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object path.
func ParseGCSURI(gcsURI string) (string, string, error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

var _ SnapshotArchive = (*GCSArchive)(nil)
