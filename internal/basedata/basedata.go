// Package basedata fetches the read-only base dataset the overlay layers
// on. The fetch happens once at store startup; a failed fetch is fatal by
// design, there is no offline fallback for the base document.
package basedata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Fetcher is the fetch collaborator contract.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FileFetcher reads the base dataset from a local path.
type FileFetcher struct {
	Path string
}

func (f FileFetcher) Fetch(context.Context) ([]byte, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read base dataset: %w", err)
	}
	return raw, nil
}

// HTTPFetcher downloads the base dataset from a URL.
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build base dataset request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch base dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch base dataset: unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read base dataset response: %w", err)
	}
	return raw, nil
}

// S3Fetcher pulls the base dataset from an S3-compatible object store.
type S3Fetcher struct {
	client *minio.Client
	bucket string
	object string
}

// NewS3Fetcher builds a minio client for the given endpoint.
func NewS3Fetcher(endpoint, accessKey, secretKey, bucket, object string, useSSL bool) (*S3Fetcher, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3Fetcher{client: client, bucket: bucket, object: object}, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	obj, err := f.client.GetObject(ctx, f.bucket, f.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch base dataset from s3: %w", err)
	}
	defer obj.Close()
	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read base dataset object: %w", err)
	}
	return raw, nil
}

// StaticFetcher serves a fixed payload; tests use it.
type StaticFetcher struct {
	Payload []byte
	Err     error
}

func (f StaticFetcher) Fetch(context.Context) ([]byte, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Payload, nil
}
