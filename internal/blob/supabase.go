package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
)

// SupabaseStore keeps blobs in a Supabase Storage bucket.
type SupabaseStore struct {
	client   *storage_go.Client
	endpoint string
	key      string
	bucket   string
}

// NewSupabaseStore connects to the storage API of a Supabase project.
// projectURL is the project base URL; key is a service role key.
func NewSupabaseStore(projectURL, key, bucket string) (*SupabaseStore, error) {
	if projectURL == "" || key == "" {
		return nil, fmt.Errorf("%w: storage.supabase_url and storage.supabase_key are required", common.ErrMissingConfig)
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: storage.bucket is empty", common.ErrMissingConfig)
	}

	endpoint := strings.TrimRight(projectURL, "/")
	if !strings.HasSuffix(endpoint, "/storage/v1") {
		endpoint += "/storage/v1"
	}

	s := &SupabaseStore{endpoint: endpoint, key: key, bucket: bucket}
	s.client = s.newClient()
	return s, nil
}

// newClient builds a storage client. Uploads set per-request headers on the
// client itself, so each upload gets its own.
func (s *SupabaseStore) newClient() *storage_go.Client {
	return storage_go.NewClient(s.endpoint, s.key, map[string]string{"apikey": s.key})
}

// Put uploads data, overwriting any existing object.
func (s *SupabaseStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	upsert := true
	_, err := s.newClient().UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, classify(err))
	}
	return nil
}

// Get downloads an object.
func (s *SupabaseStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.client.DownloadFile(s.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, classify(err))
	}
	return data, nil
}

// SignedURL creates a download link valid for ttl.
func (s *SupabaseStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.client.CreateSignedUrl(s.bucket, key, int(ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, classify(err))
	}
	return resp.SignedURL, nil
}

// classify maps storage API failures onto the common error taxonomy.
func classify(err error) error {
	var storageErr *storage_go.StorageError
	if !errors.As(err, &storageErr) {
		return fmt.Errorf("%w: %w", common.ErrTransient, err)
	}

	// The storage API reports statusCode as a string, which the client does
	// not decode, so the message is often all there is.
	msg := strings.ToLower(storageErr.Message)
	switch {
	case storageErr.Status == http.StatusNotFound || strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %s", common.ErrNotFound, storageErr.Message)
	case storageErr.Status == http.StatusUnauthorized || storageErr.Status == http.StatusForbidden,
		strings.Contains(msg, "unauthorized"), strings.Contains(msg, "signature"), strings.Contains(msg, "jwt"):
		return fmt.Errorf("%w: %s", common.ErrPermissionDenied, storageErr.Message)
	case storageErr.Status == http.StatusTooManyRequests, strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %s", common.ErrRateLimit, storageErr.Message)
	case storageErr.Status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", common.ErrTransient, storageErr.Message)
	default:
		return err
	}
}
