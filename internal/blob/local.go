// Package blob stores uploaded source files and generated artifacts.
package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
)

// ErrInvalidSignature is returned for tampered or expired local URLs.
var ErrInvalidSignature = errors.New("invalid or expired signature")

// LocalStore keeps blobs on the local filesystem. When BaseURL is set,
// SignedURL returns HMAC signed links served by the HTTP API; otherwise it
// returns file URLs.
type LocalStore struct {
	now     func() time.Time
	root    string
	baseURL string
	secret  []byte
}

// NewLocalStore creates a store rooted at root.
func NewLocalStore(root, baseURL, secret string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: storage.path is empty", common.ErrMissingConfig)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{
		root:    abs,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

// resolve maps a blob key to a file path inside root.
func (s *LocalStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", fmt.Errorf("%w: empty blob path", common.ErrInvalidRequest)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Put writes data under key, replacing any existing blob.
func (s *LocalStore) Put(ctx context.Context, key, _ string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to move blob into place: %w", err)
	}
	return nil
}

// Get reads the blob stored under key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) //nolint:gosec // path is confined to root by resolve
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// SignedURL returns a time limited link to key.
func (s *LocalStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	p, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("blob %s: %w", key, common.ErrNotFound)
		}
		return "", err
	}

	if s.baseURL == "" || len(s.secret) == 0 {
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String(), nil
	}

	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(clean, expires))
	return fmt.Sprintf("%s/files/%s?%s", s.baseURL, clean, q.Encode()), nil
}

// Verify checks a signature produced by SignedURL.
func (s *LocalStore) Verify(key, expires, sig string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || len(s.secret) == 0 {
		return ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return ErrInvalidSignature
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if !hmac.Equal([]byte(s.sign(clean, exp)), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

func (s *LocalStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
