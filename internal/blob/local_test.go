package blob

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
)

func TestLocalStorePutGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "", "")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "u1/job/source.csv", "text/csv", []byte("a,b\n")))
	data, err := store.Get(ctx, "u1/job/source.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	require.NoError(t, store.Put(ctx, "u1/job/source.csv", "text/csv", []byte("c,d\n")))
	data, err = store.Get(ctx, "u1/job/source.csv")
	require.NoError(t, err)
	assert.Equal(t, "c,d\n", string(data))

	_, err = store.Get(ctx, "u1/other")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestLocalStoreConfinesPaths(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "", "")
	require.NoError(t, err)

	p, err := store.resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, store.root))

	_, err = store.resolve("  ")
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestLocalStoreFileURL(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "", "")
	require.NoError(t, err)

	_, err = store.SignedURL(ctx, "u1/r1/errors.csv", time.Hour)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, store.Put(ctx, "u1/r1/errors.csv", "text/csv", []byte("x")))
	link, err := store.SignedURL(ctx, "u1/r1/errors.csv", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "file://"))
	assert.True(t, strings.HasSuffix(link, "/u1/r1/errors.csv"))
}

func TestLocalStoreSignedURL(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/", "secret")
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "u1/r1/errors.csv", "text/csv", []byte("x")))
	link, err := store.SignedURL(ctx, "u1/r1/errors.csv", time.Hour)
	require.NoError(t, err)

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/files/u1/r1/errors.csv", parsed.Path)

	q := parsed.Query()
	require.NoError(t, store.Verify("u1/r1/errors.csv", q.Get("expires"), q.Get("sig")))
	assert.ErrorIs(t, store.Verify("u1/r2/errors.csv", q.Get("expires"), q.Get("sig")), ErrInvalidSignature)
	assert.ErrorIs(t, store.Verify("u1/r1/errors.csv", q.Get("expires"), "00"), ErrInvalidSignature)

	now = now.Add(2 * time.Hour)
	assert.ErrorIs(t, store.Verify("u1/r1/errors.csv", q.Get("expires"), q.Get("sig")), ErrInvalidSignature)
}

func TestNewLocalStoreRequiresRoot(t *testing.T) {
	_, err := NewLocalStore("", "", "")
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
