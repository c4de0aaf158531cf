package storage

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"MTCPlayer/config"
	"MTCPlayer/core/playerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineResolver(t *testing.T) *Resolver {
	t.Helper()
	client, err := NewMinioClient(&config.Config{
		MinioEndpoint:  "127.0.0.1:9000",
		MinioAccessKey: "access",
		MinioSecretKey: "secret-key",
		MinioRegion:    "us-east-1",
	})
	require.NoError(t, err)
	return NewResolver(client, "media")
}

func TestResolvePassesPlayableURLs(t *testing.T) {
	r := NewResolver(nil, "")
	for _, ref := range []string{"https://cdn/x.mp3", "http://cdn/x.mp3", "file:///m/x.mp3", "blob:abc"} {
		got, err := r.Resolve(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, ref, got)
	}
	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, playerr.ErrValidation)
}

func TestResolveLocalPath(t *testing.T) {
	dir := t.TempDir()
	got, err := NewResolver(nil, "").Resolve(context.Background(), filepath.Join(dir, "a b.mp3"))
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)
	assert.Equal(t, filepath.ToSlash(filepath.Join(dir, "a b.mp3")), u.Path)
}

func TestResolveObjectPresigns(t *testing.T) {
	r := offlineResolver(t)
	got, err := r.Resolve(context.Background(), ObjectRef("audio/a.mp3"))
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/media/audio/a.mp3", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
}

func TestObjectStorageNotConfigured(t *testing.T) {
	r := NewResolver(nil, "")
	_, err := r.Resolve(context.Background(), "minio://a.mp3")
	assert.ErrorIs(t, err, playerr.ErrConnectivity)
	_, err = r.Upload(context.Background(), "audio", "/tmp/a.mp3")
	assert.ErrorIs(t, err, playerr.ErrConnectivity)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "minio://audio/a.mp3", ObjectRef("/audio/a.mp3"))
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "audio", InferKind("x.FLAC"))
	assert.Equal(t, "video", InferKind("clip.webm"))
	assert.Equal(t, "other", InferKind("README"))
	assert.True(t, strings.HasPrefix(InferKind("a.png"), "image"))
}
