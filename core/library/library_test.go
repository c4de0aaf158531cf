package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"MTCPlayer/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []*model.MediaItem {
	return []*model.MediaItem{
		{ID: "1", Title: "Neon Drive", Artist: "Nova", Type: model.MediaTypeMusic, Moods: []string{"Energetic"}},
		{ID: "2", Title: "Deep Talk", Artist: "Pod Crew", Type: model.MediaTypePodcast},
		{ID: "3", Title: "Ocean Film", Artist: "Blue", Type: model.MediaTypeVideo, Moods: []string{"Calm"}},
		{ID: "local-ab", Title: "Demo", Artist: "Local Artist", Type: model.MediaTypeMusic, Moods: []string{"Local"}},
	}
}

func ids(items []*model.MediaItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFilteredEmptyWithoutFilter(t *testing.T) {
	l := New(sample()...)
	assert.Nil(t, l.Filtered())
	l.SetFilter(Filter{Tab: TabAll})
	assert.Nil(t, l.Filtered())
	assert.Len(t, l.All(), 4)
}

func TestFilteredTabs(t *testing.T) {
	l := New(sample()...)

	l.SetFilter(Filter{Tab: TabAudio})
	assert.Equal(t, []string{"1", "2", "local-ab"}, ids(l.Filtered()))

	l.SetFilter(Filter{Tab: TabVideo})
	assert.Equal(t, []string{"3"}, ids(l.Filtered()))

	l.SetFilter(Filter{Tab: TabLocal})
	assert.Equal(t, []string{"local-ab"}, ids(l.Filtered()))
}

func TestFilteredQuery(t *testing.T) {
	l := New(sample()...)

	l.SetFilter(Filter{Query: "  NOVA "})
	assert.Equal(t, []string{"1"}, ids(l.Filtered()))

	l.SetFilter(Filter{Query: "calm"})
	assert.Equal(t, []string{"3"}, ids(l.Filtered()))

	l.SetFilter(Filter{Query: "talk", Tab: TabVideo})
	assert.Empty(t, l.Filtered())

	l.SetFilter(Filter{Artist: "Blue"})
	assert.Equal(t, []string{"3"}, ids(l.Filtered()))
}

func TestAddPrependsAndReplaces(t *testing.T) {
	l := New(sample()...)
	l.Add(&model.MediaItem{ID: "new"}, &model.MediaItem{ID: "2", Title: "Renamed"})

	all := l.All()
	assert.Equal(t, "new", all[0].ID)
	assert.Len(t, all, 5)
	it, ok := l.ByID("2")
	require.True(t, ok)
	assert.Equal(t, "Renamed", it.Title)
}

func TestPutAndRemove(t *testing.T) {
	l := New(sample()...)
	l.Put(&model.MediaItem{ID: "1", Title: "Neon Drive", PlayCount: 3})
	it, _ := l.ByID("1")
	assert.Equal(t, 3, it.PlayCount)

	assert.True(t, l.Remove("1"))
	assert.False(t, l.Remove("1"))
	_, ok := l.ByID("1")
	assert.False(t, ok)

	n := l.RemoveWhere(func(it *model.MediaItem) bool { return it.Type == model.MediaTypeMusic })
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, l.Len())
}

type stubStore struct {
	items []*model.MediaItem
	err   error
}

func (s stubStore) List(ctx context.Context, query string) ([]*model.MediaItem, error) {
	return s.items, s.err
}

func TestLoad(t *testing.T) {
	l := New(&model.MediaItem{ID: "old"})
	require.NoError(t, l.Load(context.Background(), stubStore{items: sample()}))
	assert.Equal(t, []string{"1", "2", "3", "local-ab"}, ids(l.All()))

	assert.Error(t, l.Load(context.Background(), stubStore{err: errors.New("db down")}))
	assert.Equal(t, 4, l.Len())
}

func TestParseFileName(t *testing.T) {
	cases := []struct {
		name, title, artist string
	}{
		{"Daft Punk - One More Time.mp3", "One More Time", "Daft Punk"},
		{"/music/a-b-c.flac", "b-c", "a"},
		{"clip.mp4", "clip", DefaultArtist},
		{"no-ext", "ext", "no"},
	}
	for _, tc := range cases {
		title, artist := ParseFileName(tc.name)
		assert.Equal(t, tc.title, title, tc.name)
		assert.Equal(t, tc.artist, artist, tc.name)
	}
}

func TestContentIDStable(t *testing.T) {
	a, err := ContentID(strings.NewReader("same bytes"))
	require.NoError(t, err)
	b, err := ContentID(strings.NewReader("same bytes"))
	require.NoError(t, err)
	c, err := ContentID(strings.NewReader("other"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, model.LocalIDPrefix))
	assert.Len(t, a, len(model.LocalIDPrefix)+2*idBytes)
}

func writeFile(t *testing.T, p, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
}

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "Nova - Neon.mp4")
	writeFile(t, p, "video")

	it, err := ImportFile(p, "file:///x", AlbumUploads)
	require.NoError(t, err)
	assert.Equal(t, "Neon", it.Title)
	assert.Equal(t, "Nova", it.Artist)
	assert.Equal(t, AlbumUploads, it.Album)
	assert.Equal(t, model.MediaTypeVideo, it.Type)
	assert.Empty(t, it.CoverURL)
	assert.Equal(t, []string{"Local"}, it.Moods)
	assert.True(t, it.IsLocal())

	_, err = ImportFile(filepath.Join(dir, "missing.mp3"), "", AlbumUploads)
	assert.Error(t, err)
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []string
}

func (r *recordingSaver) Upsert(ctx context.Context, items ...*model.MediaItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		r.saved = append(r.saved, it.Title)
	}
	return nil
}

type prefixUploader struct{}

func (prefixUploader) Upload(ctx context.Context, prefix, localPath string) (string, error) {
	return "minio://" + prefix + "/" + filepath.Base(localPath), nil
}

func TestScanRecursive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "A - One.mp3"), "one")
	writeFile(t, filepath.Join(dir, "sub", "Two.MP4"), "two")
	writeFile(t, filepath.Join(dir, "notes.txt"), "skip")

	lib := New()
	saver := &recordingSaver{}
	items, err := NewScanner(lib, dir, WithSaver(saver), WithWorkers(2)).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 2, lib.Len())
	assert.ElementsMatch(t, []string{"One", "Two"}, saver.saved)

	for _, it := range items {
		assert.Equal(t, AlbumScan, it.Album)
		assert.True(t, strings.HasPrefix(it.MediaURL, "file://"))
	}
}

func TestScanUploads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song.ogg"), "x")
	writeFile(t, filepath.Join(dir, "film.webm"), "y")

	lib := New()
	_, err := NewScanner(lib, dir, WithUploader(prefixUploader{})).Scan(context.Background())
	require.NoError(t, err)

	var refs []string
	for _, it := range lib.All() {
		refs = append(refs, it.MediaURL)
	}
	assert.ElementsMatch(t, []string{"minio://audio/song.ogg", "minio://video/film.webm"}, refs)
}

func TestScanMissingRoot(t *testing.T) {
	_, err := NewScanner(New(), filepath.Join(t.TempDir(), "nope")).Scan(context.Background())
	assert.Error(t, err)
}

func TestWatchImportsAndForgets(t *testing.T) {
	dir := t.TempDir()
	lib := New()
	s := NewScanner(lib, dir, WithSettle(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	// 等待监听器就绪
	time.Sleep(100 * time.Millisecond)

	p := filepath.Join(dir, "Nova - Live.wav")
	writeFile(t, p, "live")
	require.Eventually(t, func() bool { return lib.Len() == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Live", lib.All()[0].Title)

	require.NoError(t, os.Remove(p))
	require.Eventually(t, func() bool { return lib.Len() == 0 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
