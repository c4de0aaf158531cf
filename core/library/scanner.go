package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"MTCPlayer/logger"
	"MTCPlayer/model"
	"MTCPlayer/storage"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultSettle = 100 * time.Millisecond
	checkInterval = 50 * time.Millisecond
)

// Uploader copies a local file to object storage and returns the
// reference to play it from.
type Uploader interface {
	Upload(ctx context.Context, prefix, localPath string) (string, error)
}

// Saver persists imported items.
type Saver interface {
	Upsert(ctx context.Context, items ...*model.MediaItem) error
}

// Scanner imports the media files under a directory tree into a Library.
type Scanner struct {
	lib      *Library
	root     string
	album    string
	uploader Uploader
	saver    Saver
	workers  int
	settle   time.Duration
}

type ScanOption func(*Scanner)

// WithUploader stores imported files in object storage instead of
// referencing them by file URL.
func WithUploader(u Uploader) ScanOption { return func(s *Scanner) { s.uploader = u } }

func WithSaver(sv Saver) ScanOption { return func(s *Scanner) { s.saver = sv } }

func WithWorkers(n int) ScanOption {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithSettle sets how long a file must stay unchanged before Watch imports it.
func WithSettle(d time.Duration) ScanOption { return func(s *Scanner) { s.settle = d } }

func WithAlbum(album string) ScanOption { return func(s *Scanner) { s.album = album } }

func NewScanner(lib *Library, root string, opts ...ScanOption) *Scanner {
	s := &Scanner{
		lib:     lib,
		root:    root,
		album:   AlbumScan,
		workers: runtime.NumCPU(),
		settle:  defaultSettle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks the tree and imports every audio and video file. Files that
// fail to import are logged and skipped.
func (s *Scanner) Scan(ctx context.Context) ([]*model.MediaItem, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsMedia(d.Name()) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	sort.Strings(paths)

	// Worker Pool 并行导入
	results := make([]*model.MediaItem, len(paths))
	tasks := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				item, err := s.importOne(ctx, paths[idx])
				if err != nil {
					logger.Warn("import failed", logger.String("path", paths[idx]), logger.ErrorField(err))
					continue
				}
				results[idx] = item
			}
		}()
	}
feed:
	for i := range paths {
		select {
		case tasks <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(tasks)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]*model.MediaItem, 0, len(results))
	for _, it := range results {
		if it != nil {
			items = append(items, it)
		}
	}
	if err := s.commit(ctx, items...); err != nil {
		return items, err
	}
	logger.Info("library scan complete",
		logger.String("root", s.root),
		logger.Int("found", len(paths)),
		logger.Int("imported", len(items)))
	return items, nil
}

// Watch imports media files created under the tree until ctx is done, and
// drops items whose file is removed.
func (s *Scanner) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}

	// 文件稳定性检查的延迟队列
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Op&fsnotify.Create != 0 && isDir(event.Name):
				if err := watcher.Add(event.Name); err != nil {
					logger.Warn("watch dir failed", logger.String("dir", event.Name), logger.ErrorField(err))
				}
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0 && IsMedia(event.Name):
				pending[event.Name] = time.Now()
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && IsMedia(event.Name):
				delete(pending, event.Name)
				s.forget(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logger.ErrorField(err))

		case <-ticker.C:
			now := time.Now()
			for p, last := range pending {
				if now.Sub(last) < s.settle {
					continue // 文件可能还在写入
				}
				delete(pending, p)
				item, err := s.importOne(ctx, p)
				if err != nil {
					logger.Warn("import failed", logger.String("path", p), logger.ErrorField(err))
					continue
				}
				if err := s.commit(ctx, item); err != nil {
					logger.Warn("save imported item failed", logger.String("id", item.ID), logger.ErrorField(err))
				}
				logger.Info("imported", logger.String("path", p), logger.String("id", item.ID))
			}
		}
	}
}

func (s *Scanner) importOne(ctx context.Context, p string) (*model.MediaItem, error) {
	var ref string
	var err error
	if s.uploader != nil {
		prefix := "audio"
		if IsVideo(p) {
			prefix = "video"
		}
		ref, err = s.uploader.Upload(ctx, prefix, p)
	} else {
		ref, err = storage.FileURL(p)
	}
	if err != nil {
		return nil, err
	}
	return ImportFile(p, ref, s.album)
}

func (s *Scanner) commit(ctx context.Context, items ...*model.MediaItem) error {
	if len(items) == 0 {
		return nil
	}
	s.lib.Add(items...)
	if s.saver == nil {
		return nil
	}
	return s.saver.Upsert(ctx, items...)
}

// forget drops library items backed by the local file at p. Uploaded
// copies stay.
func (s *Scanner) forget(p string) {
	ref, err := storage.FileURL(p)
	if err != nil {
		return
	}
	if n := s.lib.RemoveWhere(func(it *model.MediaItem) bool { return it.MediaURL == ref }); n > 0 {
		logger.Info("removed from library", logger.String("path", p), logger.Int("count", n))
	}
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
