// Package library holds the in-memory media library the transport
// sequences over, and imports local files into it.
package library

import (
	"context"
	"strings"
	"sync"

	"MTCPlayer/model"
)

// Tab 媒体库分类
type Tab string

const (
	TabAll   Tab = "ALL"
	TabAudio Tab = "AUDIO"
	TabVideo Tab = "VIDEO"
	TabLocal Tab = "LOCAL"
)

// Filter selects the list next/prev resolve against.
type Filter struct {
	Tab    Tab
	Query  string // matches title, artist or mood, case-insensitive
	Artist string
	Album  string
}

func (f Filter) active() bool {
	return (f.Tab != "" && f.Tab != TabAll) || strings.TrimSpace(f.Query) != "" || f.Artist != "" || f.Album != ""
}

// Store is the persistent side of the library.
type Store interface {
	List(ctx context.Context, query string) ([]*model.MediaItem, error)
}

// Library is safe for concurrent use. Items keep insertion order; imports
// are prepended.
type Library struct {
	mu     sync.RWMutex
	items  []*model.MediaItem
	filter Filter
}

func New(items ...*model.MediaItem) *Library {
	l := &Library{}
	for _, it := range items {
		l.Put(it)
	}
	return l
}

// Load replaces the contents with what the store holds.
func (l *Library) Load(ctx context.Context, s Store) error {
	items, err := s.List(ctx, "")
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.items = nil
	for _, it := range items {
		l.putLocked(it)
	}
	l.mu.Unlock()
	return nil
}

// Add prepends new items; known ids are replaced in place.
func (l *Library) Add(items ...*model.MediaItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var fresh []*model.MediaItem
	for _, it := range items {
		if it == nil {
			continue
		}
		if i := l.indexLocked(it.ID); i >= 0 {
			l.items[i] = it
			continue
		}
		fresh = append(fresh, it)
	}
	l.items = append(fresh, l.items...)
}

// Put appends a new item or replaces the one with the same id. The
// transport calls it with play-count updates.
func (l *Library) Put(item *model.MediaItem) {
	l.mu.Lock()
	l.putLocked(item)
	l.mu.Unlock()
}

func (l *Library) putLocked(it *model.MediaItem) {
	if it == nil {
		return
	}
	if i := l.indexLocked(it.ID); i >= 0 {
		l.items[i] = it
		return
	}
	l.items = append(l.items, it)
}

func (l *Library) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(id)
	if i < 0 {
		return false
	}
	l.items = append(l.items[:i:i], l.items[i+1:]...)
	return true
}

// RemoveWhere drops every item match selects and returns how many.
func (l *Library) RemoveWhere(match func(*model.MediaItem) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.items[:0:0]
	for _, it := range l.items {
		if !match(it) {
			kept = append(kept, it)
		}
	}
	n := len(l.items) - len(kept)
	l.items = kept
	return n
}

func (l *Library) All() []*model.MediaItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*model.MediaItem(nil), l.items...)
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *Library) ByID(id string) (*model.MediaItem, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexLocked(id); i >= 0 {
		return l.items[i], true
	}
	return nil, false
}

func (l *Library) SetFilter(f Filter) {
	l.mu.Lock()
	l.filter = f
	l.mu.Unlock()
}

func (l *Library) Filter() Filter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filter
}

// Filtered returns the items the current filter selects, nil when no
// filter is set.
func (l *Library) Filtered() []*model.MediaItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f := l.filter
	if !f.active() {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	var out []*model.MediaItem
	for _, it := range l.items {
		if f.matches(it, q) {
			out = append(out, it)
		}
	}
	return out
}

func (f Filter) matches(it *model.MediaItem, q string) bool {
	switch f.Tab {
	case TabAudio:
		if it.Type != model.MediaTypeMusic && it.Type != model.MediaTypePodcast && it.Type != model.MediaTypeAudiobook {
			return false
		}
	case TabVideo:
		if it.Type != model.MediaTypeVideo {
			return false
		}
	case TabLocal:
		if !it.IsLocal() {
			return false
		}
	}
	if f.Artist != "" && it.Artist != f.Artist {
		return false
	}
	if f.Album != "" && it.Album != f.Album {
		return false
	}
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(it.Title), q) || strings.Contains(strings.ToLower(it.Artist), q) {
		return true
	}
	for _, m := range it.Moods {
		if strings.Contains(strings.ToLower(m), q) {
			return true
		}
	}
	return false
}

func (l *Library) indexLocked(id string) int {
	for i, it := range l.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
