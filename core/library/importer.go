package library

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"MTCPlayer/model"

	"golang.org/x/crypto/blake2b"
)

const (
	DefaultArtist = "Local Artist"
	AlbumUploads  = "Local Uploads"
	AlbumScan     = "Local Scan"

	placeholderCover = "https://picsum.photos/400/400?grayscale"
	idBytes          = 16
)

var (
	videoExts = map[string]bool{".mp4": true, ".webm": true, ".mkv": true, ".mov": true, ".avi": true, ".m4v": true}
	audioExts = map[string]bool{".mp3": true, ".wav": true, ".flac": true, ".m4a": true, ".ogg": true, ".aac": true, ".opus": true}
)

// IsMedia reports whether name has an audio or video extension.
func IsMedia(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return videoExts[ext] || audioExts[ext]
}

// IsVideo reports whether name has a video extension.
func IsVideo(name string) bool {
	return videoExts[strings.ToLower(filepath.Ext(name))]
}

// ParseFileName splits "Artist - Song.mp3" into title and artist. Without a
// dash the artist is DefaultArtist.
func ParseFileName(name string) (title, artist string) {
	base := filepath.Base(name)
	title = strings.TrimSuffix(base, filepath.Ext(base))
	artist = DefaultArtist
	if a, t, ok := strings.Cut(title, "-"); ok {
		artist = strings.TrimSpace(a)
		title = strings.TrimSpace(t)
	}
	return title, artist
}

// ContentID derives a stable local id from the media bytes.
func ContentID(r io.Reader) (string, error) {
	h, err := blake2b.New(idBytes, nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return model.LocalIDPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// ImportFile builds a library item for the file at path. mediaURL is the
// reference the element will load.
func ImportFile(path, mediaURL, album string) (*model.MediaItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	id, err := ContentID(f)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}
	title, artist := ParseFileName(path)
	item := &model.MediaItem{
		ID:       id,
		Title:    title,
		Artist:   artist,
		Album:    album,
		CoverURL: placeholderCover,
		MediaURL: mediaURL,
		Type:     model.MediaTypeMusic,
		Moods:    []string{"Local"},
	}
	if IsVideo(path) {
		item.Type = model.MediaTypeVideo
		item.CoverURL = ""
	}
	return item, nil
}
