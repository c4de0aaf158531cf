package model

import (
	"strings"
	"time"
)

// MediaType 媒体类型
type MediaType string

const (
	MediaTypeMusic     MediaType = "MUSIC"
	MediaTypeVideo     MediaType = "VIDEO"
	MediaTypePodcast   MediaType = "PODCAST"
	MediaTypeAudiobook MediaType = "AUDIOBOOK"
	MediaTypeRadio     MediaType = "RADIO"
)

// LocalIDPrefix marks media imported from the local device.
const LocalIDPrefix = "local-"

// LyricLine is one timed lyric row.
type LyricLine struct {
	Time float64 `json:"time"` // seconds
	Text string  `json:"text"`
}

// MediaItem represents one playable unit in the library.
type MediaItem struct {
	ID         string      `json:"id" gorm:"primaryKey;size:80"`
	Title      string      `json:"title" gorm:"size:255;not null"`
	Artist     string      `json:"artist" gorm:"size:255;index"`
	Album      string      `json:"album,omitempty" gorm:"size:255"`
	CoverURL   string      `json:"coverUrl" gorm:"size:1024"`
	MediaURL   string      `json:"mediaUrl" gorm:"size:2048;not null"` // playable source reference
	Type       MediaType   `json:"type" gorm:"size:16;default:'MUSIC'"`
	Duration   float64     `json:"duration"` // seconds, 0 until the element reports it
	Moods      []string    `json:"moods,omitempty" gorm:"serializer:json"`
	Tags       []string    `json:"tags,omitempty" gorm:"serializer:json"`
	Lyrics     []LyricLine `json:"lyrics,omitempty" gorm:"serializer:json"`
	PlayCount  int         `json:"playCount" gorm:"default:0"`
	LastPlayed int64       `json:"lastPlayed,omitempty"` // unix ms
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// TableName 指定表名
func (MediaItem) TableName() string {
	return "media_items"
}

// IsLocal reports whether the item can be played without network access.
func (m *MediaItem) IsLocal() bool {
	if m == nil {
		return false
	}
	return strings.HasPrefix(m.ID, LocalIDPrefix) ||
		strings.HasPrefix(m.MediaURL, "blob:") ||
		strings.HasPrefix(m.MediaURL, "file:")
}

// IsVideo reports whether playback goes through the video surface instead of
// the streaming audio element.
func (m *MediaItem) IsVideo() bool {
	return m != nil && m.Type == MediaTypeVideo
}

// Labels returns tags and moods lowercased, used by Smart EQ.
func (m *MediaItem) Labels() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.Tags)+len(m.Moods))
	for _, t := range m.Tags {
		out = append(out, strings.ToLower(t))
	}
	for _, t := range m.Moods {
		out = append(out, strings.ToLower(t))
	}
	return out
}
