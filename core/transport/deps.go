package transport

import (
	"context"
	"time"

	"MTCPlayer/logger"
	"MTCPlayer/model"
)

// Library supplies the lists next/prev resolve against.
type Library interface {
	// Filtered is the list currently selected in the library view; empty
	// when no filter is active.
	Filtered() []*model.MediaItem
	All() []*model.MediaItem
	ByID(id string) (*model.MediaItem, bool)
}

// libraryUpdater is implemented by libraries that keep play counts in
// memory and want the refreshed item after a count increment.
type libraryUpdater interface {
	Put(item *model.MediaItem)
}

// AudioResumer resumes a suspended processing context.
type AudioResumer interface {
	ResumeIfSuspended(ctx context.Context) error
}

// Connectivity reports whether remote media can be reached.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func() bool

func (f ConnectivityFunc) Online() bool { return f() }

// PlayCounter is the play-count hook invoked when a track ends naturally.
type PlayCounter interface {
	IncrementPlayCount(ctx context.Context, id string, at time.Time) (*model.MediaItem, error)
}

// Level is the severity of a user notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier shows transient user-facing messages.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// LogNotifier writes notifications to the log. It is the default.
type LogNotifier struct{}

func (LogNotifier) Notify(level Level, message string) {
	if level == LevelError {
		logger.Warn("notify", logger.String("level", string(level)), logger.String("message", message))
		return
	}
	logger.Info("notify", logger.String("level", string(level)), logger.String("message", message))
}

// EventType 传输事件类型
type EventType string

const (
	EventPlay        EventType = "play"
	EventPause       EventType = "pause"
	EventSeek        EventType = "seek"
	EventTrackChange EventType = "track_change"
)

// Event reports a transport transition to listeners such as the party host
// bridge.
type Event struct {
	Type     EventType
	Track    *model.MediaItem
	Position float64
	Playing  bool
}
