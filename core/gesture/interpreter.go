// Package gesture turns multi-touch sequences into volume, seek and zoom
// intents according to the user's gesture bindings.
package gesture

import (
	"fmt"
	"math"
	"sync"

	"MTCPlayer/model"
)

const (
	CircleThreshold = 0.1 // rad
	SwipeThreshold  = 10  // px
	MinDelta        = 5

	circleScale       = 50
	volumeSensitivity = 0.005
	seekSensitivity   = 0.2
	zoomThreshold     = 50
)

// Point is a touch position in surface coordinates.
type Point struct {
	X, Y float64
}

// Rect is the touch surface; angles are measured around its centre.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Center() Point {
	return Point{r.X + r.W/2, r.Y + r.H/2}
}

// Session is the transport state captured when tracking starts.
type Session struct {
	Volume   float64
	Position float64
	Duration float64
}

// Target receives volume and seek intents. transport.Controller implements
// it.
type Target interface {
	SetVolume(v float64)
	Seek(t float64)
}

// State of the interpreter.
type State int

const (
	Idle State = iota
	Tracking
)

// Effect is what one move resolved to.
type Effect struct {
	Gesture  model.GestureType
	Action   model.GestureAction
	Delta    float64
	Volume   float64 // VOLUME
	Position float64 // SEEK
	Zoomed   bool    // ZOOM
}

// Feedback is the transient overlay shown while a gesture acts.
type Feedback struct {
	Action model.GestureAction
	Value  string
	Back   bool // seek direction
}

type snapshot struct {
	start    Point
	dist     float64
	angle    float64
	volume   float64
	position float64
	duration float64
}

// Interpreter is a two-state machine: IDLE until a touch starts, TRACKING
// with a snapshot of the initial conditions until it ends.
type Interpreter struct {
	target Target

	mu       sync.Mutex
	settings model.GestureSettings
	state    State
	snap     snapshot
	zoomed   bool
	feedback *Feedback
}

func New(settings model.GestureSettings, target Target) *Interpreter {
	return &Interpreter{settings: settings, target: target}
}

func (in *Interpreter) SetSettings(s model.GestureSettings) {
	in.mu.Lock()
	in.settings = s
	in.mu.Unlock()
}

// Start begins tracking. touches holds the active touches, first finger
// first.
func (in *Interpreter) Start(touches []Point, bounds Rect, s Session) {
	if len(touches) == 0 {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.state = Tracking
	in.snap = snapshot{
		start:    touches[0],
		angle:    angleOf(touches[0], bounds.Center()),
		volume:   s.Volume,
		position: s.Position,
		duration: s.Duration,
	}
	if len(touches) > 1 {
		in.snap.dist = distance(touches[0], touches[1])
	}
}

// Move resolves the current touches against the snapshot and applies the
// bound action to the target. ok is false when nothing was emitted.
func (in *Interpreter) Move(touches []Point, bounds Rect) (Effect, bool) {
	if len(touches) == 0 {
		return Effect{}, false
	}
	in.mu.Lock()
	if in.state != Tracking {
		in.mu.Unlock()
		return Effect{}, false
	}
	snap, settings := in.snap, in.settings

	var e Effect
	e.Action = model.ActionNone
	switch {
	case len(touches) > 1 && snap.dist > 0:
		e.Gesture = model.GesturePinch
		e.Action = settings.Action(model.GesturePinch)
		e.Delta = distance(touches[0], touches[1]) - snap.dist
	case len(touches) == 1:
		dx := touches[0].X - snap.start.X
		da := normalizeAngle(angleOf(touches[0], bounds.Center()) - snap.angle)
		if a := settings.Action(model.GestureCircle); a != model.ActionNone && math.Abs(da) > CircleThreshold {
			e.Gesture, e.Action, e.Delta = model.GestureCircle, a, da*circleScale
		} else if a := settings.Action(model.GestureSwipe); a != model.ActionNone && math.Abs(dx) > SwipeThreshold {
			e.Gesture, e.Action, e.Delta = model.GestureSwipe, a, dx
		}
	}
	if e.Action == model.ActionNone || math.Abs(e.Delta) <= MinDelta {
		in.mu.Unlock()
		return Effect{}, false
	}

	switch e.Action {
	case model.ActionVolume:
		e.Volume = clamp(snap.volume+e.Delta*volumeSensitivity, 0, 1)
		in.feedback = &Feedback{Action: e.Action, Value: fmt.Sprintf("%d%%", int(math.Round(e.Volume*100)))}
	case model.ActionSeek:
		e.Position = clamp(snap.position+e.Delta*seekSensitivity, 0, snap.duration)
		in.feedback = &Feedback{Action: e.Action, Value: formatTime(e.Position), Back: e.Delta < 0}
	case model.ActionZoom:
		if e.Delta > zoomThreshold {
			in.zoomed = true
		}
		if e.Delta < -zoomThreshold {
			in.zoomed = false
		}
	}
	e.Zoomed = in.zoomed
	in.mu.Unlock()

	if in.target != nil {
		switch e.Action {
		case model.ActionVolume:
			in.target.SetVolume(e.Volume)
		case model.ActionSeek:
			in.target.Seek(e.Position)
		}
	}
	return e, true
}

// End stops tracking and clears the feedback overlay.
func (in *Interpreter) End() {
	in.mu.Lock()
	in.state = Idle
	in.feedback = nil
	in.mu.Unlock()
}

func (in *Interpreter) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

func (in *Interpreter) Zoomed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.zoomed
}

// Feedback returns the overlay to show, if any.
func (in *Interpreter) Feedback() (Feedback, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.feedback == nil {
		return Feedback{}, false
	}
	return *in.feedback, true
}

func distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func angleOf(p, c Point) float64 {
	return math.Atan2(p.Y-c.Y, p.X-c.X)
}

// normalizeAngle maps a into (-pi, pi].
func normalizeAngle(a float64) float64 {
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func formatTime(sec float64) string {
	s := int(sec)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
