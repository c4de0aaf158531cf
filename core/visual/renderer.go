// Package visual paints the analysis tap of the signal graph as bars, a
// waveform or a radial spectrum.
package visual

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"
	"time"

	"MTCPlayer/logger"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Mode 可视化模式
type Mode string

const (
	ModeBars     Mode = "BARS"
	ModeWave     Mode = "WAVE"
	ModeCircular Mode = "CIRCULAR"
)

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(s)); m {
	case ModeBars, ModeWave, ModeCircular:
		return m, nil
	}
	return "", fmt.Errorf("unknown visualizer mode %q", s)
}

// Tap is the read side of an analyser node.
type Tap interface {
	FrequencyBinCount() int
	ByteFrequencyData(dst []byte)
	ByteTimeDomainData(dst []byte)
}

var (
	fadeColor   = color.NRGBA{A: 26} // rgba(0,0,0,0.1)
	accentColor = color.NRGBA{R: 0x0d, G: 0x94, B: 0x88, A: 0xff}
)

const waveLineWidth = 3

// Renderer drives the frame loop. Frames are only requested while a tap is
// started and playback is active; pausing cancels the pending frame.
type Renderer struct {
	surface  Surface
	viewport Viewport
	sched    FrameScheduler

	mu      sync.Mutex
	tap     Tap
	mode    Mode
	started bool
	playing bool
	pending FrameID
	loop    uint64 // bumped whenever the running loop is cancelled
	data    []byte
	frames  int
}

// NewRenderer creates an idle renderer.
func NewRenderer(surface Surface, viewport Viewport, sched FrameScheduler) *Renderer {
	return &Renderer{surface: surface, viewport: viewport, sched: sched, mode: ModeBars}
}

// Start begins rendering tap in the given mode. A running loop is replaced.
func (r *Renderer) Start(tap Tap, mode Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLocked()
	r.tap = tap
	r.mode = mode
	r.started = tap != nil
	r.data = nil
	if tap != nil {
		r.data = make([]byte, tap.FrequencyBinCount())
	}
	logger.Debug("visualizer started", logger.String("mode", string(mode)), logger.Bool("playing", r.playing))
	if r.started && r.playing {
		r.scheduleLocked()
	}
}

// Stop cancels the loop and forgets the tap. Call it before releasing the
// tap or the surface.
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked()
	r.started = false
	r.tap = nil
}

func (r *Renderer) SetMode(mode Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

func (r *Renderer) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetPlaying follows the transport: pausing cancels the pending frame,
// resuming schedules a fresh loop.
func (r *Renderer) SetPlaying(playing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playing == playing {
		return
	}
	r.playing = playing
	if !playing {
		r.cancelLocked()
		return
	}
	if r.started {
		r.cancelLocked()
		r.scheduleLocked()
	}
}

// Running reports whether a frame is pending.
func (r *Renderer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != 0
}

// Frames counts rendered frames.
func (r *Renderer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Snapshot returns the current frame.
func (r *Renderer) Snapshot() image.Image {
	return r.surface.Snapshot()
}

// RenderFrame draws one frame immediately, e.g. for offline rendering. It
// does not touch the loop.
func (r *Renderer) RenderFrame(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tap != nil {
		r.drawLocked(now)
	}
}

func (r *Renderer) cancelLocked() {
	if r.pending != 0 {
		r.sched.CancelFrame(r.pending)
		r.pending = 0
	}
	r.loop++
}

func (r *Renderer) scheduleLocked() {
	loop := r.loop
	r.pending = r.sched.RequestFrame(func(now time.Time) {
		r.onFrame(loop, now)
	})
}

func (r *Renderer) onFrame(loop uint64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if loop != r.loop || !r.started || !r.playing {
		return
	}
	r.scheduleLocked()
	r.drawLocked(now)
}

func (r *Renderer) drawLocked(now time.Time) {
	w, h := r.viewport.Size()
	if sw, sh := r.surface.Size(); sw != w || sh != h {
		r.surface.Resize(w, h)
		w, h = r.surface.Size()
	}
	fw, fh := float64(w), float64(h)
	r.surface.FillRect(0, 0, fw, fh, fadeColor)

	r.frames++
	if len(r.data) == 0 {
		return
	}
	ms := float64(now.UnixMilli())
	switch r.mode {
	case ModeWave:
		r.tap.ByteTimeDomainData(r.data)
		drawWave(r.surface, r.data, fw, fh)
	case ModeCircular:
		r.tap.ByteFrequencyData(r.data)
		drawCircular(r.surface, r.data, fw, fh, ms)
	default:
		r.tap.ByteFrequencyData(r.data)
		drawBars(r.surface, r.data, fw, fh, ms)
	}
}

func drawBars(s Surface, data []byte, w, h, ms float64) {
	n := float64(len(data))
	barWidth := w / n * 2.5
	x := 0.0
	for i, v := range data {
		barHeight := float64(v) / 255 * h * 0.8
		hue := float64(i)/n*360 + ms/50
		s.FillRect(x, h-barHeight, barWidth, barHeight, hsl(hue, 0.5))
		x += barWidth + 1
	}
}

func drawWave(s Surface, data []byte, w, h float64) {
	slice := w / float64(len(data))
	pts := make([]Point, 0, len(data)+1)
	for i, v := range data {
		pts = append(pts, Point{float64(i) * slice, float64(v) / 128 * h / 2})
	}
	pts = append(pts, Point{w, h / 2})
	s.StrokePolyline(pts, waveLineWidth, accentColor)
}

func drawCircular(s Surface, data []byte, w, h, ms float64) {
	n := float64(len(data))
	cx, cy := w/2, h/2
	radius := math.Min(w, h) / 4
	barWidth := 2 * math.Pi * radius / n
	rotation := ms / 2000

	sum := 0.0
	for i, v := range data {
		sum += float64(v)
		angle := rotation + float64(i+1)*2*math.Pi/n
		barHeight := float64(v) / 255 * (h / 3)
		sin, cos := math.Sincos(angle)
		at := func(x, y float64) Point {
			return Point{cx + x*cos - y*sin, cy + x*sin + y*cos}
		}
		s.FillPolygon([]Point{
			at(0, radius),
			at(barWidth, radius),
			at(barWidth, radius+barHeight),
			at(0, radius+barHeight),
		}, hsl(float64(i)/n*360, 0.6))
	}

	avg := sum / n
	disc := accentColor
	disc.A = uint8(avg)
	s.FillCircle(cx, cy, radius*0.8+avg/5, disc)
}

func hsl(hue, lightness float64) color.Color {
	hue = math.Mod(hue, 360)
	if hue < 0 {
		hue += 360
	}
	return colorful.Hsl(hue, 1, lightness).Clamped()
}
