package visual

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/vector"
)

// Point is a position in surface pixels, origin top-left.
type Point struct {
	X, Y float64
}

// Surface is the 2D drawing target of the renderer. Colours are blended
// over the existing content.
type Surface interface {
	Size() (width, height int)
	// Resize changes the pixel size and clears the surface.
	Resize(width, height int)
	FillRect(x, y, w, h float64, c color.Color)
	FillPolygon(pts []Point, c color.Color)
	StrokePolyline(pts []Point, width float64, c color.Color)
	FillCircle(cx, cy, r float64, c color.Color)
	// Snapshot copies the current content.
	Snapshot() image.Image
}

// Viewport reports the size the surface should have. It is polled every
// frame.
type Viewport interface {
	Size() (width, height int)
}

// FixedViewport is a viewport that never changes size.
type FixedViewport struct {
	Width, Height int
}

func (v FixedViewport) Size() (int, int) { return v.Width, v.Height }

// RasterSurface draws anti-aliased shapes into an RGBA image.
type RasterSurface struct {
	mu  sync.Mutex
	dst *image.RGBA
	z   *vector.Rasterizer
}

var _ Surface = (*RasterSurface)(nil)

// NewRasterSurface creates an opaque black surface.
func NewRasterSurface(width, height int) *RasterSurface {
	s := &RasterSurface{}
	s.Resize(width, height)
	return s
}

func (s *RasterSurface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.dst.Bounds()
	return b.Dx(), b.Dy()
}

func (s *RasterSurface) Resize(width, height int) {
	width, height = max(width, 1), max(height, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dst = image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(s.dst, s.dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	s.z = vector.NewRasterizer(width, height)
}

func (s *RasterSurface) FillRect(x, y, w, h float64, c color.Color) {
	s.FillPolygon([]Point{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}, c)
}

func (s *RasterSurface) FillPolygon(pts []Point, c color.Color) {
	if len(pts) < 3 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.dst.Bounds()
	s.z.Reset(b.Dx(), b.Dy())
	s.z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		s.z.LineTo(float32(p.X), float32(p.Y))
	}
	s.z.ClosePath()
	s.z.Draw(s.dst, b, image.NewUniform(c), image.Point{})
}

// StrokePolyline draws each segment as a quad of the given width. Joins are
// left open.
func (s *RasterSurface) StrokePolyline(pts []Point, width float64, c color.Color) {
	half := width / 2
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		dx, dy := b.X-a.X, b.Y-a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*half, dx/l*half
		s.FillPolygon([]Point{
			{a.X + nx, a.Y + ny},
			{b.X + nx, b.Y + ny},
			{b.X - nx, b.Y - ny},
			{a.X - nx, a.Y - ny},
		}, c)
	}
}

const circleSegments = 64

func (s *RasterSurface) FillCircle(cx, cy, r float64, c color.Color) {
	if r <= 0 {
		return
	}
	pts := make([]Point, circleSegments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / circleSegments
		pts[i] = Point{cx + r*math.Cos(a), cy + r*math.Sin(a)}
	}
	s.FillPolygon(pts, c)
}

func (s *RasterSurface) Snapshot() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.dst.Bounds())
	copy(out.Pix, s.dst.Pix)
	return out
}
