package soft

import (
	"MTCPlayer/core/audio"
	"MTCPlayer/core/media"

	"github.com/gopxl/beep/v2"
)

// processor renders one quantum from the summed input. tainted is set when
// any input carries opaque media; the return value is the output's taint.
type processor interface {
	process(in, out *[Quantum]frame, tainted bool) bool
}

// node is the connection and caching core embedded by every node type.
type node struct {
	ctx  *Context
	self processor

	inputs  []*node
	outputs []*node

	in      [Quantum]frame
	out     [Quantum]frame
	last    uint64
	tainted bool
}

type baser interface {
	base() *node
}

func (n *node) init(c *Context, p processor) {
	n.ctx = c
	n.self = p
}

func (n *node) base() *node { return n }

func (n *node) Connect(dst audio.Node) error {
	b, ok := dst.(baser)
	if !ok {
		return ErrInvalidAccess
	}
	d := b.base()
	if d.ctx != n.ctx {
		return ErrInvalidAccess
	}

	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	if n.ctx.state == audio.StateClosed {
		return ErrInvalidState
	}
	for _, o := range n.outputs {
		if o == d {
			return nil
		}
	}
	n.outputs = append(n.outputs, d)
	d.inputs = append(d.inputs, n)
	return nil
}

func (n *node) Disconnect() error {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	for _, d := range n.outputs {
		d.inputs = without(d.inputs, n)
	}
	n.outputs = nil
	return nil
}

func without(list []*node, n *node) []*node {
	out := list[:0]
	for _, x := range list {
		if x != n {
			out = append(out, x)
		}
	}
	return out
}

// pull renders quantum q once and returns the cached output on every
// further call for the same q. Requires ctx.mu.
func (n *node) pull(q uint64) (*[Quantum]frame, bool) {
	if n.last == q {
		return &n.out, n.tainted
	}
	n.last = q

	n.in = [Quantum]frame{}
	tainted := false
	for _, src := range n.inputs {
		buf, t := src.pull(q)
		for i := range buf {
			n.in[i][0] += buf[i][0]
			n.in[i][1] += buf[i][1]
		}
		tainted = tainted || t
	}
	n.tainted = n.self.process(&n.in, &n.out, tainted)
	return &n.out, n.tainted
}

type destination struct {
	node
}

func (d *destination) process(in, out *[Quantum]frame, tainted bool) bool {
	*out = *in
	return tainted
}

type gainNode struct {
	node
	gain *param
}

func (g *gainNode) Gain() audio.Param { return g.gain }

func (g *gainNode) process(in, out *[Quantum]frame, tainted bool) bool {
	g.gain.advance(g.ctx.timeLocked())
	v := g.gain.value
	for i := range in {
		out[i][0] = in[i][0] * v
		out[i][1] = in[i][1] * v
	}
	return tainted
}

// elementSource pulls the decoded output of a media element.
type elementSource struct {
	node
	el  media.Output
	src beep.Streamer
}

func newElementSource(el media.Output, rate float64) *elementSource {
	var s beep.Streamer = el
	if want := beep.SampleRate(rate); el.SampleRate() != want {
		s = beep.Resample(4, el.SampleRate(), want, el)
	}
	return &elementSource{el: el, src: s}
}

func (s *elementSource) process(_, out *[Quantum]frame, _ bool) bool {
	n, _ := s.src.Stream(out[:])
	for i := n; i < Quantum; i++ {
		out[i] = frame{}
	}
	return s.el.Opaque()
}
