package audio

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"MTCPlayer/core/media"
	"MTCPlayer/core/playerr"
	"MTCPlayer/logger"
	"MTCPlayer/model"
)

const (
	// AnalyserFFTSize is the analysis resolution; the tap exposes half as
	// many frequency bins.
	AnalyserFFTSize = 256
	// RampTimeConstant is the smoothing used for every live gain change.
	RampTimeConstant = 0.1
	// DefaultImpulseDuration seeds the convolver before any reverb update.
	DefaultImpulseDuration = 2.0
	defaultImpulseDecay    = 2.0
	// ImpulseTolerance is how far the loaded tail may be from the requested
	// decay before it is regenerated.
	ImpulseTolerance = 0.1
)

var filterTypes = [model.EqBands]FilterType{LowShelf, Peaking, Peaking, Peaking, HighShelf}

// topology serializes attach/detach across every graph of the process.
var topology sync.Mutex

// Graph is one processing chain bound to a media element:
//
//	source -> f0 -> f1 -> f2 -> f3 -> f4 -> dry ------------> analyser -> destination
//	                                  \-> convolver -> wet -/
//
// A Graph is UNATTACHED until Attach succeeds and returns to UNATTACHED,
// with the source routed straight to the destination, on Detach.
type Graph struct {
	engine *Engine

	mu        sync.Mutex
	el        media.Element
	ctx       Context
	source    Node
	filters   [model.EqBands]Filter
	convolver Convolver
	dry, wet  Gain
	analyser  Analyser
	attached  bool

	eq     model.EqGains
	reverb model.ReverbSettings
	rand   *rand.Rand
}

// NewGraph creates an unattached graph on the engine.
func NewGraph(engine *Engine) *Graph {
	return &Graph{
		engine: engine,
		reverb: model.DefaultReverbSettings(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Attached reports whether the graph is live.
func (g *Graph) Attached() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attached
}

// Analyser returns the analysis tap of a live graph, or nil.
func (g *Graph) Analyser() Analyser {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.analyser
}

// Settings returns the equalizer gains and reverb last applied or requested.
func (g *Graph) Settings() (model.EqGains, model.ReverbSettings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eq, g.reverb
}

// Attach builds the chain for el and returns its analysis tap. Any live
// graph on el is detached first. When the platform refuses a source node
// for el the graph stays unattached, prior routing is left as it was and an
// Unsupported error is returned; callers treat it as non-fatal.
func (g *Graph) Attach(el media.Element, eq model.EqGains, reverb model.ReverbSettings) (Analyser, error) {
	topology.Lock()
	defer topology.Unlock()

	g.mu.Lock()
	g.eq = eq
	g.reverb = reverb.Normalize()
	g.mu.Unlock()

	c, err := g.engine.GetOrCreate()
	if err != nil {
		logger.Warn("signal graph unavailable", logger.ErrorField(err))
		return nil, err
	}
	source, err := g.engine.Source(el)
	if err != nil {
		logger.Warn("media element already bound to another processing context, playing unprocessed",
			logger.ErrorField(err))
		return nil, err
	}

	if prev := g.engine.liveGraph(el); prev != nil && prev != g {
		prev.detachLocked()
	}
	g.detachLocked()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.buildLocked(c); err != nil {
		g.dropNodesLocked()
		// the source is known good: leave the element audible
		if cerr := source.Connect(c.Destination()); cerr != nil {
			logger.Warn("restore passthrough failed", logger.ErrorField(cerr))
		}
		logger.Error("building signal graph failed", logger.ErrorField(err))
		return nil, playerr.Unsupported("attach", err)
	}
	g.el, g.ctx, g.source = el, c, source
	g.rewireLocked()

	for i, f := range g.filters {
		f.Gain().SetValue(g.eq[i])
	}
	g.applyReverbLocked(true)
	g.attached = true
	g.engine.setLive(el, g)

	logger.Debug("signal graph attached", logger.Float64("decay", g.reverb.Decay), logger.Bool("reverb", g.reverb.Active))
	return g.analyser, nil
}

func (g *Graph) buildLocked(c Context) error {
	var err error
	for i := range g.filters {
		if g.filters[i], err = c.CreateBiquadFilter(filterTypes[i], model.EqFrequencies[i], 0); err != nil {
			return err
		}
	}
	if g.convolver, err = c.CreateConvolver(); err != nil {
		return err
	}
	g.convolver.SetBuffer(ImpulseResponse(g.rand, c.SampleRate(), DefaultImpulseDuration, defaultImpulseDecay))
	if g.dry, err = c.CreateGain(1); err != nil {
		return err
	}
	if g.wet, err = c.CreateGain(0); err != nil {
		return err
	}
	g.analyser, err = c.CreateAnalyser(AnalyserFFTSize)
	return err
}

type edge struct{ from, to Node }

func (g *Graph) edges() []edge {
	es := []edge{{g.source, g.filters[0]}}
	for i := 0; i < len(g.filters)-1; i++ {
		es = append(es, edge{g.filters[i], g.filters[i+1]})
	}
	last := g.filters[len(g.filters)-1]
	return append(es,
		edge{last, g.dry},
		edge{last, g.convolver},
		edge{g.convolver, g.wet},
		edge{g.dry, g.analyser},
		edge{g.wet, g.analyser},
		edge{g.analyser, g.ctx.Destination()},
	)
}

func (g *Graph) stages() []Node {
	out := []Node{g.source}
	for _, f := range g.filters {
		if f != nil {
			out = append(out, f)
		}
	}
	for _, n := range []Node{g.convolver, g.dry, g.wet, g.analyser} {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// rewireLocked disconnects every stage and connects the full edge list, so
// repeated calls never accumulate connections.
func (g *Graph) rewireLocked() {
	for _, n := range g.stages() {
		if err := n.Disconnect(); err != nil {
			logger.Debug("disconnect before rewire", logger.ErrorField(err))
		}
	}
	for _, e := range g.edges() {
		if err := e.from.Connect(e.to); err != nil {
			logger.Warn("signal graph connect failed", logger.ErrorField(err))
		}
	}
}

// UpdateEq ramps the filter gains toward gains. While unattached the gains
// are only remembered.
func (g *Graph) UpdateEq(gains model.EqGains) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.eq = gains
	if !g.attached {
		return
	}
	now := g.ctx.CurrentTime()
	for i, f := range g.filters {
		f.Gain().SetTargetAtTime(gains[i], now, RampTimeConstant)
	}
}

// UpdateReverb regenerates the tail when the decay moved and ramps the
// dry/wet levels. While unattached the settings are only remembered.
func (g *Graph) UpdateReverb(settings model.ReverbSettings) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reverb = settings.Normalize()
	if !g.attached {
		return
	}
	g.applyReverbLocked(false)
}

func (g *Graph) applyReverbLocked(instant bool) {
	r := g.reverb
	if r.Active {
		buf := g.convolver.Buffer()
		switch {
		case buf == nil:
			g.convolver.SetBuffer(ImpulseResponse(g.rand, g.ctx.SampleRate(), r.Decay, 3))
		case math.Abs(buf.Duration()-r.Decay) > ImpulseTolerance:
			k := 2.0
			if r.Decay > 1 {
				k = 4
			}
			g.convolver.SetBuffer(ImpulseResponse(g.rand, g.ctx.SampleRate(), r.Decay, k))
		}
	}

	dry, wet := r.Levels()
	if instant {
		g.dry.Gain().SetValue(dry)
		g.wet.Gain().SetValue(wet)
		return
	}
	now := g.ctx.CurrentTime()
	g.dry.Gain().SetTargetAtTime(dry, now, RampTimeConstant)
	g.wet.Gain().SetTargetAtTime(wet, now, RampTimeConstant)
}

// Detach tears the chain down and routes the source straight to the
// destination so playback stays audible. Calling it on an unattached graph
// does nothing.
func (g *Graph) Detach() {
	topology.Lock()
	defer topology.Unlock()
	g.detachLocked()
}

// detachLocked requires the topology lock.
func (g *Graph) detachLocked() {
	g.mu.Lock()
	if !g.attached {
		g.mu.Unlock()
		return
	}
	el := g.el
	for _, n := range g.stages() {
		if err := n.Disconnect(); err != nil {
			logger.Debug("disconnect on detach", logger.ErrorField(err))
		}
	}
	if err := g.source.Connect(g.ctx.Destination()); err != nil {
		logger.Warn("restore passthrough failed", logger.ErrorField(err))
	}
	g.dropNodesLocked()
	g.mu.Unlock()

	g.engine.clearLive(el, g)
	logger.Debug("signal graph detached")
}

func (g *Graph) dropNodesLocked() {
	g.el, g.ctx, g.source = nil, nil, nil
	g.filters = [model.EqBands]Filter{}
	g.convolver, g.dry, g.wet, g.analyser = nil, nil, nil, nil
	g.attached = false
}
