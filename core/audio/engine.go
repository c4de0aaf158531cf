package audio

import (
	"context"
	"sync"

	"MTCPlayer/core/media"
	"MTCPlayer/core/playerr"
	"MTCPlayer/logger"
)

// elementReleaser is implemented by contexts that can forget an element
// whose source node was created earlier.
type elementReleaser interface {
	ReleaseElement(el media.Element)
}

// Engine is the process-wide owner of the processing context and of the
// per-element source nodes. Share one Engine between every component that
// touches the graph.
type Engine struct {
	factory Factory

	mu      sync.Mutex
	ctx     Context
	sources map[media.Element]Node
	live    map[media.Element]*Graph
}

// NewEngine creates the service; the context itself is created lazily.
func NewEngine(factory Factory) *Engine {
	return &Engine{
		factory: factory,
		sources: make(map[media.Element]Node),
		live:    make(map[media.Element]*Graph),
	}
}

// GetOrCreate returns the context, creating it on first call.
func (e *Engine) GetOrCreate() (Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contextLocked()
}

func (e *Engine) contextLocked() (Context, error) {
	if e.ctx != nil {
		return e.ctx, nil
	}
	c, err := e.factory()
	if err != nil {
		return nil, playerr.Unsupported("create audio context", err)
	}
	e.ctx = c
	logger.Info("audio context created", logger.Float64("sampleRate", c.SampleRate()))
	return c, nil
}

// Source returns the element's source node, creating it the first time.
// A refusal from the platform is returned as an Unsupported error and is
// not cached, so nothing retries behind the caller's back.
func (e *Engine) Source(el media.Element) (Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n, ok := e.sources[el]; ok {
		return n, nil
	}
	c, err := e.contextLocked()
	if err != nil {
		return nil, err
	}
	n, err := c.CreateMediaElementSource(el)
	if err != nil {
		return nil, playerr.Unsupported("create media element source", err)
	}
	e.sources[el] = n
	return n, nil
}

// Release tears down the element's live graph and forgets the element.
// Call it when the element is disposed.
func (e *Engine) Release(el media.Element) {
	topology.Lock()
	defer topology.Unlock()
	if g := e.liveGraph(el); g != nil {
		g.detachLocked()
	}

	e.mu.Lock()
	n, ok := e.sources[el]
	delete(e.sources, el)
	delete(e.live, el)
	c := e.ctx
	e.mu.Unlock()

	if !ok {
		return
	}
	if err := n.Disconnect(); err != nil {
		logger.Debug("disconnect released source", logger.ErrorField(err))
	}
	if r, ok := c.(elementReleaser); ok {
		r.ReleaseElement(el)
	}
}

// ResumeIfSuspended resumes the context when autoplay policy left it
// suspended. It does nothing before the context exists.
func (e *Engine) ResumeIfSuspended(ctx context.Context) error {
	e.mu.Lock()
	c := e.ctx
	e.mu.Unlock()

	if c == nil || c.State() != StateSuspended {
		return nil
	}
	if err := c.Resume(ctx); err != nil {
		logger.Warn("audio context resume failed", logger.ErrorField(err))
		return err
	}
	return nil
}

// Close closes the context; the engine cannot be used afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	c := e.ctx
	e.sources = make(map[media.Element]Node)
	e.live = make(map[media.Element]*Graph)
	e.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

func (e *Engine) liveGraph(el media.Element) *Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live[el]
}

func (e *Engine) setLive(el media.Element, g *Graph) {
	e.mu.Lock()
	e.live[el] = g
	e.mu.Unlock()
}

func (e *Engine) clearLive(el media.Element, g *Graph) {
	e.mu.Lock()
	if e.live[el] == g {
		delete(e.live, el)
	}
	e.mu.Unlock()
}
