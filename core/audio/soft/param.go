package soft

import "math"

// param is an audio.Param evaluated once per quantum.
type param struct {
	ctx   *Context
	value float64

	ramping bool
	from    float64
	target  float64
	start   float64
	tau     float64
}

func newParam(c *Context, v float64) *param {
	return &param{ctx: c, value: v}
}

func (p *param) Value() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.value
}

func (p *param) SetValue(v float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.value = v
	p.ramping = false
}

func (p *param) SetTargetAtTime(target, startTime, timeConstant float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	if timeConstant <= 0 {
		p.value = target
		p.ramping = false
		return
	}
	p.ramping = true
	p.from = p.value
	p.target = target
	p.start = startTime
	p.tau = timeConstant
}

// advance moves the value to context time t. Requires ctx.mu.
func (p *param) advance(t float64) {
	if !p.ramping || t < p.start {
		return
	}
	v := p.target + (p.from-p.target)*math.Exp(-(t-p.start)/p.tau)
	if math.Abs(v-p.target) < 1e-6 {
		v = p.target
		p.ramping = false
	}
	p.value = v
}
