package control

import (
	"math"
	"sync"
)

// PID is a discrete PID controller with a clamped integrator. When the integrator saturates it
// stops accumulating in the saturating direction until the error changes sign.
type PID struct {
	mu sync.Mutex

	Kp float64
	Ki float64
	Kd float64
	// IntegralLimit bounds |integral|. Zero leaves it unbounded.
	IntegralLimit float64
	// OutputLimit bounds |output|. Zero leaves it unbounded.
	OutputLimit float64

	lastError float64
	integral  float64
	sat       int
	primed    bool
}

// NewPID returns a controller with the given gains.
func NewPID(kp, ki, kd float64) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd}
}

// Next returns the controller output for the current error over dt seconds.
func (p *PID) Next(err, dt float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if dt <= 0 {
		return p.output(err, 0)
	}
	if !((p.sat > 0 && err > 0) || (p.sat < 0 && err < 0)) {
		p.integral += p.Ki * err * dt
	}
	p.sat = 0
	if p.IntegralLimit > 0 {
		if p.integral >= p.IntegralLimit {
			p.integral = p.IntegralLimit
			p.sat = 1
		} else if p.integral <= -p.IntegralLimit {
			p.integral = -p.IntegralLimit
			p.sat = -1
		}
	}

	deriv := 0.0
	if p.primed {
		deriv = (err - p.lastError) / dt
	}
	p.lastError = err
	p.primed = true
	return p.output(err, deriv)
}

func (p *PID) output(err, deriv float64) float64 {
	out := p.Kp*err + p.integral + p.Kd*deriv
	if p.OutputLimit > 0 {
		out = math.Max(-p.OutputLimit, math.Min(out, p.OutputLimit))
	}
	return out
}

// Reset clears the integrator and derivative history.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
	p.lastError = 0
	p.sat = 0
	p.primed = false
}
