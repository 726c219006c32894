// market/simulator.go
package market

import (
	"math"
	"time"
)

// Params are the constants of the price process.
type Params struct {
	Initial     float64 // starting price
	Mean        float64 // long-run mean μ
	Reversion   float64 // mean-reversion strength θ
	Momentum    float64 // trend-following coefficient α
	Volatility  float64 // noise scale σ
	HistorySize int
}

func DefaultParams() Params {
	return Params{
		Initial:     100,
		Mean:        100,
		Reversion:   0.05,
		Momentum:    0.1,
		Volatility:  1,
		HistorySize: 60,
	}
}

// Sample is one recorded price.
type Sample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Simulator is a mean-reverting price process with a momentum term:
//
//	delta = θ(μ - current) + α(current - previous) + σz
//
// The price is floored at zero. Simulator is not safe for concurrent use; the
// room loop owns it.
type Simulator struct {
	params   Params
	source   NormalSource
	now      func() time.Time
	current  float64
	previous float64
	history  []Sample
}

func NewSimulator(params Params, source NormalSource) *Simulator {
	if source == nil {
		source = NewBoxMuller()
	}
	if params.HistorySize <= 0 {
		params.HistorySize = DefaultParams().HistorySize
	}
	initial := math.Max(params.Initial, 0)
	s := &Simulator{
		params:   params,
		source:   source,
		now:      time.Now,
		current:  initial,
		previous: initial,
	}
	s.record()
	return s
}

// Tick advances the process by one step using a fresh deviate.
func (s *Simulator) Tick() float64 {
	return s.Step(s.source.Normal())
}

// Step advances the process with the given standard-normal deviate z.
func (s *Simulator) Step(z float64) float64 {
	p := s.params
	delta := p.Reversion*(p.Mean-s.current) + p.Momentum*(s.current-s.previous) + p.Volatility*z
	s.previous = s.current
	s.current = math.Max(s.current+delta, 0)
	s.record()
	return s.current
}

func (s *Simulator) record() {
	s.history = append(s.history, Sample{At: s.now(), Value: s.current})
	if over := len(s.history) - s.params.HistorySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

func (s *Simulator) Current() float64 {
	return s.current
}

// Change is the move of the last tick.
func (s *Simulator) Change() float64 {
	return s.current - s.previous
}

// History returns the retained samples, oldest first.
func (s *Simulator) History() []Sample {
	out := make([]Sample, len(s.history))
	copy(out, s.history)
	return out
}
