package market

import (
	"math"
	"math/rand/v2"
)

// NormalSource yields standard-normal deviates.
type NormalSource interface {
	Normal() float64
}

// BoxMuller turns a uniform source into standard-normal deviates.
type BoxMuller struct {
	// Uniform returns values in [0, 1). Nil means the auto-seeded global source.
	Uniform func() float64
}

func NewBoxMuller() *BoxMuller {
	return &BoxMuller{Uniform: rand.Float64}
}

// open returns a uniform draw in (0, 1].
func (b *BoxMuller) open() float64 {
	uniform := b.Uniform
	if uniform == nil {
		uniform = rand.Float64
	}
	return 1 - uniform()
}

func (b *BoxMuller) Normal() float64 {
	u := b.open()
	v := b.open()
	return math.Sqrt(-2*math.Log(u)) * math.Cos(2*math.Pi*v)
}
