package sim

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/mathext/prng"
)

// Engine is a raw uniform integer generator over [Min(), Max()].
type Engine interface {
	Next() uint64
	Min() uint64
	Max() uint64
}

// mtEngine is the 32-bit Mersenne Twister.
type mtEngine struct{ src *prng.MT19937 }

func newMTEngine(seed int64) *mtEngine {
	src := prng.NewMT19937()
	src.Seed(uint64(uint32(seed)))
	return &mtEngine{src: src}
}

func (e *mtEngine) Next() uint64 { return uint64(e.src.Uint32()) }
func (e *mtEngine) Min() uint64  { return 0 }
func (e *mtEngine) Max() uint64  { return math.MaxUint32 }

// minstdEngine is the Park-Miller minimal standard generator with
// multiplier 48271.
type minstdEngine struct{ x uint64 }

const (
	minstdA = 48271
	minstdM = 2147483647
)

func newMinstdEngine(seed int64) *minstdEngine {
	x := uint64(seed) % minstdM
	if x == 0 {
		x = 1
	}
	return &minstdEngine{x: x}
}

func (e *minstdEngine) Next() uint64 {
	e.x = e.x * minstdA % minstdM
	return e.x
}
func (e *minstdEngine) Min() uint64 { return 1 }
func (e *minstdEngine) Max() uint64 { return minstdM - 1 }

// swcEngine is a subtract-with-carry generator x(i) = x(i-s) - x(i-r) - c
// mod 2^w, seeded the way the RANLUX base generators are.
type swcEngine struct {
	w     uint
	s, r  int
	x     []uint64
	carry uint64
	p     int
}

func newSWCEngine(w uint, s, r int, seed int64) *swcEngine {
	e := &swcEngine{w: w, s: s, r: r, x: make([]uint64, r)}

	// Linear congruential seeder: a=40014, c=0, m=2147483563.
	const lcgA, lcgM = 40014, 2147483563
	v := uint64(uint32(seed))
	if v == 0 {
		v = 19780503
	}
	lcg := v % lcgM
	if lcg == 0 {
		lcg = 1
	}
	words := int((w + 31) / 32)
	mask := uint64(1)<<w - 1
	for i := 0; i < r; i++ {
		var sum, factor uint64 = 0, 1
		for j := 0; j < words; j++ {
			lcg = lcg * lcgA % lcgM
			sum += lcg * factor
			factor <<= 32
		}
		e.x[i] = sum & mask
	}
	if e.x[r-1] == 0 {
		e.carry = 1
	}
	return e
}

func (e *swcEngine) Next() uint64 {
	ps := e.p - e.s
	if ps < 0 {
		ps += e.r
	}
	var xi uint64
	if e.x[ps] >= e.x[e.p]+e.carry {
		xi = e.x[ps] - e.x[e.p] - e.carry
		e.carry = 0
	} else {
		xi = (uint64(1) << e.w) - e.x[e.p] - e.carry + e.x[ps]
		e.carry = 1
	}
	e.x[e.p] = xi
	e.p++
	if e.p >= e.r {
		e.p = 0
	}
	return xi
}
func (e *swcEngine) Min() uint64 { return 0 }
func (e *swcEngine) Max() uint64 { return uint64(1)<<e.w - 1 }

// discardBlock returns used values out of every block of base values.
type discardBlock struct {
	base  *swcEngine
	block int
	used  int
	n     int
}

func (d *discardBlock) Next() uint64 {
	if d.n >= d.used {
		for i := d.used; i < d.block; i++ {
			d.base.Next()
		}
		d.n = 0
	}
	d.n++
	return d.base.Next()
}
func (d *discardBlock) Min() uint64 { return d.base.Min() }
func (d *discardBlock) Max() uint64 { return d.base.Max() }

func newRanlux24(seed int64) *discardBlock {
	return &discardBlock{base: newSWCEngine(24, 10, 24, seed), block: 223, used: 23}
}

func newRanlux48(seed int64) *discardBlock {
	return &discardBlock{base: newSWCEngine(48, 5, 12, seed), block: 389, used: 11}
}

// deviceEngine reads the operating system entropy source. It ignores seeds
// and is not reproducible.
type deviceEngine struct{ buf [8]byte }

func (e *deviceEngine) Next() uint64 {
	if _, err := crand.Read(e.buf[:]); err != nil {
		panic("kmcsim: entropy source unavailable: " + err.Error())
	}
	return binary.LittleEndian.Uint64(e.buf[:])
}
func (e *deviceEngine) Min() uint64 { return 0 }
func (e *deviceEngine) Max() uint64 { return math.MaxUint64 }
