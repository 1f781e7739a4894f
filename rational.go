package av

import (
	"fmt"
	"math"
	"math/big"
)

// NoPTS marks an unset timestamp.
const NoPTS int64 = math.MinInt64

// Rational is a fraction used for time bases and frame rates.
type Rational struct {
	Num int
	Den int
}

// R is shorthand for Rational{num, den}.
func R(num, den int) Rational { return Rational{Num: num, Den: den} }

// IsZero reports whether the rational is unset (0/x or x/0).
func (r Rational) IsZero() bool { return r.Num == 0 || r.Den == 0 }

// Inv returns den/num.
func (r Rational) Inv() Rational { return Rational{Num: r.Den, Den: r.Num} }

// Float64 returns the value as a float. A zero denominator yields 0.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

// Reduce returns the fraction in lowest terms with a positive denominator.
func (r Rational) Reduce() Rational {
	if r.Den == 0 {
		return r
	}
	a, b := r.Num, r.Den
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return Rational{Num: 0, Den: 1}
	}
	if r.Den < 0 {
		a = -a
	}
	return Rational{Num: r.Num / a, Den: r.Den / a}
}

// RationalFromFloat approximates f with a fraction whose numerator and
// denominator do not exceed max.
func RationalFromFloat(f float64, max int) Rational {
	if math.IsNaN(f) || max <= 0 {
		return Rational{}
	}
	if math.IsInf(f, 0) {
		if f > 0 {
			return Rational{Num: 1}
		}
		return Rational{Num: -1}
	}
	sign := 1
	if f < 0 {
		sign, f = -1, -f
	}
	// Continued fraction expansion, keeping the last convergent in range.
	h0, h1 := 0, 1
	k0, k1 := 1, 0
	x := f
	for i := 0; i < 64; i++ {
		a := math.Floor(x)
		if a > float64(max) {
			break
		}
		ai := int(a)
		h2 := ai*h1 + h0
		k2 := ai*k1 + k0
		if h2 > max || k2 > max {
			break
		}
		h0, h1 = h1, h2
		k0, k1 = k1, k2
		frac := x - a
		if frac < 1e-12 {
			break
		}
		x = 1 / frac
	}
	if k1 == 0 {
		return Rational{Num: sign * max, Den: 1}
	}
	return Rational{Num: sign * h1, Den: k1}
}

var (
	maxTS = big.NewInt(math.MaxInt64)
	minTS = big.NewInt(NoPTS + 1)
)

// Rescale converts v from time base from to time base to, rounding to the
// nearest value with halves away from zero. NoPTS passes through unchanged;
// results outside int64 saturate and never become NoPTS.
func Rescale(v int64, from, to Rational) int64 {
	if v == NoPTS {
		return NoPTS
	}
	if from == to || from.IsZero() || to.IsZero() {
		return v
	}
	// v * from.Num * to.Den / (from.Den * to.Num)
	num := new(big.Int).Mul(big.NewInt(v), big.NewInt(int64(from.Num)))
	num.Mul(num, big.NewInt(int64(to.Den)))
	den := new(big.Int).Mul(big.NewInt(int64(from.Den)), big.NewInt(int64(to.Num)))
	if den.Sign() < 0 {
		num.Neg(num)
		den.Neg(den)
	}
	half := new(big.Int).Rsh(den, 1)
	if num.Sign() >= 0 {
		num.Add(num, half)
	} else {
		num.Sub(num, half)
	}
	q := new(big.Int).Quo(num, den)
	switch {
	case q.Cmp(maxTS) > 0:
		return math.MaxInt64
	case q.Cmp(minTS) < 0:
		return NoPTS + 1
	}
	return q.Int64()
}
