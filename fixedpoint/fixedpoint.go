// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fixedpoint implements scaled-integer math over 256-bit unsigned
// values. All fractional quantities are represented as integers multiplied
// by 10^precision; operations are deterministic, use checked arithmetic and
// never touch floating point.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

// DefaultPrecision is the decimal scale used across the TWAMM precompiles
// (1e18, matching ERC20 conventions).
const DefaultPrecision uint8 = 18

// Taylor series length for Exp and iteration cap for Ln.
const (
	expTaylorTerms  = 20
	lnMaxIterations = 50
)

// expInputLimit is the largest whole-unit argument accepted by Exp. Beyond
// ~50 the truncated series diverges from e^x faster than it converges.
const expInputLimit = 50

var (
	ErrOverflow       = errors.New("fixed-point overflow")
	ErrDivisionByZero = errors.New("fixed-point division by zero")
	ErrInvalidInput   = errors.New("fixed-point invalid input")
)

var (
	one = uint256.NewInt(1)
	two = uint256.NewInt(2)
	ten = uint256.NewInt(10)

	// halfMax is MaxUint256/2, the intermediate-result ceiling for Pow.
	halfMax = new(uint256.Int).Rsh(new(uint256.Int).SetAllOne(), 1)
)

// One returns 10^precision, the scaled representation of 1.
func One(precision uint8) *uint256.Int {
	return new(uint256.Int).Exp(ten, uint256.NewInt(uint64(precision)))
}

// Sqrt computes the integer square root of x using Newton's method.
// The iteration terminates when the candidate stops decreasing, which for
// an integer Babylonian sequence yields floor(sqrt(x)). Sqrt(0) = 0.
func Sqrt(x *uint256.Int) *uint256.Int {
	if x.IsZero() {
		return uint256.NewInt(0)
	}
	if x.Eq(one) {
		return uint256.NewInt(1)
	}

	z := x.Clone()
	y := new(uint256.Int).Add(x, one)
	y.Div(y, two)

	for y.Lt(z) {
		z.Set(y)
		next := new(uint256.Int).Div(x, y)
		next.Add(next, y)
		next.Div(next, two)
		y = next
	}
	return z
}

// Exp computes e^x for a scaled argument via a truncated Taylor series:
// e^x = 1 + x + x^2/2! + ... (20 terms). Arguments of 50 whole units or
// more are rejected with ErrOverflow before the series diverges.
func Exp(x *uint256.Int, precision uint8) (*uint256.Int, error) {
	scale := One(precision)

	limit := new(uint256.Int).Mul(uint256.NewInt(expInputLimit), scale)
	if !x.Lt(limit) {
		return nil, ErrOverflow
	}

	result := scale.Clone() // e^0 = 1
	term := scale.Clone()
	factorial := uint256.NewInt(1)

	for i := uint64(1); i <= expTaylorTerms; i++ {
		factorial = new(uint256.Int).Mul(factorial, uint256.NewInt(i))

		next, overflow := new(uint256.Int).MulOverflow(term, x)
		if overflow {
			return nil, ErrOverflow
		}
		term = next.Div(next, scale)

		termValue := new(uint256.Int).Div(term, factorial)
		if termValue.IsZero() {
			break
		}

		result, overflow = new(uint256.Int).AddOverflow(result, termValue)
		if overflow {
			return nil, ErrOverflow
		}
	}
	return result, nil
}

// Ln computes the natural logarithm of a scaled argument with Newton's
// method on Exp: y' = y + 2(x - e^y)/(x + e^y). Runs at most 50 iterations
// or until the step shrinks below 1e-6 scale units. Ln(0) is undefined.
//
// Arguments below 1.0 would have a negative logarithm; the result magnitude
// is still produced from the same iteration, callers owning the sign.
func Ln(x *uint256.Int, precision uint8) (*uint256.Int, error) {
	if x.IsZero() {
		return nil, ErrInvalidInput
	}

	scale := One(precision)
	if x.Eq(scale) {
		return uint256.NewInt(0), nil // ln(1) = 0
	}

	tolerance := new(uint256.Int).Div(scale, uint256.NewInt(1_000_000))

	// Initial guess (x-1)/x, mirrored for x < 1.
	var y *uint256.Int
	if x.Gt(scale) {
		y = new(uint256.Int).Sub(x, scale)
	} else {
		y = new(uint256.Int).Sub(scale, x)
	}
	y.Mul(y, scale)
	y.Div(y, x)

	for i := 0; i < lnMaxIterations; i++ {
		expY, err := Exp(y, precision)
		if err != nil {
			return nil, err
		}

		denominator := new(uint256.Int).Add(x, expY)
		if denominator.IsZero() {
			break
		}

		// Signed step on unsigned words: track direction explicitly.
		var diff *uint256.Int
		ascending := true
		if x.Lt(expY) {
			diff = new(uint256.Int).Sub(expY, x)
			ascending = false
		} else {
			diff = new(uint256.Int).Sub(x, expY)
		}

		delta, overflow := new(uint256.Int).MulOverflow(diff, two)
		if overflow {
			return nil, ErrOverflow
		}
		delta, overflow = new(uint256.Int).MulOverflow(delta, scale)
		if overflow {
			return nil, ErrOverflow
		}
		delta.Div(delta, denominator)

		if delta.Lt(tolerance) {
			break
		}

		if ascending {
			y = new(uint256.Int).Add(y, delta)
		} else if y.Gt(delta) {
			y = new(uint256.Int).Sub(y, delta)
		} else {
			y = uint256.NewInt(0)
		}
	}
	return y, nil
}

// Pow computes base^exp for a scaled base and whole-number exponent using
// binary exponentiation, renormalizing by the scale after every multiply.
// Intermediates above MaxUint256/2 abort with ErrOverflow.
func Pow(base, exp *uint256.Int, precision uint8) (*uint256.Int, error) {
	scale := One(precision)
	if exp.IsZero() {
		return scale, nil // x^0 = 1
	}

	result := scale.Clone()
	basePower := base.Clone()
	exponent := exp.Clone()

	for !exponent.IsZero() {
		if !new(uint256.Int).And(exponent, one).IsZero() {
			next, overflow := new(uint256.Int).MulOverflow(result, basePower)
			if overflow {
				return nil, ErrOverflow
			}
			result = next.Div(next, scale)
		}

		squared, overflow := new(uint256.Int).MulOverflow(basePower, basePower)
		if overflow {
			return nil, ErrOverflow
		}
		basePower = squared.Div(squared, scale)
		exponent = new(uint256.Int).Rsh(exponent, 1)

		if result.Gt(halfMax) {
			return nil, ErrOverflow
		}
	}
	return result, nil
}

// CompoundInterest computes principal * (1+rate)^time, with rate scaled by
// 10^precision and time a whole number of periods.
func CompoundInterest(principal, rate, time *uint256.Int, precision uint8) (*uint256.Int, error) {
	scale := One(precision)

	ratePlusOne, overflow := new(uint256.Int).AddOverflow(scale, rate)
	if overflow {
		return nil, ErrOverflow
	}

	multiplier, err := Pow(ratePlusOne, time, precision)
	if err != nil {
		return nil, err
	}

	result, overflow := new(uint256.Int).MulOverflow(principal, multiplier)
	if overflow {
		return nil, ErrOverflow
	}
	return result.Div(result, scale), nil
}

// TimeDecay returns the executed fraction elapsed/total as a scaled value,
// saturating at 1.0 once elapsed reaches total.
func TimeDecay(elapsed, total *uint256.Int, precision uint8) (*uint256.Int, error) {
	if total.IsZero() {
		return nil, ErrInvalidInput
	}

	scale := One(precision)
	if !elapsed.Lt(total) {
		return scale, nil
	}

	result, overflow := new(uint256.Int).MulOverflow(elapsed, scale)
	if overflow {
		return nil, ErrOverflow
	}
	return result.Div(result, total), nil
}

// MulDiv computes a*b/d with a 512-bit intermediate, failing on a zero
// divisor or a quotient that does not fit 256 bits.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		// Fall back to dividing first when a is a multiple of d; otherwise
		// the full product genuinely exceeds 256 bits.
		if new(uint256.Int).Mod(a, d).IsZero() {
			quotient := new(uint256.Int).Div(a, d)
			result, overflow := new(uint256.Int).MulOverflow(quotient, b)
			if overflow {
				return nil, ErrOverflow
			}
			return result, nil
		}
		return nil, ErrOverflow
	}
	return product.Div(product, d), nil
}
