package common

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Fixed-point values (rates, prices, ratios) are integers scaled by WAD. All
// divisions truncate toward zero.
var (
	WAD = big.NewInt(1_000_000_000_000_000_000)
	// HundredWAD expresses 100% in the collateralization ratio scale.
	HundredWAD = new(big.Int).Mul(big.NewInt(100), WAD)
)

var (
	errMathOverflow = NewError(ErrValidation, "math", "math-overflow")
	errDivByZero    = NewError(ErrValidation, "math", "division-by-zero")
	errNegative     = NewError(ErrValidation, "math", "negative-operand")
)

// MulDiv returns a*b/d truncated. Operands and result are bounded to 256 bits
// the way the on-chain counterparts are.
func MulDiv(a, b, d *big.Int) (*big.Int, error) {
	x, err := toUint256(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint256(b)
	if err != nil {
		return nil, err
	}
	z, err := toUint256(d)
	if err != nil {
		return nil, err
	}
	if z.IsZero() {
		return nil, errDivByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, y, z)
	if overflow {
		return nil, errMathOverflow
	}
	return out.ToBig(), nil
}

// Mul returns a*b, failing on 256-bit overflow.
func Mul(a, b *big.Int) (*big.Int, error) {
	x, err := toUint256(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint256(b)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, errMathOverflow
	}
	return out.ToBig(), nil
}

// Add returns a+b, failing on 256-bit overflow.
func Add(a, b *big.Int) (*big.Int, error) {
	x, err := toUint256(a)
	if err != nil {
		return nil, err
	}
	y, err := toUint256(b)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, errMathOverflow
	}
	return out.ToBig(), nil
}

// Div returns a/d truncated.
func Div(a, d *big.Int) (*big.Int, error) {
	return MulDiv(a, big.NewInt(1), d)
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, errNegative
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errMathOverflow
	}
	return out, nil
}

// CloneBig returns a copy of v, mapping nil to zero.
func CloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
