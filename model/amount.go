package model

import (
	"fmt"
	"math/big"

	"github.com/themelio-labs/themelio-core/stdcode"
)

// CoinValue is a saturating 128-bit unsigned integer: the width the spec
// requires for every coin value, regardless of denom. Arithmetic routes
// through math/big so intermediates (AMM products, liquidity deposits)
// never overflow before the final saturate-into-u128 step.
type CoinValue struct {
	Hi uint64
	Lo uint64
}

var maxCoinValue = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ZeroCoinValue is the additive identity; outputs valued at it are rejected
// by the STF (spec §4.D.1: "an output's value is zero").
var ZeroCoinValue = CoinValue{}

func NewCoinValue(x uint64) CoinValue {
	return CoinValue{Lo: x}
}

func (c CoinValue) BigInt() *big.Int {
	out := new(big.Int).Lsh(new(big.Int).SetUint64(c.Hi), 64)
	out.Or(out, new(big.Int).SetUint64(c.Lo))
	return out
}

// CoinValueFromBigInt saturates x into the [0, 2^128-1] range.
func CoinValueFromBigInt(x *big.Int) CoinValue {
	if x.Sign() <= 0 {
		return CoinValue{}
	}
	if x.Cmp(maxCoinValue) > 0 {
		x = maxCoinValue
	}
	mask64 := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(x, mask64).Uint64()
	hi := new(big.Int).Rsh(x, 64).Uint64()
	return CoinValue{Hi: hi, Lo: lo}
}

// Add returns c+o, saturating at 2^128-1.
func (c CoinValue) Add(o CoinValue) CoinValue {
	return CoinValueFromBigInt(new(big.Int).Add(c.BigInt(), o.BigInt()))
}

// Sub returns c-o and true, or (0, false) if the subtraction would underflow.
func (c CoinValue) Sub(o CoinValue) (CoinValue, bool) {
	diff := new(big.Int).Sub(c.BigInt(), o.BigInt())
	if diff.Sign() < 0 {
		return CoinValue{}, false
	}
	return CoinValueFromBigInt(diff), true
}

func (c CoinValue) Mul(o CoinValue) CoinValue {
	return CoinValueFromBigInt(new(big.Int).Mul(c.BigInt(), o.BigInt()))
}

func (c CoinValue) Cmp(o CoinValue) int {
	return c.BigInt().Cmp(o.BigInt())
}

func (c CoinValue) IsZero() bool {
	return c.Hi == 0 && c.Lo == 0
}

func (c CoinValue) String() string {
	return c.BigInt().String()
}

// EncodeStd writes the value as two uvarints (hi, lo); this is what "varint
// encoding extended to 128 bits" means for stdcode's variable-width-integer
// rule.
func (c CoinValue) EncodeStd(w *stdcode.Writer) {
	w.Uvarint(c.Hi)
	w.Uvarint(c.Lo)
}

// MarshalYAML renders a CoinValue as its decimal string, so genesis/staker
// config files can write arbitrarily large values without caring about
// the Hi/Lo split.
func (c CoinValue) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// UnmarshalYAML parses a CoinValue from its decimal string form.
func (c *CoinValue) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid CoinValue %q", s)
	}
	*c = CoinValueFromBigInt(x)
	return nil
}

func (c *CoinValue) DecodeStd(r *stdcode.Reader) error {
	hi, err := r.Uvarint()
	if err != nil {
		return err
	}
	lo, err := r.Uvarint()
	if err != nil {
		return err
	}
	c.Hi = hi
	c.Lo = lo
	return nil
}
