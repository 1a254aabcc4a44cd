package model

import (
	"fmt"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// DenomKind tags which variant of the Denom union a value holds.
type DenomKind uint8

const (
	DenomMel DenomKind = iota
	DenomSym
	DenomNomDosc
	DenomCustom
	DenomNewCoin
)

// Denom is the tagged union identifying a fungible asset class. Custom only
// carries meaning when Kind == DenomCustom; NewCoin is a transaction-output
// marker ("mint a new custom denom whose id equals this tx's hash") and
// never appears inside a sealed Pool or CoinData once the mint has been
// applied.
type Denom struct {
	Kind   DenomKind
	Custom crypto.Hash
}

func Mel() Denom     { return Denom{Kind: DenomMel} }
func Sym() Denom     { return Denom{Kind: DenomSym} }
func NomDosc() Denom { return Denom{Kind: DenomNomDosc} }
func NewCoin() Denom { return Denom{Kind: DenomNewCoin} }

func CustomDenom(h crypto.Hash) Denom {
	return Denom{Kind: DenomCustom, Custom: h}
}

// PoolLiqDenom returns the liquidity-token denom for pool D (spec Open
// Question 3). It is keyed BLAKE3 of D's token hash under a dedicated
// domain tag, which is collision-free with any Custom(HashVal) denom: a
// Custom denom's Hash is always either a raw minting-tx hash or another
// PoolLiqDenom's own keyed hash, and DomainPoolLiqToken never appears as an
// input to any other hash in the system, so no token hash can coincide with
// a pool-liq hash for a different pool.
func PoolLiqDenom(d Denom) Denom {
	return Denom{Kind: DenomCustom, Custom: crypto.Keyed(crypto.DomainPoolLiqToken, d.Custom[:])}
}

func (d Denom) Equal(o Denom) bool {
	if d.Kind != o.Kind {
		return false
	}
	if d.Kind == DenomCustom {
		return d.Custom == o.Custom
	}
	return true
}

func (d Denom) String() string {
	switch d.Kind {
	case DenomMel:
		return "MEL"
	case DenomSym:
		return "SYM"
	case DenomNomDosc:
		return "NOMDOSC"
	case DenomNewCoin:
		return "(new)"
	case DenomCustom:
		return fmt.Sprintf("CUSTOM-%s", d.Custom)
	default:
		return "?"
	}
}

func (d Denom) EncodeStd(w *stdcode.Writer) {
	w.U8(uint8(d.Kind))
	if d.Kind == DenomCustom {
		w.Fixed(d.Custom[:])
	}
}

func (d *Denom) DecodeStd(r *stdcode.Reader) error {
	kind, err := r.U8()
	if err != nil {
		return err
	}
	d.Kind = DenomKind(kind)
	if d.Kind > DenomNewCoin {
		return errors.New(errors.ErrCorrupt, "denom: unknown kind %d", kind)
	}
	if d.Kind == DenomCustom {
		b, err := r.Fixed(crypto.HashSize)
		if err != nil {
			return err
		}
		d.Custom = crypto.HashFromBytes(b)
	}
	return nil
}
