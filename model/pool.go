package model

import "github.com/themelio-labs/themelio-core/stdcode"

// PoolState is a Melswap constant-product liquidity reserve for one denom
// (the other side is always implicitly Mel). PriceAccum is a running,
// saturating sum of (mels/tokens)*1e6 samples, used by off-chain observers
// to compute a TWAP; the STF never reads it back.
type PoolState struct {
	Mels       CoinValue
	Tokens     CoinValue
	PriceAccum CoinValue
	Liqs       CoinValue
}

func (p *PoolState) EncodeStd(w *stdcode.Writer) {
	p.Mels.EncodeStd(w)
	p.Tokens.EncodeStd(w)
	p.PriceAccum.EncodeStd(w)
	p.Liqs.EncodeStd(w)
}

func (p *PoolState) DecodeStd(r *stdcode.Reader) error {
	for _, dst := range []*CoinValue{&p.Mels, &p.Tokens, &p.PriceAccum, &p.Liqs} {
		if err := dst.DecodeStd(r); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether the pool has never been seeded (or has been
// fully drained back to zero reserves).
func (p *PoolState) IsEmpty() bool {
	return p.Mels.IsZero() && p.Tokens.IsZero()
}
