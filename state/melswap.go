package state

import (
	"math/big"

	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
)

// swapFeeNum/swapFeeDenom is the 0.5% Melswap fee (spec §4.D.3: "995/1000").
var (
	swapFeeNum      = big.NewInt(995)
	swapFeeDenom    = big.NewInt(1000)
	priceAccumScale = big.NewInt(1_000_000)
)

// Swap applies a deposit of deltaMels mels and deltaTokens tokens to pool,
// returning the mutated pool and the (melOut, tokenOut) the depositor
// receives. All intermediates are math/big so nothing overflows before the
// final saturate-into-u128 step (spec §4.D.3).
func Swap(pool *model.PoolState, deltaMels, deltaTokens model.CoinValue) (*model.PoolState, model.CoinValue, model.CoinValue, error) {
	if pool.IsEmpty() {
		return nil, model.CoinValue{}, model.CoinValue{}, errors.New(errors.ErrBadMelswap, "cannot swap against an empty pool")
	}

	mels := pool.Mels.BigInt()
	tokens := pool.Tokens.BigInt()

	melsPrime := new(big.Int).Add(mels, deltaMels.BigInt())
	tokensPrime := new(big.Int).Add(tokens, deltaTokens.BigInt())

	// Indicative rate r = mels'/tokens', kept as an exact fraction: every
	// use below multiplies through instead of dividing first.
	tokenOut := big.NewInt(0)
	if deltaMels.BigInt().Sign() > 0 && tokensPrime.Sign() > 0 {
		// token_out = (Δm / r) * 995/1000 = Δm * tokens' / mels' * 995/1000
		tokenOut = new(big.Int).Mul(deltaMels.BigInt(), tokensPrime)
		tokenOut.Mul(tokenOut, swapFeeNum)
		tokenOut.Div(tokenOut, new(big.Int).Mul(melsPrime, swapFeeDenom))
	}

	melOut := big.NewInt(0)
	if deltaTokens.BigInt().Sign() > 0 && tokensPrime.Sign() > 0 {
		// mel_out = (Δt * r) * 995/1000 = Δt * mels' / tokens' * 995/1000
		melOut = new(big.Int).Mul(deltaTokens.BigInt(), melsPrime)
		melOut.Mul(melOut, swapFeeNum)
		melOut.Div(melOut, new(big.Int).Mul(tokensPrime, swapFeeDenom))
	}

	if tokenOut.Cmp(tokensPrime) >= 0 || melOut.Cmp(melsPrime) >= 0 {
		return nil, model.CoinValue{}, model.CoinValue{}, errors.New(errors.ErrBadMelswap, "swap would drain pool reserves")
	}

	melsPrime.Sub(melsPrime, melOut)
	tokensPrime.Sub(tokensPrime, tokenOut)

	priceAccum := pool.PriceAccum
	if tokens.Sign() > 0 {
		sample := new(big.Int).Mul(mels, priceAccumScale)
		sample.Div(sample, tokens)
		priceAccum = priceAccum.Add(model.CoinValueFromBigInt(sample))
	}

	next := &model.PoolState{
		Mels:       model.CoinValueFromBigInt(melsPrime),
		Tokens:     model.CoinValueFromBigInt(tokensPrime),
		PriceAccum: priceAccum,
		Liqs:       pool.Liqs,
	}
	return next, model.CoinValueFromBigInt(melOut), model.CoinValueFromBigInt(tokenOut), nil
}

// Deposit adds (m, t) liquidity to pool (creating it if empty) and returns
// the mutated pool plus the liquidity tokens minted (spec §4.D.3).
func Deposit(pool *model.PoolState, m, t model.CoinValue) (*model.PoolState, model.CoinValue) {
	if pool == nil {
		pool = &model.PoolState{}
	}
	if pool.IsEmpty() {
		return &model.PoolState{Mels: m, Tokens: t, PriceAccum: pool.PriceAccum, Liqs: m}, m
	}

	mels := pool.Mels.BigInt()
	tokens := pool.Tokens.BigInt()
	liqs := pool.Liqs.BigInt()

	// Δl = floor( sqrt( liqs^2 * m*t / (mels*tokens) ) )
	num := new(big.Int).Mul(liqs, liqs)
	num.Mul(num, m.BigInt())
	num.Mul(num, t.BigInt())
	denom := new(big.Int).Mul(mels, tokens)

	var deltaL *big.Int
	if denom.Sign() == 0 {
		deltaL = big.NewInt(0)
	} else {
		ratio := new(big.Int).Div(num, denom)
		deltaL = new(big.Int).Sqrt(ratio)
	}

	next := &model.PoolState{
		Mels:       pool.Mels.Add(m),
		Tokens:     pool.Tokens.Add(t),
		PriceAccum: pool.PriceAccum,
		Liqs:       pool.Liqs.Add(model.CoinValueFromBigInt(deltaL)),
	}
	return next, model.CoinValueFromBigInt(deltaL)
}

// Withdraw burns liqsIn liquidity tokens from pool and returns the mutated
// pool plus the (mels, tokens) payout (spec §4.D.3). If the withdrawal
// drains every outstanding liquidity token, reserves reset to exactly zero.
func Withdraw(pool *model.PoolState, liqsIn model.CoinValue) (*model.PoolState, model.CoinValue, model.CoinValue, error) {
	if liqsIn.Cmp(pool.Liqs) > 0 {
		return nil, model.CoinValue{}, model.CoinValue{}, errors.New(errors.ErrBadMelswap, "withdrawing more liquidity than the pool has outstanding")
	}

	liqs := pool.Liqs.BigInt()
	melOut := big.NewInt(0)
	tokenOut := big.NewInt(0)
	if liqs.Sign() > 0 {
		melOut.Mul(pool.Mels.BigInt(), liqsIn.BigInt())
		melOut.Div(melOut, liqs)
		tokenOut.Mul(pool.Tokens.BigInt(), liqsIn.BigInt())
		tokenOut.Div(tokenOut, liqs)
	}

	remainingLiqs, _ := pool.Liqs.Sub(liqsIn)

	next := &model.PoolState{PriceAccum: pool.PriceAccum}
	if remainingLiqs.IsZero() {
		// Pool drained: reset reserves to exactly zero (spec §4.D.3).
		next.Mels = model.CoinValue{}
		next.Tokens = model.CoinValue{}
		next.Liqs = model.CoinValue{}
	} else {
		melRemain, _ := pool.Mels.Sub(model.CoinValueFromBigInt(melOut))
		tokenRemain, _ := pool.Tokens.Sub(model.CoinValueFromBigInt(tokenOut))
		next.Mels = melRemain
		next.Tokens = tokenRemain
		next.Liqs = remainingLiqs
	}

	return next, model.CoinValueFromBigInt(melOut), model.CoinValueFromBigInt(tokenOut), nil
}
