package model

import (
	"math/big"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// StakeEpoch is the fixed span of heights, in blocks, over which the
// active staker set is frozen (spec §3: "STAKE_EPOCH = 200 000").
const StakeEpoch = 200_000

// Epoch returns the epoch a height falls in.
func Epoch(h BlockHeight) uint64 {
	return uint64(h) / StakeEpoch
}

// StakeDoc records one staking transaction's locked voting power and the
// epoch range over which it counts.
type StakeDoc struct {
	Pubkey     crypto.PublicKey
	EStart     uint64
	EPostEnd   uint64
	SymsStaked CoinValue
}

// Active reports whether this stake counts toward epoch e's voting power.
// e_post_end is exclusive: a doc exactly at e_post_end is NOT active in
// that epoch (spec §8 boundary behavior).
func (s *StakeDoc) Active(e uint64) bool {
	return s.EStart <= e && e < s.EPostEnd
}

func (s *StakeDoc) EncodeStd(w *stdcode.Writer) {
	w.Blob(s.Pubkey)
	w.Uvarint(s.EStart)
	w.Uvarint(s.EPostEnd)
	s.SymsStaked.EncodeStd(w)
}

func (s *StakeDoc) DecodeStd(r *stdcode.Reader) error {
	pk, err := r.Blob()
	if err != nil {
		return err
	}
	s.Pubkey = pk

	eStart, err := r.Uvarint()
	if err != nil {
		return err
	}
	s.EStart = eStart

	ePostEnd, err := r.Uvarint()
	if err != nil {
		return err
	}
	s.EPostEnd = ePostEnd

	return s.SymsStaked.DecodeStd(r)
}

// VotingPower computes, for every active stake in epoch e, its share of
// the total active SymsStaked — the fraction used for notarization
// thresholds and leader selection weighting.
func VotingPower(stakes map[HashVal]*StakeDoc, e uint64) map[string]float64 {
	totals := make(map[string]CoinValue)
	var grandTotal CoinValue

	for _, doc := range stakes {
		if !doc.Active(e) {
			continue
		}
		key := string(doc.Pubkey)
		totals[key] = totals[key].Add(doc.SymsStaked)
		grandTotal = grandTotal.Add(doc.SymsStaked)
	}

	out := make(map[string]float64, len(totals))
	if grandTotal.IsZero() {
		return out
	}
	totalF := new(big.Float).SetInt(grandTotal.BigInt())
	totalF64, _ := totalF.Float64()
	for k, v := range totals {
		vF64, _ := new(big.Float).SetInt(v.BigInt()).Float64()
		out[k] = vF64 / totalF64
	}
	return out
}
