package model

import (
	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// NetworkID distinguishes mainnet from the test networks where Faucet
// transactions are allowed (spec §4.D.2: "Only valid on non-mainnet").
type NetworkID uint8

const (
	NetworkMainnet NetworkID = iota
	NetworkTestnet
)

// Header is the pure function of (State, ProposerAction) that identifies a
// sealed block: every *_hash field is the root of the corresponding SMT in
// the sealed state.
type Header struct {
	Network          NetworkID
	Previous         HashVal
	Height           BlockHeight
	HistoryHash      HashVal
	CoinsHash        HashVal
	TransactionsHash HashVal
	FeePool          CoinValue
	FeeMultiplier    uint64
	DoscSpeed        uint64
	PoolsHash        HashVal
	StakesHash       HashVal
}

func (h *Header) EncodeStd(w *stdcode.Writer) {
	w.U8(uint8(h.Network))
	w.Fixed(h.Previous[:])
	w.Uvarint(uint64(h.Height))
	w.Fixed(h.HistoryHash[:])
	w.Fixed(h.CoinsHash[:])
	w.Fixed(h.TransactionsHash[:])
	h.FeePool.EncodeStd(w)
	w.Uvarint(h.FeeMultiplier)
	w.Uvarint(h.DoscSpeed)
	w.Fixed(h.PoolsHash[:])
	w.Fixed(h.StakesHash[:])
}

func (h *Header) DecodeStd(r *stdcode.Reader) error {
	net, err := r.U8()
	if err != nil {
		return err
	}
	h.Network = NetworkID(net)

	prev, err := r.Fixed(crypto.HashSize)
	if err != nil {
		return err
	}
	h.Previous = crypto.HashFromBytes(prev)

	height, err := r.Uvarint()
	if err != nil {
		return err
	}
	h.Height = BlockHeight(height)

	for _, dst := range []*HashVal{&h.HistoryHash, &h.CoinsHash, &h.TransactionsHash} {
		b, err := r.Fixed(crypto.HashSize)
		if err != nil {
			return err
		}
		*dst = crypto.HashFromBytes(b)
	}

	if err := h.FeePool.DecodeStd(r); err != nil {
		return err
	}

	feeMult, err := r.Uvarint()
	if err != nil {
		return err
	}
	h.FeeMultiplier = feeMult

	doscSpeed, err := r.Uvarint()
	if err != nil {
		return err
	}
	h.DoscSpeed = doscSpeed

	for _, dst := range []*HashVal{&h.PoolsHash, &h.StakesHash} {
		b, err := r.Fixed(crypto.HashSize)
		if err != nil {
			return err
		}
		*dst = crypto.HashFromBytes(b)
	}

	return nil
}

// Hash is the header's identity: the keyed BLAKE3 hash of its canonical
// encoding, used as the block hash everywhere (consensus votes, history
// keys, SMT proofs).
func (h *Header) Hash() HashVal {
	w := stdcode.NewWriter()
	h.EncodeStd(w)
	return crypto.Keyed(crypto.DomainHeader, w.Bytes())
}

// ProposerAction is the per-block policy vector chosen by the block's
// proposer: where the reward coin goes, and which direction to nudge the
// fee multiplier.
type ProposerAction struct {
	FeeMultiplierDelta int8
	RewardDest         Address
}

func (a *ProposerAction) EncodeStd(w *stdcode.Writer) {
	w.U8(uint8(a.FeeMultiplierDelta))
	w.Fixed(a.RewardDest[:])
}

func (a *ProposerAction) DecodeStd(r *stdcode.Reader) error {
	delta, err := r.U8()
	if err != nil {
		return err
	}
	a.FeeMultiplierDelta = int8(delta)

	b, err := r.Fixed(crypto.HashSize)
	if err != nil {
		return err
	}
	a.RewardDest = crypto.HashFromBytes(b)
	return nil
}
