package model

import (
	"encoding/binary"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// HashVal and Address are both plain 32-byte BLAKE3 digests; Address is a
// covenant hash, HashVal is everything else (tx hashes, pool ids, ...).
type HashVal = crypto.Hash
type Address = crypto.Hash

// BlockHeight indexes the chain; genesis is height 0.
type BlockHeight uint64

// CoinID identifies a single coin: the hash of the transaction that
// created it plus its output index.
type CoinID struct {
	TxHash HashVal
	Index  uint8
}

// ProposerRewardCoinID returns the reserved pseudo-coin id representing
// height h's proposer payout. It is not a real transaction output, so its
// TxHash is a keyed hash over the height rather than any tx's hash_nosigs().
func ProposerRewardCoinID(h BlockHeight) CoinID {
	var heightBytes [8]byte
	binary.BigEndian.PutUint64(heightBytes[:], uint64(h))
	return CoinID{TxHash: crypto.Keyed(crypto.DomainProposerRwd, heightBytes[:]), Index: 0}
}

func (c CoinID) EncodeStd(w *stdcode.Writer) {
	w.Fixed(c.TxHash[:])
	w.U8(c.Index)
}

func (c *CoinID) DecodeStd(r *stdcode.Reader) error {
	h, err := r.Fixed(crypto.HashSize)
	if err != nil {
		return err
	}
	idx, err := r.U8()
	if err != nil {
		return err
	}
	c.TxHash = crypto.HashFromBytes(h)
	c.Index = idx
	return nil
}

// CoinData is the spendable payload of a coin: who may spend it
// (Covhash), how much (Value, Denom), and arbitrary application data.
type CoinData struct {
	Covhash        Address
	Value          CoinValue
	Denom          Denom
	AdditionalData []byte
}

func (c *CoinData) EncodeStd(w *stdcode.Writer) {
	w.Fixed(c.Covhash[:])
	c.Value.EncodeStd(w)
	c.Denom.EncodeStd(w)
	w.Blob(c.AdditionalData)
}

func (c *CoinData) DecodeStd(r *stdcode.Reader) error {
	b, err := r.Fixed(crypto.HashSize)
	if err != nil {
		return err
	}
	c.Covhash = crypto.HashFromBytes(b)
	if err := c.Value.DecodeStd(r); err != nil {
		return err
	}
	if err := c.Denom.DecodeStd(r); err != nil {
		return err
	}
	data, err := r.Blob()
	if err != nil {
		return err
	}
	c.AdditionalData = data
	return nil
}

// CoinDataHeight pairs a coin with the height at which it was created, the
// value stored in the coins SMT.
type CoinDataHeight struct {
	CoinData      CoinData
	HeightCreated BlockHeight
}

func (c *CoinDataHeight) EncodeStd(w *stdcode.Writer) {
	c.CoinData.EncodeStd(w)
	w.Uvarint(uint64(c.HeightCreated))
}

func (c *CoinDataHeight) DecodeStd(r *stdcode.Reader) error {
	if err := c.CoinData.DecodeStd(r); err != nil {
		return err
	}
	h, err := r.Uvarint()
	if err != nil {
		return err
	}
	c.HeightCreated = BlockHeight(h)
	return nil
}
