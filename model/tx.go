package model

import (
	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// TxKind selects which balance/validity rule apply_tx enforces (spec
// §4.D.2 step 5).
type TxKind uint8

const (
	TxNormal TxKind = iota
	TxStake
	TxDoscMint
	TxSwap
	TxLiqDeposit
	TxLiqWithdraw
	TxFaucet
)

func (k TxKind) String() string {
	switch k {
	case TxNormal:
		return "Normal"
	case TxStake:
		return "Stake"
	case TxDoscMint:
		return "DoscMint"
	case TxSwap:
		return "Swap"
	case TxLiqDeposit:
		return "LiqDeposit"
	case TxLiqWithdraw:
		return "LiqWithdraw"
	case TxFaucet:
		return "Faucet"
	default:
		return "Unknown"
	}
}

// Transaction is the wire/persisted unit of state change. hash_nosigs()
// covers every field except Sigs: Sigs authorize that hash, while
// Covenants are free bytecode the VM executes against it (spec §3).
type Transaction struct {
	Kind      TxKind
	Inputs    []CoinID
	Outputs   []CoinData
	Fee       CoinValue
	Covenants [][]byte
	Sigs      [][]byte
	Data      []byte
}

// encodeNoSigs writes every field that contributes to HashNoSigs, in the
// same order EncodeStd uses minus Sigs, so EncodeStd can be defined as
// encodeNoSigs followed by the sig list.
func (tx *Transaction) encodeNoSigs(w *stdcode.Writer) {
	w.U8(uint8(tx.Kind))
	w.Uvarint(uint64(len(tx.Inputs)))
	for i := range tx.Inputs {
		tx.Inputs[i].EncodeStd(w)
	}
	w.Uvarint(uint64(len(tx.Outputs)))
	for i := range tx.Outputs {
		tx.Outputs[i].EncodeStd(w)
	}
	tx.Fee.EncodeStd(w)
	w.Uvarint(uint64(len(tx.Covenants)))
	for _, c := range tx.Covenants {
		w.Blob(c)
	}
	w.Blob(tx.Data)
}

// HashNoSigs is the canonical hash over every field but Sigs; it is what
// covenants and Ed25519 signatures authorize.
func (tx *Transaction) HashNoSigs() HashVal {
	w := stdcode.NewWriter()
	tx.encodeNoSigs(w)
	return crypto.Keyed(crypto.DomainTxNoSigs, w.Bytes())
}

func (tx *Transaction) EncodeStd(w *stdcode.Writer) {
	tx.encodeNoSigs(w)
	w.Uvarint(uint64(len(tx.Sigs)))
	for _, s := range tx.Sigs {
		w.Blob(s)
	}
}

func (tx *Transaction) DecodeStd(r *stdcode.Reader) error {
	kind, err := r.U8()
	if err != nil {
		return err
	}
	tx.Kind = TxKind(kind)

	nIn, err := r.Uvarint()
	if err != nil {
		return err
	}
	tx.Inputs = make([]CoinID, nIn)
	for i := range tx.Inputs {
		if err := tx.Inputs[i].DecodeStd(r); err != nil {
			return err
		}
	}

	nOut, err := r.Uvarint()
	if err != nil {
		return err
	}
	tx.Outputs = make([]CoinData, nOut)
	for i := range tx.Outputs {
		if err := tx.Outputs[i].DecodeStd(r); err != nil {
			return err
		}
	}

	if err := tx.Fee.DecodeStd(r); err != nil {
		return err
	}

	nCov, err := r.Uvarint()
	if err != nil {
		return err
	}
	tx.Covenants = make([][]byte, nCov)
	for i := range tx.Covenants {
		b, err := r.Blob()
		if err != nil {
			return err
		}
		tx.Covenants[i] = b
	}

	data, err := r.Blob()
	if err != nil {
		return err
	}
	tx.Data = data

	nSigs, err := r.Uvarint()
	if err != nil {
		return err
	}
	tx.Sigs = make([][]byte, nSigs)
	for i := range tx.Sigs {
		b, err := r.Blob()
		if err != nil {
			return err
		}
		tx.Sigs[i] = b
	}

	return nil
}

// WellFormed checks the structural rules of spec §4.D.1 that do not
// require chain state: nonempty inputs (except Faucet/DoscMint), nonempty
// outputs, no zero-valued outputs, and every covenant hash referenced by
// some input's covhash would be checked by the STF, not here.
func (tx *Transaction) WellFormed() error {
	if len(tx.Inputs) == 0 && tx.Kind != TxFaucet && tx.Kind != TxDoscMint {
		return errors.New(errors.ErrBadKind, "tx of kind %s must have at least one input", tx.Kind)
	}
	if len(tx.Outputs) == 0 {
		return errors.New(errors.ErrBadKind, "tx must have at least one output")
	}
	for i, out := range tx.Outputs {
		if out.Value.IsZero() {
			return errors.New(errors.ErrBadKind, "output %d has zero value", i)
		}
	}
	return nil
}
