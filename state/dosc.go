package state

import (
	"math/big"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/melpow"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// DoscSpeedWindow is the sliding-window length, in blocks, dosc_speed is
// averaged over. This freezes Open Question 1 (dosc_speed update rule):
// dosc_speed is max(previous, EWMA-over-window-of-accepted-DoscMint-work),
// which is simultaneously non-decreasing (spec §4.D.5 requirement) and
// responsive to sustained increases in network proving power.
const DoscSpeedWindow = 100

// GenesisDoscSpeed anchors DoscInflator's scale: the dosc_speed value the
// policy assumes before any DoscMint transaction has ever been accepted.
const GenesisDoscSpeed = 1

// DoscMintData is the decoded form of a DoscMint transaction's opaque
// Data field (spec §4.D.2: "data MUST decode to (difficulty,
// melpow_proof_bytes)").
type DoscMintData struct {
	Difficulty uint8
	Proof      []byte
}

func (d *DoscMintData) EncodeStd(w *stdcode.Writer) {
	w.U8(d.Difficulty)
	w.Blob(d.Proof)
}

func (d *DoscMintData) DecodeStd(r *stdcode.Reader) error {
	diff, err := r.U8()
	if err != nil {
		return err
	}
	proof, err := r.Blob()
	if err != nil {
		return err
	}
	d.Difficulty = diff
	d.Proof = proof
	return nil
}

// DoscPuzzle computes the puzzle a DoscMint's MelPoW proof must verify
// against (spec §4.D.2: H("chi", parent_coin_hash || stdcode(first_input))).
// parentCoinHash identifies the coin the tx's first input spends, which
// anchors each proof to one specific, unpredictable-in-advance spend so a
// proof generated for one DoscMint attempt can't be replayed for another.
func DoscPuzzle(parentCoinHash crypto.Hash, firstInput model.CoinID) []byte {
	h := crypto.Keyed(crypto.DomainMelPoWChi, parentCoinHash[:], stdcode.Marshal(&firstInput))
	return h[:]
}

// DoscInflator returns, as an exact rational, the factor that scales
// 2^difficulty down to a NomDosc mint value: as dosc_speed rises above
// GenesisDoscSpeed, each unit of proven work represents less real
// elapsed time, so newly minted NomDosc shrinks proportionally, keeping
// "one NomDosc" anchored to a fixed amount of work at the genesis rate.
func DoscInflator(doscSpeed uint64) *big.Rat {
	if doscSpeed < GenesisDoscSpeed {
		doscSpeed = GenesisDoscSpeed
	}
	return big.NewRat(GenesisDoscSpeed, int64(doscSpeed))
}

// DoscMintValue computes the NomDosc value a DoscMint at the given
// difficulty and dosc_speed is entitled to mint: floor(2^difficulty *
// DoscInflator(dosc_speed)).
func DoscMintValue(difficulty uint8, doscSpeed uint64) model.CoinValue {
	base := new(big.Int).Lsh(big.NewInt(1), uint(difficulty))
	inflator := DoscInflator(doscSpeed)
	scaled := new(big.Int).Mul(base, inflator.Num())
	scaled.Div(scaled, inflator.Denom())
	return model.CoinValueFromBigInt(scaled)
}

// VerifyDoscMint checks a DoscMint transaction's MelPoW proof and output
// shape, returning the NomDosc value it mints on success.
func VerifyDoscMint(tx *model.Transaction, parentCoinHash crypto.Hash, doscSpeed uint64) (model.CoinValue, error) {
	if len(tx.Inputs) == 0 {
		return model.CoinValue{}, errors.New(errors.ErrBadKind, "DoscMint requires at least one input")
	}

	var data DoscMintData
	if err := stdcode.Unmarshal(tx.Data, &data); err != nil {
		return model.CoinValue{}, errors.New(errors.ErrBadMelPoW, "malformed DoscMint data", err)
	}

	proof, err := melpow.ProofFromBytes(data.Proof)
	if err != nil {
		return model.CoinValue{}, errors.New(errors.ErrBadMelPoW, "malformed MelPoW proof", err)
	}

	puzzle := DoscPuzzle(parentCoinHash, tx.Inputs[0])
	if !melpow.Verify(proof, puzzle, data.Difficulty) {
		return model.CoinValue{}, errors.New(errors.ErrBadMelPoW, "MelPoW proof does not verify")
	}

	if len(tx.Outputs) != 1 || tx.Outputs[0].Denom.Kind != model.DenomNomDosc {
		return model.CoinValue{}, errors.New(errors.ErrBadKind, "DoscMint's only allowed output is a single NomDosc coin")
	}

	want := DoscMintValue(data.Difficulty, doscSpeed)
	if tx.Outputs[0].Value.Cmp(want) != 0 {
		return model.CoinValue{}, errors.New(errors.ErrBadMelPoW, "DoscMint output value does not match 2^difficulty scaled by the current inflator")
	}

	return want, nil
}

// TotalDoscWork sums 2^difficulty over every DoscMint transaction in txs:
// the blockDoscWork input Seal's dosc_speed update needs (spec §4.D.5).
// Malformed Data is skipped rather than erroring — ApplyTx already
// rejected any DoscMint whose data doesn't decode before this runs.
func TotalDoscWork(txs []*model.Transaction) uint64 {
	var total uint64
	for _, tx := range txs {
		if tx.Kind != model.TxDoscMint {
			continue
		}
		var data DoscMintData
		if err := stdcode.Unmarshal(tx.Data, &data); err != nil {
			continue
		}
		total += uint64(1) << data.Difficulty
	}
	return total
}

// UpdateDoscSpeed computes the next height's dosc_speed given the
// previous value and this block's total accepted DoscMint work (sum of
// 2^difficulty over every DoscMint tx applied this height).
func UpdateDoscSpeed(prev uint64, blockWork uint64) uint64 {
	ewma := (prev*(DoscSpeedWindow-1) + blockWork) / DoscSpeedWindow
	if ewma > prev {
		return ewma
	}
	return prev
}
