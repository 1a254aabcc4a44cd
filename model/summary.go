package model

import "github.com/themelio-labs/themelio-core/stdcode"

// Substate names one of the five SMTs a GetSmtBranch call can target.
type Substate uint8

const (
	SubstateHistory Substate = iota
	SubstateCoins
	SubstateTransactions
	SubstatePools
	SubstateStakes
)

func (s Substate) String() string {
	switch s {
	case SubstateHistory:
		return "history"
	case SubstateCoins:
		return "coins"
	case SubstateTransactions:
		return "transactions"
	case SubstatePools:
		return "pools"
	case SubstateStakes:
		return "stakes"
	default:
		return "unknown"
	}
}

func (s Substate) EncodeStd(w *stdcode.Writer) {
	w.U8(uint8(s))
}

func (s *Substate) DecodeStd(r *stdcode.Reader) error {
	v, err := r.U8()
	if err != nil {
		return err
	}
	*s = Substate(v)
	return nil
}

// StateSummary is GetSummary's response: everything an auditor needs to
// decide whether it's behind and, if not, to trust the current tip.
type StateSummary struct {
	Network        NetworkID
	Height         BlockHeight
	Header         Header
	ConsensusProof ConsensusProof
}

func (s *StateSummary) EncodeStd(w *stdcode.Writer) {
	w.U8(uint8(s.Network))
	w.Uvarint(uint64(s.Height))
	s.Header.EncodeStd(w)
	s.ConsensusProof.EncodeStd(w)
}

func (s *StateSummary) DecodeStd(r *stdcode.Reader) error {
	net, err := r.U8()
	if err != nil {
		return err
	}
	s.Network = NetworkID(net)

	h, err := r.Uvarint()
	if err != nil {
		return err
	}
	s.Height = BlockHeight(h)

	if err := s.Header.DecodeStd(r); err != nil {
		return err
	}
	return s.ConsensusProof.DecodeStd(r)
}
