package errors

import "fmt"

// Code identifies the class of failure a Error represents. The taxonomy
// follows the node's error handling design: validation failures never
// abort the state-transition function, consensus failures advance the
// pacemaker, I/O failures are retried, and fatal failures terminate the
// process after a flush.
type Code int32

const (
	ErrUnknown Code = iota

	// Validation errors: a tx or block is rejected locally, the batch
	// that contained it is not aborted.
	ErrDuplicateTx
	ErrNonexistentCoin
	ErrViolatesScript
	ErrBadKind
	ErrOverflow
	ErrInsufficientFees
	ErrBadMelPoW
	ErrBadMelswap
	ErrWrongNetwork

	// Consensus errors: the slot is aborted and the pacemaker advances
	// to the next view.
	ErrProposerMismatch
	ErrBadProposalSig
	ErrNotExtendingLNC
	ErrWrongHeight

	// Header/block errors: the block is rejected outright.
	ErrHeaderMismatch
	ErrBadConsensusProof

	// I/O errors: retryable with exponential backoff.
	ErrTimedOut
	ErrPeerDisconnected
	ErrCorrupt

	// Fatal errors: the process flushes storage and exits.
	ErrDatabaseCorruption
	ErrGenesisMismatch

	// Generic infrastructure errors used by ambient components (config,
	// service wiring) that don't belong to the node's own taxonomy but
	// still need a typed home.
	ErrConfiguration
	ErrInvalidArgument
	ErrService
	ErrNotFound
	ErrBadRequest
	ErrBadGateway
	ErrInternal
)

var codeNames = map[Code]string{
	ErrUnknown:            "UNKNOWN",
	ErrDuplicateTx:        "DUPLICATE_TX",
	ErrNonexistentCoin:    "NONEXISTENT_COIN",
	ErrViolatesScript:     "VIOLATES_SCRIPT",
	ErrBadKind:            "BAD_KIND",
	ErrOverflow:           "OVERFLOW",
	ErrInsufficientFees:   "INSUFFICIENT_FEES",
	ErrBadMelPoW:          "BAD_MELPOW",
	ErrBadMelswap:         "BAD_MELSWAP",
	ErrWrongNetwork:       "WRONG_NETWORK",
	ErrProposerMismatch:   "PROPOSER_MISMATCH",
	ErrBadProposalSig:     "BAD_PROPOSAL_SIG",
	ErrNotExtendingLNC:    "NOT_EXTENDING_LNC",
	ErrWrongHeight:        "WRONG_HEIGHT",
	ErrHeaderMismatch:     "HEADER_MISMATCH",
	ErrBadConsensusProof:  "BAD_CONSENSUS_PROOF",
	ErrTimedOut:           "TIMED_OUT",
	ErrPeerDisconnected:   "PEER_DISCONNECTED",
	ErrCorrupt:            "CORRUPT",
	ErrDatabaseCorruption: "DATABASE_CORRUPTION",
	ErrGenesisMismatch:    "GENESIS_MISMATCH",
	ErrConfiguration:      "CONFIGURATION",
	ErrInvalidArgument:    "INVALID_ARGUMENT",
	ErrService:            "SERVICE",
	ErrNotFound:           "NOT_FOUND",
	ErrBadRequest:         "BAD_REQUEST",
	ErrBadGateway:         "BAD_GATEWAY",
	ErrInternal:           "INTERNAL",
}

// String returns the taxonomy name of the code, or "CODE(n)" if unknown.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE(%d)", int32(c))
}

// Fatal reports whether errors of this code should terminate the process
// after the block store is flushed.
func (c Code) Fatal() bool {
	return c == ErrDatabaseCorruption || c == ErrGenesisMismatch
}

// Retryable reports whether sync/gossip tasks should retry an operation
// that failed with this code, using exponential backoff.
func (c Code) Retryable() bool {
	return c == ErrTimedOut || c == ErrPeerDisconnected || c == ErrCorrupt
}
