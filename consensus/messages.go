package consensus

import (
	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
	"github.com/themelio-labs/themelio-core/model"
	"github.com/themelio-labs/themelio-core/stdcode"
)

// Envelope is the outer wrapper every gossiped consensus message travels
// in (spec §4.G.2: "{sender_pk, sequence: u64, body, sig}"). sig covers
// H("ns-msg", stdcode(sequence, body)), so a message cannot be replayed
// under a different sequence number without invalidating the signature.
type Envelope struct {
	SenderPK crypto.PublicKey
	Sequence uint64
	Body     []byte
	Sig      []byte
}

func (e *Envelope) EncodeStd(w *stdcode.Writer) {
	w.Blob(e.SenderPK)
	w.Uvarint(e.Sequence)
	w.Blob(e.Body)
	w.Blob(e.Sig)
}

func (e *Envelope) DecodeStd(r *stdcode.Reader) error {
	pk, err := r.Blob()
	if err != nil {
		return err
	}
	e.SenderPK = pk

	seq, err := r.Uvarint()
	if err != nil {
		return err
	}
	e.Sequence = seq

	body, err := r.Blob()
	if err != nil {
		return err
	}
	e.Body = body

	sig, err := r.Blob()
	if err != nil {
		return err
	}
	e.Sig = sig
	return nil
}

// envelopeSigningHash computes H("ns-msg", stdcode(sequence, body)).
func envelopeSigningHash(sequence uint64, body []byte) crypto.Hash {
	w := stdcode.NewWriter()
	w.Uvarint(sequence)
	w.Blob(body)
	return crypto.Keyed(crypto.DomainGossipNsMsg, w.Bytes())
}

// SignEnvelope wraps body (already stdcode-encoded) in a signed Envelope
// under sequence.
func SignEnvelope(sk crypto.SecretKey, pk crypto.PublicKey, sequence uint64, body []byte) *Envelope {
	h := envelopeSigningHash(sequence, body)
	return &Envelope{
		SenderPK: pk,
		Sequence: sequence,
		Body:     body,
		Sig:      crypto.Sign(sk, h[:]),
	}
}

// Verify reports whether e's signature covers its own (sequence, body).
func (e *Envelope) Verify() bool {
	h := envelopeSigningHash(e.Sequence, e.Body)
	return crypto.Verify(e.SenderPK, h[:], e.Sig)
}

// MessageKind tags an Envelope's Body so a receiver can dispatch it
// without guessing from shape, since Proposal/Vote/GetConfirm/ConfirmResp
// all stdcode-decode successfully against the wrong type if tried blind.
type MessageKind uint8

const (
	KindProposal MessageKind = iota
	KindVote
	KindGetConfirm
	KindConfirmResp
)

// Proposal is the leader's per-height block proposal (spec §4.G.2:
// "Proposal{abbr_block, last_nonempty}"). The pacemaker fills
// LastNonempty with the hash of the highest block it knows to be
// finalized, or the epoch genesis hash when nothing has finalized yet; it
// is not necessarily the most recent non-empty notarized ancestor, and
// voters do not read it.
type Proposal struct {
	AbbrBlock    model.AbbrBlock
	LastNonempty model.HashVal
}

func (p *Proposal) EncodeStd(w *stdcode.Writer) {
	p.AbbrBlock.EncodeStd(w)
	w.Fixed(p.LastNonempty[:])
}

func (p *Proposal) DecodeStd(r *stdcode.Reader) error {
	if err := p.AbbrBlock.DecodeStd(r); err != nil {
		return err
	}
	b, err := r.Fixed(crypto.HashSize)
	if err != nil {
		return err
	}
	p.LastNonempty = crypto.HashFromBytes(b)
	return nil
}

// SigningHash is H("symph_prop_sig", stdcode(abbr_block)) (spec §4.G.2):
// signed over the abbreviated block only, not last_nonempty.
func (p *Proposal) SigningHash() crypto.Hash {
	w := stdcode.NewWriter()
	p.AbbrBlock.EncodeStd(w)
	return crypto.Keyed(crypto.DomainProposalSig, w.Bytes())
}

// Vote is a participant's endorsement of a proposed block by hash (spec
// §4.G.2: "Vote{block_hash}"). Sig is the voter's signature directly over
// BlockHash — the same construction model.ConsensusProof.Verify checks
// signer-by-signer — so a collected Vote.Sig can be dropped straight
// into a ConsensusProof entry without re-signing. This is a distinct
// signature from the Envelope's own anti-replay signature, which instead
// covers H("ns-msg", stdcode(sequence, body)) over the whole Vote body.
type Vote struct {
	BlockHash model.HashVal
	Sig       []byte
}

func (v *Vote) EncodeStd(w *stdcode.Writer) {
	w.Fixed(v.BlockHash[:])
	w.Blob(v.Sig)
}

func (v *Vote) DecodeStd(r *stdcode.Reader) error {
	b, err := r.Fixed(crypto.HashSize)
	if err != nil {
		return err
	}
	v.BlockHash = crypto.HashFromBytes(b)

	sig, err := r.Blob()
	if err != nil {
		return err
	}
	v.Sig = sig
	return nil
}

// SignVote produces a Vote for blockHash signed by sk, ready to feed
// straight into a ConsensusProof once notarized.
func SignVote(sk crypto.SecretKey, blockHash model.HashVal) *Vote {
	return &Vote{BlockHash: blockHash, Sig: crypto.Sign(sk, blockHash[:])}
}

// VerifySig reports whether v.Sig is pk's signature over v.BlockHash.
func (v *Vote) VerifySig(pk crypto.PublicKey) bool {
	return crypto.Verify(pk, v.BlockHash[:], v.Sig)
}

// GetConfirm requests the notarization certificate for (height, hash)
// (spec §4.G.2), used when a participant needs to prove finalization to
// a light client or a resyncing peer.
type GetConfirm struct {
	Height model.BlockHeight
	Hash   model.HashVal
}

func (g *GetConfirm) EncodeStd(w *stdcode.Writer) {
	w.Uvarint(uint64(g.Height))
	w.Fixed(g.Hash[:])
}

func (g *GetConfirm) DecodeStd(r *stdcode.Reader) error {
	h, err := r.Uvarint()
	if err != nil {
		return err
	}
	g.Height = model.BlockHeight(h)

	b, err := r.Fixed(crypto.HashSize)
	if err != nil {
		return err
	}
	g.Hash = crypto.HashFromBytes(b)
	return nil
}

// ConfirmResp answers a GetConfirm with the signatures collected so far.
type ConfirmResp struct {
	Signatures model.ConsensusProof
}

func (c *ConfirmResp) EncodeStd(w *stdcode.Writer) {
	c.Signatures.EncodeStd(w)
}

func (c *ConfirmResp) DecodeStd(r *stdcode.Reader) error {
	return (&c.Signatures).DecodeStd(r)
}

// decodeBody dispatches a Kind-tagged, stdcode-encoded body to its
// concrete message type.
func decodeBody(kind MessageKind, body []byte) (interface{}, error) {
	r := stdcode.NewReader(body)
	switch kind {
	case KindProposal:
		var p Proposal
		if err := p.DecodeStd(r); err != nil {
			return nil, err
		}
		return &p, nil
	case KindVote:
		var v Vote
		if err := v.DecodeStd(r); err != nil {
			return nil, err
		}
		return &v, nil
	case KindGetConfirm:
		var g GetConfirm
		if err := g.DecodeStd(r); err != nil {
			return nil, err
		}
		return &g, nil
	case KindConfirmResp:
		var c ConfirmResp
		if err := c.DecodeStd(r); err != nil {
			return nil, err
		}
		return &c, nil
	default:
		return nil, errors.New(errors.ErrBadRequest, "unknown consensus message kind %d", int(kind))
	}
}

// encodeBody tags and stdcode-encodes a message body for wrapping in an
// Envelope.
func encodeBody(kind MessageKind, enc stdcode.Encoder) (MessageKind, []byte) {
	return kind, stdcode.Marshal(enc)
}
