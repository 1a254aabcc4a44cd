// Package covenant implements the stack machine that evaluates per-coin
// spend authorizations (spec §4.C). The opcode table itself is an open
// question in the source material (spec §9 Open Question 2); this
// implementation freezes a small concrete set sufficient to express the
// one template the spec normatively requires, std_ed25519_pk, and treats
// any richer opcode table as an external specification input layered on
// top of the same Eval loop.
package covenant

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/model"
)

// Op is a single covenant bytecode instruction.
type Op byte

const (
	OpFalse Op = iota
	OpTrue
	OpPushBytes
	OpDup
	OpDrop
	OpEqual
	OpVerify
	OpCheckSig
)

// Context is the transaction a covenant is being evaluated against.
// Evaluation never mutates Tx and never has any effect beyond the
// returned boolean — covenants are side-effect-free by spec.
type Context struct {
	Tx *model.Transaction
}

// Hash returns the content address of a covenant program: the covhash a
// CoinData must name for this program to authorize spending it.
func Hash(program []byte) model.Address {
	return crypto.Plain(program)
}

// Eval runs program against ctx and reports whether it authorizes the
// spend. Any malformed bytecode, stack underflow, or unknown opcode
// evaluates to false rather than aborting the caller — spec §4.C:
// "failures evaluate to false (never abort the STF)."
func Eval(program []byte, ctx *Context) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	m := &machine{ctx: ctx, r: bytes.NewReader(program)}
	for m.r.Len() > 0 {
		opByte, err := m.r.ReadByte()
		if err != nil {
			return false
		}
		if !m.step(Op(opByte)) {
			return false
		}
	}
	return m.topIsTruthy()
}

type machine struct {
	stack [][]byte
	ctx   *Context
	r     *bytes.Reader
}

func (m *machine) step(op Op) bool {
	switch op {
	case OpFalse:
		m.push(nil)
	case OpTrue:
		m.push([]byte{1})
	case OpPushBytes:
		n, err := binary.ReadUvarint(m.r)
		if err != nil {
			return false
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(m.r, buf); err != nil {
			return false
		}
		m.push(buf)
	case OpDup:
		top, ok := m.peek()
		if !ok {
			return false
		}
		dup := make([]byte, len(top))
		copy(dup, top)
		m.push(dup)
	case OpDrop:
		_, ok := m.pop()
		return ok
	case OpEqual:
		b, ok1 := m.pop()
		a, ok2 := m.pop()
		if !ok1 || !ok2 {
			return false
		}
		m.push(boolBytes(bytes.Equal(a, b)))
	case OpVerify:
		top, ok := m.pop()
		return ok && truthy(top)
	case OpCheckSig:
		pk, ok := m.pop()
		if !ok {
			return false
		}
		m.push(boolBytes(m.checkSig(pk)))
	default:
		return false
	}
	return true
}

func (m *machine) checkSig(pk []byte) bool {
	if m.ctx == nil || m.ctx.Tx == nil {
		return false
	}
	msg := m.ctx.Tx.HashNoSigs()
	for _, sig := range m.ctx.Tx.Sigs {
		if crypto.Verify(crypto.PublicKey(pk), msg[:], sig) {
			return true
		}
	}
	return false
}

func (m *machine) push(b []byte) {
	m.stack = append(m.stack, b)
}

func (m *machine) pop() ([]byte, bool) {
	if len(m.stack) == 0 {
		return nil, false
	}
	top := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return top, true
}

func (m *machine) peek() ([]byte, bool) {
	if len(m.stack) == 0 {
		return nil, false
	}
	return m.stack[len(m.stack)-1], true
}

func (m *machine) topIsTruthy() bool {
	top, ok := m.peek()
	return ok && truthy(top)
}

func truthy(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return true
		}
	}
	return false
}

func boolBytes(b bool) []byte {
	if b {
		return []byte{1}
	}
	return nil
}
