package covenant

import (
	"github.com/themelio-labs/themelio-core/crypto"
)

// StdEd25519Pk builds the canonical std_ed25519_pk covenant program: a
// covenant that returns true iff some signature in the spending tx's Sigs
// is a valid Ed25519 signature over HashNoSigs() by pk (spec §4.C).
//
// Program: push(pk); checksig; verify; true.
func StdEd25519Pk(pk crypto.PublicKey) []byte {
	w := &programWriter{}
	w.op(OpPushBytes)
	w.uvarint(uint64(len(pk)))
	w.bytes(pk)
	w.op(OpCheckSig)
	w.op(OpVerify)
	w.op(OpTrue)
	return w.buf
}

// programWriter is a tiny bytecode assembler, deliberately independent of
// stdcode: covenant programs are opaque bytes to everything except this
// package's own interpreter, not structs with canonical field encoding.
type programWriter struct {
	buf []byte
}

func (w *programWriter) op(o Op) {
	w.buf = append(w.buf, byte(o))
}

func (w *programWriter) bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *programWriter) uvarint(x uint64) {
	var tmp [10]byte
	n := 0
	for x >= 0x80 {
		tmp[n] = byte(x) | 0x80
		x >>= 7
		n++
	}
	tmp[n] = byte(x)
	n++
	w.buf = append(w.buf, tmp[:n]...)
}
