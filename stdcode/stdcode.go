// Package stdcode implements "stdcode", the single canonical deterministic
// encoding used for every persisted and wire-sent structure in the node:
// length-prefixed variable-width integers, fixed-width byte arrays for
// hashes/keys/signatures, and a stable field order matching the data
// model. Two values that are equal encode to identical bytes, and the
// encoding is length-injective: no value's encoding is a prefix of
// another's (every variable-length field is length-prefixed, so a
// decoder never has to guess where it ends).
package stdcode

import (
	"encoding/binary"

	"github.com/themelio-labs/themelio-core/errors"
)

// Encoder is implemented by every stdcode-encodable type.
type Encoder interface {
	EncodeStd(w *Writer)
}

// Decoder is implemented by every stdcode-decodable type.
type Decoder interface {
	DecodeStd(r *Reader) error
}

// Marshal serializes v to its canonical byte representation.
func Marshal(v Encoder) []byte {
	w := NewWriter()
	v.EncodeStd(w)
	return w.Bytes()
}

// Unmarshal decodes b into v. It returns ErrCorrupt if b is truncated or
// contains a length prefix that would read past the end of the buffer.
func Unmarshal(b []byte, v Decoder) error {
	r := NewReader(b)
	if err := v.DecodeStd(r); err != nil {
		return err
	}
	if r.Remaining() != 0 {
		return errors.New(errors.ErrCorrupt, "stdcode: %d trailing bytes", r.Remaining())
	}
	return nil
}

// Writer accumulates a stdcode-encoded byte stream.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Uvarint writes x as an unsigned LEB128 varint.
func (w *Writer) Uvarint(x uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	w.buf = append(w.buf, tmp[:n]...)
}

// U8 writes a single byte.
func (w *Writer) U8(x uint8) {
	w.buf = append(w.buf, x)
}

// Bool writes a single-byte boolean.
func (w *Writer) Bool(b bool) {
	if b {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// Fixed writes b verbatim, with no length prefix. Used for fields whose
// length is already implied by the schema (hashes, public keys,
// signatures).
func (w *Writer) Fixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// Blob writes a length-prefixed byte slice.
func (w *Writer) Blob(b []byte) {
	w.Uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// String writes a length-prefixed UTF-8 string.
func (w *Writer) String(s string) {
	w.Blob([]byte(s))
}

// Reader consumes a stdcode-encoded byte stream.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) Uvarint() (uint64, error) {
	x, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, errors.New(errors.ErrCorrupt, "stdcode: truncated varint")
	}
	r.pos += n
	return x, nil
}

func (r *Reader) U8() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, errors.New(errors.ErrCorrupt, "stdcode: truncated byte")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.U8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// Fixed reads exactly n bytes verbatim.
func (r *Reader) Fixed(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, errors.New(errors.ErrCorrupt, "stdcode: truncated fixed field of length %d", n)
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// Blob reads a length-prefixed byte slice.
func (r *Reader) Blob() ([]byte, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Remaining()) {
		return nil, errors.New(errors.ErrCorrupt, "stdcode: blob length %d exceeds %d remaining bytes", n, r.Remaining())
	}
	return r.Fixed(int(n))
}

func (r *Reader) String() (string, error) {
	b, err := r.Blob()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
