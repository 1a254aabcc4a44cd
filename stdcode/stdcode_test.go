package stdcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// point is a small struct exercising every primitive, standing in for the
// model-layer types that will implement Encoder/Decoder (CoinID, Header, ...).
type point struct {
	X    uint64
	Y    uint8
	Flag bool
	Hash [32]byte
	Name string
	Tail []byte
}

func (p *point) EncodeStd(w *Writer) {
	w.Uvarint(p.X)
	w.U8(p.Y)
	w.Bool(p.Flag)
	w.Fixed(p.Hash[:])
	w.String(p.Name)
	w.Blob(p.Tail)
}

func (p *point) DecodeStd(r *Reader) error {
	x, err := r.Uvarint()
	if err != nil {
		return err
	}
	y, err := r.U8()
	if err != nil {
		return err
	}
	flag, err := r.Bool()
	if err != nil {
		return err
	}
	hash, err := r.Fixed(32)
	if err != nil {
		return err
	}
	name, err := r.String()
	if err != nil {
		return err
	}
	tail, err := r.Blob()
	if err != nil {
		return err
	}

	p.X = x
	p.Y = y
	p.Flag = flag
	copy(p.Hash[:], hash)
	p.Name = name
	p.Tail = tail
	return nil
}

func TestRoundTrip(t *testing.T) {
	orig := &point{
		X:    123456789,
		Y:    7,
		Flag: true,
		Hash: [32]byte{1, 2, 3},
		Name: "coin",
		Tail: []byte{9, 9, 9},
	}

	enc := Marshal(orig)

	var got point
	require.NoError(t, Unmarshal(enc, &got))
	assert.Equal(t, *orig, got)
}

func TestEqualValuesEncodeIdentically(t *testing.T) {
	a := &point{X: 1, Name: "x", Tail: []byte{1}}
	b := &point{X: 1, Name: "x", Tail: []byte{1}}
	assert.Equal(t, Marshal(a), Marshal(b))
}

func TestLengthInjective(t *testing.T) {
	short := &point{X: 1, Name: "a", Tail: nil}
	long := &point{X: 1, Name: "a", Tail: []byte{1, 2, 3}}

	encShort := Marshal(short)
	encLong := Marshal(long)

	assert.NotEqual(t, encShort, encLong)
	// encShort must not be a byte-for-byte prefix of encLong (length
	// prefixes make every variable-length field self-delimiting).
	if len(encShort) <= len(encLong) {
		assert.NotEqual(t, encShort, encLong[:len(encShort)])
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	orig := &point{X: 1, Name: "x"}
	enc := Marshal(orig)
	enc = append(enc, 0xff)

	var got point
	err := Unmarshal(enc, &got)
	assert.Error(t, err)
}

func TestUnmarshalRejectsTruncatedInput(t *testing.T) {
	orig := &point{X: 1, Name: "hello", Tail: []byte{1, 2, 3}}
	enc := Marshal(orig)

	var got point
	err := Unmarshal(enc[:len(enc)-2], &got)
	assert.Error(t, err)
}

func TestBlobEmpty(t *testing.T) {
	w := NewWriter()
	w.Blob(nil)
	r := NewReader(w.Bytes())
	got, err := r.Blob()
	require.NoError(t, err)
	assert.Empty(t, got)
}
