// Package wire implements the length-prefixed, tag-first binary codec
// used for every on-wire structure in the shared-log substrate (§6).
// It intentionally avoids a generic reflection-based encoder: each
// type owns its own Encode/Decode pair so the layout matches the spec
// byte for byte and stays stable across versions.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer accumulates a canonical byte stream.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with the given capacity hint.
func NewWriter(hint int) *Writer {
	return &Writer{buf: make([]byte, 0, hint)}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// U8 appends a single byte tag.
func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// F64 appends a little-endian IEEE754 double.
func (w *Writer) F64(v float64) {
	w.U64(math.Float64bits(v))
}

// Blob appends a varint length prefix followed by the raw bytes.
func (w *Writer) Blob(b []byte) {
	w.Varint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// BlobSlice appends a count-prefixed sequence of length-prefixed blobs.
func (w *Writer) BlobSlice(bs [][]byte) {
	w.Varint(uint64(len(bs)))
	for _, b := range bs {
		w.Blob(b)
	}
}

// String appends a length-prefixed UTF-8 string.
func (w *Writer) String(s string) { w.Blob([]byte(s)) }

// Varint appends an LEB128 unsigned varint, matching the teacher
// pack's multiformats/go-varint framing used throughout libp2p wire
// structures.
func (w *Writer) Varint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

// Reader consumes a canonical byte stream produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining reports how many bytes are left to decode.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("wire: short read: need %d, have %d", n, r.Remaining())
	}
	return nil
}

// U8 reads a single byte tag.
func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// F64 reads a little-endian IEEE754 double.
func (r *Reader) F64() (float64, error) {
	bits, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// Varint reads an LEB128 unsigned varint.
func (r *Reader) Varint() (uint64, error) {
	var v uint64
	var shift uint
	for {
		if err := r.need(1); err != nil {
			return 0, err
		}
		b := r.buf[r.pos]
		r.pos++
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("wire: varint overflow")
		}
	}
}

// Blob reads a varint length prefix followed by that many raw bytes.
func (r *Reader) Blob() ([]byte, error) {
	n, err := r.Varint()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

// BlobSlice reads a count-prefixed sequence of length-prefixed blobs.
func (r *Reader) BlobSlice() ([][]byte, error) {
	n, err := r.Varint()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		b, err := r.Blob()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() (string, error) {
	b, err := r.Blob()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
