package wire

import (
	"bytes"
	"testing"
)

func TestRoundTripScalars(t *testing.T) {
	w := NewWriter(64)
	w.U8(42)
	w.U64(123456789)
	w.F64(3.5)
	w.Varint(300)

	r := NewReader(w.Bytes())
	u8, err := r.U8()
	if err != nil || u8 != 42 {
		t.Fatalf("U8: got %d, %v", u8, err)
	}
	u64, err := r.U64()
	if err != nil || u64 != 123456789 {
		t.Fatalf("U64: got %d, %v", u64, err)
	}
	f64, err := r.F64()
	if err != nil || f64 != 3.5 {
		t.Fatalf("F64: got %v, %v", f64, err)
	}
	vi, err := r.Varint()
	if err != nil || vi != 300 {
		t.Fatalf("Varint: got %d, %v", vi, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected no remaining bytes, got %d", r.Remaining())
	}
}

func TestRoundTripBlobAndString(t *testing.T) {
	w := NewWriter(64)
	w.Blob([]byte("hello"))
	w.String("world")
	w.BlobSlice([][]byte{[]byte("a"), []byte("bb"), {}})

	r := NewReader(w.Bytes())
	blob, err := r.Blob()
	if err != nil || !bytes.Equal(blob, []byte("hello")) {
		t.Fatalf("Blob: got %q, %v", blob, err)
	}
	s, err := r.String()
	if err != nil || s != "world" {
		t.Fatalf("String: got %q, %v", s, err)
	}
	bs, err := r.BlobSlice()
	if err != nil {
		t.Fatalf("BlobSlice: %v", err)
	}
	want := [][]byte{[]byte("a"), []byte("bb"), {}}
	if len(bs) != len(want) {
		t.Fatalf("BlobSlice length: got %d want %d", len(bs), len(want))
	}
	for i := range want {
		if !bytes.Equal(bs[i], want[i]) {
			t.Fatalf("BlobSlice[%d]: got %q want %q", i, bs[i], want[i])
		}
	}
}

func TestVarintMultiByte(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40}
	for _, v := range cases {
		w := NewWriter(16)
		w.Varint(v)
		r := NewReader(w.Bytes())
		got, err := r.Varint()
		if err != nil {
			t.Fatalf("varint(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("varint round trip: got %d want %d", got, v)
		}
	}
}

func TestShortReadErrors(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.U64(); err == nil {
		t.Fatalf("expected short-read error on truncated U64")
	}
}

func TestBlobShortReadErrors(t *testing.T) {
	w := NewWriter(8)
	w.Varint(10) // claims 10 bytes but none follow
	r := NewReader(w.Bytes())
	if _, err := r.Blob(); err == nil {
		t.Fatalf("expected short-read error on truncated blob")
	}
}
