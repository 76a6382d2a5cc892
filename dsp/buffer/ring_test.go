package buffer

import (
	"testing"
)

func TestRingBufferWriteRead(t *testing.T) {
	rb := NewRingBuffer(8)
	if rb.Size() != 8 || rb.ReadSpace() != 0 || rb.WriteSpace() != 8 {
		t.Fatalf("unexpected initial state: size=%d read=%d write=%d", rb.Size(), rb.ReadSpace(), rb.WriteSpace())
	}

	n := rb.Write([]float64{1, 2, 3, 4, 5}, 5)
	if n != 5 || rb.ReadSpace() != 5 || rb.WriteSpace() != 3 {
		t.Fatalf("after write: n=%d read=%d write=%d", n, rb.ReadSpace(), rb.WriteSpace())
	}

	dst := make([]float64, 3)
	if got := rb.Read(dst, 3); got != 3 {
		t.Fatalf("read returned %d, want 3", got)
	}
	for i, want := range []float64{1, 2, 3} {
		if dst[i] != want {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], want)
		}
	}
	if rb.ReadSpace() != 2 {
		t.Fatalf("read space = %d, want 2", rb.ReadSpace())
	}
}

func TestRingBufferWrap(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]float64{1, 2, 3}, 3)
	rb.Skip(2)
	rb.Write([]float64{4, 5, 6}, 3)

	dst := make([]float64, 4)
	got := rb.Read(dst, 4)
	if got != 4 {
		t.Fatalf("read returned %d, want 4", got)
	}
	for i, want := range []float64{3, 4, 5, 6} {
		if dst[i] != want {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], want)
		}
	}
}

func TestRingBufferPeekDoesNotConsume(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]float64{1, 2, 3}, 3)

	dst := make([]float64, 3)
	rb.Peek(dst, 3)
	if rb.ReadSpace() != 3 {
		t.Fatalf("peek consumed data: read space = %d", rb.ReadSpace())
	}
	rb.Peek(dst, 3)
	for i, want := range []float64{1, 2, 3} {
		if dst[i] != want {
			t.Fatalf("second peek dst[%d] = %v, want %v", i, dst[i], want)
		}
	}
}

func TestRingBufferWriteClampsToSpace(t *testing.T) {
	rb := NewRingBuffer(4)
	n := rb.Write([]float64{1, 2, 3, 4, 5, 6}, 6)
	if n != 4 {
		t.Fatalf("write returned %d, want 4", n)
	}
	if rb.WriteSpace() != 0 {
		t.Fatalf("write space = %d, want 0", rb.WriteSpace())
	}
}

func TestRingBufferZero(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]float64{9}, 1)
	rb.Skip(1)
	if got := rb.Zero(3); got != 3 {
		t.Fatalf("zero returned %d, want 3", got)
	}
	dst := make([]float64, 3)
	rb.Read(dst, 3)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("dst[%d] = %v, want 0", i, v)
		}
	}
}

func TestRingBufferResizedPreservesContent(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]float64{1, 2, 3, 4}, 4)
	rb.Skip(2)
	rb.Write([]float64{5}, 1)

	grown := rb.Resized(16)
	if grown.Size() != 16 || grown.ReadSpace() != 3 {
		t.Fatalf("grown: size=%d read=%d", grown.Size(), grown.ReadSpace())
	}
	dst := make([]float64, 3)
	grown.Read(dst, 3)
	for i, want := range []float64{3, 4, 5} {
		if dst[i] != want {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], want)
		}
	}
}

func TestRingBufferReset(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]float64{1, 2, 3}, 3)
	rb.Reset()
	if rb.ReadSpace() != 0 || rb.WriteSpace() != 8 {
		t.Fatalf("after reset: read=%d write=%d", rb.ReadSpace(), rb.WriteSpace())
	}
}
