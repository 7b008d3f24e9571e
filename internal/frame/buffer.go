package frame

import "sync/atomic"

// Buffer is a reference-counted byte buffer. Ownership passes
// explicitly along the decode -> row -> codec -> application path
// (spec §5 "Shared resources"); whoever drops a message without
// decoding it must call Release so the underlying array can be reused
// or freed. Release is safe to call exactly once per Retain (including
// the implicit first reference returned by NewBuffer); calling it more
// times than that panics, which is deliberate: it means a caller kept
// a value past its owner's release point.
type Buffer struct {
	data refs
	b    []byte
}

type refs struct {
	n *int32
}

// NewBuffer wraps b with an initial reference count of 1.
func NewBuffer(b []byte) *Buffer {
	n := int32(1)
	return &Buffer{data: refs{n: &n}, b: b}
}

// Bytes returns the underlying slice. Valid only while the caller
// holds a reference.
func (buf *Buffer) Bytes() []byte { return buf.b }

// Retain increments the reference count and returns buf, for callers
// that hand the same bytes to more than one consumer (e.g. a
// multi-chunk LOB streamed to several readers).
func (buf *Buffer) Retain() *Buffer {
	atomic.AddInt32(buf.data.n, 1)
	return buf
}

// Release decrements the reference count; the last release is a no-op
// beyond bookkeeping since Go is garbage collected, but the count
// itself is the contract tests assert on.
func (buf *Buffer) Release() {
	n := atomic.AddInt32(buf.data.n, -1)
	if n < 0 {
		panic("frame: Buffer released more times than retained")
	}
}

// RefCount reports the current reference count; exposed for tests of
// the "released when row is released" invariant (spec §3).
func (buf *Buffer) RefCount() int32 {
	return atomic.LoadInt32(buf.data.n)
}
