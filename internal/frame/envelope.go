// Package frame implements the envelope codec described in spec §4.1:
// splitting and assembling the 3-byte-length + 1-byte-sequence framing
// unit of the MySQL wire protocol, including the multi-envelope
// continuation rule for payloads at or beyond 16 MiB, and the optional
// compression layer (spec §4.1, §6).
package frame

import (
	"io"
	"sync/atomic"

	"github.com/zhukovaskychina/rxmysql/internal/varint"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// MaxPayload is 2^24-1, the largest payload a single envelope can
// carry before a continuation envelope is required.
const MaxPayload = 1<<24 - 1

// Seq is the per-connection envelope sequence counter. It advances by
// one per envelope within a burst and is reset to zero on the events
// spec §3 names: post-login, compression upgrade, start of a new
// exchange.
type Seq struct {
	v atomic.Uint32 // holds a byte 0-255, wrapping
}

// Next returns the sequence number to stamp on the next envelope and
// advances the counter.
func (s *Seq) Next() byte {
	v := s.v.Add(1) - 1
	return byte(v)
}

// Reset atomically resets the counter to zero.
func (s *Seq) Reset() { s.v.Store(0) }

// Peek returns the next sequence number without advancing.
func (s *Seq) Peek() byte { return byte(s.v.Load()) }

// Codec assembles envelopes read from an underlying stream and splits
// outbound payloads into envelopes written to it. One Codec serves
// exactly one connection; it is not safe for concurrent Read/Write use
// from more than one goroutine on each side (spec invariant: at most
// one client message encoding, one server message decoding, at a
// time).
type Codec struct {
	r   io.Reader
	w   io.Writer
	seq Seq
}

// New wraps rw's reader and writer halves in the envelope codec.
func New(r io.Reader, w io.Writer) *Codec {
	return &Codec{r: r, w: w}
}

// ResetSeq resets the sequence counter; call on post-login,
// compression upgrade, and the start of an independent exchange.
func (c *Codec) ResetSeq() { c.seq.Reset() }

// Rebind swaps the underlying reader/writer without touching the
// sequence counter. A TLS upgrade (spec §4.4) replaces the raw socket
// with a *tls.Conn mid-handshake, but the envelope sequence keeps
// counting through it: the SSLRequest consumes one sequence number,
// the TLS handshake itself carries no envelope framing at all, and
// HandshakeResponse41 continues from where SSLRequest left off.
func (c *Codec) Rebind(r io.Reader, w io.Writer) {
	c.r = r
	c.w = w
}

// ReadPayload reads one complete logical payload, transparently
// assembling continuation envelopes per spec §4.1: a payload whose
// final envelope is exactly MaxPayload bytes is followed by more
// envelopes (possibly a zero-length terminator) until a short one
// arrives.
func (c *Codec) ReadPayload() (*Buffer, error) {
	var assembled []byte
	var single []byte
	chunks := 0

	for {
		var hdr [4]byte
		if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
			return nil, xerrors.NewProtocolError("read envelope header", err)
		}
		_, length := varint.ReadU24(hdr[:], 0)
		gotSeq := hdr[3]
		wantSeq := c.seq.Next()
		if gotSeq != wantSeq {
			return nil, xerrors.NewProtocolError("envelope sequence mismatch", nil)
		}

		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(c.r, payload); err != nil {
				return nil, xerrors.NewProtocolError("read envelope payload", err)
			}
		}

		chunks++
		if int(length) < MaxPayload {
			if chunks == 1 {
				single = payload
				break
			}
			assembled = append(assembled, payload...)
			break
		}
		// Exactly MaxPayload: continuation follows, possibly a
		// zero-length terminator.
		if chunks == 1 {
			assembled = payload
		} else {
			assembled = append(assembled, payload...)
		}
	}

	if chunks == 1 {
		return NewBuffer(single), nil
	}
	return NewBuffer(assembled), nil
}

// WritePayload splits payload into as many envelopes as spec §4.1
// requires: one envelope per MaxPayload-sized chunk, plus a trailing
// zero-length envelope when len(payload) is an exact multiple of
// MaxPayload (including the empty-payload case, which still emits a
// single zero-length envelope).
func (c *Codec) WritePayload(payload []byte) error {
	offset := 0
	for {
		remaining := len(payload) - offset
		n := remaining
		if n > MaxPayload {
			n = MaxPayload
		}
		if err := c.writeOne(payload[offset : offset+n]); err != nil {
			return err
		}
		offset += n
		if n < MaxPayload {
			return nil
		}
		if offset == len(payload) {
			// Exact multiple of MaxPayload: terminal zero-length envelope.
			return c.writeOne(nil)
		}
	}
}

func (c *Codec) writeOne(chunk []byte) error {
	hdr := make([]byte, 0, 4)
	hdr = varint.WriteU24(hdr, uint32(len(chunk)))
	hdr = varint.WriteByte(hdr, c.seq.Next())
	if _, err := c.w.Write(hdr); err != nil {
		return xerrors.NewProtocolError("write envelope header", err)
	}
	if len(chunk) > 0 {
		if _, err := c.w.Write(chunk); err != nil {
			return xerrors.NewProtocolError("write envelope payload", err)
		}
	}
	return nil
}

// EnvelopeCount returns how many envelopes WritePayload would emit for
// a payload of length L (spec §8 testable property).
func EnvelopeCount(l int) int {
	n := (l + MaxPayload - 1) / MaxPayload // ceil(l / MaxPayload)
	if l%MaxPayload == 0 {
		n++
	}
	return n
}
