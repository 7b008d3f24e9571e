// Package connio wires the envelope codec, the decode dispatcher, and
// the exchange queue into the single reader/writer pair one live
// connection runs (spec §5 "the connection owns exactly one reader
// goroutine and one writer path"). It is the glue between
// internal/frame's wire framing, internal/protocol's message decoding,
// and internal/stmt's statement flows, grounded on the teacher's
// server/net/session.go read-loop-plus-channel dispatch, generalized
// from "accept inbound client traffic" to "drive one outbound server
// conversation".
package connio

import (
	"sync"

	"github.com/zhukovaskychina/rxmysql/internal/protocol"
)

// Transport implements stmt.Transport over an envelope Codec, and
// additionally remembers which COM_* command a given WritePayload call
// started, so the reader loop can resolve the header-byte ambiguities
// Route can't (a COM_STMT_PREPARE response and a plain OK both start
// with 0x00; COM_STMT_FETCH's row stream needs no fresh column count).
//
// The signal is reliable because every top-level command in
// internal/stmt calls ResetSeq immediately before WritePayload, and
// only top-level commands do - LOCAL INFILE chunk writes (and their
// empty terminator) never call ResetSeq first, so they never produce a
// pending command kind for the reader loop to pick up.
type Transport struct {
	codec EnvelopeCodec

	mu              sync.Mutex
	expectingCmd    bool
	pendingKind     byte
	havePendingKind bool
}

// EnvelopeCodec is the subset of *frame.Codec the transport needs. The
// read side returns the assembled payload plus a release callback
// rather than a *frame.Buffer directly, so this package doesn't need to
// import internal/frame; the facade's thin adapter type satisfies this
// by forwarding to a real *frame.Codec and *frame.Buffer.
type EnvelopeCodec interface {
	ReadPayload() (payload []byte, release func(), err error)
	WritePayload(payload []byte) error
	ResetSeq()
}

func NewTransport(codec EnvelopeCodec) *Transport {
	return &Transport{codec: codec}
}

// ResetSeq resets the envelope sequence counter and arms the next
// WritePayload call to record its leading command byte.
func (t *Transport) ResetSeq() {
	t.codec.ResetSeq()
	t.mu.Lock()
	t.expectingCmd = true
	t.mu.Unlock()
}

// WritePayload writes payload whole (the envelope codec handles
// >16MiB continuation splitting internally).
func (t *Transport) WritePayload(payload []byte) error {
	t.mu.Lock()
	if t.expectingCmd && len(payload) > 0 {
		t.pendingKind = payload[0]
		t.havePendingKind = true
		t.expectingCmd = false
	}
	t.mu.Unlock()
	return t.codec.WritePayload(payload)
}

// TakePendingKind returns the most recently armed command byte, if one
// hasn't already been consumed, and clears it.
func (t *Transport) TakePendingKind() (byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.havePendingKind {
		return 0, false
	}
	t.havePendingKind = false
	return t.pendingKind, true
}

// IsPrepareResponse reports whether kind is the COM_STMT_PREPARE
// command byte, the one response the reader loop must decode specially
// (PreparedOK shares its leading 0x00 byte with a plain OK packet).
func IsPrepareResponse(kind byte) bool { return kind == protocol.ComStmtPrepareByte }

// IsFetch reports whether kind is the COM_STMT_FETCH command byte: its
// response is a bare row stream reusing the previous EXECUTE's column
// metadata, with no column-count/metadata preamble of its own.
func IsFetch(kind byte) bool { return kind == protocol.ComStmtFetchByte }

// IsExecute reports whether kind is the COM_STMT_EXECUTE command byte,
// which answers with the binary row protocol rather than text.
func IsExecute(kind byte) bool { return kind == protocol.ComStmtExecuteByte }
