package connio

import (
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// Dispatcher is the subset of *exchange.Queue the reader loop needs.
type Dispatcher interface {
	Dispatch(msg interface{}) error
}

var errEmptyPrepareResponse = xerrors.NewProtocolError("empty PREPARE response payload", nil)

// Run drives one connection's steady-state read loop once login has
// completed: read an assembled payload, decode it against the shared
// DecodeState, and hand anything worth surfacing to queue.Dispatch.
// Returns once codec.ReadPayload fails (connection closed) or a
// protocol-level decode error occurs; both are fatal to the connection
// (spec §4.9, §7 - decode errors are always KindProtocolError).
func Run(codec EnvelopeCodec, transport *Transport, state *protocol.DecodeState, capability protocol.Capability, queue Dispatcher) error {
	for {
		payload, release, err := codec.ReadPayload()
		if err != nil {
			return err
		}
		msg, decodeErr := decodeOne(payload, transport, state, capability)
		release()
		if decodeErr != nil {
			return decodeErr
		}
		if msg == nil {
			continue
		}
		if err := queue.Dispatch(msg); err != nil {
			return err
		}
	}
}

// decodeOne resolves the header-byte ambiguities Route alone can't:
// whether a command-phase 0x00 packet is a plain OK or a PreparedOK
// (both share the leading byte; only the command that produced it
// tells them apart), and whether a command-phase response restarts a
// metadata stream (COM_QUERY / COM_STMT_EXECUTE) or resumes a bare row
// stream against the previous result's columns (COM_STMT_FETCH).
func decodeOne(payload []byte, transport *Transport, state *protocol.DecodeState, capability protocol.Capability) (protocol.ServerMessage, error) {
	var kind byte
	var haveKind bool

	if state.Phase == protocol.PhaseCommand {
		kind, haveKind = transport.TakePendingKind()
		switch {
		case haveKind && IsPrepareResponse(kind):
			return decodePrepareResponse(payload, state, capability)
		case haveKind && IsFetch(kind):
			state.Phase = protocol.PhaseFetchRows
		}
	}

	rowPhase := state.Phase == protocol.PhaseResultRows || state.Phase == protocol.PhaseFetchRows

	msg, err := protocol.Route(payload, state, capability)
	if err != nil {
		return nil, err
	}

	switch m := msg.(type) {
	case *protocol.ColumnCount:
		state.BeginResult(int(m.Count), haveKind && IsExecute(kind))
	case *protocol.OK:
		if rowPhase {
			state.EndRows(m.Status.Has(protocol.StatusMoreResultsExists))
		}
	case *protocol.EOF:
		if rowPhase {
			state.EndRows(m.Status.Has(protocol.StatusMoreResultsExists))
		}
	}

	return msg, nil
}

// decodePrepareResponse decodes COM_STMT_PREPARE's response header,
// which reuses the OK packet's leading 0x00 byte for a different,
// fixed-length payload shape (spec §4.6).
func decodePrepareResponse(payload []byte, state *protocol.DecodeState, capability protocol.Capability) (protocol.ServerMessage, error) {
	if len(payload) == 0 {
		return nil, errEmptyPrepareResponse
	}
	if payload[0] == 0xff {
		return protocol.DecodeError(payload, 1, capability)
	}
	ok, err := protocol.DecodePreparedOK(payload[1:])
	if err != nil {
		return nil, err
	}
	if ok.ParamCount > 0 || ok.ColumnCount > 0 {
		state.BeginPrepareResponse(int(ok.ParamCount), int(ok.ColumnCount))
	}
	return ok, nil
}
