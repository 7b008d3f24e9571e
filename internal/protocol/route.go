package protocol

import "github.com/zhukovaskychina/rxmysql/xerrors"

var (
	errEmptyServerPayload = xerrors.NewProtocolError("empty server payload", nil)
	errUnexpectedPhase    = xerrors.NewProtocolError("server payload arrived in an unexpected decode phase", nil)
)

// Route decodes one assembled envelope payload into a ServerMessage,
// picking the right Decode* function from the payload's leading byte
// and the connection's current DecodeState (spec §4.2's dispatch
// table: 0x00/0xff/0xfe mean different things depending on which
// phase is active and whether CLIENT_DEPRECATE_EOF was negotiated).
//
// A nil ServerMessage with a nil error means the payload was folded
// into DecodeState bookkeeping and has nothing to surface yet (one
// ColumnDefinition in a still-open metadata stream, or a legacy EOF
// terminating a PREPARE response's parameter metadata substream); the
// connection reader loop should keep reading without dispatching
// anything in that case. Phase transitions driven purely by counting
// (ObserveColumn reaching its expected column count) happen inside
// DecodeState; transitions driven by what the caller does next
// (BeginResult after a ColumnCount, BeginPrepareResponse after a
// PreparedOK, EndRows after a terminal OK/EOF) remain the connection
// loop's responsibility since Route has no way to know which command
// produced the stream it is draining.
func Route(payload []byte, state *DecodeState, cap Capability) (ServerMessage, error) {
	if len(payload) == 0 {
		return nil, errEmptyServerPayload
	}
	header := payload[0]

	if state.Phase == PhaseLogin {
		return DecodeHandshake(payload)
	}

	if header == 0xff {
		return DecodeError(payload, 1, cap)
	}

	switch state.Phase {
	case PhaseCommand:
		return routeCommandPhase(payload, header, cap)

	case PhasePrepareResponse:
		if header == 0xfe && len(payload) < 9 && !state.DeprecateEOF {
			bundle, ok := state.ObservePrepareResponseEOF()
			if !ok {
				return nil, nil
			}
			return bundle, nil
		}
		return routeMetadataColumn(payload, state)

	case PhaseResultMetadata:
		if header == 0xfe && len(payload) < 9 {
			return state.ObserveMetadataEOF(), nil
		}
		return routeMetadataColumn(payload, state)

	case PhaseResultRows, PhaseFetchRows:
		return routeRow(payload, header, cap, state)

	default:
		return nil, errUnexpectedPhase
	}
}

func routeCommandPhase(payload []byte, header byte, cap Capability) (ServerMessage, error) {
	switch header {
	case 0x00:
		return DecodeOK(payload, 1, cap)
	case 0xfb:
		return DecodeLocalInfileRequest(payload[1:]), nil
	default:
		count, err := DecodeColumnCount(payload)
		if err != nil {
			return nil, err
		}
		return &ColumnCount{Count: count}, nil
	}
}

func routeMetadataColumn(payload []byte, state *DecodeState) (ServerMessage, error) {
	col, err := DecodeColumnDefinition(payload)
	if err != nil {
		return nil, err
	}
	if bundle, done := state.ObserveColumn(*col); done {
		return bundle, nil
	}
	return nil, nil
}

func routeRow(payload []byte, header byte, cap Capability, state *DecodeState) (ServerMessage, error) {
	if header == 0xfe && len(payload) < 9 {
		if state.DeprecateEOF {
			return DecodeOK(payload, 1, cap)
		}
		return DecodeEOF(payload, 1, cap), nil
	}
	if state.Binary {
		return DecodeBinaryRow(payload[1:], state.pendingColumns)
	}
	return DecodeTextRow(payload, len(state.pendingColumns))
}
