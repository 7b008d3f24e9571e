package protocol

import "github.com/zhukovaskychina/rxmysql/internal/varint"

// DecodeOK parses an OK (or deprecate-EOF OK-as-terminator) body,
// given the negotiated capability (spec §4.2: "OK/EOF messages carry
// affected-rows, last-insert-id, updated server status bits, warning
// count, optional session-state-change info"). cursor starts past the
// leading 0x00/0xFE header byte.
func DecodeOK(buf []byte, cursor int, cap Capability) (*OK, error) {
	ok := &OK{}
	var v uint64
	var ok1 bool

	cursor, v, ok1 = varint.ReadLenEncInt(buf, cursor)
	if !ok1 {
		return nil, errShortOK
	}
	ok.AffectedRows = v

	cursor, v, ok1 = varint.ReadLenEncInt(buf, cursor)
	if !ok1 {
		return nil, errShortOK
	}
	ok.LastInsertID = v

	if cap.Has(ClientProtocol41) {
		var status uint16
		cursor, status = varint.ReadU16(buf, cursor)
		ok.Status = ServerStatus(status)
		var warn uint16
		cursor, warn = varint.ReadU16(buf, cursor)
		ok.WarningCount = warn
	} else if cap.Has(ClientTransactions) {
		var status uint16
		cursor, status = varint.ReadU16(buf, cursor)
		ok.Status = ServerStatus(status)
	}

	if cursor >= len(buf) {
		return ok, nil
	}

	if cap.Has(ClientSessionTrack) {
		var info []byte
		cursor, info, ok1 = varint.ReadLenEncString(buf, cursor)
		if !ok1 {
			return ok, nil
		}
		ok.Info = string(info)
		if ok.Status.Has(StatusSessionStateChange) {
			ok.SessionTrack = decodeSessionTrack(info)
		}
		return ok, nil
	}

	ok.Info = string(buf[cursor:])
	return ok, nil
}

// DecodeEOF parses the legacy 5-byte EOF terminator body. cursor starts
// past the leading 0xFE header byte.
func DecodeEOF(buf []byte, cursor int, cap Capability) *EOF {
	e := &EOF{}
	if cap.Has(ClientProtocol41) {
		var warn, status uint16
		cursor, warn = varint.ReadU16(buf, cursor)
		_, status = varint.ReadU16(buf, cursor)
		e.WarningCount = warn
		e.Status = ServerStatus(status)
	}
	return e
}

// decodeSessionTrack walks the session-track sub-blocks described in
// SPEC_FULL.md §10: each is (1-byte type, len-enc-string sub-payload).
func decodeSessionTrack(buf []byte) []SessionStateChange {
	var out []SessionStateChange
	cursor := 0
	for cursor < len(buf) {
		kind := buf[cursor]
		cursor++
		var sub []byte
		var ok bool
		cursor, sub, ok = varint.ReadLenEncString(buf, cursor)
		if !ok {
			break
		}
		switch kind {
		case 0: // SESSION_TRACK_SYSTEM_VARIABLES
			next, name, ok1 := varint.ReadLenEncString(sub, 0)
			if !ok1 {
				continue
			}
			_, value, ok2 := varint.ReadLenEncString(sub, next)
			if !ok2 {
				continue
			}
			out = append(out, SessionStateChange{Kind: SessionTrackSystemVariable, Key: string(name), Value: string(value)})
		case 1: // SESSION_TRACK_SCHEMA
			_, schema, ok1 := varint.ReadLenEncString(sub, 0)
			if !ok1 {
				continue
			}
			out = append(out, SessionStateChange{Kind: SessionTrackSchema, Value: string(schema)})
		case 2: // SESSION_TRACK_STATE_CHANGE
			out = append(out, SessionStateChange{Kind: SessionTrackStateChange, Value: string(sub)})
		case 3: // SESSION_TRACK_GTIDS
			out = append(out, SessionStateChange{Kind: SessionTrackGTIDs, Value: string(sub)})
		case 4: // SESSION_TRACK_TRANSACTION_CHARACTERISTICS
			out = append(out, SessionStateChange{Kind: SessionTrackTransactionCharacteristics, Value: string(sub)})
		case 5: // SESSION_TRACK_TRANSACTION_STATE
			out = append(out, SessionStateChange{Kind: SessionTrackTransactionState, Value: string(sub)})
		}
	}
	return out
}
