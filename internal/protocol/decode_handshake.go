package protocol

import "github.com/zhukovaskychina/rxmysql/internal/varint"

// DecodeHandshake parses the initial server greeting (spec §4.2).
// Byte 0 of buf is 0x0A for
// protocol v10 or 0x09 for the legacy v9 greeting, which this spec
// rejects rather than attempts to speak (Open Question decision, see
// DESIGN.md).
func DecodeHandshake(buf []byte) (ServerMessage, error) {
	if len(buf) == 0 {
		return nil, errShortHandshake
	}
	switch buf[0] {
	case 0x0A:
		return decodeHandshakeV10(buf[1:])
	case 0x09:
		return &HandshakeV9Rejected{}, nil
	default:
		return nil, errShortHandshake
	}
}

func decodeHandshakeV10(buf []byte) (*HandshakeV10, error) {
	cursor := 0
	cursor, versionBytes := varint.ReadNulString(buf, cursor)

	if cursor+4 > len(buf) {
		return nil, errShortHandshake
	}
	var connID uint32
	cursor, connID = varint.ReadU32(buf, cursor)

	// First 8 bytes of auth-plugin-data, then a filler byte.
	if cursor+8 > len(buf) {
		return nil, errShortHandshake
	}
	cursor, authData1 := varint.ReadFixedString(buf, cursor, 8)
	cursor++ // filler (0x00)

	if cursor+2 > len(buf) {
		return nil, errShortHandshake
	}
	var capLow uint16
	cursor, capLow = varint.ReadU16(buf, cursor)

	var collation uint8
	if cursor < len(buf) {
		cursor, collation = varint.ReadByte(buf, cursor)
	}

	var status uint16
	if cursor+2 <= len(buf) {
		cursor, status = varint.ReadU16(buf, cursor)
	}

	var capHigh uint16
	if cursor+2 <= len(buf) {
		cursor, capHigh = varint.ReadU16(buf, cursor)
	}

	full := CapabilityFromHalves(uint32(capLow)|uint32(capHigh)<<16, 0)

	authDataLen := 0
	if full.Has(ClientPluginAuth) && cursor < len(buf) {
		var b byte
		cursor, b = varint.ReadByte(buf, cursor)
		authDataLen = int(b)
	} else if cursor < len(buf) {
		cursor++ // reserved 0x00
	}

	if cursor+10 <= len(buf) {
		cursor += 10 // reserved filler
	}

	authData2 := []byte{}
	if full.Has(ClientSecureConnection) {
		n := 13
		if authDataLen > 8 {
			n = authDataLen - 8
			if n < 13 {
				n = 13
			}
		}
		if cursor+n <= len(buf) {
			cursor, authData2 = varint.ReadFixedString(buf, cursor, n)
			// Drop the trailing NUL terminator the server always sends.
			if len(authData2) > 0 && authData2[len(authData2)-1] == 0 {
				authData2 = authData2[:len(authData2)-1]
			}
		}
	}

	pluginName := ""
	if full.Has(ClientPluginAuth) && cursor < len(buf) {
		_, nameBytes := varint.ReadNulString(buf, cursor)
		pluginName = string(nameBytes)
	}

	return &HandshakeV10{
		ServerVersion:  string(versionBytes),
		ConnectionID:   connID,
		AuthPluginData: append(append([]byte{}, authData1...), authData2...),
		Capability:     full,
		Collation:      collation,
		Status:         ServerStatus(status),
		AuthPluginName: pluginName,
	}, nil
}
