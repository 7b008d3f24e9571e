package protocol

import "github.com/zhukovaskychina/rxmysql/internal/varint"

// Command header bytes (spec §6, §4.3).
const (
	ComQuitByte            byte = 0x01
	ComQueryByte           byte = 0x03
	ComPingByte            byte = 0x0e
	ComChangeUserByte      byte = 0x11
	ComStmtPrepareByte     byte = 0x16
	ComStmtExecuteByte     byte = 0x17
	ComStmtCloseByte       byte = 0x19
	ComStmtResetByte       byte = 0x1a
	ComStmtFetchByte       byte = 0x1c
	ComResetConnectionByte byte = 0x1f
)

// ComQuery carries a text SQL statement for the simple (non-prepared)
// flow (spec §4.6 "Text (simple) statement").
type ComQuery struct {
	SQL string
}

func (*ComQuery) isClientMessage() {}

func (c *ComQuery) Encode() []byte {
	buf := make([]byte, 0, len(c.SQL)+1)
	buf = append(buf, ComQueryByte)
	return append(buf, []byte(c.SQL)...)
}

// ComQuit requests a graceful shutdown (spec §4.5 "emit a QUIT client
// message").
type ComQuit struct{}

func (*ComQuit) isClientMessage() {}

func (*ComQuit) Encode() []byte { return []byte{ComQuitByte} }

// ComPing is a liveness check; the server always replies OK.
type ComPing struct{}

func (*ComPing) isClientMessage() {}

func (*ComPing) Encode() []byte { return []byte{ComPingByte} }

// ComResetConnection resets session state (variables, transaction,
// prepared statements) without a full reconnect, cheaper than
// COM_CHANGE_USER (SPEC_FULL.md §10 supplemented feature).
type ComResetConnection struct{}

func (*ComResetConnection) isClientMessage() {}

func (*ComResetConnection) Encode() []byte { return []byte{ComResetConnectionByte} }

// ComChangeUser re-authenticates the connection as a different user,
// optionally switching database and collation (spec §3 "client
// message" variants).
type ComChangeUser struct {
	Username       string
	AuthResponse   []byte
	Database       string
	Collation      uint8
	AuthPluginName string
	Attributes     map[string]string
	Capability     Capability
}

func (*ComChangeUser) isClientMessage() {}

func (c *ComChangeUser) Encode() []byte {
	buf := []byte{ComChangeUserByte}
	buf = varint.WriteNulString(buf, []byte(c.Username))
	buf = varint.WriteByte(buf, byte(len(c.AuthResponse)))
	buf = append(buf, c.AuthResponse...)
	buf = varint.WriteNulString(buf, []byte(c.Database))
	buf = varint.WriteU16(buf, uint16(c.Collation))
	if c.Capability.Has(ClientPluginAuth) {
		buf = varint.WriteNulString(buf, []byte(c.AuthPluginName))
	}
	if c.Capability.Has(ClientConnectAttrs) {
		var attrs []byte
		for k, v := range c.Attributes {
			attrs = varint.WriteLenEncString(attrs, []byte(k))
			attrs = varint.WriteLenEncString(attrs, []byte(v))
		}
		buf = varint.WriteLenEncInt(buf, uint64(len(attrs)))
		buf = append(buf, attrs...)
	}
	return buf
}
