package protocol

import "github.com/zhukovaskychina/rxmysql/internal/varint"

// HandshakeResponse41 is the client's reply to HandshakeV10
// (spec §4.4 "Emit handshake-response with: capability, max packet
// size, collation id, user, auth data, optional database, plugin
// name, connection attributes, optional zstd level").
type HandshakeResponse41 struct {
	Capability     Capability
	Collation      uint8
	Username       string
	AuthResponse   []byte
	Database       string // empty if deferred
	AuthPluginName string
	Attributes     map[string]string
	ZstdLevel      int // 0 = unset
}

func (*HandshakeResponse41) isClientMessage() {}

// Encode lays out the fixed header, username, auth response, optional
// database, optional plugin name, and optional connection-attribute
// block, honoring exactly the capability bits actually negotiated.
func (r *HandshakeResponse41) Encode() []byte {
	buf := make([]byte, 0, 128)
	buf = varint.WriteU32(buf, r.Capability.Lower32())
	buf = varint.WriteU32(buf, 1<<24-1) // max packet size
	buf = varint.WriteByte(buf, r.Collation)
	buf = append(buf, make([]byte, 23)...) // reserved filler

	buf = varint.WriteNulString(buf, []byte(r.Username))

	if r.Capability.Has(ClientPluginAuthLenencClientData) {
		buf = varint.WriteLenEncString(buf, r.AuthResponse)
	} else if r.Capability.Has(ClientSecureConnection) {
		buf = varint.WriteByte(buf, byte(len(r.AuthResponse)))
		buf = append(buf, r.AuthResponse...)
	} else {
		buf = varint.WriteNulString(buf, r.AuthResponse)
	}

	if r.Capability.Has(ClientConnectWithDB) {
		buf = varint.WriteNulString(buf, []byte(r.Database))
	}

	if r.Capability.Has(ClientPluginAuth) {
		buf = varint.WriteNulString(buf, []byte(r.AuthPluginName))
	}

	if r.Capability.Has(ClientConnectAttrs) {
		var attrs []byte
		for k, v := range r.Attributes {
			attrs = varint.WriteLenEncString(attrs, []byte(k))
			attrs = varint.WriteLenEncString(attrs, []byte(v))
		}
		buf = varint.WriteLenEncInt(buf, uint64(len(attrs)))
		buf = append(buf, attrs...)
	}

	if r.Capability.Has(ClientZstdCompressionAlgorithm) && r.ZstdLevel > 0 {
		buf = varint.WriteByte(buf, byte(r.ZstdLevel))
	}

	return buf
}

// SSLRequest is the truncated handshake-response sent before the TLS
// handshake begins, when capability negotiation selected CLIENT_SSL
// (spec §4.4 "emit SSL-request and trigger TLS negotiation").
type SSLRequest struct {
	Capability Capability
	Collation  uint8
}

func (*SSLRequest) isClientMessage() {}

func (r *SSLRequest) Encode() []byte {
	buf := make([]byte, 0, 32)
	buf = varint.WriteU32(buf, r.Capability.Lower32())
	buf = varint.WriteU32(buf, 1<<24-1)
	buf = varint.WriteByte(buf, r.Collation)
	buf = append(buf, make([]byte, 23)...)
	return buf
}

// AuthSwitchResponse replies to a ChangeAuthPlugin message with the
// newly-computed auth data (spec §4.4 "switch to named plugin ...,
// send new auth-response").
type AuthSwitchResponse struct {
	Data []byte
}

func (*AuthSwitchResponse) isClientMessage() {}

func (r *AuthSwitchResponse) Encode() []byte {
	return append([]byte{}, r.Data...)
}
