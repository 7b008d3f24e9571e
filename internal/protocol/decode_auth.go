package protocol

import "github.com/zhukovaskychina/rxmysql/internal/varint"

// DecodeAuthMoreData parses an AUTH_MORE_DATA body: everything past
// the leading 0x01 header byte is plugin-specific opaque data
// (spec §4.4: "the single byte carries fast-success or
// needs-full-auth" for caching_sha2_password; sha256_password and
// others attach their own payload, e.g. an RSA public key in PEM).
func DecodeAuthMoreData(buf []byte) *AuthMoreData {
	return &AuthMoreData{Data: append([]byte{}, buf...)}
}

// DecodeChangeAuthPlugin parses the old-style change-auth-plugin
// packet (leading 0xFE byte in the login phase, spec §4.2/§4.4):
// NUL-terminated plugin name, then the remaining bytes as the new
// salt (MySQL omits the trailing NUL on the salt portion).
func DecodeChangeAuthPlugin(buf []byte) *ChangeAuthPlugin {
	cursor, name := varint.ReadNulString(buf, 0)
	salt := buf[cursor:]
	return &ChangeAuthPlugin{PluginName: string(name), Salt: salt}
}

// DecodeLocalInfileRequest parses the LOCAL INFILE request body
// (leading 0xFB byte, length > 1, spec §4.2 dispatch table): the
// remainder is the requested filename.
func DecodeLocalInfileRequest(buf []byte) *LocalInfileRequest {
	return &LocalInfileRequest{Filename: string(buf)}
}
