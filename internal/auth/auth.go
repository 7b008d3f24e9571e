// Package auth implements the MySQL/MariaDB client auth-plugin chain
// (spec §4.4): native (SHA-1 based), caching_sha2 (SHA-256 fast path +
// full path), sha256, clear-password, old-password (legacy), and
// no-auth. Hash constructions are grounded on the teacher's
// util/password.go SHA1-XOR scramble, generalized to the SHA-256
// family and the RSA-OAEP full-auth path spec.md requires.
package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"

	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// Plugin is the capability set every auth plugin implements
// (spec §4.4 "Auth plugin interface").
type Plugin interface {
	Name() string
	IsSSLRequired() bool
	Authenticate(password string, salt []byte) ([]byte, error)
}

// registry is the explicit, lazily-populated plugin-name lookup that
// replaces the source's class-load-time singletons (spec §9 "Lazy
// singletons for auth plugins").
var registry = map[string]func() Plugin{
	"mysql_native_password": func() Plugin { return NativePlugin{} },
	"caching_sha2_password":  func() Plugin { return CachingSHA2Plugin{} },
	"sha256_password":        func() Plugin { return SHA256Plugin{} },
	"mysql_clear_password":   func() Plugin { return ClearPlugin{} },
	"mysql_old_password":     func() Plugin { return OldPlugin{} },
}

// Lookup resolves a plugin by its server-advertised name.
func Lookup(name string) (Plugin, bool) {
	ctor, ok := registry[name]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// NativePlugin implements mysql_native_password:
// SHA1(password) XOR SHA1(salt ‖ SHA1(SHA1(password))) (spec §4.4).
type NativePlugin struct{}

func (NativePlugin) Name() string        { return "mysql_native_password" }
func (NativePlugin) IsSSLRequired() bool { return false }

func (NativePlugin) Authenticate(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	stage1 := sha1Sum([]byte(password))
	stage2 := sha1Sum(stage1)

	combined := append(append([]byte{}, salt...), stage2...)
	stage3 := sha1Sum(combined)

	out := make([]byte, len(stage1))
	for i := range stage1 {
		out[i] = stage1[i] ^ stage3[i]
	}
	return out, nil
}

func sha1Sum(b []byte) []byte {
	h := sha1.New()
	h.Write(b)
	return h.Sum(nil)
}

func sha256Sum(b []byte) []byte {
	h := sha256.New()
	h.Write(b)
	return h.Sum(nil)
}

// CachingSHA2Plugin implements caching_sha2_password's fast-path hash
// (spec §4.4): SHA256(password) XOR SHA256(SHA256(SHA256(password)) ‖ salt).
// The full-auth path (RSA-OAEP or cleartext-over-TLS) is driven by the
// handshake FSM via FullAuthResponse, since it needs the server's
// public key or the TLS state, neither of which this plugin owns.
type CachingSHA2Plugin struct{}

func (CachingSHA2Plugin) Name() string        { return "caching_sha2_password" }
func (CachingSHA2Plugin) IsSSLRequired() bool { return false }

func (CachingSHA2Plugin) Authenticate(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	stage1 := sha256Sum([]byte(password))
	stage2 := sha256Sum(stage1)
	stage3 := sha256Sum(append(append([]byte{}, stage2...), salt...))

	out := make([]byte, len(stage1))
	for i := range stage1 {
		out[i] = stage1[i] ^ stage3[i]
	}
	return out, nil
}

// AuthMoreDataAction classifies the single opaque byte a server's
// AUTH_MORE_DATA carries during caching_sha2_password negotiation
// (spec §4.4).
type AuthMoreDataAction int

const (
	ActionFastSuccess AuthMoreDataAction = iota
	ActionNeedsFullAuth
	ActionUnknown
)

func ClassifyCachingSHA2MoreData(data []byte) AuthMoreDataAction {
	if len(data) != 1 {
		return ActionUnknown
	}
	switch data[0] {
	case 0x03:
		return ActionFastSuccess
	case 0x04:
		return ActionNeedsFullAuth
	}
	return ActionUnknown
}

// FullAuthResponse computes the full-auth payload once the caching_sha2
// or sha256 plugin has requested it: cleartext when the channel is
// already TLS-secured, RSA-OAEP-encrypted (password XOR salt, against
// the server's RSA public key) otherwise (spec §4.4, scenario 5).
func FullAuthResponse(password string, salt []byte, secureChannel bool, serverPublicKeyPEM []byte) ([]byte, error) {
	if secureChannel {
		return append([]byte(password), 0), nil
	}
	if len(serverPublicKeyPEM) == 0 {
		return nil, xerrors.NewProtocolError("full-auth requested without a secure channel or server public key", nil)
	}
	pub, err := parseRSAPublicKey(serverPublicKeyPEM)
	if err != nil {
		return nil, xerrors.NewProtocolError("parse server RSA public key", err)
	}
	xored := xorWithSalt([]byte(password+"\x00"), salt)
	return rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, xored, nil)
}

func xorWithSalt(password, salt []byte) []byte {
	out := make([]byte, len(password))
	for i, b := range password {
		out[i] = b ^ salt[i%len(salt)]
	}
	return out
}

func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, xerrors.NewProtocolError("invalid PEM block for server RSA key", nil)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, xerrors.NewProtocolError("server public key is not RSA", nil)
	}
	return rsaPub, nil
}

// SHA256Plugin implements sha256_password: same full-auth mechanics as
// caching_sha2_password but with no fast-path cache on the server, so
// the client always performs the RSA-OAEP/cleartext exchange.
type SHA256Plugin struct{}

func (SHA256Plugin) Name() string        { return "sha256_password" }
func (SHA256Plugin) IsSSLRequired() bool { return false }

func (SHA256Plugin) Authenticate(password string, salt []byte) ([]byte, error) {
	// sha256_password has no single-pass hash form; the first response
	// is the single byte 0x01, which asks the server for its public key.
	// The server answers with AUTH_MORE_DATA carrying the key, and the
	// handshake FSM calls FullAuthResponse.
	return []byte{1}, nil
}

// ClearPlugin implements mysql_clear_password: the password sent
// as-is, which is only safe under TLS (spec §4.4, §6 "TLS").
type ClearPlugin struct{}

func (ClearPlugin) Name() string        { return "mysql_clear_password" }
func (ClearPlugin) IsSSLRequired() bool { return true }

func (ClearPlugin) Authenticate(password string, salt []byte) ([]byte, error) {
	return append([]byte(password), 0), nil
}

// OldPlugin implements the legacy, length-limited mysql_old_password
// hash, kept only for pre-4.1 servers this driver otherwise refuses
// (spec's Open Question on protocol v9, decided: reject at handshake).
// Included for completeness of the plugin chain named in spec §4.4.
type OldPlugin struct{}

func (OldPlugin) Name() string        { return "mysql_old_password" }
func (OldPlugin) IsSSLRequired() bool { return false }

func (OldPlugin) Authenticate(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	return oldPasswordHash(password, salt), nil
}

// oldPasswordHash implements the pre-4.1 "old password" algorithm: a
// pair of 32-bit hash accumulators seeded from the password, mixed
// with the salt through a linear-congruential generator.
func oldPasswordHash(password string, salt []byte) []byte {
	hashPassword := oldHashPassword(password)
	hashMessage := oldHashPassword(string(salt))

	seed1 := hashPassword[0] ^ hashMessage[0]
	seed2 := hashPassword[1] ^ hashMessage[1]

	out := make([]byte, 8)
	for i := range out {
		seed1 = (seed1*3 + seed2) % 0x3fffffff
		seed2 = (seed1 + seed2 + 33) % 0x3fffffff
		out[i] = byte(float64(seed1) / 0x3fffffff * 31) + 64
	}
	return out
}

// NoAuthPlugin is used when the server lacks CLIENT_PLUGIN_AUTH: the
// handshake response carries the legacy (pre-plugin) auth data with no
// named plugin negotiation, equivalent to an empty/no-op plugin step.
type NoAuthPlugin struct{}

func (NoAuthPlugin) Name() string        { return "" }
func (NoAuthPlugin) IsSSLRequired() bool { return false }

func (NoAuthPlugin) Authenticate(password string, salt []byte) ([]byte, error) {
	return NativePlugin{}.Authenticate(password, salt)
}

func oldHashPassword(s string) [2]uint32 {
	var nr, nr2 uint32 = 1345345333, 0x12345671
	add := uint32(7)
	for _, c := range s {
		if c == ' ' || c == '\t' {
			continue
		}
		tmp := uint32(c)
		nr ^= (((nr & 63) + add) * tmp) + (nr << 8)
		nr2 += (nr2 << 8) ^ nr
		add += tmp
	}
	return [2]uint32{nr & 0x7fffffff, nr2 & 0x7fffffff}
}
