package handshake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/rxmysql/internal/connctx"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
)

func TestHandshakeHappyPathNoTLS(t *testing.T) {
	ctx := connctx.New()
	f := New(ctx, Params{
		Username:          "root",
		Password:          "s3cret",
		Database:          "test",
		SSLMode:           SSLDisabled,
		DesiredCapability: protocol.ClientProtocol41.With(protocol.ClientSecureConnection).With(protocol.ClientPluginAuth),
	})

	greeting := &protocol.HandshakeV10{
		ServerVersion:  "8.0.34",
		ConnectionID:   7,
		AuthPluginData: []byte("0123456789012345678901"),
		Capability:     protocol.ClientProtocol41.With(protocol.ClientSecureConnection).With(protocol.ClientPluginAuth),
		Collation:      45,
		AuthPluginName: "mysql_native_password",
	}

	needsSSL, err := f.OnHandshake(greeting)
	require.NoError(t, err)
	assert.False(t, needsSSL)
	assert.Equal(t, StateSendResponse, f.State())

	resp, err := f.BuildHandshakeResponse()
	require.NoError(t, err)
	assert.Equal(t, "root", resp.Username)
	assert.Equal(t, StateAuthNegotiation, f.State())

	outcome, _, err := f.OnAuthMessage(&protocol.OK{Status: protocol.StatusAutocommit})
	require.NoError(t, err)
	assert.Equal(t, AuthDone, outcome)
	assert.Equal(t, StateSessionInit, f.State())

	f.MarkReady()
	assert.Equal(t, StateReady, f.State())
	assert.True(t, ctx.AutoCommit())
}

func TestHandshakeRejectsV9(t *testing.T) {
	ctx := connctx.New()
	f := New(ctx, Params{})
	_, err := f.OnHandshake(&protocol.HandshakeV9Rejected{})
	assert.Error(t, err)
	assert.True(t, f.Failed())
}

func TestHandshakeSSLPath(t *testing.T) {
	ctx := connctx.New()
	f := New(ctx, Params{
		SSLMode:           SSLRequired,
		DesiredCapability: protocol.ClientProtocol41.With(protocol.ClientSSL),
	})
	greeting := &protocol.HandshakeV10{
		Capability: protocol.ClientProtocol41.With(protocol.ClientSSL),
	}
	needsSSL, err := f.OnHandshake(greeting)
	require.NoError(t, err)
	assert.True(t, needsSSL)
	assert.Equal(t, StateSSLUpgrading, f.State())

	f.OnSSLEstablished()
	assert.Equal(t, StateSendResponse, f.State())
}

func TestHandshakeChangeAuthPlugin(t *testing.T) {
	ctx := connctx.New()
	f := New(ctx, Params{Password: "pw"})
	f.OnHandshake(&protocol.HandshakeV10{
		Capability:     protocol.ClientProtocol41,
		AuthPluginName: "mysql_native_password",
	})
	f.BuildHandshakeResponse()

	outcome, data, err := f.OnAuthMessage(&protocol.ChangeAuthPlugin{
		PluginName: "caching_sha2_password",
		Salt:       []byte("abcdefghijklmnopqrst"),
	})
	require.NoError(t, err)
	assert.Equal(t, AuthSwitchPlugin, outcome)
	assert.Len(t, data, 32)
}

// TestHandshakeCachingSHA2FullAuthRequestsPublicKey exercises the
// no-TLS full-auth path (scenario 5): the fast-auth cache miss byte
// (0x04) must make the FSM ask for the server's RSA key (the 0x02
// request byte) rather than failing outright, and the follow-up
// AUTH_MORE_DATA carrying that key must produce a usable encrypted
// response.
func TestHandshakeCachingSHA2FullAuthRequestsPublicKey(t *testing.T) {
	ctx := connctx.New()
	f := New(ctx, Params{Password: "pw"})
	_, err := f.OnHandshake(&protocol.HandshakeV10{
		Capability:     protocol.ClientProtocol41,
		AuthPluginName: "caching_sha2_password",
		AuthPluginData: []byte("01234567890123456789"),
	})
	require.NoError(t, err)
	_, err = f.BuildHandshakeResponse()
	require.NoError(t, err)

	outcome, data, err := f.OnAuthMessage(&protocol.AuthMoreData{Data: []byte{0x04}})
	require.NoError(t, err)
	assert.Equal(t, AuthRequestPublicKey, outcome)
	assert.Equal(t, []byte{0x02}, data)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	outcome, resp, err := f.OnAuthMessage(&protocol.AuthMoreData{Data: keyPEM})
	require.NoError(t, err)
	assert.Equal(t, AuthSendMoreData, outcome)
	assert.NotEmpty(t, resp)

	outcome, _, err = f.OnAuthMessage(&protocol.OK{})
	require.NoError(t, err)
	assert.Equal(t, AuthDone, outcome)
}

func TestHandshakeErrorDuringAuth(t *testing.T) {
	ctx := connctx.New()
	f := New(ctx, Params{})
	f.OnHandshake(&protocol.HandshakeV10{Capability: protocol.ClientProtocol41, AuthPluginName: "mysql_native_password"})
	f.BuildHandshakeResponse()

	outcome, _, err := f.OnAuthMessage(&protocol.Error{Code: 1045, Message: "Access denied"})
	assert.Error(t, err)
	assert.Equal(t, AuthFailedOutcome, outcome)
	assert.True(t, f.Failed())
}
