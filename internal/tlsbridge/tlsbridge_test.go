package tlsbridge

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/rxmysql/internal/handshake"
)

// selfSignedServer builds a self-signed certificate valid for dnsName
// and returns a tls.Config for the server side plus the PEM bytes of
// the certificate (usable as a CA trust anchor, since it's self-signed).
func selfSignedServer(t *testing.T, dnsName string) (*tls.Config, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: dnsName},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).Add(100 * 365 * 24 * time.Hour),
		DNSNames:     []string{dnsName},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	cert, err := tls.X509KeyPair(certPEM, marshalECKey(t, key))
	require.NoError(t, err)

	return &tls.Config{Certificates: []tls.Certificate{cert}}, certPEM
}

func marshalECKey(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func startTLSServer(t *testing.T, cfg *tls.Config) net.Addr {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
	}()
	return ln.Addr()
}

func TestBuildConfigDisabledReturnsNil(t *testing.T) {
	cfg, err := BuildConfig(Params{Mode: handshake.SSLDisabled})
	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestUpgradeRequiredSkipsVerification(t *testing.T) {
	serverCfg, _ := selfSignedServer(t, "mysql.example.invalid")
	addr := startTLSServer(t, serverCfg)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	tlsConn, err := Upgrade(context.Background(), conn, Params{Mode: handshake.SSLRequired})
	require.NoError(t, err)
	defer tlsConn.Close()
	assertHandshakeComplete(t, tlsConn)
}

func TestUpgradeVerifyCAChecksChainNotHostname(t *testing.T) {
	serverCfg, caPEM := selfSignedServer(t, "totally-different-name.invalid")
	addr := startTLSServer(t, serverCfg)

	caFile := writeTempFile(t, caPEM)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	tlsConn, err := Upgrade(context.Background(), conn, Params{
		Mode:       handshake.SSLVerifyCA,
		CACertPath: caFile,
	})
	require.NoError(t, err) // chain is trusted even though ServerName never matched
	defer tlsConn.Close()
}

func TestUpgradeVerifyCARejectsUntrustedChain(t *testing.T) {
	serverCfg, _ := selfSignedServer(t, "mysql.example.invalid")
	addr := startTLSServer(t, serverCfg)

	otherCfg, otherPEM := selfSignedServer(t, "unrelated.invalid")
	_ = otherCfg
	caFile := writeTempFile(t, otherPEM)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = Upgrade(context.Background(), conn, Params{
		Mode:       handshake.SSLVerifyCA,
		CACertPath: caFile,
	})
	require.Error(t, err)
}

func TestUpgradeVerifyIdentityMatchesHostname(t *testing.T) {
	serverCfg, caPEM := selfSignedServer(t, "mysql.example.invalid")
	addr := startTLSServer(t, serverCfg)
	caFile := writeTempFile(t, caPEM)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	tlsConn, err := Upgrade(context.Background(), conn, Params{
		Mode:       handshake.SSLVerifyIdentity,
		ServerName: "mysql.example.invalid",
		CACertPath: caFile,
	})
	require.NoError(t, err)
	defer tlsConn.Close()
}

func TestUpgradeVerifyIdentityRejectsHostnameMismatch(t *testing.T) {
	serverCfg, caPEM := selfSignedServer(t, "mysql.example.invalid")
	addr := startTLSServer(t, serverCfg)
	caFile := writeTempFile(t, caPEM)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = Upgrade(context.Background(), conn, Params{
		Mode:       handshake.SSLVerifyIdentity,
		ServerName: "not-the-right-host.invalid",
		CACertPath: caFile,
	})
	require.Error(t, err)
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "ca-*.pem")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func assertHandshakeComplete(t *testing.T, c *tls.Conn) {
	t.Helper()
	require.True(t, c.ConnectionState().HandshakeComplete)
}
