// Package tlsbridge upgrades an already-connected TCP socket to TLS for
// the handshake FSM's SSL_UPGRADING state (spec §4.4, §6's SSLMode
// vocabulary: DISABLED, PREFERRED, REQUIRED, VERIFY_CA, VERIFY_IDENTITY,
// TUNNEL). Grounded on stdlib crypto/tls and crypto/x509 directly: RFC
// 6125 wildcard hostname matching is implemented by
// (*x509.Certificate).VerifyHostname, and no ecosystem wrapper in the
// retrieval pack improves on it for this use case.
package tlsbridge

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"

	"github.com/zhukovaskychina/rxmysql/internal/handshake"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// Params configures one TLS upgrade attempt, sourced from the
// connection-URL vocabulary (sslMode, sslCa, sslCert, sslKey,
// sslKeyPassword, tlsVersion, sslHostnameVerifier).
type Params struct {
	Mode       handshake.SSLMode
	ServerName string

	CACertPath string
	CertPath   string
	KeyPath    string

	// MinVersion is a tls.VersionTLSxx constant; zero defaults to
	// TLS 1.2 (spec §4.9 "TLS 1.2 and 1.3 enabled by default ...
	// TLS 1.0/1.1 used as fallback only").
	MinVersion uint16
}

// BuildConfig translates Params into a *tls.Config matching the
// semantics of its SSLMode: PREFERRED/REQUIRED/TUNNEL trust whatever
// certificate the server presents without checking it is who it claims
// to be, VERIFY_CA checks the certificate chain but not the hostname,
// and VERIFY_IDENTITY additionally requires the peer certificate's SAN
// (falling back to CN when SAN is absent) to match ServerName under
// RFC 6125 wildcard rules. Returns (nil, nil) for SSLDisabled: callers
// must treat that as "do not upgrade".
func BuildConfig(p Params) (*tls.Config, error) {
	if p.Mode == handshake.SSLDisabled {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName: p.ServerName,
		MinVersion: tls.VersionTLS12,
	}
	if p.MinVersion != 0 {
		cfg.MinVersion = p.MinVersion
	}

	switch p.Mode {
	case handshake.SSLPreferred, handshake.SSLRequired, handshake.SSLTunnel:
		cfg.InsecureSkipVerify = true
	case handshake.SSLVerifyCA:
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = verifyChainOnly(cfg)
	case handshake.SSLVerifyIdentity:
		// cfg.ServerName set above, InsecureSkipVerify left false:
		// stdlib's own handshake already performs RFC 6125 SAN/CN
		// matching via VerifyHostname for this case.
	}

	if p.CACertPath != "" {
		pem, err := os.ReadFile(p.CACertPath)
		if err != nil {
			return nil, xerrors.NewProtocolError("tlsbridge: reading CA certificate: "+err.Error(), nil)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, xerrors.NewProtocolError("tlsbridge: no certificates found in CA file", nil)
		}
		cfg.RootCAs = pool
	}

	if p.CertPath != "" && p.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(p.CertPath, p.KeyPath)
		if err != nil {
			return nil, xerrors.NewProtocolError("tlsbridge: loading client certificate: "+err.Error(), nil)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// verifyChainOnly builds a VerifyPeerCertificate callback that checks
// the certificate chain against cfg.RootCAs without comparing the
// leaf's identity to any hostname (VERIFY_CA, spec §4.9).
func verifyChainOnly(cfg *tls.Config) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return xerrors.NewProtocolError("tlsbridge: server presented no certificate", nil)
		}
		certs := make([]*x509.Certificate, len(rawCerts))
		for i, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return xerrors.NewProtocolError("tlsbridge: parsing peer certificate: "+err.Error(), nil)
			}
			certs[i] = cert
		}
		intermediates := x509.NewCertPool()
		for _, c := range certs[1:] {
			intermediates.AddCert(c)
		}
		_, err := certs[0].Verify(x509.VerifyOptions{
			Roots:         cfg.RootCAs,
			Intermediates: intermediates,
		})
		if err != nil {
			return xerrors.NewProtocolError("tlsbridge: certificate chain verification failed: "+err.Error(), nil)
		}
		return nil
	}
}

// Upgrade performs the client side of the TLS handshake over an
// already-open connection, after the caller has sent the
// protocol.SSLRequest truncated handshake-response (spec §4.4 "emit
// SSL-request and trigger TLS negotiation; upon TLS success, continue;
// on any TLS failure, fail").
func Upgrade(ctx context.Context, conn net.Conn, p Params) (*tls.Conn, error) {
	cfg, err := BuildConfig(p)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, xerrors.NewProtocolError("tlsbridge: Upgrade called with SSLDisabled", nil)
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, xerrors.NewProtocolError("tlsbridge: TLS handshake failed: "+err.Error(), nil)
	}
	return tlsConn, nil
}
