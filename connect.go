// Package rxmysql is a reactive, non-blocking client for the MySQL and
// MariaDB wire protocol: Connect negotiates the handshake, optional
// TLS upgrade, and authentication, then hands back a *Conn whose
// Query/Exec/Prepare methods stream results through the same
// exchange-queue pipeline internal/stmt drives under the hood.
package rxmysql

import (
	"context"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhukovaskychina/rxmysql/conf"
	"github.com/zhukovaskychina/rxmysql/internal/cache"
	"github.com/zhukovaskychina/rxmysql/internal/codec"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
	"github.com/zhukovaskychina/rxmysql/internal/connio"
	"github.com/zhukovaskychina/rxmysql/internal/exchange"
	"github.com/zhukovaskychina/rxmysql/internal/frame"
	"github.com/zhukovaskychina/rxmysql/internal/handshake"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/internal/rxlog"
	"github.com/zhukovaskychina/rxmysql/internal/stmt"
	"github.com/zhukovaskychina/rxmysql/internal/tlsbridge"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// Config is the connection configuration vocabulary (spec §6): DSN
// parsing, ini-file defaults, and per-field overrides all live in
// package conf.
type Config = conf.Config

// ParseURL builds a Config from a connection URL, starting from
// conf.Default().
func ParseURL(dsn string) (*Config, error) { return conf.ParseURL(dsn) }

// DefaultConfig returns the baseline configuration every override
// layers on top of.
func DefaultConfig() *Config { return conf.Default() }

// baseDesiredCapability is the capability set this driver always asks
// for; the handshake FSM intersects it with whatever the server
// actually advertises.
const baseDesiredCapability = protocol.ClientLongPassword |
	protocol.ClientFoundRows |
	protocol.ClientLongFlag |
	protocol.ClientConnectWithDB |
	protocol.ClientLocalFiles |
	protocol.ClientProtocol41 |
	protocol.ClientSSL |
	protocol.ClientTransactions |
	protocol.ClientSecureConnection |
	protocol.ClientMultiStatements |
	protocol.ClientMultiResults |
	protocol.ClientPSMultiResults |
	protocol.ClientPluginAuth |
	protocol.ClientConnectAttrs |
	protocol.ClientPluginAuthLenencClientData |
	protocol.ClientCanHandleExpiredPasswords |
	protocol.ClientSessionTrack |
	protocol.ClientDeprecateEOF

// desiredCapability adds the compression bits implied by cfg's
// compressionAlgorithms preference (spec §6) to baseDesiredCapability:
// requesting a bit only makes the corresponding algorithm negotiable,
// it doesn't commit the connection to using it (see
// negotiatedCompression, applied once the handshake completes).
func desiredCapability(cfg *Config) protocol.Capability {
	want := protocol.Capability(baseDesiredCapability)
	for _, alg := range cfg.CompressionAlgorithms {
		switch alg {
		case conf.CompressionZlib:
			want = want.With(protocol.ClientCompress)
		case conf.CompressionZstd:
			want = want.With(protocol.ClientZstdCompressionAlgorithm)
		}
	}
	return want
}

// Conn is one live, authenticated connection. Every blocking method
// submits an internal/exchange.Exchange and is safe to call from
// multiple goroutines: exchanges from concurrent callers are totally
// ordered by submission order (spec §8).
type Conn struct {
	netConn net.Conn
	codec   *frame.Codec
	adapter *frameEnvelopeCodec

	ctx    *connctx.Context
	queue  *exchange.Queue
	runner *stmt.Runner
	log    *logrus.Entry

	readerErr chan error
	closeOnce sync.Once
}

// Connect dials cfg's target, drives the handshake and authentication
// to completion, and returns a ready-to-use connection. ctx bounds the
// dial and the handshake/auth round trips only; once Connect returns,
// per-call contexts passed to Query/Exec/Prepare/Close govern
// cancellation instead (spec §5, §9).
func Connect(ctx context.Context, cfg *Config) (*Conn, error) {
	dialer := &net.Dialer{}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.NewProtocolError("rxmysql: dial "+addr+": "+err.Error(), nil)
	}
	if tcpConn, ok := netConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(cfg.TCPNoDelay)
		if cfg.TCPKeepAlive {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
		}
	}

	return newConnOverDialedSocket(ctx, netConn, cfg)
}

// newConnOverDialedSocket drives the handshake/auth/steady-state wiring
// over an already-established net.Conn; Connect is a thin wrapper that
// supplies a freshly dialed TCP socket. Splitting the dial out lets
// tests exercise the same sequencing over a net.Pipe.
func newConnOverDialedSocket(ctx context.Context, netConn net.Conn, cfg *Config) (*Conn, error) {
	connCtx := connctx.New()
	if err := applyTimeZone(connCtx, cfg.ConnectionTimeZone); err != nil {
		netConn.Close()
		return nil, err
	}
	connCtx.ZeroDate = cfg.ZeroDate
	connCtx.Schema = cfg.Database
	connCtx.LocalInfileBufLen = cfg.LocalInfileBufferSize
	connCtx.LocalInfileRoot = cfg.AllowLoadLocalInfileInPath
	connCtx.PreserveInstants = cfg.PreserveInstants

	wireCodec := frame.New(netConn, netConn)

	c := &Conn{netConn: netConn, codec: wireCodec, ctx: connCtx, log: rxlog.New(0)}

	c.log.Debug("handshake: start")
	// If ctx ends mid-handshake, an immediate socket deadline fails the
	// blocked greeting/auth read or write, and Connect reports ctx.Err().
	stopWatch := context.AfterFunc(ctx, func() { _ = netConn.SetDeadline(time.Now()) })
	err := c.handshakeAndAuth(ctx, cfg)
	if !stopWatch() {
		err = ctx.Err()
	}
	if err != nil {
		c.log.WithError(err).Warn("handshake: failed")
		netConn.Close()
		return nil, err
	}
	c.upgradeCompression(cfg)

	// Reconnect the logger to the real, server-assigned connection id
	// now that the greeting has supplied it.
	c.log = rxlog.New(connCtx.ConnectionID())
	c.log.Debug("handshake: ready")
	c.adapter = &frameEnvelopeCodec{codec: wireCodec}
	transport := connio.NewTransport(c.adapter)
	c.queue = exchange.New()
	registry := codec.NewDefaultRegistry()

	var runner *stmt.Runner
	prepCache, err := cache.NewPrepared(cfg.PrepareCacheSize, func(id uint32) {
		if runner == nil {
			return
		}
		go runner.Close(context.Background(), &stmt.Prepared{StatementID: id})
	})
	if err != nil {
		netConn.Close()
		return nil, xerrors.NewProtocolError("rxmysql: building prepared-statement cache: "+err.Error(), nil)
	}

	runner = stmt.New(transport, c.queue, registry, prepCache, connCtx)
	if cfg.UseServerPrepareStatement {
		runner.FetchSize = 0
	}
	c.runner = runner

	c.readerErr = make(chan error, 1)
	decodeState := protocol.NewDecodeState(connCtx.Capability.Has(protocol.ClientDeprecateEOF))
	decodeState.Phase = protocol.PhaseCommand
	go func() {
		err := connio.Run(c.adapter, transport, decodeState, connCtx.Capability, c.queue)
		c.log.WithError(err).Warn("read loop exited")
		c.queue.Close()
		select {
		case c.readerErr <- err:
		default:
		}
	}()

	if cfg.CreateDatabaseIfNotExist && cfg.Database != "" {
		if err := c.createAndSelectDatabase(ctx, cfg.Database); err != nil {
			c.netConn.Close()
			return nil, err
		}
	}

	if len(cfg.SessionVariables) > 0 {
		if err := c.applySessionVariables(ctx, cfg.SessionVariables); err != nil {
			c.netConn.Close()
			return nil, err
		}
	}

	return c, nil
}

// createAndSelectDatabase runs the deferred database setup
// handshake.Params.DeferDatabase postponed: CREATE DATABASE IF NOT
// EXISTS, then USE, since deferring it in the handshake response
// means the server selected no default schema at login.
func (c *Conn) createAndSelectDatabase(ctx context.Context, db string) error {
	quoted := "`" + strings.ReplaceAll(db, "`", "``") + "`"
	if err := c.runExecuteDrain(ctx, "CREATE DATABASE IF NOT EXISTS "+quoted); err != nil {
		return err
	}
	return c.runExecuteDrain(ctx, "USE "+quoted)
}

// runExecuteDrain runs sql as a text statement and drains it to
// completion, discarding any rows.
func (c *Conn) runExecuteDrain(ctx context.Context, sql string) error {
	results := c.runner.ExecuteText(ctx, sql)
	for {
		rs, ok := results.Next()
		if !ok {
			return results.Err()
		}
		for {
			_, rowErr, more := rs.Next()
			if !more {
				break
			}
			if rowErr != nil {
				return rowErr
			}
		}
	}
}

// applyTimeZone resolves the connectionTimeZone vocabulary (spec §6):
// "LOCAL" leaves the codec layer's time.Local fallback in place,
// "SERVER" is treated identically since this driver never queries
// @@session.time_zone on connect, and anything else must name a
// loadable IANA zone.
func applyTimeZone(ctx *connctx.Context, tz string) error {
	switch tz {
	case "", "LOCAL", "SERVER":
		ctx.TimeZone = nil
		return nil
	default:
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return xerrors.NewProtocolError("rxmysql: invalid connectionTimeZone "+strconv.Quote(tz)+": "+err.Error(), nil)
		}
		ctx.TimeZone = loc
		return nil
	}
}

// handshakeAndAuth drives the FSM through HANDSHAKE, the optional TLS
// upgrade, and AUTH_NEGOTIATION to READY (spec §4.4).
func (c *Conn) handshakeAndAuth(ctx context.Context, cfg *Config) error {
	buf, err := c.codec.ReadPayload()
	if err != nil {
		return err
	}
	greeting, err := protocol.DecodeHandshake(buf.Bytes())
	buf.Release()
	if err != nil {
		return err
	}

	fsm := handshake.New(c.ctx, handshake.Params{
		Username:           cfg.Username,
		Password:           cfg.Password,
		Database:           cfg.Database,
		DeferDatabase:      cfg.CreateDatabaseIfNotExist,
		SSLMode:            cfg.SSLMode,
		DesiredCapability:  desiredCapability(cfg),
		PreferredCollation: 0,
		Attributes:         connectionAttributes(cfg),
		ZstdLevel:          cfg.ZstdCompressionLevel,
	})

	needsSSL, err := fsm.OnHandshake(greeting)
	if err != nil {
		return err
	}

	if needsSSL {
		if err := c.upgradeTLS(ctx, cfg, fsm); err != nil {
			return err
		}
		fsm.OnSSLEstablished()
	}

	resp, err := fsm.BuildHandshakeResponse()
	if err != nil {
		return err
	}
	// No sequence reset here: the response continues the count after the
	// greeting (and after the SSLRequest, when TLS was negotiated).
	if err := c.codec.WritePayload(resp.Encode()); err != nil {
		return err
	}

	for {
		buf, err := c.codec.ReadPayload()
		if err != nil {
			return err
		}
		msg, decodeErr := decodeAuthMessage(buf.Bytes(), c.ctx.Capability)
		buf.Release()
		if decodeErr != nil {
			return decodeErr
		}

		outcome, data, err := fsm.OnAuthMessage(msg)
		if err != nil {
			return err
		}
		switch outcome {
		case handshake.AuthDone:
			fsm.MarkReady()
			c.codec.ResetSeq()
			return nil
		case handshake.AuthFailedOutcome:
			return xerrors.NewProtocolError("rxmysql: authentication failed", nil)
		case handshake.AuthSwitchPlugin:
			c.log.Debug("handshake: auth plugin switch")
			if err := c.codec.WritePayload((&protocol.AuthSwitchResponse{Data: data}).Encode()); err != nil {
				return err
			}
		case handshake.AuthSendMoreData, handshake.AuthRequestPublicKey:
			if err := c.codec.WritePayload((&protocol.AuthSwitchResponse{Data: data}).Encode()); err != nil {
				return err
			}
		case handshake.AuthContinue:
			// plugin needs another server message (e.g. caching_sha2's
			// fast-success path) before anything more is sent.
		}
	}
}

// upgradeTLS sends the truncated SSLRequest, performs the TLS
// handshake over the raw socket, then rebinds the envelope codec onto
// the encrypted connection without disturbing its sequence counter
// (spec §4.4).
func (c *Conn) upgradeTLS(ctx context.Context, cfg *Config, fsm *handshake.FSM) error {
	sslReq := &protocol.SSLRequest{Capability: c.ctx.Capability, Collation: c.ctx.ClientCollation.ID}
	if err := c.codec.WritePayload(sslReq.Encode()); err != nil {
		return err
	}

	tlsConn, err := tlsbridge.Upgrade(ctx, c.netConn, tlsbridge.Params{
		Mode:       cfg.SSLMode,
		ServerName: cfg.Host,
		CACertPath: cfg.SSLCa,
		CertPath:   cfg.SSLCert,
		KeyPath:    cfg.SSLKey,
	})
	if err != nil {
		return err
	}
	c.netConn = tlsConn
	c.codec.Rebind(tlsConn, tlsConn)
	return nil
}

// upgradeCompression rebinds the envelope codec onto a
// frame.CompressedCodec once the negotiated capability and cfg's
// compressionAlgorithms preference agree on an algorithm (spec §6).
// Compression upgrade is one of frame.Seq's named reset points
// alongside post-login, so the inner codec's sequence counter is reset
// too; a fresh CompressedCodec always starts its own outer sequence at
// zero.
func (c *Conn) upgradeCompression(cfg *Config) {
	alg := negotiatedCompression(c.ctx.Capability, cfg.CompressionAlgorithms)
	if alg == frame.AlgorithmNone {
		return
	}
	cc, err := frame.NewCompressed(c.netConn, c.netConn, alg, cfg.ZstdCompressionLevel)
	if err != nil {
		// Building the local codec is the only way this can fail (bad
		// zstd encoder level); neither side committed to compression
		// actually being used on the wire yet, so fall back to
		// uncompressed instead of failing the whole connection.
		return
	}
	c.codec.Rebind(cc, cc)
	c.codec.ResetSeq()
}

// negotiatedCompression walks cfg's compression preference order and
// returns the first algorithm the handshake's capability intersection
// actually supports; an explicit "UNCOMPRESSED" entry anywhere in the
// list stops the search and disables compression from that point on.
func negotiatedCompression(cap protocol.Capability, prefs []conf.CompressionAlgorithm) frame.Algorithm {
	for _, pref := range prefs {
		switch pref {
		case conf.CompressionZstd:
			if cap.Has(protocol.ClientZstdCompressionAlgorithm) {
				return frame.AlgorithmZstd
			}
		case conf.CompressionZlib:
			if cap.Has(protocol.ClientCompress) {
				return frame.AlgorithmZlib
			}
		case conf.CompressionUncompressed:
			return frame.AlgorithmNone
		}
	}
	return frame.AlgorithmNone
}

// decodeAuthMessage resolves the login-phase header byte directly: the
// handshake FSM runs before Route's steady-state dispatch table
// applies (Route only ever sees the initial greeting in PhaseLogin).
func decodeAuthMessage(payload []byte, cap protocol.Capability) (protocol.ServerMessage, error) {
	if len(payload) == 0 {
		return nil, xerrors.NewProtocolError("rxmysql: empty auth-phase payload", nil)
	}
	switch payload[0] {
	case 0x00:
		return protocol.DecodeOK(payload, 1, cap)
	case 0xff:
		return protocol.DecodeError(payload, 1, cap)
	case 0x01:
		return protocol.DecodeAuthMoreData(payload[1:]), nil
	case 0xfe:
		return protocol.DecodeChangeAuthPlugin(payload[1:]), nil
	default:
		return nil, xerrors.NewProtocolError("rxmysql: unexpected auth-phase header byte", nil)
	}
}

// connectionAttributes builds the _client_name/_client_version/_os/_pid
// block the handshake response attaches when CLIENT_CONNECT_ATTRS is
// negotiated (SPEC_FULL.md §10).
func connectionAttributes(cfg *Config) map[string]string {
	return map[string]string{
		"_client_name":    "rxmysql",
		"_client_version": clientVersion,
		"_os":             runtime.GOOS,
		"_pid":            strconv.Itoa(os.Getpid()),
	}
}

const clientVersion = "0.1.0"
