package rxmysql

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/rxmysql/conf"
	"github.com/zhukovaskychina/rxmysql/internal/frame"
	"github.com/zhukovaskychina/rxmysql/internal/handshake"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/internal/varint"
)

// fakeServerConn wraps one side of a net.Pipe with a sequence counter
// so the test's fake server can hand-encode envelopes the same way
// internal/frame.Codec does.
type fakeServerConn struct {
	net.Conn
	seq byte
}

func (f *fakeServerConn) writeEnvelope(payload []byte) error {
	hdr := make([]byte, 0, 4)
	hdr = varint.WriteU24(hdr, uint32(len(payload)))
	hdr = varint.WriteByte(hdr, f.seq)
	f.seq++
	if _, err := f.Write(hdr); err != nil {
		return err
	}
	_, err := f.Write(payload)
	return err
}

func (f *fakeServerConn) readEnvelope() ([]byte, error) {
	var hdr [4]byte
	if _, err := readFull(f.Conn, hdr[:]); err != nil {
		return nil, err
	}
	_, length := varint.ReadU24(hdr[:], 0)
	f.seq = hdr[3] + 1
	payload := make([]byte, length)
	if length > 0 {
		if _, err := readFull(f.Conn, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// fakeHandshakeGreeting builds a HandshakeV10 greeting advertising
// just enough capability (protocol41, secure-connection, plugin-auth,
// transactions) to drive a no-TLS, empty-password login using
// mysql_native_password, with legacy (non-deprecate-EOF) result
// framing so the row stream matches internal/connio's own test
// fixtures.
func fakeHandshakeGreeting() []byte {
	cap := protocol.ClientProtocol41 | protocol.ClientSecureConnection |
		protocol.ClientPluginAuth | protocol.ClientTransactions |
		protocol.ClientConnectWithDB | protocol.ClientLongPassword

	var buf []byte
	buf = append(buf, 0x0A)
	buf = varint.WriteNulString(buf, []byte("8.0.34-fake"))
	buf = varint.WriteU32(buf, 7)
	buf = append(buf, []byte("12345678")...) // auth-plugin-data part 1
	buf = varint.WriteByte(buf, 0)            // filler
	buf = varint.WriteU16(buf, uint16(cap.Lower32()&0xFFFF))
	buf = varint.WriteByte(buf, 45) // collation
	buf = varint.WriteU16(buf, uint16(protocol.StatusAutocommit))
	buf = varint.WriteU16(buf, uint16(cap.Lower32()>>16))
	buf = varint.WriteByte(buf, 21) // auth-data length (20 + trailing NUL)
	buf = append(buf, make([]byte, 10)...)
	buf = append(buf, []byte("abcd12345678")...) // 12 bytes
	buf = varint.WriteByte(buf, 0)                // trailing NUL, stripped on decode
	buf = varint.WriteNulString(buf, []byte("mysql_native_password"))
	return buf
}

func okPacket(status protocol.ServerStatus) []byte {
	var buf []byte
	buf = varint.WriteLenEncInt(buf, 0)
	buf = varint.WriteLenEncInt(buf, 0)
	buf = varint.WriteU16(buf, uint16(status))
	buf = varint.WriteU16(buf, 0)
	return append([]byte{0x00}, buf...)
}

func legacyEOFPacket(status protocol.ServerStatus) []byte {
	var buf []byte
	buf = varint.WriteU16(buf, 0)
	buf = varint.WriteU16(buf, uint16(status))
	return append([]byte{0xfe}, buf...)
}

func columnDefPacket(name string) []byte {
	var buf []byte
	buf = varint.WriteLenEncString(buf, []byte("def"))
	buf = varint.WriteLenEncString(buf, []byte("schema"))
	buf = varint.WriteLenEncString(buf, []byte("t"))
	buf = varint.WriteLenEncString(buf, []byte("t"))
	buf = varint.WriteLenEncString(buf, []byte(name))
	buf = varint.WriteLenEncString(buf, []byte(name))
	buf = varint.WriteLenEncInt(buf, 0x0c)
	buf = varint.WriteU16(buf, 45)
	buf = varint.WriteU32(buf, 255)
	buf = varint.WriteByte(buf, 0x03) // TypeLong
	buf = varint.WriteU16(buf, 0)
	buf = varint.WriteByte(buf, 0)
	return buf
}

// TestConnectQueryClose drives Connect, a text query, and Close against
// a hand-scripted fake server over a net.Pipe, exercising the full
// handshake/auth/steady-state wiring this package assembles from the
// handshake, frame, connio, and stmt packages.
func TestConnectQueryClose(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	server := &fakeServerConn{Conn: serverSide}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- runFakeServer(server)
	}()

	cfg := conf.Default()
	cfg.Host = "fake"
	cfg.Port = 3306
	cfg.Username = "root"
	cfg.Password = ""
	cfg.Database = "test"
	cfg.SSLMode = handshake.SSLDisabled

	conn, err := connectOverPipe(t, clientSide, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := conn.Query(ctx, "select id from t")
	require.NoError(t, err)

	rs, ok := results.Next()
	require.True(t, ok)
	require.Len(t, rs.Columns, 1)

	row, rowErr, more := rs.Next()
	require.True(t, more)
	require.NoError(t, rowErr)
	var id int64
	require.NoError(t, row.Scan(&id))
	require.EqualValues(t, 7, id)

	_, ok = results.Next()
	require.False(t, ok)
	require.NoError(t, results.Err())

	require.NoError(t, conn.Close())
	require.NoError(t, <-serverDone)
}

// connectOverPipe runs Connect's handshake/auth/steady-state wiring over
// an already-established net.Conn: since Connect always dials itself,
// the test calls newConnOverDialedSocket, the function Connect hands
// its dialed socket to, directly with clientSide.
func connectOverPipe(t *testing.T, clientSide net.Conn, cfg *conf.Config) (*Conn, error) {
	t.Helper()
	return newConnOverDialedSocket(context.Background(), clientSide, cfg)
}

func TestDesiredCapabilityIncludesRequestedCompressionBits(t *testing.T) {
	cfg := conf.Default()
	cfg.CompressionAlgorithms = []conf.CompressionAlgorithm{conf.CompressionZlib, conf.CompressionZstd}
	cap := desiredCapability(cfg)
	require.True(t, cap.Has(protocol.ClientCompress))
	require.True(t, cap.Has(protocol.ClientZstdCompressionAlgorithm))

	cfg2 := conf.Default()
	cap2 := desiredCapability(cfg2)
	require.False(t, cap2.Has(protocol.ClientCompress))
	require.False(t, cap2.Has(protocol.ClientZstdCompressionAlgorithm))
}

func TestNegotiatedCompressionPrefersEarlierAlgorithm(t *testing.T) {
	both := protocol.ClientCompress.With(protocol.ClientZstdCompressionAlgorithm)

	alg := negotiatedCompression(both, []conf.CompressionAlgorithm{conf.CompressionZstd, conf.CompressionZlib})
	require.Equal(t, frame.AlgorithmZstd, alg)

	alg = negotiatedCompression(both, []conf.CompressionAlgorithm{conf.CompressionZlib, conf.CompressionZstd})
	require.Equal(t, frame.AlgorithmZlib, alg)

	zlibOnly := protocol.Capability(protocol.ClientCompress)
	alg = negotiatedCompression(zlibOnly, []conf.CompressionAlgorithm{conf.CompressionZstd, conf.CompressionZlib})
	require.Equal(t, frame.AlgorithmZlib, alg)

	alg = negotiatedCompression(both, []conf.CompressionAlgorithm{conf.CompressionUncompressed, conf.CompressionZstd})
	require.Equal(t, frame.AlgorithmNone, alg)

	alg = negotiatedCompression(both, nil)
	require.Equal(t, frame.AlgorithmNone, alg)
}

func runFakeServer(server *fakeServerConn) error {
	// Greeting.
	if err := server.writeEnvelope(fakeHandshakeGreeting()); err != nil {
		return err
	}
	// Handshake response (ignored - empty password needs no verification).
	if _, err := server.readEnvelope(); err != nil {
		return err
	}
	if err := server.writeEnvelope(okPacket(protocol.StatusAutocommit)); err != nil {
		return err
	}

	// COM_QUERY "select id from t".
	if _, err := server.readEnvelope(); err != nil {
		return err
	}
	// Replies continue the command's sequence (readEnvelope set it to 1).
	if err := server.writeEnvelope(varint.WriteLenEncInt(nil, 1)); err != nil {
		return err
	}
	if err := server.writeEnvelope(columnDefPacket("id")); err != nil {
		return err
	}
	if err := server.writeEnvelope(legacyEOFPacket(0)); err != nil {
		return err
	}
	if err := server.writeEnvelope(varint.WriteLenEncString(nil, []byte("7"))); err != nil {
		return err
	}
	if err := server.writeEnvelope(legacyEOFPacket(protocol.StatusAutocommit)); err != nil {
		return err
	}

	// COM_QUIT: no response expected.
	if _, err := server.readEnvelope(); err != nil {
		return err
	}
	return nil
}
