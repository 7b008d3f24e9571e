package connio

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/internal/varint"
)

type fakeCodec struct {
	mu      sync.Mutex
	queue   [][]byte
	written [][]byte
	seqN    int
}

func (f *fakeCodec) push(payload []byte) { f.queue = append(f.queue, payload) }

func (f *fakeCodec) ReadPayload() ([]byte, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil, errors.New("no more fake envelopes")
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	return p, func() {}, nil
}

func (f *fakeCodec) WritePayload(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, payload)
	return nil
}

func (f *fakeCodec) ResetSeq() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seqN++
}

type fakeDispatcher struct {
	mu  sync.Mutex
	got []interface{}
}

func (d *fakeDispatcher) Dispatch(msg interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, msg)
	return nil
}

func (d *fakeDispatcher) messages() []interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]interface{}{}, d.got...)
}

func okPayload(status protocol.ServerStatus) []byte {
	var buf []byte
	buf = varint.WriteLenEncInt(buf, 0)
	buf = varint.WriteLenEncInt(buf, 0)
	buf = varint.WriteU16(buf, uint16(status))
	buf = varint.WriteU16(buf, 0)
	return append([]byte{0x00}, buf...)
}

func eofPayload(status protocol.ServerStatus) []byte {
	var buf []byte
	buf = varint.WriteU16(buf, 0)
	buf = varint.WriteU16(buf, uint16(status))
	return append([]byte{0xfe}, buf...)
}

// deprecatedEOFPayload builds the CLIENT_DEPRECATE_EOF row/metadata
// terminator: header 0xfe (shared with the legacy EOF marker, so short
// packets in row phase stay ambiguous without DecodeState.DeprecateEOF)
// but an OK-shaped body rather than the legacy EOF's warning+status pair.
func deprecatedEOFPayload(status protocol.ServerStatus) []byte {
	var buf []byte
	buf = varint.WriteLenEncInt(buf, 0)
	buf = varint.WriteLenEncInt(buf, 0)
	buf = varint.WriteU16(buf, uint16(status))
	buf = varint.WriteU16(buf, 0)
	return append([]byte{0xfe}, buf...)
}

func columnCountPayload(n uint64) []byte {
	return varint.WriteLenEncInt(nil, n)
}

func columnDefPayload(name string, typ collation.ColumnType) []byte {
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
	buf = varint.WriteByte(buf, byte(typ))
	buf = varint.WriteU16(buf, 0)
	buf = varint.WriteByte(buf, 0)
	return buf
}

func textRowPayload(value string) []byte {
	return varint.WriteLenEncString(nil, []byte(value))
}

func preparedOKPayload(stmtID uint32, paramCount, colCount uint16) []byte {
	var buf []byte
	buf = varint.WriteU32(buf, stmtID)
	buf = varint.WriteU16(buf, colCount)
	buf = varint.WriteU16(buf, paramCount)
	buf = varint.WriteByte(buf, 0)
	buf = varint.WriteU16(buf, 0)
	return append([]byte{0x00}, buf...)
}

func TestRunTextQueryResultSetWithDeprecateEOF(t *testing.T) {
	codec := &fakeCodec{}
	transport := NewTransport(codec)
	state := protocol.NewDecodeState(true)
	dispatcher := &fakeDispatcher{}

	transport.ResetSeq()
	require.NoError(t, transport.WritePayload([]byte{protocol.ComQueryByte, 's', 'e', 'l', 'e', 'c', 't'}))

	codec.push(columnCountPayload(1))
	codec.push(columnDefPayload("id", collation.TypeLong))
	codec.push(textRowPayload("7"))
	codec.push(deprecatedEOFPayload(protocol.StatusAutocommit))

	err := Run(codec, transport, state, protocol.ClientProtocol41, dispatcher)
	require.Error(t, err) // terminates once the fake queue is drained

	msgs := dispatcher.messages()
	require.Len(t, msgs, 4)
	assert.IsType(t, &protocol.ColumnCount{}, msgs[0])
	assert.IsType(t, &protocol.MetadataBundle{}, msgs[1])
	assert.IsType(t, &protocol.Row{}, msgs[2])
	assert.IsType(t, &protocol.OK{}, msgs[3])
	assert.Equal(t, protocol.PhaseCommand, state.Phase)
}

func TestRunTextQueryResultSetLegacyEOF(t *testing.T) {
	codec := &fakeCodec{}
	transport := NewTransport(codec)
	state := protocol.NewDecodeState(false)
	dispatcher := &fakeDispatcher{}

	transport.ResetSeq()
	require.NoError(t, transport.WritePayload([]byte{protocol.ComQueryByte, 's'}))

	codec.push(columnCountPayload(1))
	codec.push(columnDefPayload("id", collation.TypeLong))
	codec.push(eofPayload(0))
	codec.push(textRowPayload("7"))
	codec.push(eofPayload(protocol.StatusAutocommit))

	err := Run(codec, transport, state, protocol.ClientProtocol41, dispatcher)
	require.Error(t, err)

	msgs := dispatcher.messages()
	require.Len(t, msgs, 4)
	assert.IsType(t, &protocol.ColumnCount{}, msgs[0])
	assert.IsType(t, &protocol.MetadataBundle{}, msgs[1])
	assert.IsType(t, &protocol.Row{}, msgs[2])
	assert.IsType(t, &protocol.EOF{}, msgs[3])
	assert.Equal(t, protocol.PhaseCommand, state.Phase)
}

func TestRunPrepareResponseThenExecuteReusesCommandPhase(t *testing.T) {
	codec := &fakeCodec{}
	transport := NewTransport(codec)
	state := protocol.NewDecodeState(false)
	dispatcher := &fakeDispatcher{}

	transport.ResetSeq()
	require.NoError(t, transport.WritePayload([]byte{protocol.ComStmtPrepareByte, 's'}))
	codec.push(preparedOKPayload(1, 0, 1))
	codec.push(columnDefPayload("id", collation.TypeLong))
	codec.push(eofPayload(0)) // closes the PREPARE response's column substream

	transport.ResetSeq()
	require.NoError(t, transport.WritePayload([]byte{protocol.ComStmtExecuteByte}))
	codec.push(columnCountPayload(1))
	codec.push(columnDefPayload("id", collation.TypeLong))
	codec.push(eofPayload(0)) // closes the result set's metadata stream
	codec.push(eofPayload(protocol.StatusAutocommit))

	err := Run(codec, transport, state, protocol.ClientProtocol41, dispatcher)
	require.Error(t, err)

	msgs := dispatcher.messages()
	require.Len(t, msgs, 5)
	prepOK, ok := msgs[0].(*protocol.PreparedOK)
	require.True(t, ok)
	assert.EqualValues(t, 1, prepOK.StatementID)
	assert.IsType(t, &protocol.MetadataBundle{}, msgs[1])
	assert.IsType(t, &protocol.ColumnCount{}, msgs[2])
	assert.IsType(t, &protocol.MetadataBundle{}, msgs[3])
	assert.IsType(t, &protocol.EOF{}, msgs[4])
	assert.Equal(t, protocol.PhaseCommand, state.Phase)
}

func TestRunFetchReusesPreviousColumns(t *testing.T) {
	codec := &fakeCodec{}
	transport := NewTransport(codec)
	state := protocol.NewDecodeState(false)
	dispatcher := &fakeDispatcher{}

	transport.ResetSeq()
	require.NoError(t, transport.WritePayload([]byte{protocol.ComStmtExecuteByte}))
	codec.push(columnCountPayload(1))
	codec.push(columnDefPayload("id", collation.TypeLong))
	codec.push(eofPayload(0)) // closes the result set's metadata stream
	codec.push(eofPayload(protocol.StatusCursorExists))

	transport.ResetSeq()
	require.NoError(t, transport.WritePayload([]byte{protocol.ComStmtFetchByte}))
	rowBuf := make([]byte, 2) // 0x00 row header, then a one-byte NULL bitmap
	rowBuf = varint.WriteU32(rowBuf, 42)
	codec.push(rowBuf)
	codec.push(eofPayload(protocol.StatusLastRowSent))

	err := Run(codec, transport, state, protocol.ClientProtocol41, dispatcher)
	require.Error(t, err)

	msgs := dispatcher.messages()
	require.Len(t, msgs, 5)
	assert.IsType(t, &protocol.ColumnCount{}, msgs[0])
	assert.IsType(t, &protocol.MetadataBundle{}, msgs[1])
	assert.IsType(t, &protocol.EOF{}, msgs[2])
	row, ok := msgs[3].(*protocol.Row)
	require.True(t, ok)
	assert.False(t, row.Null[0])
	assert.IsType(t, &protocol.EOF{}, msgs[4])
}

func TestTransportDoesNotArmPendingKindWithoutResetSeq(t *testing.T) {
	codec := &fakeCodec{}
	transport := NewTransport(codec)

	// A LOCAL INFILE chunk write with no preceding ResetSeq must not be
	// mistaken for a fresh top-level command.
	require.NoError(t, transport.WritePayload([]byte("some,csv,data\n")))
	_, ok := transport.TakePendingKind()
	assert.False(t, ok)
}

func TestRunServerErrorDuringPrepare(t *testing.T) {
	codec := &fakeCodec{}
	transport := NewTransport(codec)
	state := protocol.NewDecodeState(true)
	dispatcher := &fakeDispatcher{}

	transport.ResetSeq()
	require.NoError(t, transport.WritePayload([]byte{protocol.ComStmtPrepareByte, 'x'}))

	var errBuf []byte
	errBuf = varint.WriteU16(errBuf, 1064)
	errBuf = append(errBuf, '#')
	errBuf = append(errBuf, []byte("42000")...)
	errBuf = append(errBuf, []byte("syntax error")...)
	codec.push(append([]byte{0xff}, errBuf...))

	err := Run(codec, transport, state, protocol.ClientProtocol41, dispatcher)
	require.Error(t, err)

	msgs := dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.IsType(t, &protocol.Error{}, msgs[0])
}
