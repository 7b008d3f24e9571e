package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/varint"
)

func TestDecodeOKProtocol41(t *testing.T) {
	var buf []byte
	buf = varint.WriteLenEncInt(buf, 5)     // affected rows
	buf = varint.WriteLenEncInt(buf, 10)    // last insert id
	buf = varint.WriteU16(buf, uint16(StatusAutocommit))
	buf = varint.WriteU16(buf, 0) // warnings

	ok, err := DecodeOK(buf, 0, ClientProtocol41)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), ok.AffectedRows)
	assert.Equal(t, uint64(10), ok.LastInsertID)
	assert.True(t, ok.Status.Has(StatusAutocommit))
}

func TestDecodeOKStatusOverridesIdempotently(t *testing.T) {
	mk := func(status ServerStatus) []byte {
		var buf []byte
		buf = varint.WriteLenEncInt(buf, 0)
		buf = varint.WriteLenEncInt(buf, 0)
		buf = varint.WriteU16(buf, uint16(status))
		buf = varint.WriteU16(buf, 0)
		return buf
	}

	ok1, err := DecodeOK(mk(StatusInTrans), 0, ClientProtocol41)
	require.NoError(t, err)
	assert.Equal(t, StatusInTrans, ok1.Status)

	ok2, err := DecodeOK(mk(StatusAutocommit), 0, ClientProtocol41)
	require.NoError(t, err)
	assert.Equal(t, StatusAutocommit, ok2.Status)
	// Re-decoding the same bytes again is idempotent.
	ok3, err := DecodeOK(mk(StatusAutocommit), 0, ClientProtocol41)
	require.NoError(t, err)
	assert.Equal(t, ok2.Status, ok3.Status)
}

func TestDecodeError(t *testing.T) {
	var buf []byte
	buf = varint.WriteU16(buf, 1045)
	buf = append(buf, '#')
	buf = append(buf, []byte("28000")...)
	buf = append(buf, []byte("Access denied")...)

	e, err := DecodeError(buf, 0, ClientProtocol41)
	require.NoError(t, err)
	assert.Equal(t, uint16(1045), e.Code)
	assert.Equal(t, "28000", e.State)
	assert.Equal(t, "Access denied", e.Message)
}

func TestDecodeColumnDefinitionRoundTrip(t *testing.T) {
	var buf []byte
	buf = varint.WriteLenEncString(buf, []byte("def"))
	buf = varint.WriteLenEncString(buf, []byte("schema"))
	buf = varint.WriteLenEncString(buf, []byte("t"))
	buf = varint.WriteLenEncString(buf, []byte("t"))
	buf = varint.WriteLenEncString(buf, []byte("col"))
	buf = varint.WriteLenEncString(buf, []byte("col"))
	buf = varint.WriteLenEncInt(buf, 0x0c)
	buf = varint.WriteU16(buf, 45)
	buf = varint.WriteU32(buf, 255)
	buf = varint.WriteByte(buf, byte(collation.TypeVarString))
	buf = varint.WriteU16(buf, 0)
	buf = varint.WriteByte(buf, 0)

	cd, err := DecodeColumnDefinition(buf)
	require.NoError(t, err)
	assert.Equal(t, "col", cd.Name)
	assert.Equal(t, collation.TypeVarString, cd.Type)
	assert.Equal(t, uint16(45), cd.Collation)
}

func TestDecodeTextRowWithNull(t *testing.T) {
	var buf []byte
	buf = varint.WriteLenEncString(buf, []byte("1"))
	buf = append(buf, varint.NullMarker)

	row, err := DecodeTextRow(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), row.Values[0])
	assert.False(t, row.Null[0])
	assert.True(t, row.Null[1])
}

func TestDecodeBinaryRowFixedWidth(t *testing.T) {
	columns := []ColumnDefinition{{Type: collation.TypeLong}}
	buf := make([]byte, 1) // null bitmap, 1 column -> (1+7+2)/8 = 1 byte
	buf = varint.WriteU32(buf, 42)

	row, err := DecodeBinaryRow(buf, columns)
	require.NoError(t, err)
	assert.False(t, row.Null[0])
	assert.Equal(t, 4, len(row.Values[0]))
}

func TestComStmtExecuteNullBitmapWidth(t *testing.T) {
	params := make([]BoundParam, 10)
	for i := range params {
		params[i] = BoundParam{Type: collation.TypeLong, Value: []byte{0, 0, 0, 0}}
	}
	params[3].Null = true
	params[3].Value = nil

	exec := &ComStmtExecute{StatementID: 1, Params: params}
	buf := exec.Encode()

	// header(1) + stmt id(4) + cursor(1) + iter count(4) = 10 bytes before bitmap
	bitmap := buf[10 : 10+2] // ceil(10/8) = 2 bytes
	assert.Equal(t, byte(1<<3), bitmap[0])
	assert.Equal(t, byte(0), bitmap[1])
}

func TestHandshakeResponse41EncodeShape(t *testing.T) {
	resp := &HandshakeResponse41{
		Capability:     ClientProtocol41.With(ClientSecureConnection).With(ClientConnectWithDB),
		Collation:      45,
		Username:       "root",
		AuthResponse:   []byte{1, 2, 3, 4, 5},
		Database:       "test",
		AuthPluginName: "mysql_native_password",
	}
	buf := resp.Encode()
	assert.Contains(t, string(buf), "root")
	assert.Contains(t, string(buf), "test")
}

func TestCapabilityBitMathSelfConsistent(t *testing.T) {
	// sanity: Capability bit math used across decode/encode is self-consistent.
	c := ClientProtocol41.With(ClientSSL)
	assert.True(t, c.Has(ClientProtocol41))
	assert.True(t, c.Has(ClientSSL))
	assert.False(t, c.Has(ClientCompress))
}

func TestRouteLoginPhaseAlwaysDecodesHandshake(t *testing.T) {
	state := NewDecodeState(false)
	var buf []byte
	buf = append(buf, 10)
	buf = append(buf, []byte("8.0.34\x00")...)
	buf = varint.WriteU32(buf, 7)
	buf = append(buf, []byte("12345678")...)
	buf = varint.WriteByte(buf, 0)
	buf = varint.WriteU16(buf, uint16(ClientProtocol41))
	buf = varint.WriteByte(buf, 45)
	buf = varint.WriteU16(buf, uint16(StatusAutocommit))
	buf = varint.WriteU16(buf, 0)
	buf = varint.WriteByte(buf, 0)
	buf = append(buf, make([]byte, 10)...)
	buf = append(buf, []byte("90123456\x00")...)
	buf = append(buf, []byte("mysql_native_password\x00")...)

	msg, err := Route(buf, state, ClientProtocol41)
	require.NoError(t, err)
	_, ok := msg.(*HandshakeV10)
	assert.True(t, ok)
}

func TestRouteCommandPhaseDispatchesOKErrAndColumnCount(t *testing.T) {
	state := &DecodeState{Phase: PhaseCommand}

	var okBuf []byte
	okBuf = varint.WriteLenEncInt(okBuf, 0)
	okBuf = varint.WriteLenEncInt(okBuf, 0)
	okBuf = varint.WriteU16(okBuf, uint16(StatusAutocommit))
	okBuf = varint.WriteU16(okBuf, 0)
	okPayload := append([]byte{0x00}, okBuf...)
	msg, err := Route(okPayload, state, ClientProtocol41)
	require.NoError(t, err)
	assert.IsType(t, &OK{}, msg)

	var errBuf []byte
	errBuf = varint.WriteU16(errBuf, 1045)
	errBuf = append(errBuf, '#')
	errBuf = append(errBuf, []byte("28000")...)
	errBuf = append(errBuf, []byte("Access denied")...)
	errPayload := append([]byte{0xff}, errBuf...)
	msg, err = Route(errPayload, state, ClientProtocol41)
	require.NoError(t, err)
	assert.IsType(t, &Error{}, msg)

	var ccBuf []byte
	ccBuf = varint.WriteLenEncInt(ccBuf, 2)
	msg, err = Route(ccBuf, state, ClientProtocol41)
	require.NoError(t, err)
	cc, ok := msg.(*ColumnCount)
	require.True(t, ok)
	assert.Equal(t, uint64(2), cc.Count)
}

func columnDefPayload(name string) []byte {
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
	buf = varint.WriteByte(buf, byte(collation.TypeVarString))
	buf = varint.WriteU16(buf, 0)
	buf = varint.WriteByte(buf, 0)
	return buf
}

func TestRouteResultMetadataAccumulatesThenBundlesWithDeprecateEOF(t *testing.T) {
	state := NewDecodeState(true)
	state.BeginResult(2, false)

	msg, err := Route(columnDefPayload("a"), state, ClientProtocol41)
	require.NoError(t, err)
	assert.Nil(t, msg)

	msg, err = Route(columnDefPayload("b"), state, ClientProtocol41)
	require.NoError(t, err)
	bundle, ok := msg.(*MetadataBundle)
	require.True(t, ok)
	assert.Len(t, bundle.Columns, 2)
	assert.Equal(t, PhaseResultRows, state.Phase)
}

func TestRouteResultMetadataLegacyEOFTerminates(t *testing.T) {
	state := NewDecodeState(false)
	state.BeginResult(1, false)

	msg, err := Route(columnDefPayload("a"), state, ClientProtocol41)
	require.NoError(t, err)
	assert.Nil(t, msg)

	eofPayload := []byte{0xfe, 0x00, 0x00, 0x02, 0x00}
	msg, err = Route(eofPayload, state, ClientProtocol41)
	require.NoError(t, err)
	bundle, ok := msg.(*MetadataBundle)
	require.True(t, ok)
	assert.Len(t, bundle.Columns, 1)
	assert.Equal(t, PhaseResultRows, state.Phase)
}

func TestRouteRowsTextAndTerminalEOF(t *testing.T) {
	state := NewDecodeState(false)
	state.Phase = PhaseResultRows
	state.pendingColumns = []ColumnDefinition{{Type: collation.TypeVarString}}

	var rowBuf []byte
	rowBuf = varint.WriteLenEncString(rowBuf, []byte("hello"))
	msg, err := Route(rowBuf, state, ClientProtocol41)
	require.NoError(t, err)
	row, ok := msg.(*Row)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), row.Values[0])

	eofPayload := []byte{0xfe, 0x00, 0x00, 0x02, 0x00}
	msg, err = Route(eofPayload, state, ClientProtocol41)
	require.NoError(t, err)
	assert.IsType(t, &EOF{}, msg)
}

func TestRouteRowsDeprecateEOFUsesOKAsTerminator(t *testing.T) {
	state := NewDecodeState(true)
	state.Phase = PhaseResultRows
	state.pendingColumns = []ColumnDefinition{{Type: collation.TypeVarString}}

	var okBuf []byte
	okBuf = varint.WriteLenEncInt(okBuf, 0)
	okBuf = varint.WriteLenEncInt(okBuf, 0)
	okBuf = varint.WriteU16(okBuf, uint16(StatusAutocommit))
	okBuf = varint.WriteU16(okBuf, 0)
	okPayload := append([]byte{0xfe}, okBuf...)

	msg, err := Route(okPayload, state, ClientProtocol41)
	require.NoError(t, err)
	assert.IsType(t, &OK{}, msg)
}

func TestRoutePrepareResponseDropsParamMetadataSurfacesColumnBundle(t *testing.T) {
	state := NewDecodeState(true)
	state.BeginPrepareResponse(1, 1)

	msg, err := Route(columnDefPayload("p1"), state, ClientProtocol41)
	require.NoError(t, err)
	assert.Nil(t, msg)

	msg, err = Route(columnDefPayload("c1"), state, ClientProtocol41)
	require.NoError(t, err)
	bundle, ok := msg.(*MetadataBundle)
	require.True(t, ok)
	assert.Len(t, bundle.Columns, 1)
	assert.Equal(t, "c1", bundle.Columns[0].Name)
}

func TestRoutePrepareResponseLegacyEOFSeparatesParamsFromColumns(t *testing.T) {
	state := NewDecodeState(false)
	state.BeginPrepareResponse(1, 1)

	eofPayload := []byte{0xfe, 0x00, 0x00, 0x02, 0x00}

	msg, err := Route(columnDefPayload("p1"), state, ClientProtocol41)
	require.NoError(t, err)
	assert.Nil(t, msg)

	// separates the parameter substream from the column substream
	msg, err = Route(eofPayload, state, ClientProtocol41)
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, PhasePrepareResponse, state.Phase)

	msg, err = Route(columnDefPayload("c1"), state, ClientProtocol41)
	require.NoError(t, err)
	assert.Nil(t, msg)

	msg, err = Route(eofPayload, state, ClientProtocol41)
	require.NoError(t, err)
	bundle, ok := msg.(*MetadataBundle)
	require.True(t, ok)
	assert.Len(t, bundle.Columns, 1)
	assert.Equal(t, PhaseCommand, state.Phase)
}

func TestRouteEmptyPayloadErrors(t *testing.T) {
	state := &DecodeState{Phase: PhaseCommand}
	_, err := Route(nil, state, ClientProtocol41)
	assert.Error(t, err)
}
