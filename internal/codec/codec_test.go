package codec

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
)

var sliceOfString = reflect.TypeOf([]string(nil))

func TestRegistryEncoderFastPathAndFallback(t *testing.T) {
	r := NewDefaultRegistry()

	c, ok := r.EncoderFor(int64(42))
	require.True(t, ok)
	assert.Equal(t, "numeric", c.Name())

	c, ok = r.EncoderFor("hello")
	require.True(t, ok)
	assert.Equal(t, "string", c.Name())

	_, ok = r.EncoderFor(struct{}{})
	assert.False(t, ok)
}

func TestRegistryDecoderEnumFallback(t *testing.T) {
	r := NewDefaultRegistry()
	c, ok := r.DecoderFor(collation.TypeEnum, stringType)
	require.True(t, ok)
	assert.Equal(t, "enum", c.Name())
}

func TestRegistryDecoderBlobFallback(t *testing.T) {
	r := NewDefaultRegistry()
	c, ok := r.DecoderFor(collation.TypeJSON, bytesType)
	require.True(t, ok)
	assert.Equal(t, "blob", c.Name())
}

func TestNumericEncodeDecodeBinaryRoundTrip(t *testing.T) {
	nc := NumericCodec{}
	wt, unsigned, payload, err := nc.Encode(int64(-7), nil)
	require.NoError(t, err)
	assert.Equal(t, collation.TypeLonglong, wt)
	assert.False(t, unsigned)

	v, err := nc.Decode(payload, collation.TypeLonglong, true, reflect.TypeOf(int64(0)), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), v)
}

func TestNumericDecodeTextFloat(t *testing.T) {
	nc := NumericCodec{}
	v, err := nc.Decode([]byte("3.5"), collation.TypeDouble, false, reflect.TypeOf(float64(0)), nil)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)
}

func TestTemporalZeroDatePolicies(t *testing.T) {
	tc := TemporalCodec{}

	ctxNull := &connctx.Context{ZeroDate: connctx.ZeroDateUseNull}
	v, err := tc.Decode([]byte("0000-00-00"), collation.TypeDate, false, timeType, ctxNull)
	require.NoError(t, err)
	assert.True(t, v.(time.Time).IsZero())

	ctxRound := &connctx.Context{ZeroDate: connctx.ZeroDateUseRound}
	v, err = tc.Decode([]byte("0000-00-00"), collation.TypeDate, false, timeType, ctxRound)
	require.NoError(t, err)
	rt := v.(time.Time)
	assert.Equal(t, 1, rt.Year())
	assert.Equal(t, time.Month(1), rt.Month())
	assert.Equal(t, 1, rt.Day())

	ctxErr := &connctx.Context{ZeroDate: connctx.ZeroDateException}
	_, err = tc.Decode([]byte("0000-00-00"), collation.TypeDate, false, timeType, ctxErr)
	assert.Error(t, err)
}

func TestTemporalDatetimeRoundTripBinary(t *testing.T) {
	tc := TemporalCodec{}
	want := time.Date(2024, 3, 4, 5, 6, 7, 8000, time.UTC)
	ctx := &connctx.Context{TimeZone: time.UTC}
	_, _, payload, err := tc.Encode(want, ctx)
	require.NoError(t, err)

	got, err := tc.Decode(payload[1:], collation.TypeDatetime, true, timeType, ctx)
	require.NoError(t, err)
	gt := got.(time.Time)
	assert.Equal(t, want.Year(), gt.Year())
	assert.Equal(t, want.Month(), gt.Month())
	assert.Equal(t, want.Second(), gt.Second())
}

func TestTemporalDurationRoundTripBinary(t *testing.T) {
	tc := TemporalCodec{}
	want := -(25*time.Hour + 3*time.Minute + 4*time.Second)
	_, _, payload, err := tc.Encode(want, nil)
	require.NoError(t, err)

	got, err := tc.Decode(payload[1:], collation.TypeTime, true, durationType, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTemporalDurationTextParseOverflowHours(t *testing.T) {
	tc := TemporalCodec{}
	got, err := tc.Decode([]byte("-838:59:59.000000"), collation.TypeTime, false, durationType, nil)
	require.NoError(t, err)
	assert.True(t, got.(time.Duration) < 0)
}

func TestDecimalEncodeDecodeRoundTrip(t *testing.T) {
	dc := DecimalCodec{}
	d := decimal.RequireFromString("123.450")
	_, _, payload, err := dc.Encode(d, nil)
	require.NoError(t, err)

	v, err := dc.Decode(payload, collation.TypeDecimalN, false, decimalType, nil)
	require.NoError(t, err)
	assert.True(t, d.Equal(v.(decimal.Decimal)))
}

func TestBlobCodecBufferTarget(t *testing.T) {
	bc := BlobCodec{}
	v, err := bc.Decode([]byte("hello"), collation.TypeBlob, true, bufferType, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(v.(interface{ Bytes() []byte }).Bytes()))
}

func TestEnumCodecSetSplitsMembers(t *testing.T) {
	ec := EnumCodec{}
	v, err := ec.Decode([]byte("a,b,c"), collation.TypeSet, false, sliceOfString, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, v)
}

func TestBoolCodecTextAndBinary(t *testing.T) {
	bc := BoolCodec{}
	v, err := bc.Decode([]byte("1"), collation.TypeTiny, false, boolType, nil)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = bc.Decode([]byte{0}, collation.TypeTiny, true, boolType, nil)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}
