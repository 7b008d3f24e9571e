package codec

import (
	"math"
	"reflect"
	"strconv"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
	"github.com/zhukovaskychina/rxmysql/internal/varint"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// NumericCodec covers the integer and floating-point families,
// widening/narrowing freely among Go's built-in numeric kinds the way
// the wire protocol widens/narrows among its fixed-width integer types
// (spec §4.7 "numeric widen/narrow").
type NumericCodec struct{}

func (NumericCodec) Name() string { return "numeric" }

func (NumericCodec) FastPathTypes() []reflect.Type {
	return []reflect.Type{
		reflect.TypeOf(int64(0)), reflect.TypeOf(int32(0)), reflect.TypeOf(int16(0)),
		reflect.TypeOf(int8(0)), reflect.TypeOf(int(0)),
		reflect.TypeOf(uint64(0)), reflect.TypeOf(uint32(0)), reflect.TypeOf(uint16(0)),
		reflect.TypeOf(uint8(0)), reflect.TypeOf(uint(0)),
		reflect.TypeOf(float64(0)), reflect.TypeOf(float32(0)),
	}
}

func (NumericCodec) CanEncode(v interface{}) bool {
	switch v.(type) {
	case int64, int32, int16, int8, int,
		uint64, uint32, uint16, uint8, uint,
		float64, float32:
		return true
	}
	return false
}

func (NumericCodec) Encode(v interface{}, _ *connctx.Context) (collation.ColumnType, bool, []byte, error) {
	switch n := v.(type) {
	case int64:
		return collation.TypeLonglong, false, varint.WriteU64(nil, uint64(n)), nil
	case int32:
		return collation.TypeLong, false, varint.WriteU32(nil, uint32(n)), nil
	case int16:
		return collation.TypeShort, false, varint.WriteU16(nil, uint16(n)), nil
	case int8:
		return collation.TypeTiny, false, []byte{byte(n)}, nil
	case int:
		return collation.TypeLonglong, false, varint.WriteU64(nil, uint64(int64(n))), nil
	case uint64:
		return collation.TypeLonglong, true, varint.WriteU64(nil, n), nil
	case uint32:
		return collation.TypeLong, true, varint.WriteU32(nil, n), nil
	case uint16:
		return collation.TypeShort, true, varint.WriteU16(nil, n), nil
	case uint8:
		return collation.TypeTiny, true, []byte{n}, nil
	case uint:
		return collation.TypeLonglong, true, varint.WriteU64(nil, uint64(n)), nil
	case float64:
		return collation.TypeDouble, false, encodeFloat64(n), nil
	case float32:
		return collation.TypeFloat, false, encodeFloat32(n), nil
	}
	return 0, false, nil, xerrors.NewProtocolError("numeric codec: unsupported type", nil)
}

func (NumericCodec) CanDecode(t collation.ColumnType, target reflect.Type) bool {
	if target == nil {
		return false
	}
	switch target.Kind() {
	case reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8, reflect.Int,
		reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8, reflect.Uint,
		reflect.Float64, reflect.Float32:
		return t.IsNumeric()
	}
	return false
}

func (NumericCodec) Decode(raw []byte, t collation.ColumnType, binary bool, target reflect.Type, _ *connctx.Context) (interface{}, error) {
	if !binary {
		return decodeTextNumeric(string(raw), target)
	}
	return decodeBinaryNumeric(raw, t, target)
}

func decodeTextNumeric(s string, target reflect.Type) (interface{}, error) {
	switch target.Kind() {
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, xerrors.NewProtocolError("numeric codec: bad float literal "+s, err)
		}
		return castFloat(f, target), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, xerrors.NewProtocolError("numeric codec: bad uint literal "+s, err)
		}
		return castUint(u, target), nil
	default:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, xerrors.NewProtocolError("numeric codec: bad int literal "+s, err)
		}
		return castInt(i, target), nil
	}
}

func decodeBinaryNumeric(raw []byte, t collation.ColumnType, target reflect.Type) (interface{}, error) {
	switch t {
	case collation.TypeLonglong:
		_, v := varint.ReadU64(raw, 0)
		if target.Kind() >= reflect.Uint && target.Kind() <= reflect.Uint64 {
			return castUint(v, target), nil
		}
		return castInt(int64(v), target), nil
	case collation.TypeLong, collation.TypeInt24:
		_, v := varint.ReadU32(raw, 0)
		if target.Kind() >= reflect.Uint && target.Kind() <= reflect.Uint64 {
			return castUint(uint64(v), target), nil
		}
		return castInt(int64(int32(v)), target), nil
	case collation.TypeShort, collation.TypeYear:
		_, v := varint.ReadU16(raw, 0)
		if target.Kind() >= reflect.Uint && target.Kind() <= reflect.Uint64 {
			return castUint(uint64(v), target), nil
		}
		return castInt(int64(int16(v)), target), nil
	case collation.TypeTiny:
		v := raw[0]
		if target.Kind() >= reflect.Uint && target.Kind() <= reflect.Uint64 {
			return castUint(uint64(v), target), nil
		}
		return castInt(int64(int8(v)), target), nil
	case collation.TypeDouble:
		return castFloat(decodeFloat64(raw), target), nil
	case collation.TypeFloat:
		return castFloat(float64(decodeFloat32(raw)), target), nil
	case collation.TypeDecimal, collation.TypeDecimalN:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, xerrors.NewProtocolError("numeric codec: bad decimal literal", err)
		}
		return castFloat(f, target), nil
	}
	return nil, xerrors.NewProtocolError("numeric codec: unsupported wire type "+t.String(), nil)
}

func castInt(v int64, target reflect.Type) interface{} {
	rv := reflect.New(target).Elem()
	rv.SetInt(v)
	return rv.Interface()
}

func castUint(v uint64, target reflect.Type) interface{} {
	rv := reflect.New(target).Elem()
	rv.SetUint(v)
	return rv.Interface()
}

func castFloat(v float64, target reflect.Type) interface{} {
	rv := reflect.New(target).Elem()
	rv.SetFloat(v)
	return rv.Interface()
}

func encodeFloat64(f float64) []byte {
	return varint.WriteU64(nil, math.Float64bits(f))
}

func encodeFloat32(f float32) []byte {
	return varint.WriteU32(nil, math.Float32bits(f))
}

func decodeFloat64(raw []byte) float64 {
	_, bits := varint.ReadU64(raw, 0)
	return math.Float64frombits(bits)
}

func decodeFloat32(raw []byte) float32 {
	_, bits := varint.ReadU32(raw, 0)
	return math.Float32frombits(bits)
}
