package codec

import (
	"reflect"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
	"github.com/zhukovaskychina/rxmysql/internal/frame"
)

var (
	bytesType  = reflect.TypeOf([]byte(nil))
	bufferType = reflect.TypeOf((*frame.Buffer)(nil))
)

// BlobCodec covers []byte parameters/results and is also the named
// "Blob/Clob" special fallback for any wire type whose payload is an
// opaque byte sequence (BLOB/TEXT family, JSON, BIT, GEOMETRY) when no
// more specific codec matched. A target of *frame.Buffer receives the
// row's backing array directly (no copy), wrapped in a new Buffer whose
// reference count starts at 1, so the caller owns an independent
// reference (spec §3 "Shared resources").
type BlobCodec struct{}

func (BlobCodec) Name() string { return "blob" }

func (BlobCodec) FastPathTypes() []reflect.Type { return []reflect.Type{bytesType, bufferType} }

func (BlobCodec) CanEncode(v interface{}) bool {
	switch v.(type) {
	case []byte, *frame.Buffer:
		return true
	}
	return false
}

func (BlobCodec) Encode(v interface{}, _ *connctx.Context) (collation.ColumnType, bool, []byte, error) {
	switch b := v.(type) {
	case []byte:
		return collation.TypeBlob, false, b, nil
	case *frame.Buffer:
		return collation.TypeBlob, false, b.Bytes(), nil
	}
	return collation.TypeBlob, false, nil, nil
}

func (BlobCodec) CanDecode(_ collation.ColumnType, target reflect.Type) bool {
	return target == bytesType || target == bufferType
}

func (BlobCodec) Decode(raw []byte, _ collation.ColumnType, _ bool, target reflect.Type, _ *connctx.Context) (interface{}, error) {
	if target == bufferType {
		return frame.NewBuffer(raw), nil
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return cp, nil
}
