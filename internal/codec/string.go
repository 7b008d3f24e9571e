package codec

import (
	"reflect"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
)

var stringType = reflect.TypeOf("")

// StringCodec covers Go string values, sent as VAR_STRING and decoded
// from any character-data wire type.
type StringCodec struct{}

func (StringCodec) Name() string { return "string" }

func (StringCodec) FastPathTypes() []reflect.Type { return []reflect.Type{stringType} }

func (StringCodec) CanEncode(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

func (StringCodec) Encode(v interface{}, _ *connctx.Context) (collation.ColumnType, bool, []byte, error) {
	s := v.(string)
	return collation.TypeVarString, false, []byte(s), nil
}

func (StringCodec) CanDecode(t collation.ColumnType, target reflect.Type) bool {
	if target != stringType {
		return false
	}
	return t.IsBlobLike() || t.IsNumeric() || t.IsTemporal()
}

func (StringCodec) Decode(raw []byte, _ collation.ColumnType, _ bool, _ reflect.Type, _ *connctx.Context) (interface{}, error) {
	return string(raw), nil
}
