package codec

import (
	"reflect"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
)

var boolType = reflect.TypeOf(false)

// BoolCodec maps Go bool to/from TINYINT(1), matching MySQL's and this
// driver's tinyInt1isBit convention (SPEC_FULL.md connection option).
type BoolCodec struct{}

func (BoolCodec) Name() string { return "bool" }

func (BoolCodec) FastPathTypes() []reflect.Type { return []reflect.Type{boolType} }

func (BoolCodec) CanEncode(v interface{}) bool {
	_, ok := v.(bool)
	return ok
}

func (BoolCodec) Encode(v interface{}, _ *connctx.Context) (collation.ColumnType, bool, []byte, error) {
	b := v.(bool)
	if b {
		return collation.TypeTiny, false, []byte{1}, nil
	}
	return collation.TypeTiny, false, []byte{0}, nil
}

func (BoolCodec) CanDecode(t collation.ColumnType, target reflect.Type) bool {
	return target == boolType && (t == collation.TypeTiny || t == collation.TypeBit)
}

func (BoolCodec) Decode(raw []byte, _ collation.ColumnType, binary bool, _ reflect.Type, _ *connctx.Context) (interface{}, error) {
	if !binary {
		return len(raw) > 0 && raw[0] != '0', nil
	}
	return len(raw) > 0 && raw[0] != 0, nil
}
