package codec

import (
	"reflect"
	"strings"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
)

// EnumCodec is the named ENUM/SET fallback (spec §4.7 "Special
// fallbacks"): both wire types are sent as their member name(s) in
// text, so a string target always works; SET additionally decodes to
// []string by splitting on the member separator.
type EnumCodec struct{}

func (EnumCodec) Name() string { return "enum" }

func (EnumCodec) CanEncode(v interface{}) bool {
	switch v.(type) {
	case string, []string:
		return true
	}
	return false
}

func (EnumCodec) Encode(v interface{}, _ *connctx.Context) (collation.ColumnType, bool, []byte, error) {
	switch s := v.(type) {
	case string:
		return collation.TypeEnum, false, []byte(s), nil
	case []string:
		return collation.TypeSet, false, []byte(strings.Join(s, ",")), nil
	}
	return collation.TypeEnum, false, nil, nil
}

func (EnumCodec) CanDecode(t collation.ColumnType, target reflect.Type) bool {
	if t != collation.TypeEnum && t != collation.TypeSet {
		return false
	}
	return target == stringType || target.Kind() == reflect.Slice && target.Elem() == stringType
}

func (EnumCodec) Decode(raw []byte, t collation.ColumnType, _ bool, target reflect.Type, _ *connctx.Context) (interface{}, error) {
	s := string(raw)
	if target.Kind() == reflect.Slice {
		if s == "" {
			return []string{}, nil
		}
		return strings.Split(s, ","), nil
	}
	return s, nil
}
