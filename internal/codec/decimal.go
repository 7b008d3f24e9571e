package codec

import (
	"reflect"

	"github.com/shopspring/decimal"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// DecimalCodec covers DECIMAL/NEWDECIMAL columns as
// github.com/shopspring/decimal.Decimal, since both protocols send
// DECIMAL in its ASCII textual form regardless of binary/text mode.
type DecimalCodec struct{}

func (DecimalCodec) Name() string { return "decimal" }

func (DecimalCodec) FastPathTypes() []reflect.Type { return []reflect.Type{decimalType} }

func (DecimalCodec) CanEncode(v interface{}) bool {
	_, ok := v.(decimal.Decimal)
	return ok
}

func (DecimalCodec) Encode(v interface{}, _ *connctx.Context) (collation.ColumnType, bool, []byte, error) {
	d := v.(decimal.Decimal)
	return collation.TypeDecimalN, false, []byte(d.String()), nil
}

func (DecimalCodec) CanDecode(t collation.ColumnType, target reflect.Type) bool {
	return target == decimalType && (t == collation.TypeDecimal || t == collation.TypeDecimalN)
}

func (DecimalCodec) Decode(raw []byte, _ collation.ColumnType, _ bool, _ reflect.Type, _ *connctx.Context) (interface{}, error) {
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return nil, xerrors.NewProtocolError("decimal codec: bad literal "+string(raw), err)
	}
	return d, nil
}
