package stmt

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/internal/query"
	"github.com/zhukovaskychina/rxmysql/internal/varint"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// bindParam converts one application value into a COM_STMT_EXECUTE
// BoundParam via the codec registry, length-prefixing the payload when
// the wire type's width isn't implied by its type code (spec §4.3
// "per-parameter binary payloads, length-prefixed as required by type").
func (r *Runner) bindParam(v interface{}) (protocol.BoundParam, error) {
	if v == nil {
		return protocol.BoundParam{Type: collation.TypeNull, Null: true}, nil
	}
	c, ok := r.Codecs.EncoderFor(v)
	if !ok {
		return protocol.BoundParam{}, xerrors.NewProtocolError(fmt.Sprintf("stmt: no codec can encode %T", v), nil)
	}
	wireType, unsigned, payload, err := c.Encode(v, r.Ctx)
	if err != nil {
		return protocol.BoundParam{}, err
	}
	if needsLenEncPrefix(wireType) {
		payload = varint.WriteLenEncString(nil, payload)
	}
	return protocol.BoundParam{Type: wireType, Unsigned: unsigned, Value: payload}, nil
}

// needsLenEncPrefix reports whether a bound parameter's wire type
// requires its payload to carry its own length-encoded-integer prefix,
// true for every type whose width isn't fixed by the type code alone.
func needsLenEncPrefix(t collation.ColumnType) bool {
	switch t {
	case collation.TypeTiny, collation.TypeShort, collation.TypeYear,
		collation.TypeLong, collation.TypeInt24,
		collation.TypeLonglong, collation.TypeFloat, collation.TypeDouble,
		collation.TypeDate, collation.TypeDatetime, collation.TypeTimestamp, collation.TypeTime:
		return false
	default:
		return true
	}
}

// escapeValue renders v as the protocol-level escaped textual form the
// client-prepared-statement flow substitutes into SQL text (spec §4.6,
// §6 escaping rules).
func (r *Runner) escapeValue(v interface{}) (string, error) {
	noBackslash := r.Ctx != nil && r.Ctx.NoBackslashEscapes()
	switch t := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return query.QuoteString(t, noBackslash), nil
	case []byte:
		return "X'" + hex.EncodeToString(t) + "'", nil
	case bool:
		if t {
			return "1", nil
		}
		return "0", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t), nil
	case float32, float64:
		return fmt.Sprintf("%v", t), nil
	case decimal.Decimal:
		return t.String(), nil
	case time.Time:
		loc := time.Local
		if r.Ctx != nil && r.Ctx.TimeZone != nil {
			loc = r.Ctx.TimeZone
		}
		return query.QuoteString(t.In(loc).Format("2006-01-02 15:04:05.000000"), noBackslash), nil
	case time.Duration:
		return query.QuoteString(formatDurationLiteral(t), noBackslash), nil
	default:
		return "", xerrors.NewProtocolError(fmt.Sprintf("stmt: no textual escaping for %T", v), nil)
	}
}

func formatDurationLiteral(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	hours := int64(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int64(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	seconds := int64(d / time.Second)
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, hours, minutes, seconds)
}
