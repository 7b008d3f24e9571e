package codec

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
	"github.com/zhukovaskychina/rxmysql/internal/varint"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// TemporalCodec covers DATE/DATETIME/TIMESTAMP (as time.Time) and TIME
// (as time.Duration), honoring the connection's zero-date policy (spec
// §4.7) and the binary-protocol length-prefixed wire forms:
//
//	DATE/DATETIME/TIMESTAMP: 0 bytes all-zero, 4 bytes date only,
//	  7 bytes +h/m/s, 11 bytes +microseconds.
//	TIME: 0 bytes zero duration, 8 bytes sign+days+h/m/s,
//	  12 bytes +microseconds.
type TemporalCodec struct{}

func (TemporalCodec) Name() string { return "temporal" }

func (TemporalCodec) FastPathTypes() []reflect.Type {
	return []reflect.Type{timeType, durationType}
}

func (TemporalCodec) CanEncode(v interface{}) bool {
	switch v.(type) {
	case time.Time, time.Duration:
		return true
	}
	return false
}

func (TemporalCodec) Encode(v interface{}, ctx *connctx.Context) (collation.ColumnType, bool, []byte, error) {
	switch t := v.(type) {
	case time.Time:
		loc := time.Local
		if ctx != nil && ctx.TimeZone != nil {
			loc = ctx.TimeZone
		}
		lt := t.In(loc)
		buf := []byte{11}
		buf = varint.WriteU16(buf, uint16(lt.Year()))
		buf = append(buf, byte(lt.Month()), byte(lt.Day()), byte(lt.Hour()), byte(lt.Minute()), byte(lt.Second()))
		buf = varint.WriteU32(buf, uint32(lt.Nanosecond()/1000))
		return collation.TypeDatetime, false, buf, nil
	case time.Duration:
		return collation.TypeTime, false, encodeBinaryDuration(t), nil
	}
	return 0, false, nil, xerrors.NewProtocolError("temporal codec: unsupported type", nil)
}

func (TemporalCodec) CanDecode(t collation.ColumnType, target reflect.Type) bool {
	switch target {
	case timeType:
		return t == collation.TypeDate || t == collation.TypeDatetime || t == collation.TypeTimestamp || t == collation.TypeNewDate
	case durationType:
		return t == collation.TypeTime
	}
	return false
}

func (TemporalCodec) Decode(raw []byte, t collation.ColumnType, binary bool, target reflect.Type, ctx *connctx.Context) (interface{}, error) {
	if target == durationType {
		if binary {
			return decodeBinaryDuration(raw), nil
		}
		return parseTextDuration(string(raw))
	}

	policy := connctx.ZeroDateUseNull
	if ctx != nil {
		policy = ctx.ZeroDate
	}

	var year, month, day, hour, min, sec, micro int
	var err error
	if binary {
		year, month, day, hour, min, sec, micro = decodeBinaryDatetime(raw)
	} else {
		year, month, day, hour, min, sec, micro, err = parseTextDatetime(string(raw))
		if err != nil {
			return nil, err
		}
	}

	if year == 0 && month == 0 && day == 0 {
		switch policy {
		case connctx.ZeroDateUseNull:
			return time.Time{}, nil
		case connctx.ZeroDateUseRound:
			year, month, day = 1, 1, 1
		case connctx.ZeroDateException:
			return nil, xerrors.NewProtocolError("temporal codec: zero date rejected by policy", nil)
		}
	}

	loc := time.Local
	if ctx != nil && ctx.TimeZone != nil {
		loc = ctx.TimeZone
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, micro*1000, loc), nil
}

func encodeBinaryDuration(d time.Duration) []byte {
	if d == 0 {
		return []byte{0}
	}
	neg := d < 0
	if neg {
		d = -d
	}
	days := int32(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hour := int(d / time.Hour)
	d -= time.Duration(hour) * time.Hour
	minute := int(d / time.Minute)
	d -= time.Duration(minute) * time.Minute
	second := int(d / time.Second)
	d -= time.Duration(second) * time.Second
	micro := uint32(d / time.Microsecond)

	buf := []byte{12}
	if neg {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = varint.WriteU32(buf, uint32(days))
	buf = append(buf, byte(hour), byte(minute), byte(second))
	buf = varint.WriteU32(buf, micro)
	return buf
}

func decodeBinaryDuration(raw []byte) time.Duration {
	if len(raw) == 0 {
		return 0
	}
	neg := raw[0] != 0
	cursor, days := varint.ReadU32(raw, 1)
	hour := int(raw[cursor])
	minute := int(raw[cursor+1])
	second := int(raw[cursor+2])
	cursor += 3
	var micro uint32
	if cursor+4 <= len(raw) {
		_, micro = varint.ReadU32(raw, cursor)
	}
	d := time.Duration(days)*24*time.Hour + time.Duration(hour)*time.Hour +
		time.Duration(minute)*time.Minute + time.Duration(second)*time.Second +
		time.Duration(micro)*time.Microsecond
	if neg {
		d = -d
	}
	return d
}

func decodeBinaryDatetime(raw []byte) (year, month, day, hour, min, sec, micro int) {
	if len(raw) == 0 {
		return 0, 0, 0, 0, 0, 0, 0
	}
	_, y := varint.ReadU16(raw, 0)
	year = int(y)
	month = int(raw[2])
	day = int(raw[3])
	if len(raw) >= 7 {
		hour, min, sec = int(raw[4]), int(raw[5]), int(raw[6])
	}
	if len(raw) >= 11 {
		_, m := varint.ReadU32(raw, 7)
		micro = int(m)
	}
	return
}

// parseTextDatetime parses the textual forms the server sends for
// DATE/DATETIME/TIMESTAMP columns: "2021-01-02", "2021-01-02
// 03:04:05", "2021-01-02 03:04:05.000006", and "0000-00-00" for the
// zero date.
func parseTextDatetime(s string) (year, month, day, hour, min, sec, micro int, err error) {
	if s == "" {
		return 0, 0, 0, 0, 0, 0, 0, nil
	}
	datePart := s
	timePart := ""
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		datePart, timePart = s[:idx], s[idx+1:]
	}
	dateFields := strings.Split(datePart, "-")
	if len(dateFields) != 3 {
		return 0, 0, 0, 0, 0, 0, 0, xerrors.NewProtocolError("temporal codec: bad date literal "+s, nil)
	}
	year, err = strconv.Atoi(dateFields[0])
	if err != nil {
		return 0, 0, 0, 0, 0, 0, 0, xerrors.NewProtocolError("temporal codec: bad year in "+s, err)
	}
	month, _ = strconv.Atoi(dateFields[1])
	day, _ = strconv.Atoi(dateFields[2])

	if timePart == "" {
		return year, month, day, 0, 0, 0, 0, nil
	}
	secPart := timePart
	if idx := strings.IndexByte(timePart, '.'); idx >= 0 {
		secPart = timePart[:idx]
		frac := timePart[idx+1:]
		for len(frac) < 6 {
			frac += "0"
		}
		micro, _ = strconv.Atoi(frac[:6])
	}
	timeFields := strings.Split(secPart, ":")
	if len(timeFields) != 3 {
		return 0, 0, 0, 0, 0, 0, 0, xerrors.NewProtocolError("temporal codec: bad time literal "+s, nil)
	}
	hour, _ = strconv.Atoi(timeFields[0])
	min, _ = strconv.Atoi(timeFields[1])
	sec, _ = strconv.Atoi(timeFields[2])
	return year, month, day, hour, min, sec, micro, nil
}

// parseTextDuration parses MySQL's TIME textual form, which may exceed
// 24 hours and carries its own sign, e.g. "-838:59:59.000000".
func parseTextDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	secPart := s
	var micro int
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		secPart = s[:idx]
		frac := s[idx+1:]
		for len(frac) < 6 {
			frac += "0"
		}
		micro, _ = strconv.Atoi(frac[:6])
	}
	fields := strings.Split(secPart, ":")
	if len(fields) != 3 {
		return 0, xerrors.NewProtocolError("temporal codec: bad time literal "+s, nil)
	}
	hour, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, xerrors.NewProtocolError("temporal codec: bad hour in "+s, err)
	}
	minute, _ := strconv.Atoi(fields[1])
	second, _ := strconv.Atoi(fields[2])

	d := time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute +
		time.Duration(second)*time.Second + time.Duration(micro)*time.Microsecond
	if neg {
		d = -d
	}
	return d, nil
}
