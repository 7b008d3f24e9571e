// Package codec implements the value codec registry (spec §4.7): a
// pair of (can_encode/encode, can_decode/decode) per application type,
// with a fast-path table plus a linear fallback and two named special
// fallbacks (enum, Blob/Clob sum type).
package codec

import (
	"reflect"

	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
)

// Codec is one (encode, decode) pair keyed by application type and
// MySQL wire type (spec §3 "Field value codec").
type Codec interface {
	Name() string

	// CanEncode reports whether this codec can turn v into wire bytes.
	CanEncode(v interface{}) bool
	// Encode returns the wire type tag, whether it is declared
	// unsigned, and the binary-protocol payload for v (spec §4.3
	// "per-parameter type codes ..., then per-parameter binary
	// payloads").
	Encode(v interface{}, ctx *connctx.Context) (wireType collation.ColumnType, unsigned bool, payload []byte, err error)

	// CanDecode reports whether this codec can produce a value of
	// target's kind from a field of MySQL type t.
	CanDecode(t collation.ColumnType, target reflect.Type) bool
	// Decode interprets raw (text-protocol bytes if !binary, the
	// binary-protocol payload window otherwise) as target's type.
	Decode(raw []byte, t collation.ColumnType, binary bool, target reflect.Type, ctx *connctx.Context) (interface{}, error)
}

// Registry holds the ordered codec list plus a fast-path index from
// application type to the first matching codec (spec §4.7 "1. Fast-
// path table keyed by exact class... 2. Linear fallback...").
type Registry struct {
	ordered  []Codec
	fastPath map[reflect.Type]Codec

	enumFallback Codec
	blobFallback Codec
}

// NewDefaultRegistry builds the registry with every built-in codec
// this driver ships, matching the fast-path-then-fallback lookup
// spec §4.7 describes.
func NewDefaultRegistry() *Registry {
	r := &Registry{fastPath: map[reflect.Type]Codec{}}

	numeric := &NumericCodec{}
	str := &StringCodec{}
	temporal := &TemporalCodec{}
	decimal := &DecimalCodec{}
	blob := &BlobCodec{}
	boolean := &BoolCodec{}

	r.Register(numeric)
	r.Register(str)
	r.Register(temporal)
	r.Register(decimal)
	r.Register(blob)
	r.Register(boolean)

	r.enumFallback = &EnumCodec{}
	r.blobFallback = blob
	return r
}

// Register appends c to the ordered list and indexes its declared
// exact Go types (if any) into the fast-path table.
func (r *Registry) Register(c Codec) {
	r.ordered = append(r.ordered, c)
	if fp, ok := c.(interface{ FastPathTypes() []reflect.Type }); ok {
		for _, t := range fp.FastPathTypes() {
			r.fastPath[t] = c
		}
	}
}

// EncoderFor resolves the codec for v: fast path by exact type, else
// linear scan (spec §4.7 lookup order).
func (r *Registry) EncoderFor(v interface{}) (Codec, bool) {
	if v == nil {
		return nil, false
	}
	if c, ok := r.fastPath[reflect.TypeOf(v)]; ok && c.CanEncode(v) {
		return c, true
	}
	for _, c := range r.ordered {
		if c.CanEncode(v) {
			return c, true
		}
	}
	return nil, false
}

// DecoderFor resolves the codec for decoding a field of MySQL type t
// into target, falling back to the enum codec for ENUM/SET types and
// the blob codec for anything matching target's Blob/Clob sum type
// convention (spec §4.7 "Special fallbacks").
func (r *Registry) DecoderFor(t collation.ColumnType, target reflect.Type) (Codec, bool) {
	if c, ok := r.fastPath[target]; ok && c.CanDecode(t, target) {
		return c, true
	}
	for _, c := range r.ordered {
		if c.CanDecode(t, target) {
			return c, true
		}
	}
	if t == collation.TypeEnum || t == collation.TypeSet {
		return r.enumFallback, true
	}
	if t.IsBlobLike() {
		return r.blobFallback, true
	}
	return nil, false
}
