package collation

// Collation describes a MySQL/MariaDB collation: a small integer id,
// its name, and the charset it belongs to. The handshake negotiates a
// collation id; the codec registry uses the charset to decide how to
// interpret non-binary byte strings.
type Collation struct {
	ID      uint8
	Name    string
	Charset string
}

// By ID. Only the collations practically seen negotiated on 5.7/8.0 and
// MariaDB 10.x servers are enumerated; an id outside this table is
// still accepted (as Charset "binary") rather than rejected, since new
// server versions add collations the driver doesn't need to interpret.
var byID = map[uint8]Collation{
	8:   {8, "latin1_swedish_ci", "latin1"},
	33:  {33, "utf8_general_ci", "utf8"},
	45:  {45, "utf8mb4_general_ci", "utf8mb4"},
	46:  {46, "utf8mb4_bin", "utf8mb4"},
	63:  {63, "binary", "binary"},
	224: {224, "utf8mb4_unicode_ci", "utf8mb4"},
	255: {255, "utf8mb4_0900_ai_ci", "utf8mb4"},
}

// DefaultID is utf8mb4_general_ci, the collation this driver requests
// by default when the caller does not override it (spec §4.4).
const DefaultID uint8 = 45

// ByID looks up a collation, falling back to "binary" for unknown ids
// (new server collations the driver doesn't special-case).
func ByID(id uint8) Collation {
	if c, ok := byID[id]; ok {
		return c
	}
	return Collation{ID: id, Name: "unknown", Charset: "binary"}
}

// IsBinary reports whether values encoded under this collation should
// be treated as opaque bytes rather than text.
func (c Collation) IsBinary() bool {
	return c.Charset == "binary"
}
