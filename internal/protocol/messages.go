package protocol

import "github.com/zhukovaskychina/rxmysql/internal/collation"

// ServerMessage is the tagged result of decoding one assembled envelope
// payload in a given DecodeContext (spec §4.2). Exactly one concrete
// type below implements it per decoded payload.
type ServerMessage interface {
	isServerMessage()
}

// ClientMessage is the tagged input to the encoder (spec §4.3). Each
// variant knows how to lay itself out as one or more payload chunks.
type ClientMessage interface {
	isClientMessage()
}

// OK carries the fields common to both the legacy OK packet and the
// "deprecate EOF" OK-as-terminator form (spec §4.2 dispatch table).
type OK struct {
	AffectedRows  uint64
	LastInsertID  uint64
	Status        ServerStatus
	WarningCount  uint16
	Info          string
	SessionTrack  []SessionStateChange
}

func (*OK) isServerMessage() {}

// EOF is the legacy (pre-deprecate-EOF) terminator, 5 bytes:
// header + warning count + status.
type EOF struct {
	WarningCount uint16
	Status       ServerStatus
}

func (*EOF) isServerMessage() {}

// Error is a decoded ERR packet (spec §4.2, §4.9).
type Error struct {
	Code    uint16
	State   string // 5 ASCII chars, empty if protocol-41 not negotiated
	Message string
}

func (*Error) isServerMessage() {}

// AuthMoreData is a plugin-specific continuation payload (spec §4.4).
type AuthMoreData struct {
	Data []byte
}

func (*AuthMoreData) isServerMessage() {}

// ChangeAuthPlugin instructs the client to switch auth plugin and retry
// with the given salt (spec §4.4).
type ChangeAuthPlugin struct {
	PluginName string
	Salt       []byte
}

func (*ChangeAuthPlugin) isServerMessage() {}

// HandshakeV10 is the modern server greeting (spec §4.2).
type HandshakeV10 struct {
	ServerVersion        string
	ConnectionID         uint32
	AuthPluginData       []byte
	Capability           Capability
	Collation            uint8
	Status               ServerStatus
	AuthPluginName       string
}

func (*HandshakeV10) isServerMessage() {}

// HandshakeV9Rejected marks an observed legacy (pre-4.1) greeting; the
// handshake FSM fails the connection on sight (spec's Open Question
// decision, see DESIGN.md).
type HandshakeV9Rejected struct{}

func (*HandshakeV9Rejected) isServerMessage() {}

// ColumnCount announces how many ColumnDefinition messages follow
// (spec §4.2 "column count via var-int").
type ColumnCount struct {
	Count uint64
}

func (*ColumnCount) isServerMessage() {}

// ColumnDefinition is one column's metadata (COM_QUERY / COM_STMT_PREPARE
// response streams, spec §4.2/§4.6).
type ColumnDefinition struct {
	Catalog      string
	Schema       string
	Table        string
	OrgTable     string
	Name         string
	OrgName      string
	Collation    uint16
	ColumnLength uint32
	Type         collation.ColumnType
	Flags        uint16
	Decimals     uint8
}

func (*ColumnDefinition) isServerMessage() {}

// MetadataBundle is the synthetic message the decoder emits once all
// column-definitions for a result have been received (spec §4.2
// "Metadata streaming").
type MetadataBundle struct {
	Columns []ColumnDefinition
}

func (*MetadataBundle) isServerMessage() {}

// Row carries one text- or binary-protocol row: one raw value per
// column in Values, with Null[i] set (and Values[i] nil) for SQL NULL.
// The values are plain byte slices; Row holds no frame.Buffer and has
// no release step of its own.
type Row struct {
	Values [][]byte
	Null   []bool
}

func (*Row) isServerMessage() {}

// PreparedOK is COM_STMT_PREPARE's successful response header
// (spec §4.6): statement id plus counts; the caller still needs to
// drain ParamCount + ColumnCount metadata messages that follow.
type PreparedOK struct {
	StatementID  uint32
	ColumnCount  uint16
	ParamCount   uint16
	WarningCount uint16
}

func (*PreparedOK) isServerMessage() {}

// LocalInfileRequest is the server asking the client to stream a local
// file's contents (spec §4.2, §4.6 "LOCAL INFILE safety").
type LocalInfileRequest struct {
	Filename string
}

func (*LocalInfileRequest) isServerMessage() {}

// TLSHandshakeOK is a synthetic marker the handshake FSM emits to
// itself once the TLS upgrade completes; it never appears on the wire.
type TLSHandshakeOK struct{}

func (*TLSHandshakeOK) isServerMessage() {}

// SessionStateChange is one sub-block of OK/EOF session-track info
// (spec §4.2 "optional session-state-change info", expanded per
// SPEC_FULL.md §10).
type SessionStateChange struct {
	Kind  SessionTrackKind
	Key   string // SystemVariable name, empty otherwise
	Value string
}

type SessionTrackKind int

const (
	SessionTrackSystemVariable SessionTrackKind = iota
	SessionTrackSchema
	SessionTrackStateChange
	SessionTrackGTIDs
	SessionTrackTransactionCharacteristics
	SessionTrackTransactionState
)
