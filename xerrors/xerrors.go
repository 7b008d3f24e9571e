// Package xerrors classifies MySQL/MariaDB server errors and transport
// failures into the small taxonomy a caller needs to decide whether to
// retry, whether the connection survives, and whether the failure was
// a permission problem, a bad statement, or a transient condition.
package xerrors

import (
	"fmt"

	"github.com/juju/errors"
)

// Kind classifies a failure. See spec §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindBadGrammar
	KindDataIntegrityViolation
	KindRollback
	KindTimeout
	KindTransientResource
	KindNonTransientResource
	KindProtocolError
	KindConnectionClosed
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindBadGrammar:
		return "bad_grammar"
	case KindDataIntegrityViolation:
		return "data_integrity_violation"
	case KindRollback:
		return "rollback"
	case KindTimeout:
		return "timeout"
	case KindTransientResource:
		return "transient_resource"
	case KindNonTransientResource:
		return "non_transient_resource"
	case KindProtocolError:
		return "protocol_error"
	case KindConnectionClosed:
		return "connection_closed"
	default:
		return "unknown"
	}
}

// Fatal reports whether an error of this kind always closes the connection.
func (k Kind) Fatal() bool {
	return k == KindProtocolError || k == KindConnectionClosed
}

var permissionCodes = codeSet(1044, 1045, 1095, 1142, 1143, 1227, 1370, 1698, 1873)
var grammarCodes = codeSet(1050, 1051, 1054, 1064, 1146, 1247, 1304, 1305, 1630)
var integrityCodes = codeSet(1022, 1048, 1062, 1169, 1215, 1216, 1217, 1364, 1451, 1452, 1557, 1859)
var rollbackCodes = codeSet(1613)
var timeoutCodes = codeSet(1205, 1907, 3024, 1969, 1968)
var transientCodes = codeSet(1159, 1161, 1213, 1317)

func codeSet(codes ...uint16) map[uint16]struct{} {
	m := make(map[uint16]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	return m
}

// ServerError is the decoded form of a MySQL ERR_Packet, annotated with
// the statement's SQL text when known (attached at the statement
// boundary, never inside the protocol decoder — see spec §4.9).
type ServerError struct {
	Code    uint16
	State   string // 5 ASCII chars under protocol-41, else empty
	Message string
	SQL     string
}

func (e *ServerError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("mysql error %d (%s): %s", e.Code, e.State, e.Message)
	}
	return fmt.Sprintf("mysql error %d: %s", e.Code, e.Message)
}

// Kind classifies the server error per spec §7: MySQL error code first,
// then SQL-state class prefix.
func (e *ServerError) Kind() Kind {
	if _, ok := permissionCodes[e.Code]; ok {
		return KindPermissionDenied
	}
	if _, ok := grammarCodes[e.Code]; ok {
		return KindBadGrammar
	}
	if _, ok := integrityCodes[e.Code]; ok {
		return KindDataIntegrityViolation
	}
	if _, ok := rollbackCodes[e.Code]; ok {
		return KindRollback
	}
	if _, ok := timeoutCodes[e.Code]; ok {
		return KindTimeout
	}
	if _, ok := transientCodes[e.Code]; ok {
		return KindTransientResource
	}
	switch statePrefix(e.State) {
	case "42":
		return KindBadGrammar
	case "23":
		return KindDataIntegrityViolation
	case "40":
		return KindRollback
	}
	return KindNonTransientResource
}

func statePrefix(state string) string {
	if len(state) < 2 {
		return ""
	}
	return state[:2]
}

// WithSQL returns a copy of e with SQL attached, for the
// statement-execution boundary described in spec §4.9.
func (e *ServerError) WithSQL(sql string) *ServerError {
	cp := *e
	cp.SQL = sql
	return &cp
}

// ProtocolError is always fatal: framing, sequence, or decode failures.
type ProtocolError struct {
	Cause error
	Msg   string
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mysql protocol error: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("mysql protocol error: %s", e.Msg)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

func NewProtocolError(msg string, cause error) *ProtocolError {
	return &ProtocolError{Msg: msg, Cause: errors.Trace(cause)}
}

// ConnectionClosedError reports that queued/in-flight exchanges were
// failed because the connection closed, distinguishing an operator-
// requested close from an unexpected one (spec §4.5, §7).
type ConnectionClosedError struct {
	Expected bool
	Cause    error
}

func (e *ConnectionClosedError) Error() string {
	if e.Expected {
		return "mysql: connection closed"
	}
	return fmt.Sprintf("mysql: connection closed unexpectedly: %v", e.Cause)
}

func (e *ConnectionClosedError) Unwrap() error { return e.Cause }

// NewConnectionClosedError builds a ConnectionClosedError, marking
// whether the close was caller-requested (expected) or not.
func NewConnectionClosedError(expected bool, cause error) *ConnectionClosedError {
	return &ConnectionClosedError{Expected: expected, Cause: cause}
}

// Annotate wraps err with juju/errors.Annotatef, matching the teacher's
// error-wrapping idiom throughout the protocol layer.
func Annotate(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Annotatef(err, format, args...)
}
