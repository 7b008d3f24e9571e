package query

import "strings"

// EscapeString applies the text-protocol parameter escaping rules
// (spec §4.7): single quote is always doubled; backslash, NUL, 0x1A,
// newline, and carriage-return are backslash-escaped unless the
// session has NO_BACKSLASH_ESCAPES set, in which case only the single
// quote is handled.
func EscapeString(s string, noBackslashEscapes bool) string {
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			sb.WriteString("''")
		case !noBackslashEscapes && c == '\\':
			sb.WriteString(`\\`)
		case !noBackslashEscapes && c == 0:
			sb.WriteString(`\0`)
		case !noBackslashEscapes && c == 0x1A:
			sb.WriteString(`\Z`)
		case !noBackslashEscapes && c == '\n':
			sb.WriteString(`\n`)
		case !noBackslashEscapes && c == '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// QuoteString wraps an escaped value in single quotes, the literal
// form the client-prepared-statement flow substitutes into SQL text.
func QuoteString(s string, noBackslashEscapes bool) string {
	return "'" + EscapeString(s, noBackslashEscapes) + "'"
}
