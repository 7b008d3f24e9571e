// Package query tokenizes SQL text into literal parts and parameter
// markers (spec §3 "Query (parsed SQL)"), the only SQL "parsing" this
// driver does (spec §1 Non-goals: "SQL parsing beyond placeholder
// discovery and statement tokenization").
package query

import (
	"strings"

	"github.com/zhukovaskychina/rxmysql/xerrors"
)

var errWrongParamCount = xerrors.NewProtocolError("wrong number of escaped parameters for query render", nil)

// Parsed is SQL text split at its `?` placeholders, plus a name-to-
// index-set map for `:name`-style named bindings (spec §3).
type Parsed struct {
	SQL      string
	Literals []string // len(Literals) == len(Markers)+1
	Markers  int
	Names    map[string][]int // marker name -> positional indices
}

// Parse scans sql once, honoring single/double-quoted strings,
// backtick-quoted identifiers, and line/block comments so that `?` or
// `:name` inside them is never mistaken for a placeholder.
func Parse(sql string) *Parsed {
	p := &Parsed{Names: map[string][]int{}}
	var lit strings.Builder
	i := 0
	n := len(sql)

	flush := func() {
		p.Literals = append(p.Literals, lit.String())
		lit.Reset()
	}

	for i < n {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := skipQuoted(sql, i)
			lit.WriteString(sql[i:end])
			i = end
		case c == '-' && i+1 < n && sql[i+1] == '-':
			end := skipLineComment(sql, i)
			lit.WriteString(sql[i:end])
			i = end
		case c == '/' && i+1 < n && sql[i+1] == '*':
			end := skipBlockComment(sql, i)
			lit.WriteString(sql[i:end])
			i = end
		case c == '?':
			flush()
			p.Markers++
			i++
		case c == ':' && i+1 < n && isNameStart(sql[i+1]):
			j := i + 1
			for j < n && isNameChar(sql[j]) {
				j++
			}
			name := sql[i+1 : j]
			flush()
			p.Names[name] = append(p.Names[name], p.Markers)
			p.Markers++
			i = j
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	p.SQL = sql
	return p
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

func skipQuoted(s string, i int) int {
	quote := s[i]
	j := i + 1
	for j < len(s) {
		if s[j] == '\\' && quote != '`' {
			j += 2
			continue
		}
		if s[j] == quote {
			if j+1 < len(s) && s[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return j
}

func skipLineComment(s string, i int) int {
	j := i
	for j < len(s) && s[j] != '\n' {
		j++
	}
	return j
}

func skipBlockComment(s string, i int) int {
	j := i + 2
	for j+1 < len(s) {
		if s[j] == '*' && s[j+1] == '/' {
			return j + 2
		}
		j++
	}
	return len(s)
}

// Render substitutes each positional marker with the corresponding
// already-escaped textual form, for the client-prepared-statement flow
// (spec §4.6 "substitute parameter placeholders with their
// protocol-level escaped textual form").
func (p *Parsed) Render(escaped []string) (string, error) {
	if len(escaped) != p.Markers {
		return "", errWrongParamCount
	}
	var sb strings.Builder
	for i, lit := range p.Literals {
		sb.WriteString(lit)
		if i < len(escaped) {
			sb.WriteString(escaped[i])
		}
	}
	return sb.String(), nil
}
