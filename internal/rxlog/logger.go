// Package rxlog provides the structured logger shared by the driver's
// internal packages: one logrus instance per connection, with a compact
// single-line formatter. Row data is never logged; only protocol-level
// lifecycle events (handshake, auth plugin switch, fatal errors).
package rxlog

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Formatter renders "HH:MM:SS.mmm LEVL message key=value ...": the level
// is cut to four letters, and the conn=N tag is one of the key=value
// fields, printed in map order.
type Formatter struct {
	TimestampFormat string
}

func (f *Formatter) Format(e *logrus.Entry) ([]byte, error) {
	ts := e.Time.Format(f.timestampFormat())
	level := strings.ToUpper(e.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-4s %s", ts, level, e.Message)
	for k, v := range e.Data {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func (f *Formatter) timestampFormat() string {
	if f.TimestampFormat != "" {
		return f.TimestampFormat
	}
	return "15:04:05.000"
}

// New returns a logger scoped to one connection, tagging every entry
// with conn=<id>.
func New(connID uint32) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&Formatter{})
	return l.WithField("conn", connID)
}

// Discard returns a logger that drops everything, used when the caller
// did not configure one.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l.WithField("conn", 0)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
