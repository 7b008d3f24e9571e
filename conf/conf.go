// Package conf parses the connection-URL configuration vocabulary
// (spec §6) and a supplementary ini-backed file format operators can
// use to keep connection defaults outside application code. Grounded
// on the teacher's `server/conf/config.go` use of `gopkg.in/ini.v1` for
// its own listener configuration (host/port/session-timeout knobs);
// generalized from "one authoritative ini file" to "ini defaults,
// overridden field-by-field by whatever a connection URL specifies".
package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/zhukovaskychina/rxmysql/internal/connctx"
	"github.com/zhukovaskychina/rxmysql/internal/handshake"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

// CompressionAlgorithm names one member of the compressionAlgorithms
// set (spec §6).
type CompressionAlgorithm string

const (
	CompressionUncompressed CompressionAlgorithm = "UNCOMPRESSED"
	CompressionZlib         CompressionAlgorithm = "ZLIB"
	CompressionZstd         CompressionAlgorithm = "ZSTD"
)

// Config holds every connection-URL option spec §6 names, plus the
// connection target itself (host/port/user/password/database), which
// the URL's authority and path carry rather than its query string.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string

	SSLMode    handshake.SSLMode
	SSLCa      string
	SSLCert    string
	SSLKey     string
	SSLKeyPassword     string
	SSLHostnameVerifier string // name of an external verifier; RFC 6125 default lives in internal/tlsbridge
	TLSVersions []string

	ConnectionTimeZone               string // "LOCAL", "SERVER", or an IANA zone id
	PreserveInstants                 bool
	ForceConnectionTimeZoneToSession bool
	ZeroDate                         connctx.ZeroDatePolicy

	CreateDatabaseIfNotExist  bool
	UseServerPrepareStatement bool

	TCPKeepAlive bool
	TCPNoDelay   bool

	LockWaitTimeout  time.Duration
	StatementTimeout time.Duration

	AllowLoadLocalInfileInPath string
	LocalInfileBufferSize      int

	QueryCacheSize   int
	PrepareCacheSize int

	CompressionAlgorithms []CompressionAlgorithm
	ZstdCompressionLevel  int

	SessionVariables map[string]string

	TinyInt1IsBit bool
}

// Default returns the baseline configuration every URL/file override
// is layered on top of.
func Default() *Config {
	return &Config{
		Port:                  3306,
		SSLMode:               handshake.SSLPreferred,
		ConnectionTimeZone:    "LOCAL",
		ZeroDate:              connctx.ZeroDateUseNull,
		TCPKeepAlive:          true,
		TCPNoDelay:            true,
		LocalInfileBufferSize: 1 << 16,
		QueryCacheSize:        256,
		PrepareCacheSize:      256,
		CompressionAlgorithms: []CompressionAlgorithm{CompressionUncompressed},
		ZstdCompressionLevel:  3,
		SessionVariables:      map[string]string{},
		TinyInt1IsBit:         true,
	}
}

// ParseURL builds a Config from a connection URL of the form
// `scheme://[user[:password]@]host[:port][/database][?opt=val&...]`
// (spec §6), starting from Default().
func ParseURL(dsn string) (*Config, error) {
	cfg := Default()
	if err := cfg.ApplyURL(dsn); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyURL overlays dsn's authority, path, and query options onto an
// existing Config (the "overlay a DSN on top of file defaults"
// pattern spec §6 and the teacher's own Cfg.Load support).
func (c *Config) ApplyURL(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return xerrors.NewProtocolError("conf: invalid connection URL: "+err.Error(), nil)
	}

	if u.Hostname() != "" {
		c.Host = u.Hostname()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return xerrors.NewProtocolError("conf: invalid port in connection URL", nil)
		}
		c.Port = port
	}
	if u.User != nil {
		c.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		c.Database = db
	}

	return c.applyQuery(u.Query())
}

func (c *Config) applyQuery(q url.Values) error {
	for key, values := range q {
		if len(values) == 0 {
			continue
		}
		v := values[0]
		var err error
		switch key {
		case "sslMode":
			c.SSLMode, err = parseSSLMode(v)
		case "sslCa":
			c.SSLCa = v
		case "sslCert":
			c.SSLCert = v
		case "sslKey":
			c.SSLKey = v
		case "sslKeyPassword":
			c.SSLKeyPassword = v
		case "sslHostnameVerifier":
			c.SSLHostnameVerifier = v
		case "tlsVersion":
			c.TLSVersions = strings.Split(v, ",")
		case "connectionTimeZone":
			c.ConnectionTimeZone = v
		case "preserveInstants":
			c.PreserveInstants, err = strconv.ParseBool(v)
		case "forceConnectionTimeZoneToSession":
			c.ForceConnectionTimeZoneToSession, err = strconv.ParseBool(v)
		case "zeroDate":
			c.ZeroDate, err = parseZeroDate(v)
		case "createDatabaseIfNotExist":
			c.CreateDatabaseIfNotExist, err = strconv.ParseBool(v)
		case "useServerPrepareStatement":
			c.UseServerPrepareStatement, err = strconv.ParseBool(v)
		case "tcpKeepAlive":
			c.TCPKeepAlive, err = strconv.ParseBool(v)
		case "tcpNoDelay":
			c.TCPNoDelay, err = strconv.ParseBool(v)
		case "lockWaitTimeout":
			c.LockWaitTimeout, err = time.ParseDuration(v)
		case "statementTimeout":
			c.StatementTimeout, err = time.ParseDuration(v)
		case "allowLoadLocalInfileInPath":
			c.AllowLoadLocalInfileInPath = v
		case "localInfileBufferSize":
			c.LocalInfileBufferSize, err = strconv.Atoi(v)
		case "queryCacheSize":
			c.QueryCacheSize, err = strconv.Atoi(v)
		case "prepareCacheSize":
			c.PrepareCacheSize, err = strconv.Atoi(v)
		case "compressionAlgorithms":
			c.CompressionAlgorithms, err = parseCompressionAlgorithms(v)
		case "zstdCompressionLevel":
			var level int
			level, err = strconv.Atoi(v)
			if err == nil {
				if level < 1 || level > 22 {
					err = fmt.Errorf("zstdCompressionLevel must be in [1,22], got %d", level)
				} else {
					c.ZstdCompressionLevel = level
				}
			}
		case "sessionVariables":
			c.SessionVariables = parseSessionVariables(v)
		case "tinyInt1isBit":
			c.TinyInt1IsBit, err = strconv.ParseBool(v)
		default:
			// unrecognized options are ignored rather than rejected, so a
			// URL written against a newer vocabulary still connects.
		}
		if err != nil {
			return xerrors.NewProtocolError(fmt.Sprintf("conf: invalid value for %s: %v", key, err), nil)
		}
	}
	return nil
}

func parseSSLMode(v string) (handshake.SSLMode, error) {
	switch strings.ToUpper(v) {
	case "DISABLED":
		return handshake.SSLDisabled, nil
	case "PREFERRED":
		return handshake.SSLPreferred, nil
	case "REQUIRED":
		return handshake.SSLRequired, nil
	case "VERIFY_CA":
		return handshake.SSLVerifyCA, nil
	case "VERIFY_IDENTITY":
		return handshake.SSLVerifyIdentity, nil
	case "TUNNEL":
		return handshake.SSLTunnel, nil
	default:
		return 0, fmt.Errorf("unknown sslMode %q", v)
	}
}

func parseZeroDate(v string) (connctx.ZeroDatePolicy, error) {
	switch strings.ToUpper(v) {
	case "USE_NULL":
		return connctx.ZeroDateUseNull, nil
	case "USE_ROUND":
		return connctx.ZeroDateUseRound, nil
	case "EXCEPTION":
		return connctx.ZeroDateException, nil
	default:
		return 0, fmt.Errorf("unknown zeroDate %q", v)
	}
}

func parseCompressionAlgorithms(v string) ([]CompressionAlgorithm, error) {
	parts := strings.Split(v, ",")
	out := make([]CompressionAlgorithm, 0, len(parts))
	for _, p := range parts {
		switch a := CompressionAlgorithm(strings.ToUpper(strings.TrimSpace(p))); a {
		case CompressionUncompressed, CompressionZlib, CompressionZstd:
			out = append(out, a)
		default:
			return nil, fmt.Errorf("unknown compression algorithm %q", p)
		}
	}
	return out, nil
}

func parseSessionVariables(v string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, val, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		out[k] = val
	}
	return out
}

// LoadFile reads a supplementary ini-backed configuration file, ini.v1
// under the hood exactly as the teacher's server/conf/config.go loads
// its own listener defaults, and applies its [connection], [tls], and
// [cache] sections onto a Default() Config. Missing keys keep their
// default; present keys are parsed with the same option vocabulary
// ApplyURL uses, so a caller can LoadFile then ApplyURL to overlay a
// connection string on top of file-based defaults.
func LoadFile(path string) (*Config, error) {
	raw, err := ini.Load(path)
	if err != nil {
		return nil, xerrors.NewProtocolError("conf: loading ini file: "+err.Error(), nil)
	}
	cfg := Default()

	conn := raw.Section("connection")
	cfg.Host = valueOrDefault(conn, "host", cfg.Host)
	if v := conn.Key("port").String(); v != "" {
		port, err := conn.Key("port").Int()
		if err != nil {
			return nil, xerrors.NewProtocolError("conf: invalid port in ini file: "+err.Error(), nil)
		}
		cfg.Port = port
	}
	cfg.Username = valueOrDefault(conn, "user", cfg.Username)
	cfg.Password = valueOrDefault(conn, "password", cfg.Password)
	cfg.Database = valueOrDefault(conn, "database", cfg.Database)
	cfg.ConnectionTimeZone = valueOrDefault(conn, "connection_time_zone", cfg.ConnectionTimeZone)
	cfg.TCPKeepAlive = conn.Key("tcp_keep_alive").MustBool(cfg.TCPKeepAlive)
	cfg.TCPNoDelay = conn.Key("tcp_no_delay").MustBool(cfg.TCPNoDelay)
	cfg.TinyInt1IsBit = conn.Key("tiny_int1_is_bit").MustBool(cfg.TinyInt1IsBit)

	if v := conn.Key("ssl_mode").String(); v != "" {
		mode, err := parseSSLMode(v)
		if err != nil {
			return nil, xerrors.NewProtocolError("conf: "+err.Error(), nil)
		}
		cfg.SSLMode = mode
	}
	if v := conn.Key("zero_date").String(); v != "" {
		zd, err := parseZeroDate(v)
		if err != nil {
			return nil, xerrors.NewProtocolError("conf: "+err.Error(), nil)
		}
		cfg.ZeroDate = zd
	}

	tls := raw.Section("tls")
	cfg.SSLCa = valueOrDefault(tls, "ca", cfg.SSLCa)
	cfg.SSLCert = valueOrDefault(tls, "cert", cfg.SSLCert)
	cfg.SSLKey = valueOrDefault(tls, "key", cfg.SSLKey)
	cfg.SSLKeyPassword = valueOrDefault(tls, "key_password", cfg.SSLKeyPassword)
	cfg.SSLHostnameVerifier = valueOrDefault(tls, "hostname_verifier", cfg.SSLHostnameVerifier)

	cache := raw.Section("cache")
	cfg.QueryCacheSize = cache.Key("query_cache_size").MustInt(cfg.QueryCacheSize)
	cfg.PrepareCacheSize = cache.Key("prepare_cache_size").MustInt(cfg.PrepareCacheSize)

	return cfg, nil
}

func valueOrDefault(section *ini.Section, key, fallback string) string {
	if section.HasKey(key) {
		v := section.Key(key).String()
		if v != "" {
			return v
		}
	}
	return fallback
}
