// Package handshake drives the connection-establishment state machine
// (spec §4.4): AWAIT_HANDSHAKE -> (optional) SSL_UPGRADING ->
// SEND_HANDSHAKE_RESPONSE -> AUTH_NEGOTIATION -> SESSION_INIT -> READY,
// with FAILED as the terminal failure state. Grounded on the teacher's
// handshake byte layout (server/protocol/handshark.go) generalized from
// "server greets client" to "client parses server's greeting and
// replies".
package handshake

import (
	"github.com/zhukovaskychina/rxmysql/internal/auth"
	"github.com/zhukovaskychina/rxmysql/internal/collation"
	"github.com/zhukovaskychina/rxmysql/internal/connctx"
	"github.com/zhukovaskychina/rxmysql/internal/protocol"
	"github.com/zhukovaskychina/rxmysql/xerrors"
)

type State int

const (
	StateAwaitHandshake State = iota
	StateSSLUpgrading
	StateSendResponse
	StateAuthNegotiation
	StateSessionInit
	StateReady
	StateFailed
)

// SSLMode mirrors the connection-URL vocabulary (spec §6).
type SSLMode int

const (
	SSLDisabled SSLMode = iota
	SSLPreferred
	SSLRequired
	SSLVerifyCA
	SSLVerifyIdentity
	SSLTunnel
)

// Params are the caller-supplied, per-connection inputs the FSM needs
// beyond what the server tells it.
type Params struct {
	Username           string
	Password           string
	Database           string
	DeferDatabase      bool
	SSLMode            SSLMode
	DesiredCapability  protocol.Capability
	PreferredCollation uint8
	Attributes         map[string]string
	ZstdLevel          int
}

// FSM holds the running handshake state across the sequence of
// server messages the caller feeds it via OnHandshake and OnAuthMessage.
type FSM struct {
	state  State
	params Params
	ctx    *connctx.Context

	serverHandshake *protocol.HandshakeV10
	activePlugin    auth.Plugin
	salt            []byte
	secureChannel   bool

	// pendingPluginName is never set: on a ChangeAuthPlugin message,
	// OnAuthMessage replaces activePlugin and re-authenticates itself.
	pendingPluginName string

	// awaitingPublicKey is set once the FSM has asked the server for its
	// RSA public key (the 0x02 request byte) so the next AuthMoreData is
	// known to carry the PEM key rather than another fast/full-auth byte.
	awaitingPublicKey bool
}

func New(ctx *connctx.Context, p Params) *FSM {
	return &FSM{state: StateAwaitHandshake, params: p, ctx: ctx}
}

func (f *FSM) State() State { return f.state }

// OnHandshake processes the initial server greeting, selecting the
// negotiated capability set, collation, and auth plugin (spec §4.4
// "On HANDSHAKE_V10: intersect server capability with client-desired
// capability, choose character collation ..., select auth plugin").
func (f *FSM) OnHandshake(msg protocol.ServerMessage) (needsSSL bool, err error) {
	switch m := msg.(type) {
	case *protocol.HandshakeV9Rejected:
		f.state = StateFailed
		return false, xerrors.NewProtocolError("server speaks protocol v9, unsupported", nil)
	case *protocol.HandshakeV10:
		if !m.Capability.Has(protocol.ClientProtocol41) {
			f.state = StateFailed
			return false, xerrors.NewProtocolError("server does not offer CLIENT_PROTOCOL_41, pre-4.1 protocol unsupported", nil)
		}
		f.serverHandshake = m
		f.ctx.SetConnectionID(m.ConnectionID)
		f.ctx.Capability = m.Capability & f.params.DesiredCapability
		f.ctx.Status = m.Status

		collID := f.params.PreferredCollation
		if collID == 0 {
			collID = collation.DefaultID
		}
		f.ctx.ClientCollation = collation.ByID(collID)
		f.ctx.ServerCollation = collation.ByID(m.Collation)

		plugin, ok := auth.Lookup(m.AuthPluginName)
		if !ok {
			plugin = auth.NoAuthPlugin{}
		}
		f.activePlugin = plugin
		f.salt = m.AuthPluginData

		if f.params.SSLMode != SSLDisabled && f.ctx.Capability.Has(protocol.ClientSSL) {
			f.state = StateSSLUpgrading
			return true, nil
		}
		f.state = StateSendResponse
		return false, nil
	default:
		f.state = StateFailed
		return false, xerrors.NewProtocolError("expected handshake greeting", nil)
	}
}

// OnSSLEstablished is called once the TLS upgrade completes
// successfully (spec §4.4 "upon TLS success, continue").
func (f *FSM) OnSSLEstablished() {
	f.secureChannel = true
	f.state = StateSendResponse
}

// BuildHandshakeResponse produces the client's reply once past the
// (optional) SSL upgrade (spec §4.4 "Emit handshake-response with...").
func (f *FSM) BuildHandshakeResponse() (*protocol.HandshakeResponse41, error) {
	if f.state != StateSendResponse {
		return nil, xerrors.NewProtocolError("handshake response built out of order", nil)
	}
	authResp, err := f.activePlugin.Authenticate(f.params.Password, f.salt)
	if err != nil {
		f.state = StateFailed
		return nil, err
	}

	db := f.params.Database
	if f.params.DeferDatabase {
		db = ""
	}

	resp := &protocol.HandshakeResponse41{
		Capability:     f.ctx.Capability,
		Collation:      f.ctx.ClientCollation.ID,
		Username:       f.params.Username,
		AuthResponse:   authResp,
		Database:       db,
		AuthPluginName: f.activePlugin.Name(),
		Attributes:     f.params.Attributes,
		ZstdLevel:      f.params.ZstdLevel,
	}
	f.state = StateAuthNegotiation
	return resp, nil
}

// AuthOutcome tells the caller what to do next after feeding the FSM
// one auth-phase server message.
type AuthOutcome int

const (
	AuthContinue AuthOutcome = iota
	AuthSendMoreData
	AuthSwitchPlugin
	// AuthRequestPublicKey tells the caller to send the returned bytes
	// (the literal 0x02 request byte) as a standalone packet, then keep
	// reading: the next server message is the RSA public key, not a
	// fast/full-auth status byte.
	AuthRequestPublicKey
	AuthDone
	AuthFailedOutcome
)

// OnAuthMessage processes one login-phase server message
// (spec §4.4's AUTH_MORE_DATA / CHANGE_AUTH_PLUGIN / OK transitions).
func (f *FSM) OnAuthMessage(msg protocol.ServerMessage) (AuthOutcome, []byte, error) {
	switch m := msg.(type) {
	case *protocol.OK:
		f.ctx.ApplyStatus(m.Status)
		f.state = StateSessionInit
		return AuthDone, nil, nil
	case *protocol.Error:
		f.state = StateFailed
		return AuthFailedOutcome, nil, m.AsServerError()
	case *protocol.ChangeAuthPlugin:
		plugin, ok := auth.Lookup(m.PluginName)
		if !ok {
			f.state = StateFailed
			return AuthFailedOutcome, nil, xerrors.NewProtocolError("unknown auth plugin requested: "+m.PluginName, nil)
		}
		f.activePlugin = plugin
		f.salt = m.Salt
		resp, err := f.activePlugin.Authenticate(f.params.Password, f.salt)
		if err != nil {
			f.state = StateFailed
			return AuthFailedOutcome, nil, err
		}
		return AuthSwitchPlugin, resp, nil
	case *protocol.AuthMoreData:
		switch f.activePlugin.Name() {
		case "caching_sha2_password":
			if f.awaitingPublicKey {
				f.awaitingPublicKey = false
				resp, err := auth.FullAuthResponse(f.params.Password, f.salt, f.secureChannel, m.Data)
				if err != nil {
					f.state = StateFailed
					return AuthFailedOutcome, nil, err
				}
				return AuthSendMoreData, resp, nil
			}
			action := auth.ClassifyCachingSHA2MoreData(m.Data)
			switch action {
			case auth.ActionFastSuccess:
				return AuthContinue, nil, nil
			case auth.ActionNeedsFullAuth:
				if f.secureChannel {
					resp, err := auth.FullAuthResponse(f.params.Password, f.salt, f.secureChannel, nil)
					if err != nil {
						f.state = StateFailed
						return AuthFailedOutcome, nil, err
					}
					return AuthSendMoreData, resp, nil
				}
				// Not on a secure channel: the server won't push its
				// public key unsolicited for this plugin (unlike
				// sha256_password), so request it explicitly (the 0x02
				// byte) and wait for the follow-up AUTH_MORE_DATA.
				f.awaitingPublicKey = true
				return AuthRequestPublicKey, []byte{0x02}, nil
			}
			return AuthContinue, nil, nil
		case "sha256_password":
			resp, err := auth.FullAuthResponse(f.params.Password, f.salt, f.secureChannel, m.Data)
			if err != nil {
				f.state = StateFailed
				return AuthFailedOutcome, nil, err
			}
			return AuthSendMoreData, resp, nil
		}
		return AuthContinue, nil, nil
	default:
		f.state = StateFailed
		return AuthFailedOutcome, nil, xerrors.NewProtocolError("unexpected message during auth negotiation", nil)
	}
}

// MarkReady completes SESSION_INIT (spec §4.4 "Run deferred actions...").
func (f *FSM) MarkReady() { f.state = StateReady }

func (f *FSM) Failed() bool { return f.state == StateFailed }
