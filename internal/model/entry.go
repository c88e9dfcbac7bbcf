package model

import (
	"encoding/json"
	"strings"
)

type KV struct {
	Key   string
	Value string
}

// Protocol is the closed set of outbound kinds the pipeline understands.
type Protocol string

const (
	ProtocolVMess  Protocol = "vmess"
	ProtocolVLESS  Protocol = "vless"
	ProtocolTrojan Protocol = "trojan"
	// ProtocolOther marks an outbound kept as an opaque passthrough.
	ProtocolOther Protocol = "other"
)

// ParseProtocol maps an upstream protocol/type/scheme string to a Protocol.
// An empty string is not a protocol; anything unrecognised is ProtocolOther.
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", false
	case "vmess":
		return ProtocolVMess, true
	case "vless":
		return ProtocolVLESS, true
	case "trojan":
		return ProtocolTrojan, true
	default:
		return ProtocolOther, true
	}
}

type Endpoint struct {
	Server string
	Port   int
}

// Valid reports whether the endpoint can be written into a link or outbound.
func (e Endpoint) Valid() bool {
	return strings.TrimSpace(e.Server) != "" && e.Port >= 1 && e.Port <= 65535
}

// Transport holds the stream options shared by vmess, vless and trojan.
type Transport struct {
	Network  string // tcp, ws, grpc, ...
	Security string // tls, reality, none, ...
	Host     string // websocket Host header
	Path     string // websocket path
}

// Fields is the protocol specific part of an Entry. The concrete types are
// VMess, VLESS, Trojan and Opaque.
type Fields interface {
	Protocol() Protocol
}

type VMess struct {
	Endpoint
	ID      string
	AlterID int
	Transport
}

func (VMess) Protocol() Protocol { return ProtocolVMess }

type VLESS struct {
	Endpoint
	UUID string
	Transport
}

func (VLESS) Protocol() Protocol { return ProtocolVLESS }

type Trojan struct {
	Endpoint
	Password string
	Transport
}

func (Trojan) Protocol() Protocol { return ProtocolTrojan }

// Opaque is an outbound whose protocol is outside the supported set. It is
// carried through untouched: Link holds the raw URI when it came from a link
// list, Scheme the declared protocol name.
type Opaque struct {
	Scheme string
	Link   string
}

func (Opaque) Protocol() Protocol { return ProtocolOther }

// Entry is one aggregated outbound.
type Entry struct {
	// Name is the display name (remark / tag). The pipeline guarantees it is
	// non-empty and, outside rename mode, unique within one run.
	Name string

	Fields Fields

	// Extra keeps attributes no variant models (unknown query parameters,
	// extra vmess keys) in their original order, for pass-through only.
	Extra []KV

	// Outbound is the original client-config outbound object, if the entry
	// was read from a full configuration.
	Outbound json.RawMessage
}

func (e Entry) Protocol() Protocol {
	if e.Fields == nil {
		return ""
	}
	return e.Fields.Protocol()
}

// WithName returns a copy of e carrying name.
func (e Entry) WithName(name string) Entry {
	e.Name = name
	return e
}

// Identifier returns the credential that identifies the user on the server:
// the uuid for vmess/vless and the password for trojan.
func (e Entry) Identifier() string {
	switch f := e.Fields.(type) {
	case VMess:
		return f.ID
	case VLESS:
		return f.UUID
	case Trojan:
		return f.Password
	default:
		return ""
	}
}

// Endpoint returns the server address of a supported protocol.
func (e Entry) Endpoint() (Endpoint, bool) {
	switch f := e.Fields.(type) {
	case VMess:
		return f.Endpoint, true
	case VLESS:
		return f.Endpoint, true
	case Trojan:
		return f.Endpoint, true
	default:
		return Endpoint{}, false
	}
}

// ExtraValue returns the first Extra value stored under key.
func (e Entry) ExtraValue(key string) string {
	for _, kv := range e.Extra {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}
