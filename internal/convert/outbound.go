package convert

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/John-Robertt/submerge-go/internal/model"
)

type outbound struct {
	Protocol       string          `json:"protocol"`
	Settings       json.RawMessage `json:"settings"`
	StreamSettings *streamSettings `json:"streamSettings,omitempty"`
}

type vnextSettings struct {
	Vnext []vnextServer `json:"vnext"`
}

type vnextServer struct {
	Address string      `json:"address"`
	Port    int         `json:"port"`
	Users   []vnextUser `json:"users"`
}

type vnextUser struct {
	ID         string `json:"id"`
	AlterID    *int   `json:"alterId,omitempty"`
	Security   string `json:"security,omitempty"`
	Encryption string `json:"encryption,omitempty"`
	Flow       string `json:"flow,omitempty"`
}

type trojanSettings struct {
	Servers []trojanServer `json:"servers"`
}

type trojanServer struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

type streamSettings struct {
	Network     string       `json:"network"`
	Security    string       `json:"security,omitempty"`
	TLSSettings *tlsSettings `json:"tlsSettings,omitempty"`
	WSSettings  *wsSettings  `json:"wsSettings,omitempty"`
}

type tlsSettings struct {
	ServerName  string `json:"serverName,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type wsSettings struct {
	Path    string            `json:"path,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ToOutbound renders e as an xray outbound object without a tag. An entry
// read from a client configuration is returned unchanged.
func ToOutbound(e model.Entry) (json.RawMessage, bool) {
	if len(e.Outbound) > 0 {
		return e.Outbound, true
	}

	var (
		ob       outbound
		settings any
		tr       model.Transport
	)
	switch f := e.Fields.(type) {
	case model.VMess:
		if !f.Valid() || f.ID == "" {
			return nil, false
		}
		aid := f.AlterID
		ob.Protocol = string(model.ProtocolVMess)
		settings = vnextSettings{Vnext: []vnextServer{{
			Address: f.Server,
			Port:    f.Port,
			Users:   []vnextUser{{ID: f.ID, AlterID: &aid, Security: "auto"}},
		}}}
		tr = f.Transport
	case model.VLESS:
		if !f.Valid() || f.UUID == "" {
			return nil, false
		}
		ob.Protocol = string(model.ProtocolVLESS)
		settings = vnextSettings{Vnext: []vnextServer{{
			Address: f.Server,
			Port:    f.Port,
			Users:   []vnextUser{{ID: f.UUID, Encryption: "none", Flow: e.ExtraValue("flow")}},
		}}}
		tr = f.Transport
	case model.Trojan:
		if !f.Valid() || f.Password == "" {
			return nil, false
		}
		ob.Protocol = string(model.ProtocolTrojan)
		settings = trojanSettings{Servers: []trojanServer{{
			Address:  f.Server,
			Port:     f.Port,
			Password: f.Password,
		}}}
		tr = f.Transport
	default:
		return nil, false
	}

	s, err := json.Marshal(settings)
	if err != nil {
		return nil, false
	}
	ob.Settings = s
	ob.StreamSettings = buildStreamSettings(tr, e)

	b, err := json.Marshal(ob)
	if err != nil {
		return nil, false
	}
	return b, true
}

func buildStreamSettings(tr model.Transport, e model.Entry) *streamSettings {
	ss := &streamSettings{Network: tr.Network}
	if ss.Network == "" {
		ss.Network = "tcp"
	}
	if tr.Security != "" && tr.Security != "none" {
		ss.Security = tr.Security
	}
	if ss.Security == "tls" {
		sni := e.ExtraValue("sni")
		if sni == "" {
			sni = tr.Host
		}
		fp := e.ExtraValue("fp")
		if sni != "" || fp != "" {
			ss.TLSSettings = &tlsSettings{ServerName: sni, Fingerprint: fp}
		}
	}
	if ss.Network == "ws" && (tr.Path != "" || tr.Host != "") {
		ws := &wsSettings{Path: tr.Path}
		if tr.Host != "" {
			ws.Headers = map[string]string{"Host": tr.Host}
		}
		ss.WSSettings = ws
	}
	return ss
}

// FromOutbound reads the protocol fields of an xray outbound object. ok is
// false when the object carries no protocol. Unknown protocols come back as
// Opaque.
func FromOutbound(raw json.RawMessage) (model.Fields, bool) {
	if !gjson.ValidBytes(raw) {
		return nil, false
	}
	doc := gjson.ParseBytes(raw)
	name := doc.Get("protocol").String()
	proto, ok := model.ParseProtocol(name)
	if !ok {
		return nil, false
	}

	tr := model.Transport{
		Network:  doc.Get("streamSettings.network").String(),
		Security: doc.Get("streamSettings.security").String(),
		Host:     doc.Get("streamSettings.wsSettings.headers.Host").String(),
		Path:     doc.Get("streamSettings.wsSettings.path").String(),
	}

	switch proto {
	case model.ProtocolVMess:
		server := doc.Get("settings.vnext.0")
		return model.VMess{
			Endpoint:  endpointOf(server),
			ID:        server.Get("users.0.id").String(),
			AlterID:   int(server.Get("users.0.alterId").Int()),
			Transport: tr,
		}, true
	case model.ProtocolVLESS:
		server := doc.Get("settings.vnext.0")
		return model.VLESS{
			Endpoint:  endpointOf(server),
			UUID:      server.Get("users.0.id").String(),
			Transport: tr,
		}, true
	case model.ProtocolTrojan:
		server := doc.Get("settings.servers.0")
		return model.Trojan{
			Endpoint:  endpointOf(server),
			Password:  server.Get("password").String(),
			Transport: tr,
		}, true
	default:
		return model.Opaque{Scheme: strings.ToLower(strings.TrimSpace(name))}, true
	}
}

// OutboundExtra collects the link parameters an outbound carries outside
// the modelled fields (sni, fingerprint, vless flow).
func OutboundExtra(raw json.RawMessage) []model.KV {
	doc := gjson.ParseBytes(raw)
	var out []model.KV
	add := func(key string, paths ...string) {
		for _, p := range paths {
			if v := doc.Get(p).String(); v != "" {
				out = append(out, model.KV{Key: key, Value: v})
				return
			}
		}
	}
	add("sni", "streamSettings.tlsSettings.serverName", "streamSettings.realitySettings.serverName")
	add("fp", "streamSettings.tlsSettings.fingerprint", "streamSettings.realitySettings.fingerprint")
	add("pbk", "streamSettings.realitySettings.publicKey")
	add("sid", "streamSettings.realitySettings.shortId")
	add("flow", "settings.vnext.0.users.0.flow")
	return out
}

func endpointOf(server gjson.Result) model.Endpoint {
	return model.Endpoint{
		Server: strings.TrimSpace(server.Get("address").String()),
		Port:   intValue(server.Get("port")),
	}
}
