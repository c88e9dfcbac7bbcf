package convert

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/John-Robertt/submerge-go/internal/model"
)

// FromProxy reads one element of a "proxies" list (clash style keys). ok is
// false when the object has no type. A type outside the supported set gives
// an Opaque entry, which FormatLink later refuses.
func FromProxy(obj gjson.Result) (model.Entry, bool) {
	typ := strings.TrimSpace(obj.Get("type").String())
	proto, ok := model.ParseProtocol(typ)
	if !ok {
		return model.Entry{}, false
	}

	ep := model.Endpoint{
		Server: strings.TrimSpace(obj.Get("server").String()),
		Port:   intValue(obj.Get("port")),
	}
	tr := model.Transport{
		Network:  obj.Get("network").String(),
		Security: proxySecurity(obj),
		Host:     obj.Get("ws-opts.headers.Host").String(),
		Path:     obj.Get("ws-opts.path").String(),
	}

	var extra []model.KV
	sni := obj.Get("servername").String()
	if sni == "" {
		sni = obj.Get("sni").String()
	}
	if sni != "" {
		extra = append(extra, model.KV{Key: "sni", Value: sni})
	}

	e := model.Entry{Name: strings.TrimSpace(obj.Get("name").String())}
	switch proto {
	case model.ProtocolVMess:
		e.Fields = model.VMess{
			Endpoint:  ep,
			ID:        strings.TrimSpace(obj.Get("uuid").String()),
			AlterID:   intValue(obj.Get("alterId")),
			Transport: tr,
		}
	case model.ProtocolVLESS:
		if flow := obj.Get("flow").String(); flow != "" {
			extra = append(extra, model.KV{Key: "flow", Value: flow})
		}
		e.Fields = model.VLESS{
			Endpoint:  ep,
			UUID:      strings.TrimSpace(obj.Get("uuid").String()),
			Transport: tr,
		}
	case model.ProtocolTrojan:
		e.Fields = model.Trojan{
			Endpoint:  ep,
			Password:  obj.Get("password").String(),
			Transport: tr,
		}
	default:
		e.Fields = model.Opaque{Scheme: strings.ToLower(typ)}
	}
	e.Extra = extra
	return e, true
}

// proxySecurity prefers an explicit "security" and falls back to "tls",
// which upstreams write either as a bool or as a string.
func proxySecurity(obj gjson.Result) string {
	if s := strings.TrimSpace(obj.Get("security").String()); s != "" {
		return s
	}
	t := obj.Get("tls")
	switch t.Type {
	case gjson.True:
		return "tls"
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(t.Str)) {
		case "tls", "true", "1":
			return "tls"
		}
	}
	return ""
}
