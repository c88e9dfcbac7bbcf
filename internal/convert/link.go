package convert

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/model"
)

// Query keys mapped onto model.Transport, in the order they are written.
const (
	keySecurity = "security"
	keyType     = "type"
	keyHost     = "host"
	keyPath     = "path"
)

// ParseLink reads one subscription line. vmess, vless and trojan links are
// decoded into their variants; any other scheme:// line becomes an Opaque
// entry holding the raw link. ok is false when the line is not a link or a
// known protocol link lacks its server, port or identifier.
func ParseLink(line string) (model.Entry, bool) {
	line = strings.TrimSpace(line)
	scheme, rest, ok := strings.Cut(line, "://")
	if !ok || !validScheme(scheme) {
		return model.Entry{}, false
	}
	scheme = strings.ToLower(scheme)

	switch scheme {
	case "vmess":
		return parseVMess(rest)
	case "vless", "trojan":
		return parseURILink(model.Protocol(scheme), rest)
	default:
		name := ""
		if _, frag, hasFrag := strings.Cut(rest, "#"); hasFrag {
			name = unescapeOrRaw(frag)
		}
		return model.Entry{
			Name:   strings.TrimSpace(name),
			Fields: model.Opaque{Scheme: scheme, Link: line},
		}, true
	}
}

func parseURILink(proto model.Protocol, rest string) (model.Entry, bool) {
	withoutFrag, frag, _ := strings.Cut(rest, "#")
	withoutQuery, query, _ := strings.Cut(withoutFrag, "?")

	at := strings.LastIndex(withoutQuery, "@")
	if at <= 0 {
		return model.Entry{}, false
	}
	id, err := url.PathUnescape(withoutQuery[:at])
	if err != nil || strings.TrimSpace(id) == "" {
		return model.Entry{}, false
	}

	hostPort := withoutQuery[at+1:]
	if idx := strings.IndexByte(hostPort, '/'); idx >= 0 {
		hostPort = hostPort[:idx]
	}
	server, port, err := parseHostPort(hostPort)
	if err != nil {
		return model.Entry{}, false
	}

	tr, extra := parseQuery(query)
	ep := model.Endpoint{Server: server, Port: port}

	e := model.Entry{
		Name:  strings.TrimSpace(unescapeOrRaw(frag)),
		Extra: extra,
	}
	if proto == model.ProtocolVLESS {
		e.Fields = model.VLESS{Endpoint: ep, UUID: id, Transport: tr}
	} else {
		e.Fields = model.Trojan{Endpoint: ep, Password: id, Transport: tr}
	}
	return e, true
}

// parseQuery splits the query by hand so unknown parameters keep their order.
func parseQuery(query string) (model.Transport, []model.KV) {
	var tr model.Transport
	var extra []model.KV
	if query == "" {
		return tr, nil
	}
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		kRaw, vRaw, _ := strings.Cut(part, "=")
		k := unescapeOrRaw(kRaw)
		v := unescapeOrRaw(vRaw)

		var dst *string
		switch k {
		case keySecurity:
			dst = &tr.Security
		case keyType:
			dst = &tr.Network
		case keyHost:
			dst = &tr.Host
		case keyPath:
			dst = &tr.Path
		}
		if dst != nil && *dst == "" {
			*dst = v
			continue
		}
		extra = append(extra, model.KV{Key: k, Value: v})
	}
	return tr, extra
}

// FormatLink renders e as a subscription line carrying e.Name as fragment.
// ok is false when e cannot be written as a link.
func FormatLink(e model.Entry) (string, bool) {
	switch f := e.Fields.(type) {
	case model.VMess:
		return formatVMess(e.Name, f, e.Extra)
	case model.VLESS:
		return formatURILink("vless", f.UUID, f.Endpoint, f.Transport, e.Extra, e.Name)
	case model.Trojan:
		return formatURILink("trojan", f.Password, f.Endpoint, f.Transport, e.Extra, e.Name)
	case model.Opaque:
		if f.Link == "" {
			return "", false
		}
		base, _, _ := strings.Cut(f.Link, "#")
		return withFragment(base, e.Name), true
	default:
		return "", false
	}
}

func formatURILink(scheme, id string, ep model.Endpoint, tr model.Transport, extra []model.KV, name string) (string, bool) {
	if !ep.Valid() || strings.TrimSpace(id) == "" {
		return "", false
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(url.User(id).String())
	b.WriteByte('@')
	b.WriteString(net.JoinHostPort(ep.Server, strconv.Itoa(ep.Port)))

	pairs := make([]model.KV, 0, 4+len(extra))
	for _, kv := range []model.KV{
		{Key: keySecurity, Value: tr.Security},
		{Key: keyType, Value: tr.Network},
		{Key: keyHost, Value: tr.Host},
		{Key: keyPath, Value: tr.Path},
	} {
		if kv.Value != "" {
			pairs = append(pairs, kv)
		}
	}
	pairs = append(pairs, extra...)

	for i, kv := range pairs {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(encode.PctEncode(kv.Key))
		b.WriteByte('=')
		b.WriteString(encode.PctEncode(kv.Value))
	}
	return withFragment(b.String(), name), true
}

func withFragment(link, name string) string {
	if name == "" {
		return link
	}
	return link + "#" + encode.PctEncode(name)
}

func unescapeOrRaw(s string) string {
	v, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return v
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

func parseHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil {
		return "", 0, err
	}
	if port < 1 || port > 65535 {
		return "", 0, errors.New("port out of range")
	}
	return host, port, nil
}
