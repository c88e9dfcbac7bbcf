package convert

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/model"
)

// vmess body keys that map onto model fields. "v" is the format version and
// is always rewritten as "2".
var vmessKnownKeys = map[string]struct{}{
	"v": {}, "ps": {}, "add": {}, "port": {}, "id": {}, "aid": {},
	"net": {}, "host": {}, "path": {}, "tls": {},
}

func parseVMess(rest string) (model.Entry, bool) {
	body, frag, hasFrag := strings.Cut(rest, "#")
	raw, err := encode.DecodeBytes(encode.RemoveSpaceTabCRLF(body))
	if err != nil || !utf8.Valid(raw) || !gjson.ValidBytes(raw) {
		return model.Entry{}, false
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return model.Entry{}, false
	}

	var (
		f     model.VMess
		name  string
		extra []model.KV
	)
	doc.ForEach(func(key, val gjson.Result) bool {
		switch k := key.String(); k {
		case "v":
		case "ps":
			name = val.String()
		case "add":
			f.Server = val.String()
		case "port":
			f.Port = intValue(val)
		case "id":
			f.ID = val.String()
		case "aid":
			f.AlterID = intValue(val)
		case "net":
			f.Network = val.String()
		case "host":
			f.Host = val.String()
		case "path":
			f.Path = val.String()
		case "tls":
			f.Security = val.String()
		default:
			extra = append(extra, model.KV{Key: k, Value: val.String()})
		}
		return true
	})
	if !f.Valid() || strings.TrimSpace(f.ID) == "" {
		return model.Entry{}, false
	}
	if name == "" && hasFrag {
		name = unescapeOrRaw(frag)
	}
	return model.Entry{Name: strings.TrimSpace(name), Fields: f, Extra: extra}, true
}

// intValue accepts both 443 and "443".
func intValue(v gjson.Result) int {
	switch v.Type {
	case gjson.Number:
		return int(v.Int())
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func formatVMess(name string, f model.VMess, extra []model.KV) (string, bool) {
	if !f.Valid() || strings.TrimSpace(f.ID) == "" {
		return "", false
	}
	network := f.Network
	if network == "" {
		network = "tcp"
	}

	// sjson appends new keys, so the body keeps this key order.
	body := "{}"
	set := func(key string, v any) {
		if out, err := sjson.Set(body, gjson.Escape(key), v); err == nil {
			body = out
		}
	}
	set("v", "2")
	set("ps", name)
	set("add", f.Server)
	set("port", f.Port)
	set("id", f.ID)
	set("aid", f.AlterID)
	set("net", network)
	if f.Host != "" {
		set("host", f.Host)
	}
	if f.Path != "" {
		set("path", f.Path)
	}
	if f.Security != "" {
		set("tls", f.Security)
	}
	for _, kv := range extra {
		if _, known := vmessKnownKeys[kv.Key]; known {
			continue
		}
		set(kv.Key, kv.Value)
	}
	return "vmess://" + encode.Encode(body), true
}
