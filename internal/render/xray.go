package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/John-Robertt/submerge-go/internal/convert"
	"github.com/John-Robertt/submerge-go/internal/model"
)

// Tags of the two terminal outbounds referenced by the routing rules.
const (
	TagBlock  = "block"
	TagSelect = "select"
)

type xrayConfig struct {
	Log       xrayLog           `json:"log"`
	Inbounds  []xrayInbound     `json:"inbounds"`
	Outbounds []json.RawMessage `json:"outbounds"`
	Routing   xrayRouting       `json:"routing"`
}

type xrayLog struct {
	LogLevel string `json:"loglevel"`
}

type xrayInbound struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Listen   string `json:"listen"`
	Settings any    `json:"settings"`
}

type socksSettings struct {
	Auth string `json:"auth"`
	UDP  bool   `json:"udp"`
}

type xrayRouting struct {
	DomainStrategy string     `json:"domainStrategy"`
	Rules          []xrayRule `json:"rules"`
}

type xrayRule struct {
	Type        string   `json:"type"`
	IP          []string `json:"ip,omitempty"`
	Network     string   `json:"network,omitempty"`
	OutboundTag string   `json:"outboundTag"`
}

func baseConfig() xrayConfig {
	return xrayConfig{
		Log: xrayLog{LogLevel: "warning"},
		Inbounds: []xrayInbound{
			{Port: 10808, Protocol: "socks", Listen: "127.0.0.1", Settings: socksSettings{Auth: "noauth", UDP: true}},
			{Port: 10809, Protocol: "http", Listen: "127.0.0.1", Settings: struct{}{}},
		},
		Routing: xrayRouting{
			DomainStrategy: "AsIs",
			Rules: []xrayRule{
				{Type: "field", IP: []string{"geoip:private", "geoip:ir"}, OutboundTag: TagBlock},
				{Type: "field", Network: "udp,tcp", OutboundTag: TagSelect},
			},
		},
	}
}

var terminalOutbounds = []json.RawMessage{
	json.RawMessage(`{"protocol":"blackhole","tag":"block"}`),
	json.RawMessage(`{"protocol":"freedom","tag":"select","settings":{}}`),
}

func renderXray(entries []model.Entry) (string, Stats, error) {
	var st Stats
	cfg := baseConfig()
	cfg.Outbounds = make([]json.RawMessage, 0, len(entries)+len(terminalOutbounds))
	for _, e := range entries {
		raw, ok := convert.ToOutbound(e)
		if !ok {
			st.Skipped++
			continue
		}
		tagged, err := withTag(raw, e.Name)
		if err != nil {
			st.Skipped++
			continue
		}
		cfg.Outbounds = append(cfg.Outbounds, tagged)
	}
	cfg.Outbounds = append(cfg.Outbounds, terminalOutbounds...)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(cfg); err != nil {
		return "", st, &RenderError{
			AppError: model.AppError{
				Code:    "RENDER_ERROR",
				Message: "生成 xray 配置失败",
				Stage:   "render",
			},
			Cause: err,
		}
	}
	return strings.TrimSuffix(buf.String(), "\n"), st, nil
}

var errNotObject = errors.New("outbound is not a JSON object")

// withTag sets "tag" on an outbound object. A single existing tag is
// replaced in place; otherwise the tag is appended after dropping any
// duplicates.
func withTag(raw json.RawMessage, tag string) (json.RawMessage, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, errNotObject
	}
	tagJSON, err := marshalString(tag)
	if err != nil {
		return nil, err
	}

	n := 0
	gjson.ParseBytes(raw).ForEach(func(key, _ gjson.Result) bool {
		if key.String() == "tag" {
			n++
		}
		return true
	})
	out := []byte(raw)
	for ; n > 1; n-- {
		if out, err = sjson.DeleteBytes(out, "tag"); err != nil {
			return nil, err
		}
	}
	return sjson.SetRawBytes(out, "tag", tagJSON)
}

// marshalString encodes s without HTML escaping, so names such as "A&B"
// stay readable in the config.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
