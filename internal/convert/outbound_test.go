package convert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/John-Robertt/submerge-go/internal/model"
)

func TestToOutbound_VLESSWebSocket(t *testing.T) {
	e := model.Entry{
		Name: "n",
		Fields: model.VLESS{
			Endpoint:  model.Endpoint{Server: "s.example", Port: 443},
			UUID:      "u-1",
			Transport: model.Transport{Network: "ws", Security: "tls", Host: "cdn.example", Path: "/ws"},
		},
		Extra: []model.KV{{Key: "sni", Value: "sni.example"}, {Key: "flow", Value: "xtls-rprx-vision"}},
	}
	raw, ok := ToOutbound(e)
	require.True(t, ok)

	doc := gjson.ParseBytes(raw)
	assert.Equal(t, "vless", doc.Get("protocol").String())
	assert.Equal(t, "s.example", doc.Get("settings.vnext.0.address").String())
	assert.Equal(t, int64(443), doc.Get("settings.vnext.0.port").Int())
	assert.Equal(t, "u-1", doc.Get("settings.vnext.0.users.0.id").String())
	assert.Equal(t, "none", doc.Get("settings.vnext.0.users.0.encryption").String())
	assert.Equal(t, "xtls-rprx-vision", doc.Get("settings.vnext.0.users.0.flow").String())
	assert.Equal(t, "ws", doc.Get("streamSettings.network").String())
	assert.Equal(t, "tls", doc.Get("streamSettings.security").String())
	assert.Equal(t, "sni.example", doc.Get("streamSettings.tlsSettings.serverName").String())
	assert.Equal(t, "/ws", doc.Get("streamSettings.wsSettings.path").String())
	assert.Equal(t, "cdn.example", doc.Get("streamSettings.wsSettings.headers.Host").String())
	assert.False(t, doc.Get("tag").Exists())
}

func TestToOutbound_RoundTrip(t *testing.T) {
	cases := []model.Fields{
		model.VMess{
			Endpoint:  model.Endpoint{Server: "v.example", Port: 10086},
			ID:        "id",
			AlterID:   0,
			Transport: model.Transport{Network: "tcp"},
		},
		model.VLESS{
			Endpoint:  model.Endpoint{Server: "2001:db8::2", Port: 443},
			UUID:      "uuid",
			Transport: model.Transport{Network: "ws", Security: "tls", Path: "/p"},
		},
		model.Trojan{
			Endpoint:  model.Endpoint{Server: "t.example", Port: 443},
			Password:  "secret",
			Transport: model.Transport{Network: "tcp", Security: "tls"},
		},
	}
	for _, f := range cases {
		raw, ok := ToOutbound(model.Entry{Name: "x", Fields: f})
		require.True(t, ok, "%T", f)

		back, ok := FromOutbound(raw)
		require.True(t, ok, "%T", f)
		assert.Equal(t, f, back)
	}
}

func TestToOutbound_Passthrough(t *testing.T) {
	orig := json.RawMessage(`{"protocol":"shadowsocks","settings":{"servers":[{"address":"a","port":1}]}}`)
	raw, ok := ToOutbound(model.Entry{Name: "x", Fields: model.Opaque{Scheme: "shadowsocks"}, Outbound: orig})
	require.True(t, ok)
	assert.JSONEq(t, string(orig), string(raw))

	_, ok = ToOutbound(model.Entry{Name: "y", Fields: model.Opaque{Scheme: "shadowsocks"}})
	assert.False(t, ok)
}

func TestFromOutbound(t *testing.T) {
	f, ok := FromOutbound(json.RawMessage(`{"protocol":"trojan","settings":{"servers":[{"address":"h","port":"8443","password":"pw"}]}}`))
	require.True(t, ok)
	assert.Equal(t, model.Trojan{Endpoint: model.Endpoint{Server: "h", Port: 8443}, Password: "pw"}, f)

	f, ok = FromOutbound(json.RawMessage(`{"protocol":"wireguard"}`))
	require.True(t, ok)
	assert.Equal(t, model.Opaque{Scheme: "wireguard"}, f)

	_, ok = FromOutbound(json.RawMessage(`{"tag":"direct"}`))
	assert.False(t, ok)

	_, ok = FromOutbound(json.RawMessage(`not json`))
	assert.False(t, ok)
}

func TestOutboundExtra(t *testing.T) {
	raw := json.RawMessage(`{"protocol":"vless","settings":{"vnext":[{"users":[{"id":"u","flow":"xtls-rprx-vision"}]}]},
		"streamSettings":{"security":"reality","realitySettings":{"serverName":"r.example","fingerprint":"chrome","publicKey":"pk","shortId":"ab"}}}`)
	assert.Equal(t, []model.KV{
		{Key: "sni", Value: "r.example"},
		{Key: "fp", Value: "chrome"},
		{Key: "pbk", Value: "pk"},
		{Key: "sid", Value: "ab"},
		{Key: "flow", Value: "xtls-rprx-vision"},
	}, OutboundExtra(raw))
}
