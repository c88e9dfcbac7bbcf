package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/John-Robertt/submerge-go/internal/model"
	"github.com/John-Robertt/submerge-go/internal/naming"
)

func TestFromProxy_VLESSToLink(t *testing.T) {
	obj := gjson.Parse(`{"type":"vless","server":"s","port":443,"uuid":"u","tls":true,"network":"ws"}`)
	e, ok := FromProxy(obj)
	require.True(t, ok)

	named := naming.Ordinal([]model.Entry{e}, "Node-")
	link, ok := FormatLink(named[0])
	require.True(t, ok)
	assert.Equal(t, "vless://u@s:443?security=tls&type=ws#Node-1", link)
}

func TestFromProxy_Fields(t *testing.T) {
	e, ok := FromProxy(gjson.Parse(`{
		"name": "hk",
		"type": "vmess",
		"server": "hk.example",
		"port": "8080",
		"uuid": "id",
		"alterId": 2,
		"network": "ws",
		"tls": "true",
		"servername": "sni.example",
		"ws-opts": {"path": "/v", "headers": {"Host": "cdn.example"}},
		"cipher": "auto"
	}`))
	require.True(t, ok)
	assert.Equal(t, "hk", e.Name)
	assert.Equal(t, model.VMess{
		Endpoint:  model.Endpoint{Server: "hk.example", Port: 8080},
		ID:        "id",
		AlterID:   2,
		Transport: model.Transport{Network: "ws", Security: "tls", Host: "cdn.example", Path: "/v"},
	}, e.Fields)
	assert.Equal(t, []model.KV{{Key: "sni", Value: "sni.example"}}, e.Extra)
}

func TestFromProxy_TypeHandling(t *testing.T) {
	_, ok := FromProxy(gjson.Parse(`{"server":"h","port":1}`))
	assert.False(t, ok, "missing type")

	e, ok := FromProxy(gjson.Parse(`{"type":"Hysteria2","server":"h","port":443,"password":"p"}`))
	require.True(t, ok)
	assert.Equal(t, model.Opaque{Scheme: "hysteria2"}, e.Fields)

	_, ok = FormatLink(e.WithName("x"))
	assert.False(t, ok, "opaque proxy objects have no link form")
}

func TestFromProxy_TrojanSecurityField(t *testing.T) {
	e, ok := FromProxy(gjson.Parse(`{"type":"trojan","server":"t","port":443,"password":"pw","security":"reality","tls":false}`))
	require.True(t, ok)
	f := e.Fields.(model.Trojan)
	assert.Equal(t, "reality", f.Security)
	assert.Equal(t, "pw", f.Password)
}
