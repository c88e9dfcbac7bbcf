package sub

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/fetch"
	"github.com/John-Robertt/submerge-go/internal/model"
	"github.com/John-Robertt/submerge-go/internal/naming"
)

func jsonContent(s string) *fetch.Content {
	return &fetch.Content{URL: "https://example.com/sub", Text: s, HasJSON: true, JSON: gjson.Parse(s)}
}

func textContent(s string) *fetch.Content {
	return &fetch.Content{URL: "https://example.com/sub", Text: s}
}

func names(es []model.Entry) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Name)
	}
	return out
}

const configDoc = `[
	{"remarks": "DE Node", "outbounds": [{"protocol": "vless", "settings": {"vnext": [{"address": "de.example", "port": 443, "users": [{"id": "u1"}]}]}}, {"protocol": "freedom"}]},
	{"outbounds": [{"protocol": "trojan", "settings": {"servers": [{"address": "t.example", "port": 443, "password": "p"}]}}]},
	{"remarks": "no protocol", "outbounds": [{"tag": "x"}]},
	{"remarks": "empty", "outbounds": []},
	{"remarks": "DE Node", "outbounds": [{"protocol": "shadowsocks"}]}
]`

func TestExtract_Config(t *testing.T) {
	reg := naming.NewRegistry()
	es, st, err := Extract(jsonContent(configDoc), model.ShapeConfig, 1, reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"DE-Node", "Proxy-2-2", "DE-Node-1"}, names(es))
	assert.Equal(t, Stats{Extracted: 3, Dropped: 1}, st)

	assert.Equal(t, model.ProtocolVLESS, es[0].Protocol())
	assert.Equal(t, "u1", es[0].Identifier())
	assert.Equal(t, "de.example", gjson.GetBytes(es[0].Outbound, "settings.vnext.0.address").String())
	assert.Equal(t, model.Opaque{Scheme: "shadowsocks"}, es[2].Fields)
}

func TestExtract_ConfigSingleObject(t *testing.T) {
	es, _, err := Extract(jsonContent(`{"remarks":"solo","outbounds":[{"protocol":"vmess"}]}`), model.ShapeConfig, 0, naming.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, names(es))
}

func TestExtract_ConfigSchemaError(t *testing.T) {
	for _, doc := range []string{`"just a string"`, `42`} {
		_, _, err := Extract(jsonContent(doc), model.ShapeConfig, 0, naming.NewRegistry())
		var pe *ParseError
		require.True(t, errors.As(err, &pe), "doc %s", doc)
		assert.Equal(t, "SCHEMA_ERROR", pe.AppError.Code)
		assert.Equal(t, "https://example.com/sub", pe.AppError.URL)
	}

	_, _, err := Extract(textContent("[]"), model.ShapeConfig, 0, nil)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "SCHEMA_ERROR", pe.AppError.Code)
}

func TestExtract_Proxies(t *testing.T) {
	doc := `{"proxies": [
		{"name": "a", "type": "vless", "server": "s", "port": 443, "uuid": "u"},
		{"name": "b", "server": "s", "port": 443},
		{"type": "trojan", "server": "t", "port": 443, "password": "p"}
	]}`
	es, st, err := Extract(jsonContent(doc), model.ShapeProxies, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "Proxy-1-3"}, names(es))
	assert.Equal(t, Stats{Extracted: 2, Dropped: 1}, st)

	_, _, err = Extract(jsonContent(`{"nodes": []}`), model.ShapeProxies, 0, nil)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "SCHEMA_ERROR", pe.AppError.Code)
}

func TestExtract_LinksBase64(t *testing.T) {
	raw := strings.Join([]string{
		"# comment",
		"vless://u@s:443?security=tls#A",
		"",
		"not a link",
		"trojan://p@t:443",
		"vless://u2@s:443#A",
	}, "\r\n")
	es, st, err := Extract(textContent(encode.Encode(raw)), model.ShapeLinks, 2, naming.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "Proxy-3-3", "A-1"}, names(es))
	assert.Equal(t, Stats{Extracted: 3, Dropped: 1}, st)
}

func TestExtract_LinksRaw(t *testing.T) {
	es, _, err := Extract(textContent("\uFEFFvless://u@s:443#X\nss://abc@h:1#Y\n"), model.ShapeLinks, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, names(es))
	assert.Equal(t, model.ProtocolOther, es[1].Protocol())
}

func TestExtract_LinksCorrupt(t *testing.T) {
	_, _, err := Extract(textContent("%%% definitely not base64 %%%"), model.ShapeLinks, 0, nil)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "CORRUPT_ENCODING", pe.AppError.Code)
	assert.Equal(t, "extract", pe.AppError.Stage)
}

func TestExtract_LinksEmpty(t *testing.T) {
	es, st, err := Extract(textContent("  \n"), model.ShapeLinks, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, es)
	assert.Equal(t, Stats{}, st)
}

func TestExtract_LinksServedAsJSON(t *testing.T) {
	es, _, err := Extract(jsonContent(`{"proxies":[{"type":"trojan","server":"t","port":443,"password":"p","name":"J"}]}`), model.ShapeLinks, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"J"}, names(es))
}

func TestExtract_RegistrySpansSources(t *testing.T) {
	reg := naming.NewRegistry()
	a, _, err := Extract(jsonContent(`[{"remarks":"X","outbounds":[{"protocol":"vless"}]},{"remarks":"Y","outbounds":[{"protocol":"vless"}]}]`), model.ShapeConfig, 0, reg)
	require.NoError(t, err)
	b, _, err := Extract(jsonContent(`[{"remarks":"X","outbounds":[{"protocol":"trojan"}]},{"remarks":"Z","outbounds":[{"protocol":"trojan"}]}]`), model.ShapeConfig, 1, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y", "X-1", "Z"}, append(names(a), names(b)...))
}

func TestExtract_UnknownShape(t *testing.T) {
	_, _, err := Extract(textContent("x"), model.Shape("clash"), 0, nil)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "INVALID_ARGUMENT", pe.AppError.Code)
}
