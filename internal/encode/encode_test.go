package encode

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	docs := []string{
		"",
		"vless://u@s:443?security=tls&type=ws#A\ntrojan://p@h:443#B",
		"{\n    \"outbounds\": []\n}",
		"名称 🚀 Ünïcode",
		"line with trailing newline\n",
	}
	for _, doc := range docs {
		got, err := Decode(Encode(doc))
		require.NoError(t, err, "doc=%q", doc)
		assert.Equal(t, doc, got)
	}
}

func TestDecode_AcceptsVariants(t *testing.T) {
	text := "vmess://abc?d=e>f"
	raw := []byte(text)

	inputs := map[string]string{
		"std":     base64.StdEncoding.EncodeToString(raw),
		"url":     base64.URLEncoding.EncodeToString(raw),
		"raw-std": base64.RawStdEncoding.EncodeToString(raw),
		"raw-url": base64.RawURLEncoding.EncodeToString(raw),
		"wrapped": "\uFEFF" + base64.StdEncoding.EncodeToString(raw)[:8] + "\r\n" + base64.StdEncoding.EncodeToString(raw)[8:] + "\n",
	}
	for name, in := range inputs {
		got, err := Decode(in)
		require.NoError(t, err, name)
		assert.Equal(t, text, got, name)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	cases := []string{
		"!!!not base64!!!",
		base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd}),
	}
	for _, in := range cases {
		_, err := Decode(in)
		var de *DecodeError
		require.True(t, errors.As(err, &de), "input=%q err=%v", in, err)
		assert.Equal(t, "CORRUPT_ENCODING", de.AppError.Code)
		assert.Equal(t, "decode", de.AppError.Stage)
	}
}

func TestTruncateSnippet(t *testing.T) {
	assert.Equal(t, "abc", TruncateSnippet("a\r\nb\nc", 10))
	assert.Equal(t, "ab", TruncateSnippet("abcdef", 2))
	assert.Equal(t, "", TruncateSnippet("abc", 0))
}

func TestPctEncode(t *testing.T) {
	assert.Equal(t, "Node%20A%2BB%2F1", PctEncode("Node A+B/1"))
	assert.Equal(t, "%E6%97%A5%E6%9C%AC", PctEncode("日本"))
	assert.Equal(t, "", PctEncode(""))
}
