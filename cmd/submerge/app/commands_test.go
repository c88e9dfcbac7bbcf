package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/model"
	"github.com/John-Robertt/submerge-go/internal/output"
)

const (
	configsA = `[{"remarks": "X", "outbounds": [{"protocol": "vless", "settings": {"vnext": [{"address": "a.example", "port": 443, "users": [{"id": "ua"}]}]}}]}]`
	configsB = `[{"remarks": "X", "outbounds": [{"protocol": "trojan", "settings": {"servers": [{"address": "b.example", "port": 443, "password": "p"}]}}]}]`
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	routes := map[string]string{
		"/a":       configsA,
		"/b":       configsB,
		"/links":   encode.Encode("vless://u1@s:443#a\nvless://u2@s:443#b\n"),
		"/proxies": `{"proxies":[{"type":"trojan","server":"t","port":443,"password":"p"}]}`,
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func readArtifact(t *testing.T, path string) string {
	t.Helper()
	content, err := output.Read(path)
	require.NoError(t, err)
	text, err := encode.Decode(content)
	require.NoError(t, err)
	return text
}

func TestAggregate_Flags(t *testing.T) {
	up := newUpstream(t)
	out := filepath.Join(t.TempDir(), "aggregated_sub.txt")

	_, err := execute(t, "aggregate", "--subs", up.URL+"/a,"+up.URL+"/b", "--output", out)
	require.NoError(t, err)

	text := readArtifact(t, out)
	var tags []string
	for _, ob := range gjson.Get(text, "outbounds").Array() {
		tags = append(tags, ob.Get("tag").String())
	}
	assert.Equal(t, []string{"X", "X-1", "block", "select"}, tags)

	_, err = os.Stat(out + ".lock")
	assert.NoError(t, err, "lock file stays next to the artifact")
}

func TestAggregate_EnvAndFormat(t *testing.T) {
	up := newUpstream(t)
	out := filepath.Join(t.TempDir(), "out.txt")
	t.Setenv("SUB_LINKS", up.URL+"/a, "+up.URL+"/missing")
	t.Setenv("OUTPUT_FILE", out)
	t.Setenv("OUTPUT_FORMAT", "links")

	_, err := execute(t, "aggregate")
	require.NoError(t, err)
	assert.Equal(t, "vless://ua@a.example:443#X", readArtifact(t, out))
}

func TestAggregate_MissingSubs(t *testing.T) {
	t.Setenv("SUB_LINKS", "")
	_, err := execute(t, "aggregate", "--output", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.Contains(t, ErrorMessage(err), "SUB_LINKS")
}

func TestAggregate_AllSourcesFail(t *testing.T) {
	up := newUpstream(t)
	out := filepath.Join(t.TempDir(), "x.txt")
	_, err := execute(t, "aggregate", "--subs", up.URL+"/missing", "--output", out)
	require.Error(t, err)

	app, ok := appErrorOf(err)
	require.True(t, ok)
	assert.Equal(t, "EMPTY_RESULT", app.Code)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no artifact on failure")
}

func TestRename_Env(t *testing.T) {
	up := newUpstream(t)
	out := filepath.Join(t.TempDir(), "custom_sub.txt")
	t.Setenv("SUB_URL", up.URL+"/links")
	t.Setenv("NEW_NAMES", "Germany\nFrance\n\n")

	_, err := execute(t, "rename", "-o", out)
	require.NoError(t, err)
	assert.Equal(t, "vless://u1@s:443#Germany\nvless://u2@s:443#France", readArtifact(t, out))
}

func TestRename_FlagWinsOverEnv(t *testing.T) {
	up := newUpstream(t)
	out := filepath.Join(t.TempDir(), "custom_sub.txt")
	t.Setenv("SUB_URL", up.URL+"/links")
	t.Setenv("NEW_NAMES", "FromEnv")

	_, err := execute(t, "rename", "--names", `A\nB`, "-o", out)
	require.NoError(t, err)
	assert.Equal(t, "vless://u1@s:443#A\nvless://u2@s:443#B", readArtifact(t, out))
}

func TestConvert_Flags(t *testing.T) {
	up := newUpstream(t)
	out := filepath.Join(t.TempDir(), "converted_sub.txt")

	_, err := execute(t, "convert", "--sub", up.URL+"/proxies", "--prefix", "Node-", "-o", out)
	require.NoError(t, err)
	assert.Equal(t, "trojan://p@t:443#Node-1", readArtifact(t, out))
}

func TestConvert_MissingPrefix(t *testing.T) {
	t.Setenv("NAME_PREFIX", "")
	_, err := execute(t, "convert", "--sub", "https://example.com/p")
	require.Error(t, err)
	app, ok := appErrorOf(err)
	require.True(t, ok)
	assert.Equal(t, "CONFIGURATION_ERROR", app.Code)
}

func TestDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, output.Write(context.Background(), path, encode.Encode("vless://u@s:443#A")))

	stdout, err := execute(t, "decode", path)
	require.NoError(t, err)
	assert.Equal(t, "vless://u@s:443#A", stdout)

	text := "vless://u@s:443#A\nvless://u@s:443#B\n"
	require.NoError(t, output.Write(context.Background(), path, encode.Encode(text)))
	stdout, err = execute(t, "decode", path)
	require.NoError(t, err)
	assert.Equal(t, text, stdout)

	require.NoError(t, os.WriteFile(path, []byte("@@@"), 0o644))
	_, err = execute(t, "decode", path)
	app, ok := appErrorOf(err)
	require.True(t, ok)
	assert.Equal(t, "CORRUPT_ENCODING", app.Code)
}

func TestInvalidLogLevel(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"decode", "--log-level", "chatty", "x"})
	err := root.Execute()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(ErrorMessage(err), "无效的日志级别"), ErrorMessage(err))
}

func TestErrorMessage_PlainError(t *testing.T) {
	_, err := execute(t, "decode")
	require.Error(t, err)
	assert.Contains(t, ErrorMessage(err), "accepts 1 arg")
}

func TestErrorMessage_HidesToken(t *testing.T) {
	up := newUpstream(t)
	out := filepath.Join(t.TempDir(), "custom_sub.txt")

	_, err := execute(t, "rename", "--sub", up.URL+"/missing?token=s3cr3t", "--names", "A", "--output", out)
	require.Error(t, err)
	msg := ErrorMessage(err)
	assert.Contains(t, msg, "("+up.URL+"/missing)")
	assert.NotContains(t, msg, "s3cr3t")
}

func TestErrorMessage_KeepsOutputPath(t *testing.T) {
	err := &output.WriteError{AppError: model.AppError{Code: "OUTPUT_ERROR", Message: "写入失败", URL: "out/aggregated_sub.txt"}}
	assert.Equal(t, "写入失败 (out/aggregated_sub.txt)", ErrorMessage(err))
}
