package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/model"
)

const (
	configsA = `[
		{"remarks": "X", "outbounds": [{"protocol": "vless", "settings": {"vnext": [{"address": "a.example", "port": 443, "users": [{"id": "ua"}]}]}}]},
		{"remarks": "Y", "outbounds": [{"protocol": "vmess", "settings": {"vnext": [{"address": "y.example", "port": 443, "users": [{"id": "uy"}]}]}}]}
	]`
	configsB = `[
		{"remarks": "X", "outbounds": [{"protocol": "trojan", "settings": {"servers": [{"address": "b.example", "port": 443, "password": "p"}]}}]},
		{"remarks": "Z", "outbounds": [{"protocol": "trojan", "settings": {"servers": [{"address": "z.example", "port": 443, "password": "p"}]}}]}
	]`
	proxiesDoc = `{"proxies":[
		{"type":"vless","server":"s","port":443,"uuid":"u","tls":true,"network":"ws"},
		{"type":"trojan","server":"t","port":443,"password":"p"}
	]}`
)

var linksDoc = encode.Encode("vless://u1@s:443#a\nvless://u2@s:443#b\nvless://u3@s:443#c\n")

type upstream struct {
	*httptest.Server
	hits atomic.Int64
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	routes := map[string]string{
		"/a.json":      configsA,
		"/b.json":      configsB,
		"/proxies":     proxiesDoc,
		"/links":       linksDoc,
		"/not-a-array": `{"nodes": []}`,
	}
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(u.Close)
	return u
}

func quietOptions() Options {
	logger, _ := test.NewNullLogger()
	return Options{Logger: logger}
}

func doGET(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func doPOSTJSON(t *testing.T, h http.Handler, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func mustOK(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	return rr.Body.String()
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder, wantStatus int) model.AppError {
	t.Helper()
	if rr.Code != wantStatus {
		t.Fatalf("status=%d, want=%d body=%s", rr.Code, wantStatus, rr.Body.String())
	}
	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	return resp.Error
}

func httptestPOST(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(body))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
