package httpapi

import "net/http"

type server struct {
	opt     Options
	metrics *metrics
}

func newServer(opt Options) *server {
	return &server{opt: opt.withDefaults(), metrics: newMetrics()}
}

func NewMux() *http.ServeMux {
	return NewMuxWithOptions(Options{})
}

// NewMuxWithOptions returns the bare routes without the access log and
// request counters.
func NewMuxWithOptions(opt Options) *http.ServeMux {
	return newServer(opt).routes()
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.Handle("GET /metrics", s.metrics.handler())
	mux.HandleFunc("GET /sub", s.handleSub)
	mux.HandleFunc("POST /api/convert", s.handleConvert)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteText(w, http.StatusOK, "ok\n")
}
