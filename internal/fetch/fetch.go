package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/model"
)

type Kind int

const (
	KindLinks Kind = iota
	KindConfig
	KindProxies
)

// KindOf maps a source shape to the fetch kind that reads it.
func KindOf(shape model.Shape) Kind {
	switch shape {
	case model.ShapeConfig:
		return KindConfig
	case model.ShapeProxies:
		return KindProxies
	default:
		return KindLinks
	}
}

func (k Kind) stage() string {
	switch k {
	case KindLinks:
		return "fetch_links"
	case KindConfig:
		return "fetch_config"
	case KindProxies:
		return "fetch_proxies"
	default:
		// Unknown kind is a programmer error; still return something stable.
		return "fetch"
	}
}

func (k Kind) defaultMaxBytes() int64 {
	switch k {
	case KindLinks:
		return 5 * 1024 * 1024
	case KindConfig:
		return 20 * 1024 * 1024
	case KindProxies:
		return 10 * 1024 * 1024
	default:
		return 1 * 1024 * 1024
	}
}

func (k Kind) expectsJSON() bool {
	return k == KindConfig || k == KindProxies
}

const UserAgent = "submerge-go/1.0"

type Options struct {
	Timeout      time.Duration // default 15s
	MaxBytes     int64         // default per kind
	MaxRedirects int           // default 5
	Retries      int           // extra attempts for transient failures; default 0

	// Client overrides the HTTP client (tests). Timeout and redirect policy
	// are still applied on a copy.
	Client *http.Client
}

func (o Options) withDefaults(kind Kind) Options {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.MaxRedirects == 0 {
		o.MaxRedirects = 5
	}
	if o.MaxBytes == 0 {
		o.MaxBytes = kind.defaultMaxBytes()
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	return o
}

// Reason classifies a FetchError so callers can tell transport problems from
// bad upstream content.
type Reason string

const (
	ReasonInvalid Reason = "invalid"
	ReasonNetwork Reason = "network"
	ReasonStatus  Reason = "status"
	ReasonDecode  Reason = "decode"
)

type FetchError struct {
	Status   int // HTTP status this error maps to when served by the API
	Reason   Reason
	AppError model.AppError
	Cause    error

	// UpstreamStatus is the status code returned by the source (ReasonStatus).
	UpstreamStatus int
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

func (e *FetchError) transient() bool {
	if e.Reason == ReasonNetwork {
		return true
	}
	if e.Reason != ReasonStatus {
		return false
	}
	return e.UpstreamStatus >= 500 || e.UpstreamStatus == http.StatusTooManyRequests
}

var (
	errTooManyRedirects   = errors.New("too many redirects")
	errRedirectBadScheme  = errors.New("redirect target scheme is not http/https")
	errInvalidURLOrScheme = errors.New("invalid url or scheme")
)

// Content is the raw payload of one source. JSON is populated when HasJSON
// is true: the shape expected JSON, or the server announced a JSON content
// type and the body parsed.
type Content struct {
	URL         string
	Text        string
	ContentType string
	HasJSON     bool
	JSON        gjson.Result
}

func Fetch(ctx context.Context, src model.Source, opt Options) (*Content, error) {
	return FetchWithKind(ctx, KindOf(src.Shape), src.URL, opt)
}

// FetchWithKind downloads rawURL, retrying transient failures opt.Retries
// times with exponential backoff.
func FetchWithKind(ctx context.Context, kind Kind, rawURL string, opt Options) (*Content, error) {
	opt = opt.withDefaults(kind)

	op := func() (*Content, error) {
		c, err := fetchOnce(ctx, kind, rawURL, opt)
		if err == nil {
			return c, nil
		}
		var fe *FetchError
		if errors.As(err, &fe) && fe.transient() {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(opt.Retries+1)),
	)
}

func fetchOnce(ctx context.Context, kind Kind, rawURL string, opt Options) (*Content, error) {
	stage := kind.stage()
	maxBytes := opt.MaxBytes
	if maxBytes <= 0 {
		return nil, &FetchError{
			Status: http.StatusBadRequest,
			Reason: ReasonInvalid,
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "响应大小上限必须大于 0",
				Stage:   stage,
				URL:     rawURL,
			},
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &FetchError{
			Status: http.StatusBadRequest,
			Reason: ReasonInvalid,
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "仅允许 http/https URL",
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: errors.Join(errInvalidURLOrScheme, redactCause(err)),
		}
	}

	client := &http.Client{Transport: http.DefaultTransport}
	if opt.Client != nil {
		c := *opt.Client
		client = &c
	}
	client.Timeout = opt.Timeout
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		// 1st redirect => len(via)==1, 5th redirect => len(via)==5.
		if len(via) > opt.MaxRedirects {
			return errTooManyRedirects
		}
		if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
			return errRedirectBadScheme
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{
			Status: http.StatusBadRequest,
			Reason: ReasonInvalid,
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "请求 URL 不合法",
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: redactCause(err),
		}
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, transportError(stage, rawURL, opt.MaxRedirects, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			Status:         http.StatusBadGateway,
			Reason:         ReasonStatus,
			UpstreamStatus: resp.StatusCode,
			AppError: model.AppError{
				Code:    "FETCH_STATUS",
				Message: fmt.Sprintf("上游返回非 2xx 状态码：%d", resp.StatusCode),
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: fmt.Errorf("upstream status %d", resp.StatusCode),
		}
	}

	// Read at most maxBytes+1 to detect overflow deterministically.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, timeoutError(stage, rawURL, err)
		}
		return nil, &FetchError{
			Status: http.StatusBadGateway,
			Reason: ReasonNetwork,
			AppError: model.AppError{
				Code:    "FETCH_FAILED",
				Message: "读取上游响应失败",
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: err,
		}
	}
	if int64(len(body)) > maxBytes {
		return nil, &FetchError{
			Status: http.StatusUnprocessableEntity,
			Reason: ReasonDecode,
			AppError: model.AppError{
				Code:    "TOO_LARGE",
				Message: fmt.Sprintf("远程资源过大（>%d bytes）", maxBytes),
				Stage:   stage,
				URL:     rawURL,
			},
		}
	}
	if !utf8.Valid(body) {
		return nil, &FetchError{
			Status: http.StatusUnprocessableEntity,
			Reason: ReasonDecode,
			AppError: model.AppError{
				Code:    "FETCH_INVALID_UTF8",
				Message: "远程资源不是合法 UTF-8 文本",
				Stage:   stage,
				URL:     rawURL,
			},
		}
	}

	content := &Content{
		URL:         rawURL,
		Text:        encode.StripUTF8BOM(string(body)),
		ContentType: resp.Header.Get("Content-Type"),
	}

	if !kind.expectsJSON() {
		if isJSONContentType(content.ContentType) {
			if doc, err := parseJSON(content.Text); err == nil {
				content.HasJSON = true
				content.JSON = doc
			}
		}
		return content, nil
	}

	doc, err := parseJSON(content.Text)
	if err != nil && kind == KindProxies {
		doc, err = parseYAML(content.Text)
	}
	if err != nil {
		return nil, &FetchError{
			Status: http.StatusUnprocessableEntity,
			Reason: ReasonDecode,
			AppError: model.AppError{
				Code:    "FETCH_DECODE_ERROR",
				Message: "远程资源不是合法 JSON",
				Stage:   stage,
				URL:     rawURL,
				Snippet: encode.TruncateSnippet(content.Text, 200),
			},
			Cause: err,
		}
	}
	content.HasJSON = true
	content.JSON = doc
	return content, nil
}

func transportError(stage, rawURL string, maxRedirects int, err error) error {
	err = redactCause(err)

	// CheckRedirect sentinel errors.
	if errors.Is(err, errTooManyRedirects) {
		return &FetchError{
			Status: http.StatusBadGateway,
			Reason: ReasonNetwork,
			AppError: model.AppError{
				Code:    "FETCH_FAILED",
				Message: fmt.Sprintf("重定向次数超过上限（>%d）", maxRedirects),
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: err,
		}
	}
	if errors.Is(err, errRedirectBadScheme) {
		return &FetchError{
			Status: http.StatusBadRequest,
			Reason: ReasonInvalid,
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "重定向目标仅允许 http/https",
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: err,
		}
	}

	// Timeout detection: Go may wrap errors (e.g. *url.Error).
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return timeoutError(stage, rawURL, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(stage, rawURL, err)
	}

	return &FetchError{
		Status: http.StatusBadGateway,
		Reason: ReasonNetwork,
		AppError: model.AppError{
			Code:    "FETCH_FAILED",
			Message: "拉取远程资源失败",
			Stage:   stage,
			URL:     rawURL,
		},
		Cause: err,
	}
}

func timeoutError(stage, rawURL string, err error) error {
	return &FetchError{
		Status: http.StatusGatewayTimeout,
		Reason: ReasonNetwork,
		AppError: model.AppError{
			Code:    "FETCH_TIMEOUT",
			Message: "拉取远程资源超时",
			Stage:   stage,
			URL:     rawURL,
		},
		Cause: err,
	}
}

// RedactURL keeps scheme, host and path of an absolute URL; subscription
// URLs often carry tokens in the query or userinfo. Text that is not a URL,
// such as a file path, comes back unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if strings.Contains(raw, "://") {
			return "<invalid url>"
		}
		return raw
	}
	return u.Scheme + "://" + u.Host + u.Path
}

// redactCause rewrites the URL net/http embeds in its error text, so
// logging a FetchError never prints the subscription token.
func redactCause(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: RedactURL(ue.URL), Err: ue.Err}
}

var errInvalidJSON = errors.New("invalid json")

// parseJSON accepts JSON with comments and trailing commas, which hand
// maintained config subscriptions tend to contain.
func parseJSON(text string) (gjson.Result, error) {
	b := jsonc.ToJSON([]byte(strings.TrimSpace(text)))
	if len(b) == 0 || !gjson.ValidBytes(b) {
		return gjson.Result{}, errInvalidJSON
	}
	return gjson.ParseBytes(b), nil
}

// parseYAML reads clash style "proxies:" documents and re-expresses them as
// JSON so the extractor sees one representation.
func parseYAML(text string) (gjson.Result, error) {
	var v any
	if err := yaml.Unmarshal([]byte(text), &v); err != nil {
		return gjson.Result{}, err
	}
	if _, ok := v.(map[string]any); !ok {
		return gjson.Result{}, errors.New("yaml document is not a mapping")
	}
	b, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(b), nil
}

// normalizeYAML converts map[any]any nodes (non-string keys) into
// map[string]any so encoding/json can marshal them.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}

func isJSONContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
