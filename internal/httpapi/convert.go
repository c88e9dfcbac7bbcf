package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/submerge-go/internal/config"
	"github.com/John-Robertt/submerge-go/internal/model"
	"github.com/John-Robertt/submerge-go/internal/naming"
	"github.com/John-Robertt/submerge-go/internal/pipeline"
	"github.com/John-Robertt/submerge-go/internal/render"
)

const (
	modeAggregate = "aggregate"
	modeRename    = "rename"
	modeConvert   = "convert"
)

const (
	encodeBase64 = "base64"
	encodeRaw    = "raw"
)

// maxBodyBytes bounds the POST /api/convert body.
const maxBodyBytes = 1 << 20

type convertRequest struct {
	Mode     string
	Sources  []model.Source
	Names    []string
	Prefix   string
	Target   render.Target // empty: pipeline default for the shape
	Encode   string
	FileName string
}

type convertRequestJSON struct {
	Mode     string   `json:"mode"`
	Subs     []string `json:"subs"`
	Shape    string   `json:"shape"`
	Names    []string `json:"names"`
	Prefix   string   `json:"prefix"`
	Format   string   `json:"format"`
	Encode   string   `json:"encode"`
	FileName string   `json:"fileName"`
}

// rawFields are the loosely typed request fields shared by GET and POST.
type rawFields struct {
	Mode   string
	Subs   []string
	Shape  string
	Names  []string
	Prefix string
	Format string
	Encode string
}

func (s *server) handleSub(w http.ResponseWriter, r *http.Request) {
	req, err := parseConvertGET(r)
	if err != nil {
		s.writeErrorFromErr(w, err)
		return
	}
	s.serveConvert(w, r, req)
}

func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	req, err := parseConvertPOST(r)
	if err != nil {
		s.writeErrorFromErr(w, err)
		return
	}
	s.serveConvert(w, r, req)
}

func (s *server) serveConvert(w http.ResponseWriter, r *http.Request, req convertRequest) {
	base, err := attachmentBase(req)
	if err != nil {
		s.writeErrorFromErr(w, err)
		return
	}
	res, err := s.runConvert(r.Context(), req)
	if err != nil {
		s.writeErrorFromErr(w, err)
		return
	}

	out := res.Encoded
	if req.Encode == encodeRaw {
		out = res.Text
	}
	w.Header().Set("Content-Disposition", contentDispositionAttachment(attachmentName(base, req.Encode, res.Target)))
	w.Header().Set("Cache-Control", "no-store")
	WriteText(w, http.StatusOK, out)
}

func (s *server) runConvert(ctx context.Context, req convertRequest) (*pipeline.Result, error) {
	// Keep a hard upper bound so handlers don't hang forever if upstream misbehaves.
	ctx, cancel := context.WithTimeout(ctx, s.opt.ConvertTimeout)
	defer cancel()

	opt := s.opt.Pipeline
	if req.Target != "" {
		opt.Target = req.Target
	}

	switch req.Mode {
	case modeAggregate:
		return pipeline.Aggregate(ctx, req.Sources, opt)
	case modeRename:
		return pipeline.Rename(ctx, req.Sources[0], req.Names, opt)
	case modeConvert:
		return pipeline.Convert(ctx, req.Sources[0], req.Prefix, opt)
	default:
		return nil, requestError("INVALID_ARGUMENT", "不支持的 mode（仅支持 aggregate/rename/convert）", req.Mode)
	}
}

func parseConvertGET(r *http.Request) (convertRequest, error) {
	q := r.URL.Query()
	for key := range q {
		switch key {
		case "mode", "sub", "shape", "names", "prefix", "format", "encode", "fileName":
		default:
			return convertRequest{}, requestError("INVALID_ARGUMENT", fmt.Sprintf("不支持的 query 参数：%s", key), "")
		}
	}

	var f rawFields
	var err error
	if f.Mode, err = singleQuery(q, "mode", true); err != nil {
		return convertRequest{}, err
	}
	f.Subs = q["sub"]
	if f.Shape, err = singleQuery(q, "shape", false); err != nil {
		return convertRequest{}, err
	}
	names, err := singleQuery(q, "names", false)
	if err != nil {
		return convertRequest{}, err
	}
	f.Names = splitNames(names)
	if f.Prefix, err = singleQuery(q, "prefix", false); err != nil {
		return convertRequest{}, err
	}
	if f.Format, err = singleQuery(q, "format", false); err != nil {
		return convertRequest{}, err
	}
	if f.Encode, err = singleQuery(q, "encode", false); err != nil {
		return convertRequest{}, err
	}
	fileName, err := singleQuery(q, "fileName", false)
	if err != nil {
		return convertRequest{}, err
	}

	req, err := f.validate()
	if err != nil {
		return convertRequest{}, err
	}
	req.FileName = fileName
	return req, nil
}

func parseConvertPOST(r *http.Request) (convertRequest, error) {
	var body convertRequestJSON
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "JSON body 解析失败", err.Error())
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "JSON body 不允许多段", "")
	} else if !errors.Is(err, io.EOF) {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "JSON body 解析失败", err.Error())
	}

	names := make([]string, 0, len(body.Names))
	for _, n := range body.Names {
		names = append(names, naming.ParseNames(n)...)
	}
	f := rawFields{
		Mode:   body.Mode,
		Subs:   body.Subs,
		Shape:  body.Shape,
		Names:  names,
		Prefix: body.Prefix,
		Format: body.Format,
		Encode: body.Encode,
	}
	req, err := f.validate()
	if err != nil {
		return convertRequest{}, err
	}
	req.FileName = body.FileName
	return req, nil
}

func (f rawFields) validate() (convertRequest, error) {
	mode := strings.ToLower(strings.TrimSpace(f.Mode))
	var def model.Shape
	switch mode {
	case modeAggregate:
		def = model.ShapeConfig
	case modeRename:
		def = model.ShapeLinks
	case modeConvert:
		def = model.ShapeProxies
	default:
		return convertRequest{}, requestError("INVALID_ARGUMENT", "不支持的 mode（仅支持 aggregate/rename/convert）", f.Mode)
	}

	if s := strings.TrimSpace(f.Shape); s != "" {
		shape, ok := model.ParseShape(s)
		if !ok {
			return convertRequest{}, requestError("INVALID_ARGUMENT", "不支持的 shape（仅支持 config/proxies/links）", s)
		}
		def = shape
	}

	if len(f.Subs) == 0 {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "缺少 sub 参数", "expected: sub=<url> or sub=<shape>+<url>")
	}
	if mode != modeAggregate && len(f.Subs) != 1 {
		return convertRequest{}, requestError("INVALID_ARGUMENT", fmt.Sprintf("mode=%s 只接受一个 sub", mode), "")
	}
	sources := make([]model.Source, 0, len(f.Subs))
	for _, raw := range f.Subs {
		if strings.TrimSpace(raw) == "" {
			return convertRequest{}, requestError("INVALID_ARGUMENT", "sub 不能为空", "")
		}
		src, err := config.ParseSource(raw, def)
		if err != nil {
			return convertRequest{}, err
		}
		sources = append(sources, src)
	}

	req := convertRequest{Mode: mode, Sources: sources}

	switch mode {
	case modeRename:
		if len(f.Names) == 0 {
			return convertRequest{}, requestError("INVALID_ARGUMENT", "缺少 names 参数", "one name per line")
		}
		req.Names = f.Names
	case modeConvert:
		if strings.TrimSpace(f.Prefix) == "" {
			return convertRequest{}, requestError("INVALID_ARGUMENT", "缺少 prefix 参数", "")
		}
		req.Prefix = f.Prefix
	}
	if mode != modeRename && len(f.Names) > 0 {
		return convertRequest{}, requestError("INVALID_ARGUMENT", fmt.Sprintf("mode=%s 不支持 names", mode), "")
	}
	if mode != modeConvert && f.Prefix != "" {
		return convertRequest{}, requestError("INVALID_ARGUMENT", fmt.Sprintf("mode=%s 不支持 prefix", mode), "")
	}

	if s := strings.TrimSpace(f.Format); s != "" {
		t, ok := render.ParseTarget(s)
		if !ok {
			return convertRequest{}, requestError("INVALID_ARGUMENT", "不支持的 format（仅支持 xray/links）", s)
		}
		req.Target = t
	}

	req.Encode = strings.ToLower(strings.TrimSpace(f.Encode))
	if req.Encode == "" {
		req.Encode = encodeBase64
	}
	if req.Encode != encodeBase64 && req.Encode != encodeRaw {
		return convertRequest{}, requestError("INVALID_ARGUMENT", "不支持的 encode（仅支持 base64/raw）", f.Encode)
	}
	return req, nil
}

// splitNames reads a names query value. A value without real newlines may
// carry literal "\n" separators.
func splitNames(s string) []string {
	if !strings.Contains(s, "\n") {
		s = strings.ReplaceAll(s, `\n`, "\n")
	}
	return naming.ParseNames(s)
}

func singleQuery(q url.Values, key string, required bool) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		if required {
			return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("缺少 %s 参数", key), "")
		}
		return "", nil
	}
	if len(values) != 1 {
		return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("%s 参数只能出现一次", key), "")
	}
	return values[0], nil
}
