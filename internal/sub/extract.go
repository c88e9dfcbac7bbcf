// Package sub turns the raw content of one subscription source into ordered
// entries.
package sub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/John-Robertt/submerge-go/internal/convert"
	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/fetch"
	"github.com/John-Robertt/submerge-go/internal/model"
	"github.com/John-Robertt/submerge-go/internal/naming"
)

const stageExtract = "extract"

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Stats counts what one source contributed. Dropped covers candidates
// without a protocol and lines that are not links.
type Stats struct {
	Extracted int
	Dropped   int
}

// Extract reads c as shape. sourceIndex is the 0-based position of the
// source in the run and feeds placeholder names. When reg is non-nil every
// entry name is made unique through it; with a nil registry names are left
// as found (rename and prefix modes overwrite them anyway).
func Extract(c *fetch.Content, shape model.Shape, sourceIndex int, reg *naming.Registry) ([]model.Entry, Stats, error) {
	if c == nil {
		return nil, Stats{}, errors.New("nil content")
	}
	x := extractor{url: c.URL, source: sourceIndex, reg: reg}

	switch shape {
	case model.ShapeConfig:
		if !c.HasJSON {
			return nil, Stats{}, x.schemaError("配置订阅不是 JSON", "", nil)
		}
		return x.configs(c.JSON)
	case model.ShapeProxies:
		if !c.HasJSON {
			return nil, Stats{}, x.schemaError("节点列表订阅不是 JSON/YAML", "", nil)
		}
		return x.proxies(c.JSON)
	case model.ShapeLinks:
		// A link source served as JSON is read by its structure.
		if c.HasJSON {
			if c.JSON.Get("proxies").IsArray() {
				return x.proxies(c.JSON)
			}
			if c.JSON.IsArray() {
				return x.configs(c.JSON)
			}
		}
		return x.links(c.Text)
	default:
		return nil, Stats{}, &ParseError{
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: fmt.Sprintf("未知的订阅格式：%q", shape),
				Stage:   stageExtract,
				URL:     c.URL,
				Hint:    "expected: config, proxies, links",
			},
		}
	}
}

type extractor struct {
	url    string
	source int
	reg    *naming.Registry
	stats  Stats
}

func (x *extractor) name(candidate string, index int) string {
	if candidate == "" {
		candidate = naming.Placeholder(x.source, index)
	}
	if x.reg == nil {
		return candidate
	}
	return x.reg.Assign(candidate)
}

func (x *extractor) configs(doc gjson.Result) ([]model.Entry, Stats, error) {
	var elems []gjson.Result
	switch {
	case doc.IsArray():
		elems = doc.Array()
	case doc.IsObject():
		elems = []gjson.Result{doc}
	default:
		return nil, Stats{}, x.schemaError("配置订阅必须是 JSON 数组", encode.TruncateSnippet(doc.Raw, 200), nil)
	}

	out := make([]model.Entry, 0, len(elems))
	for j, el := range elems {
		ob := el.Get("outbounds.0")
		if !ob.IsObject() {
			continue
		}
		raw := json.RawMessage(ob.Raw)
		fields, ok := convert.FromOutbound(raw)
		if !ok {
			x.stats.Dropped++
			continue
		}
		out = append(out, model.Entry{
			Name:     x.name(naming.Remark(el.Get("remarks").String()), j),
			Fields:   fields,
			Extra:    convert.OutboundExtra(raw),
			Outbound: raw,
		})
	}
	x.stats.Extracted = len(out)
	return out, x.stats, nil
}

func (x *extractor) proxies(doc gjson.Result) ([]model.Entry, Stats, error) {
	list := doc.Get("proxies")
	if !list.IsArray() {
		return nil, Stats{}, x.schemaError("缺少 proxies 列表", encode.TruncateSnippet(doc.Raw, 200), nil)
	}

	elems := list.Array()
	out := make([]model.Entry, 0, len(elems))
	for j, el := range elems {
		e, ok := convert.FromProxy(el)
		if !ok {
			x.stats.Dropped++
			continue
		}
		e.Name = x.name(e.Name, j)
		out = append(out, e)
	}
	x.stats.Extracted = len(out)
	return out, x.stats, nil
}

func (x *extractor) links(text string) ([]model.Entry, Stats, error) {
	s := strings.TrimSpace(encode.StripUTF8BOM(text))
	if s == "" {
		return nil, x.stats, nil
	}
	// Raw link lists are accepted as is; everything else must be base64.
	if !strings.Contains(s, "://") {
		decoded, err := encode.Decode(s)
		if err != nil {
			var de *encode.DecodeError
			if errors.As(err, &de) {
				de.AppError.Stage = stageExtract
				de.AppError.URL = x.url
				return nil, Stats{}, &ParseError{AppError: de.AppError, Cause: de.Cause}
			}
			return nil, Stats{}, err
		}
		s = encode.StripUTF8BOM(decoded)
	}

	lines := strings.Split(s, "\n")
	out := make([]model.Entry, 0, len(lines))
	n := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := n
		n++
		e, ok := convert.ParseLink(line)
		if !ok {
			x.stats.Dropped++
			continue
		}
		e.Name = x.name(e.Name, idx)
		out = append(out, e)
	}
	x.stats.Extracted = len(out)
	return out, x.stats, nil
}

func (x *extractor) schemaError(message, snippet string, cause error) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    "SCHEMA_ERROR",
			Message: message,
			Stage:   stageExtract,
			URL:     x.url,
			Snippet: snippet,
		},
		Cause: cause,
	}
}
