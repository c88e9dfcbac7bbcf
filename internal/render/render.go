package render

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/submerge-go/internal/model"
)

type Target string

const (
	// TargetXray is a complete xray client configuration.
	TargetXray Target = "xray"
	// TargetLinks is a newline separated URI list.
	TargetLinks Target = "links"
)

// ParseTarget accepts the target names plus the output format names used by
// the CLI ("config" for xray).
func ParseTarget(s string) (Target, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xray", "config":
		return TargetXray, true
	case "links", "link", "list":
		return TargetLinks, true
	default:
		return "", false
	}
}

// Stats reports entries the target could not represent.
type Stats struct {
	Skipped int
}

type RenderError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// Render writes entries as target. The text is not yet base64 encoded.
func Render(target Target, entries []model.Entry) (string, Stats, error) {
	switch target {
	case TargetXray:
		return renderXray(entries)
	case TargetLinks:
		return renderLinks(entries)
	default:
		return "", Stats{}, &RenderError{
			AppError: model.AppError{
				Code:    "UNSUPPORTED_TARGET",
				Message: fmt.Sprintf("不支持的 target：%s", target),
				Stage:   "render",
				Hint:    "expected: xray, links",
			},
		}
	}
}
