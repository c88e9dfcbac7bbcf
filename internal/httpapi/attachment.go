package httpapi

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/render"
)

// Default artifact names, matching the files the CLI writes.
var defaultBaseNames = map[string]string{
	modeAggregate: "aggregated_sub",
	modeRename:    "custom_sub",
	modeConvert:   "converted_sub",
}

// attachmentBase validates fileName (or picks the mode default) before any
// upstream is fetched.
func attachmentBase(req convertRequest) (string, error) {
	base := strings.TrimSpace(req.FileName)
	if base == "" {
		return defaultBaseNames[req.Mode], nil
	}
	if strings.ContainsAny(base, "\r\n\x00") {
		return "", requestError("INVALID_ARGUMENT", "fileName 含有非法控制字符", "")
	}
	if strings.Contains(base, "/") || strings.Contains(base, "\\") {
		return "", requestError("INVALID_ARGUMENT", "fileName 不允许包含路径分隔符", "")
	}
	if len(base) > 200 {
		return "", requestError("INVALID_ARGUMENT", "fileName 过长", "max=200 bytes")
	}
	return base, nil
}

// attachmentName adds an extension when base has none: base64 artifacts are
// text, a raw xray config is JSON.
func attachmentName(base, encode string, target render.Target) string {
	if hasExt(base) {
		return base
	}
	if encode == encodeRaw && target == render.TargetXray {
		return base + ".json"
	}
	return base + ".txt"
}

func hasExt(name string) bool {
	i := strings.LastIndexByte(name, '.')
	return i > 0 && i < len(name)-1
}

func contentDispositionAttachment(filename string) string {
	// RFC 6266 + RFC 5987.
	escaped := strings.ReplaceAll(filename, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")

	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", escaped, encode.PctEncode(filename))
}
