// Package encode implements the reversible text-safe transform applied to
// every artifact: standard base64 over the UTF-8 bytes of the text.
package encode

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/submerge-go/internal/model"
)

type DecodeError struct {
	AppError model.AppError
	Cause    error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

var errInvalidUTF8 = errors.New("decoded bytes are not valid utf-8")

// Encode returns the standard base64 encoding of text.
func Encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

// Decode is the inverse of Encode. Whitespace is ignored and the url-safe and
// unpadded alphabets are accepted, since upstream subscriptions use all of
// them.
func Decode(s string) (string, error) {
	b, err := DecodeBytes(RemoveSpaceTabCRLF(StripUTF8BOM(s)))
	if err != nil {
		return "", newDecodeError("base64 解码失败", s, err)
	}
	if !utf8.Valid(b) {
		return "", newDecodeError("base64 解码结果不是合法 UTF-8", s, errInvalidUTF8)
	}
	return string(b), nil
}

// DecodeBytes tries the standard alphabet (with padding) first, then
// URL-safe, then both without padding.
func DecodeBytes(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func RemoveSpaceTabCRLF(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// PctEncode is RFC 3986 percent-encoding for query values, fragments and
// RFC 5987 header parameters. QueryEscape writes '+' for spaces; these use
// %20.
func PctEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func StripUTF8BOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}

// TruncateSnippet flattens s to one line of at most max bytes for error
// payloads.
func TruncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func newDecodeError(message, input string, cause error) error {
	return &DecodeError{
		AppError: model.AppError{
			Code:    "CORRUPT_ENCODING",
			Message: message,
			Stage:   "decode",
			Snippet: TruncateSnippet(input, 200),
		},
		Cause: cause,
	}
}
