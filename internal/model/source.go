package model

import "strings"

// Shape tells the extractor how a subscription source is laid out.
type Shape string

const (
	// ShapeConfig is a JSON array of full client configurations; each element
	// contributes outbounds[0].
	ShapeConfig Shape = "config"
	// ShapeProxies is a JSON (or YAML) document with a "proxies" list of
	// structured proxy objects.
	ShapeProxies Shape = "proxies"
	// ShapeLinks is a base64 encoded, newline separated URI list.
	ShapeLinks Shape = "links"
)

func ParseShape(s string) (Shape, bool) {
	switch Shape(strings.ToLower(strings.TrimSpace(s))) {
	case ShapeConfig:
		return ShapeConfig, true
	case ShapeProxies:
		return ShapeProxies, true
	case ShapeLinks:
		return ShapeLinks, true
	default:
		return "", false
	}
}

// ExpectsJSON reports whether content of this shape must decode as JSON.
func (s Shape) ExpectsJSON() bool {
	return s == ShapeConfig || s == ShapeProxies
}

// Source is one subscription input.
type Source struct {
	URL   string
	Shape Shape
}
