package httpapi

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/submerge-go/internal/pipeline"
)

// Options controls HTTP API runtime behavior.
type Options struct {
	// ConvertTimeout is the hard upper bound for a single /sub request
	// (fetch + extract + rename + render + encode).
	ConvertTimeout time.Duration

	// Pipeline carries fetch settings, concurrency and the default target;
	// a request's format overrides the target.
	Pipeline pipeline.Options

	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.ConvertTimeout <= 0 {
		o.ConvertTimeout = 60 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	o.Pipeline.Logger = o.Logger
	return o
}
