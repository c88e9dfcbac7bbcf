// Package pipeline runs the three modes end to end: fetch every source,
// extract and name entries, render the target and apply the text encoding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/fetch"
	"github.com/John-Robertt/submerge-go/internal/model"
	"github.com/John-Robertt/submerge-go/internal/naming"
	"github.com/John-Robertt/submerge-go/internal/render"
	"github.com/John-Robertt/submerge-go/internal/sub"
)

const DefaultConcurrency = 4

type Options struct {
	Fetch fetch.Options
	// Concurrency bounds parallel fetches. Extraction is always sequential.
	Concurrency int
	// Target overrides the output; by default config sources render as an
	// xray configuration and everything else as links.
	Target render.Target
	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

func (o Options) target(shape model.Shape) render.Target {
	if o.Target != "" {
		return o.Target
	}
	if shape == model.ShapeConfig {
		return render.TargetXray
	}
	return render.TargetLinks
}

type SourceFailure struct {
	Source model.Source
	Err    error
}

// Report is the diagnostic summary of one run.
type Report struct {
	Sources   int
	Succeeded int
	Failures  []SourceFailure
	// Dropped counts candidates removed during extraction (no protocol,
	// unparsable line); Skipped counts entries the target could not carry.
	Dropped int
	Skipped int
}

type Result struct {
	Entries []model.Entry
	Target  render.Target
	// Text is the rendered artifact before encoding; Encoded is what gets
	// written out.
	Text    string
	Encoded string
	Report  Report
}

type Error struct {
	AppError model.AppError
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func configError(message, hint string) error {
	return &Error{
		AppError: model.AppError{
			Code:    "CONFIGURATION_ERROR",
			Message: message,
			Stage:   "config",
			Hint:    hint,
		},
	}
}

func emptyResult(failures []SourceFailure) error {
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, f.Err)
	}
	return &Error{
		AppError: model.AppError{
			Code:    "EMPTY_RESULT",
			Message: "没有任何可用节点",
			Stage:   "pipeline",
		},
		Cause: errors.Join(errs...),
	}
}

// Aggregate merges every source into one artifact. A source that fails to
// fetch or parse is skipped and reported; the run only fails when nothing
// survives.
func Aggregate(ctx context.Context, sources []model.Source, opt Options) (*Result, error) {
	opt = opt.withDefaults()
	if len(sources) == 0 {
		return nil, configError("没有提供任何订阅地址", "set SUB_LINKS or --subs")
	}
	for _, src := range sources {
		if strings.TrimSpace(src.URL) == "" {
			return nil, configError("订阅地址不能为空", "")
		}
	}

	contents, fetchErrs := fetchAll(ctx, sources, opt)

	rep := Report{Sources: len(sources)}
	reg := naming.NewRegistry()
	var entries []model.Entry
	for i, src := range sources {
		log := opt.Logger.WithField("url", fetch.RedactURL(src.URL))
		if err := fetchErrs[i]; err != nil {
			log.WithError(err).Warn("source skipped: fetch failed")
			rep.Failures = append(rep.Failures, SourceFailure{Source: src, Err: err})
			continue
		}
		es, st, err := sub.Extract(contents[i], src.Shape, i, reg)
		if err != nil {
			log.WithError(err).Warn("source skipped: unreadable content")
			rep.Failures = append(rep.Failures, SourceFailure{Source: src, Err: err})
			continue
		}
		log.WithFields(logrus.Fields{"entries": st.Extracted, "dropped": st.Dropped}).Info("source read")
		rep.Succeeded++
		rep.Dropped += st.Dropped
		entries = append(entries, es...)
	}

	if len(entries) == 0 {
		return nil, emptyResult(rep.Failures)
	}
	return finish(entries, opt.target(commonShape(sources)), rep, opt.Logger)
}

// Rename fetches one link source and renames its entries cyclically from
// names.
func Rename(ctx context.Context, source model.Source, names []string, opt Options) (*Result, error) {
	opt = opt.withDefaults()
	if strings.TrimSpace(source.URL) == "" {
		return nil, configError("订阅地址不能为空", "set SUB_URL or --sub")
	}
	if _, err := naming.Rename(nil, names); err != nil {
		return nil, err
	}

	entries, rep, err := readOne(ctx, source, opt)
	if err != nil {
		return nil, err
	}
	renamed, err := naming.Rename(entries, names)
	if err != nil {
		return nil, err
	}
	return finish(renamed, opt.target(source.Shape), rep, opt.Logger)
}

// Convert fetches one source (typically a proxy-object list) and names its
// entries prefix1, prefix2, ... in input order.
func Convert(ctx context.Context, source model.Source, prefix string, opt Options) (*Result, error) {
	opt = opt.withDefaults()
	if strings.TrimSpace(source.URL) == "" {
		return nil, configError("订阅地址不能为空", "set SUB_URL or --sub")
	}
	if strings.TrimSpace(prefix) == "" {
		return nil, configError("名称前缀不能为空", "set NAME_PREFIX or --prefix")
	}

	entries, rep, err := readOne(ctx, source, opt)
	if err != nil {
		return nil, err
	}
	return finish(naming.Ordinal(entries, prefix), opt.target(source.Shape), rep, opt.Logger)
}

// readOne fetches and extracts a single source; its errors are fatal.
func readOne(ctx context.Context, source model.Source, opt Options) ([]model.Entry, Report, error) {
	rep := Report{Sources: 1}
	log := opt.Logger.WithField("url", fetch.RedactURL(source.URL))

	c, err := fetch.Fetch(ctx, source, opt.Fetch)
	if err != nil {
		return nil, rep, err
	}
	entries, st, err := sub.Extract(c, source.Shape, 0, nil)
	if err != nil {
		return nil, rep, err
	}
	log.WithFields(logrus.Fields{"entries": st.Extracted, "dropped": st.Dropped}).Info("source read")
	rep.Succeeded = 1
	rep.Dropped = st.Dropped
	if len(entries) == 0 {
		return nil, rep, emptyResult(nil)
	}
	return entries, rep, nil
}

func finish(entries []model.Entry, target render.Target, rep Report, log logrus.FieldLogger) (*Result, error) {
	text, st, err := render.Render(target, entries)
	if err != nil {
		return nil, err
	}
	rep.Skipped = st.Skipped
	if st.Skipped >= len(entries) {
		return nil, emptyResult(rep.Failures)
	}
	log.WithFields(logrus.Fields{
		"target":    target,
		"entries":   len(entries) - st.Skipped,
		"skipped":   st.Skipped,
		"succeeded": rep.Succeeded,
		"sources":   rep.Sources,
	}).Info("artifact rendered")
	return &Result{
		Entries: entries,
		Target:  target,
		Text:    text,
		Encoded: encode.Encode(text),
		Report:  rep,
	}, nil
}

// fetchAll downloads every source with at most opt.Concurrency requests in
// flight. Identical sources are fetched once and share the result.
func fetchAll(ctx context.Context, sources []model.Source, opt Options) ([]*fetch.Content, []error) {
	contents := make([]*fetch.Content, len(sources))
	errs := make([]error, len(sources))

	first := make(map[model.Source]int, len(sources))
	var g errgroup.Group
	g.SetLimit(opt.Concurrency)
	for i, src := range sources {
		if _, dup := first[src]; dup {
			continue
		}
		first[src] = i
		g.Go(func() error {
			opt.Logger.WithField("url", fetch.RedactURL(src.URL)).Debug("fetching source")
			contents[i], errs[i] = fetch.Fetch(ctx, src, opt.Fetch)
			return nil
		})
	}
	_ = g.Wait()

	for i, src := range sources {
		if j := first[src]; j != i {
			contents[i], errs[i] = contents[j], errs[j]
		}
	}
	return contents, errs
}

// commonShape is the shape shared by all sources, or "" when they differ.
func commonShape(sources []model.Source) model.Shape {
	shape := sources[0].Shape
	for _, s := range sources[1:] {
		if s.Shape != shape {
			return ""
		}
	}
	return shape
}
