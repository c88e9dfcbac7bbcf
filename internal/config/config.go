// Package config turns flags and environment variables, merged by viper,
// into validated settings for each command.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/John-Robertt/submerge-go/internal/fetch"
	"github.com/John-Robertt/submerge-go/internal/model"
	"github.com/John-Robertt/submerge-go/internal/naming"
	"github.com/John-Robertt/submerge-go/internal/pipeline"
	"github.com/John-Robertt/submerge-go/internal/render"
)

// Keys shared by flags and viper.
const (
	KeySubs        = "subs"
	KeySub         = "sub"
	KeyNames       = "names"
	KeyPrefix      = "prefix"
	KeyShape       = "shape"
	KeyFormat      = "format"
	KeyOutput      = "output"
	KeyTimeout     = "timeout"
	KeyRetries     = "retries"
	KeyConcurrency = "concurrency"
	KeyLogLevel    = "log-level"
	KeyListen      = "listen"
)

// envNames maps keys to the environment variables the scheduled jobs set.
var envNames = map[string]string{
	KeySubs:        "SUB_LINKS",
	KeySub:         "SUB_URL",
	KeyNames:       "NEW_NAMES",
	KeyPrefix:      "NAME_PREFIX",
	KeyShape:       "SUB_SHAPE",
	KeyFormat:      "OUTPUT_FORMAT",
	KeyOutput:      "OUTPUT_FILE",
	KeyTimeout:     "FETCH_TIMEOUT",
	KeyRetries:     "FETCH_RETRIES",
	KeyConcurrency: "FETCH_CONCURRENCY",
	KeyLogLevel:    "LOG_LEVEL",
	KeyListen:      "LISTEN_ADDR",
}

// Default output files.
const (
	DefaultAggregateOutput = "aggregated_sub.txt"
	DefaultRenameOutput    = "custom_sub.txt"
	DefaultConvertOutput   = "converted_sub.txt"
	DefaultListen          = "127.0.0.1:25500"
)

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

func newError(message, hint string, cause error) error {
	return &Error{
		AppError: model.AppError{
			Code:    "CONFIGURATION_ERROR",
			Message: message,
			Stage:   "config",
			Hint:    hint,
		},
		Cause: cause,
	}
}

// BindEnv binds every key to its environment variable.
func BindEnv(v *viper.Viper) error {
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// EnvName returns the environment variable bound to key.
func EnvName(key string) string { return envNames[key] }

// Run holds the settings every pipeline command shares.
type Run struct {
	Output   string
	Pipeline pipeline.Options
}

type Aggregate struct {
	Run
	Sources []model.Source
}

type Rename struct {
	Run
	Source model.Source
	Names  []string
}

type Convert struct {
	Run
	Source model.Source
	Prefix string
}

type Serve struct {
	Listen   string
	Pipeline pipeline.Options
}

func LoadAggregate(v *viper.Viper) (Aggregate, error) {
	run, err := loadRun(v, DefaultAggregateOutput, 10*time.Second)
	if err != nil {
		return Aggregate{}, err
	}
	shape, err := shapeOf(v, model.ShapeConfig)
	if err != nil {
		return Aggregate{}, err
	}
	list := stringList(v.Get(KeySubs))
	if len(list) == 0 {
		return Aggregate{}, newError("没有提供任何订阅地址", "set "+envNames[KeySubs]+" or --subs", nil)
	}
	sources, err := ParseSources(list, shape)
	if err != nil {
		return Aggregate{}, err
	}
	return Aggregate{Run: run, Sources: sources}, nil
}

func LoadRename(v *viper.Viper) (Rename, error) {
	run, err := loadRun(v, DefaultRenameOutput, 15*time.Second)
	if err != nil {
		return Rename{}, err
	}
	src, err := singleSource(v, model.ShapeLinks)
	if err != nil {
		return Rename{}, err
	}
	text := strings.TrimSpace(v.GetString(KeyNames))
	if text == "" {
		return Rename{}, newError("没有提供新名称列表", "set "+envNames[KeyNames]+" or --names", nil)
	}
	// A single-line value may carry literal "\n" separators from a shell.
	if !strings.Contains(text, "\n") {
		text = strings.ReplaceAll(text, `\n`, "\n")
	}
	return Rename{Run: run, Source: src, Names: naming.ParseNames(text)}, nil
}

func LoadConvert(v *viper.Viper) (Convert, error) {
	run, err := loadRun(v, DefaultConvertOutput, 15*time.Second)
	if err != nil {
		return Convert{}, err
	}
	src, err := singleSource(v, model.ShapeProxies)
	if err != nil {
		return Convert{}, err
	}
	prefix := v.GetString(KeyPrefix)
	if strings.TrimSpace(prefix) == "" {
		return Convert{}, newError("没有提供名称前缀", "set "+envNames[KeyPrefix]+" or --prefix", nil)
	}
	return Convert{Run: run, Source: src, Prefix: prefix}, nil
}

func LoadServe(v *viper.Viper) (Serve, error) {
	run, err := loadRun(v, "", 15*time.Second)
	if err != nil {
		return Serve{}, err
	}
	listen := strings.TrimSpace(v.GetString(KeyListen))
	if listen == "" {
		listen = DefaultListen
	}
	return Serve{Listen: listen, Pipeline: run.Pipeline}, nil
}

// LogLevel parses the configured level; empty means info.
func LogLevel(v *viper.Viper) (logrus.Level, error) {
	s := strings.TrimSpace(v.GetString(KeyLogLevel))
	if s == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return 0, newError(fmt.Sprintf("无效的日志级别：%q", s), "expected: debug, info, warn, error", err)
	}
	return lvl, nil
}

func loadRun(v *viper.Viper, defaultOutput string, defaultTimeout time.Duration) (Run, error) {
	timeout, err := durationValue(v, KeyTimeout, defaultTimeout)
	if err != nil {
		return Run{}, err
	}
	retries, err := intValue(v, KeyRetries, 0)
	if err != nil {
		return Run{}, err
	}
	concurrency, err := intValue(v, KeyConcurrency, pipeline.DefaultConcurrency)
	if err != nil {
		return Run{}, err
	}
	if concurrency < 1 {
		return Run{}, newError("并发数必须大于 0", "", nil)
	}

	var target render.Target
	if f := strings.TrimSpace(v.GetString(KeyFormat)); f != "" {
		t, ok := render.ParseTarget(f)
		if !ok {
			return Run{}, newError(fmt.Sprintf("不支持的输出格式：%q", f), "expected: config, links", nil)
		}
		target = t
	}

	output := strings.TrimSpace(v.GetString(KeyOutput))
	if output == "" {
		output = defaultOutput
	}
	return Run{
		Output: output,
		Pipeline: pipeline.Options{
			Fetch:       fetch.Options{Timeout: timeout, Retries: retries},
			Concurrency: concurrency,
			Target:      target,
		},
	}, nil
}

func singleSource(v *viper.Viper, def model.Shape) (model.Source, error) {
	shape, err := shapeOf(v, def)
	if err != nil {
		return model.Source{}, err
	}
	raw := strings.TrimSpace(v.GetString(KeySub))
	if raw == "" {
		return model.Source{}, newError("没有提供订阅地址", "set "+envNames[KeySub]+" or --sub", nil)
	}
	return ParseSource(raw, shape)
}

func shapeOf(v *viper.Viper, def model.Shape) (model.Shape, error) {
	s := strings.TrimSpace(v.GetString(KeyShape))
	if s == "" {
		return def, nil
	}
	shape, ok := model.ParseShape(s)
	if !ok {
		return "", newError(fmt.Sprintf("不支持的订阅格式：%q", s), "expected: config, proxies, links", nil)
	}
	return shape, nil
}

// ParseSources parses every entry of list with ParseSource.
func ParseSources(list []string, def model.Shape) ([]model.Source, error) {
	out := make([]model.Source, 0, len(list))
	for _, s := range list {
		src, err := ParseSource(s, def)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil, newError("没有提供任何订阅地址", "", nil)
	}
	return out, nil
}

// ParseSource reads "<url>" or "<shape>+<url>"; the prefix overrides def
// for this source only. Only http and https URLs are accepted.
func ParseSource(s string, def model.Shape) (model.Source, error) {
	s = strings.TrimSpace(s)
	shape := def
	if i := strings.IndexByte(s, '+'); i > 0 {
		if sh, ok := model.ParseShape(s[:i]); ok {
			shape = sh
			s = s[i+1:]
		}
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		// *url.Error repeats the raw input; keep only what went wrong.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return model.Source{}, newError(fmt.Sprintf("订阅地址不合法：%q", fetch.RedactURL(s)), "only http/https URLs are accepted", err)
	}
	return model.Source{URL: s, Shape: shape}, nil
}

// stringList flattens a flag slice or a comma separated environment value,
// trimming items and dropping empty ones.
func stringList(v any) []string {
	var parts []string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		parts = []string{x}
	case []string:
		parts = x
	case []any:
		for _, item := range x {
			parts = append(parts, fmt.Sprint(item))
		}
	default:
		parts = []string{fmt.Sprint(x)}
	}

	var out []string
	for _, p := range parts {
		for _, item := range strings.Split(p, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// durationValue accepts Go durations ("10s") and bare seconds ("10").
func durationValue(v *viper.Viper, key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		s = strconv.Itoa(n) + "s"
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, newError(fmt.Sprintf("无效的时长：%s=%q", key, s), "example: 10s", err)
	}
	return d, nil
}

func intValue(v *viper.Viper, key string, def int) (int, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, newError(fmt.Sprintf("无效的整数：%s=%q", key, s), "", err)
	}
	return n, nil
}
