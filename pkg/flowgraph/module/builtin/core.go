package builtin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/template"
)

type core struct{}

// Core returns the core module.
func Core() module.Module { return core{} }

func (core) Name() string       { return "core" }
func (core) Requires() []string { return nil }

func (core) Configure(_ *config.Node, s *module.Setup) error {
	s.Operation("put", module.Op(newPut))
	s.Operation("copy", module.Op(newCopy))
	s.Operation("delete", module.Op(newDelete))
	s.Operation("log", module.Op(newLog))
	s.Operation("sum", module.Op(newSum))
	s.Operation("sleep", module.AsyncOp(newSleep))
	s.Operation("fail", module.Op(newFail))
	s.Operation("route", module.Router(newRoute))
	s.Operation("switch", module.Router(newSwitch))
	s.Operation("format", module.Op(newFormat))
	return nil
}

type putConfig struct {
	Values map[string]any `yaml:"values"`
}

func (c putConfig) Validate() error {
	if len(c.Values) == 0 {
		return errors.New("values is required")
	}
	return nil
}

// newPut writes each value at its path. Keys are paths, so "a.b: 1" sets
// a nested field.
func newPut(cfg putConfig, _ *module.Step) (flowgraph.Operation, error) {
	paths := sortedKeys(cfg.Values)
	return flowgraph.OperationFunc(func(_ flowgraph.Context, doc *document.Document) error {
		for _, p := range paths {
			if err := doc.Put(p, cfg.Values[p]); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

type copyConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

func (c copyConfig) Validate() error {
	var errs []error
	if c.From == "" {
		errs = append(errs, errors.New("from is required"))
	}
	if c.To == "" {
		errs = append(errs, errors.New("to is required"))
	}
	return errors.Join(errs...)
}

func newCopy(cfg copyConfig, _ *module.Step) (flowgraph.Operation, error) {
	return flowgraph.OperationFunc(func(_ flowgraph.Context, doc *document.Document) error {
		return doc.Copy(cfg.From, cfg.To)
	}), nil
}

type deleteConfig struct {
	Paths []string `yaml:"paths"`
}

func (c deleteConfig) Validate() error {
	if len(c.Paths) == 0 {
		return errors.New("paths is required")
	}
	return nil
}

func newDelete(cfg deleteConfig, _ *module.Step) (flowgraph.Operation, error) {
	return flowgraph.OperationFunc(func(_ flowgraph.Context, doc *document.Document) error {
		for _, p := range cfg.Paths {
			doc.Delete(p)
		}
		return nil
	}), nil
}

type logConfig struct {
	Message string   `yaml:"message"`
	Level   string   `yaml:"level"`
	Fields  []string `yaml:"fields"`
}

func (c logConfig) Validate() error {
	_, err := parseLevel(c.Level)
	return err
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// newLog logs a message with the listed document fields as attributes.
// Placeholders in the message are expanded from the document.
func newLog(cfg logConfig, _ *module.Step) (flowgraph.Operation, error) {
	level, _ := parseLevel(cfg.Level)
	msg := cfg.Message
	if msg == "" {
		msg = "flow log"
	}
	return flowgraph.OperationFunc(func(ctx flowgraph.Context, doc *document.Document) error {
		attrs := make([]slog.Attr, 0, len(cfg.Fields))
		for _, f := range cfg.Fields {
			v, _ := doc.Get(f)
			attrs = append(attrs, slog.Any(f, v))
		}
		ctx.Logger().LogAttrs(ctx, level, template.Expand(msg, doc), attrs...)
		return nil
	}), nil
}

type sumConfig struct {
	Fields []string `yaml:"fields"`
	Out    string   `yaml:"out"`
}

func (c sumConfig) Validate() error {
	var errs []error
	if len(c.Fields) == 0 {
		errs = append(errs, errors.New("fields is required"))
	}
	if c.Out == "" {
		errs = append(errs, errors.New("out is required"))
	}
	return errors.Join(errs...)
}

// newSum adds numeric fields. The result is an integer unless a field
// holds a non-integral number. Missing fields count as zero.
func newSum(cfg sumConfig, _ *module.Step) (flowgraph.Operation, error) {
	return flowgraph.OperationFunc(func(_ flowgraph.Context, doc *document.Document) error {
		var isum int64
		var fsum float64
		integral := true
		for _, f := range cfg.Fields {
			v, ok := doc.Get(f)
			if !ok {
				continue
			}
			if n, ok := v.(int64); ok {
				isum += n
				fsum += float64(n)
				continue
			}
			n, ok := document.AsFloat(v)
			if !ok {
				return fmt.Errorf("field %s is not a number", f)
			}
			integral = false
			fsum += n
		}
		if integral {
			return doc.Put(cfg.Out, isum)
		}
		return doc.Put(cfg.Out, fsum)
	}), nil
}

type sleepConfig struct {
	For config.Duration `yaml:"for"`
}

func (c sleepConfig) Validate() error {
	if c.For < 0 {
		return errors.New("for must not be negative")
	}
	return nil
}

// newSleep completes after the configured duration without holding an
// executor thread.
func newSleep(cfg sleepConfig, _ *module.Step) (flowgraph.AsyncOperation, error) {
	d := cfg.For.Std()
	return flowgraph.AsyncOperationFunc(func(ctx flowgraph.Context, _ *document.Document, res flowgraph.OperationResult) {
		go func() {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				res.Done()
			case <-ctx.Done():
				res.Error(context.Cause(ctx))
			}
		}()
	}), nil
}

type failConfig struct {
	Message string `yaml:"message"`
}

func newFail(cfg failConfig, _ *module.Step) (flowgraph.Operation, error) {
	msg := cfg.Message
	if msg == "" {
		msg = "flow failed"
	}
	return flowgraph.OperationFunc(func(_ flowgraph.Context, _ *document.Document) error {
		return errors.New(msg)
	}), nil
}

type routeConfig struct {
	Path    string `yaml:"path"`
	Default string `yaml:"default"`
}

func (c routeConfig) Validate() error {
	if c.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

// newRoute routes on the text of a document value. Values without a
// configured branch go to the default route, or halt the run when there
// is none.
func newRoute(cfg routeConfig, s *module.Step) (flowgraph.RouterOperation, error) {
	names := s.RouteNames()
	if len(names) == 0 {
		return nil, errors.New("routes is required")
	}
	declared := make(map[string]bool, len(names))
	for _, n := range names {
		declared[n] = true
	}
	if cfg.Default != "" && !declared[cfg.Default] {
		return nil, fmt.Errorf("default route %q has no branch", cfg.Default)
	}
	return flowgraph.RouterFunc(names, func(_ flowgraph.Context, doc *document.Document) (string, error) {
		v, ok := doc.Get(cfg.Path)
		if !ok {
			if cfg.Default != "" {
				return cfg.Default, nil
			}
			return "", fmt.Errorf("no value at %s", cfg.Path)
		}
		name := routeName(v)
		if !declared[name] && cfg.Default != "" {
			return cfg.Default, nil
		}
		return name, nil
	}), nil
}

func routeName(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return "null"
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
