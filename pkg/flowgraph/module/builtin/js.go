package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
)

type jsModule struct{}

// JS returns the js module.
//
// Scripts see the document as the global "data" and can log with
// log(message). Changes to data, including replacing it with a new
// object, are written back to the document. Each call gets a fresh
// interpreter, so scripts cannot share state between runs.
func JS() module.Module { return jsModule{} }

func (jsModule) Name() string       { return "js" }
func (jsModule) Requires() []string { return nil }

func (jsModule) Configure(_ *config.Node, s *module.Setup) error {
	s.Operation("js", module.Op(newScript))
	s.Operation("js.route", module.Router(newScriptRoute))
	return nil
}

type scriptConfig struct {
	Script string `yaml:"script"`
	// Out stores the script's completion value when set.
	Out string `yaml:"out"`
}

func (c scriptConfig) Validate() error {
	if c.Script == "" {
		return errors.New("script is required")
	}
	return nil
}

func compileScript(name, src string) (*goja.Program, error) {
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	return prog, nil
}

// runScript runs prog against doc and returns the completion value.
func runScript(ctx flowgraph.Context, prog *goja.Program, doc *document.Document) (goja.Value, error) {
	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(context.Cause(ctx)) })
	defer stop()

	if err := vm.Set("data", doc.ToMap()); err != nil {
		return nil, err
	}
	if err := vm.Set("log", func(msg string) { ctx.Logger().Info(msg, "node", ctx.NodeID()) }); err != nil {
		return nil, err
	}

	v, err := vm.RunProgram(prog)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return nil, cause
			}
		}
		return nil, err
	}

	data, ok := vm.Get("data").Export().(map[string]any)
	if !ok {
		return nil, errors.New("script replaced data with a non-object")
	}
	if err := doc.Put("", data); err != nil {
		return nil, err
	}
	return v, nil
}

func newScript(cfg scriptConfig, s *module.Step) (flowgraph.Operation, error) {
	prog, err := compileScript(s.Op, cfg.Script)
	if err != nil {
		return nil, err
	}
	return flowgraph.OperationFunc(func(ctx flowgraph.Context, doc *document.Document) error {
		v, err := runScript(ctx, prog, doc)
		if err != nil {
			return err
		}
		if cfg.Out != "" && v != nil && !goja.IsUndefined(v) {
			return doc.Put(cfg.Out, v.Export())
		}
		return nil
	}), nil
}

type scriptRouteConfig struct {
	Script string `yaml:"script"`
}

func (c scriptRouteConfig) Validate() error {
	if c.Script == "" {
		return errors.New("script is required")
	}
	return nil
}

// newScriptRoute routes on the script's completion value.
func newScriptRoute(cfg scriptRouteConfig, s *module.Step) (flowgraph.RouterOperation, error) {
	prog, err := compileScript(s.Op, cfg.Script)
	if err != nil {
		return nil, err
	}
	names := s.RouteNames()
	if len(names) == 0 {
		return nil, errors.New("routes is required")
	}
	return flowgraph.RouterFunc(names, func(ctx flowgraph.Context, doc *document.Document) (string, error) {
		v, err := runScript(ctx, prog, doc)
		if err != nil {
			return "", err
		}
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return "", nil
		}
		return v.String(), nil
	}), nil
}
