package builtin

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/expr"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/template"
)

type switchCase struct {
	When  string `yaml:"when"`
	Route string `yaml:"route"`
}

type switchConfig struct {
	Cases   []switchCase `yaml:"cases"`
	Default string       `yaml:"default"`
}

func (c switchConfig) Validate() error {
	if len(c.Cases) == 0 {
		return errors.New("cases is required")
	}
	var errs []error
	for i, sc := range c.Cases {
		if sc.When == "" {
			errs = append(errs, fmt.Errorf("case %d: when is required", i))
		}
		if sc.Route == "" {
			errs = append(errs, fmt.Errorf("case %d: route is required", i))
		}
	}
	return errors.Join(errs...)
}

type compiledCase struct {
	cond  *expr.Expr
	route string
}

// newSwitch takes the route of the first case whose condition holds, then
// the default. With neither the run halts.
func newSwitch(cfg switchConfig, s *module.Step) (flowgraph.RouterOperation, error) {
	names := s.RouteNames()
	declared := make(map[string]bool, len(names))
	for _, n := range names {
		declared[n] = true
	}

	var errs []error
	cases := make([]compiledCase, 0, len(cfg.Cases))
	for i, sc := range cfg.Cases {
		cond, err := expr.Compile(sc.When)
		if err != nil {
			errs = append(errs, fmt.Errorf("case %d: %w", i, err))
			continue
		}
		if !declared[sc.Route] {
			errs = append(errs, fmt.Errorf("case %d: route %q has no branch", i, sc.Route))
		}
		cases = append(cases, compiledCase{cond: cond, route: sc.Route})
	}
	if cfg.Default != "" && !declared[cfg.Default] {
		errs = append(errs, fmt.Errorf("default route %q has no branch", cfg.Default))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return flowgraph.RouterFunc(names, func(_ flowgraph.Context, doc *document.Document) (string, error) {
		for _, c := range cases {
			if c.cond.Eval(doc) {
				return c.route, nil
			}
		}
		if cfg.Default == "" {
			return flowgraph.HaltRoute, nil
		}
		return cfg.Default, nil
	}), nil
}

type formatConfig struct {
	Template string `yaml:"template"`
	Out      string `yaml:"out"`
	Strict   bool   `yaml:"strict"`
}

func (c formatConfig) Validate() error {
	var errs []error
	if c.Template == "" {
		errs = append(errs, errors.New("template is required"))
	}
	if c.Out == "" {
		errs = append(errs, errors.New("out is required"))
	}
	return errors.Join(errs...)
}

// newFormat expands a template against the document and stores the text.
// Strict templates fail the run on missing values; others keep the
// placeholder.
func newFormat(cfg formatConfig, _ *module.Step) (flowgraph.Operation, error) {
	action := template.MissingKeep
	if cfg.Strict {
		action = template.MissingError
	}
	exp := template.NewExpander(template.WithMissingAction(action))
	return flowgraph.OperationFunc(func(_ flowgraph.Context, doc *document.Document) error {
		text, err := exp.Expand(cfg.Template, doc)
		if err != nil {
			return err
		}
		return doc.Put(cfg.Out, text)
	}), nil
}
