package builtin

import (
	"errors"
	"fmt"

	"github.com/oliveagle/jsonpath"

	"github.com/randalmurphal/flowhost/pkg/flowgraph"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/document"
	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
)

type jsonPathModule struct{}

// JSONPath returns the jsonpath module. Queries are compiled when the
// application is configured, so malformed queries fail the deploy.
func JSONPath() module.Module { return jsonPathModule{} }

func (jsonPathModule) Name() string       { return "jsonpath" }
func (jsonPathModule) Requires() []string { return nil }

func (jsonPathModule) Configure(_ *config.Node, s *module.Setup) error {
	s.Operation("jsonpath.extract", module.Op(newExtract))
	s.Operation("jsonpath.route", module.Router(newJSONPathRoute))
	return nil
}

type extractConfig struct {
	Query string `yaml:"query"`
	Out   string `yaml:"out"`
	// Optional leaves the document untouched when nothing matches.
	Optional bool `yaml:"optional"`
}

func (c extractConfig) Validate() error {
	var errs []error
	if c.Query == "" {
		errs = append(errs, errors.New("query is required"))
	}
	if c.Out == "" {
		errs = append(errs, errors.New("out is required"))
	}
	return errors.Join(errs...)
}

func compileQuery(q string) (*jsonpath.Compiled, error) {
	c, err := jsonpath.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", q, err)
	}
	return c, nil
}

func newExtract(cfg extractConfig, _ *module.Step) (flowgraph.Operation, error) {
	query, err := compileQuery(cfg.Query)
	if err != nil {
		return nil, err
	}
	return flowgraph.OperationFunc(func(_ flowgraph.Context, doc *document.Document) error {
		v, err := query.Lookup(doc.ToMap())
		if err != nil {
			if cfg.Optional {
				return nil
			}
			return fmt.Errorf("lookup %s: %w", cfg.Query, err)
		}
		return doc.Put(cfg.Out, v)
	}), nil
}

type jsonPathRouteConfig struct {
	Query   string `yaml:"query"`
	Default string `yaml:"default"`
}

func (c jsonPathRouteConfig) Validate() error {
	if c.Query == "" {
		return errors.New("query is required")
	}
	return nil
}

// newJSONPathRoute routes on the text of the query result. A query that
// matches nothing takes the default route if there is one.
func newJSONPathRoute(cfg jsonPathRouteConfig, s *module.Step) (flowgraph.RouterOperation, error) {
	query, err := compileQuery(cfg.Query)
	if err != nil {
		return nil, err
	}
	names := s.RouteNames()
	if len(names) == 0 {
		return nil, errors.New("routes is required")
	}
	return flowgraph.RouterFunc(names, func(_ flowgraph.Context, doc *document.Document) (string, error) {
		v, err := query.Lookup(doc.ToMap())
		if err != nil {
			if cfg.Default != "" {
				return cfg.Default, nil
			}
			return "", fmt.Errorf("lookup %s: %w", cfg.Query, err)
		}
		return routeName(v), nil
	}), nil
}
