// Package module turns application configuration into compiled flows.
//
// A Module contributes named operations, initializer segments, network
// bindings and lifecycle hooks. Applications enable modules with "use";
// modules may require other modules, and Registry.Resolve orders them so
// that every module is configured after the modules it requires.
//
// Configure has no side effects: it only decodes configuration, registers
// operations and compiles flows. Resources such as database connections
// are opened by the initializer flow when the application is deployed and
// released by undeploy hooks.
//
// Operation bodies decode into explicit typed structs:
//
//	type putConfig struct {
//	    Values map[string]any `yaml:"values"`
//	}
//
//	s.Operation("put", module.Op(func(cfg putConfig, _ *module.Step) (flowgraph.Operation, error) {
//	    return flowgraph.OperationFunc(func(ctx flowgraph.Context, doc *document.Document) error {
//	        ...
//	    }), nil
//	}))
package module
