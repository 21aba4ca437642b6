// Package builtin provides the modules available to every host.
//
//   - core: document manipulation, logging, sleeping, failing and routing.
//     Always enabled.
//   - jsonpath: JSONPath extraction and routing.
//   - js: JavaScript operations and routers.
//   - sqlite: a per-application SQLite database.
package builtin

import (
	"errors"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/module"
)

// NewRegistry returns a registry holding every built-in module, with core
// enabled by default.
func NewRegistry() (*module.Registry, error) {
	reg, err := module.NewRegistry(JSONPath(), JS(), SQLite())
	return reg, errors.Join(err, reg.RegisterDefault(Core()))
}
