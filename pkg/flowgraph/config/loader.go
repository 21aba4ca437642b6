package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse parses YAML or JSON data. source names the data in error messages.
func Parse(source string, data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Source: source, Msg: "parse", Err: err}
	}
	return wrap(&doc, source), nil
}

// ReadFile reads a configuration file, checking its extension.
// Supported extensions: .yaml, .yml, .json
func ReadFile(path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidConfig, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return data, nil
}

// FromFile reads and parses a configuration file.
func FromFile(path string) (*Node, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Application is a parsed application source.
type Application struct {
	Name    string
	Use     []ModuleUse
	Network []Network
	Flows   []FlowDef
	Root    *Node
}

// ModuleUse enables a module, optionally with settings.
type ModuleUse struct {
	Name     string
	Settings *Node
	Node     *Node
}

// Network is a network binding an application declares.
type Network struct {
	Port     int    `yaml:"port" json:"port"`
	Protocol string `yaml:"protocol" json:"protocol"`
	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
}

// Validate implements Validator.
func (n Network) Validate() error {
	var errs []error
	if n.Port < 1 || n.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", n.Port))
	}
	if n.Protocol == "" {
		errs = append(errs, errors.New("protocol is required"))
	}
	return errors.Join(errs...)
}

// URL returns a display URL for the binding.
func (n Network) URL() string {
	host := n.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s:%d", n.Protocol, host, n.Port)
}

// FlowDef is a named list of steps.
type FlowDef struct {
	Name  string
	Steps *Node
}

var topLevelKeys = map[string]bool{"name": true, "use": true, "network": true, "flows": true}

// ParseApplication parses and checks the top-level shape of an
// application source. Steps are left for the module system to interpret.
func ParseApplication(source string, data []byte) (*Application, error) {
	root, err := Parse(source, data)
	if err != nil {
		return nil, err
	}
	if root.Kind() != KindMap {
		return nil, root.Errorf("application source must be a map")
	}

	var errs Collector
	app := &Application{Root: root}
	for _, p := range root.Pairs() {
		switch p.Key {
		case "name":
			if p.Value.Kind() != KindScalar {
				errs.Errorf(p.Value, "name must be a string")
				continue
			}
			app.Name = p.Value.Value()
		case "use":
			app.Use = parseUse(p.Value, &errs)
		case "network":
			for _, item := range listOrSingle(p.Value) {
				var n Network
				if err := item.Decode(&n); err != nil {
					errs.Add(err)
					continue
				}
				app.Network = append(app.Network, n)
			}
		case "flows":
			if p.Value.Kind() != KindMap {
				errs.Errorf(p.Value, "flows must be a map of flow name to steps")
				continue
			}
			for _, f := range p.Value.Pairs() {
				if strings.TrimSpace(f.Key) == "" {
					errs.Errorf(f.KeyNode, "flow name must not be empty")
					continue
				}
				app.Flows = append(app.Flows, FlowDef{Name: f.Key, Steps: f.Value})
			}
		default:
			if !topLevelKeys[p.Key] {
				errs.Errorf(p.KeyNode, "unknown key %q", p.Key)
			}
		}
	}
	if len(app.Flows) == 0 && errs.Len() == 0 {
		errs.Errorf(root, "application defines no flows")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

func parseUse(n *Node, errs *Collector) []ModuleUse {
	var uses []ModuleUse
	for _, item := range listOrSingle(n) {
		switch item.Kind() {
		case KindScalar:
			uses = append(uses, ModuleUse{Name: item.Value(), Node: item})
		case KindMap:
			pairs := item.Pairs()
			if len(pairs) != 1 {
				errs.Errorf(item, "module entry must have exactly one key, got %d", len(pairs))
				continue
			}
			uses = append(uses, ModuleUse{Name: pairs[0].Key, Settings: pairs[0].Value, Node: item})
		default:
			errs.Errorf(item, "module entry must be a name or a single-key map")
		}
	}
	return uses
}

func listOrSingle(n *Node) []*Node {
	switch n.Kind() {
	case KindList:
		return n.Items()
	case KindNull:
		return nil
	default:
		return []*Node{n}
	}
}
