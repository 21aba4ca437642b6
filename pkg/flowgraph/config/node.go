package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Error is a configuration problem located in a source.
type Error struct {
	Source string
	Line   int
	Column int
	Msg    string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	if e.Source != "" {
		sb.WriteString(e.Source)
		sb.WriteByte(':')
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, "%d:%d:", e.Line, e.Column)
	}
	if sb.Len() > 0 {
		sb.WriteByte(' ')
	}
	sb.WriteString(e.Msg)
	if e.Err != nil && !errors.Is(e.Err, ErrInvalidConfig) {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the cause, or ErrInvalidConfig when there is none.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidConfig}
	}
	return []error{ErrInvalidConfig, e.Err}
}

// Validator is implemented by typed configuration structs.
type Validator interface {
	Validate() error
}

// Kind is the shape of a Node.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindMap
	KindList
)

// Node is a configuration value with its source position.
type Node struct {
	y      *yaml.Node
	source string
}

// Pair is one entry of a map node, in source order.
type Pair struct {
	Key     string
	KeyNode *Node
	Value   *Node
}

func wrap(y *yaml.Node, source string) *Node {
	for y != nil && (y.Kind == yaml.DocumentNode || y.Kind == yaml.AliasNode) {
		if y.Kind == yaml.DocumentNode {
			if len(y.Content) == 0 {
				y = nil
				break
			}
			y = y.Content[0]
		} else {
			y = y.Alias
		}
	}
	if y == nil {
		y = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
	}
	return &Node{y: y, source: source}
}

// NewNode wraps an existing yaml node.
func NewNode(y *yaml.Node, source string) *Node {
	return wrap(y, source)
}

// Kind returns the node shape.
func (n *Node) Kind() Kind {
	switch n.y.Kind {
	case yaml.MappingNode:
		return KindMap
	case yaml.SequenceNode:
		return KindList
	case yaml.ScalarNode:
		if n.y.Tag == "!!null" {
			return KindNull
		}
		return KindScalar
	}
	return KindNull
}

// Null returns a null node positioned at n. It stands in for an absent
// value so errors about it still point somewhere useful.
func (n *Node) Null() *Node {
	return &Node{
		y:      &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Line: n.y.Line, Column: n.y.Column},
		source: n.source,
	}
}

// Source returns the name of the source the node came from.
func (n *Node) Source() string { return n.source }

// Line returns the 1-based line of the node.
func (n *Node) Line() int { return n.y.Line }

// Column returns the 1-based column of the node.
func (n *Node) Column() int { return n.y.Column }

// Value returns the raw text of a scalar node.
func (n *Node) Value() string { return n.y.Value }

// YAML returns the underlying yaml node.
func (n *Node) YAML() *yaml.Node { return n.y }

// Pairs returns the entries of a map node in source order.
// Non-map nodes have no pairs.
func (n *Node) Pairs() []Pair {
	if n.y.Kind != yaml.MappingNode {
		return nil
	}
	pairs := make([]Pair, 0, len(n.y.Content)/2)
	for i := 0; i+1 < len(n.y.Content); i += 2 {
		k, v := n.y.Content[i], n.y.Content[i+1]
		pairs = append(pairs, Pair{Key: k.Value, KeyNode: wrap(k, n.source), Value: wrap(v, n.source)})
	}
	return pairs
}

// Get returns the value of key in a map node.
func (n *Node) Get(key string) (*Node, bool) {
	for _, p := range n.Pairs() {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Items returns the elements of a list node.
func (n *Node) Items() []*Node {
	if n.y.Kind != yaml.SequenceNode {
		return nil
	}
	items := make([]*Node, len(n.y.Content))
	for i, c := range n.y.Content {
		items[i] = wrap(c, n.source)
	}
	return items
}

// Decode decodes the node into v and validates it if v implements
// Validator. Map keys v does not declare are errors, positioned at the
// key; other errors are positioned at the node.
func (n *Node) Decode(v any) error {
	return n.DecodeAllowing(v)
}

// DecodeAllowing is Decode with extra top-level keys that v does not
// declare but the caller handles itself, such as a router's "routes".
func (n *Node) DecodeAllowing(v any, keys ...string) error {
	if errs := unknownFields(n.y, reflect.TypeOf(v), n.source, keys); len(errs) > 0 {
		return errors.Join(errs...)
	}
	if err := n.y.Decode(v); err != nil {
		return n.Wrap(err, "decode")
	}
	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return n.Wrap(err, "validate")
		}
	}
	return nil
}

// Interface decodes the node into plain Go values.
func (n *Node) Interface() (any, error) {
	var v any
	if err := n.y.Decode(&v); err != nil {
		return nil, n.Wrap(err, "decode")
	}
	return v, nil
}

// Errorf returns an error positioned at the node.
func (n *Node) Errorf(format string, args ...any) *Error {
	return &Error{Source: n.source, Line: n.y.Line, Column: n.y.Column, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns err positioned at the node. Already positioned errors are
// returned unchanged.
func (n *Node) Wrap(err error, msg string) error {
	var located *Error
	if errors.As(err, &located) {
		return err
	}
	return &Error{Source: n.source, Line: n.y.Line, Column: n.y.Column, Msg: msg, Err: err}
}

// Collector gathers configuration errors.
type Collector struct {
	errs []error
}

// Add records err if it is not nil.
func (c *Collector) Add(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Errorf records an error positioned at n.
func (c *Collector) Errorf(n *Node, format string, args ...any) {
	c.errs = append(c.errs, n.Errorf(format, args...))
}

// Len returns the number of recorded errors.
func (c *Collector) Len() int { return len(c.errs) }

// Err returns the recorded errors joined, or nil.
func (c *Collector) Err() error {
	return errors.Join(c.errs...)
}
