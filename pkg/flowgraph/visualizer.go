package flowgraph

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// VisualNode is a node as seen by a visualizer.
type VisualNode struct {
	ID    int      `json:"id"`
	Name  string   `json:"name"`
	Kind  NodeKind `json:"-"`
	Group []string `json:"group,omitempty"`
}

// VisualEdge connects two nodes. Optional edges are router exits that a
// run may or may not take.
type VisualEdge struct {
	From     int    `json:"from"`
	To       int    `json:"to"`
	Label    string `json:"label,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// Visualizer is the structural description of a compiled flow, produced
// by the compiler alongside the flow.
type Visualizer struct {
	flow  string
	start int
	nodes []VisualNode
	edges []VisualEdge
}

func newVisualizer(flow string, specs []*nodeSpec, start int) *Visualizer {
	v := &Visualizer{flow: flow, start: start}
	for _, s := range specs {
		v.nodes = append(v.nodes, VisualNode{ID: s.id, Name: s.name, Kind: s.kind, Group: s.group})
		switch s.kind {
		case KindEnd:
		case KindRouter:
			for _, r := range s.routes {
				v.edges = append(v.edges, VisualEdge{From: s.id, To: r.entry, Label: r.name, Optional: true})
			}
		case KindSplit:
			for _, b := range s.branches {
				v.edges = append(v.edges, VisualEdge{From: s.id, To: b})
			}
		default:
			v.edges = append(v.edges, VisualEdge{From: s.id, To: s.next})
		}
	}
	return v
}

// Flow returns the name of the visualized flow.
func (v *Visualizer) Flow() string { return v.flow }

// Start returns the id of the start node.
func (v *Visualizer) Start() int { return v.start }

// Nodes returns the nodes in id order.
func (v *Visualizer) Nodes() []VisualNode { return slices.Clone(v.nodes) }

// Edges returns the edges.
func (v *Visualizer) Edges() []VisualEdge { return slices.Clone(v.edges) }

// DOT renders the flow in graphviz dot syntax.
func (v *Visualizer) DOT() string {
	var sb strings.Builder
	_ = v.WriteDOT(&sb)
	return sb.String()
}

// WriteDOT writes the dot rendering to w. Label groups become nested
// clusters; router exits are dashed.
func (v *Visualizer) WriteDOT(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %s {\n", strconv.Quote(v.flow))
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [fontname=\"Helvetica\", fontsize=11];\n")
	sb.WriteString("  edge [fontname=\"Helvetica\", fontsize=9];\n")

	root := &dotGroup{}
	for _, n := range v.nodes {
		g := root
		for _, name := range n.Group {
			g = g.child(name)
		}
		g.nodes = append(g.nodes, n)
	}
	cluster := 0
	root.write(&sb, "  ", &cluster)

	for _, e := range v.edges {
		fmt.Fprintf(&sb, "  n%d -> n%d", e.From, e.To)
		var attrs []string
		if e.Label != "" {
			attrs = append(attrs, "label="+strconv.Quote(e.Label))
		}
		if e.Optional {
			attrs = append(attrs, "style=dashed")
		}
		if len(attrs) > 0 {
			sb.WriteString(" [" + strings.Join(attrs, ", ") + "]")
		}
		sb.WriteString(";\n")
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

type dotGroup struct {
	name     string
	nodes    []VisualNode
	children []*dotGroup
}

func (g *dotGroup) child(name string) *dotGroup {
	for _, c := range g.children {
		if c.name == name {
			return c
		}
	}
	c := &dotGroup{name: name}
	g.children = append(g.children, c)
	return c
}

func (g *dotGroup) write(sb *strings.Builder, indent string, cluster *int) {
	for _, n := range g.nodes {
		fmt.Fprintf(sb, "%sn%d [label=%s, shape=%s];\n", indent, n.ID, strconv.Quote(n.Name), shapeFor(n.Kind))
	}
	for _, c := range g.children {
		fmt.Fprintf(sb, "%ssubgraph cluster_%d {\n", indent, *cluster)
		*cluster++
		fmt.Fprintf(sb, "%s  label=%s;\n", indent, strconv.Quote(c.name))
		sb.WriteString(indent + "  style=rounded;\n")
		c.write(sb, indent+"  ", cluster)
		sb.WriteString(indent + "}\n")
	}
}

func shapeFor(k NodeKind) string {
	switch k {
	case KindStart, KindEnd:
		return "circle"
	case KindRouter:
		return "diamond"
	case KindSplit, KindJoin:
		return "point"
	case KindEmbed:
		return "box3d"
	default:
		return "box"
	}
}
