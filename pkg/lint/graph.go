// Package lint drives the request parser over a document and its nested
// call payloads, recursively, and renders the resulting call cascade as a
// Graphviz digraph instead of making any HTTP calls.
package lint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"

	"github.com/ravi-parthasarathy/fidi/pkg/request"
)

// Result aggregates the graph and the diagnostics gathered across the
// recursive walk.
type Result struct {
	Errors     int
	ErrorMsg   string
	Warnings   int
	WarningMsg string
	Graph      string
}

// Ok reports whether the walk finished without parse errors or
// validation warnings.
func (r *Result) Ok() bool {
	return r.Errors == 0 && r.Warnings == 0
}

type emitter struct {
	graph    *gographviz.Graph
	comments strings.Builder
	result   Result
}

// Emit parses src as a top-level request and returns the rendered graph
// plus all diagnostics. Each call payload is re-parsed with a fresh
// parser, parameterized by the calling node, the destination, and the
// dotted sequence path leading to it; no mutable state is shared across
// recursion levels.
func Emit(src string) *Result {
	e := &emitter{graph: gographviz.NewGraph()}
	_ = e.graph.SetName("fidi")
	_ = e.graph.SetDir(true)

	e.walk(src, "Source", "TopNode", "1", true)

	rendered := e.graph.String()
	if c := e.comments.String(); c != "" {
		// Splice the attribute echo before the closing brace so the
		// comments stay inside the digraph.
		if idx := strings.LastIndex(rendered, "}"); idx >= 0 {
			rendered = rendered[:idx] + "\n" + c + rendered[idx:]
		}
	}
	e.result.Graph = rendered
	return &e.result
}

// walk parses one request document, records its node table (top level
// only), adds the edge for the call that carried it, and recurses into
// every nested call payload in sequence order.
func (e *emitter) walk(src, caller, name, sequence string, top bool) {
	m := request.Parse(src)

	if nerrors, msg := m.Errors(); nerrors != 0 {
		e.result.Errors += nerrors
		if e.result.ErrorMsg != "" {
			e.result.ErrorMsg += "\n"
		}
		e.result.ErrorMsg += msg
	}
	if warnings, msg := request.Validate(m); warnings != 0 {
		e.result.Warnings += warnings
		e.result.WarningMsg += msg
	}

	if top {
		names := make([]string, 0, len(m.Nodes))
		for n := range m.Nodes {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			_ = e.graph.AddNode("fidi", n, map[string]string{
				"shape": "record",
				"label": recordLabel(m.Nodes[n]),
			})
		}
	}

	// Edge endpoints must be graph nodes for the graph to render; the
	// synthetic Source/TopNode pair and undefined destinations are not.
	for _, n := range []string{caller, name} {
		if !e.graph.IsNode(n) {
			_ = e.graph.AddNode("fidi", n, nil)
		}
	}
	_ = e.graph.AddEdge(caller, name, true, map[string]string{
		"label": strconv.Quote(sequence),
	})
	e.echoAttrs(name, sequence, m.TopAttrs)

	for _, group := range m.GroupedEdges() {
		for _, edge := range group {
			sub := sequence + "." + strconv.Itoa(edge.Sequence)
			e.walk(m.ForwardPayload(edge), name, edge.Dest, sub, false)
		}
	}
}

// echoAttrs records the request's top attributes as comment lines keyed
// by the node and its sequence path.
func (e *emitter) echoAttrs(name, sequence string, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&e.comments, "  // %s [%s]: %s = %s,\n", name, sequence, k, attrs[k])
	}
}

// recordLabel renders a node's attributes as a record label. Double
// quotes inside values would terminate the label, so they become single
// quotes.
func recordLabel(n *request.Node) string {
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(`"{`)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(strings.ReplaceAll(n.Attrs[k], `"`, `'`))
		sb.WriteString("|")
	}
	sb.WriteString(n.Name)
	sb.WriteString(`}"`)
	return sb.String()
}
