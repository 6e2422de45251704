package request

import (
	"sort"
	"strings"
)

// Node is a named peer with connection attributes. Required attributes are
// either "url", or both "hostname" and "port"; "path" is recognized.
// Attribute values are stored canonically, with surrounding quotes stripped.
type Node struct {
	Name  string
	Attrs map[string]string
}

// Edge describes one downstream call. Payload is the verbatim bracketed
// text for the downstream request, opaque to this node and re-parseable by
// the peer.
type Edge struct {
	Dest     string
	Repeat   int
	Sequence int
	Payload  string
}

// Model is the aggregate populated by the parser for one inbound request.
type Model struct {
	// TopAttrs are the attributes applying to this request at this node.
	TopAttrs map[string]string
	// Nodes maps node name to its descriptor. Duplicate declarations merge
	// attribute maps, later keys overriding.
	Nodes map[string]*Node
	// Edges holds the downstream calls in declaration order.
	Edges []*Edge
	// Destinations is the set of node names referenced by edges.
	Destinations map[string]struct{}
	// NodeBlob is a canonical re-serialization of the node declarations,
	// spliced into every downstream payload so peers inherit the topology
	// without depending on the source formatting. Values keep their source
	// quoting so the blob re-parses cleanly.
	NodeBlob string

	nerrors int
	errs    []string
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		TopAttrs:     make(map[string]string),
		Nodes:        make(map[string]*Node),
		Destinations: make(map[string]struct{}),
	}
}

// Errors reports the number of parse errors and their concatenated messages.
func (m *Model) Errors() (int, string) {
	return m.nerrors, strings.Join(m.errs, "\n")
}

func (m *Model) addError(msg string) {
	m.nerrors++
	m.errs = append(m.errs, msg)
}

// handleNode merges a node declaration into the model and appends its
// canonical form to the node blob. attrs carries canonical (unquoted)
// values; raw carries the source-quoted pairs in declaration order.
func (m *Model) handleNode(name string, attrs map[string]string, raw []rawAttr) {
	n, ok := m.Nodes[name]
	if !ok {
		n = &Node{Name: name, Attrs: make(map[string]string, len(attrs))}
		m.Nodes[name] = n
	}
	for k, v := range attrs {
		n.Attrs[k] = v
	}

	var sb strings.Builder
	sb.WriteString(".")
	sb.WriteString(name)
	sb.WriteString(" [\n")
	for _, a := range raw {
		sb.WriteString("  ")
		sb.WriteString(a.key)
		sb.WriteString(" = ")
		sb.WriteString(a.value)
		sb.WriteString(",\n")
	}
	sb.WriteString("],\n")
	m.NodeBlob += sb.String()
}

// handleEdge records a downstream call.
func (m *Model) handleEdge(dest string, repeat, sequence int, payload string) {
	m.Destinations[dest] = struct{}{}
	m.Edges = append(m.Edges, &Edge{
		Dest:     dest,
		Repeat:   repeat,
		Sequence: sequence,
		Payload:  payload,
	})
}

// ForwardPayload builds the body forwarded to a peer for edge e: the node
// blob spliced directly after the payload's opening bracket, forming a
// valid request for the peer.
func (m *Model) ForwardPayload(e *Edge) string {
	if !strings.HasPrefix(e.Payload, "[") {
		// Payload is always captured with its brackets; guard anyway.
		return "[" + m.NodeBlob + e.Payload + "]"
	}
	return "[" + m.NodeBlob + e.Payload[1:]
}

// GroupedEdges returns the edges grouped by sequence number, groups in
// ascending sequence order. Order within a group is immaterial.
func (m *Model) GroupedEdges() [][]*Edge {
	bySeq := make(map[int][]*Edge)
	for _, e := range m.Edges {
		bySeq[e.Sequence] = append(bySeq[e.Sequence], e)
	}
	seqs := make([]int, 0, len(bySeq))
	for s := range bySeq {
		seqs = append(seqs, s)
	}
	sort.Ints(seqs)
	groups := make([][]*Edge, 0, len(seqs))
	for _, s := range seqs {
		groups = append(groups, bySeq[s])
	}
	return groups
}

type rawAttr struct {
	key   string
	value string
}
