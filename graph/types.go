// Package graph provides the canonical code-relationship graph: schema-validated
// node/edge storage, ring classification, and traversal primitives. A Graph is an
// immutable snapshot once produced; incremental updates install a new snapshot
// rather than mutating in place.
package graph

import (
	"time"
)

// Ring classifies a node's architectural layer.
type Ring int

const (
	// RingCore is feature code at the center of the system.
	RingCore Ring = 0
	// RingAdjacent is support/utility code around the core.
	RingAdjacent Ring = 1
	// RingInfrastructure is framework and infrastructure code.
	RingInfrastructure Ring = 2
)

// String returns a human-readable ring label.
func (r Ring) String() string {
	switch r {
	case RingCore:
		return "core"
	case RingAdjacent:
		return "adjacent"
	case RingInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// IsValid returns true if the ring is one of the three known layers.
func (r Ring) IsValid() bool {
	return r >= RingCore && r <= RingInfrastructure
}

// NodeType identifies the kind of code entity a node represents.
type NodeType string

const (
	NodeEndpoint    NodeType = "endpoint"
	NodeCollection  NodeType = "collection"
	NodeFile        NodeType = "file"
	NodeRouter      NodeType = "router"
	NodeScript      NodeType = "script"
	NodeTask        NodeType = "task"
	NodeCacheKey    NodeType = "cache_key"
	NodeService     NodeType = "service"
	NodeUtility     NodeType = "utility"
	NodeWebhook     NodeType = "webhook"
	NodeEvent       NodeType = "event"
	NodeExternalAPI NodeType = "external_api"
	NodeEnvVar      NodeType = "env_var"
	NodeComponent   NodeType = "component"
	NodePage        NodeType = "page"
)

// nodeTypes is the closed set of valid node types.
var nodeTypes = map[NodeType]bool{
	NodeEndpoint: true, NodeCollection: true, NodeFile: true, NodeRouter: true,
	NodeScript: true, NodeTask: true, NodeCacheKey: true, NodeService: true,
	NodeUtility: true, NodeWebhook: true, NodeEvent: true, NodeExternalAPI: true,
	NodeEnvVar: true, NodeComponent: true, NodePage: true,
}

// IsValid returns true if the node type is one of the 15 enumerated kinds.
func (t NodeType) IsValid() bool {
	return nodeTypes[t]
}

// IsEntryPoint reports whether nodes of this type are invoked from outside the
// graph (and therefore legitimately have no in-graph caller).
func (t NodeType) IsEntryPoint() bool {
	switch t {
	case NodeEndpoint, NodePage, NodeScript, NodeWebhook:
		return true
	default:
		return false
	}
}

// IsTargetOnly reports whether nodes of this type are pure targets of edges
// (data and configuration sinks that never call anything themselves).
func (t NodeType) IsTargetOnly() bool {
	switch t {
	case NodeCollection, NodeExternalAPI, NodeEnvVar, NodeCacheKey:
		return true
	default:
		return false
	}
}

// EdgeType identifies the kind of directed relationship an edge represents.
type EdgeType string

const (
	EdgeDBRead          EdgeType = "db_read"
	EdgeDBWrite         EdgeType = "db_write"
	EdgeEndpointHandler EdgeType = "endpoint_handler"
	EdgeAPICall         EdgeType = "api_call"
	EdgeCacheRead       EdgeType = "cache_read"
	EdgeCacheWrite      EdgeType = "cache_write"
	EdgeWebhookReceive  EdgeType = "webhook_receive"
	EdgeWebhookSend     EdgeType = "webhook_send"
	EdgeEventPublish    EdgeType = "event_publish"
	EdgeEventSubscribe  EdgeType = "event_subscribe"
	EdgeImports         EdgeType = "imports"
	EdgeCalls           EdgeType = "calls"
	EdgeEnqueues        EdgeType = "enqueues"
	EdgeRenders         EdgeType = "renders"
	EdgeFetches         EdgeType = "fetches"
)

// edgeTypes is the closed set of valid edge types.
var edgeTypes = map[EdgeType]bool{
	EdgeDBRead: true, EdgeDBWrite: true, EdgeEndpointHandler: true,
	EdgeAPICall: true, EdgeCacheRead: true, EdgeCacheWrite: true,
	EdgeWebhookReceive: true, EdgeWebhookSend: true, EdgeEventPublish: true,
	EdgeEventSubscribe: true, EdgeImports: true, EdgeCalls: true,
	EdgeEnqueues: true, EdgeRenders: true, EdgeFetches: true,
}

// IsValid returns true if the edge type is one of the 15 enumerated kinds.
func (t EdgeType) IsValid() bool {
	return edgeTypes[t]
}

// Node is a code entity in the graph.
type Node struct {
	// ID is globally unique within a graph. Format: {type}:{qualifier},
	// e.g. "endpoint:GET:/api/users".
	ID string `json:"id"`

	// Type is one of the 15 enumerated node kinds.
	Type NodeType `json:"type"`

	// Label is the human-readable display name.
	Label string `json:"label"`

	// File is the relative path the entity was found in.
	File string `json:"file,omitempty"`

	// Line is the 1-based line number within File.
	Line int `json:"line,omitempty"`

	// Ring is the architectural layer classification.
	Ring Ring `json:"ring"`

	// Metadata holds type-specific key/value detail.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Edge is a directed relationship between two nodes.
type Edge struct {
	// Source and Target are node IDs; both must resolve within the graph.
	Source string `json:"source"`
	Target string `json:"target"`

	// Type is one of the 15 enumerated edge kinds.
	Type EdgeType `json:"type"`

	// Context is free-text detail about the relationship (e.g. the call site
	// expression, or a deletion marker on a db_write).
	Context string `json:"context,omitempty"`

	// File and Line locate where the relationship was observed.
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// EdgeKey is the identity of an edge for diffing purposes. Two edges with the
// same key are the same relationship; context/file/line are detail.
type EdgeKey struct {
	Source string
	Target string
	Type   EdgeType
}

// Key returns the edge's diff identity.
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, Type: e.Type}
}

// Metadata describes the provenance of a graph snapshot.
type Metadata struct {
	// Project is the project name the graph was scanned from.
	Project string `json:"project"`

	// GeneratedAt is when the scanner produced this snapshot.
	GeneratedAt time.Time `json:"generated_at"`

	// ScannerVersion identifies the producer.
	ScannerVersion string `json:"scanner_version"`

	// TotalFilesAnalyzed is how many files the scan covered.
	TotalFilesAnalyzed int `json:"total_files_analyzed"`

	// AnalysisDurationSeconds is how long the scan took.
	AnalysisDurationSeconds float64 `json:"analysis_duration_seconds"`
}

// Document is the persisted graph file shape consumed and produced by the
// store. Field order is not significant; load(save(g)) is structurally equal
// to g.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
}

// Graph is an immutable snapshot of the relationship graph. It must not be
// modified after construction; queries and diffs borrow read-only references.
type Graph struct {
	Metadata Metadata
	Nodes    []Node
	Edges    []Edge

	nodesByID map[string]*Node
	outgoing  map[string][]*Edge
	incoming  map[string][]*Edge
}

// newGraph builds a Graph with its lookup indexes from already-validated
// nodes and edges. Callers own validation; this only indexes.
func newGraph(meta Metadata, nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		Metadata:  meta,
		Nodes:     nodes,
		Edges:     edges,
		nodesByID: make(map[string]*Node, len(nodes)),
		outgoing:  make(map[string][]*Edge, len(nodes)),
		incoming:  make(map[string][]*Edge, len(nodes)),
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		g.nodesByID[n.ID] = n
	}
	for i := range g.Edges {
		e := &g.Edges[i]
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
		g.incoming[e.Target] = append(g.incoming[e.Target], e)
	}
	return g
}

// Node returns the node with the given ID, or nil if absent.
func (g *Graph) Node(id string) *Node {
	return g.nodesByID[id]
}

// HasNode reports whether a node with the given ID exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodesByID[id]
	return ok
}

// Outgoing returns the edges whose source is the given node.
func (g *Graph) Outgoing(id string) []*Edge {
	return g.outgoing[id]
}

// Incoming returns the edges whose target is the given node.
func (g *Graph) Incoming(id string) []*Edge {
	return g.incoming[id]
}

// NodesOfType returns all nodes of the given type in graph order.
func (g *Graph) NodesOfType(t NodeType) []*Node {
	var out []*Node
	for i := range g.Nodes {
		if g.Nodes[i].Type == t {
			out = append(out, &g.Nodes[i])
		}
	}
	return out
}

// Direction selects edge orientation for neighbor lookups.
type Direction string

const (
	// DirectionIn selects edges targeting the node.
	DirectionIn Direction = "in"
	// DirectionOut selects edges originating at the node.
	DirectionOut Direction = "out"
	// DirectionBoth selects edges in either orientation.
	DirectionBoth Direction = "both"
)

// IsValid returns true if the direction is in, out, or both.
func (d Direction) IsValid() bool {
	switch d {
	case DirectionIn, DirectionOut, DirectionBoth:
		return true
	default:
		return false
	}
}
