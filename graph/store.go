package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store owns the canonical graph. It validates schema invariants on load and
// write, and serializes all mutations: every update installs a fresh immutable
// snapshot, so borrowed snapshots stay valid for concurrent readers.
type Store struct {
	mu     sync.RWMutex
	graph  *Graph
	logger *slog.Logger
}

// NewStore creates an empty store. A nil logger disables logging.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{logger: logger}
}

// Load parses and validates a graph document from raw JSON. It fails with
// *MalformedError on structurally invalid input and with *SchemaError when
// any schema invariant is violated; a corrupted graph is never silently fixed.
func (s *Store) Load(raw []byte) error {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &MalformedError{Detail: "invalid JSON", Cause: err}
	}
	return s.LoadDocument(doc)
}

// LoadDocument validates an already-decoded document and installs it as the
// current snapshot.
func (s *Store) LoadDocument(doc Document) error {
	if err := checkRequiredFields(doc); err != nil {
		return err
	}
	if err := validateSchema(doc.Nodes, doc.Edges); err != nil {
		return err
	}

	g := newGraph(doc.Metadata, cloneNodes(doc.Nodes), cloneEdges(doc.Edges))

	s.mu.Lock()
	s.graph = g
	s.mu.Unlock()

	s.logger.Info("graph loaded",
		"project", doc.Metadata.Project,
		"nodes", len(doc.Nodes),
		"edges", len(doc.Edges))
	return nil
}

// LoadFile reads and loads a graph document from disk.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read graph file: %w", err)
	}
	if err := s.Load(data); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Save serializes the current graph back to the canonical document shape.
func (s *Store) Save() (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph == nil {
		return Document{}, ErrNoGraph
	}
	return Document{
		Metadata: s.graph.Metadata,
		Nodes:    cloneNodes(s.graph.Nodes),
		Edges:    cloneEdges(s.graph.Edges),
	}, nil
}

// SaveFile writes the current graph document to disk. Persistence is an
// explicit caller action; the store never writes implicitly.
func (s *Store) SaveFile(path string) error {
	doc, err := s.Save()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create graph directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write graph file: %w", err)
	}
	return nil
}

// Snapshot returns the current immutable graph. Callers must treat the
// returned graph as read-only; it is never mutated after being handed out.
func (s *Store) Snapshot() (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph == nil {
		return nil, ErrNoGraph
	}
	return s.graph, nil
}

// UpsertNode inserts or replaces a node by ID. Existing node IDs are stable
// across incremental updates: replacing a node keeps its identity, so fan-in
// and fan-out tracking survives partial re-scans.
func (s *Store) UpsertNode(node Node) error {
	if node.ID == "" {
		return &MalformedError{Detail: "node missing required field id"}
	}
	schemaErr := &SchemaError{}
	validateNode(node, schemaErr)
	if err := schemaErr.orNil(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graph == nil {
		return ErrNoGraph
	}

	nodes := cloneNodes(s.graph.Nodes)
	replaced := false
	for i := range nodes {
		if nodes[i].ID == node.ID {
			nodes[i] = node
			replaced = true
			break
		}
	}
	if !replaced {
		nodes = append(nodes, node)
	}

	s.graph = newGraph(s.graph.Metadata, nodes, cloneEdges(s.graph.Edges))
	return nil
}

// UpsertEdge inserts or updates an edge. Identity is (source, target, type);
// upserting an existing relationship only refreshes its context/file/line.
// Both endpoints must already resolve to node IDs in the graph.
func (s *Store) UpsertEdge(edge Edge) error {
	if edge.Source == "" || edge.Target == "" || edge.Type == "" {
		return &MalformedError{Detail: "edge missing required field source/target/type"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graph == nil {
		return ErrNoGraph
	}

	schemaErr := &SchemaError{}
	if !edge.Type.IsValid() {
		schemaErr.add(edgeSubject(edge), "unknown edge type", string(edge.Type))
	}
	if !s.graph.HasNode(edge.Source) {
		schemaErr.add(edgeSubject(edge), "dangling edge source", edge.Source)
	}
	if !s.graph.HasNode(edge.Target) {
		schemaErr.add(edgeSubject(edge), "dangling edge target", edge.Target)
	}
	if err := schemaErr.orNil(); err != nil {
		return err
	}

	edges := cloneEdges(s.graph.Edges)
	replaced := false
	for i := range edges {
		if edges[i].Key() == edge.Key() {
			edges[i] = edge
			replaced = true
			break
		}
	}
	if !replaced {
		edges = append(edges, edge)
	}

	s.graph = newGraph(s.graph.Metadata, cloneNodes(s.graph.Nodes), edges)
	return nil
}

// RemoveFile drops all nodes located in the given file, plus every edge that
// references a dropped node and every edge recorded in that file. Used when an
// incremental re-scan replaces a file's contribution to the graph.
func (s *Store) RemoveFile(relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graph == nil {
		return ErrNoGraph
	}

	dropped := make(map[string]bool)
	var nodes []Node
	for _, n := range s.graph.Nodes {
		if n.File == relPath {
			dropped[n.ID] = true
			continue
		}
		nodes = append(nodes, n)
	}

	var edges []Edge
	for _, e := range s.graph.Edges {
		if e.File == relPath || dropped[e.Source] || dropped[e.Target] {
			continue
		}
		edges = append(edges, e)
	}

	s.graph = newGraph(s.graph.Metadata, nodes, edges)
	return nil
}

// SetMetadata replaces the snapshot metadata, e.g. after an incremental
// update refreshes the generation timestamp.
func (s *Store) SetMetadata(meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graph == nil {
		return ErrNoGraph
	}
	s.graph = newGraph(meta, cloneNodes(s.graph.Nodes), cloneEdges(s.graph.Edges))
	return nil
}

// Neighbors returns the distinct nodes connected to nodeID in the given
// direction, optionally restricted to a set of edge types. Results are sorted
// by node ID for determinism.
func (s *Store) Neighbors(nodeID string, dir Direction, edgeTypes ...EdgeType) ([]Node, error) {
	if !dir.IsValid() {
		return nil, fmt.Errorf("invalid direction %q", dir)
	}

	g, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	if !g.HasNode(nodeID) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	allowed := make(map[EdgeType]bool, len(edgeTypes))
	for _, t := range edgeTypes {
		allowed[t] = true
	}
	match := func(t EdgeType) bool {
		return len(allowed) == 0 || allowed[t]
	}

	seen := make(map[string]bool)
	var out []Node
	collect := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		if n := g.Node(id); n != nil {
			out = append(out, *n)
		}
	}

	if dir == DirectionOut || dir == DirectionBoth {
		for _, e := range g.Outgoing(nodeID) {
			if match(e.Type) {
				collect(e.Target)
			}
		}
	}
	if dir == DirectionIn || dir == DirectionBoth {
		for _, e := range g.Incoming(nodeID) {
			if match(e.Type) {
				collect(e.Source)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// checkRequiredFields enforces basic structural typing before schema
// validation: every node needs id and type, every edge needs source, target
// and type. Anything less is malformed, not a schema violation.
func checkRequiredFields(doc Document) error {
	for i, n := range doc.Nodes {
		if n.ID == "" {
			return &MalformedError{Detail: fmt.Sprintf("nodes[%d] missing required field id", i)}
		}
		if n.Type == "" {
			return &MalformedError{Detail: fmt.Sprintf("node %s missing required field type", n.ID)}
		}
	}
	for i, e := range doc.Edges {
		if e.Source == "" || e.Target == "" || e.Type == "" {
			return &MalformedError{Detail: fmt.Sprintf("edges[%d] missing required field source/target/type", i)}
		}
	}
	return nil
}

// validateSchema collects every schema invariant violation across the node
// and edge sets.
func validateSchema(nodes []Node, edges []Edge) error {
	schemaErr := &SchemaError{}

	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if seen[n.ID] {
			schemaErr.add(n.ID, "duplicate node id", "")
			continue
		}
		seen[n.ID] = true
		validateNode(n, schemaErr)
	}

	for _, e := range edges {
		if !e.Type.IsValid() {
			schemaErr.add(edgeSubject(e), "unknown edge type", string(e.Type))
		}
		if !seen[e.Source] {
			schemaErr.add(edgeSubject(e), "dangling edge source", e.Source)
		}
		if !seen[e.Target] {
			schemaErr.add(edgeSubject(e), "dangling edge target", e.Target)
		}
	}

	return schemaErr.orNil()
}

// validateNode checks one node's invariants.
func validateNode(n Node, schemaErr *SchemaError) {
	if !n.Type.IsValid() {
		schemaErr.add(n.ID, "unknown node type", string(n.Type))
	}
	if !n.Ring.IsValid() {
		schemaErr.add(n.ID, "ring out of range", fmt.Sprintf("%d", n.Ring))
	}
	if n.Line < 1 {
		schemaErr.add(n.ID, "line must be positive", fmt.Sprintf("%d", n.Line))
	}
}

func edgeSubject(e Edge) string {
	return fmt.Sprintf("%s -[%s]-> %s", e.Source, e.Type, e.Target)
}

func cloneNodes(in []Node) []Node {
	out := make([]Node, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Metadata != nil {
			m := make(map[string]string, len(out[i].Metadata))
			for k, v := range out[i].Metadata {
				m[k] = v
			}
			out[i].Metadata = m
		}
	}
	return out
}

func cloneEdges(in []Edge) []Edge {
	out := make([]Edge, len(in))
	copy(out, in)
	return out
}
