package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codeloom/codeloom/graph"
)

// ErrNotCollection reports a contract query against a non-collection node.
var ErrNotCollection = fmt.Errorf("node is not a collection")

// ContractEntry is one caller touching a collection.
type ContractEntry struct {
	Caller graph.Node `json:"caller"`
	Edge   graph.Edge `json:"edge"`
}

// Contract is the access contract of a collection: every node that reads it
// and every node that writes it. Deletion is a kind of write; use Deleters to
// single those out.
type Contract struct {
	Collection graph.Node      `json:"collection"`
	Readers    []ContractEntry `json:"readers"`
	Writers    []ContractEntry `json:"writers"`
}

// deletionMarkers are context substrings that indicate a destructive write.
var deletionMarkers = []string{"delete", "remove", "drop"}

// Deleters returns the writers whose edge context indicates deletion. They
// remain in Writers too; a delete is still a write to the collection.
func (c *Contract) Deleters() []ContractEntry {
	var out []ContractEntry
	for _, w := range c.Writers {
		ctx := strings.ToLower(w.Edge.Context)
		for _, marker := range deletionMarkers {
			if strings.Contains(ctx, marker) {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

// Contract partitions every db_read and db_write edge targeting the given
// collection into readers and writers, each sorted by caller ID then edge
// type.
func (e *Engine) Contract(collectionID string) (*Contract, error) {
	node := e.g.Node(collectionID)
	if node == nil {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, collectionID)
	}
	if node.Type != graph.NodeCollection {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCollection, collectionID, node.Type)
	}

	c := &Contract{Collection: *node}
	for _, edge := range e.g.Incoming(collectionID) {
		caller := e.g.Node(edge.Source)
		if caller == nil {
			continue
		}
		entry := ContractEntry{Caller: *caller, Edge: *edge}
		switch edge.Type {
		case graph.EdgeDBRead:
			c.Readers = append(c.Readers, entry)
		case graph.EdgeDBWrite:
			c.Writers = append(c.Writers, entry)
		}
	}

	sortEntries(c.Readers)
	sortEntries(c.Writers)
	return c, nil
}

func sortEntries(entries []ContractEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Caller.ID != entries[j].Caller.ID {
			return entries[i].Caller.ID < entries[j].Caller.ID
		}
		return entries[i].Edge.Type < entries[j].Edge.Type
	})
}
