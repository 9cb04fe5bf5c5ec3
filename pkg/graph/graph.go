package graph

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// ProcessGraph is the data structure produced by script evaluation. It is
// not mutated after evaluation; each evaluation produces a new graph.
type ProcessGraph struct {
	Nodes   map[NodeID]*Node  `json:"nodes"`
	Order   []NodeID          `json:"order"`
	Domains map[string]NodeID `json:"domains"`
	Threads int               `json:"threads"`
}

// New creates an empty ProcessGraph.
func New() *ProcessGraph {
	return &ProcessGraph{
		Nodes:   make(map[NodeID]*Node),
		Domains: make(map[string]NodeID),
	}
}

// AddNode appends a node to the execution order. Nodes declaring a domain
// register its name; a later declaration of the same name is kept for
// validation but does not replace the first.
func (g *ProcessGraph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
	g.Order = append(g.Order, n.ID)
	if declares(n) {
		if _, ok := g.Domains[n.Data.Target()]; !ok {
			g.Domains[n.Data.Target()] = n.ID
		}
	}
}

func declares(n *Node) bool {
	return n.Kind == NodeDomain || n.Kind == NodeCopy
}

// Lookup returns the node declaring the domain name, or nil.
func (g *ProcessGraph) Lookup(name string) *Node {
	id, ok := g.Domains[name]
	if !ok {
		return nil
	}
	return g.Nodes[id]
}

// MustLookup returns the node declaring name, or panics.
func (g *ProcessGraph) MustLookup(name string) *Node {
	n := g.Lookup(name)
	if n == nil {
		panic(fmt.Sprintf("graph: no domain named %q", name))
	}
	return n
}

// Get returns the node with the given ID, or nil.
func (g *ProcessGraph) Get(id NodeID) *Node {
	return g.Nodes[id]
}

// Steps returns the nodes in execution order.
func (g *ProcessGraph) Steps() []*Node {
	return lo.FilterMap(g.Order, func(id NodeID, _ int) (*Node, bool) {
		n, ok := g.Nodes[id]
		return n, ok
	})
}

// Meshes returns the mesh nodes in execution order.
func (g *ProcessGraph) Meshes() []*Node {
	return lo.Filter(g.Steps(), func(n *Node, _ int) bool { return n.Kind == NodeMesh })
}

// DomainNames returns the declared domain names, sorted.
func (g *ProcessGraph) DomainNames() []string {
	names := lo.Keys(g.Domains)
	slices.Sort(names)
	return names
}

// NodeCount returns the total number of nodes.
func (g *ProcessGraph) NodeCount() int {
	return len(g.Nodes)
}
