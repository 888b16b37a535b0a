// Package graph provides the runtime association registry consumed by the
// association-path micro-language and the generated operations.
//
// A Graph maps alias names to target entity types; every association carries
// its own child Graph, so a registry forms an arbitrarily deep tree. The
// graph is provided once at startup and is read-only afterwards: traversal
// depth is driven entirely by caller input, never by the graph itself, so no
// cycle detection is needed (a path may legitimately revisit a type).
package graph

import "fmt"

// Association is one named relationship of an entity type: the alias it is
// exposed under, the target entity type, and the target's own registry.
type Association struct {
	// Alias is the name the relationship is exposed under (e.g.
	// "Texture" on "Material"). Unique within one Graph.
	Alias string

	// Target is the entity type the association points to.
	Target string

	// Graph is the target's own association registry. May be empty,
	// never nil after New/Add.
	Graph *Graph
}

// Graph is the association registry of a single entity type.
// The zero value is an empty registry ready for Add.
type Graph struct {
	assocs []*Association
}

// New returns a Graph holding the given associations.
// It panics on a duplicate alias, as the registry is assembled once at
// startup from static entity definitions.
func New(assocs ...*Association) *Graph {
	g := &Graph{}
	for _, a := range assocs {
		if err := g.Add(a); err != nil {
			panic(err)
		}
	}
	return g
}

// Add registers an association. It fails on a duplicate alias.
func (g *Graph) Add(a *Association) error {
	if a.Alias == "" {
		return fmt.Errorf("graph: association with empty alias (target %q)", a.Target)
	}
	if _, ok := g.Lookup(a.Alias); ok {
		return fmt.Errorf("graph: duplicate association alias %q", a.Alias)
	}
	if a.Graph == nil {
		a.Graph = &Graph{}
	}
	g.assocs = append(g.assocs, a)
	return nil
}

// Lookup returns the association registered under alias.
func (g *Graph) Lookup(alias string) (*Association, bool) {
	if g == nil {
		return nil, false
	}
	for _, a := range g.assocs {
		if a.Alias == alias {
			return a, true
		}
	}
	return nil, false
}

// Aliases returns the registered alias names in registration order.
// Used to tell a caller what would have been valid after a failed lookup.
func (g *Graph) Aliases() []string {
	if g == nil {
		return nil
	}
	names := make([]string, len(g.assocs))
	for i, a := range g.assocs {
		names[i] = a.Alias
	}
	return names
}

// Len returns the number of registered associations.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.assocs)
}

// Node is one resolved inclusion-tree node: an alias validated against a
// Graph scope, the entity type it resolved to, and its resolved children.
// A slice of nodes is the query fragment the data layer consumes to fetch
// related records alongside a primary record.
type Node struct {
	Alias    string
	Target   string
	Children []*Node
}

// NewNode returns a Node for the resolved association with the given children.
func NewNode(a *Association, children ...*Node) *Node {
	return &Node{Alias: a.Alias, Target: a.Target, Children: children}
}
