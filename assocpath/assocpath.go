// Package assocpath implements the association-path micro-language: a
// compact string encoding of nested entity relationships that is validated
// against a graph.Graph and expanded into an inclusion tree.
//
// The grammar is:
//
//	path       := segment (',' segment)*
//	segment    := alias ('.' subsegment)?
//	subsegment := alias (':' alias)*
//
// Top-level segments are sibling associations of the root entity. A segment
// with a dotted part names one association whose own children are the
// colon-separated alias list after the dot. For example, on a Material:
//
//	Texture.TextureType:Images,MaterialType
//
// resolves to two top-level nodes: Texture with children TextureType and
// Images, and a bare MaterialType. Only one level of parent.children
// grouping is expressible per segment; the grammar cannot nest deeper than
// two levels. This is a documented limitation of the encoding, not a
// shortcoming of the parser.
//
// An alias that itself has children but carries no dotted part is never
// expanded implicitly. Only explicitly listed descendants are included, so
// a path cannot leak related data the caller did not ask for.
package assocpath

import (
	"strings"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/graph"
)

// Parse validates and expands a path string against the graph scope g and
// returns the resolved inclusion tree, one node per top-level segment.
// A failed alias lookup returns a meteor.InvalidAssociationError; for
// top-level aliases it also names the aliases valid at that scope.
func Parse(g *graph.Graph, path string) ([]*graph.Node, error) {
	segments := strings.Split(path, ",")
	nodes := make([]*graph.Node, 0, len(segments))
	for _, segment := range segments {
		alias, sub, grouped := strings.Cut(segment, ".")
		a, ok := g.Lookup(alias)
		if !ok {
			return nil, meteor.NewInvalidAssociationError(alias, g.Aliases())
		}
		node := graph.NewNode(a)
		if grouped {
			for _, childAlias := range strings.Split(sub, ":") {
				child, ok := a.Graph.Lookup(childAlias)
				if !ok {
					return nil, meteor.NewInvalidAssociationError(childAlias, nil)
				}
				node.Children = append(node.Children, graph.NewNode(child))
			}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// ResolveOne validates a single bare alias against the direct children of g
// and returns its node. It is the convenience form used where only one
// related entity may be attached; the comma/dot/colon grammar does not
// apply here.
func ResolveOne(g *graph.Graph, alias string) (*graph.Node, error) {
	a, ok := g.Lookup(alias)
	if !ok {
		return nil, meteor.NewInvalidAssociationError(alias, g.Aliases())
	}
	return graph.NewNode(a), nil
}

// Encode produces the canonical path string for a resolved inclusion tree.
// It is the inverse of Parse: Parse(g, Encode(t)) reproduces t for any tree
// constructible by Parse. Grandchildren are not expressible by the grammar
// and are ignored.
func Encode(nodes []*graph.Node) string {
	var sb strings.Builder
	for i, node := range nodes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(node.Alias)
		for j, child := range node.Children {
			if j == 0 {
				sb.WriteByte('.')
			} else {
				sb.WriteByte(':')
			}
			sb.WriteString(child.Alias)
		}
	}
	return sb.String()
}
