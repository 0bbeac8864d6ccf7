package graph

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"genesynth/internal/fault"
	"genesynth/internal/fixture"
	"genesynth/internal/schema"
)

const DefaultRoot = "root"

// Options tune graph construction.
type Options struct {
	// Root is the name of the schema root; every node name starts with it.
	Root string
	// Seed is the run seed each node seed is derived from.
	Seed     uint64
	Provider fixture.Provider
}

// Build walks the schema post-order: each field's subtree is complete before
// the field itself is registered and its child edges are wired.
func Build(root *schema.Node, opts Options) (*Graph, error) {
	if root == nil {
		return nil, fault.Configf("", "nil schema")
	}
	if opts.Root == "" {
		opts.Root = DefaultRoot
	}
	if err := schema.CheckFieldName(opts.Root); err != nil {
		return nil, fault.Configf("", "root: %v", err)
	}
	size, err := root.Size()
	if err != nil {
		return nil, fault.Configf(opts.Root, "%v", err)
	}
	if size <= 0 {
		return nil, fault.Configf(opts.Root, "root metadata.size must be a positive integer")
	}

	b := &builder{g: newGraph(opts.Root), opts: opts}
	if _, err := b.build(opts.Root, root, size); err != nil {
		return nil, err
	}
	b.g.computeDepth()
	return b.g, nil
}

type builder struct {
	g    *Graph
	opts Options
}

func (b *builder) build(name string, n *schema.Node, inherited int) (*Node, error) {
	if n == nil {
		return nil, fault.Configf(name, "field has no definition")
	}
	meta := fixture.Metadata(n.Metadata).Clone()

	size, err := n.Size()
	if err != nil {
		return nil, fault.Configf(name, "%v", err)
	}
	if size == 0 {
		size = inherited
	}
	constraints, err := fixture.ParseConstraints(n.Constraints)
	if err != nil {
		return nil, fault.Configf(name, "%v", err)
	}

	typeName := n.Type.Name
	target, err := fixture.ForeignTarget(meta)
	if err != nil {
		return nil, fault.Configf(name, "%v", err)
	}
	if target != "" {
		typeName = string(fixture.KindForeign)
	}
	if typeName == "" {
		return nil, fault.Configf(name, "type is required")
	}
	kind, err := fixture.ParseKind(typeName)
	if err != nil {
		return nil, fault.Configf(name, "%v", err)
	}

	var children []*Node
	switch {
	case n.Type.Array && kind == fixture.KindJSON:
		kind = fixture.KindJSONArray
	case n.Type.Array && len(n.Properties) > 0:
		kind = fixture.KindArray
	case n.Type.Array && kind.IsContainer():
		return nil, fault.Configf(name, "%s requires properties", n.Type)
	case n.Type.Array:
		children, err = b.elements(name, n, meta, size)
		if err != nil {
			return nil, err
		}
		kind = fixture.KindArray
		meta = fixture.Metadata{}
		constraints = fixture.Constraints{}
	}

	workload := fixture.DefaultWorkload(kind)
	if raw, ok := meta["workload"]; ok {
		w, err := fixture.ParseWorkload(fmt.Sprint(raw))
		if err != nil {
			return nil, fault.Configf(name, "%v", err)
		}
		if workload == fixture.WorkloadCooperative && w != workload {
			return nil, fault.Configf(name, "%s fields always run cooperatively, got workload %s", kind, w)
		}
		workload = w
	}

	for _, prop := range n.Properties {
		if err := schema.CheckFieldName(prop.Name); err != nil {
			return nil, fault.Configf(name, "%v", err)
		}
		child, err := b.build(name+"."+prop.Name, prop.Node, size)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	fixtures := make([]fixture.Fixture, len(children))
	for i, c := range children {
		fixtures[i] = c.Fixture
	}
	opts := []fixture.Option{fixture.WithChildren(fixtures...)}
	if b.opts.Provider != nil {
		opts = append(opts, fixture.WithProvider(b.opts.Provider))
	}
	f, err := fixture.New(fixture.Spec{
		Name:        name,
		Kind:        kind,
		Size:        size,
		Seed:        fixture.SeedFor(b.opts.Seed, name),
		Workload:    workload,
		Metadata:    meta,
		Constraints: constraints,
	}, opts...)
	if err != nil {
		return nil, err
	}

	node, ok := b.g.register(f)
	if !ok {
		return nil, fault.Configf(name, "duplicate node name")
	}
	for _, c := range children {
		b.g.addEdge(node.index, c.index, EdgeChild)
	}
	return node, nil
}

// elements expands a scalar array type into metadata.items element fields.
func (b *builder) elements(name string, n *schema.Node, meta fixture.Metadata, size int) ([]*Node, error) {
	items, err := meta.Int("items", 3)
	if err != nil {
		return nil, fault.Configf(name, "%v", err)
	}
	if items <= 0 {
		return nil, fault.Configf(name, "metadata.items must be positive, got %d", items)
	}
	elemMeta := meta.Clone()
	delete(elemMeta, "items")
	delete(elemMeta, "size")

	out := make([]*Node, 0, items)
	for i := 0; i < int(items); i++ {
		elem := &schema.Node{
			Type:        schema.TypeRef{Name: n.Type.Name},
			Metadata:    elemMeta,
			Constraints: n.Constraints,
		}
		child, err := b.build(fmt.Sprintf("%s.%d", name, i), elem, size)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// ResolveForeign binds every foreign field to its target and inserts the
// foreign edges, then freezes the graph. The lookup walks the dotted path one
// level at a time through child edges, starting at the root. A nil src binds
// targets to direct generation.
//
// Calling it again rebinds the source; edges are inserted only once.
func (g *Graph) ResolveForeign(src fixture.Source) error {
	if src == nil {
		src = DirectSource(g)
	}
	for _, n := range g.nodes {
		f, ok := n.Foreign()
		if !ok {
			continue
		}
		target, err := g.lookup(f.Target())
		if err != nil {
			return fault.Configf(n.Name, "unresolved foreign path %q: %v", f.Target(), err)
		}
		if target == n {
			return fault.Configf(n.Name, "foreign field references itself")
		}
		if _, isContainer := target.Container(); isContainer {
			return fault.Configf(n.Name, "foreign target %s is a container", target.Name)
		}
		g.addEdge(n.index, target.index, EdgeForeign)
		f.Bind(target.Name, src)
	}
	if err := g.validateAcyclic(); err != nil {
		return err
	}
	g.computeDepth()
	g.resolved = true
	g.hash = g.computeHash()
	return nil
}

// Resolved reports whether ResolveForeign has frozen the graph.
func (g *Graph) Resolved() bool { return g.resolved }

func (g *Graph) lookup(path string) (*Node, error) {
	path = strings.TrimPrefix(path, g.root+".")
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	cur := g.byName[g.root]
	if cur == nil {
		return nil, fmt.Errorf("graph has no root %q", g.root)
	}
	for _, seg := range strings.Split(path, ".") {
		next, ok := g.byName[cur.Name+"."+seg]
		if !ok || !slices.Contains(g.children[cur.index], next.index) {
			return nil, fmt.Errorf("no field %q under %s", seg, cur.Name)
		}
		cur = next
	}
	return cur, nil
}

type directSource struct{ g *Graph }

// DirectSource serves a node's values by generating its fixture in place.
func DirectSource(g *Graph) fixture.Source { return directSource{g: g} }

func (s directSource) Values(ctx context.Context, name string) ([]string, error) {
	n, ok := s.g.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", name)
	}
	arr, err := n.Fixture.Generate(ctx)
	if err != nil {
		return nil, err
	}
	return arr.Values, nil
}
