// Package graph is the schema graph: one node per field, "child" edges from a
// container to its fields and "foreign" edges from a reference to its target.
//
// A Graph is built in one pass, then frozen by ResolveForeign. After that it
// is safe for concurrent read access.
package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"iter"
	"slices"
	"sort"

	"genesynth/internal/fixture"
)

type EdgeKind string

const (
	EdgeChild   EdgeKind = "child"
	EdgeForeign EdgeKind = "foreign"
)

// Edge is a (From, To) name pair. Foreign edges point from the reference to
// the node it reads.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// Node wraps one fixture.
type Node struct {
	Name    string
	Fixture fixture.Fixture

	index int
}

func (n *Node) Spec() fixture.Spec { return n.Fixture.Spec() }

func (n *Node) Container() (fixture.Container, bool) {
	c, ok := n.Fixture.(fixture.Container)
	return c, ok
}

func (n *Node) Foreign() (*fixture.Foreign, bool) {
	f, ok := n.Fixture.(*fixture.Foreign)
	return f, ok
}

type edge struct {
	from int
	to   int
	kind EdgeKind
}

type Graph struct {
	root   string
	nodes  []*Node // registration order: children before parents
	byName map[string]*Node

	edges    []edge
	seen     map[[2]int]bool
	outgoing [][]int // sorted ascending
	incoming [][]int // sorted ascending
	children [][]int // child edges only, declaration order
	depth    []int

	resolved bool
	hash     string
}

func newGraph(root string) *Graph {
	return &Graph{root: root, byName: map[string]*Node{}, seen: map[[2]int]bool{}}
}

func (g *Graph) register(f fixture.Fixture) (*Node, bool) {
	name := f.Spec().Name
	if _, dup := g.byName[name]; dup {
		return nil, false
	}
	n := &Node{Name: name, Fixture: f, index: len(g.nodes)}
	g.nodes = append(g.nodes, n)
	g.byName[name] = n
	g.outgoing = append(g.outgoing, nil)
	g.incoming = append(g.incoming, nil)
	g.children = append(g.children, nil)
	return n, true
}

// addEdge inserts from -> to once; it reports whether the edge is new.
func (g *Graph) addEdge(from, to int, kind EdgeKind) bool {
	key := [2]int{from, to}
	if g.seen[key] {
		return false
	}
	g.seen[key] = true
	g.edges = append(g.edges, edge{from: from, to: to, kind: kind})
	g.outgoing[from] = insertSorted(g.outgoing[from], to)
	g.incoming[to] = insertSorted(g.incoming[to], from)
	if kind == EdgeChild {
		g.children[from] = append(g.children[from], to)
	}
	return true
}

func insertSorted(s []int, v int) []int {
	i, _ := slices.BinarySearch(s, v)
	return slices.Insert(s, i, v)
}

// RootName is the name prefix of every node.
func (g *Graph) RootName() string { return g.root }

// Len is the node count.
func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.byName[name]
	return n, ok
}

// Root returns the schema root node.
func (g *Graph) Root() *Node { return g.byName[g.root] }

// Nodes returns the nodes in registration order.
func (g *Graph) Nodes() []*Node {
	return slices.Clone(g.nodes)
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].Name, To: g.nodes[e.to].Name, Kind: e.kind})
	}
	return out
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = g.nodes[j].Name
	}
	return out
}

// Children returns a container's fields in declaration order.
func (g *Graph) Children(name string) []string {
	n, ok := g.byName[name]
	if !ok {
		return nil
	}
	return g.names(g.children[n.index])
}

// Roots returns nodes with zero in-degree.
func (g *Graph) Roots() []string {
	var out []string
	for i, n := range g.nodes {
		if len(g.incoming[i]) == 0 {
			out = append(out, n.Name)
		}
	}
	return out
}

// Leaves returns nodes with in-degree 1 and out-degree 0.
func (g *Graph) Leaves() []string {
	var out []string
	for i, n := range g.nodes {
		if len(g.incoming[i]) == 1 && len(g.outgoing[i]) == 0 {
			out = append(out, n.Name)
		}
	}
	return out
}

func (g *Graph) closure(start int, adj [][]int) []int {
	visited := make([]bool, len(g.nodes))
	stack := slices.Clone(adj[start])
	var out []int
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[u] {
			continue
		}
		visited[u] = true
		out = append(out, u)
		stack = append(stack, adj[u]...)
	}
	sort.Ints(out)
	return out
}

// Ancestors returns every node with a path to name.
func (g *Graph) Ancestors(name string) []string {
	n, ok := g.byName[name]
	if !ok {
		return nil
	}
	return g.names(g.closure(n.index, g.incoming))
}

// Descendants returns every node reachable from name.
func (g *Graph) Descendants(name string) []string {
	n, ok := g.byName[name]
	if !ok {
		return nil
	}
	return g.names(g.closure(n.index, g.outgoing))
}

// computeDepth is a multi-source BFS from the roots: the shortest distance to
// the nearest root.
func (g *Graph) computeDepth() {
	depth := make([]int, len(g.nodes))
	for i := range depth {
		depth[i] = -1
	}
	var queue []int
	for i := range g.nodes {
		if len(g.incoming[i]) == 0 {
			depth[i] = 0
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.outgoing[u] {
			if depth[v] < 0 {
				depth[v] = depth[u] + 1
				queue = append(queue, v)
			}
		}
	}
	g.depth = depth
}

func (g *Graph) Depth(name string) (int, bool) {
	n, ok := g.byName[name]
	if !ok {
		return 0, false
	}
	return g.depth[n.index], true
}

// Batch is the set of nodes sharing one depth.
type Batch struct {
	Depth int
	Nodes []string
}

// DepthGroups returns nodes grouped by depth, deepest first.
func (g *Graph) DepthGroups() []Batch {
	byDepth := map[int][]string{}
	var depths []int
	for i, n := range g.nodes {
		d := g.depth[i]
		if _, ok := byDepth[d]; !ok {
			depths = append(depths, d)
		}
		byDepth[d] = append(byDepth[d], n.Name)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(depths)))
	out := make([]Batch, 0, len(depths))
	for _, d := range depths {
		out = append(out, Batch{Depth: d, Nodes: byDepth[d]})
	}
	return out
}

func (g *Graph) source(name string) (int, bool) {
	if name == "" {
		if len(g.nodes) == 0 {
			return 0, false
		}
		name = g.root
	}
	n, ok := g.byName[name]
	if !ok {
		return 0, false
	}
	return n.index, true
}

// BFSEdges returns the breadth-first tree edges from source ("" for the root).
func (g *Graph) BFSEdges(source string) []Edge {
	start, ok := g.source(source)
	if !ok {
		return nil
	}
	visited := map[int]bool{start: true}
	queue := []int{start}
	var out []Edge
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.outgoing[u] {
			if visited[v] {
				continue
			}
			visited[v] = true
			out = append(out, g.edgeBetween(u, v))
			queue = append(queue, v)
		}
	}
	return out
}

// DFSEdges returns the depth-first (preorder) tree edges from source.
func (g *Graph) DFSEdges(source string) []Edge {
	start, ok := g.source(source)
	if !ok {
		return nil
	}
	visited := map[int]bool{}
	var out []Edge
	var visit func(u int)
	visit = func(u int) {
		visited[u] = true
		for _, v := range g.outgoing[u] {
			if visited[v] {
				continue
			}
			out = append(out, g.edgeBetween(u, v))
			visit(v)
		}
	}
	visit(start)
	return out
}

func (g *Graph) edgeBetween(u, v int) Edge {
	kind := EdgeChild
	if !slices.Contains(g.children[u], v) {
		kind = EdgeForeign
	}
	return Edge{From: g.nodes[u].Name, To: g.nodes[v].Name, Kind: kind}
}

// Schedule yields, per depth bucket (deepest first), every ancestor of each
// node before the node itself. Nodes are yielded more than once; consumers
// must treat repeats as no-ops.
func (g *Graph) Schedule() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, batch := range g.DepthGroups() {
			for _, name := range batch.Nodes {
				n := g.byName[name]
				anc := g.closure(n.index, g.incoming)
				sort.SliceStable(anc, func(i, j int) bool { return g.depth[anc[i]] < g.depth[anc[j]] })
				for _, a := range anc {
					if !yield(g.nodes[a]) {
						return
					}
				}
				if !yield(n) {
					return
				}
			}
		}
	}
}

// Hash is a stable identity over node names, kinds and edges.
func (g *Graph) Hash() string {
	if g.hash != "" {
		return g.hash
	}
	return g.computeHash()
}

func (g *Graph) computeHash() string {
	h := sha256.New()
	writeField := func(data string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(data)))
		h.Write(n[:])
		h.Write([]byte(data))
	}
	for _, n := range g.nodes {
		writeField(n.Name)
		writeField(string(n.Spec().Kind))
	}
	for _, e := range g.Edges() {
		writeField(e.From)
		writeField(e.To)
		writeField(string(e.Kind))
	}
	return hex.EncodeToString(h.Sum(nil))
}
