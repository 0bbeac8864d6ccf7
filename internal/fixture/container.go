package fixture

import (
	"context"

	"genesynth/internal/fault"
)

// group is every container variant; the Kind picks the merge layout.
type group struct {
	spec     Spec
	children []Fixture
}

func newGroup(spec Spec, children []Fixture) *group {
	return &group{spec: spec, children: append([]Fixture(nil), children...)}
}

func (g *group) Spec() Spec { return g.spec }

func (g *group) Layout() Layout { return g.spec.Kind.Layout() }

func (g *group) Children() []Fixture {
	return append([]Fixture(nil), g.children...)
}

// Generate yields each child's array positionally, keyed by the child's
// innermost name unless the container is an ordered array.
func (g *group) Generate(ctx context.Context) (Array, error) {
	out := Array{Children: make([]Array, 0, len(g.children))}
	for _, c := range g.children {
		arr, err := c.Generate(ctx)
		if err != nil {
			return Array{}, err
		}
		if arr.Len() != g.spec.Size {
			return Array{}, fault.Integrityf(g.spec.Name, "child %s has %d rows, want %d", c.Spec().Name, arr.Len(), g.spec.Size)
		}
		out.Children = append(out.Children, arr)
		if g.Layout() != LayoutList {
			out.Keys = append(out.Keys, c.Spec().Key())
		}
	}
	return out, nil
}
