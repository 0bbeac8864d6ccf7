package fixture

import (
	"cmp"
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"genesynth/internal/fault"
	"genesynth/internal/mat"
)

// column is a raw typed draw that can be ordered and rendered.
type column interface {
	Len() int
	Order() []int
	Render() []string
}

type typed[T any] struct {
	vals    []T
	compare func(a, b T) int
	render  func(T) string
}

func (c typed[T]) Len() int { return len(c.vals) }

func (c typed[T]) Order() []int { return mat.OrderedIndexFunc(c.vals, c.compare) }

func (c typed[T]) Render() []string {
	out := make([]string, len(c.vals))
	for i, v := range c.vals {
		out[i] = c.render(v)
	}
	return out
}

func rawOf[T cmp.Ordered](vals []T, render func(T) string) column {
	return typed[T]{vals: vals, compare: cmp.Compare[T], render: render}
}

// rawStrings orders rendered values numerically when both sides parse as
// numbers, lexically otherwise.
func rawStrings(vals []string) column {
	return typed[string]{vals: vals, compare: compareLoose, render: func(s string) string { return s }}
}

func compareLoose(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(fa, fb)
	}
	return strings.Compare(a, b)
}

type drawFunc func(ctx context.Context, r *rand.Rand, size int) (column, error)

// Null is the rendered value of a masked position.
const Null = ""

// leaf runs the shared pipeline: raw draw, index hook, stringify, null mask,
// uniqueness check.
type leaf struct {
	spec Spec
	draw drawFunc

	maskOnce sync.Once
	mask     []bool
}

func (l *leaf) Spec() Spec { return l.spec }

func (l *leaf) Generate(ctx context.Context) (Array, error) {
	if err := ctx.Err(); err != nil {
		return Array{}, err
	}
	col, err := l.draw(ctx, l.spec.rand(streamValues), l.spec.Size)
	if err != nil {
		return Array{}, fault.Wrap(fault.ErrGeneration, l.spec.Name, err)
	}
	return finish(l.spec, col, l.nullMask())
}

// nullMask is drawn once per fixture and reused across generations.
func (l *leaf) nullMask() []bool {
	l.maskOnce.Do(func() {
		if p, ok := l.spec.Constraints.NullPercent(); ok {
			l.mask = mat.NullMask(l.spec.rand(streamMask), l.spec.Size, p)
		}
	})
	return l.mask
}

func finish(spec Spec, col column, mask []bool) (Array, error) {
	return finishInherited(spec, col, mask, false)
}

// finishInherited is finish for values copied from another node. With
// inheritNulls set, positions already Null in the source count as null for
// the uniqueness check alongside the node's own mask.
func finishInherited(spec Spec, col column, mask []bool, inheritNulls bool) (Array, error) {
	if col.Len() != spec.Size {
		return Array{}, fault.Generationf(spec.Name, "drew %d values, want %d", col.Len(), spec.Size)
	}
	values := col.Render()
	if spec.Constraints.Ordered() {
		values = mat.Take(values, col.Order())
	}
	if mask != nil {
		values = mat.ApplyNullable(values, mask, Null)
	}
	if spec.Constraints.Has(Unique) {
		skip := mask
		if inheritNulls {
			skip = mat.MaskEquals(values, Null)
		}
		if err := checkUnique(spec.Name, values, skip); err != nil {
			return Array{}, err
		}
	}
	return Array{Values: values}, nil
}

// checkUnique reports duplicates among non-null values. Evenly spaced
// quantiles can still collide once rendered; that is surfaced, not repaired.
func checkUnique(name string, values []string, mask []bool) error {
	seen := make(map[string]int, len(values))
	for i, v := range values {
		if mask != nil && mask[i] {
			continue
		}
		if j, dup := seen[v]; dup {
			return fault.Integrityf(name, "unique constraint violated: %q at rows %d and %d", v, j, i)
		}
		seen[v] = i
	}
	return nil
}
