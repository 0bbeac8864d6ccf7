package fixture

import (
	"context"
	"fmt"
	"sync"

	"genesynth/internal/fault"
	"genesynth/internal/mat"
)

// Foreign reproduces another node's values, then applies its own constraints.
// The target is bound once, before scheduling, by the graph's resolve pass.
type Foreign struct {
	spec   Spec
	target string

	mu       sync.Mutex
	resolved string
	src      Source

	maskOnce sync.Once
	mask     []bool
}

func newForeign(spec Spec) (*Foreign, error) {
	target, err := ForeignTarget(spec.Metadata)
	if err != nil {
		return nil, fault.Configf(spec.Name, "%v", err)
	}
	if target == "" {
		return nil, fault.Configf(spec.Name, "foreign field requires metadata.foreign.name")
	}
	return &Foreign{spec: spec, target: target}, nil
}

// ForeignTarget extracts the dotted path of metadata.foreign, which may be
// {name: path} or the path itself. It returns "" when absent.
func ForeignTarget(m Metadata) (string, error) {
	switch v := m["foreign"].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		fm, ok := toStringMap(v)
		if !ok {
			return "", fmt.Errorf("metadata.foreign must be a mapping, got %T", v)
		}
		name, _ := fm["name"].(string)
		if name == "" {
			return "", fmt.Errorf("metadata.foreign.name is required")
		}
		return name, nil
	}
}

func (f *Foreign) Spec() Spec { return f.spec }

// Target is the reference as written in the schema, relative to the root.
func (f *Foreign) Target() string { return f.target }

// Bind sets the resolved target node and the source serving its values.
// Rebinding to the same target is a no-op.
func (f *Foreign) Bind(name string, src Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = name
	f.src = src
}

// Resolved returns the bound target's full name, or "".
func (f *Foreign) Resolved() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}

func (f *Foreign) Generate(ctx context.Context) (Array, error) {
	f.mu.Lock()
	name, src := f.resolved, f.src
	f.mu.Unlock()
	if src == nil {
		return Array{}, fault.Generationf(f.spec.Name, "foreign reference %q is not resolved", f.target)
	}

	vals, err := src.Values(ctx, name)
	if err != nil {
		return Array{}, fault.Wrap(fault.ErrGeneration, f.spec.Name, err)
	}
	if f.spec.Constraints.Has(Subset) || len(vals) != f.spec.Size {
		vals, err = mat.Sample(f.spec.rand(streamSubset), f.spec.Size, mat.Options[string]{Values: vals}, true)
		if err != nil {
			return Array{}, fault.Generationf(f.spec.Name, "sampling %s: %v", name, err)
		}
	}

	f.maskOnce.Do(func() {
		if p, ok := f.spec.Constraints.NullPercent(); ok {
			f.mask = mat.NullMask(f.spec.rand(streamMask), f.spec.Size, p)
		}
	})
	return finishInherited(f.spec, rawStrings(vals), f.mask, true)
}
