package fixture

import (
	"context"
	"fmt"

	"genesynth/internal/fault"
)

// Fixture is a typed node producing a fixed-size array.
type Fixture interface {
	Spec() Spec
	Generate(ctx context.Context) (Array, error)
}

// Container is a fixture composed of child fixtures. Its artifact is derived
// by merging the children, never from a precomputed array.
type Container interface {
	Fixture
	Children() []Fixture
	Layout() Layout
}

// Source resolves the rendered values of another node by full dotted name.
type Source interface {
	Values(ctx context.Context, name string) ([]string, error)
}

type options struct {
	children []Fixture
	provider Provider
}

type Option func(*options)

// WithChildren attaches the ordered children of a container.
func WithChildren(children ...Fixture) Option {
	return func(o *options) { o.children = append(o.children, children...) }
}

// WithProvider replaces the built-in text provider for string fields.
func WithProvider(p Provider) Option {
	return func(o *options) { o.provider = p }
}

// New is the name-to-variant constructor. It validates the spec and metadata
// up front so configuration errors surface before any generation starts.
func New(spec Spec, opts ...Option) (Fixture, error) {
	o := options{provider: DefaultProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	kind, err := ParseKind(string(spec.Kind))
	if err != nil {
		return nil, fault.Configf(spec.Name, "%v", err)
	}
	spec.Kind = kind
	if spec.Name == "" {
		return nil, fault.Configf("", "fixture name is required")
	}
	if spec.Size <= 0 {
		return nil, fault.Configf(spec.Name, "size must be positive, got %d", spec.Size)
	}
	if spec.Workload == "" {
		spec.Workload = DefaultWorkload(kind)
	}
	if spec.Metadata == nil {
		spec.Metadata = Metadata{}
	}
	if spec.Constraints == nil {
		spec.Constraints = Constraints{}
	}

	if kind.IsContainer() {
		if len(o.children) == 0 {
			return nil, fault.Configf(spec.Name, "%s container has no properties", kind)
		}
		return newGroup(spec, o.children), nil
	}
	if len(o.children) > 0 {
		return nil, fault.Configf(spec.Name, "%s is not a container", kind)
	}
	if spec.Constraints.Has(UUID) && kind != KindText && kind != KindString {
		return nil, fault.Configf(spec.Name, "uuid constraint requires a text or string field, got %s", kind)
	}
	if kind == KindForeign {
		return newForeign(spec)
	}

	draw, err := drawFor(spec, o.provider)
	if err != nil {
		return nil, fault.Configf(spec.Name, "%v", err)
	}
	return &leaf{spec: spec, draw: draw}, nil
}

func drawFor(spec Spec, p Provider) (drawFunc, error) {
	if spec.Constraints.Has(UUID) {
		return uuidDraw, nil
	}
	switch spec.Kind {
	case KindSerial:
		return serialDraw(spec.Metadata)
	case KindInteger:
		return integerDraw(spec.Metadata, spec.Constraints.Has(Unique))
	case KindFloat:
		return floatDraw(spec.Metadata, spec.Constraints.Has(Unique), -1)
	case KindDecimal:
		return decimalDraw(spec.Metadata, spec.Constraints.Has(Unique))
	case KindBoolean:
		return booleanDraw, nil
	case KindEnum:
		return enumDraw(spec.Metadata, spec.Constraints.Has(Unique))
	case KindText:
		return textDraw(spec.Metadata)
	case KindString:
		return stringDraw(spec.Metadata, p)
	case KindTimestamp, KindDate, KindTime:
		return temporalDraw(spec.Kind, spec.Metadata)
	case KindPassword:
		return passwordDraw(spec.Metadata)
	}
	return nil, fmt.Errorf("no generation rule for type %s", spec.Kind)
}
