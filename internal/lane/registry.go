package lane

import (
	"fmt"
	"sort"
	"strings"

	"genesynth/internal/fixture"
)

// Method is a fixture operation that can be pinned to the process lane.
type Method string

const (
	MethodGenerate Method = "generate"
	MethodPersist  Method = "persist"
)

type binding struct {
	kind   fixture.Kind
	method Method
}

// Registry pins (kind, method) pairs to the process lane regardless of the
// node's declared workload.
type Registry struct {
	forced map[binding]struct{}
}

func NewRegistry() *Registry {
	return &Registry{forced: map[binding]struct{}{}}
}

// DefaultRegistry forces string generation onto the process lane.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Force(fixture.KindString, MethodGenerate)
	return r
}

func (r *Registry) Force(kind fixture.Kind, method Method) {
	r.forced[binding{kind, method}] = struct{}{}
}

func (r *Registry) Forced(kind fixture.Kind, method Method) bool {
	if r == nil {
		return false
	}
	_, ok := r.forced[binding{kind, method}]
	return ok
}

// ParseBinding reads "kind.method" as used in configuration files.
func ParseBinding(s string) (fixture.Kind, Method, error) {
	kindName, method, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return "", "", fmt.Errorf("lane binding %q must look like kind.method", s)
	}
	kind, err := fixture.ParseKind(kindName)
	if err != nil {
		return "", "", err
	}
	switch m := Method(method); m {
	case MethodGenerate, MethodPersist:
		return kind, m, nil
	}
	return "", "", fmt.Errorf("lane binding %q: unknown method %q", s, method)
}

// Bindings lists the forced pairs as sorted "kind.method" strings.
func (r *Registry) Bindings() []string {
	var out []string
	for b := range r.forced {
		out = append(out, string(b.kind)+"."+string(b.method))
	}
	sort.Strings(out)
	return out
}

// Route picks the lane for a node. Containers and foreign references always
// run cooperatively because they read other nodes' results.
func (r *Registry) Route(spec fixture.Spec) Name {
	if spec.Kind.IsContainer() || spec.Kind == fixture.KindForeign {
		return Cooperative
	}
	if r.Forced(spec.Kind, MethodGenerate) || r.Forced(spec.Kind, MethodPersist) {
		return Process
	}
	switch spec.Workload {
	case fixture.WorkloadCPU:
		return Process
	case fixture.WorkloadIO:
		return Thread
	}
	return Cooperative
}
