package fixture

import (
	"fmt"
	"sort"
	"strings"
)

// ConstraintKind names a declarative transform applied to a raw draw.
type ConstraintKind string

const (
	Unique      ConstraintKind = "unique"
	NotNull     ConstraintKind = "notnull"
	Nullable    ConstraintKind = "nullable"
	Sorted      ConstraintKind = "sorted"
	Incremental ConstraintKind = "incremental"
	Subset      ConstraintKind = "subset"
	UUID        ConstraintKind = "uuid"
)

func parseConstraintKind(s string) (ConstraintKind, error) {
	switch k := ConstraintKind(strings.ToLower(strings.TrimSpace(s))); k {
	case Unique, NotNull, Nullable, Sorted, Incremental, Subset, UUID:
		return k, nil
	case "not_null":
		return NotNull, nil
	}
	return "", fmt.Errorf("unknown constraint %q", s)
}

// Constraints is a node's constraint set grouped by kind. The value is the
// constraint argument (the null percentage for nullable), or true.
type Constraints map[ConstraintKind]any

func (c Constraints) Has(k ConstraintKind) bool {
	_, ok := c[k]
	return ok
}

// Ordered reports whether the draw is reindexed into ascending order.
func (c Constraints) Ordered() bool {
	return c.Has(Sorted) || c.Has(Incremental)
}

// NullPercent returns the null probability in percent, and whether a mask
// applies at all. notnull wins over nullable.
func (c Constraints) NullPercent() (float64, bool) {
	if c.Has(NotNull) {
		return 0, true
	}
	v, ok := c[Nullable]
	if !ok {
		return 0, false
	}
	if b, isBool := v.(bool); isBool {
		if !b {
			return 0, false
		}
		return 50, true
	}
	p, _ := toFloat(v)
	return p, true
}

// Kinds returns the constraint kinds in sorted order.
func (c Constraints) Kinds() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// ParseConstraints groups the schema's constraint list by kind. Each entry may
// be a bare name ("unique"), a pair ([nullable, 10]), a single-key mapping
// ({nullable: 10}) or an explicit {kind: nullable, value: 10}.
func ParseConstraints(raw any) (Constraints, error) {
	out := Constraints{}
	if raw == nil {
		return out, nil
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		if m, ok := toStringMap(raw); ok {
			for k, val := range m {
				items = append(items, map[string]any{k: val})
			}
		} else {
			return nil, fmt.Errorf("constraints must be a list, got %T", raw)
		}
	}
	for i, item := range items {
		kind, value, err := parseConstraint(item)
		if err != nil {
			return nil, fmt.Errorf("constraints[%d]: %w", i, err)
		}
		out[kind] = value
	}
	if p, ok := out.NullPercent(); ok && (p < 0 || p > 100) {
		return nil, fmt.Errorf("nullable percentage %v outside [0, 100]", p)
	}
	return out, nil
}

func parseConstraint(item any) (ConstraintKind, any, error) {
	switch v := item.(type) {
	case string:
		k, err := parseConstraintKind(v)
		return k, true, err
	case []any:
		if len(v) == 0 || len(v) > 2 {
			return "", nil, fmt.Errorf("expected [kind] or [kind, value], got %v", v)
		}
		name, ok := v[0].(string)
		if !ok {
			return "", nil, fmt.Errorf("constraint kind must be a string, got %T", v[0])
		}
		k, err := parseConstraintKind(name)
		if err != nil {
			return "", nil, err
		}
		if len(v) == 1 {
			return k, true, nil
		}
		return k, v[1], nil
	}
	m, ok := toStringMap(item)
	if !ok {
		return "", nil, fmt.Errorf("unsupported constraint shape %T", item)
	}
	if name, ok := m["kind"].(string); ok {
		k, err := parseConstraintKind(name)
		if err != nil {
			return "", nil, err
		}
		if val, ok := m["value"]; ok {
			return k, val, nil
		}
		return k, true, nil
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("expected a single-key mapping, got %d keys", len(m))
	}
	for name, val := range m {
		k, err := parseConstraintKind(name)
		if err != nil {
			return "", nil, err
		}
		if val == nil {
			val = true
		}
		return k, val, nil
	}
	panic("unreachable")
}
