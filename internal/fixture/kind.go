// Package fixture is the type engine: a closed set of field variants that turn
// a Spec into a fixed-size array of rendered values.
//
// Leaves draw raw values, then run the constraint pipeline (ordering, null
// mask, uniqueness) before rendering. Containers only group children; their
// artifacts are produced by the merge engine.
package fixture

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the closed set of field variants.
type Kind string

const (
	KindSerial    Kind = "serial"
	KindInteger   Kind = "integer"
	KindFloat     Kind = "float"
	KindDecimal   Kind = "decimal"
	KindBoolean   Kind = "boolean"
	KindEnum      Kind = "enum"
	KindText      Kind = "text"
	KindString    Kind = "string"
	KindTimestamp Kind = "timestamp"
	KindDate      Kind = "date"
	KindTime      Kind = "time"
	KindPassword  Kind = "password"
	KindForeign   Kind = "foreign"
	KindArray     Kind = "array"
	KindMap       Kind = "map"
	KindObject    Kind = "object"
	KindJSON      Kind = "json"
	KindJSONArray Kind = "json_array"
)

var aliases = map[string]Kind{
	"serial":     KindSerial,
	"integer":    KindInteger,
	"int":        KindInteger,
	"bigint":     KindInteger,
	"float":      KindFloat,
	"double":     KindFloat,
	"decimal":    KindDecimal,
	"numeric":    KindDecimal,
	"boolean":    KindBoolean,
	"bool":       KindBoolean,
	"enum":       KindEnum,
	"choice":     KindEnum,
	"text":       KindText,
	"string":     KindString,
	"timestamp":  KindTimestamp,
	"datetime":   KindTimestamp,
	"date":       KindDate,
	"time":       KindTime,
	"password":   KindPassword,
	"foreign":    KindForeign,
	"array":      KindArray,
	"list":       KindArray,
	"tuple":      KindArray,
	"map":        KindMap,
	"struct":     KindMap,
	"object":     KindObject,
	"table":      KindObject,
	"json":       KindJSON,
	"json_array": KindJSONArray,
}

// ParseKind resolves a type name or alias.
func ParseKind(name string) (Kind, error) {
	k, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown type %q (known: %s)", name, strings.Join(KnownTypes(), ", "))
	}
	return k, nil
}

// KnownTypes lists every accepted type name, aliases included.
func KnownTypes() []string {
	out := make([]string, 0, len(aliases))
	for name := range aliases {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsContainer reports whether the kind groups children instead of drawing values.
func (k Kind) IsContainer() bool {
	switch k {
	case KindArray, KindMap, KindObject, KindJSON, KindJSONArray:
		return true
	}
	return false
}

// Textual reports whether the kind renders free-form text.
func (k Kind) Textual() bool {
	return k == KindText || k == KindString || k == KindPassword
}

// Layout selects how a container's children are merged into rows.
type Layout string

const (
	LayoutTabular    Layout = "tabular"
	LayoutJSONObject Layout = "json_object"
	LayoutJSONArray  Layout = "json_array"
	LayoutList       Layout = "list"
)

// Layout returns the merge layout of a container kind, or "" for leaves.
func (k Kind) Layout() Layout {
	switch k {
	case KindObject:
		return LayoutTabular
	case KindMap, KindJSON:
		return LayoutJSONObject
	case KindJSONArray:
		return LayoutJSONArray
	case KindArray:
		return LayoutList
	}
	return ""
}

// Workload is the per-node tag selecting an execution lane.
type Workload string

const (
	WorkloadCooperative Workload = "cooperative"
	WorkloadIO          Workload = "io"
	WorkloadCPU         Workload = "cpu"
)

// ParseWorkload accepts the lane tags and their historical names.
func ParseWorkload(s string) (Workload, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cooperative", "asyncio", "default":
		return WorkloadCooperative, nil
	case "io", "thread":
		return WorkloadIO, nil
	case "cpu", "process":
		return WorkloadCPU, nil
	}
	return "", fmt.Errorf("unknown workload %q (expected cooperative|io|cpu)", s)
}

// DefaultWorkload is io for drawn leaves and cooperative for containers and
// foreign references.
func DefaultWorkload(k Kind) Workload {
	if k.IsContainer() || k == KindForeign {
		return WorkloadCooperative
	}
	return WorkloadIO
}
