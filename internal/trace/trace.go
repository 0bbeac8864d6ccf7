// Package trace records what a generation run did, node by node, in a form
// that is byte-stable across runs with the same schema and seed.
package trace

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/goccy/go-json"

	"genesynth/internal/cache"
)

// RunTrace is the canonical record of one run.
//
// Events carry logical facts only: no timestamps, paths, or error text. Lane
// and row counts follow from the schema and seed, so two runs of the same
// schema produce the same canonical bytes.
type RunTrace struct {
	GraphHash string
	Seed      uint64
	Events    []Event
}

// EventKind is the canonical discriminator for Event. The string values are
// part of the canonical bytes.
type EventKind string

const (
	EventNodeGenerated EventKind = "NodeGenerated"
	EventNodeReused    EventKind = "NodeReused"
	EventNodeMerged    EventKind = "NodeMerged"
	EventNodeExported  EventKind = "NodeExported"
	EventNodeFailed    EventKind = "NodeFailed"
)

// Event is a single node transition.
type Event struct {
	Kind EventKind
	Node string
	// Lane is the lane that built the node, when there was one.
	Lane string
	// Rows is the number of data rows produced, if known.
	Rows int
	// Reason is a stable code: the error kind for failures, the format for
	// exports.
	Reason string
}

func (t *RunTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.GraphHash == "" {
		return errors.New("graphHash is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Node == "" {
			return fmt.Errorf("events[%d].node is required for kind %q", i, e.Kind)
		}
		if e.Rows < 0 {
			return fmt.Errorf("events[%d].rows is negative", i)
		}
	}
	return nil
}

// Canonicalize sorts events by (node, kind order, lane, reason, rows) and
// drops exact duplicates, which at-least-once scheduling can produce.
func (t *RunTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		return less(t.Events[i], t.Events[j])
	})
	out := t.Events[:0]
	for i, e := range t.Events {
		if i > 0 && e == t.Events[i-1] {
			continue
		}
		out = append(out, e)
	}
	t.Events = out
}

func less(a, b Event) bool {
	if a.Node != b.Node {
		return a.Node < b.Node
	}
	if kindOrder(a.Kind) != kindOrder(b.Kind) {
		return kindOrder(a.Kind) < kindOrder(b.Kind)
	}
	if a.Lane != b.Lane {
		return a.Lane < b.Lane
	}
	if a.Reason != b.Reason {
		return a.Reason < b.Reason
	}
	return a.Rows < b.Rows
}

func kindOrder(k EventKind) int {
	switch k {
	case EventNodeGenerated:
		return 10
	case EventNodeReused:
		return 20
	case EventNodeMerged:
		return 30
	case EventNodeExported:
		return 40
	case EventNodeFailed:
		return 50
	default:
		return 1000
	}
}

// CanonicalJSON canonicalizes a copy of the trace and encodes it.
func (t RunTrace) CanonicalJSON() ([]byte, error) {
	c := RunTrace{GraphHash: t.GraphHash, Seed: t.Seed, Events: append([]Event(nil), t.Events...)}
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&c)
}

// Hash is the sha256 of the canonical JSON.
func (t RunTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// WriteFile stores the canonical JSON at path.
func (t RunTrace) WriteFile(path string) error {
	b, err := t.CanonicalJSON()
	if err != nil {
		return err
	}
	return cache.WriteAtomic(path, 0o644, func(w io.Writer) error {
		if _, err := w.Write(b); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	})
}

// MarshalJSON fixes field order.
func (t RunTrace) MarshalJSON() ([]byte, error) {
	if t.GraphHash == "" {
		return nil, errors.New("graphHash is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"graphHash":`)
	writeString(&buf, t.GraphHash)
	fmt.Fprintf(&buf, `,"seed":%d,"events":[`, t.Seed)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := t.Events[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	writeString(&buf, string(e.Kind))
	buf.WriteString(`,"node":`)
	writeString(&buf, e.Node)
	if e.Lane != "" {
		buf.WriteString(`,"lane":`)
		writeString(&buf, e.Lane)
	}
	if e.Rows > 0 {
		fmt.Fprintf(&buf, `,"rows":%d`, e.Rows)
	}
	if e.Reason != "" {
		buf.WriteString(`,"reason":`)
		writeString(&buf, e.Reason)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
