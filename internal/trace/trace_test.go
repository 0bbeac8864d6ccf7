package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestCanonicalTraceStability_ByteForByte(t *testing.T) {
	trace1 := RunTrace{
		GraphHash: "graph-abc",
		Seed:      7,
		Events: []Event{
			{Kind: EventNodeGenerated, Node: "root.b", Lane: "thread", Rows: 5},
			{Kind: EventNodeMerged, Node: "root", Lane: "cooperative", Rows: 5},
			{Kind: EventNodeFailed, Node: "root.c", Reason: "integrity"},
		},
	}

	trace2 := RunTrace{
		GraphHash: "graph-abc",
		Seed:      7,
		Events: []Event{
			{Kind: EventNodeFailed, Node: "root.c", Reason: "integrity"},
			{Kind: EventNodeMerged, Node: "root", Lane: "cooperative", Rows: 5},
			{Kind: EventNodeGenerated, Node: "root.b", Lane: "thread", Rows: 5},
		},
	}

	b1, err := trace1.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json (1): %v", err)
	}
	b2, err := trace2.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json (2): %v", err)
	}

	if !bytes.Equal(b1, b2) {
		t.Fatalf("expected identical bytes\n1=%s\n2=%s", string(b1), string(b2))
	}
}

func TestCanonicalOrdering_SortsByNodeThenKind(t *testing.T) {
	tr := RunTrace{
		GraphHash: "g",
		Seed:      1,
		Events: []Event{
			{Kind: EventNodeExported, Node: "root", Reason: "gzip"},
			{Kind: EventNodeGenerated, Node: "root.a", Lane: "process", Rows: 3},
			{Kind: EventNodeMerged, Node: "root", Lane: "cooperative", Rows: 3},
		},
	}
	b, err := tr.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	expected := `{"graphHash":"g","seed":1,"events":[` +
		`{"kind":"NodeMerged","node":"root","lane":"cooperative","rows":3},` +
		`{"kind":"NodeExported","node":"root","reason":"gzip"},` +
		`{"kind":"NodeGenerated","node":"root.a","lane":"process","rows":3}]}`
	if string(b) != expected {
		t.Fatalf("unexpected canonical bytes\nexpected=%s\nactual  =%s", expected, string(b))
	}
}

func TestCanonicalize_DropsDuplicates(t *testing.T) {
	tr := RunTrace{GraphHash: "g", Events: []Event{
		{Kind: EventNodeReused, Node: "root.a"},
		{Kind: EventNodeGenerated, Node: "root.a", Lane: "thread", Rows: 2},
		{Kind: EventNodeReused, Node: "root.a"},
	}}
	tr.Canonicalize()
	if len(tr.Events) != 2 {
		t.Fatalf("expected 2 events after dedup, got %d: %+v", len(tr.Events), tr.Events)
	}
	if tr.Events[0].Kind != EventNodeGenerated || tr.Events[1].Kind != EventNodeReused {
		t.Fatalf("unexpected order: %+v", tr.Events)
	}
}

func TestHash_IgnoresInsertionOrder(t *testing.T) {
	tr1 := RunTrace{GraphHash: "g", Events: []Event{
		{Kind: EventNodeGenerated, Node: "b"},
		{Kind: EventNodeReused, Node: "a"},
	}}
	tr2 := RunTrace{GraphHash: "g", Events: []Event{
		{Kind: EventNodeReused, Node: "a"},
		{Kind: EventNodeGenerated, Node: "b"},
	}}

	h1, err := tr1.Hash()
	if err != nil {
		t.Fatalf("hash (1): %v", err)
	}
	h2, err := tr2.Hash()
	if err != nil {
		t.Fatalf("hash (2): %v", err)
	}
	if h1 != h2 || len(h1) != 64 {
		t.Fatalf("expected equal 64-char hashes, got %q and %q", h1, h2)
	}

	tr2.Seed = 9
	h3, err := tr2.Hash()
	if err != nil {
		t.Fatalf("hash (3): %v", err)
	}
	if h3 == h1 {
		t.Fatalf("seed must be part of the trace identity")
	}
}

func TestValidate(t *testing.T) {
	cases := []RunTrace{
		{},
		{GraphHash: "g", Events: []Event{{Node: "a"}}},
		{GraphHash: "g", Events: []Event{{Kind: EventNodeMerged}}},
		{GraphHash: "g", Events: []Event{{Kind: EventNodeMerged, Node: "a", Rows: -1}}},
	}
	for i, tr := range cases {
		if _, err := tr.CanonicalJSON(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestRecorder_ConcurrentRecordAndWriteFile(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			SafeRecord(r, Event{Kind: EventNodeGenerated, Node: "root.n", Rows: i + 1})
		}(i)
	}
	wg.Wait()
	SafeRecord(nil, Event{Kind: EventNodeGenerated, Node: "ignored"})
	SafeRecord(panicSink{}, Event{Kind: EventNodeGenerated, Node: "ignored"})

	tr := r.Trace("g", 3)
	if len(tr.Events) != 50 {
		t.Fatalf("expected 50 events, got %d", len(tr.Events))
	}
	for i, e := range tr.Events {
		if e.Rows != i+1 {
			t.Fatalf("events not sorted by rows at %d: %+v", i, e)
		}
	}

	path := filepath.Join(t.TempDir(), "trace.json")
	if err := tr.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want, _ := tr.CanonicalJSON()
	if !bytes.Equal(got, append(want, '\n')) {
		t.Fatalf("file does not hold the canonical bytes")
	}
}

type panicSink struct{}

func (panicSink) Record(Event) { panic("boom") }
