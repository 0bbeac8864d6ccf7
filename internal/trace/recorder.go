package trace

import "sync"

// Sink receives node events from the scheduler. Record must not panic or
// block; the scheduler treats it as fire-and-forget.
type Sink interface {
	Record(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord records an event, swallowing any panic from the sink.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder collects events in memory. Order of arrival does not matter:
// Trace sorts them.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Snapshot copies the events recorded so far.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Trace builds a canonical RunTrace from the recorded events.
func (r *Recorder) Trace(graphHash string, seed uint64) RunTrace {
	tr := RunTrace{GraphHash: graphHash, Seed: seed}
	tr.Events = r.Snapshot()
	tr.Canonicalize()
	return tr
}
