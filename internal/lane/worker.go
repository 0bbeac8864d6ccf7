package lane

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"genesynth/internal/cache"
	"genesynth/internal/fault"
	"genesynth/internal/fixture"
)

// WorkerEnv marks a re-executed binary as a process-lane worker.
const WorkerEnv = "GENESYNTH_LANE_WORKER"

// IsWorker reports whether this process was started as a lane worker.
func IsWorker() bool { return os.Getenv(WorkerEnv) == "1" }

// DefaultPassthrough lists host variables a worker still sees.
var DefaultPassthrough = []string{"GOCOVERDIR", "GODEBUG", "GOMAXPROCS", "TMPDIR"}

type request struct {
	ID   uint64       `msgpack:"id"`
	Spec fixture.Spec `msgpack:"spec"`
	Out  string       `msgpack:"out"`
}

type response struct {
	ID   uint64 `msgpack:"id"`
	Rows int    `msgpack:"rows"`
	Kind string `msgpack:"kind,omitempty"`
	Node string `msgpack:"node,omitempty"`
	Msg  string `msgpack:"msg,omitempty"`
}

const (
	kindConfig     = "config"
	kindGeneration = "generation"
	kindIntegrity  = "integrity"
)

func failure(id uint64, node string, err error) response {
	kind := kindGeneration
	switch {
	case errors.Is(err, fault.ErrConfig):
		kind = kindConfig
	case errors.Is(err, fault.ErrIntegrity):
		kind = kindIntegrity
	}
	if n := fault.NodeOf(err); n != "" {
		node = n
	}
	return response{ID: id, Kind: kind, Node: node, Msg: err.Error()}
}

// err rebuilds the worker's classified error on the parent side.
func (r response) err() error {
	switch r.Kind {
	case "":
		return nil
	case kindConfig:
		return &fault.Error{Kind: fault.ErrConfig, Node: r.Node, Msg: r.Msg}
	case kindIntegrity:
		return &fault.Error{Kind: fault.ErrIntegrity, Node: r.Node, Msg: r.Msg}
	}
	return &fault.Error{Kind: fault.ErrGeneration, Node: r.Node, Msg: r.Msg}
}

// ServeWorker answers build requests read from r until r is closed. Each
// request rebuilds the fixture from its spec, generates it and writes the
// rows to the requested cache path.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	bw := bufio.NewWriter(w)
	enc := msgpack.NewEncoder(bw)
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decoding request: %w", err)
		}
		if err := enc.Encode(build(ctx, req)); err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("flushing response: %w", err)
		}
	}
}

func build(ctx context.Context, req request) response {
	node := req.Spec.Name
	f, err := fixture.New(req.Spec)
	if err != nil {
		return failure(req.ID, node, err)
	}
	if _, ok := f.(fixture.Container); ok {
		return failure(req.ID, node, fault.Configf(node, "containers cannot run on the process lane"))
	}
	arr, err := f.Generate(ctx)
	if err != nil {
		return failure(req.ID, node, fault.Wrap(fault.ErrGeneration, node, err))
	}
	if err := cache.WriteLines(req.Out, arr.Values); err != nil {
		return failure(req.ID, node, fault.Wrap(fault.ErrGeneration, node, err))
	}
	return response{ID: req.ID, Rows: len(arr.Values)}
}

// workerEnv builds a worker environment from an allowlist: the worker marker
// plus whichever passthrough names are set on the host.
func workerEnv(passthrough []string) []string {
	env := []string{WorkerEnv + "=1"}
	names := slices.Clone(passthrough)
	slices.Sort(names)
	for _, name := range slices.Compact(names) {
		if name == "" || strings.Contains(name, "=") {
			continue
		}
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}
