// Package scheduler drives one generation run over a resolved schema graph.
//
// A producer goroutine walks Graph.Schedule into a bounded queue. The control
// goroutine drains it: leaves are claimed in the cache state table and
// handed to their lane without waiting, while containers and foreign
// references are deferred and then built recursively once every leaf is in
// flight. Only the control goroutine claims nodes or waits on them; lane
// tasks never call back into it.
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"go.uber.org/zap"

	"genesynth/internal/cache"
	"genesynth/internal/config"
	"genesynth/internal/fault"
	"genesynth/internal/fixture"
	"genesynth/internal/graph"
	"genesynth/internal/lane"
	"genesynth/internal/merge"
	"genesynth/internal/trace"
)

type options struct {
	logger     *zap.Logger
	sink       trace.Sink
	provider   fixture.Provider
	workerExe  string
	workerArgs []string
	stdout     io.Writer
	stderr     io.Writer
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithSink forwards every node event to sink as well as the run trace.
func WithSink(sink trace.Sink) Option { return func(o *options) { o.sink = sink } }

// WithProvider replaces the text provider used for string fields built
// in-process. Process-lane workers always use the built-in provider.
func WithProvider(p fixture.Provider) Option { return func(o *options) { o.provider = p } }

// WithWorker sets the binary re-executed for the process lane.
func WithWorker(exe string, args ...string) Option {
	return func(o *options) {
		o.workerExe = exe
		o.workerArgs = args
	}
}

// WithStdout sets where a run without a destination is streamed.
func WithStdout(w io.Writer) Option { return func(o *options) { o.stdout = w } }

// WithStderr sets where worker diagnostics go.
func WithStderr(w io.Writer) Option { return func(o *options) { o.stderr = w } }

func collect(opts []Option) options {
	o := options{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

type Scheduler struct {
	g     *graph.Graph
	cfg   config.Config
	reg   *lane.Registry
	store *cache.Store

	coop    lane.Lane
	threads lane.Lane
	procs   lane.Lane

	log    *zap.Logger
	rec    *trace.Recorder
	sink   trace.Sink
	stdout io.Writer

	mu       sync.Mutex
	state    State
	firstErr error
	cancel   context.CancelCauseFunc

	trackers sync.WaitGroup
}

// New prepares a scheduler for g: it opens the run cache, starts the lanes
// and binds every foreign reference to the run's cache.
func New(g *graph.Graph, cfg config.Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	o := collect(opts)

	store, err := cache.New(cache.Options{Dir: cfg.Cache.Dir, HashNames: cfg.Cache.HashNames, Logger: o.logger})
	if err != nil {
		return nil, err
	}
	procs, err := lane.NewProcesses(lane.ProcessOptions{
		Exe:    o.workerExe,
		Args:   o.workerArgs,
		Size:   cfg.ProcessPoolSize(),
		Stderr: o.stderr,
		Logger: o.logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s := &Scheduler{
		g:       g,
		cfg:     cfg,
		reg:     reg,
		store:   store,
		coop:    lane.Inline{},
		threads: lane.NewPool(cfg.Pools.Threads, o.logger),
		procs:   procs,
		log:     o.logger,
		rec:     trace.NewRecorder(),
		sink:    o.sink,
		stdout:  o.stdout,
	}
	if err := g.ResolveForeign(source{s}); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Graph is the scheduled graph.
func (s *Scheduler) Graph() *graph.Graph { return s.g }

// Lookup returns the cache path of a built node.
func (s *Scheduler) Lookup(name string) (string, bool) {
	st, path := s.store.Lookup(name)
	return path, st == cache.Cached
}

// Generate builds every node and returns the root artifact's cache path. It
// may be called once.
func (s *Scheduler) Generate(ctx context.Context) (string, error) {
	if err := s.transition(Idle, Walking); err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info("generation started",
		zap.String("root", s.g.RootName()),
		zap.Int("nodes", s.g.Len()),
		zap.Uint64("seed", s.cfg.Seed),
		zap.String("graph", s.g.Hash()))

	queue := make(chan *graph.Node, s.cfg.QueueSize())
	go func() {
		defer close(queue)
		for n := range s.g.Schedule() {
			select {
			case queue <- n:
			case <-ctx.Done():
				return
			}
		}
	}()

	var deferred []*graph.Node
	for n := range queue {
		if ctx.Err() != nil {
			continue
		}
		if st, _ := s.store.Lookup(n.Name); st != cache.Unbuilt {
			s.record(trace.Event{Kind: trace.EventNodeReused, Node: n.Name})
			continue
		}
		if deferrable(n) {
			deferred = append(deferred, n)
			continue
		}
		s.start(ctx, n)
	}
	if err := s.transition(Walking, Draining); err != nil {
		return "", err
	}

	// Deepest first so inner containers merge before the ones holding them.
	slices.SortStableFunc(deferred, func(a, b *graph.Node) int {
		da, _ := s.g.Depth(a.Name)
		db, _ := s.g.Depth(b.Name)
		if c := cmp.Compare(db, da); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	for _, n := range deferred {
		if ctx.Err() != nil {
			break
		}
		_, _ = s.ensure(ctx, n)
	}
	path, rootErr := s.ensure(ctx, s.g.Root())

	s.trackers.Wait()
	if err := s.transition(Draining, Complete); err != nil {
		return "", err
	}
	if err := s.err(); err != nil {
		s.log.Error("generation failed", zap.String("node", fault.NodeOf(err)), zap.Error(err))
		return "", err
	}
	if rootErr != nil {
		return "", rootErr
	}
	s.log.Info("generation finished", zap.String("root", s.g.RootName()), zap.Int("rows", s.g.Root().Spec().Size))
	return path, nil
}

func deferrable(n *graph.Node) bool {
	if _, ok := n.Container(); ok {
		return true
	}
	_, ok := n.Foreign()
	return ok
}

// ensure builds n if nobody has claimed it yet and waits for its result.
func (s *Scheduler) ensure(ctx context.Context, n *graph.Node) (string, error) {
	s.start(ctx, n)
	return s.store.Wait(ctx, n.Name)
}

// start claims n and begins building it. Leaves on the thread or process
// lane are only submitted; containers and cooperative nodes are built before
// start returns, apart from persistence.
func (s *Scheduler) start(ctx context.Context, n *graph.Node) {
	t, ok := s.store.Claim(n.Name)
	if !ok {
		return
	}
	spec := n.Spec()
	if _, isContainer := n.Container(); isContainer {
		s.buildContainer(ctx, n, t)
		return
	}

	route := s.reg.Route(spec)
	s.log.Debug("starting node", zap.String("node", n.Name), zap.String("lane", string(route)))
	switch route {
	case lane.Process:
		fut := s.procs.Submit(ctx, lane.Task{Name: n.Name, Spec: spec, Out: t.Path()})
		s.track(t, fut, route, spec.Size)
	case lane.Thread:
		fut := s.threads.Submit(ctx, lane.Task{Name: n.Name, Run: func(ctx context.Context) error {
			values, err := generate(ctx, n)
			if err != nil {
				return err
			}
			return persist(n.Name, t.Path(), values)
		}})
		s.track(t, fut, route, spec.Size)
	default:
		var values []string
		err := s.coop.Submit(ctx, lane.Task{Name: n.Name, Run: func(ctx context.Context) error {
			var err error
			values, err = generate(ctx, n)
			return err
		}}).Await(ctx)
		if err != nil {
			s.fail(t, err)
			return
		}
		fut := s.threads.Submit(ctx, lane.Task{Name: n.Name, Run: func(context.Context) error {
			return persist(n.Name, t.Path(), values)
		}})
		s.track(t, fut, route, len(values))
	}
}

func generate(ctx context.Context, n *graph.Node) ([]string, error) {
	arr, err := n.Fixture.Generate(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.ErrGeneration, n.Name, err)
	}
	return arr.Values, nil
}

func persist(node, path string, values []string) error {
	if err := cache.WriteLines(path, values); err != nil {
		return fault.Wrap(fault.ErrGeneration, node, err)
	}
	return nil
}

// track settles t once fut completes, off the control goroutine.
func (s *Scheduler) track(t *cache.Ticket, fut *lane.Future, route lane.Name, rows int) {
	s.trackers.Add(1)
	go func() {
		defer s.trackers.Done()
		<-fut.Done()
		if err := fut.Await(context.Background()); err != nil {
			s.fail(t, err)
			return
		}
		t.Finish(nil)
		s.record(trace.Event{Kind: trace.EventNodeGenerated, Node: t.Name(), Lane: string(route), Rows: rows})
	}()
}

func (s *Scheduler) buildContainer(ctx context.Context, n *graph.Node, t *cache.Ticket) {
	c, _ := n.Container()
	children := c.Children()
	nodes := make([]*graph.Node, len(children))
	for i, child := range children {
		cn, ok := s.g.Node(child.Spec().Name)
		if !ok {
			s.fail(t, fault.Configf(n.Name, "child %s is not in the graph", child.Spec().Name))
			return
		}
		nodes[i] = cn
	}

	// Start every child before waiting on any, so siblings build together.
	for _, cn := range nodes {
		s.start(ctx, cn)
	}
	parts := make([]merge.Part, len(nodes))
	for i, cn := range nodes {
		path, err := s.store.Wait(ctx, cn.Name)
		if err != nil {
			t.Finish(err)
			return
		}
		parts[i] = merge.PartOf(cn.Spec(), path)
	}

	spec := n.Spec()
	var rows int
	err := s.threads.Submit(ctx, lane.Task{Name: n.Name, Run: func(ctx context.Context) error {
		var err error
		rows, err = merge.Merge(ctx, t.Path(), spec, parts)
		return err
	}}).Await(ctx)
	if err != nil {
		s.fail(t, err)
		return
	}
	t.Finish(nil)
	s.log.Debug("merged container", zap.String("node", n.Name), zap.String("layout", string(spec.Kind.Layout())), zap.Int("rows", rows))
	s.record(trace.Event{Kind: trace.EventNodeMerged, Node: n.Name, Lane: string(lane.Cooperative), Rows: rows})
}

// fail settles t as failed and cancels the run. The first failure is the
// run's error.
func (s *Scheduler) fail(t *cache.Ticket, err error) {
	t.Finish(err)
	s.mu.Lock()
	first := s.firstErr == nil && !isCancellation(err)
	if first {
		s.firstErr = err
	}
	cancel := s.cancel
	s.mu.Unlock()
	if !first {
		return
	}
	s.record(trace.Event{Kind: trace.EventNodeFailed, Node: t.Name(), Reason: Reason(err)})
	if cancel != nil {
		cancel(err)
	}
}

func (s *Scheduler) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Reason is the stable trace code for an error's kind.
func Reason(err error) string {
	switch {
	case errors.Is(err, fault.ErrConfig):
		return "config"
	case errors.Is(err, fault.ErrIntegrity):
		return "integrity"
	case errors.Is(err, fault.ErrLane):
		return "lane"
	case isCancellation(err):
		return "cancelled"
	}
	return "generation"
}

func (s *Scheduler) record(e trace.Event) {
	s.rec.Record(e)
	trace.SafeRecord(s.sink, e)
}

// Trace returns the canonical trace of what has run so far.
func (s *Scheduler) Trace() trace.RunTrace {
	return s.rec.Trace(s.g.Hash(), s.cfg.Seed)
}

// Export writes the root artifact to dest, or streams it when dest is "".
func (s *Scheduler) Export(ctx context.Context, dest string) error {
	root := s.g.Root()
	path, ok := s.Lookup(root.Name)
	if !ok {
		return fmt.Errorf("root %s has not been generated", root.Name)
	}
	if dest == "" {
		return merge.Stream(ctx, s.stdout, path, s.cfg.Output.Clean)
	}

	a := merge.Artifact{
		Name:    root.Name,
		Path:    path,
		Table:   s.cfg.Output.Table,
		Tabular: root.Spec().Kind.Layout() == fixture.LayoutTabular,
	}
	for _, child := range s.g.Children(root.Name) {
		cn, _ := s.g.Node(child)
		p, ok := s.Lookup(child)
		if !ok {
			return fmt.Errorf("child %s has not been generated", child)
		}
		a.Parts = append(a.Parts, merge.PartOf(cn.Spec(), p))
	}
	if err := merge.Export(ctx, a, dest); err != nil {
		return err
	}
	format := merge.FormatFor(dest)
	s.log.Info("exported artifact", zap.String("dest", dest), zap.String("format", string(format)))
	s.record(trace.Event{Kind: trace.EventNodeExported, Node: root.Name, Reason: string(format)})
	return nil
}

// Close stops the lanes and removes the run cache.
func (s *Scheduler) Close() error {
	errs := []error{s.procs.Close(), s.threads.Close()}
	s.trackers.Wait()
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// source serves foreign references from the run cache, building the target
// first when needed. It is only called from cooperative builds on the
// control goroutine.
type source struct{ s *Scheduler }

func (src source) Values(ctx context.Context, name string) ([]string, error) {
	n, ok := src.s.g.Node(name)
	if !ok {
		return nil, fmt.Errorf("unknown node %q", name)
	}
	path, err := src.s.ensure(ctx, n)
	if err != nil {
		return nil, err
	}
	var values []string
	err = src.s.threads.Submit(ctx, lane.Task{Name: name, Run: func(context.Context) error {
		var err error
		values, err = cache.ReadLines(path)
		return err
	}}).Await(ctx)
	if err != nil {
		return nil, err
	}
	return values, nil
}
