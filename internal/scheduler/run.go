package scheduler

import (
	"context"
	"errors"
	"fmt"

	"genesynth/internal/config"
	"genesynth/internal/graph"
	"genesynth/internal/schema"
	"genesynth/internal/trace"
)

// Result summarizes a finished run.
type Result struct {
	GraphHash string
	Rows      int
	// Dest is where the artifact went; "" means it was streamed.
	Dest  string
	Trace trace.RunTrace
}

// Run builds the graph for root, generates it and exports the root artifact
// to dest. The run cache is removed before Run returns. When cfg names a
// trace file, the trace is written even if generation fails.
func Run(ctx context.Context, root *schema.Node, dest string, cfg config.Config, opts ...Option) (res Result, err error) {
	o := collect(opts)
	g, err := graph.Build(root, graph.Options{Seed: cfg.Seed, Provider: o.provider})
	if err != nil {
		return Result{}, err
	}
	s, err := New(g, cfg, opts...)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		res.Trace = s.Trace()
		if cfg.Output.Trace != "" {
			if werr := res.Trace.WriteFile(cfg.Output.Trace); werr != nil {
				err = errors.Join(err, fmt.Errorf("writing trace: %w", werr))
			}
		}
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing scheduler: %w", cerr))
		}
	}()

	res = Result{GraphHash: g.Hash(), Rows: g.Root().Spec().Size, Dest: dest}
	if _, err = s.Generate(ctx); err != nil {
		return res, err
	}
	if err = s.Export(ctx, dest); err != nil {
		return res, err
	}
	return res, nil
}
