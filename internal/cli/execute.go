package cli

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"genesynth/internal/config"
	"genesynth/internal/logging"
	"genesynth/internal/scheduler"
	"genesynth/internal/schema"
)

// Result is the outcome of Execute.
type Result struct {
	ExitCode int
	Run      scheduler.Result
}

// Execute loads the config and schema named by inv and runs the generation.
// Streams go to stdout; logs and worker diagnostics go to stderr.
func Execute(ctx context.Context, inv Invocation, stdout, stderr io.Writer, opts ...scheduler.Option) (res Result, err error) {
	defer func() { res.ExitCode = ExitCode(err) }()

	cfg, err := resolveConfig(inv)
	if err != nil {
		return res, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, inv.Verbose)
	if err != nil {
		return res, err
	}
	defer func() { _ = logger.Sync() }()

	root, err := schema.Load(inv.SchemaPath)
	if err != nil {
		return res, err
	}
	logger.Info("loaded schema", zap.String("path", inv.SchemaPath), zap.Uint64("seed", cfg.Seed))

	opts = append([]scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithStdout(stdout),
		scheduler.WithStderr(stderr),
	}, opts...)
	res.Run, err = scheduler.Run(ctx, root, inv.Dest, *cfg, opts...)
	if err != nil {
		return res, err
	}
	if inv.Dest != "" {
		logger.Info("wrote artifact", zap.String("dest", inv.Dest), zap.Int("rows", res.Run.Rows))
	}
	return res, nil
}

// resolveConfig layers defaults, the config file, the environment and
// finally the command line.
func resolveConfig(inv Invocation) (*config.Config, error) {
	cfg, err := config.Load(inv.ConfigPath)
	if err != nil {
		return nil, err
	}
	if inv.Seed != nil {
		cfg.Seed = *inv.Seed
	}
	if inv.Workers != nil {
		cfg.Pools.Workers = *inv.Workers
	}
	if inv.Threads != nil {
		cfg.Pools.Threads = *inv.Threads
	}
	if inv.TracePath != "" {
		cfg.Output.Trace = inv.TracePath
	}
	if inv.Clean {
		cfg.Output.Clean = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("resolving config: %w", err)
	}
	return cfg, nil
}
