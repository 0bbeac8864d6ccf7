package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"genesynth/internal/scheduler"
)

// NewRootCommand builds the genesynth command tree. The generate command
// stores its outcome in *res.
func NewRootCommand(stdout, stderr io.Writer, res *Result, opts ...scheduler.Option) *cobra.Command {
	root := &cobra.Command{
		Use:           "genesynth",
		Short:         "Schema-driven synthetic data generator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})
	root.AddCommand(newGenerateCommand(stdout, stderr, res, opts))
	return root
}

func newGenerateCommand(stdout, stderr io.Writer, res *Result, opts []scheduler.Option) *cobra.Command {
	var raw rawInvocation
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a dataset from a schema",
		Long: `Generate builds every field of the schema, merges containers into rows
and writes the root artifact.

The destination extension picks the format: .gz compresses, .db, .sqlite and
.sqlite3 load a table, anything else is written as is. With --stdout the rows
are streamed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			raw.seedSet = flags.Changed("seed")
			raw.workersSet = flags.Changed("workers")
			raw.threadsSet = flags.Changed("threads")
			if raw.workDir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return invalidInvocationf("resolving working directory: %v", err)
				}
				raw.workDir = wd
			}
			inv, err := raw.canonicalize()
			if err != nil {
				return err
			}
			r, err := Execute(cmd.Context(), inv, stdout, stderr, opts...)
			*res = r
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&raw.schema, "file", "f", "", "schema file (YAML or JSON)")
	f.StringVarP(&raw.output, "output", "o", "", "destination file")
	f.BoolVar(&raw.stdout, "stdout", false, "stream rows to stdout")
	f.StringVar(&raw.workDir, "workdir", "", "directory relative paths resolve under (default: current directory)")
	f.StringVar(&raw.config, "config", "", "config file")
	f.StringVar(&raw.trace, "trace", "", "write the canonical run trace here")
	f.Uint64Var(&raw.seed, "seed", 0, "run seed")
	f.IntVar(&raw.workers, "workers", 0, "worker count")
	f.IntVar(&raw.threads, "threads", 0, "threads per worker")
	f.BoolVar(&raw.clean, "clean", false, "unquote numbers and booleans when streaming")
	f.BoolVarP(&raw.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

// Run parses args (without argv[0]) and runs the selected command. Errors
// that never reached a run are invocation errors.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...scheduler.Option) (Result, error) {
	res := Result{ExitCode: -1}
	root := NewRootCommand(stdout, stderr, &res, opts...)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if res.ExitCode == -1 {
		if err == nil {
			return Result{ExitCode: ExitSuccess}, nil
		}
		if ExitCode(err) == ExitInternalError {
			err = invalidInvocationf("%v", err)
		}
		return Result{ExitCode: ExitCode(err)}, err
	}
	return res, err
}
