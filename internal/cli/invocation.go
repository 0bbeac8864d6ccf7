package cli

import (
	"path/filepath"
	"strings"
)

// Invocation is the canonical description of a generate run. Paths are
// cleaned and, when relative, resolved under WorkDir.
type Invocation struct {
	WorkDir    string
	SchemaPath string
	// Dest is the output file; "" streams to stdout.
	Dest       string
	ConfigPath string
	TracePath  string

	// Overrides apply on top of the config file and environment. Nil means
	// "not given on the command line".
	Seed    *uint64
	Workers *int
	Threads *int
	Clean   bool
	Verbose bool
}

// rawInvocation holds flag values exactly as typed.
type rawInvocation struct {
	workDir string
	schema  string
	output  string
	stdout  bool
	config  string
	trace   string
	seed    uint64
	workers int
	threads int
	clean   bool
	verbose bool

	seedSet, workersSet, threadsSet bool
}

func (r rawInvocation) canonicalize() (Invocation, error) {
	workDir := filepath.Clean(r.workDir)
	if !filepath.IsAbs(workDir) {
		return Invocation{}, invalidInvocationf("--workdir must be an absolute path (got %q)", r.workDir)
	}
	if strings.TrimSpace(r.schema) == "" {
		return Invocation{}, invalidInvocationf("--file is required")
	}
	switch {
	case r.output != "" && r.stdout:
		return Invocation{}, invalidInvocationf("--output and --stdout are mutually exclusive")
	case r.output == "" && !r.stdout:
		return Invocation{}, invalidInvocationf("one of --output or --stdout is required")
	}
	if r.clean && !r.stdout {
		return Invocation{}, invalidInvocationf("--clean only applies to --stdout")
	}

	inv := Invocation{WorkDir: workDir, Clean: r.clean, Verbose: r.verbose}
	var err error
	if inv.SchemaPath, err = resolveUnderWorkDir(workDir, r.schema); err != nil {
		return Invocation{}, err
	}
	if r.output != "" {
		if inv.Dest, err = resolveUnderWorkDir(workDir, r.output); err != nil {
			return Invocation{}, err
		}
	}
	if r.config != "" {
		if inv.ConfigPath, err = resolveUnderWorkDir(workDir, r.config); err != nil {
			return Invocation{}, err
		}
	}
	if r.trace != "" {
		if inv.TracePath, err = resolveUnderWorkDir(workDir, r.trace); err != nil {
			return Invocation{}, err
		}
	}
	if r.seedSet {
		seed := r.seed
		inv.Seed = &seed
	}
	if r.workersSet {
		if r.workers < 1 {
			return Invocation{}, invalidInvocationf("--workers must be positive, got %d", r.workers)
		}
		n := r.workers
		inv.Workers = &n
	}
	if r.threadsSet {
		if r.threads < 1 {
			return Invocation{}, invalidInvocationf("--threads must be positive, got %d", r.threads)
		}
		n := r.threads
		inv.Threads = &n
	}
	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Join(workDir, clean), nil
}
