package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"genesynth/internal/cli"
	"genesynth/internal/lane"
)

func main() {
	// The process lane re-executes this binary as a worker.
	if lane.IsWorker() {
		if err := lane.ServeWorker(context.Background(), os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(cli.ExitInternalError)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	res, err := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(res.ExitCode)
}
