// Command qcmask reconciles provider QC mask records into QC segments and
// derives processing masks from them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/qcmask/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "qcmask: %v\n", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
