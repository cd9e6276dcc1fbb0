// connprobe checks that the components of a deployment can reach each other.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"connprobe/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "connprobe: %v\n", err)
		os.Exit(1)
	}
}
