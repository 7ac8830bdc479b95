// Command telos records the intent behind code changes in a
// content-addressed store next to the source tree.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/roach88/telos/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
