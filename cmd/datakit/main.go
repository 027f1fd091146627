// Package main provides the datakit CLI entrypoint: run a compiled graph
// against a canned HTTP request fixture driven by host/simhost, and
// optionally serve the same graph over a small debug HTTP surface for
// browser-based iteration.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	_ "github.com/Kong/datakit/nodes/call"
	_ "github.com/Kong/datakit/nodes/exit"
	_ "github.com/Kong/datakit/nodes/jsontransform"
	_ "github.com/Kong/datakit/nodes/property"
	_ "github.com/Kong/datakit/nodes/template"

	"github.com/Kong/datakit/internal/telemetry"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	shutdown := telemetry.InstallLocalProvider()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	app := &cli.App{
		Name:           "datakit",
		Usage:          "Run and debug datakit dataflow graphs outside a host proxy",
		Version:        version,
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg := exitCoder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitCoder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
