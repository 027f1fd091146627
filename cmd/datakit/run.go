package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Kong/datakit/config"
	"github.com/Kong/datakit/engine"
	"github.com/Kong/datakit/host/simhost"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Compile a graph and drive it against a canned request fixture",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "graph", Usage: "Path to the graph config file", Required: true},
			&cli.StringFlag{Name: "format", Usage: "Graph config format: json or yaml", Value: "json"},
			&cli.StringFlag{Name: "schema", Usage: "Path to a JSON Schema file the graph config must satisfy before compiling"},
			&cli.StringFlag{Name: "method", Usage: "Request method", Value: http.MethodGet},
			&cli.StringFlag{Name: "path", Usage: "Request path", Value: "/"},
			&cli.StringFlag{Name: "body", Usage: "Path to a file with the request body", Value: ""},
			&cli.StringFlag{Name: "content-type", Usage: "Request body content type", Value: "application/json"},
			&cli.BoolFlag{Name: "trace", Usage: "Render the debug trace instead of the response body"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	graphData, err := os.ReadFile(c.String("graph"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading graph config: %s", err), 1)
	}

	format := config.FormatJSON
	if c.String("format") == "yaml" {
		format = config.FormatYAML
	}

	var schema *config.Schema
	if p := c.String("schema"); p != "" {
		schema, err = config.CompileSchema("file://"+p, nil)
		if err != nil {
			return cli.Exit(fmt.Sprintf("compiling schema: %s", err), 1)
		}
	}

	graph, err := engine.CompileWithSchema(graphData, format, schema)
	if err != nil {
		return cli.Exit(fmt.Sprintf("compiling graph: %s", err), 1)
	}

	var body []byte
	if p := c.String("body"); p != "" {
		body, err = os.ReadFile(p)
		if err != nil {
			return cli.Exit(fmt.Sprintf("reading request body: %s", err), 1)
		}
	}

	reqHeaders := http.Header{}
	reqHeaders.Set(":method", c.String("method"))
	reqHeaders.Set(":path", c.String("path"))
	if c.Bool("trace") {
		reqHeaders.Set(engine.TraceHeader, "on")
	}
	if body != nil {
		reqHeaders.Set("Content-Type", c.String("content-type"))
	}

	h := simhost.New(reqHeaders, body)
	e := engine.New(graph, h, nil, c.Bool("trace"))

	ctx := context.Background()
	driveRequest(ctx, e, h, body != nil)

	status, _ := h.Sent()
	fmt.Fprintf(os.Stderr, "status: %d\n", status)
	fmt.Println(string(h.GetHTTPResponseBody()))
	return nil
}

// driveRequest runs the full lifecycle against e, resolving any Waiting
// node by draining simhost's pending dispatched calls oldest-first and
// feeding each completion back through OnHTTPCallResponse -- standing in
// for the async event loop a real host would drive this from.
func driveRequest(ctx context.Context, e *engine.Engine, h *simhost.Host, hasBody bool) {
	settle := func(action engine.Action) {
		for action == engine.ActionPause && !e.Failed() {
			token, ok := h.NextPending()
			if !ok {
				return
			}
			e.OnHTTPCallResponse(ctx, token)
		}
	}

	settle(e.OnRequestHeaders(ctx))
	if e.Failed() {
		return
	}
	settle(e.OnRequestBody(ctx, !hasBody))
	if e.Failed() {
		return
	}
	settle(e.OnResponseHeaders(ctx))
	if e.Failed() {
		return
	}
	settle(e.OnResponseBody(ctx, true))
}
