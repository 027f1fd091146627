package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/cors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Kong/datakit/config"
	"github.com/Kong/datakit/engine"
	"github.com/Kong/datakit/host/simhost"
	"github.com/Kong/datakit/internal/logx"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a /run debug endpoint: POST a request fixture, get back the rendered trace",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "graph", Usage: "Path to the graph config file", Required: true},
			&cli.StringFlag{Name: "format", Usage: "Graph config format: json or yaml", Value: "json"},
			&cli.StringFlag{Name: "addr", Usage: "Address to listen on", Value: "127.0.0.1:9600"},
		},
		Action: serveAction,
	}
}

// runRequest is the body a debug client POSTs to /run: a request fixture
// to drive one graph execution with.
type runRequest struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Body        string `json:"body"`
	ContentType string `json:"content_type"`
}

func serveAction(c *cli.Context) error {
	graphData, err := os.ReadFile(c.String("graph"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading graph config: %s", err), 1)
	}
	format := config.FormatJSON
	if c.String("format") == "yaml" {
		format = config.FormatYAML
	}
	graph, err := engine.Compile(graphData, format)
	if err != nil {
		return cli.Exit(fmt.Sprintf("compiling graph: %s", err), 1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		handleRun(w, r, graph)
	})

	// CORS-enabled so a browser-based debug UI on a different origin can
	// call this endpoint directly.
	handler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)

	addr := c.String("addr")
	logx.L().Info("datakit debug server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, handler)
}

func handleRun(w http.ResponseWriter, r *http.Request, graph *engine.Graph) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %s", err), http.StatusBadRequest)
		return
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Path == "" {
		req.Path = "/"
	}

	reqHeaders := http.Header{}
	reqHeaders.Set(":method", req.Method)
	reqHeaders.Set(":path", req.Path)
	reqHeaders.Set(engine.TraceHeader, "on")
	var body []byte
	if req.Body != "" {
		body = []byte(req.Body)
		reqHeaders.Set("Content-Type", req.ContentType)
	}

	h := simhost.New(reqHeaders, body)
	e := engine.New(graph, h, nil, true)

	ctx := context.Background()
	driveRequest(ctx, e, h, body != nil)

	w.Header().Set("Content-Type", "application/json")
	w.Write(h.GetHTTPResponseBody())
}
