package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-poi/internal/dataset"
	"github.com/joeblew999/plat-poi/internal/db"
	"github.com/joeblew999/plat-poi/internal/logger"
	"github.com/joeblew999/plat-poi/internal/server"
)

const version = "0.1.0"

// Options defines all CLI flags and env vars for the viewer server.
// Flags: --host, --port, --data-dir, --web-dir, --log-level, --log-console,
// --max-sessions, --watch
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
type Options struct {
	Host        string `doc:"Host to bind to" default:"0.0.0.0"`
	Port        int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir     string `doc:"Directory holding pops.json, metadata.yaml and pops.geojson" default:".data"`
	WebDir      string `doc:"Path to web/ directory" default:"web"`
	LogLevel    string `doc:"Log level (debug, info, warn, error)" default:"info"`
	LogConsole  bool   `doc:"Human-readable console logs instead of JSON" default:"false"`
	MaxSessions int    `doc:"Maximum live viewer sessions" default:"1024"`
	Watch       bool   `doc:"Reload the dataset when its files change" default:"true"`
}

func newServer(opts *Options) (*server.Server, error) {
	return server.New(server.Config{
		Host:        opts.Host,
		Port:        fmt.Sprintf("%d", opts.Port),
		DataDir:     opts.DataDir,
		WebDir:      opts.WebDir,
		Version:     version,
		MaxSessions: opts.MaxSessions,
		Log:         logger.Build(logger.Config{Level: opts.LogLevel, Console: opts.LogConsole}, os.Stderr),
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpServer *http.Server
		var cancelWatch context.CancelFunc

		hooks.OnStart(func() {
			srv, err := newServer(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()

			if opts.Watch {
				var ctx context.Context
				ctx, cancelWatch = context.WithCancel(context.Background())
				go func() {
					if err := srv.Watch(ctx); err != nil {
						fmt.Fprintf(os.Stderr, "Dataset watch stopped: %v\n", err)
					}
				}()
			}

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-poi viewer server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Pages:   %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if cancelWatch != nil {
				cancelWatch()
			}
			if httpServer != nil {
				httpServer.Shutdown(context.Background())
			}
		})
	})

	cli.Root().Use = "poi"
	cli.Root().Short = "Point-of-interest map viewer"
	cli.Root().Version = version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.LogLevel = "error"
			srv, err := newServer(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// build-data subcommand: convert the upstream POPS CSV into the viewer documents
	buildCmd := &cobra.Command{
		Use:   "build-data",
		Short: "Build pops.geojson, pops.json and metadata.yaml from the POPS CSV",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			source, _ := cmd.Flags().GetString("source")
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				out = opts.DataDir
			}

			var extensions []string
			if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
				extensions = append(extensions, "httpfs")
			}
			conn, err := db.Open(db.Config{Extensions: extensions})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error opening duckdb: %v\n", err)
				os.Exit(1)
			}
			defer conn.Close()

			rows, err := dataset.CSVSource{DB: conn, Location: source}.Rows(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading source: %v\n", err)
				os.Exit(1)
			}
			built := dataset.Build(rows)
			if err := dataset.Write(out, built); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing documents: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Built %d features into %s/\n", len(built.Details), out)
		}),
	}
	buildCmd.Flags().StringP("source", "s", dataset.DefaultSourceURL, "POPS CSV path or URL")
	buildCmd.Flags().StringP("out", "o", "", "Output directory (defaults to --data-dir)")
	cli.Root().AddCommand(buildCmd)

	cli.Run()
}
