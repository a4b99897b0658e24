package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wudi/rxverify/app"
	"github.com/wudi/rxverify/config"
	"github.com/wudi/rxverify/document"
	rxerrors "github.com/wudi/rxverify/errors"
	"github.com/wudi/rxverify/observability"
	"github.com/wudi/rxverify/report"
)

type options struct {
	path       string
	configPath string
	format     string
	out        string
	seed       string
	offline    bool
	timeout    time.Duration
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rxcheck: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "rxcheck: %v\n", err)
		if hint := rxerrors.HintOf(err); hint != "" {
			fmt.Fprintf(os.Stderr, "%s\n", hint)
		}
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: rxcheck [flags] <image-or-pdf>\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML configuration file")
	flag.StringVar(&opts.format, "format", "json", "Output format: json or html")
	flag.StringVar(&opts.out, "out", "", "Write the report to this file instead of stdout")
	flag.StringVar(&opts.seed, "seed", "", "Reference seed file (overrides reference.seed_file)")
	flag.BoolVar(&opts.offline, "offline", false, "Ignore configured databases")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall verification timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return opts, fmt.Errorf("expected exactly one input file")
	}
	opts.path = flag.Arg(0)
	if opts.format != "json" && opts.format != "html" {
		return opts, fmt.Errorf("unsupported format %q", opts.format)
	}
	return opts, nil
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath, true)
	if err != nil {
		return err
	}
	if opts.seed != "" {
		cfg.Reference.SeedFile = opts.seed
	}
	logger := observability.NewLogger(os.Stderr, "text", cfg.Log.Level)

	data, err := os.ReadFile(opts.path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	var buildOpts []app.Option
	if opts.offline {
		buildOpts = append(buildOpts, app.WithoutDatabases())
	}
	a, err := app.Build(ctx, cfg, logger, buildOpts...)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	env, err := a.Verifier.Verify(ctx, document.New(filepath.Base(opts.path), data))
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return write(w, env, opts.format)
}

func write(w io.Writer, env report.Envelope, format string) error {
	if format == "html" {
		page, err := report.RenderHTML(env)
		if err != nil {
			return err
		}
		_, err = w.Write(page)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
