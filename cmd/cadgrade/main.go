// Command cadgrade grades CAD submissions against instructor references.
//
//	cadgrade [-config cadgrade.yaml] <command> [flags]
//
// Commands: compare, batch, author, analyze, schema.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chazu/cadgrade/pkg/config"
	"github.com/chazu/cadgrade/pkg/logging"
	"go.uber.org/zap"
)

const usage = `usage: cadgrade [-config file] <command> [flags]

commands:
  compare  -submitted S -reference R [-mode auto] [-tol 1e-3] [-questions Q.json -answers A.json]
  batch    -reference R -glob 'subs/**/*.stl' [-metrics-out file.prom]
  author   -in ref.lisp -out ref.stl [-modeler sdfx|manifold] [-cells 200]
  analyze  -in drawing.dxf
  schema`

// env carries what every command needs.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	stdout io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fatalf("cadgrade: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("cadgrade", flag.ContinueOnError)
	configPath := global.String("config", "", "YAML configuration file.")
	global.Usage = func() { fmt.Fprintln(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	e := &env{cfg: cfg, logger: logger, stdout: stdout}
	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "compare":
		return e.compare(rest)
	case "batch":
		return e.batch(rest)
	case "author":
		return e.author(rest)
	case "analyze":
		return e.analyze(rest)
	case "schema":
		return e.schema()
	default:
		return fmt.Errorf("unknown command: %s\n%s", cmd, usage)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
