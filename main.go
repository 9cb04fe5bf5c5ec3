// Command narrowband runs a level-set process script and writes the
// resulting meshes and domains.
//
//	narrowband -script deposition.nb -out out/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/chazu/narrowband/pkg/engine"
	"github.com/chazu/narrowband/pkg/ls"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stderr))
}

func run(args []string, stdin io.Reader, stderr io.Writer) int {
	fs := flag.NewFlagSet("narrowband", flag.ContinueOnError)
	fs.SetOutput(stderr)
	script := fs.String("script", "-", "process script to run, - reads stdin")
	out := fs.String("out", "out", "output directory")
	timeout := fs.Duration("timeout", engine.EvalTimeout, "script evaluation timeout")
	threads := fs.Int("threads", 0, "worker threads, 0 uses the script setting or GOMAXPROCS")
	verbose := fs.Bool("v", false, "log debug output")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	ls.SetLogger(logger)

	source, err := readScript(*script, stdin)
	if err != nil {
		logger.Error("read script", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := NewApp(engine.WithTimeout(*timeout))
	app.startup(ctx)
	app.threads = *threads

	start := time.Now()
	result := app.Evaluate(source)
	for _, w := range result.Warnings {
		logger.Warn(w.Message, "line", w.Line)
	}
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			fmt.Fprintln(stderr, formatError(e))
		}
		return 1
	}

	written, err := writeOutputs(*out, result)
	if err != nil {
		logger.Error("write outputs", "err", err)
		return 1
	}
	logger.Info("done", "run", result.RunID, "files", len(written), "elapsed", time.Since(start).Round(time.Millisecond))
	return 0
}

func readScript(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func formatError(e EvalErrorData) string {
	if e.Line > 0 {
		return fmt.Sprintf("error: line %d: %s", e.Line, e.Message)
	}
	return "error: " + e.Message
}
