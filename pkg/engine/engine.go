// Package engine provides the Lisp evaluation engine for narrowband.
// It wraps zygomys in a sandboxed environment and produces a ProcessGraph
// from user source code.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/narrowband/pkg/graph"
	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/kernel/sdfx"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal warning produced during evaluation.
type EvalWarning struct {
	Line    int
	Col     int
	Message string
	NodeID  graph.NodeID
}

// EvalResult bundles the full output of an evaluation for use by UI bindings.
type EvalResult struct {
	Graph    *graph.ProcessGraph
	Errors   []EvalError
	Warnings []EvalWarning
	Err      error
}

// Engine wraps the zygomys interpreter for narrowband evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64
	timeout    time.Duration
	kernel     kernel.Kernel
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout replaces EvalTimeout as the limit for a single evaluation.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithKernel sets the kernel used to build solids for custom
// distributions. The default is the sdfx kernel.
func WithKernel(k kernel.Kernel) Option {
	return func(e *Engine) { e.kernel = k }
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: EvalTimeout, kernel: sdfx.New()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate takes Lisp source code and produces a new ProcessGraph.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
// The graph is validated; validation errors are reported as eval errors.
//
// Return semantics:
//   - On success: returns graph + nil errors + nil error
//   - On parse/eval/validation failure: returns nil graph + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*graph.ProcessGraph, []EvalError, error) {
	res := e.EvaluateAll(source)
	if res.Err != nil {
		return nil, nil, res.Err
	}
	if len(res.Errors) > 0 {
		return nil, res.Errors, nil
	}
	return res.Graph, nil, nil
}

// EvaluateAll is Evaluate with validation warnings. A fatal failure is
// returned in Err.
func (e *Engine) EvaluateAll(source string) EvalResult {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		g, evalErrs, err := e.evaluate(source)
		ch <- evalResult{graph: g, errors: evalErrs, err: err}
	}()

	g, evalErrs, err := waitWithTimeout(ch, gen, &e.mu, &e.generation, e.timeout)
	if err != nil || len(evalErrs) > 0 {
		return EvalResult{Errors: evalErrs, Err: err}
	}
	return check(g)
}

// check converts validation findings of g into an EvalResult.
func check(g *graph.ProcessGraph) EvalResult {
	res := graph.ValidateAll(g)
	out := EvalResult{Graph: g}
	for _, v := range res.Errors {
		out.Errors = append(out.Errors, EvalError{Message: v.Error()})
	}
	for _, v := range res.Warnings {
		out.Warnings = append(out.Warnings, EvalWarning{Message: v.Message, NodeID: v.NodeID})
	}
	if len(out.Errors) > 0 {
		out.Graph = nil
	}
	return out
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*graph.ProcessGraph, []EvalError, error) {
	// Empty source is a valid program that produces an empty graph.
	if strings.TrimSpace(source) == "" {
		return graph.New(), nil, nil
	}

	// Create a fresh sandboxed zygomys environment.
	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := newBuilder(e.kernel)
	registerBuiltins(env, b)

	// Load and compile the source string into bytecode.
	err := env.LoadString(preprocessSource(source))
	if err != nil {
		evalErrs := parseZygomysError(err)
		return nil, evalErrs, nil
	}

	// Execute the compiled bytecode.
	_, err = env.Run()
	if err != nil {
		evalErrs := parseZygomysError(err)
		return nil, evalErrs, nil
	}

	return b.g, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// Try to extract line numbers from the error message.
	// zygomys formats parse errors as "Error on line N: <details>\n"
	if m := linePattern.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		detail := strings.TrimSpace(m[2])
		return []EvalError{{
			Line:    line,
			Col:     0,
			Message: detail,
		}}
	}

	if m := linePatternShort.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		detail := strings.TrimSpace(m[2])
		return []EvalError{{
			Line:    line,
			Col:     0,
			Message: detail,
		}}
	}

	// Fallback: no line info available.
	return []EvalError{{
		Line:    0,
		Col:     0,
		Message: strings.TrimSpace(msg),
	}}
}
