package main

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/chazu/narrowband/pkg/engine"
	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/kernel/sdfx"
	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/tessellate"
)

// colorPalette is a default palette used to assign distinct colors to parts.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App evaluates process scripts and runs the resulting graphs.
type App struct {
	ctx     context.Context
	engine  *engine.Engine
	kernel  kernel.Kernel
	threads int
	log     *slog.Logger
}

// MeshData is the JSON-serializable mesh format written next to the mesh
// files.
type MeshData struct {
	Vertices []float32            `json:"vertices"`
	Normals  []float32            `json:"normals"`
	Indices  []uint32             `json:"indices"`
	Lines    []uint32             `json:"lines,omitempty"`
	Scalars  map[string][]float32 `json:"scalars,omitempty"`
	PartName string               `json:"partName"`
	Color    string               `json:"color"`
}

// EvalErrorData is a JSON-serializable eval error.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// DomainSummary describes the final state of one domain.
type DomainSummary struct {
	Name   string `json:"name"`
	Dim    int    `json:"dim"`
	Points int    `json:"points"`
	Width  int    `json:"width"`
}

// EvalResult is the full result of one evaluation. RunID identifies the
// evaluation in logs and output files.
type EvalResult struct {
	RunID    string          `json:"runId"`
	Meshes   []MeshData      `json:"meshes"`
	Domains  []DomainSummary `json:"domains"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`

	// levelSets holds the final domains for writing .lsd files.
	levelSets map[string]*ls.Domain
}

// NewApp creates a new App with an engine and the sdfx kernel.
func NewApp(opts ...engine.Option) *App {
	k := sdfx.New()
	return &App{
		ctx:    context.Background(),
		engine: engine.NewEngine(append([]engine.Option{engine.WithKernel(k)}, opts...)...),
		kernel: k,
		log:    ls.Logger(),
	}
}

// startup replaces the context runs are bound to.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

// Evaluate takes Lisp source, runs the process it describes and returns
// the meshes and errors.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		RunID:     uuid.NewString(),
		Meshes:    []MeshData{},
		Domains:   []DomainSummary{},
		Errors:    []EvalErrorData{},
		Warnings:  []EvalErrorData{},
		levelSets: map[string]*ls.Domain{},
	}
	log := a.log.With("run", result.RunID[:8])

	// Step 1: Evaluate the Lisp source into a process graph.
	res := a.engine.EvaluateAll(source)
	if res.Err != nil {
		// Fatal error (panic, timeout, etc.)
		log.Error("evaluate fatal error", "err", res.Err)
		result.Errors = append(result.Errors, EvalErrorData{Message: res.Err.Error()})
		return result
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Line: w.Line, Col: w.Col, Message: w.Message})
	}

	// Step 2: Convert eval errors to the output format.
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return result
	}

	// Step 3: Execute the graph.
	opts := []tessellate.Option{tessellate.WithKernel(a.kernel)}
	if a.threads > 0 {
		opts = append(opts, tessellate.WithThreads(a.threads))
	}
	run, err := tessellate.Run(a.ctx, res.Graph, opts...)
	if err != nil {
		log.Error("run failed", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: "run failed: " + err.Error()})
		return result
	}

	// Step 4: Convert kernel meshes to the output format.
	for i, m := range run.Meshes {
		result.Meshes = append(result.Meshes, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			Lines:    m.Lines,
			Scalars:  m.Scalars,
			PartName: m.PartName,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	names := lo.Keys(run.Domains)
	slices.Sort(names)
	for _, name := range names {
		d := run.Domains[name]
		result.Domains = append(result.Domains, DomainSummary{
			Name: name, Dim: d.Dimension(), Points: d.NumPoints(), Width: d.Width(),
		})
	}
	result.levelSets = run.Domains
	log.Info("run finished", "meshes", len(result.Meshes), "domains", len(result.Domains))
	return result
}

// mesh converts m back into a kernel mesh for the file writers.
func (m MeshData) mesh() *kernel.Mesh {
	return &kernel.Mesh{
		Vertices: m.Vertices,
		Normals:  m.Normals,
		Indices:  m.Indices,
		Lines:    m.Lines,
		Scalars:  m.Scalars,
		PartName: m.PartName,
	}
}
