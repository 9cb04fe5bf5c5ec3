package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/narrowband/pkg/ls"
)

// evaluateExample runs one of the scripts under examples/.
func evaluateExample(t *testing.T, name string) EvalResult {
	t.Helper()
	source, err := os.ReadFile(filepath.Join("examples", name))
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	result := NewApp().Evaluate(string(source))
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			t.Errorf("eval error (line %d): %s", e.Line, e.Message)
		}
		t.FailNow()
	}
	return result
}

// TestE2ETrenchExample exercises the full pipeline: Lisp source → engine →
// graph → execution → meshes.
func TestE2ETrenchExample(t *testing.T) {
	result := evaluateExample(t, "trench.nb")

	if len(result.Meshes) != 2 {
		t.Fatalf("expected 2 meshes, got %d", len(result.Meshes))
	}
	for i, want := range []string{"substrate", "layer"} {
		m := result.Meshes[i]
		if m.PartName != want {
			t.Errorf("mesh %d: part name %q, want %q", i, m.PartName, want)
		}
		if len(m.Vertices) == 0 || len(m.Lines) == 0 {
			t.Errorf("part %q: expected a line mesh", m.PartName)
		}
		if len(m.Indices) != 0 {
			t.Errorf("part %q: 2D mesh should have no triangles", m.PartName)
		}
		if m.Color == "" {
			t.Errorf("part %q: no color assigned", m.PartName)
		}
	}

	names := make(map[string]bool)
	for _, d := range result.Domains {
		names[d.Name] = true
		if d.Dim != 2 {
			t.Errorf("domain %q: dim %d, want 2", d.Name, d.Dim)
		}
		if d.Points == 0 && d.Name != "trench" {
			t.Errorf("domain %q is empty", d.Name)
		}
	}
	for _, want := range []string{"substrate", "trench", "layer"} {
		if !names[want] {
			t.Errorf("missing domain %q", want)
		}
	}
}

func TestE2ECutawayExample(t *testing.T) {
	result := evaluateExample(t, "cutaway.nb")

	if len(result.Meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(result.Meshes))
	}
	m := result.Meshes[0]
	if len(m.Indices) == 0 {
		t.Fatal("expected a triangle mesh")
	}
	if len(m.Normals) != len(m.Vertices) {
		t.Errorf("normals %d != vertices %d", len(m.Normals), len(m.Vertices))
	}
	// the removed octant leaves no surface deep inside x, y, z > 0.5
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		x, y, z := m.Vertices[i], m.Vertices[i+1], m.Vertices[i+2]
		if x > 0.5 && y > 0.5 && z > 0.5 {
			t.Errorf("vertex (%v, %v, %v) inside the removed octant", x, y, z)
			break
		}
	}
}

func TestE2EPoreExample(t *testing.T) {
	result := evaluateExample(t, "pore.nb")

	if len(result.Meshes) != 2 {
		t.Fatalf("expected 2 meshes, got %d", len(result.Meshes))
	}
	points := result.Meshes[0]
	if _, ok := points.Scalars[ls.LabelVoidMarkers]; !ok {
		t.Errorf("point mesh lacks void markers: %v", points.Scalars)
	}
	if len(points.Lines) != 0 || len(points.Indices) != 0 {
		t.Errorf("point mesh should have no elements")
	}
	if len(result.Meshes[1].Lines) == 0 {
		t.Errorf("surface mesh is empty")
	}
}

// TestE2EEmptySource ensures the pipeline handles empty input gracefully.
func TestE2EEmptySource(t *testing.T) {
	app := NewApp()
	result := app.Evaluate("")

	if len(result.Errors) > 0 {
		t.Errorf("unexpected errors for empty source: %v", result.Errors)
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes for empty source, got %d", len(result.Meshes))
	}
}

// TestE2ESyntaxError ensures eval errors are reported, not fatal errors.
func TestE2ESyntaxError(t *testing.T) {
	app := NewApp()
	result := app.Evaluate("(domain \"test\"")

	if len(result.Errors) == 0 {
		t.Fatal("expected eval errors for syntax error")
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes on error, got %d", len(result.Meshes))
	}
}

// TestE2ESingleCircle ensures a minimal script renders one mesh.
func TestE2ESingleCircle(t *testing.T) {
	app := NewApp()
	source := `(mesh (make-geometry (domain "disc" :dim 2 :spacing 0.5) (sphere :radius 3)))`
	result := app.Evaluate(source)

	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			t.Errorf("eval error: %s", e.Message)
		}
		t.FailNow()
	}
	if len(result.Meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(result.Meshes))
	}
	if result.Meshes[0].PartName != "disc" {
		t.Errorf("expected part name 'disc', got %q", result.Meshes[0].PartName)
	}
}

// ---------------------------------------------------------------------------
// Output files
// ---------------------------------------------------------------------------

func TestWriteOutputs(t *testing.T) {
	result := evaluateExample(t, "trench.nb")
	dir := t.TempDir()

	written, err := writeOutputs(dir, result)
	if err != nil {
		t.Fatalf("writeOutputs: %v", err)
	}
	// two meshes, three domains, one manifest
	if len(written) != 6 {
		t.Fatalf("expected 6 files, got %d: %v", len(written), written)
	}
	for _, name := range []string{"00-substrate.obj", "01-layer.obj", "layer.lsd", manifestName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "layer.lsd"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	d, err := ls.Read(f)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if d.NumPoints() != result.levelSets["layer"].NumPoints() {
		t.Errorf("read back %d points, want %d", d.NumPoints(), result.levelSets["layer"].NumPoints())
	}

	manifest, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(manifest), result.RunID) {
		t.Errorf("manifest lacks run id %s", result.RunID)
	}
}

func TestWriteOutputsSTL(t *testing.T) {
	result := evaluateExample(t, "cutaway.nb")
	dir := t.TempDir()
	if _, err := writeOutputs(dir, result); err != nil {
		t.Fatalf("writeOutputs: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "00-ball.stl"))
	if err != nil {
		t.Fatalf("missing STL: %v", err)
	}
	// 80 byte header, triangle count, 50 bytes per triangle
	triangles := len(result.Meshes[0].Indices) / 3
	if len(data) != 84+50*triangles {
		t.Errorf("STL size %d, want %d", len(data), 84+50*triangles)
	}
}

// ---------------------------------------------------------------------------
// Command line
// ---------------------------------------------------------------------------

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	code := run([]string{"-script", filepath.Join("examples", "trench.nb"), "-out", dir}, strings.NewReader(""), &stderr)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	if _, err := os.Stat(filepath.Join(dir, manifestName)); err != nil {
		t.Errorf("manifest not written: %v", err)
	}
}

func TestRunCommandStdin(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	script := `(mesh (make-geometry (domain "d" :dim 2) (sphere :radius 4)))`
	if code := run([]string{"-out", dir}, strings.NewReader(script), &stderr); code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "00-d.obj")); err != nil {
		t.Errorf("mesh not written: %v", err)
	}
}

func TestRunCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		in   string
		code int
	}{
		{"bad flag", []string{"-nope"}, "", 2},
		{"missing script", []string{"-script", "does-not-exist.nb"}, "", 1},
		{"script error", []string{"-out", "unused"}, `(expand "ghost" 2)`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if code := run(tt.args, strings.NewReader(tt.in), &stderr); code != tt.code {
				t.Errorf("exit code %d, want %d: %s", code, tt.code, stderr.String())
			}
		})
	}
}
