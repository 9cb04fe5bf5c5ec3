package kernel

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

// --- Mesh helper method tests ---

func TestMeshCounts(t *testing.T) {
	tests := []struct {
		name      string
		mesh      Mesh
		vertices  int
		triangles int
		lines     int
	}{
		{"empty", Mesh{}, 0, 0, 0},
		{"one vertex", Mesh{Vertices: []float32{1, 2, 3}}, 1, 0, 0},
		{"two triangles", Mesh{
			Vertices: []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0},
			Indices:  []uint32{0, 1, 2, 2, 3, 0},
		}, 4, 2, 0},
		{"polyline", Mesh{
			Vertices: []float32{0, 0, 0, 1, 0, 0, 1, 1, 0},
			Lines:    []uint32{0, 1, 1, 2},
		}, 3, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mesh.VertexCount(); got != tt.vertices {
				t.Errorf("VertexCount() = %d, want %d", got, tt.vertices)
			}
			if got := tt.mesh.TriangleCount(); got != tt.triangles {
				t.Errorf("TriangleCount() = %d, want %d", got, tt.triangles)
			}
			if got := tt.mesh.LineCount(); got != tt.lines {
				t.Errorf("LineCount() = %d, want %d", got, tt.lines)
			}
			if got := tt.mesh.IsEmpty(); got != (tt.vertices == 0) {
				t.Errorf("IsEmpty() = %v", got)
			}
		})
	}
}

func TestAddVertex(t *testing.T) {
	m := &Mesh{}
	if i := m.AddVertex([3]float64{1, 2, 3}, [3]float64{0, 0, 1}); i != 0 {
		t.Fatalf("first vertex index = %d", i)
	}
	if i := m.AddVertex([3]float64{4, 5, 6}, [3]float64{0, 1, 0}); i != 1 {
		t.Fatalf("second vertex index = %d", i)
	}
	if v := m.Vertex(1); v != [3]float64{4, 5, 6} {
		t.Errorf("Vertex(1) = %v", v)
	}
	if len(m.Normals) != len(m.Vertices) {
		t.Errorf("normals length %d != vertices length %d", len(m.Normals), len(m.Vertices))
	}
}

func TestWriteSTL(t *testing.T) {
	m := &Mesh{
		Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Indices:  []uint32{0, 1, 2},
		PartName: "tri",
	}
	var buf bytes.Buffer
	if err := m.WriteSTL(&buf); err != nil {
		t.Fatalf("WriteSTL: %v", err)
	}
	if buf.Len() != 80+4+50 {
		t.Fatalf("STL size = %d, want %d", buf.Len(), 80+4+50)
	}
	b := buf.Bytes()
	if n := binary.LittleEndian.Uint32(b[80:84]); n != 1 {
		t.Errorf("triangle count = %d, want 1", n)
	}
	nz := math.Float32frombits(binary.LittleEndian.Uint32(b[92:96]))
	if nz != 1 {
		t.Errorf("normal z = %v, want 1", nz)
	}
}

func TestWriteOBJ(t *testing.T) {
	m := &Mesh{
		Vertices: []float32{0, 0, 0, 1, 0, 0, 1, 1, 0},
		Lines:    []uint32{0, 1, 1, 2},
		PartName: "curve",
	}
	var buf bytes.Buffer
	if err := m.WriteOBJ(&buf); err != nil {
		t.Fatalf("WriteOBJ: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"o curve", "v 1 1 0", "l 1 2", "l 2 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("OBJ output missing %q:\n%s", want, out)
		}
	}
}

// --- Func solid ---

var _ Solid = Func{}

func TestFuncSolid(t *testing.T) {
	s := Func{
		Min:  [3]float64{-1, -1, -1},
		Max:  [3]float64{1, 1, 1},
		Dist: func(p [3]float64) float64 { return math.Hypot(math.Hypot(p[0], p[1]), p[2]) - 1 },
	}
	lo, hi := s.BoundingBox()
	if lo != [3]float64{-1, -1, -1} || hi != [3]float64{1, 1, 1} {
		t.Errorf("BoundingBox() = %v %v", lo, hi)
	}
	if d := s.Evaluate([3]float64{2, 0, 0}); d != 1 {
		t.Errorf("Evaluate = %v, want 1", d)
	}
}
