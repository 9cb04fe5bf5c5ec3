package graph

import (
	"github.com/chazu/narrowband/pkg/advect"
	"github.com/chazu/narrowband/pkg/features"
	"github.com/chazu/narrowband/pkg/geomadvect"
	"github.com/chazu/narrowband/pkg/geometry"
	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/voids"
)

// ---------------------------------------------------------------------------
// Domain
// ---------------------------------------------------------------------------

// DomainData declares an empty domain. Bounds holds min and max per axis;
// axes with an Infinite boundary condition ignore their bounds.
type DomainData struct {
	Name    string                 `json:"name"`
	Dim     int                    `json:"dim"`
	Spacing float64                `json:"spacing"`
	Bounds  []float64              `json:"bounds"`
	BCs     []ls.BoundaryCondition `json:"bcs"`
}

func (d DomainData) Target() string   { return d.Name }
func (d DomainData) Inputs() []string { return nil }
func (DomainData) nodeData()          {}

// GeometryData rasterizes Shape into Domain, replacing its content.
type GeometryData struct {
	Domain string             `json:"domain"`
	Shape  geometry.Primitive `json:"-"`
}

func (d GeometryData) Target() string   { return d.Domain }
func (d GeometryData) Inputs() []string { return []string{d.Domain} }
func (GeometryData) nodeData()          {}

// CopyData declares Name as a deep copy of Source.
type CopyData struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

func (d CopyData) Target() string   { return d.Name }
func (d CopyData) Inputs() []string { return []string{d.Source} }
func (CopyData) nodeData()          {}

// ---------------------------------------------------------------------------
// Level set operations
// ---------------------------------------------------------------------------

// BooleanData combines Domain with Operand in place. Operand is empty for
// ls.Invert.
type BooleanData struct {
	Domain  string       `json:"domain"`
	Operand string       `json:"operand,omitempty"`
	Op      ls.BooleanOp `json:"op"`
}

func (d BooleanData) Target() string { return d.Domain }
func (d BooleanData) Inputs() []string {
	if d.Op == ls.Invert {
		return []string{d.Domain}
	}
	return []string{d.Domain, d.Operand}
}
func (BooleanData) nodeData() {}

// BandOp selects a band maintenance operation.
type BandOp int

const (
	BandExpand BandOp = iota
	BandReduce
	BandPrune
)

func (o BandOp) String() string {
	switch o {
	case BandExpand:
		return "expand"
	case BandReduce:
		return "reduce"
	case BandPrune:
		return "prune"
	default:
		return "unknown"
	}
}

// BandData changes the width of the band of Domain. Width is unused by
// BandPrune.
type BandData struct {
	Domain string `json:"domain"`
	Op     BandOp `json:"op"`
	Width  int    `json:"width,omitempty"`
}

func (d BandData) Target() string   { return d.Domain }
func (d BandData) Inputs() []string { return []string{d.Domain} }
func (BandData) nodeData()          {}

// ---------------------------------------------------------------------------
// Advection
// ---------------------------------------------------------------------------

// AdvectData advects a stack of material layers, bottom first. The last
// domain is the top surface. A zero Time performs a single maximal step.
type AdvectData struct {
	Domains       []string              `json:"domains"`
	Velocity      advect.Velocity       `json:"-"`
	Time          float64               `json:"time"`
	Scheme        advect.SpatialScheme  `json:"scheme"`
	Temporal      advect.TemporalScheme `json:"temporal"`
	TimeStepRatio float64               `json:"time_step_ratio,omitempty"`
	IgnoreVoids   bool                  `json:"ignore_voids,omitempty"`
}

func (d AdvectData) Target() string {
	if len(d.Domains) == 0 {
		return ""
	}
	return d.Domains[len(d.Domains)-1]
}
func (d AdvectData) Inputs() []string { return d.Domains }
func (AdvectData) nodeData()          {}

// GeometricAdvectData applies Dist to Domain, optionally restricted by the
// domain named Mask.
type GeometricAdvectData struct {
	Domain string                  `json:"domain"`
	Dist   geomadvect.Distribution `json:"-"`
	Mask   string                  `json:"mask,omitempty"`
}

func (d GeometricAdvectData) Target() string { return d.Domain }
func (d GeometricAdvectData) Inputs() []string {
	if d.Mask == "" {
		return []string{d.Domain}
	}
	return []string{d.Domain, d.Mask}
}
func (GeometricAdvectData) nodeData() {}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

// VoidsData marks void points of Domain, or removes every component but
// the top surface when Remove is set.
type VoidsData struct {
	Domain     string           `json:"domain"`
	Remove     bool             `json:"remove,omitempty"`
	TopSurface voids.TopSurface `json:"top_surface"`
}

func (d VoidsData) Target() string   { return d.Domain }
func (d VoidsData) Inputs() []string { return []string{d.Domain} }
func (VoidsData) nodeData()          {}

// FeatureOp selects the point data a features node computes.
type FeatureOp int

const (
	FeatureNormals FeatureOp = iota
	FeatureCurvatures
	FeatureDetect
)

func (o FeatureOp) String() string {
	switch o {
	case FeatureNormals:
		return "normals"
	case FeatureCurvatures:
		return "curvatures"
	case FeatureDetect:
		return "detect"
	default:
		return "unknown"
	}
}

// FeaturesData computes normals, curvatures or feature markers of Domain.
type FeaturesData struct {
	Domain    string                 `json:"domain"`
	Op        FeatureOp              `json:"op"`
	Curvature features.CurvatureType `json:"curvature,omitempty"`
	Method    features.Method        `json:"method,omitempty"`
	Limit     float64                `json:"limit,omitempty"`
}

func (d FeaturesData) Target() string   { return d.Domain }
func (d FeaturesData) Inputs() []string { return []string{d.Domain} }
func (FeaturesData) nodeData()          {}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// MeshData extracts a mesh of Domain. Surface selects the interface mesh;
// otherwise one vertex per stored point is emitted.
type MeshData struct {
	Domain  string `json:"domain"`
	Surface bool   `json:"surface"`
}

func (d MeshData) Target() string   { return d.Domain }
func (d MeshData) Inputs() []string { return []string{d.Domain} }
func (MeshData) nodeData()          {}
