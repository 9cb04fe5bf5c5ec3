package graph

// NodeKind enumerates the operations of a process graph.
type NodeKind int

const (
	NodeDomain          NodeKind = iota // declare an empty domain
	NodeGeometry                        // rasterize a primitive
	NodeCopy                            // deep copy a domain under a new name
	NodeBoolean                         // union, intersect, complement, invert
	NodeBand                            // expand, reduce, prune
	NodeAdvect                          // level set equation
	NodeGeometricAdvect                 // distribution based advection
	NodeVoids                           // void marking, stray point removal
	NodeFeatures                        // normals, curvatures, feature markers
	NodeMesh                            // surface or point mesh output
)

func (k NodeKind) String() string {
	switch k {
	case NodeDomain:
		return "domain"
	case NodeGeometry:
		return "geometry"
	case NodeCopy:
		return "copy"
	case NodeBoolean:
		return "boolean"
	case NodeBand:
		return "band"
	case NodeAdvect:
		return "advect"
	case NodeGeometricAdvect:
		return "geometric-advect"
	case NodeVoids:
		return "voids"
	case NodeFeatures:
		return "features"
	case NodeMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// SourceRef points at the script expression that created a node.
type SourceRef struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// Node is one operation of the process graph.
type Node struct {
	ID     NodeID    `json:"id"`
	Kind   NodeKind  `json:"kind"`
	Source SourceRef `json:"source"`
	Data   NodeData  `json:"data"`
}

// NodeData is the kind specific payload of a node.
type NodeData interface {
	// Target is the domain the operation writes.
	Target() string
	// Inputs are the domains the operation reads, Target included when the
	// operation modifies it in place.
	Inputs() []string
	nodeData() // marker method restricting implementations to this package
}
