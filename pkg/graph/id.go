package graph

import "github.com/google/uuid"

// namespace scopes node IDs derived from script paths.
var namespace = uuid.MustParse("6f1c2d4e-9a7b-4c3d-8e5f-0a1b2c3d4e5f")

// NodeID identifies a node. IDs derived from the same path are equal, so
// re-evaluating an unchanged script yields the same IDs.
type NodeID uuid.UUID

// ZeroID is the ID of no node.
var ZeroID NodeID

// NewNodeID derives the ID of the node created at path, for example
// "advect/3".
func NewNodeID(path string) NodeID {
	return NodeID(uuid.NewSHA1(namespace, []byte(path)))
}

// IsZero reports whether id is ZeroID.
func (id NodeID) IsZero() bool { return id == ZeroID }

func (id NodeID) String() string { return uuid.UUID(id).String() }

// Short returns the first eight hex digits of id.
func (id NodeID) Short() string { return id.String()[:8] }
