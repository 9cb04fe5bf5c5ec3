package ls

import "errors"

// Configuration errors. They are returned before any computation starts.
var (
	ErrInvalidDimension  = errors.New("ls: dimension must be 2 or 3")
	ErrInvalidSpacing    = errors.New("ls: grid spacing must be positive and finite")
	ErrInvalidBounds     = errors.New("ls: invalid grid bounds")
	ErrInvalidWidth      = errors.New("ls: level set width must be positive")
	ErrDimensionMismatch = errors.New("ls: level sets have different dimensions")
	ErrSpacingMismatch   = errors.New("ls: level sets have different grid spacings")
	ErrEmptyLevelSets    = errors.New("ls: no level sets supplied")
	ErrNilDomain         = errors.New("ls: nil domain")
	ErrCorruptData       = errors.New("ls: corrupt serialized domain")
)

// CheckCompatible reports whether two domains can be combined point by point.
func CheckCompatible(a, b *Domain) error {
	if a == nil || b == nil {
		return ErrNilDomain
	}
	if a.grid.dim != b.grid.dim {
		return ErrDimensionMismatch
	}
	if a.grid.delta != b.grid.delta {
		return ErrSpacingMismatch
	}
	return nil
}
