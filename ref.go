package mutter

// Ref holds a value by reference. A *Ref is stored as an opaque scalar, so
// containers inside it are neither wrapped nor tracked, and replacing Value
// in place notifies nobody.
type Ref struct {
	Value any
}

// NewRef wraps value.
func NewRef(value any) *Ref {
	return &Ref{Value: value}
}
