package reactive

import "errors"

var (
	// ErrNotCollection is the panic value for map/set operations called on a
	// record or sequence proxy.
	ErrNotCollection = errors.New("reactive: operation requires a map or set")

	// ErrUnsupportedOp is the panic value for operations a container shape
	// cannot perform, such as Set on a set or Add on a map.
	ErrUnsupportedOp = errors.New("reactive: operation not supported by container")
)
