package reactive

// OpType classifies either a dependency read (get, has, iterate) or a
// mutation (set, add, delete, clear).
type OpType uint8

const (
	OpGet OpType = iota
	OpHas
	OpIterate
	OpSet
	OpAdd
	OpDelete
	OpClear
)

func (op OpType) String() string {
	switch op {
	case OpGet:
		return "get"
	case OpHas:
		return "has"
	case OpIterate:
		return "iterate"
	case OpSet:
		return "set"
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpClear:
		return "clear"
	default:
		return "unknown"
	}
}

// IsWrite reports whether op is a mutation kind.
func (op OpType) IsWrite() bool {
	return op >= OpSet
}

// Key addresses a property of an observed target: a string or Symbol for
// records, an int index or LengthKey for sequences, any comparable value for
// maps and sets.
type Key = any

// LengthKey is the length property of a sequence.
const LengthKey = "length"
