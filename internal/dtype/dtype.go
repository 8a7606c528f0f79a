// Package dtype implements the engine's small tagged element-type enum and
// its promotion table (spec component C1, dtype half).
//
// Dtype dispatch is by (op, dtype) value, never by host Go type: a Dtype is
// a plain comparable struct carrying a category, a byte width, and a
// canonical name, so it can be used directly as a map key or switch
// subject.
package dtype

import "github.com/example/lazygrad/internal/lazyerr"

// Category groups dtypes for promotion purposes: boolean promotes to int,
// int promotes to float.
type Category uint8

const (
	Bool Category = iota
	Int
	Float
)

func (c Category) String() string {
	switch c {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	default:
		return "unknown"
	}
}

// Dtype is the engine's tagged type enum: {F32, I32, B8}.
type Dtype struct {
	name     string
	category Category
	width    int
}

var (
	// F32 is the engine's sole floating-point dtype.
	F32 = Dtype{name: "f32", category: Float, width: 4}
	// I32 is the engine's sole integer dtype.
	I32 = Dtype{name: "i32", category: Int, width: 4}
	// B8 is the engine's boolean dtype, comparisons and masks.
	B8 = Dtype{name: "b8", category: Bool, width: 1}
)

// String returns the canonical dtype name ("f32", "i32", "b8").
func (d Dtype) String() string { return d.name }

// Category reports which promotion tier d belongs to.
func (d Dtype) Category() Category { return d.category }

// Width returns the element width in bytes.
func (d Dtype) Width() int { return d.width }

// IsFloat, IsInt and IsBool are convenience predicates used throughout the
// op catalogue's shape/dtype rules.
func (d Dtype) IsFloat() bool { return d.category == Float }
func (d Dtype) IsInt() bool   { return d.category == Int }
func (d Dtype) IsBool() bool  { return d.category == Bool }

// Equal reports whether two dtypes are identical.
func (d Dtype) Equal(o Dtype) bool { return d.name == o.name }

// Promote implements the engine's mixed-dtype binary promotion rule:
// boolean -> int -> float, with float32 dominating any mixed-dtype binary
// op. Two dtypes of the same category promote to that category unchanged.
func Promote(a, b Dtype) Dtype {
	if a.category == b.category {
		return a
	}
	if a.category == Float || b.category == Float {
		return F32
	}
	if a.category == Int || b.category == Int {
		return I32
	}
	return B8
}

// Parse resolves a canonical dtype name back to its Dtype value. Used by
// the JIT cache's canonical-key encoding (spec §4.7) to round-trip a
// dtype name into a comparable value.
func Parse(name string) (Dtype, error) {
	switch name {
	case "f32":
		return F32, nil
	case "i32":
		return I32, nil
	case "b8":
		return B8, nil
	default:
		return Dtype{}, lazyerr.Newf(lazyerr.DtypeUnsupported, "dtype.Parse", "unknown dtype %q", name)
	}
}
