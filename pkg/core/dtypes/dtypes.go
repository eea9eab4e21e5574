// Package dtypes defines the DType enum of element types a tensor can hold,
// along with the byte size and Go type of each, and parsing of dtype names.
//
// The set of dtypes is the closed set the planning core stores: the memory
// planner only ever needs the byte size, but the Go type mapping is kept so
// bound tensor storage can be viewed as a typed flat slice.
package dtypes

import (
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/infergraph/infergraph/pkg/core/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters don't follow the specifications.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

// DType is the data type of the unit element of a tensor.
type DType int32

const (
	InvalidDType DType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	BFloat16
	Float32
	Float64
)

// MapOfNames to their dtypes. It includes aliases for the various dtypes,
// plus lower-case versions of every name (added during initialization).
var MapOfNames = map[string]DType{
	"Bool":     Bool,
	"B1":       Bool,
	"Int8":     Int8,
	"I8":       Int8,
	"Int16":    Int16,
	"I16":      Int16,
	"Int32":    Int32,
	"I32":      Int32,
	"Int64":    Int64,
	"I64":      Int64,
	"Uint8":    Uint8,
	"U8":       Uint8,
	"Uint16":   Uint16,
	"U16":      Uint16,
	"Uint32":   Uint32,
	"U32":      Uint32,
	"Uint64":   Uint64,
	"U64":      Uint64,
	"Float16":  Float16,
	"F16":      Float16,
	"BFloat16": BFloat16,
	"BF16":     BFloat16,
	"Float32":  Float32,
	"F32":      Float32,
	"Float64":  Float64,
	"F64":      Float64,
}

func init() {
	// Add a mapping to the lower-case version of the names.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if lowerKey == key {
			continue
		}
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	switch dtype {
	case Bool:
		return "Bool"
	case Int8:
		return "Int8"
	case Int16:
		return "Int16"
	case Int32:
		return "Int32"
	case Int64:
		return "Int64"
	case Uint8:
		return "Uint8"
	case Uint16:
		return "Uint16"
	case Uint32:
		return "Uint32"
	case Uint64:
		return "Uint64"
	case Float16:
		return "Float16"
	case BFloat16:
		return "BFloat16"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	default:
		return "InvalidDType(" + strconv.Itoa(int(dtype)) + ")"
	}
}

// FromName returns the DType for the given name, which is case-insensitive
// and accepts the short aliases in MapOfNames ("f32", "bf16", ...).
func FromName(name string) (DType, error) {
	dtype, found := MapOfNames[name]
	if !found {
		dtype, found = MapOfNames[strings.ToLower(name)]
	}
	if !found {
		return InvalidDType, errors.Errorf("unknown dtype name %q", name)
	}
	return dtype, nil
}

// FromGenericsType returns the DType enum for the given Go type that this package knows about.
func FromGenericsType[T Supported]() DType {
	var t T
	return FromAny(t)
}

// FromGoType returns the DType for the given "reflect.Type", or InvalidDType
// if the type is not supported.
func FromGoType(t reflect.Type) DType {
	if t == float16Type {
		return Float16
	} else if t == bfloat16Type {
		return BFloat16
	}
	switch t.Kind() {
	case reflect.Int:
		switch strconv.IntSize {
		case 32:
			return Int32
		case 64:
			return Int64
		default:
			panicf("cannot use int of %d bits -- try using int32 or int64", strconv.IntSize)
		}
	case reflect.Int64:
		return Int64
	case reflect.Int32:
		return Int32
	case reflect.Int16:
		return Int16
	case reflect.Int8:
		return Int8

	case reflect.Uint64:
		return Uint64
	case reflect.Uint32:
		return Uint32
	case reflect.Uint16:
		return Uint16
	case reflect.Uint8:
		return Uint8

	case reflect.Bool:
		return Bool

	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	}
	return InvalidDType
}

// FromAny introspects the underlying type of any and returns the corresponding DType.
// Unsupported types return InvalidDType.
func FromAny(value any) DType {
	return FromGoType(reflect.TypeOf(value))
}

// Size returns the number of bytes for the given DType.
func (dtype DType) Size() int {
	return int(dtype.GoType().Size())
}

// Memory returns the number of bytes for the given DType, as an uintptr.
func (dtype DType) Memory() uintptr {
	return uintptr(dtype.Size())
}

// SizeForDimensions returns the size in bytes used to store the given
// dimensions of this dtype. It works also for scalar (one element) shapes,
// where the list of dimensions is empty.
func (dtype DType) SizeForDimensions(dimensions ...int) int {
	numElements := 1
	for _, dim := range dimensions {
		if dim < 0 {
			panicf("dim cannot be negative for SizeForDimensions, got %v", dimensions)
		}
		numElements *= dim
	}
	return numElements * dtype.Size()
}

// Pre-generated constant reflect.Type values for convenience.
var (
	float16Type  = reflect.TypeOf(float16.Float16(0))
	bfloat16Type = reflect.TypeOf(bfloat16.BFloat16(0))
)

// GoType returns the Go `reflect.Type` corresponding to the tensor DType.
// It panics for invalid DType values.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Int64:
		return reflect.TypeOf(int64(0))
	case Int32:
		return reflect.TypeOf(int32(0))
	case Int16:
		return reflect.TypeOf(int16(0))
	case Int8:
		return reflect.TypeOf(int8(0))

	case Uint64:
		return reflect.TypeOf(uint64(0))
	case Uint32:
		return reflect.TypeOf(uint32(0))
	case Uint16:
		return reflect.TypeOf(uint16(0))
	case Uint8:
		return reflect.TypeOf(uint8(0))

	case Bool:
		return reflect.TypeOf(true)

	case Float16:
		return float16Type
	case BFloat16:
		return bfloat16Type
	case Float32:
		return reflect.TypeOf(float32(0))
	case Float64:
		return reflect.TypeOf(float64(0))
	}
	panicf("unknown dtype %q (%d) in DType.GoType", dtype, dtype)
	panic(nil)
}

// IsFloat returns whether dtype is a supported float type.
func (dtype DType) IsFloat() bool {
	return dtype == Float32 || dtype == Float64 || dtype.IsFloat16()
}

// IsFloat16 returns whether dtype is one of the 16-bit float types.
func (dtype DType) IsFloat16() bool {
	return dtype == Float16 || dtype == BFloat16
}

// IsInt returns whether dtype is a supported integer type (signed or unsigned).
func (dtype DType) IsInt() bool {
	switch dtype {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsUnsigned returns whether dtype is a supported unsigned integer type.
func (dtype DType) IsUnsigned() bool {
	switch dtype {
	case Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsSupported returns whether dtype is supported by this runtime.
func (dtype DType) IsSupported() bool {
	return dtype != InvalidDType && dtype <= Float64
}

// Supported lists the Go types corresponding to the supported DTypes.
type Supported interface {
	bool | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 |
		float16.Float16 | bfloat16.BFloat16 | float32 | float64
}

// Number represents the Go numeric types associated with a DType, excluding
// the 16-bit floats that have no native Go arithmetic.
type Number interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}
