package dtypes

import (
	"reflect"
	"testing"

	"github.com/infergraph/infergraph/pkg/core/dtypes/bfloat16"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestSizes(t *testing.T) {
	require.Equal(t, 1, Bool.Size())
	require.Equal(t, 1, Int8.Size())
	require.Equal(t, 2, Int16.Size())
	require.Equal(t, 4, Int32.Size())
	require.Equal(t, 8, Int64.Size())
	require.Equal(t, 2, Float16.Size())
	require.Equal(t, 2, BFloat16.Size())
	require.Equal(t, 4, Float32.Size())
	require.Equal(t, 8, Float64.Size())

	require.Equal(t, 4*2*3*4, Float32.SizeForDimensions(2, 3, 4))
	require.Equal(t, 8, Float64.SizeForDimensions()) // Scalar.
	require.Panics(t, func() { Float32.SizeForDimensions(2, -1) })
}

func TestGoTypeRoundTrip(t *testing.T) {
	for _, dtype := range []DType{
		Bool, Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64,
		Float16, BFloat16, Float32, Float64,
	} {
		require.True(t, dtype.IsSupported())
		require.Equal(t, dtype, FromGoType(dtype.GoType()), "dtype %s", dtype)
	}
	require.Equal(t, InvalidDType, FromGoType(reflect.TypeOf("string")))
	require.Panics(t, func() { InvalidDType.GoType() })
}

func TestFromGenericsType(t *testing.T) {
	require.Equal(t, Float32, FromGenericsType[float32]())
	require.Equal(t, Float16, FromGenericsType[float16.Float16]())
	require.Equal(t, BFloat16, FromGenericsType[bfloat16.BFloat16]())
	require.Equal(t, Uint8, FromGenericsType[uint8]())
	require.Equal(t, Float64, FromAny(3.0))
}

func TestNames(t *testing.T) {
	require.Equal(t, "Float32", Float32.String())
	require.Equal(t, Float16, MapOfNames["Float16"])
	require.Equal(t, Float16, MapOfNames["float16"])
	require.Equal(t, Float16, MapOfNames["f16"])
	require.Equal(t, BFloat16, MapOfNames["bf16"])

	require.Equal(t, Float32, must.M1(FromName("F32")))
	require.Equal(t, Int64, must.M1(FromName("int64")))
	_, err := FromName("float128")
	require.Error(t, err)
}

func TestPredicates(t *testing.T) {
	require.True(t, Float32.IsFloat())
	require.True(t, BFloat16.IsFloat16())
	require.False(t, Int32.IsFloat())
	require.True(t, Uint16.IsUnsigned())
	require.True(t, Int16.IsInt())
	require.False(t, Bool.IsInt())
	require.False(t, InvalidDType.IsSupported())
}
