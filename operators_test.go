package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryOpNumericFastPath(t *testing.T) {
	vm := newTestVM()

	t.Run("int floor division rounds toward negative infinity", func(t *testing.T) {
		v, err := vm.binaryOp(OpFloorDiv, IntValue(-7), IntValue(2))
		require.NoError(t, err)
		assert.Equal(t, int64(-4), v.AsInt())
	})

	t.Run("int modulo takes the sign of the divisor", func(t *testing.T) {
		v, err := vm.binaryOp(OpMod, IntValue(-7), IntValue(2))
		require.NoError(t, err)
		assert.Equal(t, int64(1), v.AsInt())

		v, err = vm.binaryOp(OpMod, IntValue(7), IntValue(-2))
		require.NoError(t, err)
		assert.Equal(t, int64(-1), v.AsInt())
	})

	t.Run("float modulo also follows the divisor's sign", func(t *testing.T) {
		v, err := vm.binaryOp(OpMod, FloatValue(-7.5), FloatValue(2))
		require.NoError(t, err)
		assert.InDelta(t, 0.5, v.AsFloat(), 1e-9)
	})

	t.Run("integer division by zero raises ZeroDivisionError", func(t *testing.T) {
		_, err := vm.binaryOp(OpTrueDiv, IntValue(1), IntValue(0))
		require.Error(t, err)
		re, ok := err.(*raisedError)
		require.True(t, ok)
		inst, ok := re.value.obj.(*Instance)
		require.True(t, ok)
		assert.Same(t, vm.exc.ZeroDivisionError, inst.Class)
	})

	t.Run("floor division by zero also raises", func(t *testing.T) {
		_, err := vm.binaryOp(OpFloorDiv, IntValue(1), IntValue(0))
		require.Error(t, err)
	})

	t.Run("modulo by zero also raises", func(t *testing.T) {
		_, err := vm.binaryOp(OpMod, IntValue(1), IntValue(0))
		require.Error(t, err)
	})

	t.Run("integer exponentiation with a non-negative exponent stays integral", func(t *testing.T) {
		v, err := vm.binaryOp(OpPow, IntValue(2), IntValue(10))
		require.NoError(t, err)
		assert.True(t, v.IsInt())
		assert.Equal(t, int64(1024), v.AsInt())
	})

	t.Run("bitwise operators on floats fall through to the dunder tower and raise TypeError", func(t *testing.T) {
		_, err := vm.binaryOp(OpBitAnd, FloatValue(1), FloatValue(2))
		require.Error(t, err)
		re, ok := err.(*raisedError)
		require.True(t, ok)
		inst, ok := re.value.obj.(*Instance)
		require.True(t, ok)
		assert.Same(t, vm.exc.TypeError, inst.Class)
	})

	t.Run("mixed int/float arithmetic promotes to float", func(t *testing.T) {
		v, err := vm.binaryOp(OpAdd, IntValue(1), FloatValue(0.5))
		require.NoError(t, err)
		assert.True(t, v.IsFloat())
		assert.Equal(t, 1.5, v.AsFloat())
	})
}
