package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	t.Run("set and get round-trips", func(t *testing.T) {
		tbl := NewTable()
		isNew := tbl.Set(IntValue(1), IntValue(100))
		assert.True(t, isNew)

		v, ok := tbl.Get(IntValue(1))
		require.True(t, ok)
		assert.Equal(t, int64(100), v.AsInt())
	})

	t.Run("setting an existing key is not new and overwrites", func(t *testing.T) {
		tbl := NewTable()
		tbl.Set(IntValue(7), IntValue(1))
		isNew := tbl.Set(IntValue(7), IntValue(2))
		assert.False(t, isNew)

		v, ok := tbl.Get(IntValue(7))
		require.True(t, ok)
		assert.Equal(t, int64(2), v.AsInt())
	})

	t.Run("delete leaves a tombstone that doesn't break later probes", func(t *testing.T) {
		tbl := NewTable()
		for i := int64(0); i < 20; i++ {
			tbl.Set(IntValue(i), IntValue(i*10))
		}
		require.True(t, tbl.Delete(IntValue(5)))
		assert.False(t, tbl.Has(IntValue(5)))

		for i := int64(0); i < 20; i++ {
			if i == 5 {
				continue
			}
			v, ok := tbl.Get(IntValue(i))
			require.True(t, ok, "key %d missing after unrelated delete", i)
			assert.Equal(t, i*10, v.AsInt())
		}
	})

	t.Run("grows past the load factor without losing entries", func(t *testing.T) {
		tbl := NewTable()
		const n = 500
		for i := int64(0); i < n; i++ {
			tbl.Set(IntValue(i), IntValue(i))
		}
		assert.Equal(t, n, tbl.Count())
		for i := int64(0); i < n; i++ {
			v, ok := tbl.Get(IntValue(i))
			require.True(t, ok)
			assert.Equal(t, i, v.AsInt())
		}
	})

	t.Run("string keys are compared by interned identity", func(t *testing.T) {
		vm := newTestVM()
		tbl := NewTable()
		tbl.Set(ObjectValue(vm.intern("name")), IntValue(1))
		v, ok := tbl.Get(ObjectValue(vm.intern("name")))
		require.True(t, ok)
		assert.Equal(t, int64(1), v.AsInt())
	})

	t.Run("Each visits every occupied slot exactly once", func(t *testing.T) {
		tbl := NewTable()
		want := map[int64]int64{1: 10, 2: 20, 3: 30}
		for k, v := range want {
			tbl.Set(IntValue(k), IntValue(v))
		}
		got := map[int64]int64{}
		tbl.Each(func(k, v Value) { got[k.AsInt()] = v.AsInt() })
		assert.Equal(t, want, got)
	})
}
