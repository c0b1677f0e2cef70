package ember

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDecodeInstructionReadsCollectionBuilderOperands locks in the fix for
// OpListAppend/OpListAppendTop/OpDictSet/OpSetAdd: each carries a 1-byte
// stack-depth operand locating the collection being extended during a
// literal or comprehension, and decodeInstruction previously returned 0 for
// all of them because they were absent from opOperandBytes.
func TestDecodeInstructionReadsCollectionBuilderOperands(t *testing.T) {
	vm := newTestVM()
	cases := []struct {
		name string
		op   OpCode
		want int
	}{
		{"list_append", OpListAppend, 3},
		{"list_append_top", OpListAppendTop, 3},
		{"dict_set", OpDictSet, 3},
		{"set_add", OpSetAdd, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := NewChunkBuilder()
			b.Emit1(c.op, byte(c.want))
			chunk := b.Chunk()
			gotOp, gotOperand, size := vm.decodeInstruction(&chunk, 0, OpCode(chunk.Code[0]))
			assert.Equal(t, c.op, gotOp)
			assert.Equal(t, c.want, gotOperand)
			assert.Equal(t, 2, size)
		})
	}
}

// TestDecodeInstructionReadsHandlerTargetOperands locks in the fix for
// OpPushTry/OpPushWith: each carries a 2-byte handler jump target that
// decodeInstruction previously dropped to 0 for the same reason.
func TestDecodeInstructionReadsHandlerTargetOperands(t *testing.T) {
	vm := newTestVM()
	for _, op := range []OpCode{OpPushTry, OpPushWith} {
		b := NewChunkBuilder()
		b.Emit(op)
		b.chunk.Code = append(b.chunk.Code, 0x01, 0x2C) // 0x012C == 300
		chunk := b.Chunk()
		gotOp, gotOperand, size := vm.decodeInstruction(&chunk, 0, OpCode(chunk.Code[0]))
		assert.Equal(t, op, gotOp)
		assert.Equal(t, 300, gotOperand)
		assert.Equal(t, 3, size)
	}
}
