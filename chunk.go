package ember

import "golang.org/x/exp/slices"

// OpCode enumerates the full bytecode instruction set the interpreter
// dispatches on. Each short-form opcode that needs a wider operand has a
// paired long-form opcode whose low bits match (see longToShort in
// vm.go), applied to a flat byte stream rather than a typed instruction
// list, since the compiler that would produce a typed IR is external to
// this core, which only ever consumes an already-assembled Chunk.
type OpCode byte

const (
	// Stack
	OpPop OpCode = iota
	OpSwapPop
	OpDup
	OpDupLong
	OpSwap
	OpSwapLong
	OpPopMany
	OpPopManyLong
	OpCloseMany
	OpCloseManyLong

	// Literals
	OpNone
	OpTrue
	OpFalse
	OpUnset
	OpConstant
	OpConstantLong

	// Binary / unary operators
	OpAdd
	OpSub
	OpMul
	OpTrueDiv
	OpFloorDiv
	OpMod
	OpPow
	OpLShift
	OpRShift
	OpBitAnd
	OpBitOr
	OpBitXor
	OpMatMul
	OpEqual
	OpIs
	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual
	OpNegate
	OpPos
	OpBitNegate
	OpNot

	// In-place operators
	OpInplaceAdd
	OpInplaceSub
	OpInplaceMul
	OpInplaceTrueDiv
	OpInplaceFloorDiv
	OpInplaceMod
	OpInplacePow
	OpInplaceLShift
	OpInplaceRShift
	OpInplaceBitAnd
	OpInplaceBitOr
	OpInplaceBitXor
	OpInplaceMatMul

	// Subscript / protocol invocations
	OpInvokeGetter
	OpInvokeSetter
	OpInvokeDelete
	OpInvokeContains
	OpInvokeIter

	// Names / variables
	OpGetLocal
	OpGetLocalLong
	OpSetLocal
	OpSetLocalLong
	OpSetLocalPop
	OpSetLocalPopLong
	OpGetGlobal
	OpGetGlobalLong
	OpSetGlobal
	OpSetGlobalLong
	OpDelGlobal
	OpDelGlobalLong
	OpDefineGlobal
	OpDefineGlobalLong
	OpGetUpvalue
	OpGetUpvalueLong
	OpSetUpvalue
	OpSetUpvalueLong

	// Attributes
	OpGetProperty
	OpGetPropertyLong
	OpSetProperty
	OpSetPropertyLong
	OpDelProperty
	OpDelPropertyLong
	OpGetMethod
	OpGetMethodLong
	OpGetSuper
	OpGetSuperLong
	OpGetName
	OpGetNameLong
	OpSetName
	OpSetNameLong

	// Calls
	OpCall
	OpCallLong
	OpCallMethod
	OpCallMethodLong
	OpCallIter
	OpLoopIter

	// Jumps
	OpJump
	OpLoop
	OpJumpIfFalseOrPop
	OpPopJumpIfFalse
	OpJumpIfTrueOrPop
	OpTestArg
	OpOverlongJump

	// Closures
	OpClosure
	OpClosureLong

	// Collections
	OpTuple
	OpTupleLong
	OpMakeList
	OpMakeListLong
	OpMakeDict
	OpMakeDictLong
	OpMakeSet
	OpMakeSetLong
	OpSlice
	OpListAppend
	OpListAppendTop
	OpDictSet
	OpDictSetTop
	OpSetAdd
	OpSetAddTop
	OpListExtendTop
	OpDictUpdateTop
	OpSetUpdateTop

	// Unpack
	OpUnpack
	OpUnpackLong
	OpUnpackEx
	OpUnpackExLong
	OpTupleFromList

	// Exceptions
	OpPushTry
	OpPushWith
	OpRaise
	OpRaiseFrom
	OpFilterExcept
	OpFilterExceptLong
	OpBeginFinally
	OpEndFinally
	OpTryElse
	OpEnterExcept
	OpCleanupWith
	OpExitLoop

	// Control
	OpReturn
	OpYield
	OpYieldFrom
	OpInvokeAwait

	// Strings
	OpFormatValue
	OpMakeString
	OpMakeStringLong

	// Miscellany
	OpPushBuildClass
	OpImport
	OpImportLong
	OpImportFrom
	OpImportFromLong
	OpAnnotate
	OpBreakpoint
	OpMissingKw
	OpKwargs
	OpExpandArgs
	OpReverse
	OpReverseLong

	OpHalt

	numOpCodes
)

// FormatFlag encodes the FORMAT_VALUE operand bits: which of str/repr/
// format conversion to apply, and whether this is the `{x=}` debug form
// that also prints the source text.
type FormatFlag uint8

const (
	FormatStr FormatFlag = 1 << iota
	FormatRepr
	FormatFormat
	FormatEq
)

// ExpandKind is the EXPAND_ARGS operand: which splat marker to push.
type ExpandKind uint8

const (
	ExpandSingle ExpandKind = iota
	ExpandList
	ExpandDict
)

// opOperandBytes gives, for every short-form opcode, the number of operand bytes
// that follow the opcode byte itself (0 means the opcode is a single
// byte). Long-form opcodes always take a 3-byte big-endian operand;
// jump-carrying opcodes take a 2-byte big-endian signed offset.
var opOperandBytes = map[OpCode]int{
	OpDup: 1, OpDupLong: 3,
	OpSwap: 1, OpSwapLong: 3,
	OpPopMany: 1, OpPopManyLong: 3,
	OpCloseMany: 1, OpCloseManyLong: 3,
	OpConstant: 1, OpConstantLong: 3,
	OpClosure: 1, OpClosureLong: 3,
	OpGetLocal: 1, OpGetLocalLong: 3,
	OpSetLocal: 1, OpSetLocalLong: 3,
	OpSetLocalPop: 1, OpSetLocalPopLong: 3,
	OpGetGlobal: 1, OpGetGlobalLong: 3,
	OpSetGlobal: 1, OpSetGlobalLong: 3,
	OpDelGlobal: 1, OpDelGlobalLong: 3,
	OpDefineGlobal: 1, OpDefineGlobalLong: 3,
	OpGetUpvalue: 1, OpGetUpvalueLong: 3,
	OpSetUpvalue: 1, OpSetUpvalueLong: 3,
	OpGetProperty: 1, OpGetPropertyLong: 3,
	OpSetProperty: 1, OpSetPropertyLong: 3,
	OpDelProperty: 1, OpDelPropertyLong: 3,
	OpGetMethod: 1, OpGetMethodLong: 3,
	OpGetSuper: 1, OpGetSuperLong: 3,
	OpGetName: 1, OpGetNameLong: 3,
	OpSetName: 1, OpSetNameLong: 3,
	OpCall: 1, OpCallLong: 3,
	OpCallMethod: 1, OpCallMethodLong: 3,
	OpJump: 2, OpLoop: 2,
	OpJumpIfFalseOrPop: 2, OpPopJumpIfFalse: 2, OpJumpIfTrueOrPop: 2,
	OpTestArg: 2,
	OpTuple:   1, OpTupleLong: 3,
	OpMakeList: 1, OpMakeListLong: 3,
	OpMakeDict: 1, OpMakeDictLong: 3,
	OpMakeSet: 1, OpMakeSetLong: 3,
	OpSlice: 1,
	OpListAppend: 1, OpListAppendTop: 1,
	OpDictSet: 1, OpDictSetTop: 1,
	OpSetAdd: 1, OpSetAddTop: 1,
	OpPushTry: 2, OpPushWith: 2,
	OpUnpack: 1, OpUnpackLong: 3,
	OpUnpackEx: 2, OpUnpackExLong: 3,
	OpFilterExcept: 1, OpFilterExceptLong: 3,
	OpFormatValue: 1,
	OpMakeString:  1, OpMakeStringLong: 3,
	OpImport: 1, OpImportLong: 3,
	OpImportFrom: 1, OpImportFromLong: 3,
	OpKwargs:      1,
	OpExpandArgs:  1,
	OpReverse:     1, OpReverseLong: 3,
}

func (op OpCode) operandBytes() int { return opOperandBytes[op] }

// lineEntry maps a byte offset in Chunk.Code to a source line, stored
// sorted by Offset and searched with a binary search.
type lineEntry struct {
	Offset int
	Line   int
}

// overlongJump records where a compiled jump's 16-bit offset would have
// overflowed; the dispatcher re-reads the real 24-bit target and original
// opcode from here when it hits the OpOverlongJump placeholder at Offset.
type overlongJump struct {
	Offset         int
	Target         int
	OriginalOpcode OpCode
}

// Chunk is the immutable byte-coded body of a CodeObject: the opcode
// stream, its constant pool, and the sidecar tables the interpreter and
// disassembler consult. Constructing one directly (ChunkBuilder, below) is
// only ever done by tests in this repo; in a full system it is the
// compiler's output.
type Chunk struct {
	Code      []byte
	Constants []Value
	Lines     []lineEntry
	Overlong  map[int]overlongJump
}

// LineFor returns the source line responsible for the instruction at the
// given byte offset, binary-searching the (offset-sorted) line map built up
// by markLine.
func (c *Chunk) LineFor(offset int) int {
	i, found := slices.BinarySearchFunc(c.Lines, offset, func(e lineEntry, target int) int {
		return e.Offset - target
	})
	if found {
		return c.Lines[i].Line
	}
	if i == 0 {
		return 0
	}
	return c.Lines[i-1].Line
}

// ChunkBuilder assembles a Chunk by hand. It exists so this repository's
// own tests can construct code objects without a compiler front end, the same way the
// teacher's Encode(*Program) turns a typed instruction list into bytes —
// except here we write bytes directly, since there is no separate typed
// IR to lower from (see DESIGN.md).
type ChunkBuilder struct {
	chunk        Chunk
	currentLine  int
	stringsMap   map[string]int
}

func NewChunkBuilder() *ChunkBuilder {
	return &ChunkBuilder{
		chunk: Chunk{Overlong: map[int]overlongJump{}},
	}
}

func (b *ChunkBuilder) SetLine(line int) *ChunkBuilder {
	b.currentLine = line
	return b
}

func (b *ChunkBuilder) offset() int { return len(b.chunk.Code) }

func (b *ChunkBuilder) markLine() {
	n := len(b.chunk.Lines)
	if n > 0 && b.chunk.Lines[n-1].Line == b.currentLine {
		return
	}
	b.chunk.Lines = append(b.chunk.Lines, lineEntry{Offset: b.offset(), Line: b.currentLine})
}

// Emit appends a bare opcode with no operand.
func (b *ChunkBuilder) Emit(op OpCode) int {
	b.markLine()
	pos := b.offset()
	b.chunk.Code = append(b.chunk.Code, byte(op))
	return pos
}

// Emit1 appends an opcode with a 1-byte operand.
func (b *ChunkBuilder) Emit1(op OpCode, operand byte) int {
	pos := b.Emit(op)
	b.chunk.Code = append(b.chunk.Code, operand)
	return pos
}

// Emit3 appends an opcode with a 3-byte big-endian operand (the paired
// long form).
func (b *ChunkBuilder) Emit3(op OpCode, operand int) int {
	pos := b.Emit(op)
	b.chunk.Code = append(b.chunk.Code, byte(operand>>16), byte(operand>>8), byte(operand))
	return pos
}

// EmitJump appends a jump opcode with a placeholder 2-byte offset and
// returns the offset of the first operand byte, for later patching via
// PatchJump.
func (b *ChunkBuilder) EmitJump(op OpCode) int {
	b.Emit(op)
	pos := b.offset()
	b.chunk.Code = append(b.chunk.Code, 0, 0)
	return pos
}

// PatchJump backfills the 2-byte operand written at pos (as returned by
// EmitJump) with the signed offset from the end of the jump instruction to
// the current write cursor. If that offset doesn't fit 16 bits, it instead
// threads the jump through the overlong-jump fixup table via the
// OpOverlongJump placeholder.
func (b *ChunkBuilder) PatchJump(pos int) {
	target := b.offset()
	b.patchJumpTo(pos, target)
}

func (b *ChunkBuilder) patchJumpTo(pos, target int) {
	rel := target - (pos + 2)
	if rel >= -0x8000 && rel <= 0x7FFF {
		b.chunk.Code[pos] = byte(uint16(rel) >> 8)
		b.chunk.Code[pos+1] = byte(uint16(rel))
		return
	}
	original := OpCode(b.chunk.Code[pos-1])
	b.chunk.Code[pos-1] = byte(OpOverlongJump)
	b.chunk.Overlong[pos-1] = overlongJump{Offset: pos - 1, Target: target, OriginalOpcode: original}
}

// EmitLoop appends OpLoop with the backward offset to target already
// resolved (loops always jump to an already-known earlier offset).
func (b *ChunkBuilder) EmitLoop(target int) {
	b.Emit(OpLoop)
	offset := b.offset() + 2 - target
	if offset < 0 || offset > 0x7FFF {
		panic("loop body too large for a 16-bit backward jump")
	}
	b.chunk.Code = append(b.chunk.Code, byte(offset>>8), byte(offset))
}

// AddConstant interns value in the constant pool and returns its index,
// reusing an existing slot when value is already present (ChunkBuilder
// only dedupes for identical Values per valuesSame, matching how a real
// compiler would avoid emitting the same literal twice).
func (b *ChunkBuilder) AddConstant(v Value) int {
	for i, c := range b.chunk.Constants {
		if valuesSame(c, v) {
			return i
		}
	}
	b.chunk.Constants = append(b.chunk.Constants, v)
	return len(b.chunk.Constants) - 1
}

func (b *ChunkBuilder) EmitConstant(v Value) int {
	idx := b.AddConstant(v)
	if idx <= 0xFF {
		return b.Emit1(OpConstant, byte(idx))
	}
	return b.Emit3(OpConstantLong, idx)
}

func (b *ChunkBuilder) Chunk() Chunk { return b.chunk }
