package ember

import (
	"fmt"
	"strings"

	"github.com/emberlang/ember/ascii"
)

// opNames gives a mnemonic string for every OpCode, used by the
// disassembler to render raw Chunk bytes (see chunk.go) without a typed
// instruction list.
var opNames = map[OpCode]string{
	OpPop: "pop", OpSwapPop: "swap_pop", OpDup: "dup", OpDupLong: "dup_long",
	OpSwap: "swap", OpSwapLong: "swap_long", OpPopMany: "pop_many", OpPopManyLong: "pop_many_long",
	OpCloseMany: "close_many", OpCloseManyLong: "close_many_long",
	OpNone: "none", OpTrue: "true", OpFalse: "false", OpUnset: "unset",
	OpConstant: "constant", OpConstantLong: "constant_long",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpTrueDiv: "truediv", OpFloorDiv: "floordiv",
	OpMod: "mod", OpPow: "pow", OpLShift: "lshift", OpRShift: "rshift",
	OpBitAnd: "bitand", OpBitOr: "bitor", OpBitXor: "bitxor", OpMatMul: "matmul",
	OpEqual: "equal", OpIs: "is", OpLess: "less", OpGreater: "greater",
	OpLessEqual: "less_equal", OpGreaterEqual: "greater_equal",
	OpNegate: "negate", OpPos: "pos", OpBitNegate: "bitnegate", OpNot: "not",
	OpInplaceAdd: "inplace_add", OpInplaceSub: "inplace_sub", OpInplaceMul: "inplace_mul",
	OpInplaceTrueDiv: "inplace_truediv", OpInplaceFloorDiv: "inplace_floordiv",
	OpInplaceMod: "inplace_mod", OpInplacePow: "inplace_pow",
	OpInplaceLShift: "inplace_lshift", OpInplaceRShift: "inplace_rshift",
	OpInplaceBitAnd: "inplace_bitand", OpInplaceBitOr: "inplace_bitor",
	OpInplaceBitXor: "inplace_bitxor", OpInplaceMatMul: "inplace_matmul",
	OpInvokeGetter: "invoke_getter", OpInvokeSetter: "invoke_setter",
	OpInvokeDelete: "invoke_delete", OpInvokeContains: "invoke_contains", OpInvokeIter: "invoke_iter",
	OpGetLocal: "get_local", OpGetLocalLong: "get_local_long",
	OpSetLocal: "set_local", OpSetLocalLong: "set_local_long",
	OpSetLocalPop: "set_local_pop", OpSetLocalPopLong: "set_local_pop_long",
	OpGetGlobal: "get_global", OpGetGlobalLong: "get_global_long",
	OpSetGlobal: "set_global", OpSetGlobalLong: "set_global_long",
	OpDelGlobal: "del_global", OpDelGlobalLong: "del_global_long",
	OpDefineGlobal: "define_global", OpDefineGlobalLong: "define_global_long",
	OpGetUpvalue: "get_upvalue", OpGetUpvalueLong: "get_upvalue_long",
	OpSetUpvalue: "set_upvalue", OpSetUpvalueLong: "set_upvalue_long",
	OpGetProperty: "get_property", OpGetPropertyLong: "get_property_long",
	OpSetProperty: "set_property", OpSetPropertyLong: "set_property_long",
	OpDelProperty: "del_property", OpDelPropertyLong: "del_property_long",
	OpGetMethod: "get_method", OpGetMethodLong: "get_method_long",
	OpGetSuper: "get_super", OpGetSuperLong: "get_super_long",
	OpGetName: "get_name", OpGetNameLong: "get_name_long",
	OpSetName: "set_name", OpSetNameLong: "set_name_long",
	OpCall: "call", OpCallLong: "call_long",
	OpCallMethod: "call_method", OpCallMethodLong: "call_method_long",
	OpCallIter: "call_iter", OpLoopIter: "loop_iter",
	OpJump: "jump", OpLoop: "loop",
	OpJumpIfFalseOrPop: "jump_if_false_or_pop", OpPopJumpIfFalse: "pop_jump_if_false",
	OpJumpIfTrueOrPop: "jump_if_true_or_pop", OpTestArg: "test_arg",
	OpOverlongJump: "overlong_jump",
	OpClosure:      "closure", OpClosureLong: "closure_long",
	OpTuple: "tuple", OpTupleLong: "tuple_long",
	OpMakeList: "make_list", OpMakeListLong: "make_list_long",
	OpMakeDict: "make_dict", OpMakeDictLong: "make_dict_long",
	OpMakeSet: "make_set", OpMakeSetLong: "make_set_long",
	OpSlice:          "slice",
	OpListAppend:     "list_append", OpListAppendTop: "list_append_top",
	OpDictSet:        "dict_set", OpDictSetTop: "dict_set_top",
	OpSetAdd:         "set_add", OpSetAddTop: "set_add_top",
	OpListExtendTop:  "list_extend_top", OpDictUpdateTop: "dict_update_top", OpSetUpdateTop: "set_update_top",
	OpUnpack: "unpack", OpUnpackLong: "unpack_long",
	OpUnpackEx: "unpack_ex", OpUnpackExLong: "unpack_ex_long",
	OpTupleFromList: "tuple_from_list",
	OpPushTry:       "push_try", OpPushWith: "push_with",
	OpRaise: "raise", OpRaiseFrom: "raise_from",
	OpFilterExcept: "filter_except", OpFilterExceptLong: "filter_except_long",
	OpBeginFinally: "begin_finally", OpEndFinally: "end_finally", OpTryElse: "try_else",
	OpEnterExcept: "enter_except", OpCleanupWith: "cleanup_with", OpExitLoop: "exit_loop",
	OpReturn: "return", OpYield: "yield", OpYieldFrom: "yield_from", OpInvokeAwait: "invoke_await",
	OpFormatValue: "format_value", OpMakeString: "make_string", OpMakeStringLong: "make_string_long",
	OpPushBuildClass: "push_build_class",
	OpImport:         "import", OpImportLong: "import_long",
	OpImportFrom: "import_from", OpImportFromLong: "import_from_long",
	OpAnnotate: "annotate", OpBreakpoint: "breakpoint", OpMissingKw: "missing_kw",
	OpKwargs: "kwargs", OpExpandArgs: "expand_args",
	OpReverse: "reverse", OpReverseLong: "reverse_long",
	OpHalt: "halt",
}

// Disassemble renders a Chunk as human-readable assembly text, with no
// color codes.
func Disassemble(name string, c *Chunk) string {
	return disassemble(name, c, func(s string, theme string) string { return s })
}

// DisassembleColor is Disassemble with ascii.DefaultTheme colorization
// applied to each field.
func DisassembleColor(name string, c *Chunk) string {
	return disassemble(name, c, func(s, theme string) string { return theme + s + ascii.Reset })
}

func disassemble(name string, c *Chunk, format func(s, theme string) string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", format("== "+name+" ==", ascii.DefaultTheme.Label))
	offset := 0
	for offset < len(c.Code) {
		offset = disassembleInstruction(&sb, c, offset, format)
	}
	return sb.String()
}

func disassembleInstruction(sb *strings.Builder, c *Chunk, offset int, format func(s, theme string) string) int {
	fmt.Fprintf(sb, format(fmt.Sprintf("%06d ", offset), ascii.DefaultTheme.Comment))
	fmt.Fprintf(sb, "%4d ", c.LineFor(offset))

	op := OpCode(c.Code[offset])
	name := opNames[op]
	fmt.Fprint(sb, format(fmt.Sprintf("%-22s", name), ascii.DefaultTheme.Operator))

	switch op {
	case OpOverlongJump:
		fix := c.Overlong[offset]
		fmt.Fprint(sb, format(fmt.Sprintf(" -> %06d (was %s)", fix.Target, opNames[fix.OriginalOpcode]), ascii.DefaultTheme.Operand))
		sb.WriteByte('\n')
		return offset + 1
	case OpJump, OpLoop, OpJumpIfFalseOrPop, OpPopJumpIfFalse, OpJumpIfTrueOrPop, OpTestArg:
		rel := int(int16(uint16(c.Code[offset+1])<<8 | uint16(c.Code[offset+2])))
		target := offset + 3 + rel
		if op == OpLoop {
			target = offset + 3 - rel
		}
		fmt.Fprint(sb, format(fmt.Sprintf(" -> %06d", target), ascii.DefaultTheme.Operand))
		sb.WriteByte('\n')
		return offset + 3
	}

	n := op.operandBytes()
	switch n {
	case 0:
		sb.WriteByte('\n')
		return offset + 1
	case 1:
		operand := int(c.Code[offset+1])
		writeOperand(sb, c, op, operand, format)
		return offset + 2
	case 2:
		operand := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		writeOperand(sb, c, op, operand, format)
		return offset + 3
	case 3:
		operand := int(c.Code[offset+1])<<16 | int(c.Code[offset+2])<<8 | int(c.Code[offset+3])
		writeOperand(sb, c, op, operand, format)
		return offset + 4
	case 4:
		operand := int(c.Code[offset+1])<<24 | int(c.Code[offset+2])<<16 | int(c.Code[offset+3])<<8 | int(c.Code[offset+4])
		writeOperand(sb, c, op, operand, format)
		return offset + 5
	default:
		sb.WriteByte('\n')
		return offset + 1
	}
}

func writeOperand(sb *strings.Builder, c *Chunk, op OpCode, operand int, format func(s, theme string) string) {
	switch op {
	case OpConstant, OpConstantLong:
		if operand < len(c.Constants) {
			fmt.Fprint(sb, format(fmt.Sprintf(" %d (%s)", operand, describeValue(c.Constants[operand])), ascii.DefaultTheme.Literal))
		} else {
			fmt.Fprint(sb, format(fmt.Sprintf(" %d", operand), ascii.DefaultTheme.Literal))
		}
	default:
		fmt.Fprint(sb, format(fmt.Sprintf(" %d", operand), ascii.DefaultTheme.Operand))
	}
	sb.WriteByte('\n')
}

func describeValue(v Value) string {
	switch {
	case v.IsNone():
		return "None"
	case v.IsInt():
		return fmt.Sprintf("%d", v.AsInt())
	case v.IsFloat():
		return fmt.Sprintf("%g", v.AsFloat())
	case v.IsBool():
		return fmt.Sprintf("%t", v.AsBool())
	case v.IsObject():
		if s, ok := v.obj.(*StringObj); ok {
			return fmt.Sprintf("%q", s.String())
		}
		return v.obj.objType().String()
	default:
		return "?"
	}
}
