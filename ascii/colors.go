// Package ascii provides terminal ANSI color codes under semantic names,
// grouped into a Theme for the bytecode disassembler's colorized output.
package ascii

import "fmt"

const (
	Reset = "\033[0m"
	Red   = "\033[1;31m"
	Green = "\033[1;32m"

	// 256-color palette
	Gray245 = "\033[1;38;5;245m" // Medium gray
	Purple  = "\033[1;38;5;99m"
	Pink    = "\033[1;38;5;127m"
)

// Theme defines the color mapping a disassembly listing uses for each
// element of a printed instruction: the section label, the offset/constant
// comment, the mnemonic, its raw operand, and a decoded constant literal.
// Unlike a full AST/diagnostic printer's theme, there is no separate
// error/warning/info/hint tier here — Disassemble only ever renders
// instructions, it never reports a diagnostic.
type Theme struct {
	Label    string
	Comment  string
	Operator string
	Operand  string
	Literal  string
}

// DefaultTheme provides a sensible default color mapping.
var DefaultTheme = Theme{
	Label:    Red,
	Comment:  Gray245,
	Operator: Purple,
	Operand:  Pink,
	Literal:  Green,
}

func Color(color, format string, args ...any) string {
	return fmt.Sprintf(color+format+Reset, args...)
}
