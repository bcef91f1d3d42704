package ehframe

import (
	"testing"

	"github.com/aeflores/libehp/test"
)

func TestParseProgramAdvanceAndOffset(t *testing.T) {
	// DW_CFA_advance_loc(4), DW_CFA_offset(reg=6, uleb=2), DW_CFA_nop
	data := []byte{0x44, 0x86, 0x02, 0x00}
	c := newCursor(data, 0)
	prog, err := parseProgram(c, len(data), 8)
	test.ExpectSuccess(t, err == nil)
	test.Equate(t, len(prog), 3)

	test.Equate(t, prog[0].Mnemonic, "advance_loc")
	test.ExpectSuccess(t, prog[0].IsNop() == false)

	addr, advanced, err := prog[0].Advance(0x1000, 4)
	test.ExpectSuccess(t, err == nil)
	test.ExpectSuccess(t, advanced)
	test.Equate(t, int(addr), 0x1000+4*4)

	test.Equate(t, prog[1].Mnemonic, "offset")
	test.Equate(t, int(prog[1].Operand1), 6)
	test.Equate(t, int(prog[1].Operand2), 2)
	_, advanced, err = prog[1].Advance(0x1000, 4)
	test.ExpectSuccess(t, err == nil)
	test.ExpectFailure(t, advanced)

	test.ExpectSuccess(t, prog[2].IsNop())
}

func TestParseInstructionDefCFAOffset(t *testing.T) {
	// DW_CFA_def_cfa_offset(16)
	data := []byte{0x0e, 0x10}
	c := newCursor(data, 0)
	insn, err := parseInstruction(c, 8)
	test.ExpectSuccess(t, err == nil)
	test.ExpectSuccess(t, insn.IsDefCFAOffset())
	test.Equate(t, int(insn.Operand1), 16)
}

func TestParseInstructionDefCFAExpression(t *testing.T) {
	// DW_CFA_def_cfa_expression(len=2, bytes={0x9c, 0x06})
	data := []byte{0x0f, 0x02, 0x9c, 0x06}
	c := newCursor(data, 0)
	insn, err := parseInstruction(c, 8)
	test.ExpectSuccess(t, err == nil)
	test.Equate(t, len(insn.ExpressionBytes), 2)
	test.Equate(t, int(insn.Size), 4)
}

func TestParseInstructionUnknownOpcodeFails(t *testing.T) {
	// DW_CFA_GNU_window_save, an out-of-scope GNU extension.
	data := []byte{0x2d}
	c := newCursor(data, 0)
	_, err := parseInstruction(c, 8)
	test.ExpectFailure(t, err == nil)
}

func TestParseInstructionSetLocPointerWidth(t *testing.T) {
	data := []byte{0x01, 0x10, 0x20, 0x30, 0x40}
	c := newCursor(data, 0)
	insn, err := parseInstruction(c, 4)
	test.ExpectSuccess(t, err == nil)
	test.Equate(t, int(insn.Operand1), 0x40302010)
	test.Equate(t, int(insn.Size), 5)

	_, advanced, err := insn.Advance(0, 1)
	test.ExpectSuccess(t, advanced == false)
	test.ExpectFailure(t, err == nil)
}
