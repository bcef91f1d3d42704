// This file is part of libehp.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ehframe

import (
	"fmt"

	"github.com/aeflores/libehp/errors"
)

// Call frame instruction opcodes (DW_CFA_*). Primary opcodes are encoded in
// the top two bits of the first byte with an operand packed into the
// bottom six; extended opcodes use the bottom six bits as a full opcode
// when the top two bits are both zero.
const (
	cfaAdvanceLoc = 0x40 // top 2 bits == 1, delta in low 6 bits
	cfaOffset     = 0x80 // top 2 bits == 2, register in low 6 bits
	cfaRestore    = 0xc0 // top 2 bits == 3, register in low 6 bits

	cfaNop                       = 0x00
	cfaSetLoc                    = 0x01
	cfaAdvanceLoc1               = 0x02
	cfaAdvanceLoc2               = 0x03
	cfaAdvanceLoc4               = 0x04
	cfaOffsetExtended            = 0x05
	cfaRestoreExtended           = 0x06
	cfaUndefined                 = 0x07
	cfaSameValue                 = 0x08
	cfaRegister                  = 0x09
	cfaRememberState             = 0x0a
	cfaRestoreState              = 0x0b
	cfaDefCFA                    = 0x0c
	cfaDefCFARegister            = 0x0d
	cfaDefCFAOffset              = 0x0e
	cfaDefCFAExpression          = 0x0f
	cfaExpression                = 0x10
	cfaOffsetExtendedSF          = 0x11
	cfaDefCFASF                  = 0x12
	cfaDefCFAOffsetSF            = 0x13
	cfaValOffset                 = 0x14
	cfaValOffsetSF               = 0x15
	cfaValExpression             = 0x16
	cfaMIPSAdvanceLoc8           = 0x1d
	cfaGNUWindowSave             = 0x2d
	cfaGNUArgsSize               = 0x2e
	cfaGNUNegativeOffsetExtended = 0x2f
)

// Instruction is one decoded call frame instruction: its mnemonic, the
// operands the format defines for it, and the exact byte span it occupied
// in the section (so a rewriter can reproduce or patch it).
type Instruction struct {
	Mnemonic string
	Operand1 int64
	Operand2 int64
	// ExpressionBytes holds the raw DWARF expression payload for the
	// instructions that carry one (def_cfa_expression, expression,
	// val_expression); nil otherwise.
	ExpressionBytes []byte

	Position uint64
	Size     uint64

	opcode        byte
	advanceDelta  uint64 // for advance_loc/1/2/4, already in "location units"
	isAdvanceKind bool
}

// IsNop reports whether this is a DW_CFA_nop.
func (i Instruction) IsNop() bool { return i.isExtended(cfaNop) }

// IsDefCFAOffset reports whether this is a DW_CFA_def_cfa_offset.
func (i Instruction) IsDefCFAOffset() bool { return i.isExtended(cfaDefCFAOffset) }

// IsRememberState reports whether this is a DW_CFA_remember_state.
func (i Instruction) IsRememberState() bool { return i.isExtended(cfaRememberState) }

// IsRestoreState reports whether this is a DW_CFA_restore_state.
func (i Instruction) IsRestoreState() bool { return i.isExtended(cfaRestoreState) }

func (i Instruction) isExtended(opcode byte) bool {
	return i.opcode>>6 == 0 && i.opcode&0x3f == opcode
}

// Advance applies this instruction's effect on the running program counter,
// as tracked by a frame table walk. It returns the updated address and
// whether this instruction moved it at all; instructions that only affect
// register rules (offset, restore, def_cfa, ...) leave addr unchanged and
// return false. DW_CFA_set_loc sets an absolute address rather than
// advancing one and is rejected here (see the parser's design notes) since
// gcc/clang never emit it in .eh_frame and a caller relying on Advance to
// track location has no current address to reconcile it against.
func (i Instruction) Advance(addr uint64, caf uint64) (uint64, bool, error) {
	switch {
	case i.opcode>>6 == 1:
		return addr + i.advanceDelta*caf, true, nil
	case i.opcode == cfaAdvanceLoc1, i.opcode == cfaAdvanceLoc2, i.opcode == cfaAdvanceLoc4:
		return addr + i.advanceDelta*caf, true, nil
	case i.opcode == cfaSetLoc:
		return addr, false, errors.Errorf(errors.InvariantViolation, errors.Errorf("DW_CFA_set_loc cannot be applied by Advance; read Operand1 directly"))
	default:
		return addr, false, nil
	}
}

func (i Instruction) String() string {
	switch {
	case i.ExpressionBytes != nil:
		return fmt.Sprintf("%s(%d, %d bytes)", i.Mnemonic, i.Operand1, len(i.ExpressionBytes))
	case i.Operand2 != 0 || i.Mnemonic == "offset_extended" || i.Mnemonic == "register" || i.Mnemonic == "def_cfa":
		return fmt.Sprintf("%s(%d, %d)", i.Mnemonic, i.Operand1, i.Operand2)
	case i.isAdvanceKind:
		return fmt.Sprintf("%s(%d)", i.Mnemonic, i.advanceDelta)
	case i.Operand1 != 0:
		return fmt.Sprintf("%s(%d)", i.Mnemonic, i.Operand1)
	default:
		return i.Mnemonic
	}
}

// Program is a parsed, ordered sequence of call frame instructions.
type Program []Instruction

func parseProgram(c *cursor, end int, pointerSize int) (Program, error) {
	var prog Program
	for c.position() < end {
		insn, err := parseInstruction(c, pointerSize)
		if err != nil {
			return nil, err
		}
		prog = append(prog, insn)
	}
	return prog, nil
}

// parseInstruction decodes exactly one call frame instruction starting at
// c's current position. pointerSize is needed for DW_CFA_set_loc, whose
// operand is target-address sized rather than LEB128-encoded.
func parseInstruction(c *cursor, pointerSize int) (Instruction, error) {
	start := c.position()
	opcode, err := c.u8()
	if err != nil {
		return Instruction{}, err
	}

	insn := Instruction{opcode: opcode, Position: uint64(start)}

	switch opcode >> 6 {
	case 1:
		insn.Mnemonic = "advance_loc"
		insn.advanceDelta = uint64(opcode & 0x3f)
		insn.isAdvanceKind = true
	case 2:
		insn.Mnemonic = "offset"
		reg := uint64(opcode & 0x3f)
		off, err := c.uleb128()
		if err != nil {
			return Instruction{}, err
		}
		insn.Operand1 = int64(reg)
		insn.Operand2 = int64(off)
	case 3:
		insn.Mnemonic = "restore"
		insn.Operand1 = int64(opcode & 0x3f)
	default:
		if err := parseExtendedInstruction(c, opcode, pointerSize, &insn); err != nil {
			return Instruction{}, err
		}
	}

	insn.Size = uint64(c.position() - start)
	return insn, nil
}

func parseExtendedInstruction(c *cursor, opcode byte, pointerSize int, insn *Instruction) error {
	switch opcode & 0x3f {
	case cfaNop:
		insn.Mnemonic = "nop"
	case cfaRememberState:
		insn.Mnemonic = "remember_state"
	case cfaRestoreState:
		insn.Mnemonic = "restore_state"

	case cfaUndefined, cfaSameValue, cfaRestoreExtended, cfaDefCFARegister, cfaDefCFAOffset, cfaGNUArgsSize:
		insn.Mnemonic = extendedMnemonic(opcode & 0x3f)
		v, err := c.uleb128()
		if err != nil {
			return err
		}
		insn.Operand1 = int64(v)

	case cfaSetLoc:
		insn.Mnemonic = "set_loc"
		switch pointerSize {
		case 8:
			v, err := c.u64()
			if err != nil {
				return err
			}
			insn.Operand1 = int64(v)
		case 4:
			v, err := c.u32()
			if err != nil {
				return err
			}
			insn.Operand1 = int64(v)
		default:
			return errors.Errorf(errors.InvariantViolation, errors.Errorf("pointer size %d is neither 4 nor 8", pointerSize))
		}

	case cfaAdvanceLoc1:
		insn.Mnemonic = "advance_loc1"
		v, err := c.u8()
		if err != nil {
			return err
		}
		insn.advanceDelta = uint64(v)
		insn.isAdvanceKind = true

	case cfaAdvanceLoc2:
		insn.Mnemonic = "advance_loc2"
		v, err := c.u16()
		if err != nil {
			return err
		}
		insn.advanceDelta = uint64(v)
		insn.isAdvanceKind = true

	case cfaAdvanceLoc4:
		insn.Mnemonic = "advance_loc4"
		v, err := c.u32()
		if err != nil {
			return err
		}
		insn.advanceDelta = uint64(v)
		insn.isAdvanceKind = true

	case cfaOffsetExtended, cfaRegister, cfaDefCFA:
		insn.Mnemonic = extendedMnemonic(opcode & 0x3f)
		reg, err := c.uleb128()
		if err != nil {
			return err
		}
		off, err := c.uleb128()
		if err != nil {
			return err
		}
		insn.Operand1 = int64(reg)
		insn.Operand2 = int64(off)

	case cfaDefCFASF:
		insn.Mnemonic = "def_cfa_sf"
		reg, err := c.uleb128()
		if err != nil {
			return err
		}
		off, err := c.sleb128()
		if err != nil {
			return err
		}
		insn.Operand1 = int64(reg)
		insn.Operand2 = off

	case cfaOffsetExtendedSF:
		insn.Mnemonic = "offset_extended_sf"
		reg, err := c.uleb128()
		if err != nil {
			return err
		}
		off, err := c.sleb128()
		if err != nil {
			return err
		}
		insn.Operand1 = int64(reg)
		insn.Operand2 = off

	case cfaDefCFAOffsetSF:
		insn.Mnemonic = "def_cfa_offset_sf"
		off, err := c.sleb128()
		if err != nil {
			return err
		}
		insn.Operand1 = off

	case cfaDefCFAExpression:
		insn.Mnemonic = "def_cfa_expression"
		n, err := c.uleb128()
		if err != nil {
			return err
		}
		b, err := c.bytes(int(n))
		if err != nil {
			return err
		}
		insn.ExpressionBytes = b

	case cfaExpression, cfaValExpression:
		insn.Mnemonic = extendedMnemonic(opcode & 0x3f)
		reg, err := c.uleb128()
		if err != nil {
			return err
		}
		n, err := c.uleb128()
		if err != nil {
			return err
		}
		b, err := c.bytes(int(n))
		if err != nil {
			return err
		}
		insn.Operand1 = int64(reg)
		insn.ExpressionBytes = b

	default:
		return errors.Errorf(errors.UnknownCFIOpcode, opcode)
	}
	return nil
}

func extendedMnemonic(opcode byte) string {
	switch opcode {
	case cfaUndefined:
		return "undefined"
	case cfaSameValue:
		return "same_value"
	case cfaRestoreExtended:
		return "restore_extended"
	case cfaDefCFARegister:
		return "def_cfa_register"
	case cfaDefCFAOffset:
		return "def_cfa_offset"
	case cfaGNUArgsSize:
		return "GNU_args_size"
	case cfaOffsetExtended:
		return "offset_extended"
	case cfaRegister:
		return "register"
	case cfaDefCFA:
		return "def_cfa"
	case cfaExpression:
		return "expression"
	case cfaValExpression:
		return "val_expression"
	default:
		return fmt.Sprintf("opcode_%#02x", opcode)
	}
}
