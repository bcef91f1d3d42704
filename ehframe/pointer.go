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

import "github.com/aeflores/libehp/errors"

// DWARF exception-header pointer encodings (DW_EH_PE_*). The low nibble
// selects how the value itself is represented; the high nibble selects what
// it's relative to.
const (
	peAbsptr  = 0x00
	peULEB128 = 0x01
	peUData2  = 0x02
	peUData4  = 0x03
	peUData8  = 0x04
	peSigned  = 0x08
	peSLEB128 = 0x09
	peSData2  = 0x0a
	peSData4  = 0x0b
	peSData8  = 0x0c

	peFormatMask = 0x0f
)

const (
	peBaseAbsptr  = 0x00
	pePCRel       = 0x10
	peTextRel     = 0x20
	peDataRel     = 0x30
	peFuncRel     = 0x40
	peAligned     = 0x50
	peBaseMask    = 0x70
	peIndirect    = 0x80
	peOmit        = 0xff
)

// pointerEncodingSize returns the number of bytes the value portion of
// encoding occupies, given the section's pointer width (4 or 8). uleb128
// and sleb128 don't have a fixed size, so pointerEncodingSize reports an
// error for them rather than guessing. The LSDA type table does not use
// this function; it sizes its entries with typeTableEntrySize (lsda.go).
func pointerEncodingSize(encoding byte, pointerSize int) (int, error) {
	switch encoding & peFormatMask {
	case peUData2, peSData2:
		return 2, nil
	case peUData4, peSData4:
		return 4, nil
	case peUData8, peSData8:
		return 8, nil
	case peAbsptr:
		return pointerSize, nil
	default:
		return 0, errors.Errorf(errors.UnsupportedPointerEncoding, encoding)
	}
}

// readEncoded decodes one DWARF-encoded pointer-sized value starting at c's
// current position. sectionBase is the load address of c's byte 0 (the
// section the encoded bytes live in); for the pcrel base modifier the
// resulting value is sectionBase plus the position the read started at,
// per the convention fixed in this package (see lsda.go for the one place
// that convention is deliberately different: type-table pcrel entries add
// that base only when the raw value is nonzero).
//
// Only the absptr and pcrel base modifiers are supported; textrel, datarel,
// funcrel and aligned bases require relocation/section information this
// package never has, so they're a hard UnsupportedPointerEncoding failure
// rather than a silent wrong answer. The indirect bit is recorded but never
// dereferenced.
func readEncoded(c *cursor, encoding byte, pointerSize int, sectionBase uint64) (value uint64, indirect bool, err error) {
	if encoding == peOmit {
		return 0, false, errors.Errorf(errors.MalformedEncoding, errors.Errorf("readEncoded called with an omitted encoding"))
	}

	start := c.position()
	indirect = encoding&peIndirect != 0

	switch encoding & peFormatMask {
	case peULEB128:
		v, err := c.uleb128()
		if err != nil {
			return 0, false, err
		}
		value = v
	case peSLEB128:
		v, err := c.sleb128()
		if err != nil {
			return 0, false, err
		}
		value = uint64(v)
	case peUData2:
		v, err := c.u16()
		if err != nil {
			return 0, false, err
		}
		value = uint64(v)
	case peUData4:
		v, err := c.u32()
		if err != nil {
			return 0, false, err
		}
		value = uint64(v)
	case peUData8:
		v, err := c.u64()
		if err != nil {
			return 0, false, err
		}
		value = v
	case peSData2:
		v, err := c.u16()
		if err != nil {
			return 0, false, err
		}
		value = uint64(int64(int16(v)))
	case peSData4:
		v, err := c.u32()
		if err != nil {
			return 0, false, err
		}
		value = uint64(int64(int32(v)))
	case peSData8:
		v, err := c.u64()
		if err != nil {
			return 0, false, err
		}
		value = v
	case peAbsptr:
		switch pointerSize {
		case 8:
			v, err := c.u64()
			if err != nil {
				return 0, false, err
			}
			value = v
		case 4:
			v, err := c.u32()
			if err != nil {
				return 0, false, err
			}
			value = uint64(v)
		default:
			return 0, false, errors.Errorf(errors.InvariantViolation, errors.Errorf("pointer size %d is neither 4 nor 8", pointerSize))
		}
	default:
		return 0, false, errors.Errorf(errors.UnsupportedPointerEncoding, encoding)
	}

	switch encoding & peBaseMask {
	case peBaseAbsptr:
		// value is already absolute.
	case pePCRel:
		value += sectionBase + uint64(start)
	default:
		return 0, false, errors.Errorf(errors.UnsupportedPointerEncoding, encoding)
	}

	return value, indirect, nil
}
