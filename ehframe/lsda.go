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

// Action is one entry of an LSDA action chain: a type filter (negative
// values mark a dynamic exception specification rather than a type-table
// index) and the offset, relative to the byte after this entry's filter,
// of the next entry in the chain (0 terminates it).
type Action struct {
	TypeFilter int64
	NextOffset int64
}

// TypeTableEntry is one entry of an LSDA's (sparse, negatively indexed)
// type table: the encoded pointer to a type-info object, and the encoding
// and byte size it was read with.
type TypeTableEntry struct {
	Pointer  uint64
	Encoding byte
	Size     int
}

// CallSite is one entry of an LSDA's call-site table: a PC range, the
// landing pad to run if an exception unwinds through it (0 if none), and
// the chain of actions to try there.
type CallSite struct {
	StartPC         uint64
	StartPCField    FieldRef
	EndPC           uint64
	EndPCField      FieldRef
	LandingPadAddr  uint64
	LandingPadField FieldRef
	Action          uint64
	Actions         []Action
}

// LSDA is a parsed Language-Specific Data Area from .gcc_except_table.
type LSDA struct {
	Address uint64

	LandingPadBaseEncoding byte
	LandingPadBaseAddr     uint64

	HasTypeTable       bool
	TypeTableEncoding  byte
	typeTableAnchorPos int // section-relative

	CallSiteEncoding byte
	CallSites        []CallSite

	// TypeTable is indexed by filter-1 (the format's filters are 1-based
	// and count backwards from the anchor); entries for filters that are
	// never referenced by any action are left at their zero value.
	TypeTable []TypeTableEntry
}

func (l *LSDA) String() string {
	return fmt.Sprintf("LSDA@%#x callSites=%d typeTable=%d", l.Address, len(l.CallSites), len(l.TypeTable))
}

// parseLSDA decodes the LSDA at lsdaAddr (a virtual address) out of
// gccExceptTable, whose byte 0 loads at dataAddr. fdeStartPC is the owning
// FDE's start address, used as the landing pad base when the LSDA omits
// its own (@LPStart defaults to the function's start).
func parseLSDA(lsdaAddr uint64, gccExceptTable []byte, dataAddr uint64, pointerSize int, fdeStartPC uint64) (*LSDA, error) {
	if lsdaAddr < dataAddr || lsdaAddr >= dataAddr+uint64(len(gccExceptTable)) {
		return nil, errors.Errorf(errors.OutOfRangeLSDA, lsdaAddr, uint64(len(gccExceptTable)))
	}

	startPos := int(lsdaAddr - dataAddr)
	c := newCursorAt(gccExceptTable, dataAddr, startPos)

	l := &LSDA{Address: lsdaAddr}

	lpBaseEncoding, err := c.u8()
	if err != nil {
		return nil, err
	}
	l.LandingPadBaseEncoding = lpBaseEncoding
	if lpBaseEncoding != peOmit {
		v, _, err := readEncoded(c, lpBaseEncoding, pointerSize, dataAddr)
		if err != nil {
			return nil, err
		}
		l.LandingPadBaseAddr = v
	} else {
		l.LandingPadBaseAddr = fdeStartPC
	}

	ttEncoding, err := c.u8()
	if err != nil {
		return nil, err
	}
	l.TypeTableEncoding = ttEncoding

	var typeTablePos int
	if ttEncoding != peOmit {
		l.HasTypeTable = true
		ttOffset, err := c.uleb128()
		if err != nil {
			return nil, err
		}
		typeTablePos = c.position() + int(ttOffset)
		l.typeTableAnchorPos = typeTablePos
	}

	csEncoding, err := c.u8()
	if err != nil {
		return nil, err
	}
	l.CallSiteEncoding = csEncoding

	csLength, err := c.uleb128()
	if err != nil {
		return nil, err
	}
	csStart := c.position()
	csEnd := csStart + int(csLength)
	actionTableStart := csEnd

	for c.position() < csEnd {
		cs, err := parseCallSite(c, csEncoding, pointerSize, l.LandingPadBaseAddr, dataAddr, actionTableStart, gccExceptTable)
		if err != nil {
			return nil, err
		}
		l.CallSites = append(l.CallSites, cs)
	}

	if l.HasTypeTable {
		if err := l.materializeTypeTable(gccExceptTable, dataAddr, pointerSize); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// parseCallSite decodes one call-site-table row. Fields are read with the
// table's own encoding unmasked (its base modifier, if any, applies
// relative to the gcc_except_table section itself, per the format), then
// added to landingPadBase to get absolute addresses.
func parseCallSite(c *cursor, csEncoding byte, pointerSize int, landingPadBase, dataAddr uint64, actionTableStart int, gccExceptTable []byte) (CallSite, error) {
	var cs CallSite

	startField := c.position()
	startOff, _, err := readEncoded(c, csEncoding, pointerSize, dataAddr)
	if err != nil {
		return CallSite{}, err
	}
	cs.StartPC = landingPadBase + startOff
	cs.StartPCField = FieldRef{Offset: uint64(startField), Size: c.position() - startField}

	endField := c.position()
	length, _, err := readEncoded(c, csEncoding, pointerSize, dataAddr)
	if err != nil {
		return CallSite{}, err
	}
	cs.EndPC = cs.StartPC + length
	cs.EndPCField = FieldRef{Offset: uint64(endField), Size: c.position() - endField}

	lpField := c.position()
	lpOffset, _, err := readEncoded(c, csEncoding, pointerSize, dataAddr)
	if err != nil {
		return CallSite{}, err
	}
	if lpOffset != 0 {
		cs.LandingPadAddr = landingPadBase + lpOffset
	}
	cs.LandingPadField = FieldRef{Offset: uint64(lpField), Size: c.position() - lpField}

	action, err := c.uleb128()
	if err != nil {
		return CallSite{}, err
	}
	cs.Action = action

	if action > 0 {
		actions, err := readActionChain(gccExceptTable, dataAddr, actionTableStart+int(action)-1)
		if err != nil {
			return CallSite{}, err
		}
		cs.Actions = actions
	}

	return cs, nil
}

// readActionChain walks an LSDA action chain starting at the given
// section-relative position until an entry with NextOffset 0 terminates
// it. A cycle (a chain that revisits a position) is an invariant
// violation: real compiler output always terminates.
func readActionChain(gccExceptTable []byte, dataAddr uint64, pos int) ([]Action, error) {
	var actions []Action
	seen := make(map[int]bool)

	for {
		if seen[pos] {
			return nil, errors.Errorf(errors.ActionChainCycle, uint64(pos))
		}
		seen[pos] = true

		c := newCursorAt(gccExceptTable, dataAddr, pos)
		filter, err := c.sleb128()
		if err != nil {
			return nil, err
		}
		afterFilter := c.position()
		next, err := c.sleb128()
		if err != nil {
			return nil, err
		}

		actions = append(actions, Action{TypeFilter: filter, NextOffset: next})
		if next == 0 {
			break
		}
		pos = afterFilter + int(next)
	}

	return actions, nil
}

// materializeTypeTable resolves every type-table entry any call site's
// action chain actually references. The table is sparse and negatively
// indexed (filter N lives N entries before the anchor position); only the
// highest filter referenced determines how large the dense TypeTable slice
// needs to be.
func (l *LSDA) materializeTypeTable(gccExceptTable []byte, dataAddr uint64, pointerSize int) error {
	size, err := typeTableEntrySize(l.TypeTableEncoding, pointerSize)
	if err != nil {
		return err
	}

	entries := make(map[int64]TypeTableEntry)
	var maxFilter int64

	for _, cs := range l.CallSites {
		for _, a := range cs.Actions {
			if a.TypeFilter <= 0 {
				// 0 means "no type filter"; negative means a dynamic
				// exception specification, which isn't a type-table index.
				continue
			}
			if a.TypeFilter > maxFilter {
				maxFilter = a.TypeFilter
			}
			if _, ok := entries[a.TypeFilter]; ok {
				continue
			}
			entryPos := l.typeTableAnchorPos - int(a.TypeFilter)*size
			entry, err := readTypeTableEntry(gccExceptTable, dataAddr, entryPos, l.TypeTableEncoding, size)
			if err != nil {
				return err
			}
			entries[a.TypeFilter] = entry
		}
	}

	if maxFilter == 0 {
		return nil
	}

	l.TypeTable = make([]TypeTableEntry, maxFilter)
	for filter, entry := range entries {
		l.TypeTable[filter-1] = entry
	}
	return nil
}

func typeTableEntrySize(encoding byte, pointerSize int) (int, error) {
	switch encoding & peFormatMask {
	case peUData4, peSData4:
		return 4, nil
	case peUData8, peSData8:
		return 8, nil
	case peAbsptr:
		return pointerSize, nil
	default:
		return 0, errors.Errorf(errors.UnsupportedTypeTableEncoding, encoding&peFormatMask)
	}
}

// readTypeTableEntry reads the value at entryPos using encoding's value
// format only (its indirect and pcrel bits are handled here explicitly,
// not via readEncoded, because this table's pcrel convention differs from
// the rest of the format: the base added is the entry's own resolved
// position, not the position where its bytes begin).
func readTypeTableEntry(gccExceptTable []byte, dataAddr uint64, entryPos int, encoding byte, size int) (TypeTableEntry, error) {
	c := newCursorAt(gccExceptTable, dataAddr, entryPos)

	plain := encoding &^ byte(peIndirect) &^ byte(pePCRel)
	value, _, err := readEncoded(c, plain, size, dataAddr)
	if err != nil {
		return TypeTableEntry{}, err
	}

	if encoding&pePCRel != 0 && value != 0 {
		value += uint64(entryPos) + dataAddr
	}

	return TypeTableEntry{Pointer: value, Encoding: encoding, Size: size}, nil
}
