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

import "fmt"

// FDE is a parsed Frame Description Entry: the unwind program for one
// contiguous range of code, plus the LSDA that range's exception handling
// (if any) is described by.
type FDE struct {
	Position    uint64
	Length      uint64
	CIEPosition uint64
	CIE         *CIE

	StartPC      uint64
	StartPCField FieldRef
	RangeLength  uint64
	EndPC        uint64
	EndPCField   FieldRef

	LSDAAddr  uint64
	LSDAField FieldRef
	LSDA      *LSDA

	Program Program
}

func (f *FDE) String() string {
	return fmt.Sprintf("FDE@%#x len=%d cie=%#x range=[%#x,%#x) lsda=%#x",
		f.Position, f.Length, f.CIEPosition, f.StartPC, f.EndPC, f.LSDAAddr)
}

// parseFDE decodes an FDE whose length field and CIE back-reference have
// already been consumed by the section driver; pos starts right after that
// back-reference field and runs to end.
func parseFDE(data []byte, ehFrameBase uint64, pointerSize int, cie *CIE, ciePos uint64, recordStart, pos, end int, gccExceptTable []byte, gccExceptTableBase uint64) (*FDE, error) {
	c := newCursorAt(data, ehFrameBase, pos)

	fde := &FDE{
		Position:    uint64(recordStart),
		Length:      uint64(end - recordStart),
		CIEPosition: ciePos,
		CIE:         cie,
	}

	startField := c.position()
	startPC, _, err := readEncoded(c, cie.FDEEncoding, pointerSize, ehFrameBase)
	if err != nil {
		return nil, err
	}
	fde.StartPC = startPC
	fde.StartPCField = FieldRef{Offset: uint64(startField), Size: c.position() - startField}

	endField := c.position()
	// The range length is always an absolute count of bytes, regardless of
	// the base modifier the CIE's FDE encoding otherwise carries.
	rangeLen, _, err := readEncoded(c, cie.FDEEncoding&peFormatMask, pointerSize, ehFrameBase)
	if err != nil {
		return nil, err
	}
	fde.RangeLength = rangeLen
	fde.EndPC = startPC + rangeLen
	fde.EndPCField = FieldRef{Offset: uint64(endField), Size: c.position() - endField}

	if containsZ(cie.Augmentation) {
		if _, err := c.uleb128(); err != nil {
			return nil, err
		}
	}

	if cie.HasLSDAEncoding && cie.LSDAEncoding != peOmit {
		lsdaField := c.position()
		lsdaAddr, _, err := readEncoded(c, cie.LSDAEncoding, pointerSize, ehFrameBase)
		if err != nil {
			return nil, err
		}
		fde.LSDAAddr = lsdaAddr
		fde.LSDAField = FieldRef{Offset: uint64(lsdaField), Size: c.position() - lsdaField}

		if lsdaAddr != 0 && len(gccExceptTable) > 0 {
			lsda, err := parseLSDA(lsdaAddr, gccExceptTable, gccExceptTableBase, pointerSize, startPC)
			if err != nil {
				return nil, err
			}
			fde.LSDA = lsda
		}
	}

	prog, err := parseProgram(c, end, pointerSize)
	if err != nil {
		return nil, err
	}
	fde.Program = prog

	return fde, nil
}

func containsZ(augmentation string) bool {
	for _, r := range augmentation {
		if r == 'z' {
			return true
		}
	}
	return false
}
