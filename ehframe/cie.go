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
	"strings"

	"github.com/aeflores/libehp/errors"
	"github.com/aeflores/libehp/logger"
)

// CIE is a parsed Common Information Entry: the shared unwinding
// parameters a group of Frame Description Entries inherit.
type CIE struct {
	Position uint64
	Length   uint64
	Version  uint8

	Augmentation           string
	CodeAlignmentFactor    uint64
	DataAlignmentFactor    int64
	ReturnAddressRegister  uint64
	AugmentationDataLength uint64

	HasPersonality      bool
	PersonalityEncoding byte
	Personality         uint64
	PersonalityIndirect bool
	PersonalityField    FieldRef

	HasLSDAEncoding bool
	LSDAEncoding    byte

	HasFDEEncoding bool
	FDEEncoding    byte

	Program Program
}

func (c *CIE) String() string {
	return fmt.Sprintf("CIE@%#x len=%d version=%d aug=%q caf=%d daf=%d rar=%d",
		c.Position, c.Length, c.Version, c.Augmentation,
		c.CodeAlignmentFactor, c.DataAlignmentFactor, c.ReturnAddressRegister)
}

// parseCIE decodes a CIE whose length field has already been consumed by
// the section driver (see parser.go); pos starts right after the four-byte
// CIE id field and runs to end, the position just past the record's last
// byte.
func parseCIE(data []byte, base uint64, pointerSize int, log *logger.Logger, recordStart, pos, end int) (*CIE, error) {
	c := newCursorAt(data, base, pos)

	version, err := c.u8()
	if err != nil {
		return nil, err
	}
	if version != 1 && version != 3 {
		return nil, errors.Errorf(errors.UnsupportedCIEVersion, version)
	}

	augmentation, err := c.cstring()
	if err != nil {
		return nil, err
	}

	caf, err := c.uleb128()
	if err != nil {
		return nil, err
	}
	daf, err := c.sleb128()
	if err != nil {
		return nil, err
	}

	var rar uint64
	if version == 1 {
		v, err := c.u8()
		if err != nil {
			return nil, err
		}
		rar = uint64(v)
	} else {
		v, err := c.uleb128()
		if err != nil {
			return nil, err
		}
		rar = v
	}

	cie := &CIE{
		Position:              uint64(recordStart),
		Length:                uint64(end - recordStart),
		Version:               version,
		Augmentation:          augmentation,
		CodeAlignmentFactor:   caf,
		DataAlignmentFactor:   daf,
		ReturnAddressRegister: rar,
	}

	hasZ := strings.Contains(augmentation, "z")
	if hasZ {
		augLen, err := c.uleb128()
		if err != nil {
			return nil, err
		}
		cie.AugmentationDataLength = augLen
	}

	if strings.Contains(augmentation, "P") {
		enc, err := c.u8()
		if err != nil {
			return nil, err
		}
		// The indirect bit is meaningful for the resolved personality
		// routine address, not for how it's decoded here: we record
		// what's in the CIE without following the indirection.
		fieldStart := c.position()
		value, _, err := readEncoded(c, enc&^byte(peIndirect), pointerSize, base)
		if err != nil {
			return nil, err
		}
		cie.HasPersonality = true
		cie.PersonalityEncoding = enc
		cie.Personality = value
		cie.PersonalityIndirect = enc&peIndirect != 0
		cie.PersonalityField = FieldRef{Offset: uint64(fieldStart), Size: c.position() - fieldStart}
	}

	if strings.Contains(augmentation, "L") {
		enc, err := c.u8()
		if err != nil {
			return nil, err
		}
		cie.HasLSDAEncoding = true
		cie.LSDAEncoding = enc
	}

	if strings.Contains(augmentation, "R") {
		enc, err := c.u8()
		if err != nil {
			return nil, err
		}
		cie.HasFDEEncoding = true
		cie.FDEEncoding = enc
	}

	for _, r := range augmentation {
		switch r {
		case 'z', 'P', 'L', 'R', 'S':
			// handled above, or (for 'S', the signal-frame marker) carries
			// no augmentation bytes at all.
		default:
			log.Logf(logger.Allow, "ehframe", "CIE at %#x: unrecognised augmentation letter %q acknowledged and skipped", recordStart, r)
		}
	}

	prog, err := parseProgram(c, end, pointerSize)
	if err != nil {
		return nil, err
	}
	cie.Program = prog

	return cie, nil
}
