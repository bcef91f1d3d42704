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
	"sort"

	"github.com/aeflores/libehp/errors"
	"github.com/aeflores/libehp/logger"
)

// SectionData is the raw bytes of one ELF section together with the
// virtual address its first byte loads at.
type SectionData struct {
	Bytes   []byte
	Address uint64
}

// Option configures a Parser at construction time.
type Option func(*Parser)

// WithLogger routes a Parser's non-fatal diagnostics to log instead of the
// package default logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Parser) { p.log = log }
}

// Parser decodes the .eh_frame, .eh_frame_hdr and .gcc_except_table
// sections of one ELF image into CIEs, FDEs and LSDAs. It has no exported
// fields; construct one with NewParser, call Parse once, then use CIEs,
// FDEs and FindFDE to query the result. A Parser (and everything it
// returns) is immutable after Parse succeeds and safe to share across
// goroutines; Parse itself is not safe to call concurrently with queries.
type Parser struct {
	pointerSize int

	ehFrame        SectionData
	ehFrameHdr     SectionData
	gccExceptTable SectionData

	log *logger.Logger

	cies     []*CIE
	cieByPos map[uint64]*CIE
	fdes     []*FDE
}

// NewParser constructs a Parser over the given sections. ehFrameHdr is
// accepted but not used to accelerate FindFDE (see FindFDE); it's present
// so callers that have it don't need to special-case this library.
// pointerSize must be 4 or 8.
func NewParser(pointerSize int, ehFrame, ehFrameHdr, gccExceptTable SectionData, opts ...Option) *Parser {
	p := &Parser{
		pointerSize:    pointerSize,
		ehFrame:        ehFrame,
		ehFrameHdr:     ehFrameHdr,
		gccExceptTable: gccExceptTable,
		log:            logger.Default(),
		cieByPos:       make(map[uint64]*CIE),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes the .eh_frame section supplied at construction time into
// CIEs and FDEs, descending into .gcc_except_table for any LSDA an FDE
// references. It is the only method that mutates a Parser; call it exactly
// once before using CIEs, FDEs or FindFDE.
func (p *Parser) Parse() error {
	if p.pointerSize != 4 && p.pointerSize != 8 {
		return errors.Errorf(errors.ParseError, errors.Errorf(errors.InvariantViolation, errors.Errorf("pointer size %d is neither 4 nor 8", p.pointerSize)))
	}

	if err := p.parseRecords(); err != nil {
		return errors.Errorf(errors.ParseError, err)
	}

	sort.Slice(p.fdes, func(i, j int) bool { return p.fdes[i].StartPC < p.fdes[j].StartPC })

	return nil
}

// parseRecords is the section-set driver (component G): it walks
// .eh_frame classifying each record as a CIE or an FDE from its
// back-reference field, and dispatches the matching parser.
func (p *Parser) parseRecords() error {
	data := p.ehFrame.Bytes
	base := p.ehFrame.Address
	c := newCursor(data, base)

	for !c.atEnd() {
		recordStart := c.position()

		raw, length, extended, err := c.length()
		if err != nil {
			return err
		}
		if raw == 0 {
			// a zero-length record is the section's terminator.
			return nil
		}
		if raw == 0xffffffff && !extended {
			// a trailing 0xffffffff with no extended length to follow is
			// the same terminator convention some toolchains emit instead
			// of a plain zero.
			return nil
		}

		end := c.position() + int(length)
		if end > len(data) {
			return errors.Errorf(errors.Truncated, errors.Errorf("record at section offset %#x claims length %d past end of section", recordStart, length))
		}

		idFieldPos := c.position()
		cieRef, err := c.u32()
		if err != nil {
			return err
		}

		if cieRef == 0 {
			cie, err := parseCIE(data, base, p.pointerSize, p.log, recordStart, c.position(), end)
			if err != nil {
				return err
			}
			p.cies = append(p.cies, cie)
			p.cieByPos[cie.Position] = cie
		} else {
			ciePos := uint64(idFieldPos) - uint64(cieRef)
			cie, ok := p.cieByPos[ciePos]
			if !ok {
				return errors.Errorf(errors.BadCIEBackReference, uint64(recordStart), ciePos)
			}
			fde, err := parseFDE(data, base, p.pointerSize, cie, ciePos, recordStart, c.position(), end, p.gccExceptTable.Bytes, p.gccExceptTable.Address)
			if err != nil {
				return err
			}
			p.fdes = append(p.fdes, fde)
		}

		if c.position() > end {
			return errors.Errorf(errors.InvariantViolation, errors.Errorf("record at section offset %#x overran its declared length", recordStart))
		}
		c.seekTo(end)
	}

	return nil
}

// CIEs returns every Common Information Entry found in .eh_frame, in the
// order they appear there.
func (p *Parser) CIEs() []*CIE {
	out := make([]*CIE, len(p.cies))
	copy(out, p.cies)
	return out
}

// FDEs returns every Frame Description Entry found in .eh_frame, sorted by
// start address.
func (p *Parser) FDEs() []*FDE {
	out := make([]*FDE, len(p.fdes))
	copy(out, p.fdes)
	return out
}

// FindFDE returns the FDE whose [StartPC, EndPC) range contains addr, if
// any. FDEs don't overlap in well-formed input, so a plain sorted-range
// search is sufficient; .eh_frame_hdr's binary-search table isn't needed
// and this package never builds or consults one.
func (p *Parser) FindFDE(addr uint64) (*FDE, bool) {
	i := sort.Search(len(p.fdes), func(i int) bool { return p.fdes[i].StartPC > addr })
	if i == 0 {
		return nil, false
	}
	fde := p.fdes[i-1]
	if addr >= fde.StartPC && addr < fde.EndPC {
		return fde, true
	}
	return nil, false
}
