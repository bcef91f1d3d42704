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

// Package elfsource is the thin adapter between an on-disk ELF file and
// ehframe.Parser: it finds .eh_frame, .eh_frame_hdr and .gcc_except_table
// by name, reads their bytes and load addresses, and derives the pointer
// width from the ELF class. It does no CFI/LSDA decoding of its own; all
// of that lives in the ehframe package, which never imports debug/elf.
package elfsource

import (
	"debug/elf"
	"fmt"

	"github.com/aeflores/libehp/ehframe"
)

const (
	sectionEHFrame        = ".eh_frame"
	sectionEHFrameHdr     = ".eh_frame_hdr"
	sectionGCCExceptTable = ".gcc_except_table"
)

// Open reads path as an ELF file and builds an ehframe.Parser configured
// with its exception-handling sections. A missing .eh_frame_hdr or
// .gcc_except_table is not an error: the parser is handed an empty,
// zero-addressed SectionData for whichever is absent, which is exactly how
// ehframe.Parser already treats "no LSDA support" and "no header present".
func Open(path string) (*ehframe.Parser, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfsource: open %s: %w", path, err)
	}
	defer f.Close()

	return FromFile(f)
}

// FromFile builds an ehframe.Parser from an already-open ELF file, for
// callers that obtained it some other way (e.g. an in-memory image via
// elf.NewFile).
func FromFile(f *elf.File) (*ehframe.Parser, error) {
	pointerSize, err := pointerSize(f)
	if err != nil {
		return nil, err
	}

	ehFrame, err := section(f, sectionEHFrame)
	if err != nil {
		return nil, err
	}
	if ehFrame.Bytes == nil {
		return nil, fmt.Errorf("elfsource: no %s section", sectionEHFrame)
	}

	ehFrameHdr, err := section(f, sectionEHFrameHdr)
	if err != nil {
		return nil, err
	}
	gccExceptTable, err := section(f, sectionGCCExceptTable)
	if err != nil {
		return nil, err
	}

	return ehframe.NewParser(pointerSize, ehFrame, ehFrameHdr, gccExceptTable), nil
}

// section returns the named section's bytes and load address, or a
// zero-valued SectionData if the section doesn't exist in f.
func section(f *elf.File, name string) (ehframe.SectionData, error) {
	sec := f.Section(name)
	if sec == nil {
		return ehframe.SectionData{}, nil
	}
	data, err := sec.Data()
	if err != nil {
		return ehframe.SectionData{}, fmt.Errorf("elfsource: read %s: %w", name, err)
	}
	return ehframe.SectionData{Bytes: data, Address: sec.Addr}, nil
}

// pointerSize derives the target's address width from the ELF class. This
// library only supports 32- and 64-bit targets, matching ehframe.Parser's
// own pointerSize == 4 || pointerSize == 8 precondition.
func pointerSize(f *elf.File) (int, error) {
	switch f.Class {
	case elf.ELFCLASS32:
		return 4, nil
	case elf.ELFCLASS64:
		return 8, nil
	default:
		return 0, fmt.Errorf("elfsource: unsupported ELF class %v", f.Class)
	}
}
