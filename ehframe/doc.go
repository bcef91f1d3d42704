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

// Package ehframe decodes the DWARF call-frame-information and
// language-specific-data records gcc/clang emit for exception unwinding:
// the Common Information Entries and Frame Description Entries of an
// .eh_frame section, and the call-site/action/type tables of the
// .gcc_except_table LSDAs they reference.
//
// The package never touches an ELF file itself. A caller supplies the raw
// bytes and load addresses of the three sections (see Parser and
// SectionData); finding those bytes in an actual binary is the job of the
// sibling elfsource package. Parsing happens once, single-threaded, against
// a Parser value; the resulting CIEs, FDEs and LSDAs are plain, read-only
// data and safe to share across goroutines once Parse returns.
package ehframe
