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
	"encoding/binary"

	"github.com/aeflores/libehp/coprocessor/developer/dwarf/leb128"
	"github.com/aeflores/libehp/errors"
)

// FieldRef records where a decoded value came from: the byte offset (within
// the owning section's buffer) and size of the field a rewriter would need
// to patch to change the value in place.
type FieldRef struct {
	Offset uint64
	Size   int
}

// cursor is a bounds-checked reader over one section's bytes. Every read
// method fails with an errors.Truncated-category error rather than
// panicking or returning a zero value silently when it would have to read
// past the end of data.
//
// pos is always relative to the start of data; addr(pos) gives the virtual
// address a given position corresponds to, using base as the load address
// of data[0].
type cursor struct {
	data []byte
	pos  int
	base uint64
}

func newCursor(data []byte, base uint64) *cursor {
	return &cursor{data: data, base: base}
}

func newCursorAt(data []byte, base uint64, pos int) *cursor {
	return &cursor{data: data, base: base, pos: pos}
}

func (c *cursor) position() int  { return c.pos }
func (c *cursor) atEnd() bool    { return c.pos >= len(c.data) }
func (c *cursor) seekTo(pos int) { c.pos = pos }

func (c *cursor) require(n int) error {
	if c.pos < 0 || n < 0 || c.pos+n > len(c.data) {
		return errors.Errorf(errors.Truncated, errors.Errorf(errors.TruncatedField, "read past end of section"))
	}
	return nil
}

func (c *cursor) u8() (uint8, error) {
	if err := c.require(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) u64() (uint64, error) {
	if err := c.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.require(n); err != nil {
		return nil, err
	}
	v := c.data[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// cstring reads a NUL-terminated string, consuming the terminator.
func (c *cursor) cstring() (string, error) {
	start := c.pos
	for {
		b, err := c.u8()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(c.data[start : c.pos-1]), nil
		}
	}
}

// maxLEBBytes caps how many continuation bytes a LEB128 value may use
// before it's considered malformed rather than merely long. 10 bytes covers
// a full 64-bit (even 70-bit, with slop) value; anything longer than that is
// not a value this package's uint64/int64 fields can hold.
const maxLEBBytes = 10

// uleb128 reads an unsigned LEB128 value. Bounds are enforced byte by byte
// through u8; the shift/accumulate decode itself is leb128.DecodeULEB128,
// run over the already-bounded byte span.
func (c *cursor) uleb128() (uint64, error) {
	start := c.pos
	for {
		b, err := c.u8()
		if err != nil {
			return 0, err
		}
		if b&0x80 == 0 {
			break
		}
		if c.pos-start >= maxLEBBytes {
			return 0, errors.Errorf(errors.MalformedEncoding, errors.Errorf("uleb128 exceeds %d bytes", maxLEBBytes))
		}
	}
	v, _ := leb128.DecodeULEB128(c.data[start:c.pos])
	return v, nil
}

// sleb128 reads a signed LEB128 value, analogous to uleb128.
func (c *cursor) sleb128() (int64, error) {
	start := c.pos
	for {
		b, err := c.u8()
		if err != nil {
			return 0, err
		}
		if b&0x80 == 0 {
			break
		}
		if c.pos-start >= maxLEBBytes {
			return 0, errors.Errorf(errors.MalformedEncoding, errors.Errorf("sleb128 exceeds %d bytes", maxLEBBytes))
		}
	}
	v, _ := leb128.DecodeSLEB128(c.data[start:c.pos])
	return v, nil
}

// length reads a DWARF initial-length field: a uint32, promoted to a
// uint64 extended-length form when that uint32 is 0xffffffff. The caller
// gets back the raw uint32 it read (so a driver-level terminator check can
// look at it) along with the resolved length and whether an extended form
// was present and fully readable.
//
// A 0xffffffff marker with no readable extended length behind it is not
// reported as a truncation: some toolchains emit exactly that as a section
// terminator, and the section driver is the one positioned to tell that
// apart from a genuinely truncated record (see parser.go).
func (c *cursor) length() (raw uint32, length uint64, extended bool, err error) {
	raw, err = c.u32()
	if err != nil {
		return 0, 0, false, err
	}
	if raw != 0xffffffff {
		return raw, uint64(raw), false, nil
	}
	ext, err := c.u64()
	if err != nil {
		return raw, 0, false, nil
	}
	return raw, ext, true, nil
}
