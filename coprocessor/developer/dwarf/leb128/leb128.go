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

package leb128

// ULEB128 decoding algorithm taken from page 218 of "DWARF4 Standard", figure 46
//
// returns decoded value and the number of bytes consumed from the encoded array
func DecodeULEB128(encoded []uint8) (uint64, int) {
	var result uint64
	var shift uint64

	var n int
	for _, v := range encoded {
		n++
		result |= uint64(v&0x7f) << shift
		if v&0x80 == 0x00 {
			break
		}
		shift += 7
	}

	return result, n
}

// LEB128 decoding algorithm taken from page 218 of "DWARF4 Standard", figure 47
//
// returns decoded value and the number of bytes consumed from the encoded array
func DecodeSLEB128(encoded []uint8) (int64, int) {
	const size = 64

	var result int64
	var shift uint64

	var v uint8
	var n int
	for _, v = range encoded {
		n++
		result |= int64((int64(v) & 0x7f) << shift)
		shift += 7
		if v&0x80 == 0x00 {
			break
		}
	}

	// sign extend last byte from the encoded slice
	if shift < size && v&0x40 > 0 {
		result |= -(1 << shift)
	}

	return int64(result), n
}
