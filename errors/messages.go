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

package errors

// error messages, grouped by the parse failure category a caller is
// expected to distinguish
const (
	// truncated input: a cursor read would run past the bound it was given
	Truncated       = "truncated input: %v"
	TruncatedField  = "truncated %s"
	TruncatedRecord = "truncated record at section offset %#x: %v"

	// malformed encoding: the bytes are present but don't mean what the
	// format requires them to mean
	MalformedEncoding            = "malformed encoding: %v"
	UnsupportedCIEVersion        = "unsupported CIE version %d"
	UnsupportedPointerEncoding   = "unsupported DWARF pointer encoding %#02x"
	UnknownCFIOpcode             = "unknown CFI opcode %#02x"
	UnsupportedTypeTableEncoding = "unsupported type-table encoding nibble %#x"
	BadCIEBackReference          = "frame description entry at %#x refers to a common information entry that was never parsed (computed offset %#x)"

	// out-of-range LSDA: the LSDA pointer a frame description entry carries
	// doesn't land inside the gcc_except_table blob supplied for this parse
	OutOfRangeLSDA = "lsda address %#x falls outside .gcc_except_table (size %#x)"

	// invariant violation: a condition the format guarantees did not hold
	InvariantViolation = "invariant violation: %v"
	ActionChainCycle   = "action chain at offset %#x does not terminate"

	// parser entry point
	ParseError = "eh_frame parse error: %v"
)
