package ehframe

import "encoding/binary"

// encodeULEB128 and encodeSLEB128 are small from-scratch LEB128 encoders
// used only to build test fixtures; the package itself only ever decodes.
func encodeULEB128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func encodeSLEB128(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func cstring(s string) []byte { return append([]byte(s), 0) }

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// withLength prepends a standard 32-bit DWARF length field computed from
// body's own size.
func withLength(body []byte) []byte {
	return append(u32le(uint32(len(body))), body...)
}

type cieSpec struct {
	version             uint8
	augmentation        string
	caf                 uint64
	daf                 int64
	rar                 uint8
	fdeEncoding         byte // only written if augmentation contains 'R'
	lsdaEncoding        byte // only written if augmentation contains 'L'
	personality         uint64
	personalityEncoding byte // only written if augmentation contains 'P'
	program             []byte
}

// buildCIE returns a complete CIE record (length-prefixed) starting at
// section offset 0.
func buildCIE(s cieSpec) []byte {
	var body []byte
	body = append(body, u32le(0)...) // CIE id
	body = append(body, s.version)
	body = append(body, cstring(s.augmentation)...)
	body = append(body, encodeULEB128(s.caf)...)
	body = append(body, encodeSLEB128(s.daf)...)
	if s.version == 1 {
		body = append(body, s.rar)
	} else {
		body = append(body, encodeULEB128(uint64(s.rar))...)
	}

	hasZ := containsZ(s.augmentation)
	var augData []byte
	if containsRune(s.augmentation, 'P') {
		augData = append(augData, s.personalityEncoding)
		augData = append(augData, encodeFixed(s.personality, s.personalityEncoding)...)
	}
	if containsRune(s.augmentation, 'L') {
		augData = append(augData, s.lsdaEncoding)
	}
	if containsRune(s.augmentation, 'R') {
		augData = append(augData, s.fdeEncoding)
	}
	if hasZ {
		body = append(body, encodeULEB128(uint64(len(augData)))...)
	}
	body = append(body, augData...)
	body = append(body, s.program...)

	return withLength(body)
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

// encodeFixed encodes v per encoding's low-nibble format, ignoring any
// base/pcrel bits (test fixtures only use absptr-based encodings so the
// value is written as-is).
func encodeFixed(v uint64, encoding byte) []byte {
	switch encoding & peFormatMask {
	case peUData4, peSData4:
		return u32le(uint32(v))
	case peUData8, peSData8, peAbsptr:
		return u64le(v)
	default:
		return encodeULEB128(v)
	}
}

type fdeSpec struct {
	cie      *CIE
	startPC  uint64
	rangeLen uint64
	lsdaAddr uint64
	hasLSDA  bool
	program  []byte
}

// buildFDE returns a complete FDE record (length-prefixed) to be placed at
// section offset fdePos; ciePos is that CIE's own section offset.
func buildFDE(fdePos uint32, ciePos uint32, s fdeSpec) []byte {
	var body []byte
	idFieldPos := fdePos + 4 // length field is 4 bytes
	body = append(body, u32le(idFieldPos-ciePos)...)
	body = append(body, encodeFixed(s.startPC, s.cie.FDEEncoding)...)
	body = append(body, encodeFixed(s.rangeLen, s.cie.FDEEncoding&peFormatMask)...)

	hasZ := containsZ(s.cie.Augmentation)
	var augData []byte
	if s.hasLSDA {
		augData = append(augData, encodeFixed(s.lsdaAddr, s.cie.LSDAEncoding)...)
	}
	if hasZ {
		body = append(body, encodeULEB128(uint64(len(augData)))...)
	}
	body = append(body, augData...)
	body = append(body, s.program...)

	return withLength(body)
}
