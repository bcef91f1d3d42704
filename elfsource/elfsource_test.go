package elfsource

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/aeflores/libehp/test"
)

// The standard library has no ELF writer, so fixtures for this package are
// hand-assembled little-endian ELF64 byte images, the same way ehframe's own
// fixtures hand-build CIE/FDE bytes.

// buildELF64NoEHFrame builds a minimal ELF64 image with only a .shstrtab
// section — no .eh_frame at all.
func buildELF64NoEHFrame() []byte {
	const ehsize = 64
	const shentsize = 64

	shstrtab := []byte("\x00.shstrtab\x00")
	nameSHStrtab := uint32(1)

	shstrtabOff := uint64(ehsize)
	shoff := shstrtabOff + uint64(len(shstrtab))

	var buf bytes.Buffer
	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4], ident[5], ident[6] = 2, 1, 1
	buf.Write(ident)

	write := func(v interface{}) { binary.Write(&buf, binary.LittleEndian, v) }
	write(uint16(1))
	write(uint16(62))
	write(uint32(1))
	write(uint64(0))
	write(uint64(0))
	write(uint64(shoff))
	write(uint32(0))
	write(uint16(ehsize))
	write(uint16(0))
	write(uint16(0))
	write(uint16(shentsize))
	write(uint16(2)) // null, .shstrtab
	write(uint16(1))

	buf.Write(shstrtab)

	writeShdr := func(name, typ uint32, flags, addr, offset, size uint64, link, info uint32, align, entsize uint64) {
		write(name)
		write(typ)
		write(flags)
		write(addr)
		write(offset)
		write(size)
		write(link)
		write(info)
		write(align)
		write(entsize)
	}
	writeShdr(0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	writeShdr(nameSHStrtab, 3, 0, 0, shstrtabOff, uint64(len(shstrtab)), 0, 0, 1, 0)

	return buf.Bytes()
}

// buildMinimalELF64 builds an ELF64 image with a .eh_frame section (loaded
// at ehFrameAddr) and a .shstrtab, nothing else.
func buildMinimalELF64(ehFrameData []byte, ehFrameAddr uint64) []byte {
	const ehsize = 64
	const shentsize = 64

	shstrtab := []byte("\x00.eh_frame\x00.shstrtab\x00")
	nameEHFrame := uint32(1)
	nameSHStrtab := uint32(11)

	ehFrameOff := uint64(ehsize)
	shstrtabOff := ehFrameOff + uint64(len(ehFrameData))
	shoff := shstrtabOff + uint64(len(shstrtab))

	var buf bytes.Buffer

	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4] = 2 // ELFCLASS64
	ident[5] = 1 // ELFDATA2LSB
	ident[6] = 1 // EV_CURRENT
	buf.Write(ident)

	write := func(v interface{}) { binary.Write(&buf, binary.LittleEndian, v) }
	write(uint16(1))  // e_type: ET_REL
	write(uint16(62)) // e_machine: EM_X86_64
	write(uint32(1))  // e_version
	write(uint64(0))  // e_entry
	write(uint64(0))  // e_phoff
	write(uint64(shoff))
	write(uint32(0))        // e_flags
	write(uint16(ehsize))   // e_ehsize
	write(uint16(0))        // e_phentsize
	write(uint16(0))        // e_phnum
	write(uint16(shentsize)) // e_shentsize
	write(uint16(3))        // e_shnum: null, .eh_frame, .shstrtab
	write(uint16(2))        // e_shstrndx

	buf.Write(ehFrameData)
	buf.Write(shstrtab)

	writeShdr := func(name, typ uint32, flags, addr, offset, size uint64, link, info uint32, align, entsize uint64) {
		write(name)
		write(typ)
		write(flags)
		write(addr)
		write(offset)
		write(size)
		write(link)
		write(info)
		write(align)
		write(entsize)
	}

	writeShdr(0, 0, 0, 0, 0, 0, 0, 0, 0, 0) // SHT_NULL
	writeShdr(nameEHFrame, 1 /* SHT_PROGBITS */, 0, ehFrameAddr, ehFrameOff, uint64(len(ehFrameData)), 0, 0, 1, 0)
	writeShdr(nameSHStrtab, 3 /* SHT_STRTAB */, 0, 0, shstrtabOff, uint64(len(shstrtab)), 0, 0, 1, 0)

	return buf.Bytes()
}

func buildCIEOnlyEHFrame() []byte {
	var body []byte
	body = append(body, 0, 0, 0, 0) // CIE id
	body = append(body, 1)          // version
	body = append(body, 0)          // augmentation: empty string
	body = append(body, 1)          // code alignment factor: uleb(1)
	body = append(body, 0x78)       // data alignment factor: sleb(-8)
	body = append(body, 16)         // return address register

	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, uint32(len(body)))

	var ehFrame []byte
	ehFrame = append(ehFrame, length...)
	ehFrame = append(ehFrame, body...)
	ehFrame = append(ehFrame, 0, 0, 0, 0) // terminator
	return ehFrame
}

func TestFromFileNoLSDASections(t *testing.T) {
	ehFrameData := buildCIEOnlyEHFrame()
	img := buildMinimalELF64(ehFrameData, 0x2000)

	f, err := elf.NewFile(bytes.NewReader(img))
	test.ExpectSuccess(t, err == nil)

	p, err := FromFile(f)
	test.ExpectSuccess(t, err == nil)

	err = p.Parse()
	test.ExpectSuccess(t, err == nil)
	test.Equate(t, len(p.CIEs()), 1)
	test.Equate(t, len(p.FDEs()), 0)
}

func TestFromFileMissingEHFrameFails(t *testing.T) {
	img := buildELF64NoEHFrame()
	f, err := elf.NewFile(bytes.NewReader(img))
	test.ExpectSuccess(t, err == nil)

	_, err = FromFile(f)
	test.ExpectFailure(t, err == nil)
}

func TestSectionMissingReturnsZeroValue(t *testing.T) {
	img := buildELF64NoEHFrame()
	f, err := elf.NewFile(bytes.NewReader(img))
	test.ExpectSuccess(t, err == nil)

	sd, err := section(f, sectionGCCExceptTable)
	test.ExpectSuccess(t, err == nil)
	test.ExpectSuccess(t, sd.Bytes == nil)
}
