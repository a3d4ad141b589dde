package vestigo

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/arch/arm/armasm"
)

// DetectPrologues analyzes raw machine code bytes and returns detected function
// prologues: every push saving the link register, together with the stack
// allocations that follow it. baseAddr is the virtual address corresponding
// to the start of code. arch selects the instruction set.
// This function performs no I/O and works with any binary format.
func DetectPrologues(code []byte, baseAddr uint64, arch Arch) ([]Prologue, error) {
	switch arch {
	case ArchThumb:
		return detectProloguesThumb(code, baseAddr)
	case ArchARM:
		return detectProloguesARM(code, baseAddr)
	default:
		return nil, fmt.Errorf("unsupported architecture: %s", arch)
	}
}

func detectProloguesThumb(code []byte, baseAddr uint64) ([]Prologue, error) {
	var result []Prologue

	halfword := func(offset int) uint16 {
		if offset+2 > len(code) {
			return 0
		}
		return binary.LittleEndian.Uint16(code[offset:])
	}

	for offset := 0; offset+2 <= len(code); {
		hw1, hw2 := halfword(offset), halfword(offset+2)
		size := thumbInsnLen(hw1)

		m := MatchThumb(hw1, hw2, PhaseLRSearch, true)
		if m.Kind != KindPushLR || m.Wide != (size == 4) {
			offset += size
			continue
		}

		p := Prologue{
			Address:    baseAddr + uint64(offset),
			Type:       ProloguePushLR,
			FrameWords: m.Words,
		}
		insns := []string{thumbText(hw1, hw2, m)}

		// Stack allocations usually follow the push directly, sometimes
		// after a frame pointer setup.
		next := offset + size
		for i := 0; i < DefaultPrologueSearchLen && next+2 <= len(code); i++ {
			h1, h2 := halfword(next), halfword(next+2)
			n := MatchThumb(h1, h2, PhasePrologueSearch, true)
			if n.Kind == KindPush || MatchThumb(h1, h2, PhaseLRSearch, true).Kind == KindPushLR {
				break
			}
			if n.Kind == KindSubSP || n.Kind == KindVPush {
				p.FrameWords += n.Words
				insns = append(insns, thumbText(h1, h2, n))
				if n.Kind == KindSubSP {
					p.Type = PrologueFrame
				}
			}
			next += thumbInsnLen(h1)
		}

		p.Instructions = strings.Join(insns, "; ")
		result = append(result, p)
		offset += size
	}

	return result, nil
}

func detectProloguesARM(code []byte, baseAddr uint64) ([]Prologue, error) {
	var result []Prologue

	const insnLen = 4

	for offset := 0; offset+insnLen <= len(code); offset += insnLen {
		inst := binary.LittleEndian.Uint32(code[offset:])
		m := MatchARM(inst, PhaseLRSearch, true)
		if m.Kind != KindPushLR {
			continue
		}

		p := Prologue{
			Address:    baseAddr + uint64(offset),
			Type:       ProloguePushLR,
			FrameWords: m.Words,
		}
		insns := []string{armText(inst, m)}

		next := offset + insnLen
		for i := 0; i < DefaultPrologueSearchLen && next+insnLen <= len(code); i++ {
			ni := binary.LittleEndian.Uint32(code[next:])
			n := MatchARM(ni, PhasePrologueSearch, true)
			if n.Kind == KindPush || MatchARM(ni, PhaseLRSearch, true).Kind == KindPushLR {
				break
			}
			if n.Kind == KindSubSP || n.Kind == KindVPush {
				p.FrameWords += n.Words
				insns = append(insns, armText(ni, n))
				if n.Kind == KindSubSP {
					p.Type = PrologueFrame
				}
			}
			next += insnLen
		}

		p.Instructions = strings.Join(insns, "; ")
		result = append(result, p)
	}

	return result, nil
}

var coreRegNames = [16]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc",
}

func regListText(regs uint16) string {
	var names []string
	for r := 0; r < 16; r++ {
		if regs&(1<<r) != 0 {
			names = append(names, coreRegNames[r])
		}
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// vpushText renders the register list of a VPUSH from its encoding.
func vpushText(inst uint32) string {
	d := inst >> 22 & 0x1
	vd := inst >> 12 & 0xf
	imm8 := inst & vpushWordsMask

	prefix, first, count := "s", vd<<1|d, imm8
	if inst>>8&0x1 == 1 {
		prefix, first, count = "d", d<<4|vd, imm8/2
	}
	if count <= 1 {
		return fmt.Sprintf("vpush {%s%d}", prefix, first)
	}
	return fmt.Sprintf("vpush {%s%d-%s%d}", prefix, first, prefix, first+count-1)
}

// thumbText renders a matched Thumb instruction in GNU syntax.
func thumbText(hw1, hw2 uint16, m Match) string {
	inst32 := uint32(hw1)<<16 | uint32(hw2)

	switch m.Kind {
	case KindPushLR, KindPush:
		if m.Wide {
			return "push.w " + regListText(m.Regs)
		}
		return "push " + regListText(m.Regs)
	case KindSubSP:
		switch {
		case !m.Wide:
			return fmt.Sprintf("sub sp, #%d", m.Words*4)
		case inst32&thumbSubSPT3Mask == thumbSubSPT3:
			return fmt.Sprintf("subw sp, sp, #%d", thumbImm12(inst32))
		default:
			return fmt.Sprintf("sub.w sp, sp, #%d", ThumbExpandImm(inst32))
		}
	case KindVPush:
		return vpushText(inst32)
	}
	return ""
}

// armText renders a matched A32 instruction in GNU syntax.
func armText(inst uint32, m Match) string {
	if m.Kind == KindVPush {
		return vpushText(inst)
	}
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], inst)
	insn, err := armasm.Decode(raw[:], armasm.ModeARM)
	if err != nil {
		return ""
	}
	return armasm.GNUSyntax(insn)
}

// DetectProloguesFromELF parses a 32-bit ARM ELF binary from the given reader,
// extracts the .text section, and returns detected function prologues.
// The instruction set is inferred from the entry point: Thumb when its mode
// bit is set, A32 otherwise.
func DetectProloguesFromELF(r io.ReaderAt) ([]Prologue, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_ARM {
		return nil, fmt.Errorf("unsupported ELF machine: %s", f.Machine)
	}

	textSec := f.Section(".text")
	if textSec == nil {
		return nil, fmt.Errorf("no .text section found")
	}

	code, err := textSec.Data()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read .text section: %w", err)
	}

	if f.Entry&1 != 0 {
		return detectProloguesThumb(code, textSec.Addr)
	}
	return detectProloguesARM(code, textSec.Addr)
}
