package vestigo

import "math/bits"

// A32 encodings, ARMv7-AR Architecture Reference Manual section references
// in brackets. All of them carry the AL condition.
const (
	armCondMask    = 0xf0000000
	armCondAL      = 0xe0000000
	armPushA1Mask  = 0xffff0000 // PUSH<c> <registers> [A8.8.133 A1]
	armPushA1      = 0xe92d0000
	armPushA1Regs  = 0x0000ffff
	armPushA2Mask  = 0xffff0fff // PUSH<c> <register> [A8.8.133 A2]
	armPushA2      = 0xe52d0004
	armSubSPA1Mask = 0xffeff000 // SUB{S}<c> SP,SP,#<const> [A8.8.225 A1]
	armSubSPA1     = 0xe24dd000
	armVPushMask   = 0xffbf0e00 // VPUSH<c> [A8.8.368 A1, A2]
	armVPush       = 0xed2d0a00
)

// MatchARM classifies an A32 instruction word. Conditional instructions are
// never part of a prologue and do not match.
func MatchARM(inst uint32, phase Phase, fpu bool) Match {
	if inst&armCondMask != armCondAL {
		return Match{}
	}

	var regs uint16
	switch {
	case inst&armPushA1Mask == armPushA1:
		regs = uint16(inst & armPushA1Regs)
	case inst&armPushA2Mask == armPushA2:
		regs = 1 << (inst >> 12 & 0xf)
	case inst&armSubSPA1Mask == armSubSPA1:
		return Match{Kind: KindSubSP, Words: armExpandImm(inst) / 4}
	case fpu && inst&armVPushMask == armVPush:
		return Match{Kind: KindVPush, Words: inst & vpushWordsMask}
	default:
		return Match{}
	}

	kind := KindPush
	if regs&(1<<regLR) != 0 {
		kind = KindPushLR
	}
	if regs == 0 || !phase.Allows(kind) {
		return Match{}
	}
	return Match{Kind: kind, Words: uint32(bits.OnesCount16(regs)), Regs: regs}
}

// armExpandImm decodes the modified immediate constant of an A32
// data-processing instruction: imm8 rotated right by twice rotate (A5.2.4).
func armExpandImm(inst uint32) uint32 {
	rot := inst >> 8 & 0xf
	return bits.RotateLeft32(inst&0xff, -int(2*rot))
}
