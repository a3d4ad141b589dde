package vestigo

import "math/bits"

// Kind classifies an instruction relevant to unwinding.
type Kind uint8

const (
	KindNone   Kind = iota
	KindPushLR      // push {.., lr}
	KindPush        // push without lr
	KindSubSP       // sub sp, sp, #imm
	KindVPush       // vpush
)

func (k Kind) String() string {
	switch k {
	case KindPushLR:
		return "push-lr"
	case KindPush:
		return "push"
	case KindSubSP:
		return "sub-sp"
	case KindVPush:
		return "vpush"
	}
	return "none"
}

// Phase is the state of the backward scan for one frame.
type Phase uint8

const (
	// PhaseLRSearch looks for the push that saved the link register.
	PhaseLRSearch Phase = iota
	// PhasePrologueSearch looks, for a bounded number of instructions, for
	// stack adjustments emitted before the LR-saving push.
	PhasePrologueSearch
)

func (p Phase) String() string {
	if p == PhasePrologueSearch {
		return "prologue-search"
	}
	return "lr-search"
}

// Allows reports whether instructions of kind k are matched in phase p.
func (p Phase) Allows(k Kind) bool {
	switch k {
	case KindSubSP, KindVPush:
		return true
	case KindPushLR:
		return p == PhaseLRSearch
	case KindPush:
		return p == PhasePrologueSearch
	}
	return false
}

// Match is the result of classifying one instruction.
type Match struct {
	Kind Kind
	// Words is the stack adjustment in 32-bit slots: the register count for
	// pushes, the immediate divided by four for sub sp.
	Words uint32
	// Regs is the pushed core register list, bit n for rn. Zero for other
	// kinds.
	Regs uint16
	// Wide is set for 32-bit Thumb encodings.
	Wide bool
}

// Thumb encodings, ARMv7-M Architecture Reference Manual section references
// in brackets.
const (
	thumbPushT1Mask    = 0xff00 // PUSH<c> <registers> [A7.7.99 T1]
	thumbPushLRT1      = 0xb500
	thumbPushNoLRT1    = 0xb400
	thumbPushT1RegMask = 0x01ff
	thumbPushT2Mask    = 0xffffe000 // PUSH<c>.W <registers> [A7.7.99 T2]
	thumbPushLRT2      = 0xe92d4000
	thumbPushNoLRT2    = 0xe92d0000
	thumbPushT2RegMask = 0x0000ffff
	thumbSubSPT1Mask   = 0xff80 // SUB<c> SP,SP,#<imm7> [A7.7.173 T1]
	thumbSubSPT1       = 0xb080
	thumbSubSPT2Mask   = 0xfbef8f00 // SUB{S}<c>.W <Rd>,SP,#<const> [A7.7.173 T2]
	thumbSubSPT2       = 0xf1ad0d00
	thumbSubSPT3Mask   = 0xfbff8f00 // SUBW<c> <Rd>,SP,#<imm12> [A7.7.173 T3]
	thumbSubSPT3       = 0xf2ad0d00
	vpushMask          = 0xffbf0e00 // VPUSH<c> [A7.7.249 T1, T2]
	vpush              = 0xed2d0a00
	vpushWordsMask     = 0x000000ff
	thumbPushT1LRBit   = 1 << 8
	thumbPushT1LowRegs = 0x00ff
	regLR              = 14
)

// MatchThumb classifies the Thumb instruction whose first halfword is hw1.
// hw2 is the halfword that follows it in memory; together they form the
// candidate 32-bit encoding hw1:hw2. Only kinds allowed in phase are
// reported, and VPUSH only when fpu is set.
//
// 32-bit encodings take precedence over 16-bit ones at the same address.
func MatchThumb(hw1, hw2 uint16, phase Phase, fpu bool) Match {
	inst32 := uint32(hw1)<<16 | uint32(hw2)

	switch {
	case phase.Allows(KindPushLR) && inst32&thumbPushT2Mask == thumbPushLRT2,
		phase.Allows(KindPush) && inst32&thumbPushT2Mask == thumbPushNoLRT2:
		regs := uint16(inst32 & thumbPushT2RegMask)
		return Match{Kind: pushKind(phase), Words: uint32(bits.OnesCount16(regs)), Regs: regs, Wide: true}
	case inst32&thumbSubSPT2Mask == thumbSubSPT2:
		return Match{Kind: KindSubSP, Words: ThumbExpandImm(inst32) / 4, Wide: true}
	case inst32&thumbSubSPT3Mask == thumbSubSPT3:
		return Match{Kind: KindSubSP, Words: thumbImm12(inst32) / 4, Wide: true}
	case phase.Allows(KindPushLR) && hw1&thumbPushT1Mask == thumbPushLRT1,
		phase.Allows(KindPush) && hw1&thumbPushT1Mask == thumbPushNoLRT1:
		regs := hw1 & thumbPushT1LowRegs
		if hw1&thumbPushT1LRBit != 0 {
			regs |= 1 << regLR
		}
		return Match{Kind: pushKind(phase), Words: uint32(bits.OnesCount16(hw1 & thumbPushT1RegMask)), Regs: regs}
	case hw1&thumbSubSPT1Mask == thumbSubSPT1:
		// imm7 is scaled by four, so it already counts words.
		return Match{Kind: KindSubSP, Words: uint32(hw1 & 0x7f)}
	case fpu && inst32&vpushMask == vpush:
		// Both encodings carry the number of words pushed in imm8.
		return Match{Kind: KindVPush, Words: inst32 & vpushWordsMask, Wide: true}
	}
	return Match{}
}

func pushKind(phase Phase) Kind {
	if phase == PhaseLRSearch {
		return KindPushLR
	}
	return KindPush
}

// ThumbExpandImm decodes the modified immediate constant of a 32-bit Thumb
// data-processing instruction (ARMv7-M A5.3.2).
func ThumbExpandImm(inst uint32) uint32 {
	iImm3A := (inst>>26&0x1)<<4 | (inst>>12&0x7)<<1 | inst>>7&0x1
	imm8 := inst & 0xff

	if iImm3A >= 8 {
		// 1:imm8<6:0> rotated right by i:imm3:a.
		return bits.RotateLeft32(imm8&0x7f|0x80, -int(iImm3A))
	}

	switch iImm3A >> 1 {
	case 0:
		return imm8
	case 1:
		return imm8<<16 | imm8
	case 2:
		return imm8<<24 | imm8<<8
	default:
		return imm8<<24 | imm8<<16 | imm8<<8 | imm8
	}
}

// thumbImm12 assembles i:imm3:imm8 from its three bitfields.
func thumbImm12(inst uint32) uint32 {
	return (inst>>26&0x1)<<11 | (inst>>12&0x7)<<8 | inst&0xff
}

// thumbInsnLen returns the length in bytes of the Thumb instruction starting
// with hw.
func thumbInsnLen(hw uint16) int {
	switch hw >> 11 {
	case 0x1d, 0x1e, 0x1f:
		return 4
	}
	return 2
}
