package vestigo_test

import (
	"encoding/binary"
	"testing"

	"github.com/maxgio92/vestigo/target"
)

const (
	flashBase = 0x08000000
	flashSize = 0x1000
	ramBase   = 0x20000000
	ramSize   = 0x1000

	thumbNop = 0xbf00
)

// firmware is a synthetic Cortex-M memory map: flash filled with Thumb
// nops and zeroed RAM.
type firmware struct {
	flash []byte
	ram   []byte
}

func newFirmware() *firmware {
	fw := &firmware{
		flash: make([]byte, flashSize),
		ram:   make([]byte, ramSize),
	}
	for off := 0; off < flashSize; off += 2 {
		binary.LittleEndian.PutUint16(fw.flash[off:], thumbNop)
	}
	return fw
}

// thumb writes consecutive halfwords starting at addr.
func (fw *firmware) thumb(addr uint32, hws ...uint16) {
	for i, hw := range hws {
		binary.LittleEndian.PutUint16(fw.flash[addr-flashBase+uint32(2*i):], hw)
	}
}

// arm writes consecutive A32 words starting at addr.
func (fw *firmware) arm(addr uint32, words ...uint32) {
	for i, w := range words {
		binary.LittleEndian.PutUint32(fw.flash[addr-flashBase+uint32(4*i):], w)
	}
}

// word writes a stack word.
func (fw *firmware) word(addr, v uint32) {
	binary.LittleEndian.PutUint32(fw.ram[addr-ramBase:], v)
}

func (fw *firmware) image(t *testing.T) *target.Image {
	t.Helper()
	img := target.New()
	if err := img.AddRegion(flashBase, fw.flash, target.Code); err != nil {
		t.Fatalf("failed to map flash: %v", err)
	}
	if err := img.AddRegion(ramBase, fw.ram, target.Stack|target.Data); err != nil {
		t.Fatalf("failed to map RAM: %v", err)
	}
	return img
}

// Thumb encodings used to build prologues.
const (
	pushR7LR  = 0xb580 // push {r7, lr}
	pushR4LR  = 0xb510 // push {r4, lr}
	pushLR    = 0xb500 // push {lr}
	pushR4    = 0xb410 // push {r4}
	subSP8    = 0xb082 // sub sp, #8
	blHi      = 0xf000 // bl, first halfword
	blLo      = 0xf800 // bl, second halfword
	udf       = 0xdefe // udf #254
	pushWHi   = 0xe92d // push.w, first halfword
	subWSPHi  = 0xf5ad // sub.w sp, sp, #0x200, first halfword
	subWSPLo  = 0x7d00 // sub.w sp, sp, #0x200, second halfword
	vpushHi   = 0xed2d // vpush, first halfword
	vpushD8D9 = 0x8b04 // vpush {d8-d9}, second halfword
)

// callChain is main -> mid -> leaf, faulting inside leaf. main and mid
// each open with push {r7, lr}; sub sp, #8. leaf has no prologue. main's
// saved LR is the address of abort, the thread entry sentinel.
type callChain struct {
	fw       *firmware
	pc       uint32 // inside leaf
	lr       uint32 // return into mid
	sp       uint32 // leaf's SP
	retMain  uint32 // return into main
	sentinel uint32 // abort, Thumb bit set
	top      uint32 // initial SP of the thread
}

func newCallChain() callChain {
	const (
		mainFn  = flashBase + 0x100
		midFn   = flashBase + 0x200
		leafFn  = flashBase + 0x300
		abortFn = flashBase + 0x400
		top     = ramBase + 0x800
	)

	fw := newFirmware()
	fw.thumb(mainFn, pushR7LR, subSP8, thumbNop, blHi, blLo, thumbNop)
	fw.thumb(midFn, pushR7LR, subSP8, thumbNop, blHi, blLo, thumbNop)
	fw.thumb(abortFn, udf)

	c := callChain{
		fw:       fw,
		pc:       leafFn + 4,
		lr:       (midFn + 0xa) | 1,
		sp:       top - 32,
		retMain:  (mainFn + 0xa) | 1,
		sentinel: abortFn | 1,
		top:      top,
	}

	// main: push {r7, lr} at entry SP top.
	fw.word(top-4, c.sentinel)
	fw.word(top-8, 0)
	// mid: push {r7, lr} below main's 8-byte locals.
	fw.word(top-20, c.retMain)
	fw.word(top-24, 0)
	return c
}
