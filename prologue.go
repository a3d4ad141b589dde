package vestigo

// Arch represents the instruction set the unwound code executes in.
type Arch string

// Supported instruction sets.
const (
	ArchThumb Arch = "thumb"
	ArchARM   Arch = "arm"
)

// PrologueType represents the type of function prologue.
type PrologueType string

// Recognized prologue patterns.
const (
	// PrologueFrame is an LR-saving push followed by a stack allocation.
	PrologueFrame PrologueType = "push-lr-sub-sp"
	// ProloguePushLR is an LR-saving push with no stack allocation.
	ProloguePushLR PrologueType = "push-lr"
)

// Prologue represents a detected function prologue.
type Prologue struct {
	Address      uint64       `json:"address"`
	Type         PrologueType `json:"type"`
	Instructions string       `json:"instructions"`
	// FrameWords is the number of 32-bit stack slots the prologue reserves,
	// saved registers included.
	FrameWords uint32 `json:"frame_words"`
}
