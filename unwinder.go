package vestigo

// DefaultPrologueSearchLen is the number of instructions examined after the
// LR-saving push has been found. Compilers emit at most a sub sp or a second
// push ahead of it; the value is empirical, not an architectural bound.
const DefaultPrologueSearchLen = 2

// Unwinder reconstructs call chains from a target memory image.
//
// An Unwinder is immutable once built and its methods neither allocate nor
// lock, so one value can serve concurrent callers and fault handlers.
type Unwinder struct {
	mem               Memory
	oracle            Oracle
	arch              Arch
	sentinel          uint32
	fpu               bool
	prologueSearchLen int
}

// Option configures an Unwinder.
type Option func(*Unwinder)

// WithOracle sets the validity oracle consulted before every memory access.
func WithOracle(o Oracle) Option {
	return func(u *Unwinder) {
		if o != nil {
			u.oracle = o
		}
	}
}

// WithSentinel sets the terminal return address installed at the top of
// thread stacks. A resolved return address equal to it, mode bit ignored,
// ends the unwind without being recorded. Zero disables the check.
func WithSentinel(addr uint32) Option {
	return func(u *Unwinder) { u.sentinel = addr }
}

// WithFPU enables matching of VPUSH, for firmware built with a
// floating-point unit.
func WithFPU(fpu bool) Option {
	return func(u *Unwinder) { u.fpu = fpu }
}

// WithArch selects the instruction set of the unwound code.
func WithArch(arch Arch) Option {
	return func(u *Unwinder) { u.arch = arch }
}

// WithPrologueSearchLen overrides DefaultPrologueSearchLen.
func WithPrologueSearchLen(n int) Option {
	return func(u *Unwinder) {
		if n >= 0 {
			u.prologueSearchLen = n
		}
	}
}

// New returns an Unwinder reading target memory through mem.
func New(mem Memory, opts ...Option) *Unwinder {
	u := &Unwinder{
		mem:               mem,
		oracle:            PermissiveOracle{},
		arch:              ArchThumb,
		prologueSearchLen: DefaultPrologueSearchLen,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Arch returns the instruction set the Unwinder decodes.
func (u *Unwinder) Arch() Arch { return u.arch }

// checkSP validates a stack address against stackTop when one is given, and
// against the oracle otherwise.
func (u *Unwinder) checkSP(addr, stackTop uint32) bool {
	if stackTop != 0 {
		return addr < stackTop
	}
	return u.oracle.IsStackAddress(addr)
}

func (u *Unwinder) isSentinel(addr uint32) bool {
	return u.sentinel != 0 && addr&^1 == u.sentinel&^1
}

// isReturnCandidate reports whether a raw stack word looks like a return
// address for the configured instruction set.
func (u *Unwinder) isReturnCandidate(v uint32) bool {
	if u.arch == ArchARM {
		return v&3 == 0
	}
	return v&1 != 0
}
