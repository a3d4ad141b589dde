package vestigo

// Oracle tells the unwinder which addresses are safe to touch.
//
// Implementations are called from fault context: they must not allocate,
// lock or block.
type Oracle interface {
	// IsCodeAddress reports whether instructions may be fetched from addr.
	IsCodeAddress(addr uint32) bool
	// IsStackAddress reports whether addr lies in the stack being unwound.
	IsStackAddress(addr uint32) bool
}

// PermissiveOracle accepts every address. It is the default when a platform
// has nothing narrower to offer, and it is not aware of MPU regions or guard
// pages.
type PermissiveOracle struct{}

// IsCodeAddress always returns true.
func (PermissiveOracle) IsCodeAddress(uint32) bool { return true }

// IsStackAddress always returns true.
func (PermissiveOracle) IsStackAddress(uint32) bool { return true }

// Memory reads little-endian values from the target's address space.
// A false result means the address is not backed and ends the unwind.
type Memory interface {
	Uint16(addr uint32) (uint16, bool)
	Uint32(addr uint32) (uint32, bool)
}
