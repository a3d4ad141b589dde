package vestigo

// UnwindFrame resolves the caller of the frame executing at pc.
//
// It scans backwards from pc for the push that saved the link register,
// adding up every stack adjustment it passes, reads the saved LR from the
// highest slot of that push, then keeps scanning for a few more instructions
// to catch adjustments emitted before the push. sp is advanced by the total
// adjustment found, whether or not the frame resolved.
//
// pc must not carry the Thumb mode bit. A non-zero stackTop bounds stack
// reads from above; otherwise the oracle decides. ok is false when the
// frame could not be resolved, which is the normal way a trace ends.
func (u *Unwinder) UnwindFrame(pc uint32, sp *uint32, stackTop uint32) (lr uint32, ok bool) {
	var (
		words  uint32
		phase  = PhaseLRSearch
		budget = u.prologueSearchLen
		step   = uint32(2)
		next   uint16
	)
	if u.arch == ArchARM {
		step = 4
	}

	for {
		if !u.oracle.IsCodeAddress(pc) {
			break
		}

		var m Match
		if u.arch == ArchARM {
			inst, valid := u.mem.Uint32(pc)
			if !valid {
				break
			}
			m = MatchARM(inst, phase, u.fpu)
		} else {
			hw, valid := u.mem.Uint16(pc)
			if !valid {
				break
			}
			m = MatchThumb(hw, next, phase, u.fpu)
			next = hw
		}
		words += m.Words

		if m.Kind == KindPushLR {
			// LR is the highest register of the push, one slot below the
			// caller's SP on a full-descending stack.
			callerSP := *sp + words*4
			if callerSP < *sp || !u.checkSP(callerSP, stackTop) || !u.checkSP(callerSP-4, stackTop) {
				break
			}
			saved, valid := u.mem.Uint32(callerSP - 4)
			if !valid || !u.oracle.IsCodeAddress(saved) {
				break
			}
			lr, ok = saved, true
			phase = PhasePrologueSearch
		}

		if phase == PhasePrologueSearch {
			if budget == 0 {
				break
			}
			budget--
		}

		if pc < step {
			break
		}
		pc -= step
	}

	*sp += words * 4
	return lr, ok
}
