package vestigo

// Backtrace records the return addresses of the call chain starting at pc
// into buf and returns how many it wrote. buf[0] is pc itself; each further
// entry is the return address of the previous frame, mode bit included.
//
// The walk stops when buf is full, when a frame cannot be resolved, or when
// the resolved return address is the sentinel, which is not recorded. A
// short trace is a valid result.
func (u *Unwinder) Backtrace(pc, sp, stackTop uint32, buf []uint32) int {
	n := 0
	for n < len(buf) {
		buf[n] = pc
		n++

		lr, ok := u.UnwindFrame(pc&^1, &sp, stackTop)
		if !ok || u.isSentinel(lr) {
			break
		}
		pc = lr
	}
	return n
}

// BacktraceWithLR is Backtrace for a fault that may have happened in a leaf
// function. Leaf functions push nothing, so a trace from pc either ends
// immediately or borrows an unrelated frame; a trace from lr starts in the
// caller, which has a regular prologue. Both are computed and the deeper one
// is returned, with pc prepended to the trace from lr.
//
// When pc is not a code address the trace from lr alone is returned.
func (u *Unwinder) BacktraceWithLR(pc, lr, sp, stackTop uint32, buf []uint32) int {
	if len(buf) == 0 {
		return 0
	}

	useLR := lr&^1 != pc && u.oracle.IsCodeAddress(lr)
	if !u.oracle.IsCodeAddress(pc) {
		if !useLR {
			return 0
		}
		return u.Backtrace(lr, sp, stackTop, buf)
	}

	fromLR := 0
	if useLR {
		fromLR = u.Backtrace(lr, sp, stackTop, buf[1:]) + 1
	}

	n := u.Backtrace(pc, sp, stackTop, buf)
	if fromLR > n {
		// The pc trace overwrote buf; replay the deeper one.
		buf[0] = pc
		n = u.Backtrace(lr, sp, stackTop, buf[1:]) + 1
	}
	return n
}

// BacktraceBlind recovers a trace when neither pc nor lr can be trusted.
//
// It walks up to maxAttempts stack words from sp looking for a value that
// could be a return address, and returns the first full trace from such a
// value that is at least minLen deep. If none is, buf is filled instead with
// every plausible return address found from sp upwards: these are guesses,
// not a verified call chain. The sentinel is never a candidate.
func (u *Unwinder) BacktraceBlind(sp, stackTop uint32, buf []uint32, minLen, maxAttempts int) int {
	if len(buf) == 0 {
		return 0
	}

	n := 0
	cur := sp
	for i := 0; i < maxAttempts && u.checkSP(cur, stackTop); i++ {
		v, ok := u.mem.Uint32(cur)
		if !ok || cur+4 < cur {
			break
		}
		cur += 4
		if u.isReturnCandidate(v) && !u.isSentinel(v) && u.oracle.IsCodeAddress(v) {
			n = u.Backtrace(v, cur, stackTop, buf)
			if n >= minLen {
				return n
			}
		}
	}
	if n >= minLen {
		return n
	}

	n = 0
	for cur = sp; n < len(buf) && u.checkSP(cur, stackTop); cur += 4 {
		v, ok := u.mem.Uint32(cur)
		if !ok {
			break
		}
		if u.isReturnCandidate(v) && !u.isSentinel(v) && u.oracle.IsCodeAddress(v) {
			buf[n] = v
			n++
		}
		if cur+4 < cur {
			break
		}
	}
	return n
}
