// Package vestigo reconstructs call chains of crashed 32-bit ARM firmware
// from nothing more than the faulting PC, LR and SP.
//
// Firmware built without frame pointers and without unwind tables leaves no
// chain to follow, so the unwinder scans backwards from each return address
// for the prologue instructions that established the frame (push {.., lr},
// sub sp, vpush), recovers the saved LR and the caller's SP, and repeats.
//
// Every instruction fetch and stack read goes through an [Oracle] first, and
// results are written into a caller-owned slice, so the unwind path neither
// allocates nor locks and can run from a fault or watchdog handler.
//
// Use [Unwinder.Backtrace] when the PC is trusted, [Unwinder.BacktraceWithLR]
// when the fault may have hit a leaf function, and [Unwinder.BacktraceBlind]
// when only a stack pointer is left. [DetectPrologues] and
// [DetectProloguesFromELF] list the frame-establishing prologues in a
// firmware image.
package vestigo
