package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maxgio92/vestigo/target"
)

func newBacktraceCmd() *cobra.Command {
	var (
		f          imageFlags
		pc, lr, sp uint32
	)

	cmd := &cobra.Command{
		Use:   "backtrace",
		Short: "Unwind from the PC, LR and SP captured at a fault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.maxLen < 0 {
				return fmt.Errorf("--max must not be negative")
			}
			img, err := f.load()
			if err != nil {
				return err
			}
			u := f.unwinder(img)

			buf := make([]uint32, f.maxLen)
			var n int
			if cmd.Flags().Changed("lr") {
				n = u.BacktraceWithLR(pc, lr, sp, f.stackTop, buf)
			} else {
				n = u.Backtrace(pc, sp, f.stackTop, buf)
			}
			return writeTrace(cmd.OutOrStdout(), img, buf[:n])
		},
	}
	f.register(cmd)
	cmd.Flags().Uint32Var(&pc, "pc", 0, "program counter at the fault")
	cmd.Flags().Uint32Var(&lr, "lr", 0, "link register at the fault")
	cmd.Flags().Uint32Var(&sp, "sp", 0, "stack pointer at the fault")
	cmd.MarkFlagRequired("pc")
	cmd.MarkFlagRequired("sp")
	return cmd
}

func newBlindCmd() *cobra.Command {
	var (
		f           imageFlags
		sp          uint32
		minLen      int
		maxAttempts int
	)

	cmd := &cobra.Command{
		Use:   "blind",
		Short: "Search the stack for return addresses when PC and LR are lost",
		Long: `Search the stack for return addresses when PC and LR are lost.

The first stack word that unwinds into a trace of at least --min-len frames
wins. Failing that, every plausible return address on the stack is listed;
such a list is a guess, not a verified call chain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.maxLen < 0 {
				return fmt.Errorf("--max must not be negative")
			}
			img, err := f.load()
			if err != nil {
				return err
			}
			u := f.unwinder(img)

			buf := make([]uint32, f.maxLen)
			n := u.BacktraceBlind(sp, f.stackTop, buf, minLen, maxAttempts)
			return writeTrace(cmd.OutOrStdout(), img, buf[:n])
		},
	}
	f.register(cmd)
	cmd.Flags().Uint32Var(&sp, "sp", 0, "stack pointer to start scanning from")
	cmd.Flags().IntVar(&minLen, "min-len", 3, "minimum depth of an accepted trace")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 256, "stack words tried as a starting return address")
	cmd.MarkFlagRequired("sp")
	return cmd
}

// writeTrace prints one frame per line, symbolized when the image has
// symbols.
func writeTrace(w io.Writer, img *target.Image, trace []uint32) error {
	t := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, addr := range trace {
		sym := "?"
		if s, off, ok := img.Symbolize(addr); ok {
			sym = fmt.Sprintf("%s+%#x", s.Name, off)
		}
		fmt.Fprintf(t, "#%d\t0x%08x\t%s\n", i, addr, sym)
	}
	return t.Flush()
}
