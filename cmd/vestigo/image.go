package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maxgio92/vestigo"
	"github.com/maxgio92/vestigo/target"
)

// imageFlags are the flags shared by the commands that unwind a stack.
type imageFlags struct {
	elf      string
	code     []string
	ram      []string
	sentinel string
	stackTop uint32
	maxLen   int
	fpu      bool
	arm      bool
	search   int
}

func (f *imageFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.elf, "elf", "", "firmware ELF file")
	fl.StringArrayVar(&f.code, "code", nil, "raw code dump as FILE@ADDR, may be repeated")
	fl.StringArrayVar(&f.ram, "ram", nil, "RAM dump holding the stack as FILE@ADDR, may be repeated")
	fl.StringVar(&f.sentinel, "sentinel", "abort", "terminal return address, as a symbol name or an address")
	fl.Uint32Var(&f.stackTop, "stack-top", 0, "exclusive upper bound of the stack, 0 to rely on the RAM dumps")
	fl.IntVar(&f.maxLen, "max", 14, "maximum number of frames")
	fl.BoolVar(&f.fpu, "fpu", false, "firmware is built for a floating-point unit")
	fl.BoolVar(&f.arm, "arm", false, "code runs in A32 state instead of Thumb")
	fl.IntVar(&f.search, "prologue-search-len", vestigo.DefaultPrologueSearchLen, "instructions examined past the LR-saving push")
}

// parseLoad splits a FILE@ADDR argument.
func parseLoad(arg string) (string, uint32, error) {
	i := strings.LastIndex(arg, "@")
	if i <= 0 || i == len(arg)-1 {
		return "", 0, fmt.Errorf("invalid dump %q, want FILE@ADDR", arg)
	}
	base, err := strconv.ParseUint(arg[i+1:], 0, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address in %q: %w", arg, err)
	}
	return arg[:i], uint32(base), nil
}

func loadDump(img *target.Image, arg string, flags target.Flags) error {
	path, base, err := parseLoad(arg)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return img.LoadRaw(f, base, flags)
}

func (f *imageFlags) load() (*target.Image, error) {
	img := target.New()

	if f.elf != "" {
		fh, err := os.Open(f.elf)
		if err != nil {
			return nil, err
		}
		defer fh.Close()
		if err := img.LoadELF(fh); err != nil {
			return nil, fmt.Errorf("%s: %w", f.elf, err)
		}
	}
	for _, arg := range f.code {
		if err := loadDump(img, arg, target.Code); err != nil {
			return nil, err
		}
	}
	for _, arg := range f.ram {
		if err := loadDump(img, arg, target.Data|target.Stack); err != nil {
			return nil, err
		}
	}
	if len(img.Regions()) == 0 {
		return nil, fmt.Errorf("no memory loaded, use --elf, --code or --ram")
	}
	return img, nil
}

// resolveSentinel turns the --sentinel value into an address, 0 when it
// names no known symbol.
func (f *imageFlags) resolveSentinel(img *target.Image) uint32 {
	if f.sentinel == "" {
		return 0
	}
	if v, err := strconv.ParseUint(f.sentinel, 0, 32); err == nil {
		return uint32(v)
	}
	s, ok := img.Lookup(f.sentinel)
	if !ok {
		log.WithField("symbol", f.sentinel).Warn("sentinel symbol not found, traces may run past the thread entry")
		return 0
	}
	log.WithFields(logrus.Fields{"symbol": s.Name, "addr": fmt.Sprintf("0x%08x", s.Addr)}).Debug("sentinel resolved")
	return s.Addr
}

func (f *imageFlags) unwinder(img *target.Image) *vestigo.Unwinder {
	arch := vestigo.ArchThumb
	if f.arm {
		arch = vestigo.ArchARM
	}
	return vestigo.New(img,
		vestigo.WithOracle(img),
		vestigo.WithArch(arch),
		vestigo.WithFPU(f.fpu),
		vestigo.WithSentinel(f.resolveSentinel(img)),
		vestigo.WithPrologueSearchLen(f.search),
	)
}
