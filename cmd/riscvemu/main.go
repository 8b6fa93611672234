// Command riscvemu loads a flat RISC-V binary into DRAM and runs it
// on an interpreting CPU core.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/riscvemu/riscvemu/internal/config"
	"github.com/riscvemu/riscvemu/internal/cpu"
	"github.com/riscvemu/riscvemu/internal/emulator"
)

const (
	defaultDramBase uint32 = 0x8000_0000
	defaultDramSize uint32 = 128 * 1024 * 1024
)

type flags struct {
	verbose   bool
	debug     bool
	maxCycles int
	dramBase  uint32
	dramSize  uint32
	cfgPath   string
}

func main() {
	log.SetFlags(0)
	if err := newRootCmd().Execute(); err != nil {
		log.Print(err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "riscvemu",
		Short:         "Interpreting emulator for the RISC-V base integer ISA",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <isa> <binary-path>",
		Short: "Load a flat binary and run it to completion or halt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRISCV(f, args[0], args[1])
		},
	}

	pf := runCmd.Flags()
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "trace every cycle")
	pf.BoolVarP(&f.debug, "debug", "d", false, "single-step, pausing for Enter between cycles")
	pf.IntVar(&f.maxCycles, "max-cycles", 0, "stop after this many cycles (0 = unbounded)")
	pf.Uint32Var(&f.dramBase, "dram-base", defaultDramBase, "DRAM mapping start address")
	pf.Uint32Var(&f.dramSize, "dram-size", defaultDramSize, "DRAM mapping size in bytes")
	pf.StringVarP(&f.cfgPath, "config", "c", "", "optional TOML file supplying flag defaults")

	root.AddCommand(runCmd)
	return root
}

func runRISCV(f *flags, isaID, path string) error {
	if f.cfgPath != "" {
		cfg, err := config.Load(f.cfgPath)
		if err != nil {
			return err
		}
		applyConfigDefaults(f, cfg)
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("riscvemu: failed to read %s: %w", path, err)
	}

	mach, err := emulator.New(isaID, code, f.dramBase, f.dramSize)
	if err != nil {
		return err
	}

	if f.verbose {
		log.Printf("riscvemu: isa=%s devices=%d dram=[%#x,%#x)", mach.ISAID(), mach.Devices(), f.dramBase, uint64(f.dramBase)+uint64(f.dramSize))
	}

	runErr := mach.Run(f.maxCycles, f.verbose, f.debug)

	if runErr != nil && !errors.Is(runErr, cpu.ErrHalt) {
		log.Printf("riscvemu: final register dump:\n%s", mach.DumpRegisters())
	}

	if dumpErr := writeMemDump(mach); dumpErr != nil {
		log.Printf("riscvemu: warning: failed to write mem.dump: %v", dumpErr)
	}

	return runErr
}

func applyConfigDefaults(f *flags, cfg *config.Config) {
	// Config values only take effect where the flag still holds its
	// default value. A flag passed explicitly with a value equal to its
	// default is not told apart from an absent one, so the file's value
	// replaces it.
	if cfg.DramBase != nil && f.dramBase == defaultDramBase {
		f.dramBase = *cfg.DramBase
	}
	if cfg.DramSize != nil && f.dramSize == defaultDramSize {
		f.dramSize = *cfg.DramSize
	}
	if cfg.MaxCycles != nil && f.maxCycles == 0 {
		f.maxCycles = *cfg.MaxCycles
	}
	if cfg.Verbose != nil && !f.verbose {
		f.verbose = *cfg.Verbose
	}
	if cfg.Debug != nil && !f.debug {
		f.debug = *cfg.Debug
	}
}

func writeMemDump(mach *emulator.Machine) error {
	data, err := mach.DumpMemory()
	if err != nil {
		return err
	}
	return os.WriteFile("mem.dump", data, 0o644)
}

// exitCodeFor maps a run's terminating error to a process exit code:
// 0 on a clean halt, 2 when <isa> names no supported variant, 1 on
// any other error. Argument-count and flag errors reported by cobra
// are not told apart and also exit 1.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, cpu.ErrHalt):
		return 0
	default:
		var unknownISA *emulator.UnknownISAError
		if errors.As(err, &unknownISA) {
			return 2
		}
		return 1
	}
}
