package cpu

import (
	"fmt"
	"strings"
)

// abiNames are the calling-convention register names, indexed by
// register number. RV32E programs only ever address the first 16.
var abiNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

const (
	dumpBanner = "--------- Register Dump ---------"
	dumpFooter = "------------ bye :) -------------"
)

// DumpRV32 renders c's register file (hex and decimal) for the
// insnDump sentinel instruction.
func DumpRV32(c *RV32) string {
	var b strings.Builder
	fmt.Fprintln(&b, dumpBanner)
	for i, v := range c.regs {
		fmt.Fprintf(&b, "x%-2d %-4s 0x%08x %12d\n", i, abiNames[i], v, int32(v))
	}
	fmt.Fprintf(&b, "pc       0x%08x\n", c.pc)
	fmt.Fprintln(&b, dumpFooter)
	return b.String()
}

// DumpRV64 renders c's register file (hex and decimal) for the
// insnDump sentinel instruction.
func DumpRV64(c *RV64) string {
	var b strings.Builder
	fmt.Fprintln(&b, dumpBanner)
	for i, v := range c.regs {
		fmt.Fprintf(&b, "x%-2d %-4s 0x%016x %20d\n", i, abiNames[i], v, int64(v))
	}
	fmt.Fprintf(&b, "pc       0x%016x\n", c.pc)
	fmt.Fprintln(&b, dumpFooter)
	return b.String()
}
