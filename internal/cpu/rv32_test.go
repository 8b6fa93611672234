package cpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riscvemu/riscvemu/internal/bus"
	"github.com/riscvemu/riscvemu/internal/memory"
)

func newRV32(t *testing.T, regCount int, code []byte) (*RV32, *bus.Bus) {
	t.Helper()
	dram := memory.NewDramWithCode(code, 4096)
	b := bus.New([]bus.Range{{Start: 0, End: 4096}}, []memory.Device{dram})
	c := NewRV32("RV32I", regCount, b, 0, 4096, nil)
	return c, b
}

func TestRV32ResetInvariants(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	assert.Equal(t, uint32(0), c.PC())
	assert.Equal(t, uint32(4096), c.Reg(2), "sp must be seeded with the DRAM end")
	assert.Equal(t, uint32(0), c.Reg(0))
}

func TestRV32RegisterZeroAlwaysReadsZero(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	// ADDI x0, x0, 5 -- must not perturb the hardwired zero register.
	insn := encodeI(opIMM, 0, funct3ADDI, 0, 5)
	require.NoError(t, c.Execute(insn))
	assert.Equal(t, uint32(0), c.Reg(0))
}

func TestRV32JalZeroDestinationStaysZero(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	c.pc = 100
	// JAL x0, 16 -- the "j offset" pseudo-instruction: it writes the
	// link address into rd, which here is the hardwired zero register.
	require.NoError(t, c.Execute(encodeJ(0, 16)))
	assert.Equal(t, uint32(0), c.Reg(0))
	assert.Equal(t, uint32(0), c.Regs()[0], "the backing array, not just Reg(0), must stay zero")
}

func TestRV32AddiAndLui(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	require.NoError(t, c.Execute(encodeU(opLUI, 5, 0x12345000)))
	assert.Equal(t, uint32(0x12345000), c.Reg(5))

	require.NoError(t, c.Execute(encodeI(opIMM, 6, funct3ADDI, 5, -1)))
	assert.Equal(t, uint32(0x12344FFF), c.Reg(6))
}

func TestRV32AddiNegativeImmediateSignExtends(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	require.NoError(t, c.Execute(encodeI(opIMM, 1, funct3ADDI, 0, -1)))
	assert.Equal(t, uint32(0xFFFFFFFF), c.Reg(1))
}

func TestRV32ShiftImmShamtComesFromInstructionNotImmediate(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	require.NoError(t, c.Execute(encodeI(opIMM, 1, funct3ADDI, 0, 1)))
	require.NoError(t, c.Execute(encodeShiftI(opIMM, 2, funct3SLLI, 1, 4, funct7Base)))
	assert.Equal(t, uint32(16), c.Reg(2))
}

func TestRV32BranchTakenAndNotTaken(t *testing.T) {
	c, b := newRV32(t, 32, nil)
	_ = b
	require.NoError(t, c.Execute(encodeI(opIMM, 1, funct3ADDI, 0, 3)))
	require.NoError(t, c.Execute(encodeI(opIMM, 2, funct3ADDI, 0, 3)))

	c.pc = 100
	require.NoError(t, c.Execute(encodeB(funct3BEQ, 1, 2, 16)))
	assert.Equal(t, uint32(96+16), c.PC(), "taken branch retargets to (pc-4)+imm")

	c.pc = 100
	require.NoError(t, c.Execute(encodeI(opIMM, 2, funct3ADDI, 0, 4)))
	c.pc = 100
	require.NoError(t, c.Execute(encodeB(funct3BEQ, 1, 2, 16)))
	assert.Equal(t, uint32(100), c.PC(), "not-taken branch falls through")
}

func TestRV32JalAndJalr(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	c.pc = 100
	require.NoError(t, c.Execute(encodeJ(1, 20)))
	assert.Equal(t, uint32(100), c.Reg(1), "jal saves the return address")
	assert.Equal(t, uint32(96+20), c.PC())

	c.setReg(3, 42)
	c.pc = 200
	require.NoError(t, c.Execute(encodeI(opJALR, 4, 0, 3, 5)))
	assert.Equal(t, uint32(200), c.Reg(4))
	assert.Equal(t, uint32(46), c.PC(), "jalr target clears bit 0")
}

func TestRV32LoadStoreRoundTrip(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	require.NoError(t, c.Execute(encodeI(opIMM, 1, funct3ADDI, 0, 256)))
	require.NoError(t, c.Execute(encodeI(opIMM, 2, funct3ADDI, 0, -1)))
	require.NoError(t, c.Execute(encodeS(opSTORE, funct3SW, 1, 2, 0)))

	require.NoError(t, c.Execute(encodeI(opLOAD, 3, funct3LW, 1, 0)))
	assert.Equal(t, uint32(0xFFFFFFFF), c.Reg(3))

	require.NoError(t, c.Execute(encodeI(opLOAD, 4, funct3LBU, 1, 0)))
	assert.Equal(t, uint32(0xFF), c.Reg(4))

	require.NoError(t, c.Execute(encodeI(opLOAD, 5, funct3LB, 1, 0)))
	assert.Equal(t, uint32(0xFFFFFFFF), c.Reg(5), "LB sign-extends")
}

func TestRV32HaltSentinel(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	err := c.Execute(insnHalt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHalt))
}

func TestRV32UnmappedLoadPropagatesBusError(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	c.setReg(1, 1<<20)
	err := c.Execute(encodeI(opLOAD, 2, funct3LW, 1, 0))
	require.Error(t, err)
	var notMapped *bus.AddressNotMappedError
	assert.True(t, errors.As(err, &notMapped))
}

func TestRV32UnimplementedOpcode(t *testing.T) {
	c, _ := newRV32(t, 32, nil)
	err := c.Execute(encodeI(opSYSTEM, 0, 0, 0, 0))
	require.Error(t, err)
	var notImpl *InstructionNotImplementedError
	assert.True(t, errors.As(err, &notImpl))
}

func TestRV32RunStopsOnHalt(t *testing.T) {
	code := make([]byte, 8)
	encodeLE(code[0:4], encodeI(opIMM, 1, funct3ADDI, 0, 1))
	encodeLE(code[4:8], insnHalt)

	c, _ := newRV32(t, 32, code)
	cycles, err := c.Run(0)
	require.True(t, errors.Is(err, ErrHalt))
	assert.Equal(t, 1, cycles)
	assert.Equal(t, uint32(1), c.Reg(1))
}

func encodeLE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}
