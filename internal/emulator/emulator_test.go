package emulator

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riscvemu/riscvemu/internal/cpu"
)

func asmAddiHalt() []byte {
	// ADDI x1, x0, 7 ; HALT
	addi := uint32(7)<<20 | uint32(0)<<15 | uint32(0)<<12 | uint32(1)<<7 | 0b0010011
	code := make([]byte, 8)
	binary.LittleEndian.PutUint32(code[0:4], addi)
	binary.LittleEndian.PutUint32(code[4:8], 0xFFFFFFFF)
	return code
}

func TestNewUnknownISA(t *testing.T) {
	_, err := New("RV99", nil, 0, 64)
	require.Error(t, err)
	var unknownISA *UnknownISAError
	assert.True(t, errors.As(err, &unknownISA))
}

func TestNewAndRunRV32I(t *testing.T) {
	m, err := New("rv32i", asmAddiHalt(), 0, 4096)
	require.NoError(t, err)
	assert.Equal(t, "RV32I", m.ISAID())
	assert.Equal(t, 1, m.Devices())

	err = m.Run(0, false, false)
	assert.True(t, errors.Is(err, cpu.ErrHalt))
}

func TestNewAndRunRV64I(t *testing.T) {
	m, err := New("RV64I", asmAddiHalt(), 0, 4096)
	require.NoError(t, err)

	err = m.Run(0, false, false)
	assert.True(t, errors.Is(err, cpu.ErrHalt))
}

func TestRunRespectsMaxCycles(t *testing.T) {
	code := make([]byte, 4)
	binary.LittleEndian.PutUint32(code, uint32(1)<<20|0b0010011)
	m, err := New("RV32E", code, 0, 4096)
	require.NoError(t, err)

	err = m.Run(1, false, false)
	assert.NoError(t, err, "maxCycles reached without error before the loop body runs out of instructions")
}

func TestDumpMemoryReturnsDRAM(t *testing.T) {
	m, err := New("RV32I", []byte{1, 2, 3, 4}, 0, 16)
	require.NoError(t, err)
	data, err := m.DumpMemory()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data[:4])
}

func TestDumpRegistersReportsBothWidths(t *testing.T) {
	m32, err := New("RV32I", nil, 0, 16)
	require.NoError(t, err)
	assert.Contains(t, m32.DumpRegisters(), "zero")

	m64, err := New("RV64I", nil, 0, 16)
	require.NoError(t, err)
	assert.Contains(t, m64.DumpRegisters(), "zero")
}
