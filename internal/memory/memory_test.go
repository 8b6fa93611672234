package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDramLoadStoreRoundTrip(t *testing.T) {
	d := NewDram(64)

	require.NoError(t, d.StoreU32(0, 0xDEADBEEF))
	v, err := d.LoadU32(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)

	require.NoError(t, d.StoreU16(8, 0x1234))
	v16, err := d.LoadU16(8)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v16)

	require.NoError(t, d.StoreU64(16, 0x0102030405060708))
	v64, err := d.LoadU64(16)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v64)
}

func TestDramLittleEndian(t *testing.T) {
	d := NewDram(4)
	require.NoError(t, d.StoreU32(0, 0x04030201))
	b0, _ := d.LoadU8(0)
	b3, _ := d.LoadU8(3)
	assert.Equal(t, uint8(0x01), b0)
	assert.Equal(t, uint8(0x04), b3)
}

func TestDramOutOfRange(t *testing.T) {
	d := NewDram(4)
	_, err := d.LoadU32(2)
	require.Error(t, err)
	var notMapped *AddressNotMappedError
	assert.True(t, errors.As(err, &notMapped))

	err = d.StoreU8(4, 0)
	require.Error(t, err)
}

func TestNewDramWithCode(t *testing.T) {
	code := []byte{0x01, 0x02, 0x03, 0x04}
	d := NewDramWithCode(code, 16)
	assert.Equal(t, uint64(16), d.Size())

	data, err := d.Data(0, 16)
	require.NoError(t, err)
	assert.Equal(t, code, data[:4])
	assert.Equal(t, make([]byte, 12), data[4:])
}

func TestDramReset(t *testing.T) {
	d := NewDram(4)
	require.NoError(t, d.StoreU32(0, 0xFFFFFFFF))
	d.Reset()
	v, err := d.LoadU32(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
}

func TestDataRangeCopyIsIndependent(t *testing.T) {
	d := NewDram(8)
	require.NoError(t, d.StoreU8(0, 1))
	data, err := d.Data(0, 8)
	require.NoError(t, err)
	data[0] = 99
	v, _ := d.LoadU8(0)
	assert.Equal(t, uint8(1), v, "Data must return a copy, not a view")
}
