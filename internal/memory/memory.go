// Package memory implements the byte-addressable devices that sit
// behind the bus: currently a single DRAM device, loaded with the
// guest binary and zero-filled past it.
package memory

import (
	"encoding/binary"
	"fmt"
)

// AddressNotMappedError indicates that an access fell outside a
// device's declared size. The address is relative to the device,
// not the absolute bus address; the bus passes this error to its
// caller unchanged, so the address stays device-relative.
type AddressNotMappedError struct {
	Addr uint64
}

func (e *AddressNotMappedError) Error() string {
	return fmt.Sprintf("memory: address %#x is not mapped", e.Addr)
}

// Device is a byte-addressable block of memory with a typed
// load/store surface. Sign-extension is the caller's responsibility:
// a device never sign-extends on load, it only returns the raw bytes
// reinterpreted as the requested width.
type Device interface {
	Size() uint64

	LoadU8(addr uint64) (uint8, error)
	LoadU16(addr uint64) (uint16, error)
	LoadU32(addr uint64) (uint32, error)
	LoadU64(addr uint64) (uint64, error)

	StoreU8(addr uint64, v uint8) error
	StoreU16(addr uint64, v uint16) error
	StoreU32(addr uint64, v uint32) error
	StoreU64(addr uint64, v uint64) error

	// Data returns a copy of the bytes in [lo, hi).
	Data(lo, hi uint64) ([]byte, error)
}

// Dram is a flat, little-endian byte array backing the main memory
// mapping. The zero value is not usable; construct with NewDram or
// NewDramWithCode.
type Dram struct {
	bytes []byte
}

// NewDram allocates a zero-filled DRAM device of the given size.
func NewDram(size uint64) *Dram {
	return &Dram{bytes: make([]byte, size)}
}

// NewDramWithCode allocates a DRAM device of the given size, copies
// code into its prefix, and zero-fills the remainder.
func NewDramWithCode(code []byte, size uint64) *Dram {
	d := NewDram(size)
	copy(d.bytes, code)
	return d
}

// Reset zero-fills the entire device. Host callers that want to
// re-run a binary without reallocating DRAM can reload the code and
// call Reset first; the CPU package does not call this itself.
func (d *Dram) Reset() {
	for i := range d.bytes {
		d.bytes[i] = 0
	}
}

func (d *Dram) Size() uint64 { return uint64(len(d.bytes)) }

func (d *Dram) checkRange(addr, size uint64) error {
	if addr+size > d.Size() || addr+size < addr {
		return &AddressNotMappedError{Addr: addr + size - 1}
	}
	return nil
}

func (d *Dram) LoadU8(addr uint64) (uint8, error) {
	if err := d.checkRange(addr, 1); err != nil {
		return 0, err
	}
	return d.bytes[addr], nil
}

func (d *Dram) LoadU16(addr uint64) (uint16, error) {
	if err := d.checkRange(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(d.bytes[addr:]), nil
}

func (d *Dram) LoadU32(addr uint64) (uint32, error) {
	if err := d.checkRange(addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(d.bytes[addr:]), nil
}

func (d *Dram) LoadU64(addr uint64) (uint64, error) {
	if err := d.checkRange(addr, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(d.bytes[addr:]), nil
}

func (d *Dram) StoreU8(addr uint64, v uint8) error {
	if err := d.checkRange(addr, 1); err != nil {
		return err
	}
	d.bytes[addr] = v
	return nil
}

func (d *Dram) StoreU16(addr uint64, v uint16) error {
	if err := d.checkRange(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(d.bytes[addr:], v)
	return nil
}

func (d *Dram) StoreU32(addr uint64, v uint32) error {
	if err := d.checkRange(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(d.bytes[addr:], v)
	return nil
}

func (d *Dram) StoreU64(addr uint64, v uint64) error {
	if err := d.checkRange(addr, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(d.bytes[addr:], v)
	return nil
}

func (d *Dram) Data(lo, hi uint64) ([]byte, error) {
	if hi < lo || hi > d.Size() {
		return nil, &AddressNotMappedError{Addr: hi}
	}
	out := make([]byte, hi-lo)
	copy(out, d.bytes[lo:hi])
	return out, nil
}

var _ Device = (*Dram)(nil)
