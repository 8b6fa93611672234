// Package bus implements the address-mapped device table that sits
// between the CPU and its memory devices. A Bus owns the only
// reference to each device; a CPU owns the only reference to its Bus.
package bus

import (
	"fmt"

	"github.com/riscvemu/riscvemu/internal/memory"
)

// AddressNotMappedError indicates that no entry in the address map
// contains the given absolute address.
type AddressNotMappedError struct {
	Addr uint64
}

func (e *AddressNotMappedError) Error() string {
	return fmt.Sprintf("bus: nothing is mapped at address %#x", e.Addr)
}

// Range is an absolute, half-open address range [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

func (r Range) size() uint64 {
	return r.End - r.Start
}

type entry struct {
	rng Range
	dev memory.Device
}

// Bus is an ordered, immutable list of (range, device) mappings. The
// map is validated once at construction: ranges must be non-empty,
// pairwise disjoint, listed in ascending order, and each device's
// size must cover its range. New panics on a malformed map, the way
// the original Rust bus asserts on construction — a misconfigured
// address map is a programming error, not a runtime condition a
// caller should be handling.
type Bus struct {
	entries []entry
}

// New builds a Bus from the given ranges and devices, in the order
// given. The slices must be the same length and already sorted in
// ascending address order.
func New(ranges []Range, devices []memory.Device) *Bus {
	if len(ranges) != len(devices) {
		panic("bus: ranges and devices must have the same length")
	}
	b := &Bus{entries: make([]entry, 0, len(ranges))}
	var prevEnd uint64
	for i, r := range ranges {
		if r.End <= r.Start {
			panic("bus: address range must be non-empty")
		}
		if i > 0 && r.Start < prevEnd {
			panic("bus: address ranges must be disjoint and ascending")
		}
		if devices[i].Size() < r.size() {
			panic("bus: device is smaller than its declared range")
		}
		b.entries = append(b.entries, entry{rng: r, dev: devices[i]})
		prevEnd = r.End
	}
	return b
}

// Devices reports how many device mappings the bus holds. Diagnostic
// only, printed by the CLI's -v flag.
func (b *Bus) Devices() int {
	return len(b.entries)
}

// lookup performs the linear scan that locates the device containing
// addr and returns the device together with the offset relative to
// its mapping's start. The map is small (1-3 entries in practice) so
// a linear scan, rather than a binary search over the sorted ranges,
// is simpler and not worth optimizing away.
func (b *Bus) lookup(addr uint64) (memory.Device, uint64, error) {
	for _, e := range b.entries {
		if e.rng.contains(addr) {
			return e.dev, addr - e.rng.Start, nil
		}
	}
	return nil, 0, &AddressNotMappedError{Addr: addr}
}

func (b *Bus) LoadU8(addr uint64) (uint8, error) {
	dev, off, err := b.lookup(addr)
	if err != nil {
		return 0, err
	}
	return dev.LoadU8(off)
}

func (b *Bus) LoadU16(addr uint64) (uint16, error) {
	dev, off, err := b.lookup(addr)
	if err != nil {
		return 0, err
	}
	return dev.LoadU16(off)
}

func (b *Bus) LoadU32(addr uint64) (uint32, error) {
	dev, off, err := b.lookup(addr)
	if err != nil {
		return 0, err
	}
	return dev.LoadU32(off)
}

func (b *Bus) LoadU64(addr uint64) (uint64, error) {
	dev, off, err := b.lookup(addr)
	if err != nil {
		return 0, err
	}
	return dev.LoadU64(off)
}

func (b *Bus) StoreU8(addr uint64, v uint8) error {
	dev, off, err := b.lookup(addr)
	if err != nil {
		return err
	}
	return dev.StoreU8(off, v)
}

func (b *Bus) StoreU16(addr uint64, v uint16) error {
	dev, off, err := b.lookup(addr)
	if err != nil {
		return err
	}
	return dev.StoreU16(off, v)
}

func (b *Bus) StoreU32(addr uint64, v uint32) error {
	dev, off, err := b.lookup(addr)
	if err != nil {
		return err
	}
	return dev.StoreU32(off, v)
}

func (b *Bus) StoreU64(addr uint64, v uint64) error {
	dev, off, err := b.lookup(addr)
	if err != nil {
		return err
	}
	return dev.StoreU64(off, v)
}

// Data returns a copy of the bytes in the absolute range [lo, hi),
// which must lie entirely within a single device's mapping.
func (b *Bus) Data(lo, hi uint64) ([]byte, error) {
	dev, off, err := b.lookup(lo)
	if err != nil {
		return nil, err
	}
	return dev.Data(off, off+(hi-lo))
}
