// Package fram provides a TinyGo driver for MB85RC-family I²C FRAM
// (Fujitsu / Cypress-Infineon FM24 compatible parts with two-byte memory
// addressing).
//
// Design notes (datasheet references):
// • Memory address is sent MSB first after the device address; reads use a
//   write of the two address bytes followed by a repeated-start read.
// • MB85RC1M carries address bit 16 in bit 0 of the device address.
// • Device ID is read from the reserved address 0xF8 (7-bit 0x7C) by writing
//   the device's own address byte then reading three bytes.
// • No page boundaries or write delays: FRAM writes complete at bus speed.
//
// Transfers are split into chunks so that the driver only needs a fixed
// buffer and never crosses the 64 KiB bank boundary in one transaction.
package fram

import (
	"errors"

	"tinygo.org/x/drivers"
)

// I2C addresses.
const (
	Address   = 0x50 // A2..A0 low
	AddressID = 0x7C // reserved slave ID address (0xF8 >> 1)
)

// JEDEC-ish manufacturer IDs returned by the ID read.
const (
	ManufacturerFujitsu = 0x00A
	ManufacturerCypress = 0x004
)

const (
	maxChunk  = 32
	bankSize  = 0x10000
	addrBytes = 2
)

// Errors returned by the driver.
var (
	ErrNotConnected = errors.New("fram: not connected")
	ErrOutOfRange   = errors.New("fram: address out of range")
	ErrUnknownSize  = errors.New("fram: unknown size")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x50 if zero.
	Address uint16
	// Size in bytes. Zero means detect from the device ID.
	Size uint32
	// ChunkSize bounds bytes per bus transaction. Default and max 32.
	ChunkSize int
}

// ID is the decoded device ID.
type ID struct {
	Manufacturer uint16 // 12 bits
	Product      uint16 // 12 bits
}

// Density is the size code held in the upper nibble of the product ID.
func (id ID) Density() uint8 { return uint8(id.Product>>8) & 0x0F }

// SizeBytes maps the density code to the array size (density 3 = 8 KiB).
func (id ID) SizeBytes() uint32 {
	d := id.Density()
	if d == 0 || d > 7 {
		return 0
	}
	return 1024 << d
}

// Known reports whether the manufacturer is one the driver was tested with.
func (id ID) Known() bool {
	return id.Manufacturer == ManufacturerFujitsu || id.Manufacturer == ManufacturerCypress
}

// Device wraps an I2C connection to a FRAM chip.
type Device struct {
	bus     drivers.I2C
	Address uint16

	size  uint32
	chunk int

	// reuse buffers to avoid allocations
	w [addrBytes + maxChunk]byte
	r [3]byte
}

// New creates a new FRAM connection. The I2C bus must already be configured.
// This function only creates the Device object; it does not touch the device.
func New(bus drivers.I2C) *Device {
	return &Device{
		bus:     bus,
		Address: Address,
		chunk:   maxChunk,
	}
}

// Configure applies cfg and, when no size is given, reads the device ID to
// find it.
func (d *Device) Configure(cfg Config) error {
	if cfg.Address != 0 {
		d.Address = cfg.Address
	}
	d.chunk = maxChunk
	if cfg.ChunkSize > 0 && cfg.ChunkSize < maxChunk {
		d.chunk = cfg.ChunkSize
	}
	if cfg.Size != 0 {
		d.size = cfg.Size
		return nil
	}
	id, err := d.ReadID()
	if err != nil {
		return err
	}
	if d.size = id.SizeBytes(); d.size == 0 {
		return ErrUnknownSize
	}
	return nil
}

// ReadID reads and decodes the three ID bytes.
func (d *Device) ReadID() (ID, error) {
	d.w[0] = byte(d.Address << 1)
	if err := d.bus.Tx(AddressID, d.w[:1], d.r[:3]); err != nil {
		return ID{}, err
	}
	return ID{
		Manufacturer: uint16(d.r[0])<<4 | uint16(d.r[1])>>4,
		Product:      uint16(d.r[1]&0x0F)<<8 | uint16(d.r[2]),
	}, nil
}

// IsConnected checks the chip by loading its address pointer with zero.
func (d *Device) IsConnected() bool {
	d.w[0], d.w[1] = 0, 0
	return d.bus.Tx(d.Address, d.w[:addrBytes], nil) == nil
}

// Size returns the configured or detected size in bytes (0 before Configure).
func (d *Device) Size() uint32 { return d.size }

// ReadAt fills p from the array starting at addr.
func (d *Device) ReadAt(addr uint32, p []byte) error {
	if err := d.check(addr, len(p)); err != nil {
		return err
	}
	for len(p) > 0 {
		n := d.span(addr, len(p))
		d.setAddr(addr)
		if err := d.bus.Tx(d.devAddr(addr), d.w[:addrBytes], p[:n]); err != nil {
			return err
		}
		addr += uint32(n)
		p = p[n:]
	}
	return nil
}

// WriteAt stores p into the array starting at addr.
func (d *Device) WriteAt(addr uint32, p []byte) error {
	if err := d.check(addr, len(p)); err != nil {
		return err
	}
	for len(p) > 0 {
		n := d.span(addr, len(p))
		d.setAddr(addr)
		copy(d.w[addrBytes:], p[:n])
		if err := d.bus.Tx(d.devAddr(addr), d.w[:addrBytes+n], nil); err != nil {
			return err
		}
		addr += uint32(n)
		p = p[n:]
	}
	return nil
}

// Read32 reads a little-endian uint32 at addr.
func (d *Device) Read32(addr uint32) (uint32, error) {
	var b [4]byte
	if err := d.ReadAt(addr, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// Write32 writes v little-endian at addr.
func (d *Device) Write32(addr uint32, v uint32) error {
	b := [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	return d.WriteAt(addr, b[:])
}

func (d *Device) check(addr uint32, n int) error {
	if d.size == 0 {
		return ErrUnknownSize
	}
	if uint64(addr)+uint64(n) > uint64(d.size) {
		return ErrOutOfRange
	}
	return nil
}

// span returns how many bytes the next transaction may carry.
func (d *Device) span(addr uint32, n int) int {
	if n > d.chunk {
		n = d.chunk
	}
	if left := bankSize - int(addr%bankSize); n > left {
		n = left
	}
	return n
}

func (d *Device) setAddr(addr uint32) {
	d.w[0] = byte(addr >> 8)
	d.w[1] = byte(addr)
}

func (d *Device) devAddr(addr uint32) uint16 {
	return d.Address | uint16(addr>>16)&0x01
}
