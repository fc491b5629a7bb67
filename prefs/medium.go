package prefs

import "errors"

// Medium is the byte-addressable storage the pool lives on. *fram.Device
// satisfies it.
type Medium interface {
	ReadAt(addr uint32, p []byte) error
	WriteAt(addr uint32, p []byte) error
	// Size in bytes; 0 if unknown.
	Size() uint32
}

var (
	ErrPowerCut   = errors.New("prefs: power cut")
	ErrOutOfRange = errors.New("prefs: address out of range")
)

// Memory is an in-RAM Medium. CutAfter arms a simulated power failure:
// once the byte budget is spent, the remaining bytes of the write are lost
// and every later write fails until Restore.
type Memory struct {
	data   []byte
	budget int // -1 = unlimited

	Writes  int // WriteAt calls
	Written int // bytes persisted
}

func NewMemory(size int) *Memory {
	return &Memory{data: make([]byte, size), budget: -1}
}

// NewMemoryFrom wraps a copy of image.
func NewMemoryFrom(image []byte) *Memory {
	return &Memory{data: append([]byte(nil), image...), budget: -1}
}

func (m *Memory) Size() uint32 { return uint32(len(m.data)) }

func (m *Memory) ReadAt(addr uint32, p []byte) error {
	if uint64(addr)+uint64(len(p)) > uint64(len(m.data)) {
		return ErrOutOfRange
	}
	copy(p, m.data[addr:])
	return nil
}

func (m *Memory) WriteAt(addr uint32, p []byte) error {
	if uint64(addr)+uint64(len(p)) > uint64(len(m.data)) {
		return ErrOutOfRange
	}
	m.Writes++
	n := len(p)
	if m.budget >= 0 && n > m.budget {
		n = m.budget
	}
	copy(m.data[addr:], p[:n])
	m.Written += n
	if m.budget >= 0 {
		m.budget -= n
		if n < len(p) {
			return ErrPowerCut
		}
	}
	return nil
}

// CutAfter lets n more bytes reach the medium, then fails writes.
func (m *Memory) CutAfter(n int) { m.budget = n }

// Restore powers the medium back up.
func (m *Memory) Restore() { m.budget = -1 }

// Bytes exposes the backing array (not a copy).
func (m *Memory) Bytes() []byte { return m.data }
