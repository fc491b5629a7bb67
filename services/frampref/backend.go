package frampref

import (
	"encoding/binary"
)

const checksumSize = 2

// checksum is the 16-bit additive sum of data, seeded with both halves of
// the key.
func checksum(seed uint32, data []byte) uint16 {
	sum := uint16(seed>>16) + uint16(seed)
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// staticBackend keeps payload + checksum at a fixed chip address.
type staticBackend struct {
	c    *Component
	addr uint32
	n    int
	seed uint32
	buf  []byte
}

func (b *staticBackend) Save(data []byte) bool {
	if len(data) != b.n {
		return false
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if !b.c.chip.IsConnected() {
		return false
	}
	var sum [checksumSize]byte
	binary.LittleEndian.PutUint16(sum[:], checksum(b.seed, data))
	if err := b.c.chip.WriteAt(b.addr, data); err != nil {
		log.Warnf("static write @%d: %v", b.addr, err)
		return false
	}
	if err := b.c.chip.WriteAt(b.addr+uint32(len(data)), sum[:]); err != nil {
		log.Warnf("static write @%d: %v", b.addr, err)
		return false
	}
	return true
}

func (b *staticBackend) Load(data []byte) bool {
	if len(data) != b.n {
		return false
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if !b.c.chip.IsConnected() {
		return false
	}
	if cap(b.buf) < b.n+checksumSize {
		b.buf = make([]byte, b.n+checksumSize)
	}
	buf := b.buf[:b.n+checksumSize]
	if err := b.c.chip.ReadAt(b.addr, buf); err != nil {
		return false
	}
	if checksum(b.seed, buf[:b.n]) != binary.LittleEndian.Uint16(buf[b.n:]) {
		return false
	}
	copy(data, buf[:b.n])
	return true
}

// poolBackend stores one key in the pool.
type poolBackend struct {
	c   *Component
	key uint32
	n   int
}

func (b *poolBackend) Save(data []byte) bool {
	if len(data) != b.n {
		return false
	}
	if err := b.c.Put(b.key, data); err != nil {
		log.Warnf("save %#08x: %v", b.key, err)
		return false
	}
	return true
}

func (b *poolBackend) Load(data []byte) bool {
	if len(data) != b.n {
		return false
	}
	return b.c.Get(b.key, data) == nil
}
