package prefs

import (
	"encoding/binary"
	"hash/crc32"
)

// Pool layout (offsets relative to the pool start, little-endian):
//
//	0   signature   u32
//	4   journal A   14 bytes
//	18  journal B   14 bytes
//	32  log         records until an end marker or the pool end
//
// Record:
//
//	state u8 | key u32 | len u16 | hcrc u16 | payload[len] | pcrc u32
//
// hcrc is the low half of CRC-32 over key|len, pcrc is CRC-32 over
// key|len|payload. The state byte is written last when appending, so a
// record is visible only once everything before it is on the medium.
const (
	sigOff     = 0
	journalOff = 4
	slotSize   = 14
	logStart   = journalOff + 2*slotSize

	// HeaderSize is the fixed pool overhead ahead of the first record.
	HeaderSize = logStart

	recHeader = 9 // state + key + len + hcrc
	recTrail  = 4 // pcrc
	// RecordOverhead is the per-record cost on top of the payload.
	RecordOverhead = recHeader + recTrail
)

// Record states.
const (
	stateEnd   byte = 0x00
	stateLive  byte = 0xA5
	stateStale byte = 0x5A
)

const layoutVersion = 1

var le = binary.LittleEndian

type header struct {
	state byte
	key   uint32
	n     uint16
}

func (h header) size() uint32 { return RecordOverhead + uint32(h.n) }

// putHeader encodes h into b[:recHeader].
func putHeader(b []byte, h header) {
	b[0] = h.state
	le.PutUint32(b[1:], h.key)
	le.PutUint16(b[5:], h.n)
	le.PutUint16(b[7:], uint16(crc32.ChecksumIEEE(b[1:7])))
}

// parseHeader decodes b[:recHeader]; ok is false when the state byte is not
// a record state or hcrc does not match.
func parseHeader(b []byte) (h header, ok bool) {
	h.state = b[0]
	if h.state != stateLive && h.state != stateStale {
		return h, false
	}
	h.key = le.Uint32(b[1:])
	h.n = le.Uint16(b[5:])
	return h, le.Uint16(b[7:]) == uint16(crc32.ChecksumIEEE(b[1:7]))
}

// payloadCRC covers the key/len part of the header plus the payload.
func payloadCRC(hdr []byte, payload []byte) uint32 {
	c := crc32.ChecksumIEEE(hdr[1:7])
	return crc32.Update(c, crc32.IEEETable, payload)
}

// journal records the progress of a compaction so it can be resumed
// after a power cut. read/write are pool offsets of the record being moved,
// size its length and done the bytes already copied.
type journal struct {
	seq    uint8
	active bool
	read   uint16
	write  uint16
	size   uint16
	done   uint16
}

func (j journal) encode(b []byte) {
	b[0] = j.seq
	b[1] = 0
	if j.active {
		b[1] = 1
	}
	le.PutUint16(b[2:], j.read)
	le.PutUint16(b[4:], j.write)
	le.PutUint16(b[6:], j.size)
	le.PutUint16(b[8:], j.done)
	le.PutUint32(b[10:], crc32.ChecksumIEEE(b[:10]))
}

func decodeJournal(b []byte) (journal, bool) {
	if le.Uint32(b[10:]) != crc32.ChecksumIEEE(b[:10]) || b[1] > 1 {
		return journal{}, false
	}
	return journal{
		seq:    b[0],
		active: b[1] == 1,
		read:   le.Uint16(b[2:]),
		write:  le.Uint16(b[4:]),
		size:   le.Uint16(b[6:]),
		done:   le.Uint16(b[8:]),
	}, true
}

// newer reports whether sequence a was written after b, allowing wrap.
func newer(a, b uint8) bool { return int8(a-b) > 0 }

// poolSignature binds the configured signature to the layout and pool size
// so that resizing the pool or changing the format forces a reformat.
func poolSignature(sig, poolSize uint32) uint32 {
	var b [9]byte
	le.PutUint32(b[0:], sig)
	le.PutUint32(b[4:], poolSize)
	b[8] = layoutVersion
	h := fnv1(b[:])
	if h == 0 {
		h = 1
	}
	return h
}
