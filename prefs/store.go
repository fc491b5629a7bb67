// Package prefs is a power-safe key/value store for small preference
// records kept in a fixed pool of FRAM.
//
// Records are appended to a log inside the pool; an in-memory index built by
// a boot scan maps keys to their latest record. Superseded records are marked
// stale and reclaimed by compaction, which slides live records towards the
// start of the log under a ping-pong journal so a power cut at any byte
// leaves either the old or the new state on the medium.
//
// A Store is not safe for concurrent use.
package prefs

import (
	"bytes"
	"slices"

	"frampref-go/errcode"
	"frampref-go/x/mathx"
)

// State of a Store.
type State uint8

const (
	Uninitialized State = iota
	Scanning
	Ready
	Compacting
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Ready:
		return "ready"
	case Compacting:
		return "compacting"
	default:
		return "uninitialized"
	}
}

// Pool limits.
const (
	MinPoolSize  = 9
	MaxPoolSize  = 65535
	MaxPoolStart = 65535

	DefaultSignature    = 0x46505245 // "FPRE"
	DefaultHighWaterPct = 80
)

// Config describes the pool. Zero values select defaults where noted.
type Config struct {
	PoolStart uint32
	PoolSize  uint32
	// Signature identifies the pool contents. A mismatch on Init formats the
	// pool; pass a build hash to drop preferences on firmware change.
	// 0 selects DefaultSignature.
	Signature uint32
	// HighWaterPct is the log occupancy above which Commit compacts.
	// 0 selects DefaultHighWaterPct.
	HighWaterPct uint8
	// DeferWrites stages Put in RAM until Commit.
	DeferWrites bool
}

func DefaultConfig() Config {
	return Config{
		PoolSize:     1024,
		Signature:    DefaultSignature,
		HighWaterPct: DefaultHighWaterPct,
	}
}

// Validate checks the ranges the pool layout can address.
func (c Config) Validate() error {
	if !mathx.Between[uint32](c.PoolSize, MinPoolSize, MaxPoolSize) {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "pool_size must be 9..65535"}
	}
	if c.PoolStart > MaxPoolStart {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "pool_start must be 0..65535"}
	}
	if c.HighWaterPct > 100 {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "high_water_pct must be 0..100"}
	}
	return nil
}

type entry struct {
	off uint32 // pool offset of the record
	n   uint16 // payload length
}

func (e entry) size() uint32 { return RecordOverhead + uint32(e.n) }

type staged struct {
	key  uint32
	data []byte
}

// Stats summarises pool usage in bytes.
type Stats struct {
	Capacity uint32 // bytes available to records
	Used     uint32 // log length, live + stale
	Live     uint32
	Stale    uint32
	Free     uint32
	Records  int
	Staged   int
}

// Occupancy is Used as a percentage of Capacity.
func (s Stats) Occupancy() int {
	return mathx.Percent(s.Used, s.Capacity)
}

type Store struct {
	m     Medium
	cfg   Config
	base  uint32 // absolute pool start
	size  uint32 // pool size
	sig   uint32 // on-medium signature
	state State

	index map[uint32]entry
	tail  uint32 // pool offset of the end marker / next append
	live  uint32
	stale uint32

	jseq  uint8 // newest journal sequence on the medium
	jnext int   // slot to write next

	cleared bool
	pending []staged

	hdr   [recHeader]byte
	crc   [recTrail]byte
	slot  [slotSize]byte
	chunk [32]byte
	tmp   []byte
}

// New validates cfg against m and returns an Uninitialized store.
func New(m Medium, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Signature == 0 {
		cfg.Signature = DefaultSignature
	}
	if cfg.HighWaterPct == 0 {
		cfg.HighWaterPct = DefaultHighWaterPct
	}
	if sz := m.Size(); sz != 0 && cfg.PoolStart+cfg.PoolSize > sz {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "new", Msg: "pool does not fit in medium"}
	}
	if cfg.PoolSize < HeaderSize+1 {
		return nil, &errcode.E{C: errcode.PoolTooSmall, Op: "new"}
	}
	return &Store{
		m:     m,
		cfg:   cfg,
		base:  cfg.PoolStart,
		size:  cfg.PoolSize,
		sig:   poolSignature(cfg.Signature, cfg.PoolSize),
		index: map[uint32]entry{},
	}, nil
}

// Open is New followed by Init.
func Open(m Medium, cfg Config) (*Store, error) {
	s, err := New(m, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Init checks the pool signature (formatting on mismatch), finishes any
// interrupted compaction and scans the log into the index.
func (s *Store) Init() error {
	s.state = Scanning
	if err := s.boot(); err != nil {
		s.state = Uninitialized
		return err
	}
	s.state = Ready
	return nil
}

func (s *Store) State() State   { return s.state }
func (s *Store) Config() Config { return s.cfg }
func (s *Store) Cleared() bool  { return s.cleared }

// MaxPayload is the largest payload the pool accepts. An update appends the
// new record before the old one goes stale, so two records of this size
// must fit in the log together.
func (s *Store) MaxPayload() int {
	half := (s.size - logStart) / 2
	if half < RecordOverhead {
		return 0
	}
	return int(half - RecordOverhead)
}

func (s *Store) ready() error {
	if s.state != Ready {
		return errcode.NotReady
	}
	return nil
}

// Get copies the payload stored under key into buf. A missing key, a
// length different from len(buf) or a checksum failure all report NotFound
// and leave buf untouched.
func (s *Store) Get(key uint32, buf []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	if i := s.stagedIndex(key); i >= 0 {
		if len(s.pending[i].data) != len(buf) {
			return errcode.NotFound
		}
		copy(buf, s.pending[i].data)
		return nil
	}
	e, ok := s.index[key]
	if !ok || int(e.n) != len(buf) {
		return errcode.NotFound
	}
	p, err := s.readPayload(key, e)
	if err != nil {
		return err
	}
	copy(buf, p)
	return nil
}

// Has reports whether key has a record (or a staged write).
func (s *Store) Has(key uint32) bool {
	_, ok := s.Len(key)
	return ok
}

// Len returns the stored payload length for key.
func (s *Store) Len(key uint32) (int, bool) {
	if i := s.stagedIndex(key); i >= 0 {
		return len(s.pending[i].data), true
	}
	e, ok := s.index[key]
	return int(e.n), ok
}

// Put stores data under key. With DeferWrites the data is staged and
// written by Commit.
func (s *Store) Put(key uint32, data []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(data) > s.MaxPayload() {
		return &errcode.E{C: errcode.OutOfSpace, Op: "put", Msg: "payload larger than half the pool"}
	}
	if s.cfg.DeferWrites {
		s.stage(key, data)
		return nil
	}
	return s.write(key, data)
}

// Delete marks the record for key stale.
func (s *Store) Delete(key uint32) error {
	if err := s.ready(); err != nil {
		return err
	}
	dropped := false
	if i := s.stagedIndex(key); i >= 0 {
		s.pending = slices.Delete(s.pending, i, i+1)
		dropped = true
	}
	e, ok := s.index[key]
	if !ok {
		if dropped {
			return nil
		}
		return errcode.NotFound
	}
	if err := s.markStale(e); err != nil {
		return err
	}
	delete(s.index, key)
	return nil
}

// Commit writes staged data and compacts once the log is above the
// high-water mark and holds stale records. It does no I/O when neither
// applies.
func (s *Store) Commit() error {
	if err := s.ready(); err != nil {
		return err
	}
	for len(s.pending) > 0 {
		p := s.pending[0]
		if err := s.write(p.key, p.data); err != nil {
			return err
		}
		s.pending = s.pending[1:]
	}
	s.pending = nil
	if s.stale > 0 && s.overHighWater() {
		return s.Compact()
	}
	return nil
}

func (s *Store) overHighWater() bool {
	used := uint64(s.tail - logStart)
	return used*100 > uint64(s.size-logStart)*uint64(s.cfg.HighWaterPct)
}

// Compact reclaims stale records now.
func (s *Store) Compact() error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.compact()
}

// Reset drops every record. The signature is cleared first so a power cut
// part way through leaves a pool that formats on the next Init.
func (s *Store) Reset() error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.write32(sigOff, 0); err != nil {
		return err
	}
	if err := s.truncate(); err != nil {
		return err
	}
	if err := s.write32(sigOff, s.sig); err != nil {
		return err
	}
	s.pending = nil
	return nil
}

// Keys returns every stored or staged key in ascending order.
func (s *Store) Keys() []uint32 {
	keys := make([]uint32, 0, len(s.index)+len(s.pending))
	for k := range s.index {
		keys = append(keys, k)
	}
	for _, p := range s.pending {
		if _, ok := s.index[p.key]; !ok {
			keys = append(keys, p.key)
		}
	}
	slices.Sort(keys)
	return keys
}

func (s *Store) Stats() Stats {
	return Stats{
		Capacity: s.size - logStart,
		Used:     s.tail - logStart,
		Live:     s.live,
		Stale:    s.stale,
		Free:     s.size - s.tail,
		Records:  len(s.index),
		Staged:   len(s.pending),
	}
}

// ---- write path ----

func (s *Store) write(key uint32, data []byte) error {
	if e, ok := s.index[key]; ok && int(e.n) == len(data) {
		if p, err := s.readPayload(key, e); err == nil && bytes.Equal(p, data) {
			return nil
		} else if err != nil && errcode.Of(err) == errcode.IOFailure {
			return err
		}
	}
	need := RecordOverhead + uint32(len(data))
	if s.tail+need > s.size {
		if logStart+s.live+need > s.size {
			return &errcode.E{C: errcode.OutOfSpace, Op: "put"}
		}
		if err := s.compact(); err != nil {
			return err
		}
	}
	prev, had := s.index[key]
	off := s.tail
	if err := s.appendRecord(off, key, data); err != nil {
		return err
	}
	s.index[key] = entry{off: off, n: uint16(len(data))}
	s.tail += need
	s.live += need
	if had {
		return s.markStale(prev)
	}
	return nil
}

// appendRecord writes body, trailing end marker and finally the state byte.
func (s *Store) appendRecord(off, key uint32, data []byte) error {
	putHeader(s.hdr[:], header{state: stateLive, key: key, n: uint16(len(data))})
	le.PutUint32(s.crc[:], payloadCRC(s.hdr[:], data))

	if err := s.writeAt(off+1, s.hdr[1:]); err != nil {
		return err
	}
	if err := s.writeAt(off+recHeader, data); err != nil {
		return err
	}
	end := off + recHeader + uint32(len(data))
	if err := s.writeAt(end, s.crc[:]); err != nil {
		return err
	}
	if end += recTrail; end < s.size {
		if err := s.writeAt(end, []byte{stateEnd}); err != nil {
			return err
		}
	}
	return s.writeAt(off, s.hdr[:1])
}

func (s *Store) markStale(e entry) error {
	if err := s.writeAt(e.off, []byte{stateStale}); err != nil {
		return err
	}
	s.live -= e.size()
	s.stale += e.size()
	return nil
}

func (s *Store) stage(key uint32, data []byte) {
	cp := append([]byte(nil), data...)
	if i := s.stagedIndex(key); i >= 0 {
		s.pending[i].data = cp
		return
	}
	s.pending = append(s.pending, staged{key: key, data: cp})
}

func (s *Store) stagedIndex(key uint32) int {
	for i := range s.pending {
		if s.pending[i].key == key {
			return i
		}
	}
	return -1
}

// readPayload reads and verifies the payload of e into s.tmp.
func (s *Store) readPayload(key uint32, e entry) ([]byte, error) {
	if cap(s.tmp) < int(e.n) {
		s.tmp = make([]byte, e.n)
	}
	p := s.tmp[:e.n]
	if err := s.readAt(e.off+recHeader, p); err != nil {
		return nil, err
	}
	if err := s.readAt(e.off+recHeader+uint32(e.n), s.crc[:]); err != nil {
		return nil, err
	}
	var h [recHeader]byte
	putHeader(h[:], header{state: stateLive, key: key, n: e.n})
	if le.Uint32(s.crc[:]) != payloadCRC(h[:], p) {
		return nil, errcode.NotFound
	}
	return p, nil
}

// ---- medium helpers (pool-relative) ----

func (s *Store) readAt(off uint32, p []byte) error {
	return errcode.IO("read", s.m.ReadAt(s.base+off, p))
}

func (s *Store) writeAt(off uint32, p []byte) error {
	return errcode.IO("write", s.m.WriteAt(s.base+off, p))
}

func (s *Store) read32(off uint32) (uint32, error) {
	var b [4]byte
	if err := s.readAt(off, b[:]); err != nil {
		return 0, err
	}
	return le.Uint32(b[:]), nil
}

func (s *Store) write32(off, v uint32) error {
	var b [4]byte
	le.PutUint32(b[:], v)
	return s.writeAt(off, b[:])
}
