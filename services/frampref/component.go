// Package frampref binds one FRAM chip to a preferences pool and exposes it
// as the global preferences backend.
//
// Two kinds of preference are served. Static prefs sit at fixed chip
// addresses chosen in the config and store payload + a 16-bit additive
// checksum. Every other key goes to the pool, a power-safe record log
// managed by package prefs.
package frampref

import (
	"sync"

	"frampref-go/errcode"
	"frampref-go/preferences"
	"frampref-go/prefs"
	"frampref-go/x/logx"
)

var log = logx.New("fram_pref")

// Chip is the FRAM device the component drives. *fram.Device satisfies it.
type Chip interface {
	prefs.Medium
	IsConnected() bool
}

// Flags record why a static pref cannot be served.
type Flags uint8

const (
	ErrSizeReq  Flags = 1 << iota // requested length does not fit the slot
	ErrSizeFRAM                   // slot runs past the end of the chip
	ErrSizePool                   // pool pref larger than the pool can hold
)

type static struct {
	StaticPref
	sizeReq uint16
	flags   Flags
}

type poolPref struct {
	key     uint32
	sizeReq uint16
	flags   Flags
}

type Component struct {
	mu   sync.Mutex
	chip Chip
	cfg  Config

	store   *prefs.Store
	statics []static
	byKey   map[uint32]int
	pool    []poolPref
	prev    preferences.Preferences
	failed  bool
	started bool
}

var (
	_ preferences.Component   = (*Component)(nil)
	_ preferences.Preferences = (*Component)(nil)
)

func New(chip Chip, cfg Config) *Component {
	c := &Component{chip: chip, cfg: cfg, byKey: map[uint32]int{}}
	for _, sp := range cfg.Static {
		c.statics = append(c.statics, static{StaticPref: sp})
	}
	return c
}

// Setup checks the chip, opens the pool and installs the component as the
// global preferences. A bad config or chip leaves the component failed,
// handing out only invalid objects.
func (c *Component) Setup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.cfg.Validate(); err != nil {
		c.failed = true
		return err
	}
	if err := c.check(); err != nil {
		c.failed = true
		return err
	}

	size := c.chip.Size()
	for i := range c.statics {
		sp := &c.statics[i]
		if sp.Size > 0 && sp.Addr+uint32(sp.Size) > size {
			sp.flags |= ErrSizeFRAM
		}
		c.byKey[sp.Key] = i
	}

	// A pool that cannot be opened leaves the static prefs in service; pool
	// prefs then come back invalid with ErrSizePool set.
	c.store = nil
	if c.cfg.PoolSize > 0 {
		st, err := prefs.Open(c.chip, c.cfg.storeConfig())
		if err != nil {
			log.Errorf("pool open failed: %v", err)
		} else {
			c.store = st
			if st.Cleared() {
				log.Debugf("Pool cleared!")
			}
		}
	}

	c.failed = false
	if !c.started {
		c.prev = preferences.Install(c)
		c.started = true
	}
	return nil
}

func (c *Component) check() error {
	if c.chip.Size() == 0 {
		log.Errorf("  Device returns 0 size!")
		return &errcode.E{C: errcode.UnknownDevice, Op: "setup", Msg: "device returns 0 size"}
	}
	if !c.chip.IsConnected() {
		log.Errorf("  Device connect failed!")
		return &errcode.E{C: errcode.NotConnected, Op: "setup"}
	}
	return nil
}

// Loop flushes writes staged by deferred pool prefs.
func (c *Component) Loop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil || c.store.Stats().Staged == 0 {
		return
	}
	if err := c.store.Commit(); err != nil {
		log.Warnf("commit: %v", err)
	}
}

// Close flushes the pool and, if the component is still the global
// preferences, puts the previous backend back.
func (c *Component) Close() error {
	err := c.Commit()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started && preferences.Global() == preferences.Preferences(c) {
		preferences.Install(c.prev)
	}
	c.started = false
	c.failed = true
	return err
}

// State of the pool store; Uninitialized when there is none.
func (c *Component) State() prefs.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return prefs.Uninitialized
	}
	return c.store.State()
}

// PoolMissing reports whether a pool is configured but could not be opened.
func (c *Component) PoolMissing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.PoolSize > 0 && c.store == nil
}

// Failed reports whether Setup did not complete.
func (c *Component) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// StaticFlags returns the error flags of the named static pref.
func (c *Component) StaticFlags(name string) (Flags, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sp := range c.statics {
		if sp.Name == name {
			return sp.flags, true
		}
	}
	return 0, false
}

// ---- preferences.Preferences ----

func (c *Component) MakePreference(length int, key uint32) preferences.Object {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failed || !c.started || length < 0 || length > 0xFFFD {
		return preferences.Object{}
	}
	sizeReq := uint16(length) + checksumSize

	if i, ok := c.byKey[key]; ok {
		sp := &c.statics[i]
		sp.sizeReq = sizeReq
		if sp.Size == 0 || sp.flags&ErrSizeFRAM != 0 {
			return preferences.Object{}
		}
		if sp.Size < sizeReq {
			sp.flags |= ErrSizeReq
			return preferences.Object{}
		}
		seed := key
		if sp.PersistKey {
			seed = prefs.KeyOf(sp.Name)
		}
		return preferences.NewObject(&staticBackend{c: c, addr: sp.Addr, n: length, seed: seed})
	}

	var flags Flags
	if c.store == nil || length > c.store.MaxPayload() {
		flags = ErrSizePool
	}
	c.notePool(key, sizeReq, flags)
	if flags != 0 {
		return preferences.Object{}
	}
	return preferences.NewObject(&poolBackend{c: c, key: key, n: length})
}

// notePool records the latest request for a pool key.
func (c *Component) notePool(key uint32, sizeReq uint16, flags Flags) {
	for i := range c.pool {
		if c.pool[i].key == key {
			c.pool[i].sizeReq = sizeReq
			c.pool[i].flags = flags
			return
		}
	}
	c.pool = append(c.pool, poolPref{key: key, sizeReq: sizeReq, flags: flags})
}

// Sync commits the pool and passes the call on to the previous backend.
func (c *Component) Sync() bool {
	ok := c.Commit() == nil
	if c.prev != nil {
		ok = c.prev.Sync() && ok
	}
	return ok
}

// Reset drops every pool record and passes the call on to the previous
// backend. Static prefs are left alone.
func (c *Component) Reset() bool {
	ok := c.ResetPool() == nil
	if c.prev != nil {
		ok = c.prev.Reset() && ok
	}
	return ok
}

// ---- raw pool access (bus front-end, host tools) ----

func (c *Component) poolLocked() (*prefs.Store, error) {
	if c.store == nil {
		return nil, errcode.NotReady
	}
	// A failed compaction leaves the store uninitialised; the journal lets
	// a fresh Init finish it.
	if c.store.State() == prefs.Uninitialized {
		if err := c.store.Init(); err != nil {
			return nil, err
		}
		log.Infof("pool recovered")
	}
	return c.store, nil
}

func (c *Component) Get(key uint32, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.poolLocked()
	if err != nil {
		return err
	}
	return st.Get(key, buf)
}

func (c *Component) Len(key uint32) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return 0, false
	}
	return c.store.Len(key)
}

func (c *Component) Put(key uint32, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.poolLocked()
	if err != nil {
		return err
	}
	return st.Put(key, data)
}

func (c *Component) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	st, err := c.poolLocked()
	if err != nil {
		return err
	}
	return st.Commit()
}

func (c *Component) ResetPool() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	st, err := c.poolLocked()
	if err != nil {
		return err
	}
	return st.Reset()
}

func (c *Component) Stats() (prefs.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.poolLocked()
	if err != nil {
		return prefs.Stats{}, err
	}
	return st.Stats(), nil
}
