package frampref

import (
	"frampref-go/prefs"
	"frampref-go/x/conv"
)

// DumpConfig logs the pool layout and the state of every pref.
func (c *Component) DumpConfig() {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Configf("FRAM_PREF:")
	if c.check() != nil {
		return
	}
	size := c.chip.Size()

	if n := c.cfg.PoolSize; n > 0 {
		end := c.cfg.PoolStart + n
		log.Configf("  Pool: %d bytes (%d-%d)", n, c.cfg.PoolStart, end-1)
		if end > size {
			log.Errorf("  * Does not fit in FRAM (0-%d)!", size-1)
		}
		if c.store != nil {
			if c.store.Cleared() {
				log.Infof("  Pool was cleared")
			}
			st := c.store.Stats()
			log.Configf("  Pool: %d bytes used, %d live, %d stale, %d records",
				prefs.HeaderSize+st.Used, st.Live, st.Stale, st.Records)
		}
	}

	for _, sp := range c.statics {
		msg := "  Pref: key: " + sp.Name
		if sp.PersistKey {
			msg += ", persist_key"
		}
		if sp.Size > 0 {
			msg += ", addr: " + num(sp.Addr) + "-" + num(sp.Addr+uint32(sp.Size)-1)
		}
		c.dumpPref(msg, sp.Size == 0, sp.sizeReq, sp.flags, size)
	}
	for _, pp := range c.pool {
		msg := "  Pref: key: " + conv.Key(pp.key) + ", pool"
		c.dumpPref(msg, false, pp.sizeReq, pp.flags, size)
	}
}

func (c *Component) dumpPref(msg string, ignored bool, sizeReq uint16, flags Flags, size uint32) {
	if sizeReq > 0 {
		msg += ", request size: " + num(uint32(sizeReq))
	}
	switch {
	case ignored:
		log.Warnf("%s", msg)
	case flags != 0:
		log.Errorf("%s", msg)
		if flags&ErrSizeReq != 0 {
			log.Errorf("  * Requested larger size!")
		}
		if flags&ErrSizeFRAM != 0 {
			log.Errorf("  * Does not fit in FRAM (0-%d)!", size-1)
		}
		if flags&ErrSizePool != 0 {
			log.Errorf("  * Does not fit in pool!")
		}
	default:
		log.Debugf("%s", msg)
	}
}

func num(v uint32) string {
	var b [10]byte
	return string(conv.Utoa(b[:], uint64(v)))
}
