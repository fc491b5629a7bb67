package frampref

import (
	"frampref-go/errcode"
	"frampref-go/prefs"
)

// StaticPref reserves a fixed chip range for one preference.
type StaticPref struct {
	Name string `json:"name"`
	Addr uint32 `json:"addr"`
	// Size of the slot in bytes, checksum included. 0 disables the pref.
	Size uint16 `json:"size"`
	// Key is the preference key the firmware asks for.
	Key uint32 `json:"key"`
	// PersistKey seeds the checksum with KeyOf(Name) instead of Key, so the
	// data survives a change of Key.
	PersistKey bool `json:"persist_key"`
}

// Config is the "frampref" device config section.
type Config struct {
	FRAMID         string       `json:"fram"`
	PoolStart      uint32       `json:"pool_start"`
	PoolSize       uint32       `json:"pool_size"` // 0 disables the pool
	Signature      uint32       `json:"signature,omitempty"`
	HighWaterPct   uint8        `json:"high_water_pct,omitempty"`
	DeferWrites    bool         `json:"defer_writes,omitempty"`
	SyncIntervalMS int          `json:"sync_interval_ms,omitempty"`
	Static         []StaticPref `json:"static,omitempty"`
}

const DefaultSyncIntervalMS = 1000

func DefaultConfig() Config {
	return Config{
		FRAMID:         "fram0",
		PoolSize:       1024,
		SyncIntervalMS: DefaultSyncIntervalMS,
	}
}

func (c Config) Validate() error {
	if c.PoolSize != 0 {
		if err := c.storeConfig().Validate(); err != nil {
			return err
		}
	}
	if c.SyncIntervalMS < 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "sync_interval_ms must be >= 0"}
	}
	seen := map[uint32]bool{}
	for _, sp := range c.Static {
		if seen[sp.Key] {
			return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "duplicate static key " + sp.Name}
		}
		seen[sp.Key] = true
	}
	return nil
}

func (c Config) storeConfig() prefs.Config {
	return prefs.Config{
		PoolStart:    c.PoolStart,
		PoolSize:     c.PoolSize,
		Signature:    c.Signature,
		HighWaterPct: c.HighWaterPct,
		DeferWrites:  c.DeferWrites,
	}
}
