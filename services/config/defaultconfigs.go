package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

// Pico with an MB85RC256V (32 KiB) on I2C0. The pool takes the first 4 KiB;
// static prefs sit above it.
const cfgPico = `{
  "frampref": {
    "fram": "fram0",
    "pool_start": 0,
    "pool_size": 4096,
    "high_water_pct": 80,
    "sync_interval_ms": 1000,
    "static": [
      {"name": "wifi_creds", "addr": 8192, "size": 98, "key": 2813452041, "persist_key": true},
      {"name": "boot_count", "addr": 8320, "size": 6, "key": 1165617470}
    ]
  },
  "heartbeat": {"interval": 10}
}`

// Pico with an MB85RC64TA (8 KiB): pool only.
const cfgPicoSmall = `{
  "frampref": {
    "fram": "fram0",
    "pool_size": 2048,
    "defer_writes": true
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico":       []byte(cfgPico),
	"pico-small": []byte(cfgPicoSmall),
}
