package types

// Payloads on the prefs/... topics. Keys travel as numbers; data as bytes
// (base64 once JSON encoded).

// PrefsState is retained on prefs/state.
type PrefsState struct {
	Level  string `json:"level"`  // "idle", "ready", "error", "stopped"
	Status string `json:"status"` // short machine string
	TS     int64  `json:"ts_ms"`
	Error  string `json:"error,omitempty"`
}

// PrefsGet is the request on prefs/get.
type PrefsGet struct {
	Key uint32 `json:"key"`
	Len int    `json:"len"`
}

type PrefsGetReply struct {
	OK   bool   `json:"ok"`
	Key  uint32 `json:"key"`
	Data []byte `json:"data"`
}

// PrefsPut is the request on prefs/put.
type PrefsPut struct {
	Key  uint32 `json:"key"`
	Data []byte `json:"data"`
}

// PrefsStats is the reply on prefs/stats.
type PrefsStats struct {
	OK        bool   `json:"ok"`
	Capacity  uint32 `json:"capacity"`
	Used      uint32 `json:"used"`
	Live      uint32 `json:"live"`
	Stale     uint32 `json:"stale"`
	Free      uint32 `json:"free"`
	Records   int    `json:"records"`
	Staged    int    `json:"staged"`
	Occupancy int    `json:"occupancy_pct"`
	State     string `json:"state"`
}
