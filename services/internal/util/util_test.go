package util

import (
	"testing"
	"time"
)

func TestDecodeJSON(t *testing.T) {
	type P struct {
		Key  uint32 `json:"key"`
		Data []byte `json:"data"`
	}

	for name, in := range map[string]any{
		"bytes":  []byte(`{"key":4097,"data":"3q2+7w=="}`),
		"string": `{"key":4097,"data":"3q2+7w=="}`,
		"map":    map[string]any{"key": 4097, "data": "3q2+7w=="},
		"typed":  P{Key: 4097, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
	} {
		var p P
		if err := DecodeJSON(in, &p); err != nil {
			t.Fatalf("%s: decode failed: %v", name, err)
		}
		if p.Key != 0x1001 || len(p.Data) != 4 || p.Data[0] != 0xDE {
			t.Fatalf("%s: unexpected result: %+v", name, p)
		}
	}

	var p struct{ Key uint32 }
	if err := DecodeJSON(make(chan int), &p); err == nil {
		t.Fatal("expected error for unmarshalable payload")
	}
}

func TestResetAndDrainTimer(t *testing.T) {
	tm := time.NewTimer(time.Hour)
	if !tm.Stop() {
		DrainTimer(tm)
	}
	ResetTimer(tm, 1*time.Millisecond)
	select {
	case <-tm.C:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("timer did not fire after ResetTimer")
	}
	// Negative reset clamps to zero and should fire immediately.
	ResetTimer(tm, -1)
	select {
	case <-tm.C:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("timer did not fire after negative ResetTimer")
	}
}
