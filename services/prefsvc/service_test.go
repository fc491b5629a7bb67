package prefsvc

import (
	"bytes"
	"context"
	"testing"
	"time"

	"frampref-go/bus"
	"frampref-go/preferences"
	"frampref-go/prefs"
	"frampref-go/types"
)

type fakeChip struct {
	*prefs.Memory
}

func (fakeChip) IsConnected() bool { return true }

type harness struct {
	b     *bus.Bus
	c     *bus.Connection
	state *bus.Subscription
	chip  fakeChip
}

func start(t *testing.T) *harness {
	t.Helper()
	orig := preferences.Global()
	t.Cleanup(func() { preferences.Install(orig) })

	h := &harness{b: bus.NewBus(32), chip: fakeChip{prefs.NewMemory(8192)}}
	h.c = h.b.NewConnection("client")
	h.state = h.c.Subscribe(topicState)

	ctx, cancel := context.WithCancel(context.Background())
	Start(ctx, h.b.NewConnection("prefsvc"), ChipMap{"fram0": h.chip})
	t.Cleanup(func() {
		cancel()
		h.waitState(t, "stopped")
	})
	h.waitState(t, "idle")
	return h
}

func (h *harness) configure(t *testing.T, cfg map[string]any) {
	t.Helper()
	h.c.Publish(h.c.NewMessage(topicConfig, cfg, true))
}

func (h *harness) waitState(t *testing.T, level string) types.PrefsState {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-h.state.Channel():
			st, ok := m.Payload.(types.PrefsState)
			if !ok {
				t.Fatalf("state payload %T", m.Payload)
			}
			if st.Level == level {
				return st
			}
		case <-deadline:
			t.Fatalf("timeout waiting for state %q", level)
		}
	}
}

func (h *harness) request(t *testing.T, verb string, payload any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	reply, err := h.c.RequestWait(ctx, h.c.NewMessage(bus.Topic{"prefs", verb}, payload, false))
	if err != nil {
		t.Fatalf("%s: %v", verb, err)
	}
	return reply.Payload
}

func expectOK(t *testing.T, p any) {
	t.Helper()
	if r, ok := p.(types.OKReply); !ok || !r.OK {
		t.Fatalf("reply = %#v, want ok", p)
	}
}

func expectErr(t *testing.T, p any, code string) {
	t.Helper()
	r, ok := p.(types.ErrorReply)
	if !ok || r.OK || r.Error != code {
		t.Fatalf("reply = %#v, want error %q", p, code)
	}
}

var defaultPool = map[string]any{"fram": "fram0", "pool_size": 1024}

func TestPutCommitGetOverBus(t *testing.T) {
	h := start(t)
	h.configure(t, defaultPool)
	h.waitState(t, "ready")

	expectOK(t, h.request(t, verbPut, types.PrefsPut{Key: 0x1001, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}))
	expectOK(t, h.request(t, verbCommit, nil))

	got, ok := h.request(t, verbGet, types.PrefsGet{Key: 0x1001, Len: 4}).(types.PrefsGetReply)
	if !ok || !got.OK || !bytes.Equal(got.Data, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("get = %#v", got)
	}

	// Length taken from the record when the request leaves it out.
	got, ok = h.request(t, verbGet, map[string]any{"key": 0x1001}).(types.PrefsGetReply)
	if !ok || len(got.Data) != 4 {
		t.Fatalf("get without len = %#v", got)
	}

	expectErr(t, h.request(t, verbGet, types.PrefsGet{Key: 0x1001, Len: 2}), "not_found")
	expectErr(t, h.request(t, verbGet, types.PrefsGet{Key: 0x9999, Len: 4}), "not_found")

	st, ok := h.request(t, verbStats, nil).(types.PrefsStats)
	if !ok || st.Records != 1 || st.State != "ready" || st.Capacity != 1024-prefs.HeaderSize {
		t.Fatalf("stats = %#v", st)
	}
}

func TestRequestsBeforeConfig(t *testing.T) {
	h := start(t)
	expectErr(t, h.request(t, verbGet, types.PrefsGet{Key: 1, Len: 1}), "not_ready")
	expectErr(t, h.request(t, verbStats, nil), "not_ready")
}

func TestBadRequests(t *testing.T) {
	h := start(t)
	h.configure(t, defaultPool)
	h.waitState(t, "ready")

	expectErr(t, h.request(t, verbPut, "not json"), "invalid_payload")
	expectErr(t, h.request(t, "frobnicate", nil), "unsupported")
	expectErr(t, h.request(t, verbPut, types.PrefsPut{Key: 1, Data: make([]byte, 2000)}), "out_of_space")
}

func TestUnknownChip(t *testing.T) {
	h := start(t)
	h.configure(t, map[string]any{"fram": "nope", "pool_size": 1024})
	st := h.waitState(t, "error")
	if st.Error != "unknown_device" {
		t.Fatalf("state = %#v", st)
	}
}

func TestPoolOutsideChipDegrades(t *testing.T) {
	h := start(t)
	h.configure(t, map[string]any{"fram": "fram0", "pool_start": 7680, "pool_size": 1024})
	st := h.waitState(t, "degraded")
	if st.Status != "pool_unavailable" || st.Error != "not_ready" {
		t.Fatalf("state = %#v", st)
	}
	expectErr(t, h.request(t, verbPut, types.PrefsPut{Key: 1, Data: []byte{1}}), "not_ready")
	expectErr(t, h.request(t, verbStats, nil), "not_ready")
}

func TestResetOverBus(t *testing.T) {
	h := start(t)
	h.configure(t, defaultPool)
	h.waitState(t, "ready")

	expectOK(t, h.request(t, verbPut, types.PrefsPut{Key: 7, Data: []byte{1}}))
	expectOK(t, h.request(t, verbReset, nil))
	expectErr(t, h.request(t, verbGet, types.PrefsGet{Key: 7, Len: 1}), "not_found")
}

func TestFireAndForgetPut(t *testing.T) {
	h := start(t)
	h.configure(t, defaultPool)
	h.waitState(t, "ready")

	h.c.Publish(h.c.NewMessage(bus.Topic{"prefs", verbPut}, types.PrefsPut{Key: 5, Data: []byte{5}}, false))
	got, ok := h.request(t, verbGet, types.PrefsGet{Key: 5, Len: 1}).(types.PrefsGetReply)
	if !ok || got.Data[0] != 5 {
		t.Fatalf("get = %#v", got)
	}
}

func TestSyncTickerCommitsDeferredWrites(t *testing.T) {
	h := start(t)
	h.configure(t, map[string]any{
		"fram":             "fram0",
		"pool_size":        1024,
		"defer_writes":     true,
		"sync_interval_ms": 100,
	})
	h.waitState(t, "ready")

	expectOK(t, h.request(t, verbPut, types.PrefsPut{Key: 0x42, Data: []byte("abc")}))

	deadline := time.Now().Add(2 * time.Second)
	for {
		st := h.request(t, verbStats, nil).(types.PrefsStats)
		if st.Staged == 0 && st.Records == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ticker never committed: %#v", st)
		}
		time.Sleep(20 * time.Millisecond)
	}

	// The record is on the chip, visible to an independent reader.
	s, err := prefs.Open(prefs.NewMemoryFrom(h.chip.Bytes()), prefs.Config{PoolSize: 1024})
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 3)
	if err := s.Get(0x42, buf); err != nil || string(buf) != "abc" {
		t.Fatalf("chip read = %q, %v", buf, err)
	}
}
