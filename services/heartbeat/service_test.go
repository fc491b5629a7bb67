package heartbeat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"frampref-go/bus"
	"frampref-go/types"
	"frampref-go/x/logx"
)

func TestInterval(t *testing.T) {
	cases := []struct {
		in   any
		want time.Duration
		ok   bool
	}{
		{map[string]any{"interval": 2.0}, 2 * time.Second, true},
		{map[string]any{"interval": json.Number("0.5")}, 500 * time.Millisecond, true},
		{map[string]any{"interval": 0.0}, 0, false},
		{map[string]any{"interval": "x"}, 0, false},
		{"nope", 0, false},
	}
	for _, c := range cases {
		got, ok := interval(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("interval(%#v) = %v, %v", c.in, got, ok)
		}
	}
}

type syncBuf struct {
	ch chan string
}

func (b syncBuf) Write(p []byte) (int, error) {
	select {
	case b.ch <- string(p):
	default:
	}
	return len(p), nil
}

func TestBeatLogsPoolStats(t *testing.T) {
	out := syncBuf{ch: make(chan string, 16)}
	logx.SetOutput(out)
	t.Cleanup(func() { logx.SetOutput(nil) })

	b := bus.NewBus(8)
	hb := b.NewConnection("heartbeat")
	prefs := b.NewConnection("prefs")

	req := prefs.Subscribe(topicPrefsStats)
	go func() {
		for m := range req.Channel() {
			prefs.Reply(m, types.PrefsStats{OK: true, Occupancy: 42, Records: 3, State: "ready"}, false)
		}
	}()
	t.Cleanup(func() { prefs.Unsubscribe(req) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	(&Service{}).Start(ctx, hb)
	hb.Publish(hb.NewMessage(topicConfigHeartbeat, map[string]any{"interval": 0.05}, true))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-out.ch:
			if strings.Contains(line, "pool 42% used, 3 records") {
				return
			}
		case <-deadline:
			t.Fatal("no stats heartbeat logged")
		}
	}
}
