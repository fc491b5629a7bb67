// config/config_test.go
package config

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"frampref-go/bus"
	"frampref-go/drivers/fram"
	"frampref-go/errcode"
	"frampref-go/services/frampref"
	"frampref-go/services/internal/util"
)

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	// Override lookup for this test.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "pico" {
			return nil, false
		}
		return []byte(`{
			"mode": "dev",
			"debug": true,
			"frampref": {"fram": "fram0", "pool_size": 1024, "signature": 4294967295}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	// Arrange bus and service.
	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService()

	// Start publisher with device ID in context.
	ctx := context.WithValue(context.Background(), CtxDeviceKey, "pico")
	svc.Start(ctx, conn)

	// Subscribe; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.Topic{configPrefix, "#"})

	wantCount := 3 // mode, debug, frampref
	got := map[string]any{}

	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < wantCount && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if m.Topic.Len() != 2 {
				t.Fatalf("unexpected topic length: %#v", m.Topic)
			}
			if prefix, ok := m.Topic.At(0).(string); !ok || prefix != configPrefix {
				t.Fatalf("unexpected prefix: %#v", m.Topic.At(0))
			}
			key, ok := m.Topic.At(1).(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", m.Topic.At(1))
			}
			got[key] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != wantCount {
		t.Fatalf("expected %d retained messages, got %d (%v)", wantCount, len(got), got)
	}

	if s, ok := got["mode"].(string); !ok || s != "dev" {
		t.Fatalf("mode payload = %#v, want \"dev\"", got["mode"])
	}
	if bval, ok := got["debug"].(bool); !ok || !bval {
		t.Fatalf("debug payload = %#v, want true", got["debug"])
	}
	m, ok := got["frampref"].(map[string]any)
	if !ok {
		t.Fatalf("frampref payload type = %T, want map[string]any", got["frampref"])
	}
	if n, ok := m["signature"].(json.Number); !ok || n.String() != "4294967295" {
		t.Fatalf("signature = %#v, want exact json.Number", m["signature"])
	}

	// The section decodes into the component config unchanged.
	var cfg frampref.Config
	if err := util.DecodeJSON(m, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Signature != 0xFFFFFFFF || cfg.PoolSize != 1024 || cfg.FRAMID != "fram0" {
		t.Fatalf("decoded %+v", cfg)
	}
}

func TestConfig_EmbeddedConfigsAreValid(t *testing.T) {
	for device, raw := range embeddedConfigs {
		m, err := decodeSections(raw)
		if err != nil {
			t.Fatalf("%s: %v", device, err)
		}
		sec, ok := m["frampref"]
		if !ok {
			t.Fatalf("%s: no frampref section", device)
		}
		cfg := frampref.DefaultConfig()
		if err := util.DecodeJSON(sec, &cfg); err != nil {
			t.Fatalf("%s: %v", device, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("%s: %v", device, err)
		}
	}
}

// Each board's config must fit the FRAM part fitted to it, as the driver
// sizes it from the device ID density code.
func TestConfig_EmbeddedConfigsFitTheirChip(t *testing.T) {
	density := map[string]uint8{
		"pico":       5, // MB85RC256V
		"pico-small": 3, // MB85RC64TA
	}
	for device, raw := range embeddedConfigs {
		d, ok := density[device]
		if !ok {
			t.Fatalf("%s: no chip listed", device)
		}
		size := fram.ID{Product: uint16(d) << 8}.SizeBytes()
		if size == 0 {
			t.Fatalf("%s: driver cannot size density %d", device, d)
		}
		m, err := decodeSections(raw)
		if err != nil {
			t.Fatalf("%s: %v", device, err)
		}
		cfg := frampref.DefaultConfig()
		if err := util.DecodeJSON(m["frampref"], &cfg); err != nil {
			t.Fatalf("%s: %v", device, err)
		}
		if end := cfg.PoolStart + cfg.PoolSize; end > size {
			t.Errorf("%s: pool ends at %d, chip holds %d", device, end, size)
		}
		for _, sp := range cfg.Static {
			if end := sp.Addr + uint32(sp.Size); end > size {
				t.Errorf("%s: static %s ends at %d, chip holds %d", device, sp.Name, end, size)
			}
		}
	}
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService()

	// No device ID in context
	if err := svc.publishConfig(context.Background(), conn); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("expected invalid_params for missing device ID, got %v", err)
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	// Override lookup to simulate absence.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "unknown-device")
	if err := svc.publishConfig(ctx, conn); errcode.Of(err) != errcode.NotFound {
		t.Fatalf("expected not_found for missing embedded config, got %v", err)
	}
}

func TestConfig_DecodeSections_Malformed(t *testing.T) {
	for name, raw := range map[string]string{
		"array":    `[1,2]`,
		"null":     `null`,
		"trailing": `{"a":1} {"b":2}`,
		"broken":   `{"a":`,
	} {
		if _, err := decodeSections([]byte(raw)); errcode.Of(err) != errcode.InvalidPayload {
			t.Fatalf("%s: err = %v, want invalid_payload", name, err)
		}
	}
}
