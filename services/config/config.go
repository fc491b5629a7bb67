package config

import (
	"bytes"
	"context"
	"encoding/json"

	"frampref-go/bus"
	"frampref-go/errcode"
	"frampref-go/x/logx"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

var log = logx.New(serviceName)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig reads the device config from embedded data and publishes
// each top-level section as a retained config/<section> message.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "missing device ID in context"}
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return &errcode.E{C: errcode.NotFound, Op: "config", Msg: "no embedded config for device: " + device}
	}

	m, err := decodeSections(raw)
	if err != nil {
		return err
	}

	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	log.Infof("published %d sections for %s", len(m), device)
	return nil
}

// decodeSections parses a JSON object, keeping numbers exact so 32-bit keys
// and addresses survive.
func decodeSections(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, errcode.Wrap(errcode.InvalidPayload, "config", err)
	}
	if m == nil {
		return nil, &errcode.E{C: errcode.InvalidPayload, Op: "config", Msg: "embedded config is not a JSON object"}
	}
	if dec.More() {
		return nil, &errcode.E{C: errcode.InvalidPayload, Op: "config", Msg: "trailing data after config object"}
	}
	return m, nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			log.Errorf("%v", err)
		}
	}()
}
