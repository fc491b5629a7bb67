package main

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"frampref-go/errcode"
	"frampref-go/prefs"
)

const (
	defaultImage = "fram.img"
	defaultSize  = 8192
)

// Config is the YAML file the tool reads with -c.
//
//	image: fram.img
//	size: 8192
//	pool:
//	  start: 0
//	  size: 1024
//	  signature: 0x46505245
type Config struct {
	// Image is the FRAM dump the tool edits. Created on save if missing.
	Image string `yaml:"image"`
	// Size of the chip in bytes. A shorter image is zero-padded.
	Size uint32     `yaml:"size"`
	Pool PoolConfig `yaml:"pool"`
}

type PoolConfig struct {
	Start        uint32 `yaml:"start"`
	Size         uint32 `yaml:"size"`
	Signature    uint32 `yaml:"signature,omitempty"`
	HighWaterPct uint8  `yaml:"high_water_pct,omitempty"`
	DeferWrites  bool   `yaml:"defer_writes,omitempty"`
}

func defaultConfig() Config {
	d := prefs.DefaultConfig()
	return Config{
		Image: defaultImage,
		Size:  defaultSize,
		Pool: PoolConfig{
			Start:        d.PoolStart,
			Size:         d.PoolSize,
			Signature:    d.Signature,
			HighWaterPct: d.HighWaterPct,
		},
	}
}

// loadConfig reads path over the defaults. An empty path returns the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errcode.IO("config", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errcode.Wrap(errcode.InvalidPayload, "config", err)
	}
	if cfg.Image == "" {
		cfg.Image = defaultImage
	}
	if cfg.Size == 0 {
		cfg.Size = defaultSize
	}
	if cfg.Pool.Size == 0 {
		cfg.Pool.Size = prefs.DefaultConfig().PoolSize
	}
	return cfg, nil
}

func (c Config) store() prefs.Config {
	return prefs.Config{
		PoolStart:    c.Pool.Start,
		PoolSize:     c.Pool.Size,
		Signature:    c.Pool.Signature,
		HighWaterPct: c.Pool.HighWaterPct,
		DeferWrites:  c.Pool.DeferWrites,
	}
}

// loadImage returns the chip contents from c.Image, or a blank chip when
// the file does not exist yet.
func loadImage(c Config) (*prefs.Memory, error) {
	data, err := os.ReadFile(c.Image)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return prefs.NewMemory(int(c.Size)), nil
	case err != nil:
		return nil, errcode.IO("image", err)
	}
	if uint32(len(data)) > c.Size {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "image", Msg: "image larger than size"}
	}
	img := make([]byte, c.Size)
	copy(img, data)
	return prefs.NewMemoryFrom(img), nil
}

func saveImage(path string, m *prefs.Memory) error {
	if err := os.WriteFile(path, m.Bytes(), 0o644); err != nil {
		return errcode.IO("save", err)
	}
	return nil
}
