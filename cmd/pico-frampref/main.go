//go:build rp2040 || rp2350

package main

import (
	"context"
	"encoding/binary"
	"machine"
	"runtime"
	"time"

	"frampref-go/bus"
	"frampref-go/drivers/fram"
	"frampref-go/preferences"
	"frampref-go/services/config"
	"frampref-go/services/heartbeat"
	"frampref-go/services/prefsvc"
	"frampref-go/types"
	"frampref-go/x/conv"
)

// Key of the boot_count static pref in the embedded pico config.
const bootCountKey = 1165617470

func printTopicWith(prefix string, t bus.Topic) {
	print(prefix)
	print(" ")
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			print("/")
		}
		switch v := t.At(i).(type) {
		case string:
			print(v)
		case int:
			print(v)
		default:
			print("?")
		}
	}
	println()
}

func main() {
	time.Sleep(3 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "pico")

	println("[main] configuring I2C0 …")
	if err := machine.I2C0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.GP4,
		SCL:       machine.GP5,
	}); err != nil {
		println("[main] i2c:", err.Error())
	}

	dev := fram.New(machine.I2C0)
	if err := dev.Configure(fram.Config{}); err != nil {
		println("[main] fram:", err.Error())
	} else {
		var b [20]byte
		println("[main] fram size", string(conv.Utoa(b[:], uint64(dev.Size()))))
	}

	println("[main] bootstrapping bus …")
	b := bus.NewBus(4)
	uiConn := b.NewConnection("ui")

	mon := uiConn.Subscribe(bus.T("prefs", "state"))

	prefsvc.Start(ctx, b.NewConnection("prefsvc"), prefsvc.ChipMap{"fram0": dev})
	(&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	for m := range mon.Channel() {
		printTopicWith("[monitor] <-", m.Topic)
		if st, ok := m.Payload.(types.PrefsState); ok && st.Level == "ready" {
			break
		}
	}

	countBoot()

	for {
		printMem()
		time.Sleep(10 * time.Second)
	}
}

// countBoot bumps the boot counter held in a static pref.
func countBoot() {
	pref := preferences.Global().MakePreference(4, bootCountKey)
	var raw [4]byte
	n := uint32(0)
	if pref.Load(raw[:]) {
		n = binary.LittleEndian.Uint32(raw[:])
	}
	n++
	binary.LittleEndian.PutUint32(raw[:], n)
	if !pref.Save(raw[:]) {
		println("[main] boot count not saved")
		return
	}
	var b [20]byte
	println("[main] boot", string(conv.Utoa(b[:], uint64(n))))
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"heapSys:", uint32(ms.HeapSys),
	)
}
