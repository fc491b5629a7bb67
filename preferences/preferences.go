// Package preferences defines the capabilities a preferences backend offers
// to the rest of the firmware: a lifecycle (Component) and typed, fixed
// length preference objects (Preferences).
//
// One Preferences is installed globally at a time. A backend that takes
// over keeps the one it replaced so it can pass Sync and Reset on.
package preferences

import "sync"

// Component is the lifecycle of a long-lived part of the firmware.
type Component interface {
	Setup() error
	Loop()
	DumpConfig()
}

// Backend stores one preference. Save and Load take exactly the length the
// preference was made with.
type Backend interface {
	Save(data []byte) bool
	Load(data []byte) bool
}

// Object is a handle to a single preference. The zero value is invalid and
// fails every Save and Load.
type Object struct {
	b Backend
}

func NewObject(b Backend) Object { return Object{b: b} }

func (o Object) Valid() bool { return o.b != nil }

func (o Object) Save(data []byte) bool {
	if o.b == nil {
		return false
	}
	return o.b.Save(data)
}

func (o Object) Load(data []byte) bool {
	if o.b == nil {
		return false
	}
	return o.b.Load(data)
}

type Preferences interface {
	// MakePreference returns a handle for key holding length bytes, or an
	// invalid Object when the backend cannot serve it.
	MakePreference(length int, key uint32) Object
	// Sync pushes buffered data to the medium.
	Sync() bool
	// Reset forgets every stored preference.
	Reset() bool
}

// Nop stores nothing. It is the global until a backend is installed.
type Nop struct{}

func (Nop) MakePreference(int, uint32) Object { return Object{} }
func (Nop) Sync() bool                        { return true }
func (Nop) Reset() bool                       { return true }

var (
	mu     sync.Mutex
	global Preferences = Nop{}
)

// Global returns the installed preferences.
func Global() Preferences {
	mu.Lock()
	defer mu.Unlock()
	return global
}

// Install makes p the global preferences and returns the previous one.
func Install(p Preferences) (prev Preferences) {
	if p == nil {
		p = Nop{}
	}
	mu.Lock()
	defer mu.Unlock()
	prev, global = global, p
	return prev
}
