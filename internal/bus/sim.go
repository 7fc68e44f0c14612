package bus

import (
	"fmt"
	"sync"
)

// Peripheral is a device hosted on a SimBus. Tx receives the bytes written
// by the master and fills r with its response.
type Peripheral interface {
	Tx(w, r []byte) error
}

// SimBus is an in-memory bus used when no hardware is present.
type SimBus struct {
	mu          sync.Mutex
	cfg         Config
	configured  bool
	active      bool
	peripherals map[uint16]Peripheral

	// Injected failures, returned by the matching call when non-nil.
	ConfigureErr  error
	ActivateErr   error
	DeactivateErr error

	activations   int
	deactivations int
}

func NewSimBus() *SimBus {
	return &SimBus{peripherals: make(map[uint16]Peripheral)}
}

// Attach places p at addr, replacing whatever was there.
func (b *SimBus) Attach(addr uint16, p Peripheral) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peripherals[addr] = p
}

func (b *SimBus) Configure(cfg Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ConfigureErr != nil {
		return b.ConfigureErr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.cfg = cfg
	b.configured = true
	return nil
}

func (b *SimBus) Activate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ActivateErr != nil {
		return b.ActivateErr
	}
	if !b.configured {
		return ErrNotConfigured
	}
	b.active = true
	b.activations++
	return nil
}

func (b *SimBus) Deactivate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return ErrNotActive
	}
	b.active = false
	b.configured = false
	b.deactivations++
	return b.DeactivateErr
}

func (b *SimBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return ErrNotActive
	}
	p, ok := b.peripherals[addr]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w at 0x%02X", ErrNACK, addr)
	}
	return p.Tx(w, r)
}

// Active reports whether the bus is between Activate and Deactivate.
func (b *SimBus) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Counts returns how many times the bus was activated and deactivated.
func (b *SimBus) Counts() (activations, deactivations int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activations, b.deactivations
}

func (b *SimBus) String() string {
	return "sim"
}
