package bus

import (
	"errors"
	"fmt"

	"tinygo.org/x/drivers"
)

const DefaultSCLPin = 19
const DefaultSDAPin = 18
const DefaultClockHz = 100000
const DefaultGPIOChip = "gpiochip0"

// MaxClockHz is the fast-mode plus ceiling of the two-wire bus.
const MaxClockHz = 1000000

var (
	ErrNotConfigured = errors.New("bus not configured")
	ErrNotActive     = errors.New("bus not active")
	ErrNACK          = errors.New("no acknowledge from device")
	ErrStuck         = errors.New("bus line held low")
	ErrUnknownDriver = errors.New("unknown bus driver")
)

const DriverPeriph = "periph"
const DriverSim = "sim"

// Config describes how the bus is brought up. It is applied once by Configure.
type Config struct {
	Name      string
	SCLPin    int
	SDAPin    int
	ClockHz   int
	SCLPullup bool
	SDAPullup bool
	GPIOChip  string
	IdleCheck bool
}

func DefaultConfig() Config {
	return Config{
		SCLPin:    DefaultSCLPin,
		SDAPin:    DefaultSDAPin,
		ClockHz:   DefaultClockHz,
		SCLPullup: true,
		SDAPullup: true,
		GPIOChip:  DefaultGPIOChip,
	}
}

// Validate checks the parts of the config that do not depend on the backend.
func (c Config) Validate() error {
	if c.ClockHz <= 0 || c.ClockHz > MaxClockHz {
		return fmt.Errorf("invalid clock speed %d Hz", c.ClockHz)
	}
	if c.SCLPin < 0 || c.SDAPin < 0 {
		return fmt.Errorf("invalid pins scl=%d sda=%d", c.SCLPin, c.SDAPin)
	}
	if c.SCLPin == c.SDAPin {
		return fmt.Errorf("scl and sda share pin %d", c.SCLPin)
	}
	return nil
}

// Bus is a two-wire bus master. Tx performs one combined write/read
// transaction and is only valid between Activate and Deactivate.
type Bus interface {
	drivers.I2C
	Configure(cfg Config) error
	Activate() error
	Deactivate() error
}

// Scan returns the addresses in [from, to] that acknowledge a one byte read.
func Scan(b drivers.I2C, from, to uint16) []uint16 {
	var found []uint16
	buf := make([]byte, 1)
	for addr := from; addr <= to; addr++ {
		if err := b.Tx(addr, nil, buf); err == nil {
			found = append(found, addr)
		}
	}
	return found
}

// New returns a bus for the named backend. An empty name selects the
// simulated bus.
func New(driver string) (Bus, error) {
	switch driver {
	case DriverPeriph:
		return NewPeriphBus(), nil
	case DriverSim, "":
		return NewSimBus(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
