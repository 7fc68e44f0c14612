package bus

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const gpioConsumer = "imucap"

// PeriphBus drives a Linux i2c-dev adapter through periph.io.
type PeriphBus struct {
	cfg        Config
	configured bool
	bus        i2c.BusCloser
}

func NewPeriphBus() *PeriphBus {
	return &PeriphBus{}
}

// Configure validates cfg, loads the periph host drivers and, when asked
// to, checks that both bus lines idle high.
func (b *PeriphBus) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	if cfg.IdleCheck {
		if err := checkIdle(cfg); err != nil {
			return err
		}
	}
	b.cfg = cfg
	b.configured = true
	return nil
}

// Activate opens the adapter and applies the clock speed.
func (b *PeriphBus) Activate() error {
	if !b.configured {
		return ErrNotConfigured
	}
	if b.bus != nil {
		return nil
	}
	bc, err := i2creg.Open(b.cfg.Name)
	if err != nil {
		return fmt.Errorf("open i2c bus %q: %w", b.cfg.Name, err)
	}
	if err := bc.SetSpeed(physic.Frequency(b.cfg.ClockHz) * physic.Hertz); err != nil {
		_ = bc.Close()
		return fmt.Errorf("set bus speed: %w", err)
	}
	if p, ok := bc.(i2c.Pins); ok {
		scl, sda := p.SCL(), p.SDA()
		if scl.Number() != b.cfg.SCLPin || sda.Number() != b.cfg.SDAPin {
			log.Warnf("bus %s uses scl=%s sda=%s, configured scl=%d sda=%d", bc, scl, sda, b.cfg.SCLPin, b.cfg.SDAPin)
		}
	}
	log.Debugf("i2c bus %s open at %d Hz", bc, b.cfg.ClockHz)
	b.bus = bc
	return nil
}

// Deactivate closes the adapter. The bus must be configured again before
// the next Activate.
func (b *PeriphBus) Deactivate() error {
	if b.bus == nil {
		return ErrNotActive
	}
	err := b.bus.Close()
	b.bus = nil
	b.configured = false
	return err
}

func (b *PeriphBus) Tx(addr uint16, w, r []byte) error {
	if b.bus == nil {
		return ErrNotActive
	}
	return b.bus.Tx(addr, w, r)
}

func (b *PeriphBus) String() string {
	if b.bus == nil {
		return "periph(" + b.cfg.Name + ")"
	}
	return b.bus.String()
}

// ListPeriph returns the names of the i2c adapters registered on the host.
func ListPeriph() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	var names []string
	for _, ref := range i2creg.All() {
		names = append(names, ref.Name)
	}
	return names, nil
}

func checkIdle(cfg Config) error {
	lines := []struct {
		name   string
		offset int
		pullup bool
	}{
		{"scl", cfg.SCLPin, cfg.SCLPullup},
		{"sda", cfg.SDAPin, cfg.SDAPullup},
	}
	for _, l := range lines {
		v, err := readLine(cfg.GPIOChip, l.offset, l.pullup)
		if err != nil {
			return fmt.Errorf("read %s line: %w", l.name, err)
		}
		if v == 0 {
			return fmt.Errorf("%w: %s (gpio %d)", ErrStuck, l.name, l.offset)
		}
	}
	return nil
}

func readLine(chip string, offset int, pullup bool) (int, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer(gpioConsumer)}
	if pullup {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return 0, err
	}
	defer func() { _ = line.Close() }()
	return line.Value()
}
