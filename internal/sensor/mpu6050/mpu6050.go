package mpu6050

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"imucap/internal/sensor"
	"tinygo.org/x/drivers"
)

const (
	AddressLow  = 0x68 // AD0 tied low
	AddressHigh = 0x69 // AD0 tied high
	WhoAmI      = 0x68 // WHO_AM_I value of a genuine part

	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regAccelXoutH  = 0x3B
	regGyroXoutH   = 0x43
	regPwrMgmt1    = 0x6B
	regWhoAmI      = 0x75

	pwrSleep  = 1 << 6
	fsSelBits = 3
	fsSelMask = 0x3 << fsSelBits

	maxAddress = 0x7F
)

// LSB per g for AFS_SEL 0..3.
var accelSensitivity = [...]float64{16384, 8192, 4096, 2048}

// LSB per degree/s for FS_SEL 0..3.
var gyroSensitivity = [...]float64{131, 65.5, 32.8, 16.4}

var errRange = errors.New("full-scale range out of bounds")

// Driver binds MPU6050 handles to a bus.
type Driver struct{}

var _ sensor.Driver = Driver{}

// Create returns a handle for the device at addr. No bus traffic happens
// here; the first transaction is issued by Configure.
func (Driver) Create(bus drivers.I2C, addr uint16) sensor.Handle {
	if bus == nil || addr > maxAddress {
		return nil
	}
	return &device{
		bus:       bus,
		addr:      addr,
		accelSens: accelSensitivity[sensor.Accel2G],
		gyroSens:  gyroSensitivity[sensor.Gyro250DPS],
	}
}

// device cannot be accessed by two goroutines at the same time
type device struct {
	bus       drivers.I2C
	addr      uint16
	accelSens float64
	gyroSens  float64
	buf       [6]byte
	released  bool
}

func (d *device) Configure(cfg sensor.Config) error {
	if d.released {
		return sensor.ErrReleased
	}
	if int(cfg.AccelRange) >= len(accelSensitivity) || int(cfg.GyroRange) >= len(gyroSensitivity) {
		return fmt.Errorf("%w: accel=%v gyro=%v", errRange, cfg.AccelRange, cfg.GyroRange)
	}
	// GYRO_CONFIG and ACCEL_CONFIG are adjacent, one burst writes both.
	w := []byte{regGyroConfig, byte(cfg.GyroRange) << fsSelBits, byte(cfg.AccelRange) << fsSelBits}
	if err := d.bus.Tx(d.addr, w, nil); err != nil {
		return fmt.Errorf("write range config: %w", err)
	}
	d.accelSens = accelSensitivity[cfg.AccelRange]
	d.gyroSens = gyroSensitivity[cfg.GyroRange]
	log.Debugf("mpu6050@0x%02X configured accel=%v gyro=%v", d.addr, cfg.AccelRange, cfg.GyroRange)
	return nil
}

// Wake clears the SLEEP bit of PWR_MGMT_1.
func (d *device) Wake() error {
	return d.setSleep(false)
}

func (d *device) setSleep(sleep bool) error {
	if d.released {
		return sensor.ErrReleased
	}
	v, err := d.readReg(regPwrMgmt1)
	if err != nil {
		return fmt.Errorf("read power management: %w", err)
	}
	if sleep {
		v |= pwrSleep
	} else {
		v &^= pwrSleep
	}
	if err := d.bus.Tx(d.addr, []byte{regPwrMgmt1, v}, nil); err != nil {
		return fmt.Errorf("write power management: %w", err)
	}
	return nil
}

func (d *device) ReadID() (uint8, error) {
	if d.released {
		return 0, sensor.ErrReleased
	}
	return d.readReg(regWhoAmI)
}

func (d *device) ReadAcceleration() (sensor.Vector3, error) {
	return d.readVector(regAccelXoutH, d.accelSens)
}

func (d *device) ReadGyro() (sensor.Vector3, error) {
	return d.readVector(regGyroXoutH, d.gyroSens)
}

// Release puts the device back to sleep and drops the bus. The handle is
// released even when the sleep write fails.
func (d *device) Release() error {
	if d.released {
		return sensor.ErrReleased
	}
	err := d.setSleep(true)
	d.released = true
	d.bus = nil
	if err != nil {
		return fmt.Errorf("sleep on release: %w", err)
	}
	return nil
}

func (d *device) readReg(reg byte) (byte, error) {
	if err := d.bus.Tx(d.addr, []byte{reg}, d.buf[:1]); err != nil {
		return 0, err
	}
	return d.buf[0], nil
}

func (d *device) readVector(reg byte, sens float64) (sensor.Vector3, error) {
	if d.released {
		return sensor.Vector3{}, sensor.ErrReleased
	}
	if err := d.bus.Tx(d.addr, []byte{reg}, d.buf[:6]); err != nil {
		return sensor.Vector3{}, err
	}
	return sensor.Vector3{
		X: float64(I2(d.buf[0:])) / sens,
		Y: float64(I2(d.buf[2:])) / sens,
		Z: float64(I2(d.buf[4:])) / sens,
	}, nil
}

// Probe reports whether the device at addr answers with the MPU6050 identity.
func Probe(bus drivers.I2C, addr uint16) (bool, error) {
	buf := make([]byte, 1)
	if err := bus.Tx(addr, []byte{regWhoAmI}, buf); err != nil {
		return false, err
	}
	return buf[0] == WhoAmI, nil
}

// I2 decodes a big-endian signed 16 bit register pair.
func I2(p []uint8) int16 {
	return int16(uint16(p[0])<<8 | uint16(p[1]))
}
