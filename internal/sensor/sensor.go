package sensor

import (
	"errors"
	"fmt"
	"strings"

	"tinygo.org/x/drivers"
)

var ErrReleased = errors.New("sensor handle released")

// Vector3 is one three-axis reading. Acceleration is in g, angular rate in
// degrees per second.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// AccelRange is the accelerometer full-scale range. The values follow the
// AFS_SEL encoding.
type AccelRange uint8

const (
	Accel2G AccelRange = iota
	Accel4G
	Accel8G
	Accel16G
)

var accelRangeNames = [...]string{"2g", "4g", "8g", "16g"}

func (r AccelRange) String() string {
	if int(r) < len(accelRangeNames) {
		return accelRangeNames[r]
	}
	return fmt.Sprintf("AccelRange(%d)", r)
}

func ParseAccelRange(s string) (AccelRange, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range accelRangeNames {
		if s == name {
			return AccelRange(i), nil
		}
	}
	return 0, fmt.Errorf("unknown accel range %q", s)
}

// GyroRange is the gyroscope full-scale range, FS_SEL encoding.
type GyroRange uint8

const (
	Gyro250DPS GyroRange = iota
	Gyro500DPS
	Gyro1000DPS
	Gyro2000DPS
)

var gyroRangeNames = [...]string{"250dps", "500dps", "1000dps", "2000dps"}

func (r GyroRange) String() string {
	if int(r) < len(gyroRangeNames) {
		return gyroRangeNames[r]
	}
	return fmt.Sprintf("GyroRange(%d)", r)
}

func ParseGyroRange(s string) (GyroRange, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range gyroRangeNames {
		if s == name {
			return GyroRange(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gyro range %q", s)
}

type Config struct {
	AccelRange AccelRange
	GyroRange  GyroRange
}

func DefaultConfig() Config {
	return Config{AccelRange: Accel4G, GyroRange: Gyro500DPS}
}

// Handle is a live binding to one device at one bus address. Once Release
// has been called every method returns ErrReleased.
type Handle interface {
	Configure(cfg Config) error
	Wake() error
	ReadID() (uint8, error)
	ReadAcceleration() (Vector3, error)
	ReadGyro() (Vector3, error)
	Release() error
}

// Driver creates handles. Create returns nil when no handle can be bound.
type Driver interface {
	Create(bus drivers.I2C, addr uint16) Handle
}
