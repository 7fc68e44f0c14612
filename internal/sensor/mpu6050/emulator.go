package mpu6050

import (
	"errors"
	"math"
	"sync"

	"imucap/internal/sensor"
)

const regCount = 128

var ErrEmulatedFault = errors.New("emulated bus fault")

// Emulator is an in-memory MPU6050 register file. It plugs into
// bus.SimBus and answers the same transactions the real part does. Data
// registers read as zero while the SLEEP bit is set.
type Emulator struct {
	mu    sync.Mutex
	regs  [regCount]byte
	ptr   byte
	accel sensor.Vector3
	gyro  sensor.Vector3

	// transactions starting at failReg fail while failNext > 0
	failReg  int
	failNext int
}

func NewEmulator() *Emulator {
	e := &Emulator{failReg: -1}
	e.regs[regWhoAmI] = WhoAmI
	e.regs[regPwrMgmt1] = pwrSleep
	e.accel = sensor.Vector3{Z: 1}
	return e
}

// SetAcceleration sets the value, in g, reported by the accel registers.
func (e *Emulator) SetAcceleration(v sensor.Vector3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accel = v
}

// SetRotation sets the value, in degrees per second, reported by the gyro
// registers.
func (e *Emulator) SetRotation(v sensor.Vector3) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gyro = v
}

// FailNext makes the next n transactions starting at reg fail.
func (e *Emulator) FailNext(reg byte, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failReg = int(reg)
	e.failNext = n
}

// Register returns the raw content of reg.
func (e *Emulator) Register(reg byte) byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs[reg%regCount]
}

// Asleep reports whether the SLEEP bit is set.
func (e *Emulator) Asleep() bool {
	return e.Register(regPwrMgmt1)&pwrSleep != 0
}

func (e *Emulator) Tx(w, r []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(w) > 0 {
		e.ptr = w[0] % regCount
		if e.failNext > 0 && int(e.ptr) == e.failReg {
			e.failNext--
			return ErrEmulatedFault
		}
		for _, b := range w[1:] {
			e.write(e.ptr, b)
			e.ptr = (e.ptr + 1) % regCount
		}
	}
	if len(r) > 0 {
		e.refresh()
		for i := range r {
			r[i] = e.regs[e.ptr]
			e.ptr = (e.ptr + 1) % regCount
		}
	}
	return nil
}

func (e *Emulator) write(reg, v byte) {
	if reg == regWhoAmI || (reg >= regAccelXoutH && reg < regGyroXoutH+6) {
		// read-only
		return
	}
	e.regs[reg] = v
}

// refresh latches the current values into the data registers.
func (e *Emulator) refresh() {
	if e.regs[regPwrMgmt1]&pwrSleep != 0 {
		for i := regAccelXoutH; i < regGyroXoutH+6; i++ {
			e.regs[i] = 0
		}
		return
	}
	as := accelSensitivity[(e.regs[regAccelConfig]&fsSelMask)>>fsSelBits]
	gs := gyroSensitivity[(e.regs[regGyroConfig]&fsSelMask)>>fsSelBits]
	putVector(e.regs[regAccelXoutH:], e.accel, as)
	putVector(e.regs[regGyroXoutH:], e.gyro, gs)
}

func putVector(p []byte, v sensor.Vector3, sens float64) {
	for i, f := range []float64{v.X, v.Y, v.Z} {
		raw := clampInt16(math.Round(f * sens))
		p[2*i] = byte(uint16(raw) >> 8)
		p[2*i+1] = byte(uint16(raw))
	}
}

func clampInt16(f float64) int16 {
	if f > math.MaxInt16 {
		return math.MaxInt16
	}
	if f < math.MinInt16 {
		return math.MinInt16
	}
	return int16(f)
}
