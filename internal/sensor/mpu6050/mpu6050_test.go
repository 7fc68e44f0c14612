package mpu6050

import (
	"errors"
	"math"
	"testing"

	"imucap/internal/bus"
	"imucap/internal/sensor"
)

func newTestBus(t *testing.T) (*bus.SimBus, *Emulator) {
	t.Helper()
	b := bus.NewSimBus()
	emu := NewEmulator()
	b.Attach(AddressLow, emu)
	if err := b.Configure(bus.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	if err := b.Activate(); err != nil {
		t.Fatal(err)
	}
	return b, emu
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestCreateRejectsBadArguments(t *testing.T) {
	if h := (Driver{}).Create(nil, AddressLow); h != nil {
		t.Error("expected nil handle for nil bus")
	}
	b, _ := newTestBus(t)
	if h := (Driver{}).Create(b, 0x80); h != nil {
		t.Error("expected nil handle for 10 bit address")
	}
}

func TestConfigureWritesRanges(t *testing.T) {
	b, emu := newTestBus(t)
	h := Driver{}.Create(b, AddressLow)
	if err := h.Configure(sensor.Config{AccelRange: sensor.Accel16G, GyroRange: sensor.Gyro1000DPS}); err != nil {
		t.Fatal(err)
	}
	if got := emu.Register(regAccelConfig); got != 3<<3 {
		t.Errorf("ACCEL_CONFIG = 0x%02X", got)
	}
	if got := emu.Register(regGyroConfig); got != 2<<3 {
		t.Errorf("GYRO_CONFIG = 0x%02X", got)
	}
	if err := h.Configure(sensor.Config{AccelRange: 7}); err == nil {
		t.Error("expected range error")
	}
}

func TestWakeAndRead(t *testing.T) {
	b, emu := newTestBus(t)
	emu.SetAcceleration(sensor.Vector3{X: 1, Y: -0.5, Z: 0.98})
	emu.SetRotation(sensor.Vector3{X: 10, Y: -200, Z: 0.5})

	h := Driver{}.Create(b, AddressLow)
	if err := h.Configure(sensor.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	// still asleep: data registers read zero
	a, err := h.ReadAcceleration()
	if err != nil {
		t.Fatal(err)
	}
	if a != (sensor.Vector3{}) {
		t.Errorf("expected zero accel before wake, got %+v", a)
	}

	if err := h.Wake(); err != nil {
		t.Fatal(err)
	}
	if emu.Asleep() {
		t.Fatal("device still asleep after Wake")
	}

	id, err := h.ReadID()
	if err != nil || id != WhoAmI {
		t.Errorf("ReadID = 0x%02X, %v", id, err)
	}
	a, err = h.ReadAcceleration()
	if err != nil {
		t.Fatal(err)
	}
	if !near(a.X, 1) || !near(a.Y, -0.5) || !near(a.Z, 0.98) {
		t.Errorf("unexpected accel %+v", a)
	}
	g, err := h.ReadGyro()
	if err != nil {
		t.Fatal(err)
	}
	if !near(g.X, 10) || !near(g.Y, -200) || math.Abs(g.Z-0.5) > 0.02 {
		t.Errorf("unexpected gyro %+v", g)
	}
}

func TestReleaseSleeps(t *testing.T) {
	b, emu := newTestBus(t)
	h := Driver{}.Create(b, AddressLow)
	if err := h.Wake(); err != nil {
		t.Fatal(err)
	}
	if emu.Asleep() {
		t.Fatal("expected SLEEP bit clear after wake")
	}
	if err := h.Release(); err != nil {
		t.Fatal(err)
	}
	if !emu.Asleep() {
		t.Error("expected SLEEP bit set after release")
	}
}

func TestReleaseMissingDevice(t *testing.T) {
	b, _ := newTestBus(t)
	h := Driver{}.Create(b, AddressHigh)
	if err := h.Release(); !errors.Is(err, bus.ErrNACK) {
		t.Fatalf("expected NACK, got %v", err)
	}
	if err := h.Release(); !errors.Is(err, sensor.ErrReleased) {
		t.Errorf("second release: %v", err)
	}
}

func TestReadFailurePropagates(t *testing.T) {
	b, emu := newTestBus(t)
	h := Driver{}.Create(b, AddressLow)
	emu.FailNext(regAccelXoutH, 1)
	if _, err := h.ReadAcceleration(); !errors.Is(err, ErrEmulatedFault) {
		t.Fatalf("expected emulated fault, got %v", err)
	}
	if _, err := h.ReadAcceleration(); err != nil {
		t.Fatalf("second read should succeed: %v", err)
	}
}

func TestWrongAddress(t *testing.T) {
	b, _ := newTestBus(t)
	h := Driver{}.Create(b, AddressHigh)
	if err := h.Configure(sensor.DefaultConfig()); !errors.Is(err, bus.ErrNACK) {
		t.Fatalf("expected NACK, got %v", err)
	}
}

func TestRelease(t *testing.T) {
	b, _ := newTestBus(t)
	h := Driver{}.Create(b, AddressLow)
	if err := h.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ReadGyro(); !errors.Is(err, sensor.ErrReleased) {
		t.Errorf("read after release: %v", err)
	}
	if err := h.Wake(); !errors.Is(err, sensor.ErrReleased) {
		t.Errorf("wake after release: %v", err)
	}
	if err := h.Release(); !errors.Is(err, sensor.ErrReleased) {
		t.Errorf("double release: %v", err)
	}
}

func TestProbeAndScan(t *testing.T) {
	b, _ := newTestBus(t)
	ok, err := Probe(b, AddressLow)
	if err != nil || !ok {
		t.Fatalf("Probe = %v, %v", ok, err)
	}
	found := bus.Scan(b, 0x08, 0x77)
	if len(found) != 1 || found[0] != AddressLow {
		t.Errorf("Scan = %v", found)
	}
}

func TestI2(t *testing.T) {
	if v := I2([]byte{0xFF, 0xFE}); v != -2 {
		t.Errorf("I2 = %d", v)
	}
	if v := I2([]byte{0x40, 0x00}); v != 16384 {
		t.Errorf("I2 = %d", v)
	}
}
