package acquisition

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"imucap/internal/bus"
	"imucap/internal/clock"
	"imucap/internal/sensor"
)

const DefaultInterval = 10 * time.Millisecond

var ErrNotInitialized = errors.New("acquisition not initialized")

var errNilHandle = errors.New("create returned no handle")

// Options is everything a Session applies during Initialize and Run.
type Options struct {
	Bus      bus.Config
	Address  uint16
	Device   sensor.Config
	Interval time.Duration
	// Count bounds the number of iterations, 0 runs until cancelled.
	Count int64
}

// Listener is told about every stage transition. It is called from the
// goroutine driving the Session.
type Listener interface {
	StageChanged(stage Stage, status Status)
}

// ReadCounters counts failed reads per kind since the last Initialize.
type ReadCounters struct {
	Identity     uint64 `json:"identity"`
	Acceleration uint64 `json:"acceleration"`
	Gyro         uint64 `json:"gyro"`
}

// Snapshot is a copy of the Session state that is safe to hand to other
// goroutines.
type Snapshot struct {
	Stage          Stage        `json:"stage"`
	InitStatus     Status       `json:"init_status"`
	TeardownStatus Status       `json:"teardown_status"`
	Iterations     uint64       `json:"iterations"`
	ReadFailures   ReadCounters `json:"read_failures"`
	Last           *Sample      `json:"last,omitempty"`
}

// Session owns one bus and one device handle for the lifetime of an
// acquisition. Initialize, Run and Teardown must be called from a single
// goroutine; Snapshot may be called from any.
type Session struct {
	opt      Options
	bus      bus.Bus
	driver   sensor.Driver
	clock    clock.Clock
	reporter Reporter
	listener Listener

	handle      sensor.Handle
	installed   bool
	ready       bool
	startMicros int64
	seq         uint64
	last        Sample

	lock sync.RWMutex
	snap Snapshot
}

func NewSession(opt Options, b bus.Bus, d sensor.Driver, c clock.Clock, r Reporter) *Session {
	if opt.Interval <= 0 {
		opt.Interval = DefaultInterval
	}
	if r == nil {
		r = LogReporter{}
	}
	return &Session{
		opt:      opt,
		bus:      b,
		driver:   d,
		clock:    c,
		reporter: r,
	}
}

func (s *Session) SetListener(l Listener) {
	s.listener = l
}

// Initialize brings up the bus and the device. Each step stops the sequence
// on failure and the matching Status is returned; resources acquired so far
// stay owned by the Session until Teardown.
func (s *Session) Initialize() Status {
	if s.installed || s.handle != nil {
		log.Infoln("releasing resources of previous acquisition")
		s.Teardown()
	}
	s.ready = false
	s.setStage(StageInitializing, StatusOk)

	if err := s.bus.Configure(s.opt.Bus); err != nil {
		return s.fail(StatusConfigError, "bus config", err)
	}
	if err := s.bus.Activate(); err != nil {
		return s.fail(StatusInstallError, "bus install", err)
	}
	s.installed = true

	h := s.driver.Create(s.bus, s.opt.Address)
	if h == nil {
		return s.fail(StatusCreateError, "device create", errNilHandle)
	}
	s.handle = h

	if err := h.Configure(s.opt.Device); err != nil {
		return s.fail(StatusConfigureError, "device config", err)
	}
	if err := h.Wake(); err != nil {
		return s.fail(StatusWakeError, "device wake up", err)
	}

	s.startMicros = s.clock.NowMicros()
	s.seq = 0
	s.last = Sample{}
	s.ready = true

	s.lock.Lock()
	s.snap.Iterations = 0
	s.snap.ReadFailures = ReadCounters{}
	s.snap.Last = nil
	s.lock.Unlock()

	log.Infof("device 0x%02X ready (accel=%v gyro=%v interval=%v)", s.opt.Address, s.opt.Device.AccelRange, s.opt.Device.GyroRange, s.opt.Interval)
	s.setStage(StageReady, StatusOk)
	return StatusOk
}

func (s *Session) fail(status Status, stage string, err error) Status {
	log.Errorf("%s failed: %v (%s)", stage, err, status)
	s.setStage(StageFailed, status)
	return status
}

// Run is the sampling loop. It returns ErrNotInitialized without touching
// the device unless the last Initialize succeeded. Otherwise it samples
// until ctx is cancelled, which is only observed at the yield point, or
// until Options.Count iterations have been reported.
func (s *Session) Run(ctx context.Context) error {
	if !s.ready {
		return ErrNotInitialized
	}
	s.setStage(StageSampling, StatusOk)

	var n int64
	for {
		sample := s.sampleOnce()
		if err := s.reporter.Report(sample); err != nil {
			log.Warnf("report %d: %v", sample.Seq, err)
		}
		n++
		if s.opt.Count > 0 && n >= s.opt.Count {
			break
		}
		if err := s.clock.YieldFor(ctx, s.opt.Interval); err != nil {
			log.Infof("sampling stopped after %d iterations: %v", n, err)
			return nil
		}
	}
	log.Infof("sampling finished after %d iterations", n)
	return nil
}

// sampleOnce performs the three reads. A failed read is logged and leaves
// the previous value in place; it never prevents the other reads.
func (s *Session) sampleOnce() Sample {
	sample := s.last
	sample.ReadErrors = 0
	var failed ReadCounters

	if id, err := s.handle.ReadID(); err != nil {
		log.Warnf("failed to get device id: %v", err)
		sample.ReadErrors |= ReadIdentity
		failed.Identity++
	} else {
		sample.DeviceID = id
		sample.HasID = true
	}

	if a, err := s.handle.ReadAcceleration(); err != nil {
		log.Warnf("failed to get accelerometer data: %v", err)
		sample.ReadErrors |= ReadAcceleration
		failed.Acceleration++
	} else {
		sample.Accel = a
		sample.HasAccel = true
	}

	if g, err := s.handle.ReadGyro(); err != nil {
		log.Warnf("failed to get gyroscope data: %v", err)
		sample.ReadErrors |= ReadGyro
		failed.Gyro++
	} else {
		sample.Gyro = g
		sample.HasGyro = true
	}

	sample.ElapsedMicros = s.clock.NowMicros() - s.startMicros
	sample.Seq = s.seq
	s.seq++
	s.last = sample

	s.lock.Lock()
	s.snap.Iterations++
	s.snap.ReadFailures.Identity += failed.Identity
	s.snap.ReadFailures.Acceleration += failed.Acceleration
	s.snap.ReadFailures.Gyro += failed.Gyro
	last := sample
	s.snap.Last = &last
	s.lock.Unlock()

	return sample
}

// Teardown releases the device handle and then the bus driver. Both are
// released at most once; calling Teardown again is a no-op. A failure to
// deactivate the bus is reported as StatusDeleteError and otherwise ignored.
func (s *Session) Teardown() Status {
	status := StatusOk
	s.ready = false

	if s.handle != nil {
		if err := s.handle.Release(); err != nil {
			log.Errorf("device release failed: %v", err)
		}
		s.handle = nil
	}

	if s.installed {
		s.installed = false
		if err := s.bus.Deactivate(); err != nil {
			log.Errorf("failed to delete bus driver: %v", err)
			status = StatusDeleteError
		}
	}

	s.lock.Lock()
	s.snap.TeardownStatus = status
	s.lock.Unlock()
	s.setStage(StageStopped, status)
	return status
}

// Acquire runs the whole lifecycle: Initialize, Run when initialization
// succeeded, then Teardown on every path. It returns the Initialize status.
func (s *Session) Acquire(ctx context.Context) Status {
	status := s.Initialize()
	if status == StatusOk {
		if err := s.Run(ctx); err != nil {
			log.Errorln(err)
		}
	} else {
		log.Errorf("error in setup (%s), exiting", status)
	}
	s.Teardown()
	return status
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()
	snap := s.snap
	if snap.Last != nil {
		last := *snap.Last
		snap.Last = &last
	}
	return snap
}

func (s *Session) setStage(stage Stage, status Status) {
	s.lock.Lock()
	s.snap.Stage = stage
	if stage == StageInitializing || stage == StageFailed || stage == StageReady {
		s.snap.InitStatus = status
	}
	s.lock.Unlock()
	if s.listener != nil {
		s.listener.StageChanged(stage, status)
	}
}
