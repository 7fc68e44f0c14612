package acquisition

import (
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"imucap/internal/sensor"
)

// ReadMask flags which reads failed during one iteration.
type ReadMask uint8

const (
	ReadIdentity ReadMask = 1 << iota
	ReadAcceleration
	ReadGyro
)

// Sample is one iteration's report. Fields whose read failed keep the value
// of the last successful read; HasAccel and HasGyro stay false until the
// first success so a zero vector can be told apart from "no data yet".
type Sample struct {
	Seq           uint64         `json:"seq"`
	ElapsedMicros int64          `json:"elapsed_us"`
	DeviceID      uint8          `json:"device_id"`
	Accel         sensor.Vector3 `json:"accel"`
	Gyro          sensor.Vector3 `json:"gyro"`
	HasID         bool           `json:"has_id"`
	HasAccel      bool           `json:"has_accel"`
	HasGyro       bool           `json:"has_gyro"`
	ReadErrors    ReadMask       `json:"read_errors"`
}

// Elapsed splits the elapsed time into whole seconds and the millisecond
// remainder.
func (s Sample) Elapsed() (sec, ms int64) {
	return s.ElapsedMicros / 1000000, (s.ElapsedMicros / 1000) % 1000
}

// String renders the report line.
func (s Sample) String() string {
	sec, ms := s.Elapsed()
	return fmt.Sprintf("time:%d.%03d acce_x:%.2f, acce_y:%.2f, acce_z:%.2f, gyro_x:%.2f, gyro_y:%.2f, gyro_z:%.2f",
		sec, ms, s.Accel.X, s.Accel.Y, s.Accel.Z, s.Gyro.X, s.Gyro.Y, s.Gyro.Z)
}

// Reporter receives every sample in emission order.
type Reporter interface {
	Report(s Sample) error
}

type ReporterFunc func(s Sample) error

func (f ReporterFunc) Report(s Sample) error {
	return f(s)
}

// LogReporter writes report lines to the logrus standard logger.
type LogReporter struct{}

func (LogReporter) Report(s Sample) error {
	log.Infoln(s.String())
	return nil
}

// WriterReporter writes CRLF terminated report lines to w, typically a
// serial port.
type WriterReporter struct {
	w io.Writer
}

func NewWriterReporter(w io.Writer) *WriterReporter {
	return &WriterReporter{w: w}
}

func (r *WriterReporter) Report(s Sample) error {
	_, err := io.WriteString(r.w, s.String()+"\r\n")
	return err
}

// MultiReporter fans a sample out to every reporter, in order, and joins
// their errors.
type MultiReporter []Reporter

func (m MultiReporter) Report(s Sample) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
