package acquisition

import "fmt"

// Status is the result code of an acquisition stage.
type Status int

const (
	StatusOk Status = iota
	StatusConfigError
	StatusInstallError
	StatusCreateError
	StatusConfigureError
	StatusWakeError
	StatusReadError
	StatusDeleteError
)

var statusNames = [...]string{
	"Ok",
	"ConfigError",
	"InstallError",
	"CreateError",
	"ConfigureError",
	"WakeError",
	"ReadError",
	"DeleteError",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// StatusError carries a non-Ok Status across an error boundary.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "acquisition failed: " + e.Status.String()
}

// Err returns nil for StatusOk and a *StatusError otherwise.
func (s Status) Err() error {
	if s == StatusOk {
		return nil
	}
	return &StatusError{Status: s}
}

// Fatal reports whether s stops the acquisition before sampling starts.
func (s Status) Fatal() bool {
	switch s {
	case StatusConfigError, StatusInstallError, StatusCreateError, StatusConfigureError, StatusWakeError:
		return true
	}
	return false
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stage is the position of a Session in its lifecycle.
type Stage int

const (
	StageIdle Stage = iota
	StageInitializing
	StageReady
	StageSampling
	StageFailed
	StageStopped
)

var stageNames = [...]string{"idle", "initializing", "ready", "sampling", "failed", "stopped"}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
