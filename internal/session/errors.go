package session

import "fmt"

// PermissionError is returned when the user (or the OS) denies access to a
// capture device. It aborts the transition that needed the device.
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: permission denied", e.Device)
	}
	return fmt.Sprintf("%s: permission denied: %v", e.Device, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// UnsupportedCapabilityError means a required capability (camera, speech
// recognition) is not available in this environment at all.
type UnsupportedCapabilityError struct {
	Capability string
	Err        error
}

func (e *UnsupportedCapabilityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s not supported", e.Capability)
	}
	return fmt.Sprintf("%s not supported: %v", e.Capability, e.Err)
}

func (e *UnsupportedCapabilityError) Unwrap() error { return e.Err }

// TransientRecognitionError is a recoverable speech-engine condition such as
// "no speech detected". The session keeps recording.
type TransientRecognitionError struct {
	Reason string
}

func (e *TransientRecognitionError) Error() string {
	return "speech recognition: " + e.Reason
}

// NetworkError wraps a failed call to the generation/evaluation backend.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
