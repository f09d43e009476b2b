package atapi

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceUnresponsive is returned once a status wait has stalled more
	// times than the wait policy allows.
	ErrDeviceUnresponsive = errors.New("device unresponsive")
	// ErrNotATAPI means the device did not present the ATAPI signature.
	ErrNotATAPI = errors.New("not an ATAPI device")
	// ErrSelfTestFailed means EXECUTE DEVICE DIAGNOSTIC reported a failure.
	ErrSelfTestFailed = errors.New("device self-test failed")
	// ErrBus wraps failures of the underlying register bus.
	ErrBus = errors.New("register bus failure")
	// ErrShortResponse means the device ended a data transfer before the
	// minimum amount of data needed to decode the response.
	ErrShortResponse = errors.New("short response")
	// ErrCheckCondition means the device rejected a packet command.
	ErrCheckCondition = errors.New("check condition")
	// ErrUnstableTOC means consecutive TOC reads never agreed.
	ErrUnstableTOC = errors.New("TOC unstable")
)

// WaitError describes a status wait given up after too many stalls.
type WaitError struct {
	Op     string
	Status Status
	Waited time.Duration
	Stalls int
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("%s: gave up after %s (%d stalls, status %s)", e.Op, e.Waited.Round(time.Millisecond), e.Stalls, e.Status)
}

func (e *WaitError) Unwrap() error {
	return ErrDeviceUnresponsive
}

// CommandError is a command the device answered with ERR (CHK) set.
type CommandError struct {
	Op     string
	Status Status
	Err    ErrorReg
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed: sense key 0x%X (error %s, status %s)", e.Op, e.Err.SenseKey(), e.Err, e.Status)
}

func (e *CommandError) Unwrap() error {
	return ErrCheckCondition
}

func busError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBus, err)
}
