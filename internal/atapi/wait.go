package atapi

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// WaitPolicy controls how long status waits keep polling. Drives can take
// many seconds to spin up or load, so a wait only gives up after MaxStalls
// consecutive soft timeouts.
type WaitPolicy struct {
	// SoftTimeout is the interval after which a wait logs that it is still
	// waiting and reports a stall.
	SoftTimeout time.Duration
	// MaxStalls is the number of stalls after which the wait fails with
	// ErrDeviceUnresponsive. Zero waits forever.
	MaxStalls int
	// PollDelay is slept between status reads.
	PollDelay time.Duration
	// OnStall, if set, is called on every stall.
	OnStall func(Stall)
}

// Stall describes a wait that hit its soft timeout.
type Stall struct {
	Op     string
	Status Status
	Waited time.Duration
	Count  int
}

// DefaultWaitPolicy returns the policy used unless WithWaitPolicy is given.
func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{
		SoftTimeout: 10 * time.Second,
		MaxStalls:   6,
	}
}

// waitFor polls the Status register until done returns true.
func (d *Device) waitFor(ctx context.Context, op string, done func(Status) bool) (Status, error) {
	start := d.now()
	window := start
	stalls := 0

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		st, err := d.readStatus()
		if err != nil {
			return 0, err
		}
		if done(st) {
			return st, nil
		}

		now := d.now()
		if now.Sub(window) >= d.policy.SoftTimeout {
			stalls++
			window = now
			stall := Stall{Op: op, Status: st, Waited: now.Sub(start), Count: stalls}

			d.log.WithFields(logrus.Fields{
				"op":     op,
				"status": st.String(),
				"waited": stall.Waited.Round(time.Millisecond),
			}).Warn("Still waiting for drive")
			if d.policy.OnStall != nil {
				d.policy.OnStall(stall)
			}

			if d.policy.MaxStalls > 0 && stalls >= d.policy.MaxStalls {
				return st, &WaitError{Op: op, Status: st, Waited: stall.Waited, Stalls: stalls}
			}
		}

		if d.policy.PollDelay > 0 {
			if err := d.sleep(ctx, d.policy.PollDelay); err != nil {
				return 0, err
			}
		}
	}
}

func (d *Device) waitNotBusy(ctx context.Context, op string) (Status, error) {
	return d.waitFor(ctx, op+": not busy", func(st Status) bool {
		return !st.Has(StatusBSY) || (d.quirks.StickyBusy && st.Has(StatusDRQ))
	})
}

func (d *Device) waitDRQEnd(ctx context.Context, op string) (Status, error) {
	return d.waitFor(ctx, op+": DRQ end", func(st Status) bool {
		return !st.Has(StatusDRQ)
	})
}

// waitDRQ waits for the device to offer data. A device that finishes the
// command with ERR instead yields a *CommandError.
func (d *Device) waitDRQ(ctx context.Context, op string) (Status, error) {
	st, err := d.waitFor(ctx, op+": DRQ", func(st Status) bool {
		if st.Has(StatusDRQ) && (d.quirks.StickyBusy || !st.Has(StatusBSY)) {
			return true
		}
		return st.Has(StatusERR) && !st.Has(StatusBSY)
	})
	if err != nil {
		return st, err
	}
	if !st.Has(StatusDRQ) {
		return st, d.commandError(op, st)
	}
	return st, nil
}

// WaitReady blocks until the device reports DRDY.
func (d *Device) WaitReady(ctx context.Context) error {
	d.log.Debug("Waiting for drive to become ready")
	_, err := d.waitFor(ctx, "ready", func(st Status) bool {
		return st.Has(StatusDRDY)
	})
	return err
}
