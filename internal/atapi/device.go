// Package atapi drives an ATAPI CD-ROM or CD changer over a register-level
// IDE bus: reset and identification, packet command framing, response
// read-back and decoding of the mechanism, media and audio status.
//
// A Device is not safe for concurrent use. Callers serialize access, the
// player does so under its own mutex.
package atapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cdchanger/internal/ide"

	"github.com/sirupsen/logrus"
)

// Device is an ATAPI device attached to an IDE bus.
type Device struct {
	bus    ide.Bus
	log    *logrus.Entry
	policy WaitPolicy

	quirkOverrides Quirks
	quirks         Quirks
	resetSettle    time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	packetSize int
	info       DriveInfo
	diag       Diagnostics
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *logrus.Logger) Option {
	return func(d *Device) {
		d.log = logger.WithField("component", "atapi")
	}
}

// WithWaitPolicy replaces the default status wait policy.
func WithWaitPolicy(p WaitPolicy) Option {
	return func(d *Device) {
		d.policy = p
	}
}

// WithQuirks forces quirks on top of those looked up for the identified
// model.
func WithQuirks(q Quirks) Option {
	return func(d *Device) {
		d.quirkOverrides = q
		d.quirks = q
	}
}

// WithResetSettle sets how long to wait after a bus reset before talking to
// the device.
func WithResetSettle(delay time.Duration) Option {
	return func(d *Device) {
		d.resetSettle = delay
	}
}

// WithClock replaces the time source and sleep function.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(d *Device) {
		d.now = now
		d.sleep = sleep
	}
}

// New returns a Device on bus. Call Reset before anything else.
func New(bus ide.Bus, opts ...Option) *Device {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	d := &Device{
		bus:         bus,
		log:         discard.WithField("component", "atapi"),
		policy:      DefaultWaitPolicy(),
		resetSettle: 3 * time.Second,
		now:         time.Now,
		sleep:       sleepContext,
		packetSize:  12,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Info returns the identification data read during the last Reset.
func (d *Device) Info() DriveInfo {
	return d.info
}

// Diagnostics returns what the last Reset found out about the device.
func (d *Device) Diagnostics() Diagnostics {
	return d.diag
}

// Quirks returns the quirks in effect for the identified drive.
func (d *Device) Quirks() Quirks {
	return d.quirks
}

// PacketSize returns the negotiated command packet size, 12 or 16 bytes.
func (d *Device) PacketSize() int {
	return d.packetSize
}

// Reset pulses the bus reset line and brings the device into a known state:
// checks the ATAPI signature, runs the self-test, programs the task file and
// identifies the drive. A missing signature or failed self-test is only
// logged (some drives lie about both) and recorded in Diagnostics.
func (d *Device) Reset(ctx context.Context) error {
	d.log.Info("Reset")
	if err := d.bus.Reset(); err != nil {
		return busError("reset", err)
	}
	if err := d.sleep(ctx, d.resetSettle); err != nil {
		return err
	}
	if _, err := d.waitNotBusy(ctx, "reset"); err != nil {
		return err
	}

	d.diag = Diagnostics{}

	ok, err := d.checkSignature()
	if err != nil {
		return err
	}
	d.diag.SignatureOK = ok
	if !ok {
		d.log.Warn("Not an ATAPI device or device faulty")
	}

	code, err := d.selfTest(ctx)
	if err != nil {
		return err
	}
	d.diag.SelfTestCode = code
	d.diag.SelfTestOK = code == 0x01
	if !d.diag.SelfTestOK {
		d.log.WithField("code", code).Warn("Self-test reported a failure")
	}

	if err := d.initTaskFile(ctx); err != nil {
		return err
	}
	if err := d.identify(ctx); err != nil {
		return err
	}

	d.quirks = LookupQuirks(d.info.Model).Merge(d.quirkOverrides)
	if names := d.quirks.Names(); len(names) > 0 {
		d.log.WithField("quirks", names).Info("Drive quirks in effect")
	}
	if d.quirks.AlternateMaxSpeed > 0 {
		if err := d.SetSpeed(ctx, d.quirks.AlternateMaxSpeed); err != nil {
			d.log.WithError(err).Warn("Failed to limit drive speed")
		}
	}

	d.log.Info("End of reset")
	return nil
}

// Err summarizes failed checks as ErrNotATAPI and/or ErrSelfTestFailed.
func (dg Diagnostics) Err() error {
	switch {
	case !dg.SignatureOK && !dg.SelfTestOK:
		return errors.Join(ErrNotATAPI, ErrSelfTestFailed)
	case !dg.SignatureOK:
		return ErrNotATAPI
	case !dg.SelfTestOK:
		return fmt.Errorf("%w: code 0x%02X", ErrSelfTestFailed, dg.SelfTestCode)
	}
	return nil
}

func (d *Device) checkSignature() (bool, error) {
	lo, err := d.read(ide.RegCylinderLow)
	if err != nil {
		return false, err
	}
	hi, err := d.read(ide.RegCylinderHigh)
	if err != nil {
		return false, err
	}
	return lo.Low == 0x14 && hi.Low == 0xEB, nil
}

func (d *Device) selfTest(ctx context.Context) (uint8, error) {
	d.log.Info("Self-test")
	if err := d.write(ide.RegCommand, ide.Byte(uint8(CmdExecuteDeviceDiagnostic))); err != nil {
		return 0, err
	}
	if _, err := d.waitNotBusy(ctx, "self-test"); err != nil {
		return 0, err
	}
	w, err := d.read(ide.RegError)
	if err != nil {
		return 0, err
	}
	d.log.WithField("error", w.Value()).Debug("Self-test result")
	return w.Low, nil
}

func (d *Device) initTaskFile(ctx context.Context) error {
	d.log.Debug("Init task file")
	writes := []struct {
		reg ide.Register
		val uint8
	}{
		{ide.RegFeature, 0}, // PIO, no overlap
		// PIO byte count limit 0x200
		{ide.RegCylinderHigh, 0x02},
		{ide.RegCylinderLow, 0x00},
		{ide.RegDeviceControl, uint8(DevCtlNIEN)},
	}
	for _, w := range writes {
		if err := d.write(w.reg, ide.Byte(w.val)); err != nil {
			return err
		}
	}
	if _, err := d.waitNotBusy(ctx, "init task file"); err != nil {
		return err
	}
	_, err := d.waitDRQEnd(ctx, "init task file")
	return err
}

func (d *Device) identify(ctx context.Context) error {
	if err := d.write(ide.RegCommand, ide.Byte(uint8(CmdIdentifyPacketDevice))); err != nil {
		return err
	}
	st, err := d.waitNotBusy(ctx, "identify")
	if err != nil {
		return err
	}
	if st.Has(StatusERR) {
		err := d.commandError("IDENTIFY PACKET DEVICE", st)
		return fmt.Errorf("%w: %w", ErrNotATAPI, err)
	}

	buf := make([]byte, identifyLen)
	tr, err := d.readResponse(buf, true)
	if err != nil {
		return err
	}
	info, err := decodeIdentify(buf[:tr.Read])
	if err != nil {
		return err
	}

	d.info = info
	d.packetSize = info.PacketSize
	d.diag.PacketSize = info.PacketSize
	d.log.WithFields(logrus.Fields{
		"model":       info.Model,
		"firmware":    info.Firmware,
		"serial":      info.Serial,
		"packet_size": info.PacketSize,
	}).Info("Drive identified")
	return nil
}

func (d *Device) read(reg ide.Register) (ide.Word, error) {
	w, err := d.bus.Read(reg)
	if err != nil {
		return ide.Word{}, busError("read "+reg.String(), err)
	}
	return w, nil
}

func (d *Device) write(reg ide.Register, w ide.Word) error {
	if err := d.bus.Write(reg, w); err != nil {
		return busError("write "+reg.String(), err)
	}
	return nil
}

func (d *Device) readStatus() (Status, error) {
	w, err := d.read(ide.RegStatus)
	if err != nil {
		return 0, err
	}
	return Status(w.Low), nil
}

func (d *Device) commandError(op string, st Status) error {
	w, err := d.read(ide.RegError)
	if err != nil {
		return err
	}
	return &CommandError{Op: op, Status: st, Err: ErrorReg(w.Low)}
}

// sendPacket issues PACKET and writes the command bytes two per word,
// padding with zero words up to the packet size unless pad is false.
func (d *Device) sendPacket(ctx context.Context, pkt []byte, pad bool) error {
	if err := d.write(ide.RegDeviceControl, ide.Byte(uint8(DevCtlNIEN))); err != nil {
		return err
	}
	if err := d.write(ide.RegCommand, ide.Byte(uint8(CmdPacket))); err != nil {
		return err
	}

	i := 0
	for ; i < len(pkt); i += 2 {
		w := ide.Word{Low: pkt[i]}
		if i+1 < len(pkt) {
			w.High = pkt[i+1]
		}
		if err := d.write(ide.RegData, w); err != nil {
			return err
		}
	}
	if pad {
		for ; i < d.packetSize; i += 2 {
			if err := d.write(ide.RegData, ide.Word{}); err != nil {
				return err
			}
		}
	}

	_, err := d.waitNotBusy(ctx, Opcode(pkt[0]).String())
	return err
}

// Transfer reports how a response read went.
type Transfer struct {
	Requested int
	Read      int
	// Underrun is set when DRQ cleared before Requested bytes arrived.
	Underrun bool
	// Overrun is set when DRQ was still set after Requested bytes and the
	// surplus was not flushed.
	Overrun bool
	// Flushed counts surplus bytes drained and discarded.
	Flushed int
}

// readResponse reads Data words into buf while the device keeps DRQ set.
// Short and long transfers are reported, not failed. With flush, data
// beyond len(buf) is drained until DRQ clears.
func (d *Device) readResponse(buf []byte, flush bool) (Transfer, error) {
	tr := Transfer{Requested: len(buf)}
	var st Status

	if len(buf) > 0 {
		for {
			w, err := d.read(ide.RegData)
			if err != nil {
				return tr, err
			}
			buf[tr.Read] = w.Low
			tr.Read++
			if tr.Read < len(buf) {
				buf[tr.Read] = w.High
				tr.Read++
			}

			if st, err = d.readStatus(); err != nil {
				return tr, err
			}
			if tr.Read >= len(buf) || !st.Has(StatusDRQ) {
				break
			}
		}

		if tr.Read < len(buf) {
			tr.Underrun = true
			d.log.WithFields(logrus.Fields{"wanted": len(buf), "got": tr.Read}).Debug("Buffer underrun when reading response")
		} else if st.Has(StatusDRQ) && !flush {
			tr.Overrun = true
			d.log.WithField("wanted", len(buf)).Debug("Buffer overrun when reading response")
		}
	} else {
		var err error
		if st, err = d.readStatus(); err != nil {
			return tr, err
		}
	}

	if flush {
		for st.Has(StatusDRQ) {
			if _, err := d.read(ide.RegData); err != nil {
				return tr, err
			}
			tr.Flushed += 2

			var err error
			if st, err = d.readStatus(); err != nil {
				return tr, err
			}
		}
		if tr.Flushed > 0 {
			d.log.WithField("bytes", tr.Flushed).Trace("Flushed surplus response data")
		}
	}
	return tr, nil
}

// exec sends pkt and, when resp is non-nil, reads the response into it. It
// returns the number of response bytes read.
func (d *Device) exec(ctx context.Context, pkt []byte, resp []byte) (int, error) {
	op := Opcode(pkt[0])
	if err := d.sendPacket(ctx, pkt, true); err != nil {
		return 0, err
	}

	if resp == nil {
		st, err := d.readStatus()
		if err != nil {
			return 0, err
		}
		if st.Has(StatusERR) {
			return 0, d.commandError(op.String(), st)
		}
		return 0, nil
	}

	if op == OpReadTOC && d.quirks.NoDRQInTOC {
		st, err := d.waitNotBusy(ctx, op.String())
		if err != nil {
			return 0, err
		}
		if st.Has(StatusERR) {
			return 0, d.commandError(op.String(), st)
		}
	} else if _, err := d.waitDRQ(ctx, op.String()); err != nil {
		return 0, err
	}

	tr, err := d.readResponse(resp, false)
	if err != nil {
		return 0, err
	}
	return tr.Read, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
