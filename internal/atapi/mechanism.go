package atapi

import (
	"context"

	"cdchanger/pkg/models"

	"github.com/sirupsen/logrus"
)

// Room for the largest slot table MECHANISM STATUS can describe.
const mechStatusAlloc = mechStatusHeaderLen + 31*mechSlotEntryLen

// Start spins the disc up, or down when start is false.
func (d *Device) Start(ctx context.Context, start bool) error {
	d.log.WithField("start", start).Debug("Start/stop unit")
	_, err := d.exec(ctx, startStopUnitPacket(start, false), nil)
	return err
}

// Eject opens the tray, or closes it when open is false.
func (d *Device) Eject(ctx context.Context, open bool) error {
	d.log.WithField("open", open).Info("Eject")
	if open && d.quirks.ChangerEjectHack {
		return d.changerEject(ctx)
	}
	_, err := d.exec(ctx, startStopUnitPacket(!open, true), nil)
	return err
}

// changerEject opens the tray of changers that ignore START STOP UNIT with
// LoEj: unload towards slot 2, then a zero-length PLAY AUDIO gets the
// mechanism moving.
func (d *Device) changerEject(ctx context.Context) error {
	if _, err := d.exec(ctx, loadUnloadPacket(2, false), nil); err != nil {
		return err
	}
	at := models.MSF{M: 0, S: 2, F: 0}
	return d.sendPacket(ctx, playAudioMSFPacket(at, at), true)
}

// LoadUnload asks a changer to put the disc in slot under the pickup. Some
// changers don't move until they get another command.
func (d *Device) LoadUnload(ctx context.Context, slot int) error {
	d.log.WithField("slot", slot).Info("Load/unload")
	_, err := d.exec(ctx, loadUnloadPacket(uint8(slot), true), nil)
	return err
}

// QueryState reads and decodes MECHANISM STATUS.
func (d *Device) QueryState(ctx context.Context) (MechInfo, error) {
	buf := make([]byte, mechStatusAlloc)
	n, err := d.exec(ctx, mechanismStatusPacket(mechStatusAlloc), buf)
	if err != nil {
		return MechInfo{}, err
	}
	m, err := decodeMechanismStatus(buf[:n])
	if err != nil {
		return MechInfo{}, err
	}

	d.log.WithFields(logrus.Fields{
		"slots":   m.SlotCount,
		"current": m.CurrentSlot,
		"door":    m.DoorOpen,
		"changer": m.ChangerState,
	}).Trace("Mechanism status")
	return m, nil
}

// CheckMedia returns the medium type code from MODE SENSE.
func (d *Device) CheckMedia(ctx context.Context) (MediaType, error) {
	buf := make([]byte, modeSenseHeaderLen)
	n, err := d.exec(ctx, modeSensePacket(pageCapabilities, modeSenseHeaderLen), buf)
	if err != nil {
		return 0, err
	}
	return decodeMediaType(buf[:n])
}

// TestUnitReady returns nil when the unit is ready, or a *CommandError
// carrying the sense key.
func (d *Device) TestUnitReady(ctx context.Context) error {
	_, err := d.exec(ctx, testUnitReadyPacket(), nil)
	return err
}

// RequestSense returns the sense data of the last failed command.
func (d *Device) RequestSense(ctx context.Context) (Sense, error) {
	buf := make([]byte, senseLen)
	n, err := d.exec(ctx, requestSensePacket(senseLen), buf)
	if err != nil {
		return Sense{}, err
	}
	return decodeSense(buf[:n])
}

// SetSpeed limits the read speed, in kB/s.
func (d *Device) SetSpeed(ctx context.Context, kbps int) error {
	d.log.WithField("kbps", kbps).Info("Set CD speed")
	_, err := d.exec(ctx, setCDSpeedPacket(uint16(kbps)), nil)
	return err
}
