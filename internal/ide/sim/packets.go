package sim

import (
	"encoding/binary"
	"time"

	"cdchanger/pkg/models"
)

// Sense keys.
const (
	senseNone           = 0x0
	senseNotReady       = 0x2
	senseIllegalRequest = 0x5
)

func (c *Changer) execute() {
	c.packets = append(c.packets, append([]byte(nil), c.packet...))
	pkt := append([]byte(nil), c.packet...)
	for len(pkt) < c.cfg.PacketSize {
		pkt = append(pkt, 0)
	}
	c.packet = c.packet[:0]
	c.phase = phaseIdle
	c.status = stDRDY | stDSC
	c.errReg = 0
	c.settle()
	c.advance()

	switch pkt[0] {
	case 0x00: // TEST UNIT READY
		if !c.ready() {
			c.checkCondition(senseNotReady, 0x3A, 0)
		}
	case 0x03: // REQUEST SENSE
		c.requestSense(pkt)
	case 0x1B: // START STOP UNIT
		c.startStopUnit(pkt[4]&0x01 != 0, pkt[4]&0x02 != 0)
	case 0x42: // READ SUB-CHANNEL
		c.reply(c.subchannel(), binary.BigEndian.Uint16(pkt[7:9]))
	case 0x43: // READ TOC
		c.readTOC(pkt)
	case 0x47: // PLAY AUDIO MSF
		c.play(getMSF(pkt[3:6]), getMSF(pkt[6:9]))
	case 0x4B: // PAUSE/RESUME
		c.pauseResume(pkt[8]&0x01 != 0)
	case 0x4E: // STOP PLAY/SCAN
		c.stop()
	case 0x5A: // MODE SENSE(10)
		c.reply(c.modeSense(), binary.BigEndian.Uint16(pkt[7:9]))
	case 0xA6: // LOAD/UNLOAD
		c.loadUnload(pkt[4]&0x01 != 0, pkt[4]&0x02 != 0, int(pkt[8]))
	case 0xBA: // SCAN
		c.scan(pkt[1]&0x10 == 0, getMSF(pkt[3:6]))
	case 0xBB: // SET CD SPEED
		c.speedLimit = binary.BigEndian.Uint16(pkt[2:4])
	case 0xBD: // MECHANISM STATUS
		c.reply(c.mechanismStatus(), binary.BigEndian.Uint16(pkt[8:10]))
	default:
		c.checkCondition(senseIllegalRequest, 0x20, 0)
	}
}

func getMSF(b []byte) models.MSF {
	return models.MSF{M: b[0], S: b[1], F: b[2]}
}

func putMSF(b []byte, t models.MSF) {
	b[0], b[1], b[2] = t.M, t.S, t.F
}

func (c *Changer) checkCondition(key, asc, ascq uint8) {
	c.sense = [3]uint8{key, asc, ascq}
	c.errReg = key << 4
	c.status = stDRDY | stDSC | stERR
}

func (c *Changer) reply(b []byte, alloc uint16) {
	c.sense = [3]uint8{senseNone, 0, 0}
	if int(alloc) < len(b) {
		b = b[:alloc]
	}
	c.sendData(b)
}

func (c *Changer) disc() *Disc {
	if c.doorOpen || c.changing {
		return nil
	}
	return c.slots[c.current]
}

func (c *Changer) ready() bool {
	return c.disc() != nil && !c.now().Before(c.readyAt)
}

func (c *Changer) requestSense(pkt []byte) {
	b := make([]byte, 18)
	b[0] = 0x70
	b[2] = c.sense[0]
	b[7] = 10
	b[12], b[13] = c.sense[1], c.sense[2]
	alloc := uint16(pkt[4])
	if int(alloc) < len(b) {
		b = b[:alloc]
	}
	c.sendData(b)
}

func (c *Changer) startStopUnit(start, loadEject bool) {
	if !loadEject {
		c.spinning = start
		if !start {
			c.mode = modeIdle
		}
		return
	}
	if start {
		c.closeTray()
	} else {
		c.openTray()
	}
}

func (c *Changer) openTray() {
	c.doorOpen = true
	c.changing = false
	c.mode = modeIdle
}

func (c *Changer) closeTray() {
	if !c.doorOpen {
		return
	}
	c.doorOpen = false
	c.readyAt = c.now().Add(c.cfg.CloseDelay)
}

func (c *Changer) loadUnload(start, loUnlo bool, slot int) {
	if !loUnlo {
		return
	}
	if !start {
		c.openTray()
		return
	}
	if slot < 0 || slot >= len(c.slots) {
		c.checkCondition(senseIllegalRequest, 0x21, 0)
		return
	}
	c.mode = modeIdle
	c.doorOpen = false
	c.target = slot
	c.changing = true
	c.readyAt = c.now().Add(c.cfg.ChangeDelay)
	c.settle()
}

// settle completes a disc change whose time is up.
func (c *Changer) settle() {
	if c.changing && !c.now().Before(c.readyAt) {
		c.current = c.target
		c.changing = false
	}
}

func (c *Changer) play(from, to models.MSF) {
	d := c.disc()
	if d == nil || !c.ready() {
		c.checkCondition(senseNotReady, 0x3A, 0)
		return
	}
	if !from.Before(to) {
		// zero length play only positions the pickup
		c.mode = modeIdle
		c.holdPos = from
		return
	}
	if to.Frames() > d.LeadOut.Frames() {
		to = d.LeadOut
	}
	c.mode = modePlaying
	c.playFrom = from
	c.playTo = to
	c.since = c.now()
}

func (c *Changer) pauseResume(resume bool) {
	switch {
	case resume && c.mode == modePaused:
		c.mode = modePlaying
		c.playFrom = c.holdPos
		c.since = c.now()
	case !resume && (c.mode == modePlaying || c.mode == modeScanning):
		c.holdPos = c.position()
		c.mode = modePaused
	case c.mode == modeIdle || c.mode == modeCompleted:
		c.checkCondition(senseIllegalRequest, 0x2C, 0)
	}
}

func (c *Changer) stop() {
	c.mode = modeIdle
	c.holdPos = models.MSF{}
}

func (c *Changer) scan(forward bool, from models.MSF) {
	if c.disc() == nil {
		c.checkCondition(senseNotReady, 0x3A, 0)
		return
	}
	if c.mode != modeScanning {
		c.playTo = c.disc().LeadOut
	}
	c.mode = modeScanning
	c.scanFwd = forward
	c.playFrom = from
	c.since = c.now()
}

// position returns the current absolute play position.
func (c *Changer) position() models.MSF {
	switch c.mode {
	case modePlaying:
		p := c.playFrom.Add(models.MSFFromDuration(c.now().Sub(c.since)))
		if !p.Before(c.playTo) {
			return c.playTo
		}
		return p
	case modeScanning:
		moved := models.MSFFromDuration(c.now().Sub(c.since) * time.Duration(c.cfg.ScanSpeed))
		if c.scanFwd {
			p := c.playFrom.Add(moved)
			if !p.Before(c.playTo) {
				return c.playTo
			}
			return p
		}
		return c.playFrom.Sub(moved)
	}
	return c.holdPos
}

// advance ends playback that has run past its end point.
func (c *Changer) advance() {
	if c.mode != modePlaying && c.mode != modeScanning {
		return
	}
	if d := c.disc(); d == nil {
		c.mode = modeIdle
		return
	}
	if p := c.position(); !p.Before(c.playTo) {
		c.holdPos = p
		c.mode = modeCompleted
	}
}

func (c *Changer) subchannel() []byte {
	b := make([]byte, 16)
	b[3] = 12
	b[4] = 0x01

	switch c.mode {
	case modePlaying, modeScanning:
		b[1] = 0x11
	case modePaused:
		b[1] = 0x12
	case modeCompleted:
		b[1] = 0x13
	default:
		b[1] = 0x15
	}

	d := c.disc()
	if d == nil || len(d.Tracks) == 0 {
		return b
	}
	pos := c.position()
	if c.mode == modeIdle && pos.IsZero() {
		pos = d.Tracks[0].Position
	}
	t, _ := d.trackAt(pos)
	b[5] = 0x10
	if t.IsData {
		b[5] |= 0x04
	}
	b[6] = uint8(t.Number)
	b[7] = 1
	if pos.Before(t.Position) {
		b[7] = 0
	}
	putMSF(b[9:12], pos)
	putMSF(b[13:16], pos.Sub(t.Position))
	return b
}

func (c *Changer) readTOC(pkt []byte) {
	d := c.disc()
	if d == nil || !c.ready() {
		c.checkCondition(senseNotReady, 0x3A, 0)
		return
	}
	if pkt[2]&0x0F == 5 {
		c.readCDText(d, pkt)
		return
	}

	n := len(d.Tracks) + 1
	b := make([]byte, 4+8*n)
	binary.BigEndian.PutUint16(b[0:2], uint16(len(b)-2))
	b[2] = uint8(d.Tracks[0].Number)
	b[3] = uint8(d.Tracks[len(d.Tracks)-1].Number)
	for i, t := range d.Tracks {
		e := b[4+8*i:]
		e[1] = 0x10
		if t.IsData {
			e[1] |= 0x04
		}
		if t.PreEmphasis {
			e[1] |= 0x01
		}
		e[2] = uint8(t.Number)
		putMSF(e[5:8], t.Position)
	}
	e := b[4+8*(n-1):]
	e[1] = 0x10
	e[2] = models.LeadOutTrack
	putMSF(e[5:8], d.LeadOut)

	c.reply(b, binary.BigEndian.Uint16(pkt[7:9]))
}

func (c *Changer) readCDText(d *Disc, pkt []byte) {
	if len(d.CDText) == 0 {
		c.checkCondition(senseIllegalRequest, 0x24, 0)
		return
	}
	b := make([]byte, 4+len(d.CDText))
	binary.BigEndian.PutUint16(b[0:2], uint16(len(b)-2))
	copy(b[4:], d.CDText)
	c.reply(b, binary.BigEndian.Uint16(pkt[7:9]))
}

func (c *Changer) mediaType() uint8 {
	switch {
	case c.doorOpen:
		return 0x71
	case c.changing || c.now().Before(c.readyAt):
		return 0x00
	case c.slots[c.current] == nil:
		return 0x70
	}
	return c.slots[c.current].mediaType()
}

func (c *Changer) modeSense() []byte {
	b := make([]byte, 8+20)
	binary.BigEndian.PutUint16(b[0:2], uint16(len(b)-2))
	b[2] = c.mediaType()
	b[8] = 0x2A
	b[9] = 18
	// audio play, tray loader with eject, 4x
	b[12] = 0x01
	b[14] = 0x01<<5 | 0x08
	binary.BigEndian.PutUint16(b[16:18], 706)
	return b
}

func (c *Changer) mechanismStatus() []byte {
	changer := len(c.slots) > 1
	n := 0
	if changer {
		n = len(c.slots)
	}
	b := make([]byte, 8+4*n)

	b[0] = uint8(c.current) & 0x1F
	if c.changing {
		b[0] |= 1 << 5
	}
	if c.doorOpen {
		b[1] |= 0x10
	}
	if c.mode == modePlaying || c.mode == modeScanning {
		b[1] |= 1 << 5
	}
	b[5] = uint8(n)
	binary.BigEndian.PutUint16(b[6:8], uint16(4*n))
	for i := 0; i < n; i++ {
		if c.slots[i] != nil {
			b[8+4*i] |= 0x80
		}
	}
	return b
}
