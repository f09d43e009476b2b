// Package sim simulates an ATAPI CD changer at the IDE register level.
//
// The simulated drive understands the task-file and packet commands the
// atapi package issues, keeps a play position that advances with its clock,
// and records every command packet for inspection.
package sim

import (
	"errors"
	"sync"
	"time"

	"cdchanger/internal/ide"
	"cdchanger/pkg/models"
)

// Config describes a simulated drive.
type Config struct {
	Model    string
	Serial   string
	Firmware string
	// PacketSize is 12 or 16.
	PacketSize int
	// Slots holds one entry per changer slot, nil for an empty slot. A
	// single slot makes a plain drive.
	Slots []*Disc
	// CloseDelay is how long the drive takes to classify a disc after the
	// tray closes.
	CloseDelay time.Duration
	// ChangeDelay is how long a disc change takes.
	ChangeDelay time.Duration
	// ScanSpeed is how many times faster than real time SCAN moves.
	ScanSpeed int
	// Now is the drive's clock.
	Now func() time.Time
}

// Status register bits.
const (
	stERR  = 0x01
	stDRQ  = 0x08
	stDSC  = 0x10
	stDRDY = 0x40
	stBSY  = 0x80
)

type phase int

const (
	phaseIdle phase = iota
	phasePacket
	phaseData
)

type playMode int

const (
	modeIdle playMode = iota
	modePlaying
	modePaused
	modeScanning
	modeCompleted
)

// Changer is a simulated ATAPI CD changer. It implements ide.Bus.
type Changer struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	// task file
	status   uint8
	errReg   uint8
	feature  uint8
	cylLow   uint8
	cylHigh  uint8
	devCtl   uint8
	stuckBSY bool
	failNext error

	phase  phase
	packet []byte
	out    []byte
	outPos int

	slots       []*Disc
	current     int
	target      int
	doorOpen    bool
	readyAt     time.Time
	changing    bool
	sense       [3]uint8 // key, asc, ascq
	spinning    bool
	speedLimit  uint16
	packets     [][]byte
	resetCount  int
	diagCount   int
	identifyCnt int

	mode     playMode
	playFrom models.MSF
	playTo   models.MSF
	since    time.Time
	scanFwd  bool
	holdPos  models.MSF
}

var _ ide.Bus = (*Changer)(nil)

// New returns a powered-up simulated drive with its tray closed.
func New(cfg Config) *Changer {
	if cfg.Model == "" {
		cfg.Model = "CDCHANGER SIMULATOR"
	}
	if cfg.Serial == "" {
		cfg.Serial = "SIM0001"
	}
	if cfg.Firmware == "" {
		cfg.Firmware = "1.0"
	}
	if cfg.PacketSize != 16 {
		cfg.PacketSize = 12
	}
	if len(cfg.Slots) == 0 {
		cfg.Slots = []*Disc{nil}
	}
	if cfg.ScanSpeed <= 0 {
		cfg.ScanSpeed = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Changer{
		cfg:   cfg,
		now:   cfg.Now,
		slots: append([]*Disc(nil), cfg.Slots...),
	}
	c.powerOn()
	return c
}

func (c *Changer) powerOn() {
	c.status = stDRDY | stDSC
	c.errReg = 0x01
	c.cylLow, c.cylHigh = 0x14, 0xEB
	c.phase = phaseIdle
	c.packet = nil
	c.out = nil
	c.mode = modeIdle
}

// Reset implements ide.Bus.
func (c *Changer) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(); err != nil {
		return err
	}
	c.resetCount++
	c.powerOn()
	return nil
}

// Read implements ide.Bus.
func (c *Changer) Read(reg ide.Register) (ide.Word, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(); err != nil {
		return ide.Word{}, err
	}

	switch reg {
	case ide.RegData:
		return c.readData(), nil
	case ide.RegError:
		return ide.Word{Low: c.errReg}, nil
	case ide.RegSectorCount:
		// interrupt reason: I/O set while sending data
		if c.phase == phaseData {
			return ide.Word{Low: 0x02}, nil
		}
		return ide.Word{Low: 0x03}, nil
	case ide.RegCylinderLow:
		return ide.Word{Low: c.cylLow}, nil
	case ide.RegCylinderHigh:
		return ide.Word{Low: c.cylHigh}, nil
	case ide.RegStatus, ide.RegAltStatus:
		if c.phase == phasePacket && len(c.packet) > 0 {
			c.execute()
		}
		st := c.status
		if c.stuckBSY {
			st |= stBSY
		}
		return ide.Word{Low: st}, nil
	}
	return ide.Word{Low: 0xFF, High: 0xFF}, nil
}

// Write implements ide.Bus.
func (c *Changer) Write(reg ide.Register, w ide.Word) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(); err != nil {
		return err
	}

	switch reg {
	case ide.RegData:
		if c.phase == phasePacket {
			c.packet = append(c.packet, w.Low, w.High)
			if len(c.packet) >= c.cfg.PacketSize {
				c.execute()
			}
		}
	case ide.RegFeature:
		c.feature = w.Low
	case ide.RegCylinderLow:
		c.cylLow = w.Low
	case ide.RegCylinderHigh:
		c.cylHigh = w.Low
	case ide.RegDeviceControl:
		c.devCtl = w.Low
		if w.Low&0x04 != 0 {
			c.powerOn()
		}
	case ide.RegCommand:
		c.command(w.Low)
	}
	return nil
}

func (c *Changer) command(cmd uint8) {
	c.errReg = 0
	switch cmd {
	case 0x90: // EXECUTE DEVICE DIAGNOSTIC
		c.diagCount++
		c.errReg = 0x01
		c.cylLow, c.cylHigh = 0x14, 0xEB
		c.status = stDRDY | stDSC
	case 0xA1: // IDENTIFY PACKET DEVICE
		c.identifyCnt++
		c.sendData(c.identifyData())
	case 0xA0: // PACKET
		c.phase = phasePacket
		c.packet = c.packet[:0]
		c.status = stDRDY | stDRQ
	default:
		c.errReg = 0x04 // ABRT
		c.status = stDRDY | stERR
	}
}

func (c *Changer) readData() ide.Word {
	if c.phase != phaseData {
		return ide.Word{}
	}
	var w ide.Word
	if c.outPos < len(c.out) {
		w.Low = c.out[c.outPos]
	}
	if c.outPos+1 < len(c.out) {
		w.High = c.out[c.outPos+1]
	}
	c.outPos += 2
	if c.outPos >= len(c.out) {
		c.phase = phaseIdle
		c.status = stDRDY | stDSC
	}
	return w
}

func (c *Changer) sendData(b []byte) {
	if len(b) == 0 {
		c.phase = phaseIdle
		c.status = stDRDY | stDSC
		return
	}
	c.out = b
	c.outPos = 0
	c.phase = phaseData
	c.status = stDRDY | stDSC | stDRQ
}

func (c *Changer) identifyData() []byte {
	b := make([]byte, 512)
	general := uint16(0x85C0) // ATAPI, CD-ROM, removable
	if c.cfg.PacketSize == 16 {
		general |= 0x01
	}
	b[0], b[1] = uint8(general), uint8(general>>8)
	putATAString(b[20:40], c.cfg.Serial)
	putATAString(b[46:54], c.cfg.Firmware)
	putATAString(b[54:94], c.cfg.Model)
	return b
}

func putATAString(dst []byte, s string) {
	for i := range dst {
		dst[i] = ' '
	}
	copy(dst, s)
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i], dst[i+1] = dst[i+1], dst[i]
	}
}

func (c *Changer) takeFailure() error {
	err := c.failNext
	c.failNext = nil
	return err
}

// ErrInjected is the error FailNext injects unless told otherwise.
var ErrInjected = errors.New("injected bus failure")
