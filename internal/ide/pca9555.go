package ide

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// PCA9555 register map.
const (
	pcaInputA  = 0x00
	pcaInputB  = 0x01
	pcaOutputA = 0x02
	pcaOutputB = 0x03
	pcaConfigA = 0x06
	pcaConfigB = 0x07
)

// Control lines on port B of the flags expander.
const (
	ctlRST  = 1 << 5
	ctlDIOW = 1 << 6
	ctlDIOR = 1 << 7

	ctlMask = ctlDIOW | ctlDIOR | ctlRST
)

// i2cSlave is the I2C_SLAVE ioctl request from linux/i2c-dev.h.
const i2cSlave = 0x0703

// I2CBus drives an IDE bus through two PCA9555 GPIO expanders on a Linux
// i2c-dev adapter: one carries the 16 data lines, port B of the other the
// address, chip select and strobe lines.
type I2CBus struct {
	mu       sync.Mutex
	fd       int
	addr     uint8
	flags    uint8
	databus  uint8
	control  uint8
	logger   *logrus.Logger
	resetLow time.Duration
}

// OpenI2CBus opens the i2c-dev device at path.
func OpenI2CBus(path string, flagsAddr, databusAddr uint8, logger *logrus.Logger) (*I2CBus, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &I2CBus{
		fd:       fd,
		flags:    flagsAddr,
		databus:  databusAddr,
		control:  0xF8,
		logger:   logger,
		resetLow: 40 * time.Millisecond,
	}, nil
}

// Close releases the i2c-dev file descriptor.
func (b *I2CBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return unix.Close(b.fd)
}

// Read performs a DIOR strobe cycle on reg.
func (b *I2CBus) Read(reg Register) (Word, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Data bus to input
	if err := b.out(b.databus, pcaConfigA, 0xFF); err != nil {
		return Word{}, err
	}
	if err := b.out(b.databus, pcaConfigB, 0xFF); err != nil {
		return Word{}, err
	}

	b.control = (b.control & ctlMask) | (uint8(reg) &^ ctlMask)
	b.control &^= ctlDIOR
	if err := b.out(b.flags, pcaOutputB, b.control); err != nil {
		return Word{}, err
	}

	var w Word
	var err error
	if w.Low, err = b.in(b.databus, pcaInputA); err != nil {
		return Word{}, err
	}
	if w.High, err = b.in(b.databus, pcaInputB); err != nil {
		return Word{}, err
	}

	b.control |= ctlDIOR
	if err := b.out(b.flags, pcaOutputB, b.control); err != nil {
		return Word{}, err
	}

	b.logger.WithFields(logrus.Fields{
		"register": reg,
		"low":      w.Low,
		"high":     w.High,
	}).Trace("IDE read")
	return w, nil
}

// Write performs a DIOW strobe cycle on reg.
func (b *I2CBus) Write(reg Register, w Word) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.control = (b.control & ctlMask) | (uint8(reg) &^ ctlMask)
	b.control |= ctlDIOW
	if err := b.out(b.flags, pcaOutputB, b.control); err != nil {
		return err
	}

	b.logger.WithFields(logrus.Fields{
		"register": reg,
		"low":      w.Low,
		"high":     w.High,
	}).Trace("IDE write")

	steps := []struct{ addr, reg, val uint8 }{
		{b.databus, pcaConfigA, 0x00},
		{b.databus, pcaConfigB, 0x00},
		{b.databus, pcaOutputA, w.Low},
		{b.databus, pcaOutputB, w.High},
		{b.flags, pcaOutputB, b.control &^ ctlDIOW},
		{b.flags, pcaOutputB, b.control},
		// back to high-Z
		{b.databus, pcaConfigA, 0xFF},
		{b.databus, pcaConfigB, 0xFF},
	}
	for _, s := range steps {
		if err := b.out(s.addr, s.reg, s.val); err != nil {
			return err
		}
	}
	return nil
}

// Reset holds RST low for 40 ms and releases every control line.
func (b *I2CBus) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("IDE bus reset")
	if err := b.out(b.flags, pcaConfigB, 0x00); err != nil {
		return err
	}
	if err := b.out(b.flags, pcaOutputB, ^uint8(ctlRST)); err != nil {
		return err
	}
	time.Sleep(b.resetLow)

	b.control = 0xFF
	if err := b.out(b.flags, pcaOutputB, b.control); err != nil {
		return err
	}
	time.Sleep(b.resetLow / 2)
	return nil
}

func (b *I2CBus) selectDevice(addr uint8) error {
	if b.addr == addr {
		return nil
	}
	if err := unix.IoctlSetInt(b.fd, i2cSlave, int(addr)); err != nil {
		return fmt.Errorf("failed to select i2c device 0x%02x: %w", addr, err)
	}
	b.addr = addr
	return nil
}

func (b *I2CBus) out(addr, reg, val uint8) error {
	if err := b.selectDevice(addr); err != nil {
		return err
	}
	if _, err := unix.Write(b.fd, []byte{reg, val}); err != nil {
		return fmt.Errorf("i2c write 0x%02x::0x%02x failed: %w", addr, reg, err)
	}
	return nil
}

func (b *I2CBus) in(addr, reg uint8) (uint8, error) {
	if err := b.selectDevice(addr); err != nil {
		return 0, err
	}
	if _, err := unix.Write(b.fd, []byte{reg}); err != nil {
		return 0, fmt.Errorf("i2c write 0x%02x::0x%02x failed: %w", addr, reg, err)
	}
	buf := make([]byte, 1)
	n, err := unix.Read(b.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("i2c read 0x%02x::0x%02x failed: %w", addr, reg, err)
	}
	if n != 1 {
		return 0, fmt.Errorf("i2c read 0x%02x::0x%02x returned %d bytes", addr, reg, n)
	}
	return buf[0], nil
}
