// Package ide provides register-level access to a parallel ATA (IDE) bus.
package ide

import "fmt"

// Register is an IDE register address as decoded by the bus adapter: bits
// 0-2 drive A0-A2, bit 3 is CS1FX and bit 4 is CS3FX (both active low).
type Register uint8

// Command block registers (CS1FX asserted).
const (
	RegData         Register = 0xF0
	RegError        Register = 0xF1 // read
	RegFeature      Register = 0xF1 // write
	RegSectorCount  Register = 0xF2
	RegSectorNumber Register = 0xF3
	RegCylinderLow  Register = 0xF4
	RegCylinderHigh Register = 0xF5
	RegDriveSelect  Register = 0xF6
	RegStatus       Register = 0xF7 // read
	RegCommand      Register = 0xF7 // write
)

// Control block registers (CS3FX asserted).
const (
	RegAltStatus     Register = 0xEE // read
	RegDeviceControl Register = 0xEE // write
)

func (r Register) String() string {
	switch r {
	case RegData:
		return "Data"
	case RegError:
		return "Error/Feature"
	case RegSectorCount:
		return "SectorCount"
	case RegSectorNumber:
		return "SectorNumber"
	case RegCylinderLow:
		return "CylinderLow"
	case RegCylinderHigh:
		return "CylinderHigh"
	case RegDriveSelect:
		return "DriveSelect"
	case RegStatus:
		return "Status/Command"
	case RegAltStatus:
		return "AltStatus/DeviceControl"
	default:
		return fmt.Sprintf("Register(0x%02X)", uint8(r))
	}
}

// Word is one 16-bit bus transaction. Low carries DD0-DD7, High DD8-DD15.
type Word struct {
	Low  uint8
	High uint8
}

// Byte returns a write word for an 8-bit register. The unused high lane is
// driven to 0xFF.
func Byte(v uint8) Word {
	return Word{Low: v, High: 0xFF}
}

// WordOf splits a 16-bit value into its byte lanes.
func WordOf(v uint16) Word {
	return Word{Low: uint8(v), High: uint8(v >> 8)}
}

// Value returns the word as a 16-bit value.
func (w Word) Value() uint16 {
	return uint16(w.High)<<8 | uint16(w.Low)
}

// Bus is the register interface of an IDE bus. A failed transaction is an
// error, never a sentinel value.
type Bus interface {
	Read(reg Register) (Word, error)
	Write(reg Register, w Word) error
	// Reset pulses the hardware reset line.
	Reset() error
}
