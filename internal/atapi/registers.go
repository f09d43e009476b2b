package atapi

import "strings"

// Status is the Status/AltStatus register. Bit 0 is ERR, bit 7 is BSY.
type Status uint8

const (
	StatusERR  Status = 1 << iota // error (CHK for packet commands)
	StatusIDX                     // index mark
	StatusCORR                    // data corrected
	StatusDRQ                     // data request
	StatusDSC                     // seek complete
	StatusDF                      // device fault
	StatusDRDY                    // device ready
	StatusBSY                     // busy
)

// Has reports whether every bit in bits is set.
func (s Status) Has(bits Status) bool {
	return s&bits == bits
}

func (s Status) String() string {
	return bitNames(uint8(s), [8]string{"ERR", "IDX", "CORR", "DRQ", "DSC", "DF", "DRDY", "BSY"})
}

// ErrorReg is the Error register. For packet commands the upper nibble
// carries the SCSI sense key.
type ErrorReg uint8

const (
	ErrorAMNF  ErrorReg = 1 << iota // address mark not found
	ErrorTK0NF                      // track 0 not found
	ErrorABRT                       // command aborted
	ErrorMCR                        // media change requested
	ErrorIDNF                       // ID mark not found
	ErrorMC                         // media changed
	ErrorUNC                        // uncorrectable data error
	ErrorBBK                        // bad block
)

// SenseKey returns the sense key reported alongside a failed packet command.
func (e ErrorReg) SenseKey() uint8 {
	return uint8(e) >> 4
}

func (e ErrorReg) String() string {
	return bitNames(uint8(e), [8]string{"AMNF", "TK0NF", "ABRT", "MCR", "IDNF", "MC", "UNC", "BBK"})
}

// Feature is the Feature register as written before packet commands.
type Feature uint8

const (
	FeatureDMA     Feature = 1 << 0
	FeatureOverlap Feature = 1 << 1
)

// DeviceControl is the Device Control register.
type DeviceControl uint8

const (
	DevCtlNIEN DeviceControl = 1 << 1 // interrupts disabled
	DevCtlSRST DeviceControl = 1 << 2 // software reset
	DevCtlHOB  DeviceControl = 1 << 7 // high order byte
)

func bitNames(v uint8, names [8]string) string {
	if v == 0 {
		return "-"
	}
	var parts []string
	for i := 7; i >= 0; i-- {
		if v&(1<<i) != 0 {
			parts = append(parts, names[i])
		}
	}
	return strings.Join(parts, "|")
}
