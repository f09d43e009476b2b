package atapi

import (
	"encoding/binary"

	"cdchanger/pkg/models"
)

// Command packet builders. Multi-byte fields are big-endian.

func putMSF(b []byte, t models.MSF) {
	b[0], b[1], b[2] = t.M, t.S, t.F
}

func testUnitReadyPacket() []byte {
	return make([]byte, 6)
}

func requestSensePacket(alloc uint8) []byte {
	p := make([]byte, 6)
	p[0] = byte(OpRequestSense)
	p[4] = alloc
	return p
}

func startStopUnitPacket(start, loadEject bool) []byte {
	p := make([]byte, 6)
	p[0] = byte(OpStartStopUnit)
	if start {
		p[4] |= 1 << 0
	}
	if loadEject {
		p[4] |= 1 << 1
	}
	return p
}

func loadUnloadPacket(slot uint8, load bool) []byte {
	p := make([]byte, 12)
	p[0] = byte(OpLoadUnload)
	p[4] = 1 << 1 // LoUnlo
	if load {
		p[4] |= 1 << 0
	}
	p[8] = slot
	return p
}

func playAudioMSFPacket(start, end models.MSF) []byte {
	p := make([]byte, 10)
	p[0] = byte(OpPlayAudioMSF)
	putMSF(p[3:6], start)
	putMSF(p[6:9], end)
	return p
}

func pauseResumePacket(resume bool) []byte {
	p := make([]byte, 10)
	p[0] = byte(OpPauseResume)
	if resume {
		p[8] = 1
	}
	return p
}

func stopPlayScanPacket() []byte {
	p := make([]byte, 10)
	p[0] = byte(OpStopPlayScan)
	return p
}

// scanAddrAbsMSF in the address type field of SCAN, bits 6-7 of byte 9.
const scanAddrAbsMSF = 0x01 << 6

func scanPacket(forward bool, from models.MSF) []byte {
	p := make([]byte, 12)
	p[0] = byte(OpScan)
	if !forward {
		p[1] |= 1 << 4 // DIRECT
	}
	putMSF(p[3:6], from)
	p[9] = scanAddrAbsMSF
	return p
}

// Mode page carrying CD capabilities and mechanical status.
const pageCapabilities = 0x2A

func modeSensePacket(page uint8, alloc uint16) []byte {
	p := make([]byte, 10)
	p[0] = byte(OpModeSense)
	p[2] = page & 0x3F // page control 0: current values
	binary.BigEndian.PutUint16(p[7:9], alloc)
	return p
}

func mechanismStatusPacket(alloc uint16) []byte {
	p := make([]byte, 12)
	p[0] = byte(OpMechanismStatus)
	binary.BigEndian.PutUint16(p[8:10], alloc)
	return p
}

// Sub-channel data format for the current position.
const subchannelCurrentPosition = 0x01

func readSubchannelPacket(alloc uint16) []byte {
	p := make([]byte, 10)
	p[0] = byte(OpReadSubchannel)
	p[1] = 1 << 1 // MSF
	p[2] = 1 << 6 // SubQ
	p[3] = subchannelCurrentPosition
	binary.BigEndian.PutUint16(p[7:9], alloc)
	return p
}

// READ TOC formats.
const (
	tocFormatTOC    = 0 // one descriptor per track
	tocFormatCDText = 5 // raw CD-Text packs from the lead-in
)

func readTOCPacket(format, track uint8, msf bool, alloc uint16) []byte {
	p := make([]byte, 10)
	p[0] = byte(OpReadTOC)
	if msf {
		p[1] = 1 << 1
	}
	p[2] = format & 0x0F
	p[6] = track
	binary.BigEndian.PutUint16(p[7:9], alloc)
	return p
}

// setCDSpeedPacket limits the read speed, in kB/s. 0xFFFF leaves the write
// speed at the maximum.
func setCDSpeedPacket(kbps uint16) []byte {
	p := make([]byte, 12)
	p[0] = byte(OpSetCDSpeed)
	binary.BigEndian.PutUint16(p[2:4], kbps)
	binary.BigEndian.PutUint16(p[4:6], 0xFFFF)
	return p
}
