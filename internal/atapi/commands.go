package atapi

import "fmt"

// Command is a task-file command written to the Command register.
type Command uint8

const (
	CmdExecuteDeviceDiagnostic Command = 0x90
	CmdPacket                  Command = 0xA0
	CmdIdentifyPacketDevice    Command = 0xA1
)

// Opcode is the operation code of a SCSI-style command packet.
type Opcode uint8

const (
	OpTestUnitReady   Opcode = 0x00
	OpRequestSense    Opcode = 0x03
	OpStartStopUnit   Opcode = 0x1B
	OpReadSubchannel  Opcode = 0x42
	OpReadTOC         Opcode = 0x43
	OpPlayAudioMSF    Opcode = 0x47
	OpPauseResume     Opcode = 0x4B
	OpStopPlayScan    Opcode = 0x4E
	OpModeSense       Opcode = 0x5A
	OpLoadUnload      Opcode = 0xA6
	OpScan            Opcode = 0xBA
	OpSetCDSpeed      Opcode = 0xBB
	OpMechanismStatus Opcode = 0xBD
)

var opcodeNames = map[Opcode]string{
	OpTestUnitReady:   "TEST UNIT READY",
	OpRequestSense:    "REQUEST SENSE",
	OpStartStopUnit:   "START STOP UNIT",
	OpReadSubchannel:  "READ SUB-CHANNEL",
	OpReadTOC:         "READ TOC",
	OpPlayAudioMSF:    "PLAY AUDIO MSF",
	OpPauseResume:     "PAUSE/RESUME",
	OpStopPlayScan:    "STOP PLAY/SCAN",
	OpModeSense:       "MODE SENSE",
	OpLoadUnload:      "LOAD/UNLOAD",
	OpScan:            "SCAN",
	OpSetCDSpeed:      "SET CD SPEED",
	OpMechanismStatus: "MECHANISM STATUS",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02X)", uint8(o))
}

// MediaType is the medium type code from the MODE SENSE header.
type MediaType uint8

const (
	MediaDoorClosedUnknown MediaType = 0x00

	Media120mmData     MediaType = 0x01
	Media120mmAudio    MediaType = 0x02
	Media120mmMixed    MediaType = 0x03
	Media120mmPhoto    MediaType = 0x04
	Media80mmData      MediaType = 0x05
	Media80mmAudio     MediaType = 0x06
	Media80mmMixed     MediaType = 0x07
	Media80mmPhoto     MediaType = 0x08
	MediaCDR120Unknown MediaType = 0x10
	MediaCDR120Data    MediaType = 0x11
	MediaCDR120Audio   MediaType = 0x12
	MediaCDR120Mixed   MediaType = 0x13
	MediaCDR120Photo   MediaType = 0x14
	MediaCDR80Data     MediaType = 0x15
	MediaCDR80Audio    MediaType = 0x16
	MediaCDR80Mixed    MediaType = 0x17
	MediaCDR80Photo    MediaType = 0x18
	MediaCDE120Unknown MediaType = 0x20
	MediaCDE120Data    MediaType = 0x21
	MediaCDE120Audio   MediaType = 0x22
	MediaCDE120Mixed   MediaType = 0x23
	MediaCDE120Photo   MediaType = 0x24
	MediaCDE80Data     MediaType = 0x25
	MediaCDE80Audio    MediaType = 0x26
	MediaCDE80Mixed    MediaType = 0x27
	MediaCDE80Photo    MediaType = 0x28

	MediaDoorClosedUnknownAlt MediaType = 0x30
	MediaDoorClosed120mm      MediaType = 0x31
	MediaDoorClosed80mm       MediaType = 0x35

	MediaNoDisc      MediaType = 0x70
	MediaDoorOpen    MediaType = 0x71
	MediaFormatError MediaType = 0x72
)

// IsAudio reports whether the medium may carry CD-DA tracks. Photo and
// mixed codes count: older drives report CD-Extra discs that way.
func (m MediaType) IsAudio() bool {
	switch m {
	case Media120mmAudio, Media120mmMixed, Media120mmPhoto,
		Media80mmAudio, Media80mmMixed, Media80mmPhoto,
		MediaCDR120Audio, MediaCDR120Mixed, MediaCDR120Photo,
		MediaCDR80Audio, MediaCDR80Mixed, MediaCDR80Photo,
		MediaCDE120Audio, MediaCDE120Mixed, MediaCDE120Photo,
		MediaCDE80Audio, MediaCDE80Mixed, MediaCDE80Photo:
		return true
	}
	return false
}

// IsDoorClosedUnknown reports whether the drive has closed the tray but not
// classified the medium yet.
func (m MediaType) IsDoorClosedUnknown() bool {
	return m == MediaDoorClosedUnknown || m == MediaDoorClosedUnknownAlt
}

func (m MediaType) String() string {
	switch m {
	case MediaDoorClosedUnknown, MediaDoorClosedUnknownAlt:
		return "door closed, unknown"
	case MediaDoorClosed120mm:
		return "door closed, 120mm"
	case MediaDoorClosed80mm:
		return "door closed, 80mm"
	case MediaNoDisc:
		return "no disc"
	case MediaDoorOpen:
		return "door open"
	case MediaFormatError:
		return "format error"
	}

	family := ""
	switch m & 0xF0 {
	case 0x00:
		family = "CD"
	case 0x10:
		family = "CD-R"
	case 0x20:
		family = "CD-E"
	default:
		return fmt.Sprintf("MediaType(0x%02X)", uint8(m))
	}
	low := uint8(m & 0x0F)
	if low == 0 {
		return family + " 120mm, unknown"
	}
	if low > 8 {
		return fmt.Sprintf("MediaType(0x%02X)", uint8(m))
	}
	size := "120mm"
	if low > 4 {
		size = "80mm"
		low -= 4
	}
	kind := [...]string{"", "data", "audio", "audio+data", "photo"}[low]
	return fmt.Sprintf("%s %s, %s", family, size, kind)
}
