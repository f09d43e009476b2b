package atapi

import "cdchanger/pkg/models"

// DriveInfo is what the drive reports about itself in IDENTIFY PACKET DEVICE.
type DriveInfo struct {
	Model      string `json:"model"`
	Serial     string `json:"serial"`
	Firmware   string `json:"firmware"`
	PacketSize int    `json:"packetSize"`
}

// Diagnostics records the outcome of the last reset sequence.
type Diagnostics struct {
	SignatureOK  bool  `json:"signatureOk"`
	SelfTestCode uint8 `json:"selfTestCode"`
	SelfTestOK   bool  `json:"selfTestOk"`
	PacketSize   int   `json:"packetSize"`
}

// ChangerState is the activity of a disc changer mechanism.
type ChangerState int

const (
	ChangerIdle ChangerState = iota
	ChangerPreparing
	ChangerChangingDisc
)

func (c ChangerState) String() string {
	switch c {
	case ChangerIdle:
		return "Idle"
	case ChangerPreparing:
		return "Preparing"
	case ChangerChangingDisc:
		return "Changing_Disc"
	}
	return "Unknown"
}

// SlotInfo is the mechanism's view of one changer slot.
type SlotInfo struct {
	DiscIn      bool `json:"discIn"`
	DiscChanged bool `json:"discChanged"`
}

// MechInfo is a decoded MECHANISM STATUS response.
type MechInfo struct {
	SlotCount    int          `json:"slotCount"`
	CurrentSlot  int          `json:"currentSlot"`
	DoorOpen     bool         `json:"doorOpen"`
	Fault        bool         `json:"fault"`
	Playing      bool         `json:"playing"`
	ChangerState ChangerState `json:"changerState"`
	Slots        []SlotInfo   `json:"slots"`
}

// IsChanger reports whether the mechanism has more than one slot.
func (m MechInfo) IsChanger() bool {
	return m.SlotCount > 1
}

// PlayState is the audio play status reported in the sub-channel header.
type PlayState int

const (
	PlayStopped PlayState = iota
	PlayPlaying
	PlayPaused
)

func (p PlayState) String() string {
	switch p {
	case PlayPlaying:
		return "Playing"
	case PlayPaused:
		return "Paused"
	}
	return "Stopped"
}

// AudioStatus is a decoded current-position sub-channel response.
type AudioStatus struct {
	State    PlayState      `json:"state"`
	Position models.TrackNo `json:"position"`
	Absolute models.MSF     `json:"absolute"`
	Relative models.MSF     `json:"relative"`
}
