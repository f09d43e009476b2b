package models

import (
	"fmt"
	"time"
)

// FramesPerSecond is the number of CD frames (sectors) played per second.
const FramesPerSecond = 75

// maxFrames is the frame count of 99:59:74, the largest addressable MSF.
const maxFrames = (99*60+59)*FramesPerSecond + 74

// MSF is a Minutes:Seconds:Frames disc time address.
// Minutes range 0-99, seconds 0-59 and frames 0-74.
type MSF struct {
	M uint8 `json:"m"`
	S uint8 `json:"s"`
	F uint8 `json:"f"`
}

// MSFFromFrames converts an absolute frame count into an MSF.
// Negative counts clamp to 00:00:00 and counts past 99:59:74 clamp to it.
func MSFFromFrames(frames int) MSF {
	if frames < 0 {
		frames = 0
	}
	if frames > maxFrames {
		frames = maxFrames
	}
	return MSF{
		M: uint8(frames / (60 * FramesPerSecond)),
		S: uint8((frames / FramesPerSecond) % 60),
		F: uint8(frames % FramesPerSecond),
	}
}

// MSFFromDuration converts a duration into an MSF, truncating to whole frames.
func MSFFromDuration(d time.Duration) MSF {
	return MSFFromFrames(int(d * FramesPerSecond / time.Second))
}

// Frames returns the absolute frame count.
func (m MSF) Frames() int {
	return int(m.F) + (int(m.S)+int(m.M)*60)*FramesPerSecond
}

// Millis returns the position in milliseconds. Frames are approximated as
// 13 ms each, so the result drifts by up to a millisecond per frame.
func (m MSF) Millis() int {
	return (int(m.S)+int(m.M)*60)*1000 + int(m.F)*(1000/FramesPerSecond)
}

// Duration returns the exact position as a time.Duration.
func (m MSF) Duration() time.Duration {
	return time.Duration(m.Frames()) * time.Second / FramesPerSecond
}

// Add returns m + o, normalized.
func (m MSF) Add(o MSF) MSF {
	return MSFFromFrames(m.Frames() + o.Frames())
}

// Sub returns m - o, normalized. The result clamps to 00:00:00 instead of
// going negative.
func (m MSF) Sub(o MSF) MSF {
	return MSFFromFrames(m.Frames() - o.Frames())
}

// Before reports whether m is strictly earlier than o.
func (m MSF) Before(o MSF) bool {
	return m.Frames() < o.Frames()
}

// IsZero reports whether m is 00:00:00.
func (m MSF) IsZero() bool {
	return m == MSF{}
}

// Valid reports whether every component is within its range.
func (m MSF) Valid() bool {
	return m.M < 100 && m.S < 60 && m.F < FramesPerSecond
}

func (m MSF) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", m.M, m.S, m.F)
}
