package player

import (
	"sync"
	"time"

	"cdchanger/internal/atapi"
	"cdchanger/pkg/models"
)

// State is the playback state of the player.
type State int

const (
	StateInit State = iota
	StateLoad
	StateNoDisc
	StateBadDisc
	StateOpen
	StateClose
	StateChangeDisc
	StateStop
	StatePlay
	StatePause
	StateSeekFF
	StateSeekRew
)

var stateNames = [...]string{
	StateInit:       "Initializing",
	StateLoad:       "Loading",
	StateNoDisc:     "No Disc",
	StateBadDisc:    "Bad Disc",
	StateOpen:       "Open",
	StateClose:      "Closing",
	StateChangeDisc: "Changing Disc",
	StateStop:       "Stopped",
	StatePlay:       "Playing",
	StatePause:      "Paused",
	StateSeekFF:     "Fast Forward",
	StateSeekRew:    "Rewind",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// IsSeeking reports whether s is one of the seek states.
func (s State) IsSeeking() bool {
	return s == StateSeekFF || s == StateSeekRew
}

// Command is a user request.
type Command int

const (
	CmdOpenClose Command = iota
	CmdOpen
	CmdClose
	CmdPlay
	CmdPause
	CmdSeekFF
	CmdSeekRew
	CmdEndSeek
	CmdStop
	CmdNextTrack
	CmdPrevTrack
	CmdNextDisc
	CmdPrevDisc
)

var commandNames = [...]string{
	CmdOpenClose: "OPEN_CLOSE",
	CmdOpen:      "OPEN",
	CmdClose:     "CLOSE",
	CmdPlay:      "PLAY",
	CmdPause:     "PAUSE",
	CmdSeekFF:    "SEEK_FF",
	CmdSeekRew:   "SEEK_REW",
	CmdEndSeek:   "END_SEEK",
	CmdStop:      "STOP",
	CmdNextTrack: "NEXT_TRACK",
	CmdPrevTrack: "PREV_TRACK",
	CmdNextDisc:  "NEXT_DISC",
	CmdPrevDisc:  "PREV_DISC",
}

func (c Command) String() string {
	if c >= 0 && int(c) < len(commandNames) {
		return commandNames[c]
	}
	return "UNKNOWN"
}

// PlayMode selects what happens when a track ends.
type PlayMode int

const (
	PlayModeContinue PlayMode = iota
	PlayModeShuffle
)

func (m PlayMode) String() string {
	if m == PlayModeShuffle {
		return "shuffle"
	}
	return "continue"
}

// Slot is one changer tray position. A plain drive has exactly one.
type Slot struct {
	DiscPresent bool `json:"discPresent"`
	Active      bool `json:"active"`
	// Album is the disc believed to be loaded, nil when unknown. Albums are
	// never modified once published, only replaced.
	Album *models.Album `json:"album,omitempty"`
}

// Snapshot is a consistent copy of the player's state.
type Snapshot struct {
	State      State          `json:"state"`
	Slots      []Slot         `json:"slots"`
	ActiveSlot int            `json:"activeSlot"`
	Track      models.TrackNo `json:"track"`
	Absolute   models.MSF     `json:"absolute"`
	Relative   models.MSF     `json:"relative"`
	PlayMode   PlayMode       `json:"playMode"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (s *Snapshot) clone() Snapshot {
	c := *s
	c.Slots = append([]Slot(nil), s.Slots...)
	return c
}

// EventKind tells what an Event reports.
type EventKind int

const (
	EventState EventKind = iota
	EventError
	EventMetadata
	// EventStall means a drive operation is taking long but hasn't failed.
	EventStall
)

// Event is published to subscribers when the state changes, a hardware
// error occurs, the drive is slow to answer or background metadata arrives.
type Event struct {
	Kind     EventKind
	State    State
	Previous State
	Slot     int
	Track    models.TrackNo
	Album    *models.Album
	Err      error
	Stall    atapi.Stall
	At       time.Time
}

// listeners fans events out to subscribers. A subscriber whose buffer is
// full is dropped and its channel closed.
type listeners struct {
	mutex sync.Mutex
	chans []chan Event
}

func (l *listeners) subscribe() <-chan Event {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	ch := make(chan Event, 16)
	l.chans = append(l.chans, ch)
	return ch
}

func (l *listeners) unsubscribe(ch <-chan Event) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for i, listener := range l.chans {
		if listener == ch {
			close(listener)
			l.chans = append(l.chans[:i], l.chans[i+1:]...)
			return
		}
	}
}

func (l *listeners) notify(ev Event) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	kept := l.chans[:0]
	for _, listener := range l.chans {
		select {
		case listener <- ev:
			kept = append(kept, listener)
		default:
			close(listener)
		}
	}
	l.chans = kept
}

func (l *listeners) closeAll() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for _, listener := range l.chans {
		close(listener)
	}
	l.chans = nil
}
