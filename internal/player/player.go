// Package player is the playback state machine of a CD player or changer.
//
// A Player polls the drive on a fixed period, reconciles what the hardware
// reports with its own model of slots, tracks and play position, and turns
// user commands into drive operations. Polling and commands are serialized
// by one mutex; readers get lock-free snapshots.
package player

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"cdchanger/internal/atapi"
	"cdchanger/pkg/models"

	"github.com/sirupsen/logrus"
)

// Drive is the part of the ATAPI device the player drives.
type Drive interface {
	WaitReady(ctx context.Context) error
	Start(ctx context.Context, start bool) error
	Eject(ctx context.Context, open bool) error
	LoadUnload(ctx context.Context, slot int) error
	Play(ctx context.Context, start, end models.MSF) error
	Pause(ctx context.Context, pause bool) error
	Stop(ctx context.Context) error
	Scan(ctx context.Context, forward bool, from models.MSF) error
	CheckMedia(ctx context.Context) (atapi.MediaType, error)
	ReadTOC(ctx context.Context) (models.DiscTOC, error)
	ReadCDText(ctx context.Context) ([]byte, error)
	QueryState(ctx context.Context) (atapi.MechInfo, error)
	QueryPosition(ctx context.Context) (atapi.AudioStatus, error)
	Quirks() atapi.Quirks
}

var _ Drive = (*atapi.Device)(nil)

// MetadataProvider fills in album metadata. It is only ever called from the
// metadata goroutine, with an album no one else references.
type MetadataProvider interface {
	FetchAlbum(ctx context.Context, album *models.Album) error
}

// Options holds the player timings.
type Options struct {
	PollInterval     time.Duration
	MetadataInterval time.Duration
	// Settle delays after multi-step hardware sequences. They are slept
	// outside the player mutex.
	InitSettle   time.Duration
	CloseSettle  time.Duration
	LoadSettle   time.Duration
	ChangeSettle time.Duration
	// Soft-scan emulation for drives without a usable SCAN command.
	SoftScanInterval  time.Duration
	SoftScanHop       models.MSF
	SoftScanHopGrowth models.MSF
	SoftScanGrowEvery int

	PlayMode PlayMode
}

// DefaultOptions returns the timings used on real hardware.
func DefaultOptions() Options {
	return Options{
		PollInterval:      10 * time.Millisecond,
		MetadataInterval:  100 * time.Millisecond,
		InitSettle:        500 * time.Millisecond,
		CloseSettle:       2 * time.Second,
		LoadSettle:        2 * time.Second,
		ChangeSettle:      time.Second,
		SoftScanInterval:  250 * time.Millisecond,
		SoftScanHop:       models.MSF{S: 10},
		SoftScanHopGrowth: models.MSF{S: 5},
		SoftScanGrowEvery: 8,
		PlayMode:          PlayModeContinue,
	}
}

// Player is the CD player state machine.
type Player struct {
	mu    sync.Mutex
	drive Drive
	meta  MetadataProvider
	log   *logrus.Entry
	opts  Options

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	intn  func(int) int

	// guarded by mu
	state        State
	preSeek      State
	slots        []Slot
	curSlot      int
	expectedSlot int
	track        models.TrackNo
	abs, rel     models.MSF
	mode         PlayMode
	wantAutoPlay bool
	spunUp       bool
	loadSettled  bool
	badMedia     atapi.MediaType
	history      []int
	scanStart    time.Time
	scanLast     time.Time
	scanHop      models.MSF
	backlog      []*models.Album

	snap        atomic.Pointer[Snapshot]
	lastErrSnap atomic.Pointer[error]
	listeners   listeners

	metaQueue   chan *models.Album
	metaPending atomic.Int32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a player in the Initializing state. meta may be nil. The drive
// should already have been reset.
func New(drive Drive, meta MetadataProvider, logger *logrus.Logger, opts Options) *Player {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	p := &Player{
		drive:     drive,
		meta:      meta,
		log:       logger.WithField("component", "player"),
		opts:      opts,
		now:       time.Now,
		sleep:     sleepContext,
		intn:      rand.IntN,
		state:     StateInit,
		track:     models.FirstTrack,
		mode:      opts.PlayMode,
		slots:     []Slot{{Active: true}},
		metaQueue: make(chan *models.Album, 1),
	}
	p.publishLocked()
	return p
}

// Start runs the poll loop and the metadata worker until ctx is cancelled or
// Close is called.
func (p *Player) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(2)
	go p.pollLoop(ctx)
	go p.metadataLoop(ctx)
}

// Close stops the background goroutines and closes all subscriptions.
func (p *Player) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.listeners.closeAll()
}

func (p *Player) pollLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		_ = p.Tick(ctx)
		if err := p.sleep(ctx, p.opts.PollInterval); err != nil {
			return
		}
	}
}

// Tick samples the hardware once and advances the state machine. Hardware
// errors are logged, recorded and returned; the state is left alone so the
// next tick retries.
func (p *Player) Tick(ctx context.Context) error {
	p.mu.Lock()
	prev := p.state
	delay, err := p.pollLocked(ctx)
	p.recordLocked(prev, err)
	p.flushMetadataLocked()
	p.mu.Unlock()

	if delay > 0 {
		// some drives misbehave when talked to during a load
		_ = p.sleep(ctx, delay)
	}
	return err
}

// DoCommand carries out a user command. Commands that make no sense in the
// current state are ignored. Only hardware errors are returned.
func (p *Player) DoCommand(ctx context.Context, cmd Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.state
	p.log.WithFields(logrus.Fields{"command": cmd, "state": prev}).Debug("Command")
	err := p.commandLocked(ctx, cmd)
	p.recordLocked(prev, err)
	return err
}

// SetPlayMode switches between continuous and shuffle play. When playing,
// the current play range is re-issued so the end of the track is still
// detected under shuffle.
func (p *Player) SetPlayMode(ctx context.Context, mode PlayMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.state
	err := p.setPlayModeLocked(ctx, mode)
	p.recordLocked(prev, err)
	return err
}

// PowerDown spins the disc down.
func (p *Player) PowerDown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Info("Power down")
	return p.drive.Start(ctx, false)
}

// Subscribe returns a channel of player events. Subscribers that fall behind
// are dropped.
func (p *Player) Subscribe() <-chan Event {
	return p.listeners.subscribe()
}

// Unsubscribe closes a channel returned by Subscribe.
func (p *Player) Unsubscribe(ch <-chan Event) {
	p.listeners.unsubscribe(ch)
}

// Snapshot returns a copy of the whole player state.
func (p *Player) Snapshot() Snapshot {
	return p.snap.Load().clone()
}

// Status returns the current state.
func (p *Player) Status() State {
	return p.snap.Load().State
}

// Slots returns all slots.
func (p *Player) Slots() []Slot {
	return append([]Slot(nil), p.snap.Load().Slots...)
}

// ActiveSlot returns the slot under the pickup.
func (p *Player) ActiveSlot() Slot {
	s := p.snap.Load()
	return s.Slots[s.ActiveSlot]
}

// ActiveSlotIndex returns the index of the slot under the pickup.
func (p *Player) ActiveSlotIndex() int {
	return p.snap.Load().ActiveSlot
}

// AbsoluteTime returns the play position from the start of the disc.
func (p *Player) AbsoluteTime() models.MSF {
	return p.snap.Load().Absolute
}

// TrackTime returns the play position from the start of the track.
func (p *Player) TrackTime() models.MSF {
	return p.snap.Load().Relative
}

// TrackNumber returns the current track and index.
func (p *Player) TrackNumber() models.TrackNo {
	return p.snap.Load().Track
}

// PlayMode returns the play mode.
func (p *Player) PlayMode() PlayMode {
	return p.snap.Load().PlayMode
}

// IsProcessingMetadata reports whether any loaded disc still waits for its
// metadata.
func (p *Player) IsProcessingMetadata() bool {
	return p.metaPending.Load() > 0
}

// LastError returns the error of the most recent hardware operation, nil if
// it succeeded.
func (p *Player) LastError() error {
	if e := p.lastErrSnap.Load(); e != nil {
		return *e
	}
	return nil
}

// ReportStall tells subscribers that the drive is still busy with op. It
// is meant as the drive's WaitPolicy.OnStall, which runs while a drive call
// holds the player lock, so it only reads the published snapshot.
func (p *Player) ReportStall(s atapi.Stall) {
	snap := p.snap.Load()
	ev := Event{Kind: EventStall, Stall: s, At: p.now()}
	if snap != nil {
		ev.State = snap.State
		ev.Previous = snap.State
		ev.Slot = snap.ActiveSlot
		ev.Track = snap.Track
	}
	p.listeners.notify(ev)
}

// recordLocked remembers the outcome of a hardware sequence, publishes a
// new snapshot and notifies subscribers of state changes and errors.
func (p *Player) recordLocked(prev State, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		entry := p.log.WithError(err).WithField("state", p.state)
		if errors.Is(err, atapi.ErrDeviceUnresponsive) {
			entry.Error("Drive unresponsive, will keep trying")
		} else {
			entry.Warn("Drive operation failed")
		}
	}
	p.lastErrSnap.Store(&err)
	p.publishLocked()

	now := p.now()
	if p.state != prev {
		p.log.WithFields(logrus.Fields{
			"from":  prev,
			"to":    p.state,
			"slot":  p.curSlot,
			"track": p.track,
		}).Info("State change")
		p.listeners.notify(Event{
			Kind:     EventState,
			State:    p.state,
			Previous: prev,
			Slot:     p.curSlot,
			Track:    p.track,
			Album:    p.slots[p.curSlot].Album,
			At:       now,
		})
	}
	if err != nil {
		p.listeners.notify(Event{
			Kind:     EventError,
			State:    p.state,
			Previous: prev,
			Slot:     p.curSlot,
			Track:    p.track,
			Err:      err,
			At:       now,
		})
	}
}

func (p *Player) publishLocked() {
	p.snap.Store(&Snapshot{
		State:      p.state,
		Slots:      append([]Slot(nil), p.slots...),
		ActiveSlot: p.curSlot,
		Track:      p.track,
		Absolute:   p.abs,
		Relative:   p.rel,
		PlayMode:   p.mode,
		UpdatedAt:  p.now(),
	})
}

func (p *Player) activeAlbumLocked() *models.Album {
	return p.slots[p.curSlot].Album
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
