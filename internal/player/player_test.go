package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cdchanger/internal/atapi"
	"cdchanger/pkg/models"

	"github.com/sirupsen/logrus"
)

// fakeDrive is a scripted Drive. Tests set media, mech and audio directly
// to play the part of the hardware; calls are recorded in order.
type fakeDrive struct {
	media  atapi.MediaType
	closed atapi.MediaType // media reported once the tray closes
	mech   atapi.MechInfo
	audio  atapi.AudioStatus
	quirks atapi.Quirks
	tocs   map[int]models.DiscTOC
	tocErr error
	cdText []byte
	err    error

	calls []string
	plays [][2]models.MSF
}

func newFakeDrive(toc models.DiscTOC) *fakeDrive {
	return &fakeDrive{
		media:  atapi.Media120mmAudio,
		closed: atapi.Media120mmAudio,
		mech:   atapi.MechInfo{SlotCount: 1},
		tocs:   map[int]models.DiscTOC{0: toc},
	}
}

func (d *fakeDrive) record(format string, args ...any) error {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
	return d.err
}

func (d *fakeDrive) WaitReady(ctx context.Context) error { return d.record("WaitReady") }

func (d *fakeDrive) Start(ctx context.Context, start bool) error {
	return d.record("Start(%v)", start)
}

func (d *fakeDrive) Eject(ctx context.Context, open bool) error {
	if err := d.record("Eject(%v)", open); err != nil {
		return err
	}
	d.mech.DoorOpen = open
	if open {
		d.media = atapi.MediaDoorOpen
	} else {
		d.media = d.closed
	}
	return nil
}

func (d *fakeDrive) LoadUnload(ctx context.Context, slot int) error {
	if err := d.record("LoadUnload(%d)", slot); err != nil {
		return err
	}
	d.mech.CurrentSlot = slot
	return nil
}

func (d *fakeDrive) Play(ctx context.Context, start, end models.MSF) error {
	if err := d.record("Play(%v,%v)", start, end); err != nil {
		return err
	}
	d.plays = append(d.plays, [2]models.MSF{start, end})
	d.audio = atapi.AudioStatus{State: atapi.PlayPlaying, Absolute: start}
	for _, t := range d.tocs[d.mech.CurrentSlot].Tracks {
		if !start.Before(t.Position) {
			d.audio.Position = models.TrackNo{Track: t.Number, Index: 1}
			d.audio.Relative = start.Sub(t.Position)
		}
	}
	return nil
}

func (d *fakeDrive) Pause(ctx context.Context, pause bool) error {
	if err := d.record("Pause(%v)", pause); err != nil {
		return err
	}
	if pause {
		d.audio.State = atapi.PlayPaused
	} else {
		d.audio.State = atapi.PlayPlaying
	}
	return nil
}

func (d *fakeDrive) Stop(ctx context.Context) error {
	if err := d.record("Stop"); err != nil {
		return err
	}
	d.audio.State = atapi.PlayStopped
	return nil
}

func (d *fakeDrive) Scan(ctx context.Context, forward bool, from models.MSF) error {
	return d.record("Scan(%v,%v)", forward, from)
}

func (d *fakeDrive) CheckMedia(ctx context.Context) (atapi.MediaType, error) {
	return d.media, d.err
}

func (d *fakeDrive) ReadTOC(ctx context.Context) (models.DiscTOC, error) {
	if err := d.record("ReadTOC"); err != nil {
		return models.DiscTOC{}, err
	}
	return d.tocs[d.mech.CurrentSlot], d.tocErr
}

func (d *fakeDrive) ReadCDText(ctx context.Context) ([]byte, error) {
	return d.cdText, nil
}

func (d *fakeDrive) QueryState(ctx context.Context) (atapi.MechInfo, error) {
	return d.mech, d.err
}

func (d *fakeDrive) QueryPosition(ctx context.Context) (atapi.AudioStatus, error) {
	return d.audio, d.err
}

func (d *fakeDrive) Quirks() atapi.Quirks { return d.quirks }

func (d *fakeDrive) reset() {
	d.calls = nil
	d.plays = nil
}

// testDisc is three audio tracks of one, two and three minutes.
func testDisc() models.DiscTOC {
	return models.DiscTOC{
		LeadOut: models.MSF{M: 6, S: 2},
		Tracks: []models.DiscTrack{
			{Number: 1, Position: models.MSF{S: 2}},
			{Number: 2, Position: models.MSF{M: 1, S: 2}},
			{Number: 3, Position: models.MSF{M: 3, S: 2}},
		},
	}
}

type testClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return ctx.Err()
}

func newTestPlayer(t *testing.T, drive *fakeDrive, meta MetadataProvider) (*Player, *testClock) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := New(drive, meta, logger, DefaultOptions())
	p.now = clock.Now
	p.sleep = clock.Sleep
	p.intn = func(int) int { return 0 }
	return p, clock
}

// loadedPlayer returns a player that went through start-up and sits in
// Stopped with the fake's disc loaded.
func loadedPlayer(t *testing.T, drive *fakeDrive) *Player {
	t.Helper()
	p, _ := newTestPlayer(t, drive, nil)
	tickUntil(t, p, StateStop)
	drive.reset()
	return p
}

func tickUntil(t *testing.T, p *Player, want State) {
	t.Helper()
	for range 10 {
		if err := p.Tick(context.Background()); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		if p.Status() == want {
			return
		}
	}
	t.Fatalf("state = %v, want %v", p.Status(), want)
}

func mustCommand(t *testing.T, p *Player, cmd Command) {
	t.Helper()
	if err := p.DoCommand(context.Background(), cmd); err != nil {
		t.Fatalf("DoCommand(%v) error = %v", cmd, err)
	}
}

func assertCalls(t *testing.T, drive *fakeDrive, want ...string) {
	t.Helper()
	if got := strings.Join(drive.calls, " "); got != strings.Join(want, " ") {
		t.Errorf("calls = %q, want %q", drive.calls, want)
	}
}

func TestStartupLoadsDisc(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p, clock := newTestPlayer(t, drive, nil)
	ctx := context.Background()

	if p.Status() != StateInit {
		t.Fatalf("initial state = %v", p.Status())
	}

	steps := []struct {
		name  string
		state State
		calls []string
	}{
		{"spin up", StateInit, []string{"Start(true)", "WaitReady"}},
		{"close tray", StateLoad, []string{"Eject(false)"}},
		{"read toc", StateStop, []string{"ReadTOC"}},
	}
	for _, step := range steps {
		drive.reset()
		if err := p.Tick(ctx); err != nil {
			t.Fatalf("%s: Tick() error = %v", step.name, err)
		}
		if p.Status() != step.state {
			t.Errorf("%s: state = %v, want %v", step.name, p.Status(), step.state)
		}
		assertCalls(t, drive, step.calls...)
	}

	if len(clock.slept) == 0 || clock.slept[0] != DefaultOptions().InitSettle {
		t.Errorf("settle delays = %v", clock.slept)
	}
	album := p.ActiveSlot().Album
	if !album.HasTracks() || len(album.Tracks) != 3 {
		t.Fatalf("album = %+v", album)
	}
	if album.Duration != (models.MSF{M: 6, S: 2}) {
		t.Errorf("Duration = %v", album.Duration)
	}
	if p.TrackNumber() != models.FirstTrack {
		t.Errorf("TrackNumber() = %v", p.TrackNumber())
	}
	if !p.ActiveSlot().DiscPresent {
		t.Error("slot 0 should hold a disc")
	}
}

func TestLoadOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		media   atapi.MediaType
		toc     models.DiscTOC
		tocErr  error
		want    State
		wantErr bool
	}{
		{name: "audio", media: atapi.Media120mmAudio, toc: testDisc(), want: StateStop},
		{name: "no disc", media: atapi.MediaNoDisc, want: StateNoDisc},
		{name: "data disc", media: atapi.Media120mmData, want: StateBadDisc},
		{name: "empty toc", media: atapi.Media120mmAudio, want: StateBadDisc},
		{
			name:   "toc rejected",
			media:  atapi.Media120mmAudio,
			tocErr: &atapi.CommandError{Op: "READ TOC", Err: 0x50},
			want:   StateBadDisc,
		},
		{
			name:   "toc never settles",
			media:  atapi.Media120mmAudio,
			toc:    testDisc(),
			tocErr: fmt.Errorf("%w after 3 reads", atapi.ErrUnstableTOC),
			want:   StateBadDisc,
		},
		{
			name:   "toc truncated",
			media:  atapi.Media120mmAudio,
			tocErr: fmt.Errorf("TOC: %w: 2 bytes", atapi.ErrShortResponse),
			want:   StateBadDisc,
		},
		{
			name:    "bus failure",
			media:   atapi.Media120mmAudio,
			tocErr:  atapi.ErrBus,
			want:    StateLoad,
			wantErr: true,
		},
		{
			name:    "drive unresponsive",
			media:   atapi.Media120mmAudio,
			tocErr:  &atapi.WaitError{Op: "READ TOC", Stalls: 6},
			want:    StateLoad,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drive := newFakeDrive(tt.toc)
			p, _ := newTestPlayer(t, drive, nil)
			ctx := context.Background()
			p.Tick(ctx)
			p.Tick(ctx)

			drive.media = tt.media
			drive.tocErr = tt.tocErr
			err := p.Tick(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Tick() error = %v, wantErr %v", err, tt.wantErr)
			}
			if p.Status() != tt.want {
				t.Errorf("state = %v, want %v", p.Status(), tt.want)
			}
			if tt.want != StateStop && tt.want != StateLoad && p.ActiveSlot().Album != nil {
				t.Error("album should be cleared")
			}
		})
	}
}

func TestUnreadableTOCCanBeEjected(t *testing.T) {
	drive := newFakeDrive(testDisc())
	drive.tocErr = fmt.Errorf("%w after 3 reads", atapi.ErrUnstableTOC)
	p, _ := newTestPlayer(t, drive, nil)
	ctx := context.Background()

	for range 20 {
		p.Tick(ctx)
	}
	if p.Status() != StateBadDisc {
		t.Fatalf("state = %v, want %v", p.Status(), StateBadDisc)
	}
	reads := 0
	for _, c := range drive.calls {
		if c == "ReadTOC" {
			reads++
		}
	}
	if reads != 1 {
		t.Errorf("TOC read %d times, want once for the same media code", reads)
	}

	drive.reset()
	mustCommand(t, p, CmdOpenClose)
	if p.Status() != StateOpen {
		t.Errorf("state = %v, want %v", p.Status(), StateOpen)
	}
	assertCalls(t, drive, "Eject(true)")
}

func TestBadDiscRetriesOnNewMediaCode(t *testing.T) {
	drive := newFakeDrive(models.DiscTOC{})
	p, _ := newTestPlayer(t, drive, nil)
	ctx := context.Background()
	tickUntil(t, p, StateBadDisc)

	drive.reset()
	p.Tick(ctx)
	if p.Status() != StateBadDisc || len(drive.calls) != 0 {
		t.Fatalf("same media code: state %v, calls %v", p.Status(), drive.calls)
	}

	drive.media = atapi.Media80mmAudio
	drive.tocs[0] = testDisc()
	tickUntil(t, p, StateStop)
	if p.ActiveSlot().Album == nil {
		t.Error("album not loaded on the second look")
	}
}

func TestNoMediaCodesSettlesBeforeReading(t *testing.T) {
	drive := newFakeDrive(testDisc())
	drive.quirks.NoMediaCodes = true
	p, clock := newTestPlayer(t, drive, nil)
	ctx := context.Background()
	p.Tick(ctx)
	p.Tick(ctx)

	drive.media = atapi.MediaDoorClosedUnknown
	drive.reset()
	clock.slept = nil
	p.Tick(ctx)
	if p.Status() != StateLoad || len(drive.calls) != 0 {
		t.Fatalf("first load tick: state %v, calls %v", p.Status(), drive.calls)
	}
	if len(clock.slept) != 1 || clock.slept[0] != DefaultOptions().LoadSettle {
		t.Errorf("slept %v, want load settle", clock.slept)
	}

	p.Tick(ctx)
	if p.Status() != StateStop {
		t.Errorf("state = %v, want %v", p.Status(), StateStop)
	}
}

func TestDoorOpenDuringLoadSettleStartsOver(t *testing.T) {
	drive := newFakeDrive(testDisc())
	drive.quirks.NoMediaCodes = true
	drive.closed = atapi.MediaDoorClosedUnknown
	p, clock := newTestPlayer(t, drive, nil)
	ctx := context.Background()
	p.Tick(ctx)
	p.Tick(ctx)

	// first load tick only settles
	drive.media = atapi.MediaDoorClosedUnknown
	p.Tick(ctx)
	if p.Status() != StateLoad {
		t.Fatalf("state = %v, want %v", p.Status(), StateLoad)
	}

	drive.Eject(ctx, true)
	p.Tick(ctx)
	if p.Status() != StateOpen {
		t.Fatalf("state = %v, want %v", p.Status(), StateOpen)
	}
	drive.Eject(ctx, false)
	p.Tick(ctx)
	p.Tick(ctx)
	if p.Status() != StateLoad {
		t.Fatalf("state = %v, want %v", p.Status(), StateLoad)
	}

	drive.reset()
	clock.slept = nil
	p.Tick(ctx)
	if p.Status() != StateLoad || len(drive.calls) != 0 {
		t.Fatalf("reloaded without settling: state %v, calls %v", p.Status(), drive.calls)
	}
	if len(clock.slept) != 1 || clock.slept[0] != DefaultOptions().LoadSettle {
		t.Errorf("slept %v, want load settle", clock.slept)
	}
}

func TestDoorOpenTakesPrecedence(t *testing.T) {
	for _, from := range []State{StateStop, StatePlay, StatePause, StateNoDisc, StateBadDisc} {
		t.Run(from.String(), func(t *testing.T) {
			drive := newFakeDrive(testDisc())
			p := loadedPlayer(t, drive)
			p.state = from

			drive.media = atapi.MediaDoorOpen
			p.Tick(context.Background())
			if p.Status() != StateOpen {
				t.Errorf("state = %v, want %v", p.Status(), StateOpen)
			}
			if p.ActiveSlot().Album != nil {
				t.Error("album should be forgotten when the tray opens")
			}
		})
	}

	t.Run("not while closing", func(t *testing.T) {
		drive := newFakeDrive(testDisc())
		p := loadedPlayer(t, drive)
		mustCommand(t, p, CmdClose)
		drive.media = atapi.MediaDoorOpen
		p.Tick(context.Background())
		if p.Status() != StateOpen {
			t.Errorf("state = %v, want %v", p.Status(), StateOpen)
		}
	})
}

func TestOpenThenPlayClosesAndAutoPlays(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	ctx := context.Background()

	mustCommand(t, p, CmdOpenClose)
	if p.Status() != StateOpen || !drive.mech.DoorOpen {
		t.Fatalf("after OPEN_CLOSE: state %v, door open %v", p.Status(), drive.mech.DoorOpen)
	}
	p.Tick(ctx)

	mustCommand(t, p, CmdPlay)
	if p.Status() != StateClose {
		t.Fatalf("after PLAY: state = %v", p.Status())
	}
	p.Tick(ctx)
	if p.Status() != StateLoad {
		t.Fatalf("after close: state = %v", p.Status())
	}
	drive.reset()
	p.Tick(ctx)
	if p.Status() != StatePlay {
		t.Fatalf("after load: state = %v", p.Status())
	}
	assertCalls(t, drive, "ReadTOC", "Play(00:02:00,06:02:00)")
}

func TestClosingWaitsForClassification(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	ctx := context.Background()

	mustCommand(t, p, CmdOpen)
	mustCommand(t, p, CmdClose)
	drive.media = atapi.MediaDoorClosedUnknown
	p.Tick(ctx)
	if p.Status() != StateClose {
		t.Fatalf("state = %v, want %v", p.Status(), StateClose)
	}
	drive.media = atapi.Media120mmAudio
	p.Tick(ctx)
	if p.Status() != StateLoad {
		t.Errorf("state = %v, want %v", p.Status(), StateLoad)
	}
}

func TestCommandsIgnoredWhileBusy(t *testing.T) {
	for _, state := range []State{StateInit, StateLoad, StateChangeDisc} {
		drive := newFakeDrive(testDisc())
		p, _ := newTestPlayer(t, drive, nil)
		p.state = state
		for _, cmd := range []Command{CmdOpenClose, CmdPlay, CmdNextDisc, CmdStop} {
			mustCommand(t, p, cmd)
		}
		if p.Status() != state || len(drive.calls) != 0 {
			t.Errorf("%v: state %v, calls %v", state, p.Status(), drive.calls)
		}
	}
}

func TestPlayPauseStop(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	ctx := context.Background()

	mustCommand(t, p, CmdPlay)
	if p.Status() != StatePlay {
		t.Fatalf("state = %v", p.Status())
	}
	mustCommand(t, p, CmdPause)
	if p.Status() != StatePause {
		t.Fatalf("state = %v", p.Status())
	}
	p.Tick(ctx)
	mustCommand(t, p, CmdPlay)
	if p.Status() != StatePlay {
		t.Fatalf("state = %v", p.Status())
	}

	drive.audio.Position = models.TrackNo{Track: 2, Index: 1}
	drive.audio.Absolute = models.MSF{M: 1, S: 30}
	drive.audio.Relative = models.MSF{S: 28}
	p.Tick(ctx)
	if p.TrackNumber().Track != 2 || p.AbsoluteTime() != (models.MSF{M: 1, S: 30}) || p.TrackTime() != (models.MSF{S: 28}) {
		t.Errorf("position not mirrored: %v %v %v", p.TrackNumber(), p.AbsoluteTime(), p.TrackTime())
	}

	mustCommand(t, p, CmdStop)
	if p.Status() != StateStop || p.TrackNumber() != models.FirstTrack {
		t.Errorf("after STOP: %v at %v", p.Status(), p.TrackNumber())
	}
	assertCalls(t, drive, "Play(00:02:00,06:02:00)", "Pause(true)", "Pause(false)", "Stop")

	p.Tick(ctx)
	if !p.AbsoluteTime().IsZero() {
		t.Errorf("stopped position = %v", p.AbsoluteTime())
	}
}

func TestFrontPanelPlayIsNoticed(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)

	drive.audio.State = atapi.PlayPlaying
	p.Tick(context.Background())
	if p.Status() != StatePlay {
		t.Errorf("state = %v, want %v", p.Status(), StatePlay)
	}
}

func TestEndOfDiscStops(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	mustCommand(t, p, CmdPlay)

	drive.audio.Position = models.TrackNo{Track: models.LeadOutTrack, Index: 1}
	p.Tick(context.Background())
	if p.Status() != StateStop || p.TrackNumber() != models.FirstTrack {
		t.Errorf("state %v at %v, want stopped at 1.1", p.Status(), p.TrackNumber())
	}
}

func TestPrevTrack(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		rel       models.MSF
		wantTrack int
		wantPlay  bool
	}{
		{name: "early in track", state: StatePlay, rel: models.MSF{S: 3, F: 74}, wantTrack: 1, wantPlay: true},
		{name: "at start", state: StatePlay, rel: models.MSF{}, wantTrack: 1, wantPlay: true},
		{name: "later in track", state: StatePlay, rel: models.MSF{S: 4}, wantTrack: 2, wantPlay: true},
		{name: "a minute in", state: StatePlay, rel: models.MSF{M: 1, S: 2}, wantTrack: 2, wantPlay: true},
		{name: "paused later in track", state: StatePause, rel: models.MSF{S: 20}, wantTrack: 2, wantPlay: true},
		{name: "stopped", state: StateStop, rel: models.MSF{S: 20}, wantTrack: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drive := newFakeDrive(testDisc())
			p := loadedPlayer(t, drive)
			p.state = tt.state
			p.track = models.TrackNo{Track: 2, Index: 1}
			p.rel = tt.rel

			mustCommand(t, p, CmdPrevTrack)
			if p.track.Track != tt.wantTrack {
				t.Errorf("track = %d, want %d", p.track.Track, tt.wantTrack)
			}
			if got := len(drive.plays) > 0; got != tt.wantPlay {
				t.Fatalf("played = %v, want %v", got, tt.wantPlay)
			}
			if tt.wantPlay {
				start := testDisc().Tracks[tt.wantTrack-1].Position
				if drive.plays[0] != [2]models.MSF{start, {M: 6, S: 2}} {
					t.Errorf("play range = %v", drive.plays[0])
				}
			}
			if tt.state == StatePause && drive.calls[len(drive.calls)-1] != "Pause(true)" {
				t.Errorf("paused player should stay paused: %v", drive.calls)
			}
			if p.state != tt.state {
				t.Errorf("state = %v, want %v", p.state, tt.state)
			}
		})
	}
}

func TestPrevTrackAtFirstTrack(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	mustCommand(t, p, CmdPrevTrack)
	if p.track.Track != 1 {
		t.Errorf("track = %d, want 1", p.track.Track)
	}
}

func TestNextTrackClampsAtLast(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)

	for range 5 {
		mustCommand(t, p, CmdNextTrack)
	}
	if p.track.Track != 3 {
		t.Errorf("stopped selection = %d, want 3", p.track.Track)
	}
	if len(drive.calls) != 0 {
		t.Errorf("selecting while stopped touched the drive: %v", drive.calls)
	}

	mustCommand(t, p, CmdPlay)
	assertCalls(t, drive, "Play(03:02:00,06:02:00)")
}

func TestShuffleExhaustion(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	ctx := context.Background()
	if err := p.SetPlayMode(ctx, PlayModeShuffle); err != nil {
		t.Fatal(err)
	}

	mustCommand(t, p, CmdPlay)
	for range 2 {
		drive.audio.State = atapi.PlayStopped
		p.Tick(ctx)
		if p.Status() != StatePlay {
			t.Fatalf("state = %v, want %v", p.Status(), StatePlay)
		}
	}

	want := [][2]models.MSF{
		{{S: 2}, {M: 1, S: 2}},
		{{M: 1, S: 2}, {M: 3, S: 2}},
		{{M: 3, S: 2}, {M: 6, S: 2}},
	}
	if fmt.Sprint(drive.plays) != fmt.Sprint(want) {
		t.Errorf("plays = %v, want %v", drive.plays, want)
	}
	if fmt.Sprint(p.history) != "[1 2 3]" {
		t.Errorf("history = %v", p.history)
	}

	drive.audio.State = atapi.PlayStopped
	p.Tick(ctx)
	if p.Status() != StateStop || p.TrackNumber() != models.FirstTrack {
		t.Errorf("exhausted shuffle: %v at %v", p.Status(), p.TrackNumber())
	}
	if len(drive.plays) != 3 {
		t.Errorf("no track should repeat: %v", drive.plays)
	}
}

func TestShuffleAfterOpenThenPlay(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	ctx := context.Background()
	if err := p.SetPlayMode(ctx, PlayModeShuffle); err != nil {
		t.Fatal(err)
	}

	mustCommand(t, p, CmdOpenClose)
	p.Tick(ctx)
	mustCommand(t, p, CmdPlay)
	p.Tick(ctx)
	drive.reset()
	p.Tick(ctx)
	if p.Status() != StatePlay || fmt.Sprint(p.history) != "[1]" {
		t.Fatalf("after load: state %v, history %v", p.Status(), p.history)
	}

	for range 2 {
		drive.audio.State = atapi.PlayStopped
		p.Tick(ctx)
	}
	want := [][2]models.MSF{
		{{S: 2}, {M: 1, S: 2}},
		{{M: 1, S: 2}, {M: 3, S: 2}},
		{{M: 3, S: 2}, {M: 6, S: 2}},
	}
	if fmt.Sprint(drive.plays) != fmt.Sprint(want) {
		t.Errorf("plays = %v, want %v", drive.plays, want)
	}
	if p.Status() != StatePlay || fmt.Sprint(p.history) != "[1 2 3]" {
		t.Errorf("state %v, history %v", p.Status(), p.history)
	}
}

func TestShuffleAfterChangerAdvance(t *testing.T) {
	drive := changerDrive(true, true)
	p := loadedPlayer(t, drive)
	ctx := context.Background()
	if err := p.SetPlayMode(ctx, PlayModeShuffle); err != nil {
		t.Fatal(err)
	}

	mustCommand(t, p, CmdPlay)
	for range 3 {
		drive.audio.State = atapi.PlayStopped
		p.Tick(ctx)
	}
	if p.Status() != StateChangeDisc {
		t.Fatalf("state = %v, want %v", p.Status(), StateChangeDisc)
	}

	tickUntil(t, p, StatePlay)
	if p.ActiveSlotIndex() != 1 || p.track.Track != 1 || fmt.Sprint(p.history) != "[1]" {
		t.Fatalf("slot %d track %d history %v", p.ActiveSlotIndex(), p.track.Track, p.history)
	}

	drive.reset()
	for range 2 {
		drive.audio.State = atapi.PlayStopped
		p.Tick(ctx)
	}
	want := [][2]models.MSF{
		{{M: 1, S: 2}, {M: 3, S: 2}},
		{{M: 3, S: 2}, {M: 6, S: 2}},
	}
	if fmt.Sprint(drive.plays) != fmt.Sprint(want) {
		t.Errorf("plays = %v, want %v", drive.plays, want)
	}
	if p.Status() != StatePlay || fmt.Sprint(p.history) != "[1 2 3]" {
		t.Errorf("state %v, history %v", p.Status(), p.history)
	}
}

func TestShuffleSkipsDataTracks(t *testing.T) {
	toc := testDisc()
	toc.Tracks[2].IsData = true
	drive := newFakeDrive(toc)
	p := loadedPlayer(t, drive)
	ctx := context.Background()
	p.SetPlayMode(ctx, PlayModeShuffle)
	p.intn = func(n int) int { return n - 1 }

	mustCommand(t, p, CmdPlay)
	mustCommand(t, p, CmdNextTrack)
	mustCommand(t, p, CmdNextTrack)
	for _, pl := range drive.plays {
		if pl[0] == toc.Tracks[2].Position {
			t.Fatalf("data track played: %v", drive.plays)
		}
	}
	if len(drive.plays) != 2 || p.Status() != StatePlay {
		t.Errorf("plays = %v, state %v", drive.plays, p.Status())
	}
}

func TestShufflePrevWalksHistory(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	ctx := context.Background()
	p.SetPlayMode(ctx, PlayModeShuffle)
	p.intn = func(n int) int { return n - 1 }

	mustCommand(t, p, CmdPlay)      // 3
	mustCommand(t, p, CmdNextTrack) // 2
	if fmt.Sprint(p.history) != "[3 2]" {
		t.Fatalf("history = %v", p.history)
	}

	drive.reset()
	mustCommand(t, p, CmdPrevTrack)
	if p.track.Track != 3 || fmt.Sprint(p.history) != "[3]" {
		t.Errorf("track %d history %v", p.track.Track, p.history)
	}
	assertCalls(t, drive, "Play(03:02:00,06:02:00)")

	drive.reset()
	mustCommand(t, p, CmdPrevTrack)
	if p.track.Track != 3 {
		t.Errorf("track = %d, want a restart of 3", p.track.Track)
	}
	assertCalls(t, drive, "Play(03:02:00,06:02:00)")
}

func TestSetPlayModeReissuesRange(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	ctx := context.Background()

	mustCommand(t, p, CmdNextTrack)
	mustCommand(t, p, CmdPlay)
	mustCommand(t, p, CmdPause)
	p.abs = models.MSF{M: 1, S: 40}
	drive.reset()

	if err := p.SetPlayMode(ctx, PlayModeShuffle); err != nil {
		t.Fatal(err)
	}
	assertCalls(t, drive, "Play(01:40:00,03:02:00)", "Pause(true)")
	if fmt.Sprint(p.history) != "[2]" || p.PlayMode() != PlayModeShuffle {
		t.Errorf("history %v mode %v", p.history, p.PlayMode())
	}

	drive.reset()
	p.SetPlayMode(ctx, PlayModeShuffle)
	if len(drive.calls) != 0 {
		t.Errorf("same mode touched the drive: %v", drive.calls)
	}

	p.SetPlayMode(ctx, PlayModeContinue)
	assertCalls(t, drive, "Play(01:40:00,06:02:00)", "Pause(true)")
	if p.history != nil {
		t.Errorf("history = %v", p.history)
	}
}

func TestSeeking(t *testing.T) {
	tests := []struct {
		name      string
		from      Command
		cmds      []Command
		want      State
		wantCalls []string
	}{
		{
			name:      "end seek resumes play",
			cmds:      []Command{CmdSeekFF, CmdEndSeek},
			want:      StatePlay,
			wantCalls: []string{"Scan(true,01:00:00)", "Play(01:00:00,06:02:00)"},
		},
		{
			name:      "same direction ends seek",
			cmds:      []Command{CmdSeekRew, CmdSeekRew},
			want:      StatePlay,
			wantCalls: []string{"Scan(false,01:00:00)", "Play(01:00:00,06:02:00)"},
		},
		{
			name:      "opposite direction reverses",
			cmds:      []Command{CmdSeekFF, CmdSeekRew},
			want:      StateSeekRew,
			wantCalls: []string{"Scan(true,01:00:00)", "Scan(false,01:00:00)"},
		},
		{
			name:      "paused seek returns to pause",
			from:      CmdPause,
			cmds:      []Command{CmdSeekFF, CmdEndSeek},
			want:      StatePause,
			wantCalls: []string{"Scan(true,01:00:00)", "Pause(true)"},
		},
		{
			name:      "play during paused seek",
			from:      CmdPause,
			cmds:      []Command{CmdSeekFF, CmdPlay},
			want:      StatePlay,
			wantCalls: []string{"Scan(true,01:00:00)", "Play(01:00:00,06:02:00)"},
		},
		{
			name:      "stop during seek",
			cmds:      []Command{CmdSeekRew, CmdStop},
			want:      StateStop,
			wantCalls: []string{"Scan(false,01:00:00)", "Stop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drive := newFakeDrive(testDisc())
			p := loadedPlayer(t, drive)
			mustCommand(t, p, CmdPlay)
			if tt.from == CmdPause {
				mustCommand(t, p, CmdPause)
			}
			p.abs = models.MSF{M: 1}
			drive.reset()

			for _, cmd := range tt.cmds {
				mustCommand(t, p, cmd)
			}
			if p.Status() != tt.want {
				t.Errorf("state = %v, want %v", p.Status(), tt.want)
			}
			assertCalls(t, drive, tt.wantCalls...)
		})
	}
}

func TestSoftScanHopsGrow(t *testing.T) {
	toc := models.DiscTOC{
		LeadOut: models.MSF{M: 60, S: 2},
		Tracks:  []models.DiscTrack{{Number: 1, Position: models.MSF{S: 2}}},
	}
	drive := newFakeDrive(toc)
	drive.quirks.MustUseSoftScan = true
	p, clock := newTestPlayer(t, drive, nil)
	tickUntil(t, p, StateStop)
	ctx := context.Background()

	mustCommand(t, p, CmdPlay)
	mustCommand(t, p, CmdSeekFF)
	drive.reset()

	opts := DefaultOptions()
	for range 9 {
		p.Tick(ctx)
		// a poll between hops does nothing
		clock.t = clock.t.Add(opts.SoftScanInterval / 2)
		p.Tick(ctx)
		clock.t = clock.t.Add(opts.SoftScanInterval / 2)
	}

	if len(drive.plays) != 9 {
		t.Fatalf("plays = %v", drive.plays)
	}
	prev := models.MSF{S: 2}
	for i, pl := range drive.plays {
		want := opts.SoftScanHop
		if i == 8 {
			want = opts.SoftScanHop.Add(opts.SoftScanHopGrowth)
		}
		if hop := pl[0].Sub(prev); hop != want {
			t.Errorf("hop %d = %v, want %v", i, hop, want)
		}
		if pl[1] != toc.LeadOut {
			t.Errorf("hop %d ends at %v", i, pl[1])
		}
		prev = pl[0]
	}
}

func TestSoftScanClamps(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		abs  models.MSF
		want models.MSF
	}{
		{name: "rewind past start", cmd: CmdSeekRew, abs: models.MSF{S: 5}, want: models.MSF{S: 2}},
		{name: "forward past end", cmd: CmdSeekFF, abs: models.MSF{M: 5, S: 58}, want: models.MSF{M: 6, S: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drive := newFakeDrive(testDisc())
			drive.quirks.MustUseSoftScan = true
			p := loadedPlayer(t, drive)
			mustCommand(t, p, CmdPlay)
			mustCommand(t, p, CmdPause)
			mustCommand(t, p, tt.cmd)
			assertCalls(t, drive, "Play(00:02:00,06:02:00)", "Pause(true)", "Pause(false)")

			drive.reset()
			drive.audio.Absolute = tt.abs
			p.Tick(context.Background())
			if len(drive.plays) != 1 || drive.plays[0][0] != tt.want {
				t.Errorf("plays = %v, want start %v", drive.plays, tt.want)
			}

			mustCommand(t, p, CmdEndSeek)
			if p.Status() != StatePause {
				t.Errorf("state = %v, want %v", p.Status(), StatePause)
			}
		})
	}
}

func changerDrive(present ...bool) *fakeDrive {
	drive := newFakeDrive(testDisc())
	drive.mech.SlotCount = len(present)
	for i, in := range present {
		drive.mech.Slots = append(drive.mech.Slots, atapi.SlotInfo{DiscIn: in})
		drive.tocs[i] = testDisc()
	}
	return drive
}

func TestChangeDiscSkipsEmptySlots(t *testing.T) {
	tests := []struct {
		name     string
		present  []bool
		start    int
		cmd      Command
		wantSlot int
	}{
		{name: "next", present: []bool{true, false, true, false}, start: 0, cmd: CmdNextDisc, wantSlot: 2},
		{name: "next wraps", present: []bool{true, false, true, false}, start: 2, cmd: CmdNextDisc, wantSlot: 0},
		{name: "prev wraps", present: []bool{true, false, false, true}, start: 0, cmd: CmdPrevDisc, wantSlot: 3},
		{name: "prev", present: []bool{true, true, false, true}, start: 3, cmd: CmdPrevDisc, wantSlot: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drive := changerDrive(tt.present...)
			drive.mech.CurrentSlot = tt.start
			p := loadedPlayer(t, drive)
			if p.ActiveSlotIndex() != tt.start || len(p.Slots()) != len(tt.present) {
				t.Fatalf("slot %d of %d", p.ActiveSlotIndex(), len(p.Slots()))
			}

			mustCommand(t, p, tt.cmd)
			if p.Status() != StateChangeDisc {
				t.Fatalf("state = %v", p.Status())
			}
			assertCalls(t, drive, fmt.Sprintf("LoadUnload(%d)", tt.wantSlot))

			tickUntil(t, p, StateStop)
			if p.ActiveSlotIndex() != tt.wantSlot {
				t.Errorf("active slot = %d, want %d", p.ActiveSlotIndex(), tt.wantSlot)
			}
		})
	}
}

func TestChangeDiscWithoutAnotherDisc(t *testing.T) {
	drive := changerDrive(false, true, false)
	drive.mech.CurrentSlot = 1
	p := loadedPlayer(t, drive)

	mustCommand(t, p, CmdNextDisc)
	if p.Status() != StateStop || len(drive.calls) != 0 {
		t.Errorf("state %v, calls %v", p.Status(), drive.calls)
	}
}

func TestChangerAdvancesAtEndOfDisc(t *testing.T) {
	drive := changerDrive(true, true)
	p := loadedPlayer(t, drive)
	ctx := context.Background()

	mustCommand(t, p, CmdPlay)
	drive.audio.State = atapi.PlayStopped
	p.Tick(ctx)
	if p.Status() != StateChangeDisc || !p.wantAutoPlay {
		t.Fatalf("state %v, autoplay %v", p.Status(), p.wantAutoPlay)
	}

	tickUntil(t, p, StatePlay)
	if p.ActiveSlotIndex() != 1 {
		t.Errorf("active slot = %d", p.ActiveSlotIndex())
	}
}

func TestEmptyChangerSlotMovesOn(t *testing.T) {
	drive := changerDrive(true, true)
	drive.media = atapi.MediaNoDisc
	drive.closed = atapi.MediaNoDisc
	drive.mech.Slots[0].DiscIn = false
	p, _ := newTestPlayer(t, drive, nil)

	tickUntil(t, p, StateChangeDisc)
	assertCalls(t, drive, "Start(true)", "WaitReady", "Eject(false)", "LoadUnload(1)")
}

func TestHardwareErrorsAreRecorded(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	events := p.Subscribe()
	ctx := context.Background()

	drive.err = &atapi.WaitError{Op: "MODE SENSE", Stalls: 6}
	if err := p.Tick(ctx); !errors.Is(err, atapi.ErrDeviceUnresponsive) {
		t.Fatalf("Tick() error = %v", err)
	}
	if p.Status() != StateStop {
		t.Errorf("state = %v, want it kept", p.Status())
	}
	if !errors.Is(p.LastError(), atapi.ErrDeviceUnresponsive) {
		t.Errorf("LastError() = %v", p.LastError())
	}
	select {
	case ev := <-events:
		if ev.Kind != EventError || ev.Err == nil {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("no error event")
	}

	drive.err = nil
	p.Tick(ctx)
	if p.LastError() != nil {
		t.Errorf("LastError() = %v after recovery", p.LastError())
	}
}

func TestStateEvents(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	events := p.Subscribe()

	mustCommand(t, p, CmdPlay)
	ev := <-events
	if ev.Kind != EventState || ev.Previous != StateStop || ev.State != StatePlay || ev.Album == nil {
		t.Errorf("event = %+v", ev)
	}

	p.Unsubscribe(events)
	if _, ok := <-events; ok {
		t.Error("channel should be closed")
	}
}

func TestStallsReachSubscribers(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	events := p.Subscribe()

	p.ReportStall(atapi.Stall{Op: "READ TOC", Waited: 20 * time.Second, Count: 2})
	select {
	case ev := <-events:
		if ev.Kind != EventStall || ev.Stall.Op != "READ TOC" || ev.Stall.Count != 2 || ev.State != StateStop {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("no stall event")
	}
	if p.LastError() != nil {
		t.Errorf("a stall is not an error: %v", p.LastError())
	}
}

func TestStateIsSeeking(t *testing.T) {
	for s := StateInit; s <= StateSeekRew; s++ {
		want := s == StateSeekFF || s == StateSeekRew
		if s.IsSeeking() != want {
			t.Errorf("%v.IsSeeking() = %v", s, !want)
		}
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	events := p.Subscribe()

	for range 20 {
		mustCommand(t, p, CmdPlay)
		mustCommand(t, p, CmdStop)
	}
	n := 0
	for range events {
		n++
	}
	if n != 16 {
		t.Errorf("received %d events before the drop, want 16", n)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)

	snap := p.Snapshot()
	snap.Slots[0].DiscPresent = false
	if !p.ActiveSlot().DiscPresent {
		t.Error("snapshot shares the slot table")
	}
}

func TestPowerDown(t *testing.T) {
	drive := newFakeDrive(testDisc())
	p := loadedPlayer(t, drive)
	if err := p.PowerDown(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertCalls(t, drive, "Start(false)")
}
