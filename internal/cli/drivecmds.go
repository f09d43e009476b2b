package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"cdchanger/internal/atapi"
	"cdchanger/internal/metadata"
	"cdchanger/pkg/models"

	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Reset the drive and show what it reports about itself",
	RunE: withDrive(func(ctx context.Context, cmd *cobra.Command, dev *atapi.Device) error {
		out := cmd.OutOrStdout()
		info, diag := dev.Info(), dev.Diagnostics()

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Model\t%s\n", info.Model)
		fmt.Fprintf(tw, "Firmware\t%s\n", info.Firmware)
		fmt.Fprintf(tw, "Serial\t%s\n", info.Serial)
		fmt.Fprintf(tw, "Packet size\t%d bytes\n", dev.PacketSize())
		fmt.Fprintf(tw, "ATAPI signature\t%s\n", okString(diag.SignatureOK))
		fmt.Fprintf(tw, "Self-test\t%s (code 0x%02X)\n", okString(diag.SelfTestOK), diag.SelfTestCode)
		quirks := "none"
		if names := dev.Quirks().Names(); len(names) > 0 {
			quirks = strings.Join(names, ", ")
		}
		fmt.Fprintf(tw, "Quirks\t%s\n", quirks)
		return tw.Flush()
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the medium and the mechanism status",
	RunE: withDrive(func(ctx context.Context, cmd *cobra.Command, dev *atapi.Device) error {
		out := cmd.OutOrStdout()

		media, err := dev.CheckMedia(ctx)
		if err != nil {
			return err
		}
		mech, err := dev.QueryState(ctx)
		if err != nil {
			return err
		}

		ready, err := unitReady(ctx, dev)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Unit ready\t%s\n", ready)
		fmt.Fprintf(tw, "Medium\t%s\n", media)
		door := "closed"
		if mech.DoorOpen {
			door = "open"
		}
		fmt.Fprintf(tw, "Door\t%s\n", door)
		fmt.Fprintf(tw, "Fault\t%v\n", mech.Fault)
		fmt.Fprintf(tw, "Playing\t%v\n", mech.Playing)
		if mech.IsChanger() {
			fmt.Fprintf(tw, "Changer\t%s, %d slots, on the %s\n", mech.ChangerState, mech.SlotCount, discLabel(mech.CurrentSlot))
			for i, s := range mech.Slots {
				fmt.Fprintf(tw, "  slot %d\tdisc in: %v, changed: %v\n", i+1, s.DiscIn, s.DiscChanged)
			}
		}
		if media.IsAudio() {
			if pos, err := dev.QueryPosition(ctx); err == nil {
				fmt.Fprintf(tw, "Audio\t%s, track %02d.%02d at %s\n", pos.State, pos.Position.Track, pos.Position.Index, pos.Absolute)
			}
		}
		return tw.Flush()
	}),
}

var ejectCmd = &cobra.Command{
	Use:   "eject",
	Short: "Open the tray",
	RunE: withDrive(func(ctx context.Context, cmd *cobra.Command, dev *atapi.Device) error {
		return dev.Eject(ctx, true)
	}),
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the tray",
	RunE: withDrive(func(ctx context.Context, cmd *cobra.Command, dev *atapi.Device) error {
		return dev.Eject(ctx, false)
	}),
}

var tocCmd = &cobra.Command{
	Use:   "toc",
	Short: "Print the table of contents of the loaded disc",
	RunE: withDrive(func(ctx context.Context, cmd *cobra.Command, dev *atapi.Device) error {
		album, err := readAlbum(ctx, dev)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TRACK\tSTART\tLENGTH\tTYPE\tTITLE")
		for i, t := range album.Tracks {
			kind := "audio"
			if t.Disc.IsData {
				kind = "data"
			}
			end := album.LeadOut
			if i+1 < len(album.Tracks) {
				end = album.Tracks[i+1].Disc.Position
			}
			fmt.Fprintf(tw, "%02d\t%s\t%s\t%s\t%s\n", t.Disc.Number, t.Disc.Position, end.Sub(t.Disc.Position), kind, t.Title)
		}
		fmt.Fprintf(tw, "lead-out\t%s\t\t\t\n", album.LeadOut)
		return tw.Flush()
	}),
}

var discIDCmd = &cobra.Command{
	Use:   "discid",
	Short: "Print the MusicBrainz and FreeDB disc IDs of the loaded disc",
	RunE: withDrive(func(ctx context.Context, cmd *cobra.Command, dev *atapi.Device) error {
		album, err := readAlbum(ctx, dev)
		if err != nil {
			return err
		}
		mb, err := metadata.MusicBrainzDiscID(album)
		if err != nil {
			return err
		}
		freedb, err := metadata.FreeDBDiscID(album)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "MusicBrainz  %s\n", mb)
		fmt.Fprintf(out, "FreeDB       %s\n", freedb)
		if line := albumLine(album); line != "" {
			fmt.Fprintf(out, "CD-Text      %s\n", line)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(identifyCmd, statusCmd, ejectCmd, closeCmd, tocCmd, discIDCmd)
}

// withDrive wraps a command that needs the reset drive.
func withDrive(fn func(ctx context.Context, cmd *cobra.Command, dev *atapi.Device) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dev, release, err := openDrive(ctx, nil)
		if err != nil {
			return err
		}
		defer release()
		return fn(ctx, cmd, dev)
	}
}

// unitReady describes TEST UNIT READY, with the sense data of a unit that
// isn't ready.
func unitReady(ctx context.Context, dev *atapi.Device) (string, error) {
	err := dev.TestUnitReady(ctx)
	if err == nil {
		return "yes", nil
	}
	if !errors.Is(err, atapi.ErrCheckCondition) {
		return "", err
	}
	sense, err := dev.RequestSense(ctx)
	if err != nil {
		return "", err
	}
	return "no (" + sense.String() + ")", nil
}

// readAlbum reads the TOC of the loaded disc, and its CD-Text when the disc
// has any.
func readAlbum(ctx context.Context, dev *atapi.Device) (*models.Album, error) {
	if err := dev.WaitReady(ctx); err != nil {
		return nil, err
	}
	toc, err := dev.ReadTOC(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read TOC: %w", err)
	}
	if toc.IsEmpty() {
		return nil, errors.New("no disc or unreadable TOC")
	}

	album := models.NewAlbum(toc)
	if packs, err := dev.ReadCDText(ctx); err == nil {
		album.CDText = packs
		if err := metadata.NewCDTextProvider(logger).FetchAlbum(ctx, album); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, atapi.ErrCheckCondition) {
		logger.WithError(err).Debug("No CD-Text")
	}
	return album, nil
}

func okString(ok bool) string {
	if ok {
		return "ok"
	}
	return errorStyle.Render("failed")
}
