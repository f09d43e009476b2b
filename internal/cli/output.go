package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"cdchanger/internal/player"
	"cdchanger/pkg/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	colorPlaying = lipgloss.Color("#10B981")
	colorPaused  = lipgloss.Color("#F59E0B")
	colorSeeking = lipgloss.Color("#3B82F6")
	colorBusy    = lipgloss.Color("#7C3AED")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#9CA3AF")

	badgeStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle = lipgloss.NewStyle().Foreground(colorError)
)

// stateBadge renders a state as a colored label.
func stateBadge(s player.State) string {
	color := colorMuted
	switch {
	case s == player.StatePlay:
		color = colorPlaying
	case s == player.StatePause:
		color = colorPaused
	case s.IsSeeking():
		color = colorSeeking
	case s == player.StateInit, s == player.StateLoad, s == player.StateClose, s == player.StateChangeDisc:
		color = colorBusy
	case s == player.StateBadDisc:
		color = colorError
	}
	return badgeStyle.Foreground(color).Render(s.String())
}

// discLabel names a changer slot the way the front panel does.
func discLabel(slot int) string {
	return humanize.Ordinal(slot+1) + " disc"
}

func albumLine(a *models.Album) string {
	if a == nil || a.Title == "" {
		return ""
	}
	if a.Artist == "" {
		return titleStyle.Render(a.Title)
	}
	return titleStyle.Render(a.Title) + dimStyle.Render(" by "+a.Artist)
}

// formatEvent renders a player event as one line.
func formatEvent(ev player.Event) string {
	switch ev.Kind {
	case player.EventError:
		return errorStyle.Render("drive error: " + ev.Err.Error())

	case player.EventStall:
		return dimStyle.Render(fmt.Sprintf("still waiting for the drive (%s, %s)", ev.Stall.Op, ev.Stall.Waited.Round(time.Second)))

	case player.EventMetadata:
		if line := albumLine(ev.Album); line != "" {
			return fmt.Sprintf("%s  %s", dimStyle.Render(discLabel(ev.Slot)), line)
		}
		return dimStyle.Render(discLabel(ev.Slot) + ": no metadata")
	}

	parts := []string{stateBadge(ev.State), dimStyle.Render(discLabel(ev.Slot))}
	switch ev.State {
	case player.StatePlay, player.StatePause, player.StateSeekFF, player.StateSeekRew, player.StateStop:
		parts = append(parts, fmt.Sprintf("track %02d", ev.Track.Track))
		if ev.Album != nil {
			if i := ev.Album.TrackIndex(ev.Track.Track); i >= 0 && ev.Album.Tracks[i].Title != "" {
				parts = append(parts, titleStyle.Render(ev.Album.Tracks[i].Title))
			}
		}
	}
	return strings.Join(parts, "  ")
}

// printSnapshot prints the player status as a table.
func printSnapshot(out io.Writer, s player.Snapshot) {
	fmt.Fprintf(out, "%s  %s  track %02d.%02d  %s (%s into the track)  %s\n",
		stateBadge(s.State), discLabel(s.ActiveSlot), s.Track.Track, s.Track.Index, s.Absolute, s.Relative, s.PlayMode)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tDISC\tTRACKS\tALBUM")
	for i, slot := range s.Slots {
		marker := " "
		if i == s.ActiveSlot {
			marker = "*"
		}
		disc, tracks, album := "empty", "", ""
		if slot.DiscPresent {
			disc = "present"
		}
		if slot.Album != nil {
			tracks = fmt.Sprint(len(slot.Album.Tracks))
			album = slot.Album.Title
			if slot.Album.Artist != "" {
				album += " / " + slot.Album.Artist
			}
		}
		fmt.Fprintf(tw, "%s%d\t%s\t%s\t%s\n", marker, i+1, disc, tracks, album)
	}
	tw.Flush()
}
