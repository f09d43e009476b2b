package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"cdchanger/internal/atapi"
	"cdchanger/internal/cache"
	"cdchanger/internal/config"
	"cdchanger/internal/database"
	"cdchanger/internal/logging"
	"cdchanger/internal/metadata"
	"cdchanger/internal/player"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the player, reading commands from standard input",
	Long: `Starts the player and prints its state changes. Type commands, one per line:

  open, play, pause, ff, rew, endseek, stop, next, prev,
  nextdisc, prevdisc, shuffle, continue, status, quit`,
	RunE: runPlayer,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

var playerCommands = map[string]player.Command{
	"open":     player.CmdOpenClose,
	"play":     player.CmdPlay,
	"pause":    player.CmdPause,
	"ff":       player.CmdSeekFF,
	"rew":      player.CmdSeekRew,
	"endseek":  player.CmdEndSeek,
	"stop":     player.CmdStop,
	"next":     player.CmdNextTrack,
	"prev":     player.CmdPrevTrack,
	"nextdisc": player.CmdNextDisc,
	"prevdisc": player.CmdPrevDisc,
}

// openMetadata builds the metadata chain: the configured cache in front of
// the CD-Text reader. The returned function releases the cache.
func openMetadata() (*metadata.Aggregate, func(), error) {
	var providers []metadata.Provider
	if cfg.Metadata.CDText {
		providers = append(providers, metadata.NewCDTextProvider(logger))
	}

	switch cfg.Metadata.Cache {
	case "memory":
		c := cache.NewAlbumCache(cfg.Metadata.CacheTTL)
		return metadata.NewAggregate(c, logger, providers...), c.Close, nil
	case "sqlite":
		db, err := database.NewDatabase(cfg.Metadata.CachePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return metadata.NewAggregate(db, logger, providers...), func() { db.Close() }, nil
	}
	return metadata.NewAggregate(nil, logger, providers...), func() {}, nil
}

func runPlayer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stalls during the reset happen before there is a player to tell
	var p *player.Player
	dev, release, err := openDrive(ctx, func(s atapi.Stall) {
		if p != nil {
			p.ReportStall(s)
		}
	})
	if err != nil {
		return err
	}
	defer release()

	meta, closeMeta, err := openMetadata()
	if err != nil {
		return fmt.Errorf("failed to open metadata cache: %w", err)
	}
	defer closeMeta()

	if err := config.Watch(ctx, cfgFile, logger, func(c *config.Config) {
		if err := logging.Apply(logger, c.Logging); err != nil {
			logger.WithError(err).Warn("Keeping the previous logging settings")
		}
	}); err != nil {
		logger.WithError(err).Warn("Configuration changes will need a restart")
	}

	p = player.New(dev, meta, logger, playerOptions(cfg.Player))
	out := cmd.OutOrStdout()
	events := p.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(out, events)
	}()

	ctx, cancel := context.WithCancel(ctx)
	p.Start(ctx)
	defer func() {
		cancel()
		p.Close()
		<-printed
		if err := p.PowerDown(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to spin the disc down")
		}
	}()

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, out, p, line); quit {
				return nil
			}
		}
	}
}

func readLines(in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// printEvents prints events until the subscription is closed. Repeats of
// the same drive error are printed once.
func printEvents(out io.Writer, events <-chan player.Event) {
	var lastErr string
	for ev := range events {
		if ev.Kind == player.EventError {
			if ev.Err.Error() == lastErr {
				continue
			}
			lastErr = ev.Err.Error()
		} else if ev.Kind == player.EventState {
			lastErr = ""
		}
		fmt.Fprintln(out, formatEvent(ev))
	}
}

// handleLine carries out one typed command and reports whether to quit.
func handleLine(ctx context.Context, out io.Writer, p *player.Player, line string) bool {
	word := strings.ToLower(strings.TrimSpace(line))
	var err error
	switch word {
	case "":
		return false
	case "quit", "exit":
		return true
	case "status":
		printSnapshot(out, p.Snapshot())
	case "shuffle":
		err = p.SetPlayMode(ctx, player.PlayModeShuffle)
	case "continue":
		err = p.SetPlayMode(ctx, player.PlayModeContinue)
	default:
		c, ok := playerCommands[word]
		if !ok {
			fmt.Fprintln(out, errorStyle.Render("unknown command: "+word))
			return false
		}
		err = p.DoCommand(ctx, c)
	}
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("%s failed: %v", word, err)))
	}
	return false
}
