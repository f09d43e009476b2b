package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"cdchanger/internal/database"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the album metadata cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached albums",
	RunE: withCache(func(cmd *cobra.Command, args []string, db *database.Database) error {
		albums, err := db.ListAlbums(cmd.Context())
		if err != nil {
			return err
		}
		if len(albums) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No cached albums")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DISC ID\tALBUM\tARTIST\tTRACKS\tUPDATED\tLAST PLAYED")
		for _, a := range albums {
			played := "never"
			if !a.LastUsedAt.IsZero() {
				played = humanize.Time(a.LastUsedAt)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				a.DiscID, a.Title, a.Artist, a.Tracks, humanize.Time(a.UpdatedAt), played)
		}
		return tw.Flush()
	}),
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <disc-id>",
	Short: "Forget one album",
	Args:  cobra.ExactArgs(1),
	RunE: withCache(func(cmd *cobra.Command, args []string, db *database.Database) error {
		return db.DeleteAlbum(cmd.Context(), args[0])
	}),
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all albums",
	RunE: withCache(func(cmd *cobra.Command, args []string, db *database.Database) error {
		n, err := db.Clear(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s cached %s\n", humanize.Comma(n), pluralize(n, "album", "albums"))
		return nil
	}),
}

func init() {
	cacheCmd.AddCommand(cacheListCmd, cacheDeleteCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// withCache wraps a command working on the SQLite metadata cache.
func withCache(fn func(cmd *cobra.Command, args []string, db *database.Database) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if cfg.Metadata.Cache != "sqlite" {
			return errors.New("the metadata cache is not persistent, set [metadata] cache = \"sqlite\"")
		}
		db, err := database.NewDatabase(cfg.Metadata.CachePath, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(cmd, args, db)
	}
}

func pluralize(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
