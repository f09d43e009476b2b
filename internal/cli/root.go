// Package cli implements the cdchanger command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"cdchanger/internal/config"
	"cdchanger/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	simulate bool

	cfg       *config.Config
	logger    *logrus.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "cdchanger",
	Short: "Play audio CDs on an ATAPI drive or changer",
	Long: `cdchanger drives an ATAPI CD-ROM drive or disc changer wired to an IDE bus
through I2C port expanders, and plays audio CDs through the drive's own DAC.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./cdchanger.toml", "config file")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "use a simulated three disc changer instead of the hardware")
}

func initConfig() error {
	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if simulate {
		cfg.Bus.Simulate = true
	}

	logger, logCloser, err = logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
