package cli

import (
	"context"
	"fmt"
	"time"

	"cdchanger/internal/atapi"
	"cdchanger/internal/config"
	"cdchanger/internal/ide"
	"cdchanger/internal/ide/sim"
	"cdchanger/internal/player"
	"cdchanger/pkg/models"
)

// newSimulator builds the changer used with --simulate.
var newSimulator = func() *sim.Changer {
	return sim.New(sim.Config{
		Model: "CDCHANGER SIMULATOR",
		Slots: []*sim.Disc{
			sim.AudioDisc(4*time.Minute+12*time.Second, 3*time.Minute+48*time.Second, 5*time.Minute+3*time.Second).
				WithText("Night Drive", "The Simulators", "Neon", "Overpass", "Tail Lights"),
			nil,
			sim.EnhancedDisc(20*time.Minute, 2*time.Minute+40*time.Second, 6*time.Minute+15*time.Second),
		},
		CloseDelay:  2 * time.Second,
		ChangeDelay: 3 * time.Second,
	})
}

// openDrive resets the configured drive and returns it with a function
// releasing the bus. onStall, if set, hears about slow drive operations.
func openDrive(ctx context.Context, onStall func(atapi.Stall)) (*atapi.Device, func(), error) {
	var bus ide.Bus
	release := func() {}
	if cfg.Bus.Simulate {
		bus = newSimulator()
		logger.Info("Using the simulated changer")
	} else {
		i2c, err := ide.OpenI2CBus(cfg.Bus.Device, cfg.Bus.FlagsAddress, cfg.Bus.DatabusAddress, logger)
		if err != nil {
			return nil, nil, err
		}
		bus = i2c
		release = func() { i2c.Close() }
	}

	policy := atapi.DefaultWaitPolicy()
	policy.SoftTimeout = cfg.Drive.SoftTimeout
	policy.MaxStalls = cfg.Drive.MaxStalls
	policy.OnStall = onStall

	dev := atapi.New(bus,
		atapi.WithLogger(logger),
		atapi.WithWaitPolicy(policy),
		atapi.WithQuirks(cfg.Drive.Quirks),
		atapi.WithResetSettle(cfg.Drive.ResetSettle),
	)
	if err := dev.Reset(ctx); err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to reset drive: %w", err)
	}
	return dev, release, nil
}

func playerOptions(c config.PlayerConfig) player.Options {
	opts := player.DefaultOptions()
	opts.PollInterval = c.PollInterval
	opts.MetadataInterval = c.MetadataInterval
	opts.CloseSettle = c.CloseSettle
	opts.LoadSettle = c.LoadSettle
	opts.ChangeSettle = c.ChangeSettle
	opts.SoftScanInterval = c.SoftScanInterval
	opts.SoftScanHop = models.MSF{S: uint8(c.SoftScanHop)}
	opts.SoftScanHopGrowth = models.MSF{S: uint8(c.SoftScanHopGrowth)}
	opts.SoftScanGrowEvery = c.SoftScanGrowEvery
	if c.PlayMode == "shuffle" {
		opts.PlayMode = player.PlayModeShuffle
	}
	return opts
}
