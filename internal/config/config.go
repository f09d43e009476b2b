package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cdchanger/internal/atapi"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Bus      BusConfig      `toml:"bus"`
	Drive    DriveConfig    `toml:"drive"`
	Player   PlayerConfig   `toml:"player"`
	Metadata MetadataConfig `toml:"metadata"`
	Logging  LoggingConfig  `toml:"logging"`
}

// BusConfig describes how the drive's IDE bus is reached
type BusConfig struct {
	// Device is the i2c-dev node the two PCA9555 expanders sit on.
	Device         string `toml:"device"`
	FlagsAddress   uint8  `toml:"flags_address"`
	DatabusAddress uint8  `toml:"databus_address"`
	// Simulate replaces the hardware with a simulated three slot changer.
	Simulate bool `toml:"simulate"`
}

// DriveConfig contains ATAPI protocol settings
type DriveConfig struct {
	SoftTimeout time.Duration `toml:"soft_timeout"`
	// MaxStalls soft timeouts in a row fail a wait. Zero waits forever.
	MaxStalls   int           `toml:"max_stalls"`
	ResetSettle time.Duration `toml:"reset_settle"`
	// Quirks are added to whatever the drive model is known to need.
	Quirks atapi.Quirks `toml:"quirks"`
}

// PlayerConfig contains player timings
type PlayerConfig struct {
	PollInterval     time.Duration `toml:"poll_interval"`
	MetadataInterval time.Duration `toml:"metadata_interval"`
	CloseSettle      time.Duration `toml:"close_settle"`
	LoadSettle       time.Duration `toml:"load_settle"`
	ChangeSettle     time.Duration `toml:"change_settle"`

	SoftScanInterval  time.Duration `toml:"softscan_interval"`
	SoftScanHop       int           `toml:"softscan_hop_seconds"`
	SoftScanHopGrowth int           `toml:"softscan_growth_seconds"`
	SoftScanGrowEvery int           `toml:"softscan_grow_every"`

	// PlayMode is "continue" or "shuffle".
	PlayMode string `toml:"play_mode"`
}

// MetadataConfig contains album metadata settings
type MetadataConfig struct {
	// Cache is "memory", "sqlite" or "none".
	Cache     string        `toml:"cache"`
	CachePath string        `toml:"cache_path"`
	CacheTTL  time.Duration `toml:"cache_ttl"`
	CDText    bool          `toml:"cd_text"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// DefaultConfig returns a configuration suitable for the reference board
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			Device:         "/dev/i2c-1",
			FlagsAddress:   0x20,
			DatabusAddress: 0x21,
		},
		Drive: DriveConfig{
			SoftTimeout: 10 * time.Second,
			MaxStalls:   6,
			ResetSettle: 500 * time.Millisecond,
		},
		Player: PlayerConfig{
			PollInterval:      10 * time.Millisecond,
			MetadataInterval:  100 * time.Millisecond,
			CloseSettle:       2 * time.Second,
			LoadSettle:        2 * time.Second,
			ChangeSettle:      time.Second,
			SoftScanInterval:  250 * time.Millisecond,
			SoftScanHop:       10,
			SoftScanHopGrowth: 5,
			SoftScanGrowEvery: 8,
			PlayMode:          "continue",
		},
		Metadata: MetadataConfig{
			Cache:     "sqlite",
			CachePath: "./cdchanger.db",
			CacheTTL:  24 * time.Hour,
			CDText:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating it with the
// defaults if it does not exist. A .env file next to it is loaded into the
// environment first, and CDCHANGER_* variables override the file.
func LoadConfig(configPath string) (*Config, error) {
	loadDotEnv(filepath.Join(filepath.Dir(configPath), ".env"))

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Created default configuration file at: %s\n", configPath)
	}

	return readConfig(configPath)
}

func readConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads path into the environment if it exists. Variables that
// are already set win.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", path, err)
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Bus
	if v := os.Getenv("CDCHANGER_BUS_DEVICE"); v != "" {
		cfg.Bus.Device = v
	}
	if v := os.Getenv("CDCHANGER_SIMULATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Bus.Simulate = b
		}
	}

	// Player
	if v := os.Getenv("CDCHANGER_PLAY_MODE"); v != "" {
		cfg.Player.PlayMode = v
	}

	// Metadata
	if v := os.Getenv("CDCHANGER_CACHE"); v != "" {
		cfg.Metadata.Cache = v
	}
	if v := os.Getenv("CDCHANGER_CACHE_PATH"); v != "" {
		cfg.Metadata.CachePath = v
	}

	// Logging
	if v := os.Getenv("CDCHANGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CDCHANGER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CDCHANGER_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# CD changer configuration
# Durations are written like "250ms" or "2s".

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if !c.Bus.Simulate && c.Bus.Device == "" {
		errs = append(errs, errors.New("bus: device cannot be empty"))
	}
	if c.Bus.FlagsAddress == c.Bus.DatabusAddress {
		errs = append(errs, errors.New("bus: flags and databus expanders need different addresses"))
	}

	if c.Drive.SoftTimeout <= 0 {
		errs = append(errs, errors.New("drive: soft_timeout must be positive"))
	}
	if c.Drive.MaxStalls < 0 {
		errs = append(errs, errors.New("drive: max_stalls must be non-negative"))
	}

	if c.Player.PollInterval <= 0 {
		errs = append(errs, errors.New("player: poll_interval must be positive"))
	}
	if c.Player.SoftScanInterval <= 0 {
		errs = append(errs, errors.New("player: softscan_interval must be positive"))
	}
	if c.Player.SoftScanHop <= 0 || c.Player.SoftScanHop >= 60 {
		errs = append(errs, errors.New("player: softscan_hop_seconds must be between 1 and 59"))
	}
	if c.Player.SoftScanHopGrowth < 0 || c.Player.SoftScanHopGrowth >= 60 {
		errs = append(errs, errors.New("player: softscan_growth_seconds must be between 0 and 59"))
	}
	if c.Player.PlayMode != "continue" && c.Player.PlayMode != "shuffle" {
		errs = append(errs, fmt.Errorf("player: invalid play mode: %s (must be continue or shuffle)", c.Player.PlayMode))
	}

	switch c.Metadata.Cache {
	case "memory", "none":
	case "sqlite":
		if c.Metadata.CachePath == "" {
			errs = append(errs, errors.New("metadata: cache_path cannot be empty with the sqlite cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("metadata: invalid cache: %s (must be memory, sqlite or none)", c.Metadata.Cache))
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("logging: invalid log level: %s (must be trace, debug, info, warn, or error)", c.Logging.Level))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging: invalid log format: %s (must be text or json)", c.Logging.Format))
	}

	return errors.Join(errs...)
}
