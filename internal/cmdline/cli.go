// Package cmdline defines RosettaPad's kong command tree: the run command
// (the composition root), pairing/driver inspection subcommands, and a
// config-template generator, mirroring the reference bridge's CLI shape.
package cmdline

import (
	"log/slog"

	"github.com/rosettapad/rosettapad/internal/log"
)

// LogConfig groups logging flags shared by every command.
type LogConfig struct {
	Level   string `help:"Log level: trace, debug, info, warn, error" default:"info" env:"ROSETTAPAD_LOG_LEVEL"`
	File    string `help:"Optional path to append structured JSON logs to" env:"ROSETTAPAD_LOG_FILE"`
	RawFile string `help:"Optional path to append raw wire-protocol hex dumps to" env:"ROSETTAPAD_RAW_LOG_FILE"`
}

// CLI is the top-level kong command tree.
type CLI struct {
	Log LogConfig `embed:"" prefix:"log."`

	Run     Run           `cmd:"" help:"Run the bridge: discover a controller, emulate a DS3 to the console"`
	Pairing PairingCmd    `cmd:"" help:"Inspect or clear the stored console pairing"`
	Driver  DriverCmd     `cmd:"" help:"Inspect available controller drivers"`
	Config  ConfigCommand `cmd:"" help:"Generate a configuration file template"`
}

// NewLogger builds the structured logger and raw wire-dump logger from the
// CLI's log flags, along with a cleanup func that closes any opened files.
func NewLogger(cfg LogConfig) (*slog.Logger, log.RawLogger, func(), error) {
	logger, closers, err := log.SetupLogger(cfg.Level, cfg.File)
	if err != nil {
		return nil, nil, nil, err
	}

	var rawLogger log.RawLogger
	var rawCloser func()
	if cfg.RawFile != "" {
		rl, f, err := log.NewRawFileLogger(cfg.RawFile)
		if err != nil {
			logger.Error("failed to open raw log file", "file", cfg.RawFile, "error", err)
			rawLogger = log.NewRaw(nil)
		} else {
			rawLogger = rl
			if f != nil {
				rawCloser = func() { _ = f.Close() }
			}
		}
	} else {
		rawLogger = log.NewRaw(nil)
	}

	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
		if rawCloser != nil {
			rawCloser()
		}
	}
	return logger, rawLogger, cleanup, nil
}
