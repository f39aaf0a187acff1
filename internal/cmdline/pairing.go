package cmdline

import (
	"fmt"
	"log/slog"

	"github.com/rosettapad/rosettapad/internal/configpaths"
	"github.com/rosettapad/rosettapad/internal/log"
	"github.com/rosettapad/rosettapad/session"
)

// PairingCmd groups the console-pairing inspection subcommands.
type PairingCmd struct {
	File  string          `help:"Path to the pairing record; empty uses the default" default:""`
	Show  PairingShowCmd  `cmd:"" help:"Print the stored console/bridge MAC pair"`
	Clear PairingClearCmd `cmd:"" help:"Delete the stored pairing, forcing a fresh wired pairing"`
}

func (p *PairingCmd) resolvePath() (string, error) {
	if p.File != "" {
		return p.File, nil
	}
	return configpaths.DefaultPairingPath()
}

// PairingShowCmd prints the current pairing record, if any.
type PairingShowCmd struct{}

func (c *PairingShowCmd) Run(cli *CLI, logger *slog.Logger, _ log.RawLogger) error {
	path, err := cli.Pairing.resolvePath()
	if err != nil {
		return err
	}
	store, err := session.NewStore(path)
	if err != nil {
		return fmt.Errorf("pairing show: %w", err)
	}
	rec, complete := store.Get()
	if !complete {
		fmt.Println("no pairing recorded")
		return nil
	}
	fmt.Printf("console: %s\nbridge:  %s\n", macString(rec.ConsoleMAC), macString(rec.LocalMAC))
	return nil
}

// PairingClearCmd removes the stored pairing record.
type PairingClearCmd struct{}

func (c *PairingClearCmd) Run(cli *CLI, logger *slog.Logger, _ log.RawLogger) error {
	path, err := cli.Pairing.resolvePath()
	if err != nil {
		return err
	}
	store, err := session.NewStore(path)
	if err != nil {
		return fmt.Errorf("pairing clear: %w", err)
	}
	if err := store.Clear(); err != nil {
		return fmt.Errorf("pairing clear: %w", err)
	}
	logger.Info("pairing record cleared", "path", path)
	return nil
}

func macString(mac [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}
