package cmdline

import (
	"fmt"
	"log/slog"

	_ "github.com/rosettapad/rosettapad/driver/dualshock"
	_ "github.com/rosettapad/rosettapad/driver/synthetic"
	_ "github.com/rosettapad/rosettapad/driver/xbox"

	"github.com/rosettapad/rosettapad/driver"
	"github.com/rosettapad/rosettapad/internal/log"
)

// DriverCmd groups the controller-driver inspection subcommands.
type DriverCmd struct {
	List DriverListCmd `cmd:"" help:"List registered controller drivers"`
}

// DriverListCmd prints every registered driver's name and capability bits.
type DriverListCmd struct{}

func (c *DriverListCmd) Run(logger *slog.Logger, _ log.RawLogger) error {
	names := driver.List()
	if len(names) == 0 {
		fmt.Println("no drivers registered")
		return nil
	}
	for _, name := range names {
		d := driver.Get(name)
		if d == nil {
			continue
		}
		meta := d.Metadata()
		fmt.Printf("%-12s vid=%04x pid=%04x caps=%#04x\n", meta.Name, meta.VendorID, meta.ProductID, uint16(meta.Capabilities))
	}
	return nil
}
