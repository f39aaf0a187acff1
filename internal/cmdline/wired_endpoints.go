package cmdline

import (
	"fmt"
	"os"

	"github.com/rosettapad/rosettapad/transport/wired"
)

// openWiredEndpoints opens the three FunctionFS endpoint files; mounting
// the gadget and writing descriptors to ep0 ahead of time is a deployment
// concern handled outside this process.
func openWiredEndpoints(ep0, ep1, ep2 string) (wired.Endpoints, error) {
	var ep wired.Endpoints

	f0, err := os.OpenFile(ep0, os.O_RDWR, 0)
	if err != nil {
		return ep, fmt.Errorf("open ep0: %w", err)
	}
	f1, err := os.OpenFile(ep1, os.O_RDWR, 0)
	if err != nil {
		f0.Close()
		return ep, fmt.Errorf("open ep1: %w", err)
	}
	f2, err := os.OpenFile(ep2, os.O_RDWR, 0)
	if err != nil {
		f0.Close()
		f1.Close()
		return ep, fmt.Errorf("open ep2: %w", err)
	}

	ep.EP0, ep.EP1, ep.EP2 = f0, f1, f2
	return ep, nil
}

func closeWiredEndpoints(ep wired.Endpoints) {
	if ep.EP0 != nil {
		ep.EP0.Close()
	}
	if ep.EP1 != nil {
		ep.EP1.Close()
	}
	if ep.EP2 != nil {
		ep.EP2.Close()
	}
}
