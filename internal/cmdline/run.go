package cmdline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rosettapad/rosettapad/driver"
	_ "github.com/rosettapad/rosettapad/driver/dualshock"
	_ "github.com/rosettapad/rosettapad/driver/synthetic"
	_ "github.com/rosettapad/rosettapad/driver/xbox"
	"github.com/rosettapad/rosettapad/ds3"
	"github.com/rosettapad/rosettapad/internal/configpaths"
	"github.com/rosettapad/rosettapad/internal/control"
	"github.com/rosettapad/rosettapad/internal/log"
	"github.com/rosettapad/rosettapad/session"
	"github.com/rosettapad/rosettapad/snapshot"
	"github.com/rosettapad/rosettapad/state"
	"github.com/rosettapad/rosettapad/transport/wired"
	"github.com/rosettapad/rosettapad/transport/wireless"
)

const driverScanPeriod = 1 * time.Second

// Run is the composition root: it owns every subsystem and hands each a
// narrow handle to the shared slots, mirroring the reference bridge's
// single-struct server command.
type Run struct {
	Driver      string `help:"Force a specific driver by name instead of auto-scanning" default:""`
	OwnMAC      string `help:"This bridge's own Bluetooth MAC, reported via DS3 feature 0xF2" default:"00:11:22:33:44:55"`
	WiredEP0    string `help:"Path to the FunctionFS ep0 control file" default:""`
	WiredEP1    string `help:"Path to the FunctionFS ep1 (interrupt IN) file" default:""`
	WiredEP2    string `help:"Path to the FunctionFS ep2 (interrupt OUT) file" default:""`
	BTAdapter   int    `help:"HCI adapter index used for the wireless L2CAP sockets" default:"0"`
	ControlAddr string `help:"Loopback address for the local control server" default:"127.0.0.1:9470"`
	LightbarIPC string `help:"Path to poll for lightbar overrides; empty uses the default" default:""`
	PairingFile string `help:"Path to the pairing record; empty uses the default" default:""`
}

// Run is invoked by Kong when the run command is selected.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.start(ctx, logger, rawLogger)
}

func (r *Run) start(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	ownMAC, err := parseMAC(r.OwnMAC)
	if err != nil {
		logger.Warn("run: invalid --own-mac, using zero MAC", "value", r.OwnMAC, "error", err)
	}

	pairingPath := r.PairingFile
	if pairingPath == "" {
		p, perr := configpaths.DefaultPairingPath()
		if perr != nil {
			return fmt.Errorf("run: resolve pairing path: %w", perr)
		}
		pairingPath = p
	}
	if err := configpaths.EnsureDir(pairingPath); err != nil {
		return fmt.Errorf("run: prepare pairing dir: %w", err)
	}
	pairingStore, err := session.NewStore(pairingPath)
	if err != nil {
		return fmt.Errorf("run: open pairing store: %w", err)
	}

	flags := state.NewFlags()
	inputSlot := &state.InputSlot{}
	outputSlot := &state.OutputSlot{}

	emu := ds3.New(ownMAC)

	var wirelessTransport *wireless.Transport
	mgr := session.New(pairingStore, session.Hooks{
		ConnectWireless: func(ctx context.Context) session.ConnectResult {
			if wirelessTransport == nil {
				return session.ConnectRefused
			}
			switch wirelessTransport.Connect(ctx) {
			case wireless.ConnectOK:
				go func() {
					if err := wirelessTransport.Run(ctx); err != nil {
						logger.Error("run: wireless transport exited", "error", err)
					}
				}()
				return session.ConnectOK
			case wireless.ConnectTimedOut:
				return session.ConnectTimeout
			case wireless.ConnectHostDown:
				return session.ConnectHostDown
			default:
				return session.ConnectRefused
			}
		},
		// This hook sends no HOME press/release of its own: it only opens
		// the wireless input-report cadence gate, so the interrupt channel
		// carries whatever the input slot holds from then on.
		SendHomePulse: func() {
			if wirelessTransport != nil {
				wirelessTransport.SetEnabled(true)
			}
		},
		TeardownWireless: func() {
			if wirelessTransport != nil {
				wirelessTransport.Close()
			}
		},
	}, logger)

	emu.OnPairing = func(consoleMAC [6]byte) {
		flags.SetPairingComplete(true)
		if err := mgr.WiredPairingObserved(ownMAC, consoleMAC); err != nil {
			logger.Warn("run: persist pairing record failed", "error", err)
		}
	}
	emu.OnEnable = func() {
		mgr.AdvanceTransport(session.Enabled)
	}

	activeDriver, initialHandle := r.acquireDriver(logger)
	if activeDriver == nil {
		return fmt.Errorf("run: no controller driver available (forced=%q)", r.Driver)
	}
	defer activeDriver.Shutdown()

	handleBox := &driverHandleBox{}
	handleBox.Set(initialHandle)
	go r.driverReadLoop(ctx, activeDriver, handleBox, inputSlot, flags, mgr, logger)

	if r.WiredEP0 != "" && r.WiredEP1 != "" && r.WiredEP2 != "" {
		ep, err := openWiredEndpoints(r.WiredEP0, r.WiredEP1, r.WiredEP2)
		if err != nil {
			return fmt.Errorf("run: open wired endpoints: %w", err)
		}
		defer closeWiredEndpoints(ep)

		cb := wired.Callbacks{
			OnEnable: mgr.WiredEnable,
			OnDisable: func() {
				if !flags.ModeSwitching() {
					flags.SetUSBEnabled(false)
				}
			},
			OnSuspend: mgr.WiredSuspend,
			OnSetReport: func(id uint8, _ []byte) {
				if id == ds3.FeaturePairing {
					flags.SetPairingComplete(true)
				}
			},
		}
		wiredTransport := wired.New(ep, emu, inputSlot, outputSlot, flags, cb, logger, rawLogger)
		go func() {
			if err := wiredTransport.Run(ctx); err != nil {
				logger.Error("run: wired transport exited", "error", err)
			}
		}()
	} else {
		logger.Warn("run: no wired endpoints configured, wired transport disabled")
	}

	if rec, complete := pairingStore.Get(); complete {
		wirelessCb := wireless.Callbacks{
			OnControlConnected:   func() { mgr.AdvanceTransport(session.ControlConnected) },
			OnInterruptConnected: func() { mgr.AdvanceTransport(session.InterruptConnected) },
			OnReady:              func() { mgr.AdvanceTransport(session.Ready) },
			OnEnableAck:          func() { mgr.AdvanceTransport(session.Enabled) },
			OnDisconnected:       mgr.TransportDisconnected,
			OnSetReport: func(id uint8, _ []byte) {
				if id == ds3.FeaturePairing {
					flags.SetPairingComplete(true)
				}
			},
		}
		wirelessTransport = wireless.New(r.BTAdapter, rec.ConsoleMAC, emu, inputSlot, outputSlot, flags, wirelessCb, logger, rawLogger)
	}

	throttler := state.NewThrottler(outputSlot, flags, func(out snapshot.OutputSnapshot) error {
		h := handleBox.Get()
		if h == nil {
			return nil
		}
		return activeDriver.EmitOutput(h, out)
	}, func() bool { return mgr.Power() == session.Standby }, r.lightbarPath(), logger)
	go throttler.Run(ctx)

	status := &runStatus{mgr: mgr, pairing: pairingStore, driverName: activeDriver.Metadata().Name}
	ctl := control.New(r.ControlAddr, status, pairingStore, func() {
		logger.Info("run: rescan requested via control socket")
	}, logger)
	if err := ctl.Start(); err != nil {
		return fmt.Errorf("run: start control server: %w", err)
	}
	defer ctl.Close()

	logger.Info("rosettapad running", "driver", activeDriver.Metadata().Name, "control_addr", ctl.Addr())

	<-ctx.Done()
	flags.Stop()
	if wirelessTransport != nil {
		wirelessTransport.Close()
	}
	return nil
}

func (r *Run) lightbarPath() string {
	if r.LightbarIPC != "" {
		return r.LightbarIPC
	}
	return configpaths.DefaultLightbarIPCPath()
}

// acquireDriver selects and opens the active controller driver, returning
// its already-open handle if one was found at startup; driverReadLoop takes
// over rescanning if the handle is nil or later drops.
func (r *Run) acquireDriver(logger *slog.Logger) (driver.Driver, driver.Handle) {
	if r.Driver != "" {
		d := driver.Get(r.Driver)
		if d == nil {
			return nil, nil
		}
		if err := d.Init(); err != nil {
			logger.Error("run: init forced driver failed", "driver", r.Driver, "error", err)
			return nil, nil
		}
		h, _ := d.FindDevice()
		return d, h
	}

	for _, name := range driver.List() {
		if name == "synthetic" {
			continue
		}
		d := driver.Get(name)
		if d == nil {
			continue
		}
		if err := d.Init(); err != nil {
			continue
		}
		h, err := d.FindDevice()
		if err == nil && h != nil {
			return d, h
		}
		d.Shutdown()
	}

	synth := driver.Get("synthetic")
	if synth == nil {
		return nil, nil
	}
	_ = synth.Init()
	h, _ := synth.FindDevice()
	return synth, h
}

// driverHandleBox guards the active driver's handle with its own mutex: the
// read loop replaces it on disconnect/rescan while the output throttler
// reads it concurrently to emit rumble/LED state.
type driverHandleBox struct {
	mu sync.Mutex
	h  driver.Handle
}

func (b *driverHandleBox) Get() driver.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.h
}

func (b *driverHandleBox) Set(h driver.Handle) {
	b.mu.Lock()
	b.h = h
	b.mu.Unlock()
}

func (r *Run) driverReadLoop(ctx context.Context, d driver.Driver, box *driverHandleBox, slot *state.InputSlot, flags *state.Flags, mgr *session.Manager, logger *slog.Logger) {
	buf := make([]byte, 256)
	homeHeld := false

	for flags.Running() && ctx.Err() == nil {
		handle := box.Get()
		if handle == nil {
			h, err := d.FindDevice()
			if err != nil || h == nil {
				time.Sleep(driverScanPeriod)
				continue
			}
			box.Set(h)
			continue
		}
		n, err := d.ReadInput(handle, buf)
		if err != nil {
			d.OnDisconnect()
			_ = handle.Close()
			box.Set(nil)
			logger.Warn("run: driver input read failed, rescanning", "driver", d.Metadata().Name, "error", err)
			continue
		}
		snap, err := d.ParseInput(buf[:n])
		if err != nil {
			continue
		}
		slot.Set(snap)

		pressed := snap.Buttons&snapshot.Home != 0
		if pressed && !homeHeld && mgr.Power() == session.Standby {
			mgr.HomePressed(ctx)
		}
		homeHeld = pressed
	}
	if h := box.Get(); h != nil {
		_ = h.Close()
	}
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 6 {
		return mac, fmt.Errorf("malformed MAC %q", s)
	}
	for i, p := range parts {
		var b int
		if _, err := fmt.Sscanf(p, "%02X", &b); err != nil {
			return mac, fmt.Errorf("malformed MAC %q: %w", s, err)
		}
		mac[i] = byte(b)
	}
	return mac, nil
}

type runStatus struct {
	mgr        *session.Manager
	pairing    *session.Store
	driverName string
}

func (s *runStatus) Power() session.PowerState            { return s.mgr.Power() }
func (s *runStatus) Transport() session.TransportSubstate  { return s.mgr.Transport() }
func (s *runStatus) ActiveDriverName() string              { return s.driverName }
func (s *runStatus) PairingRecord() (session.Record, bool) { return s.pairing.Get() }
