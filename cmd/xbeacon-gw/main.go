// Command xbeacon-gw is the XBeacon lighting gateway.
//
// The gateway scans for XBeacon advertisements, tracks every device it
// hears, broadcasts control commands and maintains at most one GATT
// connection at a time for configuration access.
//
// Usage:
//
//	xbeacon-gw [flags]
//
// Flags:
//
//	-config string       Configuration file path
//	-sim                 Run against a simulated radio instead of hardware
//	-interactive         Enable interactive command mode
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-protocol-log string Protocol log file path (overrides config)
//	-network string      Network name for credential provisioning
//	-password string     Network password for credential provisioning
//	-provision           Derive and store credentials, then exit
//
// Examples:
//
//	# Provision network credentials before first use
//	xbeacon-gw -config gateway.yaml -provision -network "Floor 3" -password "s3cret-s3cret"
//
//	# Run against a simulated radio with the interactive console
//	xbeacon-gw -sim -interactive
//
//	# Run with a configuration file and protocol logging
//	xbeacon-gw -config gateway.yaml -protocol-log gateway.xlog
//
// Interactive Commands:
//
//	devices     - List tracked devices
//	set <target> <percent> [fade-ms] - Set light intensity
//	scene <target> <scene> - Recall a scene
//	indicate <target> - Blink a device
//	groups <target> - Request group membership
//	connect <radio-addr> - Connect to a device
//	status      - Show gateway status
//	quit        - Exit the gateway
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xbeacon-protocol/xbeacon-go/cmd/xbeacon-gw/interactive"
	"github.com/xbeacon-protocol/xbeacon-go/internal/simradio"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/config"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/engine"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/persistence"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/security"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/transport"
)

// tickInterval paces the engine's cooperative loop. Advertisement rates
// top out around one frame per device per 100ms, so one drain pass per
// tick keeps up comfortably.
const tickInterval = 100 * time.Millisecond

// simStepInterval paces the simulated air when running with -sim.
const simStepInterval = time.Second

// Flags holds the parsed command-line flags.
type Flags struct {
	ConfigFile  string
	Sim         bool
	Interactive bool
	LogLevel    string
	ProtocolLog string
	Network     string
	Password    string
	Provision   bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.BoolVar(&flags.Sim, "sim", false, "Run against a simulated radio instead of hardware")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Protocol log file path (overrides config)")
	flag.StringVar(&flags.Network, "network", "", "Network name for credential provisioning")
	flag.StringVar(&flags.Password, "password", "", "Network password for credential provisioning")
	flag.BoolVar(&flags.Provision, "provision", false, "Derive and store credentials, then exit")
}

func main() {
	flag.Parse()

	logger := setupLogging(flags.LogLevel)

	cfg := config.Default()
	if flags.ConfigFile != "" {
		var err error
		cfg, err = config.Load(flags.ConfigFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if flags.ProtocolLog != "" {
		cfg.LogPath = flags.ProtocolLog
	}

	if flags.Provision {
		if err := provision(cfg, flags.Network, flags.Password); err != nil {
			log.Fatalf("Provisioning failed: %v", err)
		}
		log.Printf("Credentials stored in %s", cfg.CredentialFile)
		return
	}

	log.Println("XBeacon Gateway")
	log.Println("===============")

	var (
		tr     transport.Transport
		reopen func() (transport.Transport, error)
		sim    *simradio.Sim
	)
	if flags.Sim {
		sim = newSimulation()
		tr = sim
		reopen = func() (transport.Transport, error) { return sim, nil }
		log.Printf("Simulated radio with %d devices", len(sim.Devices()))
	} else {
		// TODO: BGAPI serial transport for BLED112 dongles. Until it
		// lands, hardware operation needs an external transport.
		log.Fatalf("No serial radio driver available yet; run with -sim")
	}

	eng, err := engine.New(cfg, tr, reopen, logger)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer eng.Close()

	if err := eng.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	log.Printf("Engine started (encryption: %v)", eng.Encrypts())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// All engine access happens on this goroutine's loop; the console
	// dispatches closures through exec.
	exec := make(chan func(), 16)
	dispatch := func(fn func()) {
		done := make(chan struct{})
		select {
		case exec <- func() { fn(); close(done) }:
			<-done
		case <-ctx.Done():
		}
	}

	if flags.Interactive {
		console, err := interactive.New(eng, dispatch)
		if err != nil {
			log.Fatalf("Failed to create console: %v", err)
		}
		// Redirect log output through readline to avoid interfering
		// with the command prompt.
		log.SetOutput(console.Stdout())
		go console.Run(ctx, cancel)
	}

	go runEngineLoop(ctx, eng, sim, exec)

	// Wait for shutdown signal or context cancellation.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Cancelled by the interactive quit command.
	}

	log.Println("Shutting down...")
	cancel()
}

// runEngineLoop owns the engine. Every engine touch happens here: the
// periodic tick, simulated air time and dispatched console commands.
func runEngineLoop(ctx context.Context, eng *engine.Engine, sim *simradio.Sim, exec chan func()) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var simTick <-chan time.Time
	if sim != nil {
		simTicker := time.NewTicker(simStepInterval)
		defer simTicker.Stop()
		simTick = simTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-exec:
			fn()
		case <-simTick:
			sim.Step()
		case <-ticker.C:
			eng.Tick()
		}
	}
}

// provision derives network credentials and writes them to the
// configured credential file.
func provision(cfg *config.Config, network, password string) error {
	if network == "" || password == "" {
		return fmt.Errorf("both -network and -password are required")
	}

	tx, rx, err := security.DeriveCredentials(network, password)
	if err != nil {
		return err
	}

	store := persistence.NewCredentialStore(cfg.CredentialFile)
	return store.Save(tx, rx)
}

// newSimulation builds a small simulated installation for -sim mode.
func newSimulation() *simradio.Sim {
	return simradio.New(
		&simradio.Device{
			Radio:     frame.RadioAddress{0xC0, 0x11, 0x22, 0x00, 0x00, 0x21},
			Logical:   frame.LogicalAddress{0x21},
			Name:      "XIM-Office-1",
			Version:   "1.2.0",
			Groups:    []uint16{100, 200},
			Intensity: 50,
			RSSI:      -48,
		},
		&simradio.Device{
			Radio:     frame.RadioAddress{0xC0, 0x11, 0x22, 0x00, 0x00, 0x22},
			Logical:   frame.LogicalAddress{0x22},
			Name:      "XIM-Office-2",
			Version:   "1.2.0",
			Groups:    []uint16{100},
			Intensity: 50,
			RSSI:      -60,
		},
		&simradio.Device{
			Radio:     frame.RadioAddress{0xC0, 0x11, 0x22, 0x00, 0x00, 0x23},
			Logical:   frame.LogicalAddress{0x23},
			Name:      "XIM-Hallway",
			Version:   "1.0.1",
			Groups:    []uint16{200},
			Intensity: 25,
			RSSI:      -71,
		},
	)
}

func setupLogging(level string) *slog.Logger {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
