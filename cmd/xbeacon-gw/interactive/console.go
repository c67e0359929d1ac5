// Package interactive provides the interactive command-line interface
// for the XBeacon gateway.
package interactive

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/command"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/engine"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/registry"
)

// Console handles interactive mode for xbeacon-gw.
//
// The engine is single-threaded: all engine access goes through the
// dispatcher, which runs the closure on the engine's tick goroutine and
// waits for it to complete.
type Console struct {
	eng *engine.Engine
	do  func(func())
	rl  *readline.Instance
}

// New creates a new interactive console. do must run the given closure
// on the engine goroutine and return once it has run.
func New(eng *engine.Engine, do func(func())) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "xbeacon> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{
		eng: eng,
		do:  do,
		rl:  rl,
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "list", "ls", "devices":
			c.cmdDevices()

		case "set":
			c.cmdSet(args)

		case "stop":
			c.cmdStop(args)

		case "scene":
			c.cmdScene(args)

		case "indicate", "blink":
			c.cmdIndicate(args)

		case "override":
			c.cmdOverride(args)

		case "groups", "g":
			c.cmdGroups(args)

		case "telemetry", "poll":
			c.cmdTelemetry(args)

		case "connect":
			c.cmdConnect(args)

		case "disconnect":
			c.cmdDisconnect()

		case "read", "r":
			c.cmdRead(args)

		case "write", "w":
			c.cmdWrite(args)

		case "status":
			c.cmdStatus()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
XBeacon Gateway Commands:
  Broadcast Control:
    set <target> <percent> [fade-ms]  - Set light intensity
    stop <target>                     - Stop an in-progress fade
    scene <target> <scene> [fade-ms]  - Recall a scene
    indicate <target> [n] [ms] [hi] [lo] - Blink a device for identification
    override <target> <mode> <secs>   - Override sensor control mode

  Polling:
    groups <target>                   - Request group membership
    telemetry [target]                - Request history/sensor pages

  Connections:
    connect <radio-addr>              - Connect to a device
    disconnect                        - Disconnect the active connection
    read <radio-addr> <uuid>          - Read a characteristic
    write <radio-addr> <uuid> <hex>   - Write a characteristic

  General:
    devices                           - List tracked devices
    status                            - Show gateway status
    help                              - Show this help
    quit                              - Exit gateway

  Target Format:
    "all" for broadcast, or a dot-separated logical address:
    "33" (assigned), "192.0.33" (unassigned), "255.255.255.12" (group)`)
}

// parseTarget parses a logical address, accepting "all" for broadcast.
func parseTarget(s string) (frame.LogicalAddress, error) {
	if strings.EqualFold(s, "all") {
		return frame.BroadcastAddress, nil
	}
	return frame.ParseLogicalAddress(s)
}

// parseFade parses an optional fade duration in milliseconds. Zero means
// the configured default.
func parseFade(args []string) (time.Duration, error) {
	if len(args) == 0 {
		return 0, nil
	}
	ms, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid fade time: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// cmdDevices handles the devices/list command.
func (c *Console) cmdDevices() {
	type row struct {
		radio     string
		logical   string
		kind      string
		name      string
		rssi      int8
		state     string
		intensity string
		age       string
	}

	var rows []row
	c.do(func() {
		now := time.Now()
		devices := c.eng.Registry().All()
		sort.Slice(devices, func(i, j int) bool {
			return devices[i].RadioAddress.String() < devices[j].RadioAddress.String()
		})
		for _, d := range devices {
			r := row{
				radio:   d.RadioAddress.String(),
				logical: d.LogicalAddress.String(),
				kind:    d.Kind.String(),
				name:    d.Name,
				rssi:    d.RSSI,
				state:   d.State.String(),
				age:     now.Sub(d.LastSeen).Round(time.Second).String(),
			}
			if d.Fixture != nil {
				r.intensity = fmt.Sprintf("%.1f%%", d.Fixture.Intensity)
			}
			rows = append(rows, r)
		}
	})

	if len(rows) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No devices seen yet")
		return
	}

	fmt.Fprintf(c.rl.Stdout(), "\nTracked Devices (%d):\n", len(rows))
	fmt.Fprintln(c.rl.Stdout(), "-------------------------------------------")
	for _, r := range rows {
		fmt.Fprintf(c.rl.Stdout(), "  %s  addr %s  %s\n", r.radio, r.logical, r.kind)
		if r.name != "" {
			fmt.Fprintf(c.rl.Stdout(), "      Name: %s\n", r.name)
		}
		fmt.Fprintf(c.rl.Stdout(), "      RSSI: %d dBm  State: %s  Seen: %s ago\n", r.rssi, r.state, r.age)
		if r.intensity != "" {
			fmt.Fprintf(c.rl.Stdout(), "      Intensity: %s\n", r.intensity)
		}
	}
}

// cmdSet handles the set command.
func (c *Console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: set <target> <percent> [fade-ms]")
		return
	}

	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid target: %v\n", err)
		return
	}

	percent, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid intensity: %v\n", err)
		return
	}

	fade, err := parseFade(args[2:])
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), err)
		return
	}

	c.do(func() { err = c.eng.SetIntensity(target, percent, fade) })
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Set %s to %.1f%%\n", target, percent)
}

// cmdStop handles the stop command.
func (c *Console) cmdStop(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: stop <target>")
		return
	}

	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid target: %v\n", err)
		return
	}

	c.do(func() { err = c.eng.StopFade(target) })
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "Fade stopped")
}

// cmdScene handles the scene command.
func (c *Console) cmdScene(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: scene <target> <scene-number> [fade-ms]")
		return
	}

	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid target: %v\n", err)
		return
	}

	scene, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid scene number: %v\n", err)
		return
	}

	fade, err := parseFade(args[2:])
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), err)
		return
	}

	c.do(func() { err = c.eng.RecallScene(target, uint16(scene), fade) })
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Recalled scene %d on %s\n", scene, target)
}

// cmdIndicate handles the indicate command. Pattern arguments are
// optional; zeros fall back to the configured defaults.
func (c *Console) cmdIndicate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: indicate <target> [flashes] [period-ms] [high-pct] [low-pct]")
		return
	}

	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid target: %v\n", err)
		return
	}

	var (
		flashes  uint64
		periodMS uint64
		highPct  float64
		lowPct   float64
	)
	if len(args) > 1 {
		if flashes, err = strconv.ParseUint(args[1], 10, 8); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid flash count: %v\n", err)
			return
		}
	}
	if len(args) > 2 {
		if periodMS, err = strconv.ParseUint(args[2], 10, 32); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid period: %v\n", err)
			return
		}
	}
	if len(args) > 3 {
		if highPct, err = strconv.ParseFloat(args[3], 64); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid high level: %v\n", err)
			return
		}
	}
	if len(args) > 4 {
		if lowPct, err = strconv.ParseFloat(args[4], 64); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid low level: %v\n", err)
			return
		}
	}

	c.do(func() {
		err = c.eng.Indicate(target, uint8(flashes),
			time.Duration(periodMS)*time.Millisecond, highPct, lowPct)
	})
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Indicating on %s\n", target)
}

// cmdOverride handles the override command.
func (c *Console) cmdOverride(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: override <target> <mode> <seconds>")
		return
	}

	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid target: %v\n", err)
		return
	}

	mode, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid mode: %v\n", err)
		return
	}

	secs, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid duration: %v\n", err)
		return
	}

	c.do(func() {
		err = c.eng.SensorOverride(target, uint8(mode), time.Duration(secs)*time.Second)
	})
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "Override sent")
}

// cmdGroups handles the groups command: request group membership and show
// what is already resolved.
func (c *Console) cmdGroups(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: groups <target>")
		return
	}

	target, err := parseTarget(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid target: %v\n", err)
		return
	}

	var lines []string
	c.do(func() {
		err = c.eng.RequestGroupInfo(target)
		for _, d := range c.eng.Registry().All() {
			if !d.LogicalAddress.Matches(target) {
				continue
			}
			var groups []string
			for _, slot := range d.Groups.Slots {
				if slot != frame.UnassignedSlot {
					groups = append(groups, strconv.Itoa(int(slot)))
				}
			}
			state := "resolving"
			if d.Groups.Complete {
				state = "complete"
			}
			lines = append(lines, fmt.Sprintf("  %s (%s): [%s]",
				d.LogicalAddress, state, strings.Join(groups, " ")))
		}
	})
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}

	fmt.Fprintln(c.rl.Stdout(), "Group info requested")
	for _, l := range lines {
		fmt.Fprintln(c.rl.Stdout(), l)
	}
}

// cmdTelemetry handles the telemetry command.
func (c *Console) cmdTelemetry(args []string) {
	target := frame.BroadcastAddress
	if len(args) > 0 {
		var err error
		target, err = parseTarget(args[0])
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid target: %v\n", err)
			return
		}
	}

	var err error
	c.do(func() { err = c.eng.RequestTelemetry(target) })
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "Telemetry requested")
}

// cmdConnect handles the connect command.
func (c *Console) cmdConnect(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: connect <radio-addr>")
		fmt.Fprintln(c.rl.Stdout(), "  Use 'devices' to list radio addresses")
		return
	}

	radio, err := frame.ParseRadioAddress(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid radio address: %v\n", err)
		return
	}

	c.do(func() { err = c.eng.Connect(radio) })
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Connecting to %s...\n", radio)
}

// cmdDisconnect handles the disconnect command.
func (c *Console) cmdDisconnect() {
	c.do(func() { c.eng.Disconnect() })
	fmt.Fprintln(c.rl.Stdout(), "Disconnect requested")
}

// cmdRead handles the read command. The ticket resolves on a later tick,
// so poll it through the dispatcher.
func (c *Console) cmdRead(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: read <radio-addr> <uuid>")
		return
	}

	radio, err := frame.ParseRadioAddress(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid radio address: %v\n", err)
		return
	}

	var ticket *command.Ticket
	c.do(func() { ticket, err = c.eng.ReadAttribute(radio, args[1]) })
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}

	data, err := c.awaitTicket(ticket)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Read failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%s = %s\n", args[1], hex.EncodeToString(data))
}

// cmdWrite handles the write command.
func (c *Console) cmdWrite(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: write <radio-addr> <uuid> <hex-value>")
		return
	}

	radio, err := frame.ParseRadioAddress(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid radio address: %v\n", err)
		return
	}

	value, err := hex.DecodeString(args[2])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid hex value: %v\n", err)
		return
	}

	var ticket *command.Ticket
	c.do(func() { ticket, err = c.eng.WriteAttribute(radio, args[1], value) })
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}

	if _, err := c.awaitTicket(ticket); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Write failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "OK")
}

// awaitTicket polls a command ticket until it resolves. Tickets are
// mutated on the engine goroutine, so every inspection goes through the
// dispatcher.
func (c *Console) awaitTicket(t *command.Ticket) ([]byte, error) {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var done bool
		var data []byte
		var err error
		c.do(func() {
			done = t.Done()
			if done {
				data = t.Data()
				err = t.Err()
			}
		})
		if done {
			return data, err
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil, command.ErrTimeout
}

// cmdStatus handles the status command.
func (c *Console) cmdStatus() {
	var (
		count     int
		encrypted bool
		connected bool
		active    string
	)
	c.do(func() {
		count = c.eng.Registry().Count()
		encrypted = c.eng.Encrypts()
		connected = c.eng.Connected()
		for _, d := range c.eng.Registry().All() {
			if d.State != registry.StateStandby {
				active = fmt.Sprintf("%s (%s)", d.RadioAddress, d.State)
			}
		}
	})

	fmt.Fprintln(c.rl.Stdout(), "\nGateway Status")
	fmt.Fprintln(c.rl.Stdout(), "-------------------------------------------")
	fmt.Fprintf(c.rl.Stdout(), "  Tracked Devices:  %d\n", count)
	fmt.Fprintf(c.rl.Stdout(), "  Encryption:       %v\n", encrypted)
	fmt.Fprintf(c.rl.Stdout(), "  Connection:       %v\n", connected)
	if active != "" {
		fmt.Fprintf(c.rl.Stdout(), "  Active Link:      %s\n", active)
	}
	fmt.Fprintln(c.rl.Stdout())
}
