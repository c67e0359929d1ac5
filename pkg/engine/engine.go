package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/command"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/config"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/connection"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/group"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/log"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/persistence"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/registry"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/security"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/transport"
)

// Engine errors.
var (
	// ErrUnknownDevice indicates an operation on a device the registry has
	// never seen.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrTransportDown indicates the radio controller could not be
	// reinitialized.
	ErrTransportDown = errors.New("radio transport down")
)

// maxEventsPerTick bounds how much inbound traffic one tick may drain so
// a chatty radio cannot starve the scheduled work.
const maxEventsPerTick = 64

// telemetryPollInterval spaces the broadcast asking devices to re-send
// their slow telemetry pages.
const telemetryPollInterval = 5 * time.Minute

// groupPollSpacing is the minimum gap between two group-table requests,
// regardless of how many devices are pending.
const groupPollSpacing = time.Second

// Engine is the gateway core. All methods must be called from the same
// goroutine that calls Tick.
type Engine struct {
	cfg       *config.Config
	groupMask frame.LogicalAddress

	registry *registry.Registry
	security *security.Engine
	machine  *connection.Machine
	queue    *command.Queue
	groups   *group.Resolver

	transport transport.Transport
	reopen    func() (transport.Transport, error)
	failures  *transport.FailureMonitor

	protocol log.Logger
	logfile  *log.FileLogger
	logger   *slog.Logger
	now      func() time.Time

	// wantConnect holds connect requests until the connectable-window
	// broadcast has been on the air, the target advertises again, and the
	// machine is free. The value is the window broadcast's ticket.
	wantConnect map[frame.RadioAddress]*command.Ticket

	lastTelemetryPoll time.Time
	lastGroupPoll     time.Time
}

// New builds an engine over an open transport. reopen is the factory used
// to replace the transport after repeated controller failures; nil
// disables recovery.
func New(cfg *config.Config, tr transport.Transport, reopen func() (transport.Transport, error), logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mask, err := cfg.GroupMaskAddress()
	if err != nil {
		return nil, err
	}

	creds := persistence.NewCredentialStore(cfg.CredentialFile)
	tx, rx, err := creds.Load()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	sec := security.NewEngine(tx, rx, creds)
	sec.SetLogger(logger)

	var protocol log.Logger = log.NoopLogger{}
	var logfile *log.FileLogger
	if cfg.LogPath != "" {
		logfile, err = log.NewFileLogger(cfg.LogPath)
		if err != nil {
			return nil, fmt.Errorf("open protocol log: %w", err)
		}
		protocol = logfile
	}

	cache := persistence.NewHandleCacheStore(cfg.HandleCacheDir)
	machine := connection.NewMachine(connection.Config{
		ConnectTimeout:      cfg.Connection.ConnectTimeout.Std(),
		StepTimeout:         cfg.Connection.StepTimeout.Std(),
		MaxConnectionFails:  cfg.Connection.MaxConnectionFails,
		BadConnectionRetest: cfg.Connection.BadConnectionRetest.Std(),
	}, tr, cache)
	machine.SetLoggers(protocol, logger)

	e := &Engine{
		cfg:       cfg,
		groupMask: mask,
		registry:  registry.New(),
		security:  sec,
		machine:   machine,
		queue:     command.NewQueue(tr, logger),
		groups: group.NewResolver(group.Config{
			RetryLimit:    cfg.Groups.RetryLimit,
			RetryInterval: cfg.Groups.RetryInterval.Std(),
			SlowInterval:  cfg.Groups.SlowInterval.Std(),
		}, logger),
		transport:   tr,
		reopen:      reopen,
		failures:    transport.NewFailureMonitor(0),
		protocol:    protocol,
		logfile:     logfile,
		logger:      logger,
		now:         time.Now,
		wantConnect: make(map[frame.RadioAddress]*command.Ticket),
	}
	return e, nil
}

// Registry exposes the device registry for read access.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Encrypts reports whether outbound broadcasts are sealed.
func (e *Engine) Encrypts() bool { return e.security.Encrypts() }

// Start enables scanning.
func (e *Engine) Start() error {
	if err := e.transport.SetScanning(true); err != nil {
		return fmt.Errorf("enable scanning: %w", err)
	}
	return nil
}

// Close releases the transport and the protocol log.
func (e *Engine) Close() error {
	err := e.transport.Close()
	if e.logfile != nil {
		if cerr := e.logfile.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Tick runs one scheduling round: drain pending radio events, then let
// every subsystem advance its due work.
func (e *Engine) Tick() {
	now := e.now()

	for i := 0; i < maxEventsPerTick; i++ {
		ev, ok := e.transport.Poll()
		if !ok {
			break
		}
		e.route(ev, now)
	}

	e.machine.Tick(now)
	e.queue.Tick(now)
	e.pollGroups(now)
	e.pollTelemetry(now)
}

func (e *Engine) route(ev transport.Event, now time.Time) {
	switch ev.Type {
	case transport.EventScan:
		e.handleAdvertisement(ev, now)
		return
	case transport.EventControllerFailure:
		e.handleControllerFailure(ev)
		return
	}

	if e.queue.HandleEvent(ev) {
		return
	}
	if e.machine.HandleEvent(ev) {
		return
	}
	if ev.Type == transport.EventAttribute && ev.Notification {
		e.handleNotification(ev, now)
		return
	}
	e.logger.Debug("unclaimed transport event", "type", ev.Type.String(), "handle", ev.AttrHandle)
}

func (e *Engine) handleAdvertisement(ev transport.Event, now time.Time) {
	f := frame.Decode(ev.Data)
	if f.Kind == frame.KindUnrecognized {
		return
	}

	wasEncrypted := f.Encrypted
	rejected := false
	if f.Kind == frame.KindModern && (f.Encrypted || f.HeaderEncrypted) {
		if !e.security.Open(&f) {
			rejected = true
		}
	}

	var dev *registry.Device
	var payload frame.Payload
	if !rejected {
		dev, payload = e.registry.Upsert(ev.Addr, &f, ev.RSSI, ev.Name)
		if wasEncrypted {
			dev.Encrypted = true
		}
	}
	e.logAdvertisement(ev, &f, dev, rejected, now)
	if rejected || dev == nil {
		return
	}
	if e.groupMask != nil && !dev.LogicalAddress.Matches(e.groupMask) {
		return
	}

	if gi, ok := payload.(*frame.GroupInfoPayload); ok {
		if _, err := e.groups.Apply(dev, gi); err != nil {
			e.logger.Warn("bad group segment", "device", dev.RadioAddress.String(), "err", err)
		}
	}

	// A fresh advertisement is the trigger for held connect requests, once
	// the window broadcast has actually been transmitted.
	if t, ok := e.wantConnect[dev.RadioAddress]; ok && t.Done() && !e.machine.Busy() && e.machine.ShouldAttempt(dev, now) {
		delete(e.wantConnect, dev.RadioAddress)
		if err := e.machine.Start(dev, e.security.Encrypts()); err != nil {
			e.logger.Warn("connect attempt failed to start", "device", dev.RadioAddress.String(), "err", err)
		}
	}
}

// handleNotification merges a spontaneous attribute value from the
// connected device into the registry, as if it had arrived by air.
func (e *Engine) handleNotification(ev transport.Event, now time.Time) {
	dev, ok := e.registry.FindByHandle(ev.ConnHandle)
	if !ok {
		return
	}
	e.protocol.Log(log.Event{
		Timestamp:     now,
		Direction:     log.DirectionIn,
		Layer:         log.LayerRadio,
		Category:      log.CategoryAttribute,
		DeviceAddress: dev.LogicalAddress.String(),
		RadioAddress:  dev.RadioAddress.String(),
		Attribute: &log.AttributeEvent{
			Handle:       ev.AttrHandle,
			Size:         len(ev.Data),
			Notification: true,
		},
	})

	if p, ok := frame.ParsePayload(ev.Data); ok {
		dev.Apply(p)
		if gi, ok := p.(*frame.GroupInfoPayload); ok {
			if _, err := e.groups.Apply(dev, gi); err != nil {
				e.logger.Warn("bad group segment", "device", dev.RadioAddress.String(), "err", err)
			}
		}
	}
}

func (e *Engine) handleControllerFailure(ev transport.Event) {
	e.logger.Error("controller failure", "reason", ev.Reason)
	if !e.failures.Failure() {
		return
	}
	if e.reopen == nil {
		e.logger.Error("controller failure threshold reached, no recovery factory")
		return
	}

	fresh, err := transport.Reinitialize(e.transport, e.reopen)
	if err != nil {
		e.logger.Error("transport reinitialization failed", "err", err)
		return
	}
	e.failures.Success()
	e.transport = fresh
	e.machine.SetRadio(fresh)
	e.queue.SetRadio(fresh)
	if err := fresh.SetScanning(true); err != nil {
		e.logger.Error("re-enable scanning failed", "err", err)
	}
	e.logger.Info("transport reinitialized")
}

func (e *Engine) pollGroups(now time.Time) {
	if now.Sub(e.lastGroupPoll) < groupPollSpacing {
		return
	}
	devices := e.registry.All()
	if e.groupMask != nil {
		devices = e.registry.ByGroup(e.groupMask)
	}
	dev := e.groups.NextPoll(devices, now)
	if dev == nil {
		return
	}
	e.lastGroupPoll = now
	e.groups.RecordAttempt(dev, now)
	if err := e.broadcast(dev.LogicalAddress, command.GroupInfoRequest()); err != nil {
		e.logger.Warn("group request failed", "device", dev.RadioAddress.String(), "err", err)
	}
}

func (e *Engine) pollTelemetry(now time.Time) {
	if e.registry.Count() == 0 || now.Sub(e.lastTelemetryPoll) < telemetryPollInterval {
		return
	}
	e.lastTelemetryPoll = now
	target := e.groupMask
	if target == nil {
		target = frame.BroadcastAddress
	}
	if err := e.broadcast(target, command.RequestAdv(command.PageStatus, command.PageHistory)); err != nil {
		e.logger.Warn("telemetry request failed", "err", err)
	}
}

// broadcast encodes one payload and appends it to the command queue; the
// tick loop puts it on the air. Frames to an assigned destination are
// sealed whenever the network is encrypted; wider forms go out in
// plaintext since only the assigned form carries a sequence region.
func (e *Engine) broadcast(target frame.LogicalAddress, payload frame.Payload) error {
	_, err := e.enqueueBroadcast(target, payload)
	return err
}

func (e *Engine) enqueueBroadcast(target frame.LogicalAddress, payload frame.Payload) (*command.Ticket, error) {
	dest := frame.DestinationFor(target, false)
	if dest == nil {
		return nil, fmt.Errorf("%w: bad address %s", frame.ErrBadAddress, target)
	}

	var (
		data []byte
		err  error
	)
	if e.security.Encrypts() && dest.IsAssigned() {
		seq, serr := e.security.NextSequence()
		if serr != nil {
			return nil, serr
		}
		data, err = frame.EncodeModern(dest, seq, payload, e.security)
	} else {
		data, err = frame.EncodeModern(dest, 0, payload, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("encode op 0x%02x: %w", payload.Tag(), err)
	}

	t := e.queue.Broadcast(data, e.cfg.Control.AdvertiseRepetitions)
	e.logCommand(dest, payload)
	return t, nil
}

func (e *Engine) logAdvertisement(ev transport.Event, f *frame.Frame, dev *registry.Device, rejected bool, now time.Time) {
	entry := log.Event{
		Timestamp: now,
		Direction: log.DirectionIn,
		Layer:     log.LayerFrame,
		Category:  log.CategoryAdvertisement,
		Advertisement: &log.AdvertisementEvent{
			Size: len(ev.Data),
			RSSI: ev.RSSI,
		},
		Frame: &log.FrameEvent{
			Kind:      f.Kind.String(),
			Encrypted: f.Encrypted || rejected,
			Rejected:  rejected,
		},
	}
	if dev != nil {
		entry.DeviceAddress = dev.LogicalAddress.String()
		entry.RadioAddress = dev.RadioAddress.String()
	} else {
		entry.RadioAddress = ev.Addr.String()
	}
	if f.Kind == frame.KindModern && f.Mode == frame.ModeAssigned && !rejected {
		seq := f.Sequence
		entry.Frame.Sequence = &seq
	}
	if !rejected && len(f.Payload) > 0 {
		tag := f.Payload[0]
		entry.Frame.PayloadTag = &tag
	}
	e.protocol.Log(entry)
}

func (e *Engine) logCommand(dest frame.LogicalAddress, payload frame.Payload) {
	ce := &log.CommandEvent{Op: payload.Tag(), Target: dest.String()}
	if cp, ok := payload.(*frame.ControlPayload); ok {
		ce.Params = append([]byte(nil), cp.Params...)
	}
	e.protocol.Log(log.Event{
		Timestamp: e.now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerEngine,
		Category:  log.CategoryCommand,
		Command:   ce,
	})
}
