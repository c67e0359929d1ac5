package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/log"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/persistence"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/profile"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/registry"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/transport"
)

// Machine errors.
var (
	// ErrBusy indicates a connection attempt while another is in progress.
	ErrBusy = errors.New("another connection is in progress")

	// ErrNotStandby indicates a start request for a device that is not idle.
	ErrNotStandby = errors.New("device is not in standby")
)

// firmwareVersionUUID is the standard firmware-revision characteristic,
// readable before discovery.
const firmwareVersionUUID = "2a26"

// notificationEnable is the client-configuration value enabling
// notifications.
var notificationEnable = []byte{0x01, 0x00}

// Config bounds the machine's behavior. Zero fields take defaults.
type Config struct {
	// ConnectTimeout bounds the link-layer connect attempt.
	ConnectTimeout time.Duration

	// StepTimeout bounds every post-connect setup step.
	StepTimeout time.Duration

	// MaxConnectionFails is the consecutive-failure ceiling after which the
	// device falls back to passive tracking.
	MaxConnectionFails int

	// BadConnectionRetest is how long a device past the ceiling waits
	// before an advertisement may trigger another attempt.
	BadConnectionRetest time.Duration

	// Backoff configures reconnect delays.
	Backoff BackoffConfig
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 10 * time.Second
	}
	if out.StepTimeout <= 0 {
		out.StepTimeout = 5 * time.Second
	}
	if out.MaxConnectionFails <= 0 {
		out.MaxConnectionFails = 3
	}
	if out.BadConnectionRetest <= 0 {
		out.BadConnectionRetest = 60 * time.Second
	}
	return out
}

// Machine drives one connection attempt at a time. It is owned by the
// engine and must only be called from the tick loop.
type Machine struct {
	cfg     Config
	radio   transport.Radio
	cache   *persistence.HandleCacheStore
	backoff *Backoff

	protocol log.Logger
	logger   *slog.Logger

	now func() time.Time

	// Current attempt. dev is nil while idle.
	dev        *registry.Device
	connID     string
	encrypt    bool
	downgraded bool
	stateSince time.Time

	// Failure accounting for a teardown in progress: set when the link is
	// being dropped because a setup step failed, so the disconnect
	// confirmation counts the attempt against the device.
	failPending bool
	failReason  string

	// Discovery bookkeeping.
	services   []transport.HandleRange
	serviceIdx int
	discovered map[string]registry.AttributeEntry

	// Notification bookkeeping.
	cccQueue []uint16

	// Scheduled reconnect after an unexpected disconnect.
	retryDev     *registry.Device
	retryAt      time.Time
	retryEncrypt bool
}

// NewMachine creates a connection machine over the given radio and handle
// cache.
func NewMachine(cfg Config, radio transport.Radio, cache *persistence.HandleCacheStore) *Machine {
	return &Machine{
		cfg:      cfg.withDefaults(),
		radio:    radio,
		cache:    cache,
		backoff:  NewBackoffWithConfig(cfg.Backoff),
		protocol: log.NoopLogger{},
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// SetLoggers configures protocol and debug logging.
func (m *Machine) SetLoggers(protocol log.Logger, logger *slog.Logger) {
	if protocol != nil {
		m.protocol = protocol
	}
	if logger != nil {
		m.logger = logger
	}
}

// SetRadio swaps the radio after a transport reinitialization. Any attempt
// in progress is abandoned.
func (m *Machine) SetRadio(radio transport.Radio) {
	if m.dev != nil {
		m.setState(m.dev, registry.StateStandby, "transport reinitialized")
		m.dev.Connected = false
		m.dev = nil
	}
	m.retryDev = nil
	m.failPending = false
	m.radio = radio
}

// Busy reports whether an attempt is in progress.
func (m *Machine) Busy() bool { return m.dev != nil }

// Device returns the device of the attempt in progress, or nil.
func (m *Machine) Device() *registry.Device { return m.dev }

// ShouldAttempt reports whether the engine may start a connection to the
// device now. Below the failure ceiling any standby device qualifies; past
// it the device must have rested for the retest interval.
func (m *Machine) ShouldAttempt(dev *registry.Device, now time.Time) bool {
	if dev.State != registry.StateStandby {
		return false
	}
	if dev.ConnectionFails < m.cfg.MaxConnectionFails {
		return true
	}
	return now.Sub(dev.LastFailTime) >= m.cfg.BadConnectionRetest
}

// Start begins a connection attempt. encrypt selects pairing after the
// link comes up; it is ignored for bootloader devices.
func (m *Machine) Start(dev *registry.Device, encrypt bool) error {
	if m.dev != nil {
		return fmt.Errorf("%w: %s", ErrBusy, m.dev.RadioAddress)
	}
	if dev.State != registry.StateStandby {
		return fmt.Errorf("%w: %s is %s", ErrNotStandby, dev.RadioAddress, dev.State)
	}

	m.dev = dev
	m.connID = uuid.NewString()
	m.encrypt = encrypt && !dev.Bootloader
	m.downgraded = false
	m.failPending = false
	m.failReason = ""
	m.services = nil
	m.serviceIdx = 0
	m.discovered = nil
	m.cccQueue = nil
	if m.retryDev == dev {
		m.retryDev = nil
	}

	if err := m.radio.Connect(dev.RadioAddress); err != nil {
		m.dev = nil
		return fmt.Errorf("connect %s: %w", dev.RadioAddress, err)
	}
	m.setState(dev, registry.StateConnecting, "")
	return nil
}

// RequestDisconnect starts a graceful teardown of the attempt in progress.
func (m *Machine) RequestDisconnect(reason string) {
	if m.dev == nil || m.dev.State == registry.StateDisconnecting {
		return
	}
	if m.dev.Connected {
		_ = m.radio.Disconnect(m.dev.ConnHandle)
		m.setState(m.dev, registry.StateDisconnecting, reason)
		return
	}
	// Never connected; nothing to tear down.
	m.finish(registry.StateStandby, reason)
}

// Tick re-checks the current state's wall-clock bound and fires any due
// reconnect. It never blocks.
func (m *Machine) Tick(now time.Time) {
	if m.dev == nil {
		if m.retryDev != nil && !now.Before(m.retryAt) {
			dev := m.retryDev
			m.retryDev = nil
			if dev.State == registry.StateStandby {
				if err := m.Start(dev, m.retryEncrypt); err != nil {
					m.logger.Warn("reconnect attempt failed to start", "device", dev.RadioAddress.String(), "err", err)
				}
			}
		}
		return
	}

	bound := m.cfg.StepTimeout
	if m.dev.State == registry.StateConnecting {
		bound = m.cfg.ConnectTimeout
	}
	if now.Sub(m.stateSince) < bound {
		return
	}

	switch m.dev.State {
	case registry.StateConnecting:
		// No link to tear down; count the failure and go passive or retry.
		m.fail("connect timeout")
	case registry.StateDisconnecting:
		// The controller never confirmed; force the device idle.
		m.dev.Connected = false
		if m.failPending {
			m.failPending = false
			m.fail("disconnect timeout")
			return
		}
		m.finish(registry.StateStandby, "disconnect timeout")
	default:
		m.failDisconnect(fmt.Sprintf("%s timeout", m.dev.State))
	}
}

// HandleEvent feeds one transport event to the machine. It returns true if
// the event belonged to the attempt in progress and was consumed.
func (m *Machine) HandleEvent(ev transport.Event) bool {
	if m.dev == nil {
		return false
	}

	switch ev.Type {
	case transport.EventConnection:
		if ev.Addr != m.dev.RadioAddress {
			return false
		}
		m.onConnection(ev)
	case transport.EventDisconnect:
		if !m.dev.Connected || ev.ConnHandle != m.dev.ConnHandle {
			return false
		}
		m.onDisconnect(ev)
	case transport.EventBonding:
		if m.dev.State != registry.StateEncrypting {
			return false
		}
		m.onBonding(ev)
	case transport.EventService:
		if m.dev.State != registry.StateFindingServices {
			return false
		}
		m.services = append(m.services, ev.Range)
	case transport.EventCharacteristic:
		if m.dev.State != registry.StateFindingAttributes {
			return false
		}
		if m.discovered == nil {
			m.discovered = make(map[string]registry.AttributeEntry)
		}
		m.discovered[ev.UUID] = registry.AttributeEntry{Handle: ev.AttrHandle, CCCHandle: ev.CCCHandle}
	case transport.EventAttribute:
		if m.dev.State == registry.StateGetVersion && ev.UUID == firmwareVersionUUID {
			m.onVersion(ev)
			return true
		}
		return false
	case transport.EventProcedureDone:
		m.onProcedureDone(ev)
	default:
		return false
	}
	return true
}

func (m *Machine) onConnection(ev transport.Event) {
	if !ev.OK() {
		m.fail(fmt.Sprintf("connect failed, status 0x%02x", ev.Status))
		return
	}
	m.dev.Connected = true
	m.dev.ConnHandle = ev.ConnHandle

	switch {
	case m.dev.Bootloader:
		// Reduced path: no pairing, no version read; the bootloader map is
		// keyed by profile name rather than firmware version.
		m.beginDiscoveryOrCache(profile.Bootloader)
	case m.encrypt && !m.downgraded:
		if err := m.radio.Pair(ev.ConnHandle); err != nil {
			m.fail(fmt.Sprintf("pair: %v", err))
			return
		}
		m.setState(m.dev, registry.StateEncrypting, "")
	default:
		m.beginGetVersion()
	}
}

func (m *Machine) onBonding(ev transport.Event) {
	if ev.OK() {
		m.dev.Encrypted = true
		m.beginGetVersion()
		return
	}
	// Downgrade: retry this device unencrypted instead of counting the
	// failure against it.
	m.downgraded = true
	m.logger.Warn("pairing failed, retrying unencrypted", "device", m.dev.RadioAddress.String(), "status", ev.Status)
	dev := m.dev
	m.RequestDisconnect("pairing failed")
	m.retryDev = dev
	m.retryEncrypt = false
	m.retryAt = m.now()
}

func (m *Machine) beginGetVersion() {
	if err := m.radio.ReadByUUID(m.dev.ConnHandle, firmwareVersionUUID); err != nil {
		m.fail(fmt.Sprintf("version read: %v", err))
		return
	}
	m.setState(m.dev, registry.StateGetVersion, "")
}

func (m *Machine) onVersion(ev transport.Event) {
	version := string(ev.Data)
	if _, err := profile.ParseVersion(version); err != nil {
		m.failDisconnect(fmt.Sprintf("unparseable firmware version %q", version))
		return
	}
	m.dev.FirmwareVersion = version
	m.beginDiscoveryOrCache(version)
}

// beginDiscoveryOrCache adopts a complete cached handle map, or falls back
// to live discovery. cacheKey is the firmware version, or the profile name
// for bootloader devices.
func (m *Machine) beginDiscoveryOrCache(cacheKey string) {
	uuids, notify := m.expectedSet()

	if m.cache != nil {
		cached, err := m.cache.Load(cacheKey)
		if err != nil {
			m.logger.Warn("handle cache unreadable, rediscovering", "key", cacheKey, "err", err)
		} else if cached != nil {
			m.dev.Attributes = cached
			if !m.dev.MissingHandles(uuids, notify) {
				m.beginNotifications()
				return
			}
			// Any single missing handle invalidates the whole cached map.
			m.logger.Debug("handle cache incomplete, rediscovering", "key", cacheKey)
		}
	}

	m.services = nil
	m.serviceIdx = 0
	m.discovered = make(map[string]registry.AttributeEntry)
	if err := m.radio.DiscoverServices(m.dev.ConnHandle, transport.AllHandles); err != nil {
		m.fail(fmt.Sprintf("discover services: %v", err))
		return
	}
	m.setState(m.dev, registry.StateFindingServices, "")
}

func (m *Machine) onProcedureDone(ev transport.Event) {
	switch m.dev.State {
	case registry.StateFindingServices:
		if !ev.OK() || len(m.services) == 0 {
			m.failDisconnect("service discovery failed")
			return
		}
		m.serviceIdx = 0
		if err := m.radio.DiscoverCharacteristics(m.dev.ConnHandle, m.services[0]); err != nil {
			m.fail(fmt.Sprintf("discover characteristics: %v", err))
			return
		}
		m.setState(m.dev, registry.StateFindingAttributes, "")

	case registry.StateFindingAttributes:
		if !ev.OK() {
			m.failDisconnect("characteristic discovery failed")
			return
		}
		m.serviceIdx++
		if m.serviceIdx < len(m.services) {
			if err := m.radio.DiscoverCharacteristics(m.dev.ConnHandle, m.services[m.serviceIdx]); err != nil {
				m.fail(fmt.Sprintf("discover characteristics: %v", err))
			}
			return
		}
		m.finishDiscovery()

	case registry.StateEnablingNotifications:
		if !ev.OK() {
			m.failDisconnect("notification enable failed")
			return
		}
		if len(m.cccQueue) > 0 && ev.AttrHandle == m.cccQueue[0] {
			m.cccQueue = m.cccQueue[1:]
			m.advanceNotifications()
		}

	case registry.StateDisconnecting:
		// Late completion from an abandoned step; ignore.
	}
}

func (m *Machine) finishDiscovery() {
	m.dev.Attributes = m.discovered
	m.discovered = nil

	uuids, notify := m.expectedSet()
	if m.dev.MissingHandles(uuids, notify) {
		m.failDisconnect("device missing expected characteristics")
		return
	}

	if m.cache != nil {
		key := m.dev.FirmwareVersion
		if m.dev.Bootloader {
			key = profile.Bootloader
		}
		if err := m.cache.Save(key, m.dev.Attributes); err != nil {
			m.logger.Warn("handle cache write failed", "key", key, "err", err)
		}
	}
	m.beginNotifications()
}

func (m *Machine) beginNotifications() {
	_, notify := m.expectedSet()
	m.cccQueue = m.cccQueue[:0]
	for u := range notify {
		if entry, ok := m.dev.Attributes[u]; ok && entry.CCCHandle != registry.NoHandle {
			m.cccQueue = append(m.cccQueue, entry.CCCHandle)
		}
	}
	m.setState(m.dev, registry.StateEnablingNotifications, "")
	m.advanceNotifications()
}

func (m *Machine) advanceNotifications() {
	if len(m.cccQueue) == 0 {
		m.dev.ConnectionFails = 0
		m.backoff.Reset()
		m.setState(m.dev, registry.StateListeningData, "")
		return
	}
	if err := m.radio.WriteWithResponse(m.dev.ConnHandle, m.cccQueue[0], notificationEnable); err != nil {
		m.fail(fmt.Sprintf("enable notifications: %v", err))
	}
	m.stateSince = m.now()
}

func (m *Machine) onDisconnect(ev transport.Event) {
	m.dev.Connected = false

	if m.dev.State == registry.StateDisconnecting {
		if m.failPending {
			m.failPending = false
			m.fail(m.failReason)
			return
		}
		dev := m.dev
		m.finish(registry.StateStandby, "")
		// A pairing downgrade re-dials immediately after the clean teardown.
		if m.retryDev == dev && m.downgraded {
			m.retryAt = m.now()
		}
		return
	}
	m.fail(fmt.Sprintf("unexpected disconnect, reason 0x%02x", ev.Reason))
}

// failDisconnect tears the link down because a setup step failed; the
// attempt counts against the device once the disconnect confirms.
func (m *Machine) failDisconnect(reason string) {
	if m.dev.Connected {
		m.failPending = true
		m.failReason = reason
		m.RequestDisconnect(reason)
		return
	}
	m.fail(reason)
}

// fail records a failed attempt, leaving the device in standby and
// scheduling a backoff reconnect while under the ceiling.
func (m *Machine) fail(reason string) {
	dev := m.dev
	dev.ConnectionFails++
	dev.LastFailTime = m.now()
	dev.Connected = false
	m.finish(registry.StateStandby, reason)

	if dev.ConnectionFails < m.cfg.MaxConnectionFails {
		m.retryDev = dev
		m.retryEncrypt = m.encrypt
		m.retryAt = m.now().Add(m.backoff.Next())
		return
	}
	// Passive fallback: no retry is scheduled. A fresh advertisement plus
	// the retest interval may trigger the next attempt.
	m.logger.Warn("device past failure ceiling, tracking passively",
		"device", dev.RadioAddress.String(), "fails", dev.ConnectionFails)
}

// finish ends the attempt in progress.
func (m *Machine) finish(state registry.ConnectionState, reason string) {
	m.setState(m.dev, state, reason)
	m.dev = nil
	m.connID = ""
}

func (m *Machine) expectedSet() ([]string, map[string]bool) {
	manifest, err := profile.ForDevice(m.dev.Bootloader)
	if err != nil {
		return nil, nil
	}
	chars := manifest.Characteristics
	if !m.dev.Bootloader && m.dev.FirmwareVersion != "" {
		if v, err := profile.ParseVersion(m.dev.FirmwareVersion); err == nil {
			chars = manifest.ExpectedFor(v)
		}
	}
	return profile.UUIDs(chars)
}

func (m *Machine) setState(dev *registry.Device, state registry.ConnectionState, reason string) {
	old := dev.State
	if old == state {
		return
	}
	dev.State = state
	m.stateSince = m.now()

	m.protocol.Log(log.Event{
		Timestamp:     m.now(),
		ConnectionID:  m.connID,
		Layer:         log.LayerEngine,
		Category:      log.CategoryState,
		DeviceAddress: dev.LogicalAddress.String(),
		RadioAddress:  dev.RadioAddress.String(),
		StateChange:   &log.StateChangeEvent{OldState: old.String(), NewState: state.String(), Reason: reason},
	})
	m.logger.Debug("connection state", "device", dev.RadioAddress.String(), "from", old.String(), "to", state.String(), "reason", reason)
}
