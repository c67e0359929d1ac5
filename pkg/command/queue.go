package command

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/registry"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/transport"
)

// Queue errors.
var (
	// ErrTimeout indicates the device never acknowledged within the bound.
	ErrTimeout = errors.New("attribute request timed out")

	// ErrNoHandle indicates the characteristic was never discovered on the
	// device.
	ErrNoHandle = errors.New("characteristic handle unknown")

	// ErrNotConnected indicates the target device has no open link.
	ErrNotConnected = errors.New("device not connected")

	// ErrRejected indicates the device refused the request.
	ErrRejected = errors.New("attribute request rejected")

	// ErrAborted indicates a chunked write was abandoned mid-transfer.
	ErrAborted = errors.New("chunked write aborted")
)

// Queue defaults.
const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 5 * time.Second

	// DefaultChunkSize is the largest value written in one attribute
	// operation; longer values go through the prepared-write path.
	DefaultChunkSize = 18
)

// Ticket is the caller's handle on a queued request. It resolves on a
// later tick; poll Done from the tick loop.
type Ticket struct {
	done bool
	err  error
	data []byte
}

// Done reports whether the request has resolved.
func (t *Ticket) Done() bool { return t.done }

// Err returns the outcome. Only meaningful once Done reports true.
func (t *Ticket) Err() error { return t.err }

// Data returns the value of a resolved read.
func (t *Ticket) Data() []byte { return t.data }

func (t *Ticket) resolve(data []byte, err error) {
	t.done = true
	t.data = data
	t.err = err
}

type requestKind uint8

const (
	reqWrite requestKind = iota
	reqRead
	reqBroadcast
)

type request struct {
	kind    requestKind
	dev     *registry.Device
	uuid    string
	value   []byte
	reps    int
	timeout time.Duration
	ticket  *Ticket
}

// chunk phases of a long write.
type chunkState struct {
	offset    int // next chunk start
	executing bool
	aborting  bool
}

// Queue serializes outbound protocol work: strict FIFO, one attribute
// request in flight, one broadcast on the air per tick. Owned by the
// engine and called only from the tick loop.
type Queue struct {
	radio     transport.Radio
	chunkSize int
	logger    *slog.Logger
	now       func() time.Time

	pending []*request

	// In-flight request state.
	active     *request
	activeAt   time.Time
	attrHandle uint16
	chunks     *chunkState
}

// NewQueue creates a request queue over the radio.
func NewQueue(radio transport.Radio, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		radio:     radio,
		chunkSize: DefaultChunkSize,
		logger:    logger,
		now:       time.Now,
	}
}

// SetRadio swaps the radio after a transport reinitialization. The
// in-flight request fails; queued ones survive.
func (q *Queue) SetRadio(radio transport.Radio) {
	if q.active != nil {
		q.active.ticket.resolve(nil, fmt.Errorf("%w: transport reinitialized", ErrAborted))
		q.active = nil
		q.chunks = nil
	}
	q.radio = radio
}

// Write queues an acknowledged write of the characteristic. A zero timeout
// takes the default.
func (q *Queue) Write(dev *registry.Device, uuid string, value []byte, timeout time.Duration) *Ticket {
	return q.enqueue(&request{kind: reqWrite, dev: dev, uuid: uuid, value: value, timeout: timeout})
}

// Read queues a read of the characteristic.
func (q *Queue) Read(dev *registry.Device, uuid string, timeout time.Duration) *Ticket {
	return q.enqueue(&request{kind: reqRead, dev: dev, uuid: uuid, timeout: timeout})
}

// Broadcast queues one pre-encoded advertising frame. Broadcasts share
// the FIFO with attribute requests and reach the air when the tick loop
// drains them.
func (q *Queue) Broadcast(data []byte, repetitions int) *Ticket {
	return q.enqueue(&request{kind: reqBroadcast, value: data, reps: repetitions})
}

func (q *Queue) enqueue(r *request) *Ticket {
	r.ticket = &Ticket{}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	q.pending = append(q.pending, r)
	return r.ticket
}

// Len reports queued plus in-flight requests.
func (q *Queue) Len() int {
	n := len(q.pending)
	if q.active != nil {
		n++
	}
	return n
}

// Tick dispatches the next request when idle and enforces the in-flight
// timeout.
func (q *Queue) Tick(now time.Time) {
	if q.active != nil {
		if now.Sub(q.activeAt) >= q.active.timeout {
			q.fail(fmt.Errorf("%w: %s after %s", ErrTimeout, q.active.uuid, q.active.timeout))
		}
		return
	}
	q.dispatch(now)
}

func (q *Queue) dispatch(now time.Time) {
	for q.active == nil && len(q.pending) > 0 {
		r := q.pending[0]
		q.pending = q.pending[1:]

		if r.kind == reqBroadcast {
			err := q.radio.Advertise(r.value, r.reps)
			if err != nil {
				err = fmt.Errorf("advertise: %w", err)
				q.logger.Warn("broadcast transmit failed", "err", err)
			}
			r.ticket.resolve(nil, err)
			// One air transmission per tick; the rest of the queue waits.
			return
		}

		if !r.dev.Connected {
			r.ticket.resolve(nil, fmt.Errorf("%w: %s", ErrNotConnected, r.dev.RadioAddress))
			continue
		}
		entry, ok := r.dev.Attributes[r.uuid]
		if !ok || entry.Handle == registry.NoHandle {
			r.ticket.resolve(nil, fmt.Errorf("%w: %s on %s", ErrNoHandle, r.uuid, r.dev.RadioAddress))
			continue
		}

		q.active = r
		q.activeAt = now
		q.attrHandle = entry.Handle

		var err error
		switch {
		case r.kind == reqRead:
			err = q.radio.Read(r.dev.ConnHandle, entry.Handle)
		case len(r.value) <= q.chunkSize:
			err = q.radio.WriteWithResponse(r.dev.ConnHandle, entry.Handle, r.value)
		default:
			q.chunks = &chunkState{}
			err = q.sendChunk()
		}
		if err != nil {
			q.fail(fmt.Errorf("submit %s: %w", r.uuid, err))
		}
	}
}

// sendChunk issues the next prepared chunk, or the commit once the value
// is fully queued on the device.
func (q *Queue) sendChunk() error {
	r := q.active
	if q.chunks.offset >= len(r.value) {
		q.chunks.executing = true
		return q.radio.ExecuteWrite(r.dev.ConnHandle, true)
	}
	end := q.chunks.offset + q.chunkSize
	if end > len(r.value) {
		end = len(r.value)
	}
	chunk := r.value[q.chunks.offset:end]
	return q.radio.PrepareWrite(r.dev.ConnHandle, q.attrHandle, uint16(q.chunks.offset), chunk)
}

// HandleEvent feeds one transport event to the queue. It returns true if
// the event belonged to the in-flight request and was consumed.
func (q *Queue) HandleEvent(ev transport.Event) bool {
	if q.active == nil {
		return false
	}

	switch ev.Type {
	case transport.EventAttribute:
		if q.active.kind != reqRead || ev.AttrHandle != q.attrHandle || ev.Notification {
			return false
		}
		q.finish(append([]byte(nil), ev.Data...), nil)
		return true

	case transport.EventProcedureDone:
		if q.active.kind != reqWrite {
			return false
		}
		if q.chunks == nil {
			if ev.AttrHandle != q.attrHandle {
				return false
			}
			if !ev.OK() {
				q.finish(nil, fmt.Errorf("%w: status 0x%02x", ErrRejected, ev.Status))
				return true
			}
			q.finish(nil, nil)
			return true
		}
		q.onChunkAck(ev)
		return true

	case transport.EventDisconnect:
		if ev.ConnHandle != q.active.dev.ConnHandle {
			return false
		}
		// The link died under the request; the machine owns the event.
		q.active.ticket.resolve(nil, fmt.Errorf("%w: link lost", ErrAborted))
		q.active = nil
		q.chunks = nil
		return false
	}
	return false
}

func (q *Queue) onChunkAck(ev transport.Event) {
	c := q.chunks
	switch {
	case c.aborting:
		// Abort confirmation; the ticket already resolved.
		q.active = nil
		q.chunks = nil

	case c.executing:
		if !ev.OK() {
			q.finish(nil, fmt.Errorf("%w: commit status 0x%02x", ErrRejected, ev.Status))
			return
		}
		q.finish(nil, nil)

	case !ev.OK():
		// Any chunk failure abandons the transfer; no retry.
		q.abort(fmt.Errorf("%w: chunk at %d, status 0x%02x", ErrAborted, c.offset, ev.Status))

	default:
		c.offset += q.chunkSize
		if err := q.sendChunk(); err != nil {
			q.abort(fmt.Errorf("%w: %v", ErrAborted, err))
		}
	}
}

// abort resolves the ticket and asks the device to discard queued chunks.
// The queue stays blocked until the discard acknowledgement arrives.
func (q *Queue) abort(err error) {
	q.active.ticket.resolve(nil, err)
	q.chunks.aborting = true
	if aerr := q.radio.ExecuteWrite(q.active.dev.ConnHandle, false); aerr != nil {
		q.logger.Warn("chunked-write discard failed", "device", q.active.dev.RadioAddress.String(), "err", aerr)
		q.active = nil
		q.chunks = nil
	}
}

// fail resolves the in-flight request with err, discarding chunk state.
func (q *Queue) fail(err error) {
	if q.chunks != nil && !q.chunks.aborting {
		q.abort(err)
		return
	}
	q.active.ticket.resolve(nil, err)
	q.active = nil
	q.chunks = nil
}

func (q *Queue) finish(data []byte, err error) {
	q.active.ticket.resolve(data, err)
	q.active = nil
	q.chunks = nil
}
