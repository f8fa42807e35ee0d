package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"softphone/internal/apperr"
	"softphone/internal/session"

	"github.com/google/uuid"
)

// Ops sent to the page hosting the SDK.
const (
	OpSetup    = "setup"
	OpRegister = "register"
	OpConnect  = "connect"
	OpAccept   = "accept"
	OpReject   = "reject"
	OpHangup   = "disconnect"
	OpMute     = "mute"
	OpDigits   = "digits"
	OpToken    = "update_token"
	OpDestroy  = "destroy"
)

var ErrNoPage = errors.New("bridge: no page attached")

// Command is one instruction for the browser SDK.
type Command struct {
	ID     string `json:"id"`
	Op     string `json:"op"`
	Device string `json:"device,omitempty"`
	CallID string `json:"callId,omitempty"`
	Token  string `json:"token,omitempty"`
	To     string `json:"to,omitempty"`
	Muted  *bool  `json:"muted,omitempty"`
	Digits string `json:"digits,omitempty"`
}

// InboundEvent is what the page posts back when the SDK fires an event.
type InboundEvent struct {
	Type   string            `json:"type"`
	Device string            `json:"device"`
	CallID string            `json:"callId,omitempty"`
	From   string            `json:"from,omitempty"`
	Error  *session.SDKError `json:"error,omitempty"`
}

// Bridge drives an SDK running in a browser page. Commands are queued for the
// page's stream; events it posts are routed to the sink of the device they name.
type Bridge struct {
	mu       sync.Mutex
	commands chan Command
	attached int
	device   *device
	calls    map[string]*call

	log   *slog.Logger
	newID func() string
}

func New(queue int, log *slog.Logger) *Bridge {
	if queue <= 0 {
		queue = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		commands: make(chan Command, queue),
		calls:    map[string]*call{},
		log:      log.With("component", "bridge"),
		newID:    uuid.NewString,
	}
}

// Commands is the stream the page consumes.
func (b *Bridge) Commands() <-chan Command { return b.commands }

// Attach marks a page as listening; the returned func detaches it.
func (b *Bridge) Attach() func() {
	b.mu.Lock()
	b.attached++
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.attached--
			b.mu.Unlock()
		})
	}
}

func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached > 0
}

func (b *Bridge) send(cmd Command) error {
	cmd.ID = b.newID()
	select {
	case b.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("bridge: command queue full, dropped %s", cmd.Op)
	}
}

// NewDevice asks the page to set up an SDK device with token.
func (b *Bridge) NewDevice(ctx context.Context, token string, sink session.EventSink) (session.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.Attached() {
		return nil, ErrNoPage
	}
	d := &device{b: b, id: b.newID(), sink: sink}
	if err := b.send(Command{Op: OpSetup, Device: d.id, Token: token}); err != nil {
		return nil, err
	}
	b.mu.Lock()
	prev := b.device
	b.device = d
	b.mu.Unlock()
	if prev != nil {
		b.log.Warn("replacing live device", "device", prev.id)
	}
	return d, nil
}

// Deliver routes one event posted by the page.
func (b *Bridge) Deliver(in InboundEvent) error {
	kind := session.EventKind(in.Type)
	if !kind.Valid() {
		return apperr.NewValidation(fmt.Sprintf("event type %q is not valid", in.Type))
	}

	b.mu.Lock()
	d := b.device
	if d == nil || (in.Device != "" && in.Device != d.id) {
		b.mu.Unlock()
		return fmt.Errorf("bridge: event for device %q: %w", in.Device, apperr.ErrNotConnected)
	}
	ev := session.Event{Kind: kind, From: in.From, Err: in.Error}
	if in.CallID != "" {
		c, ok := b.calls[in.CallID]
		if !ok && kind == session.EventIncoming {
			c = &call{b: b, id: in.CallID, device: d.id}
			b.calls[in.CallID] = c
			ok = true
		}
		if ok {
			ev.Call = c
		}
	}
	switch kind {
	case session.EventDisconnect, session.EventCancel, session.EventReject, session.EventCallError:
		delete(b.calls, in.CallID)
	}
	b.mu.Unlock()

	b.log.Debug("sdk event", "type", kind, "call_id", in.CallID)
	d.sink.Dispatch(ev)
	return nil
}

type device struct {
	b    *Bridge
	id   string
	sink session.EventSink
}

func (d *device) Register(context.Context) error {
	return d.b.send(Command{Op: OpRegister, Device: d.id})
}

func (d *device) Connect(ctx context.Context, to string) (session.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &call{b: d.b, id: d.b.newID(), device: d.id}
	d.b.mu.Lock()
	d.b.calls[c.id] = c
	d.b.mu.Unlock()
	if err := d.b.send(Command{Op: OpConnect, Device: d.id, CallID: c.id, To: to}); err != nil {
		d.b.forget(c.id)
		return nil, err
	}
	return c, nil
}

func (d *device) UpdateToken(token string) error {
	return d.b.send(Command{Op: OpToken, Device: d.id, Token: token})
}

func (d *device) Destroy() error {
	d.b.mu.Lock()
	if d.b.device == d {
		d.b.device = nil
	}
	for id, c := range d.b.calls {
		if c.device == d.id {
			delete(d.b.calls, id)
		}
	}
	d.b.mu.Unlock()
	return d.b.send(Command{Op: OpDestroy, Device: d.id})
}

func (b *Bridge) forget(callID string) {
	b.mu.Lock()
	delete(b.calls, callID)
	b.mu.Unlock()
}

type call struct {
	b      *Bridge
	id     string
	device string
}

func (c *call) ID() string { return c.id }

func (c *call) Accept() error {
	return c.b.send(Command{Op: OpAccept, Device: c.device, CallID: c.id})
}

func (c *call) Reject() error {
	c.b.forget(c.id)
	return c.b.send(Command{Op: OpReject, Device: c.device, CallID: c.id})
}

func (c *call) Disconnect() error {
	return c.b.send(Command{Op: OpHangup, Device: c.device, CallID: c.id})
}

func (c *call) Mute(muted bool) error {
	return c.b.send(Command{Op: OpMute, Device: c.device, CallID: c.id, Muted: &muted})
}

func (c *call) SendDigits(digits string) error {
	return c.b.send(Command{Op: OpDigits, Device: c.device, CallID: c.id, Digits: digits})
}
