package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"softphone/internal/apperr"
	"softphone/internal/backend"
	"softphone/internal/credentials"
	"softphone/internal/history"
	"softphone/internal/metrics"
)

// CredentialSource is the slice of the credential store the controller needs.
type CredentialSource interface {
	Load(ctx context.Context) (*credentials.Record, error)
	RecordUsage(ctx context.Context, action string) error
}

// TokenSource mints access tokens for the device.
type TokenSource interface {
	Token(ctx context.Context, creds credentials.Record) (backend.TokenResponse, error)
}

// CallLog is where call attempts are recorded.
type CallLog interface {
	Add(ctx context.Context, in history.NewEntry) (history.Entry, error)
	Update(ctx context.Context, id string, p history.Patch) (history.Entry, error)
}

type Deps struct {
	Credentials CredentialSource
	Tokens      TokenSource
	Devices     DeviceFactory
	History     CallLog
	Observer    Observer
	Logger      *slog.Logger
}

type Options struct {
	// RegisterTimeout bounds the wait for the first registered event.
	RegisterTimeout time.Duration
	// TickInterval is the duration counter period while in a call.
	TickInterval time.Duration
}

func (o Options) withDefaults() Options {
	out := o
	if out.RegisterTimeout <= 0 {
		out.RegisterTimeout = 30 * time.Second
	}
	if out.TickInterval <= 0 {
		out.TickInterval = time.Second
	}
	return out
}

type activeCall struct {
	handle     Call
	direction  history.CallType
	remote     string
	historyID  string
	answeredAt time.Time
	rejected   bool
	stopTick   context.CancelFunc
}

// Controller is the call session state machine. SDK events enter through Dispatch;
// SDK methods are always invoked outside the lock.
type Controller struct {
	mu      sync.Mutex
	state   State
	device  Device
	call    *activeCall
	muted   bool
	held    bool
	gen     uint64
	cancel  context.CancelFunc
	regDone chan error
	tokenAt *time.Time
	pending []Update

	deps  Deps
	opts  Options
	log   *slog.Logger
	clock func() time.Time
	bg    sync.WaitGroup
}

func New(deps Deps, opts Options) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Observer == nil {
		deps.Observer = func(Update) {}
	}
	return &Controller{
		state: StateDisconnected,
		deps:  deps,
		opts:  opts.withDefaults(),
		log:   deps.Logger.With("component", "session"),
		clock: time.Now,
	}
}

// --- lock helpers ---

func (c *Controller) unlockAndEmit() {
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, u := range pending {
		c.deps.Observer(u)
	}
}

func (c *Controller) transition(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	metrics.SessionTransitions.WithLabelValues(string(from), string(to)).Inc()
	c.log.Debug("session transition", "from", from, "to", to)
	snap := c.snapshotLocked()
	c.pending = append(c.pending, Update{Kind: UpdateState, Snapshot: &snap})
}

func (c *Controller) notify(level NoticeLevel, category ErrorCategory, msg string) {
	c.pending = append(c.pending, Update{Kind: UpdateNotice, Notice: &Notice{Level: level, Message: msg, Category: category}})
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{State: c.state, Muted: c.muted, Held: c.held, TokenExpiresAt: c.tokenAt}
	if ac := c.call; ac != nil {
		s.Direction = ac.direction
		s.Remote = ac.remote
		if !ac.answeredAt.IsZero() {
			at := ac.answeredAt
			s.AnsweredAt = &at
			s.Duration = elapsedSeconds(ac.answeredAt, c.clock())
		}
	}
	return s
}

func elapsedSeconds(from, to time.Time) int {
	d := int(to.Sub(from) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// --- connect / disconnect ---

// Connect loads credentials, obtains a token, creates and registers the device,
// and returns once the device reports registered. Only legal from Disconnected.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: connect while %s: %w", state, apperr.ErrInvalidState)
	}
	c.gen++
	gen := c.gen
	cctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	regDone := make(chan error, 1)
	c.regDone = regDone
	c.transition(StateConnecting)
	c.unlockAndEmit()
	defer cancel()

	rec, err := c.deps.Credentials.Load(cctx)
	if err != nil || rec == nil {
		c.abortConnect(gen, nil, false, "missing_credentials")
		if err != nil {
			return fmt.Errorf("session: %w: %v", apperr.ErrMissingCredentials, err)
		}
		return fmt.Errorf("session: %w", apperr.ErrMissingCredentials)
	}

	tok, err := c.deps.Tokens.Token(cctx, *rec)
	if err != nil {
		c.abortConnect(gen, nil, false, "token")
		if cctx.Err() != nil {
			return fmt.Errorf("session: connect aborted: %w", cctx.Err())
		}
		return fmt.Errorf("session: %w: %v", apperr.ErrTokenAcquisition, err)
	}
	var expiresAt *time.Time
	if exp, err := backend.TokenExpiry(tok.Token); err == nil {
		expiresAt = &exp
	}

	dev, err := c.deps.Devices.NewDevice(cctx, tok.Token, c)
	if err != nil {
		c.abortConnect(gen, nil, false, "device")
		return fmt.Errorf("session: %w: %v", apperr.ErrDeviceSetup, err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = dev.Destroy()
		return fmt.Errorf("session: connect aborted: %w", context.Canceled)
	}
	c.device = dev
	c.tokenAt = expiresAt
	c.mu.Unlock()

	if err := dev.Register(cctx); err != nil {
		c.abortConnect(gen, dev, true, "register")
		return fmt.Errorf("session: %w: %v", apperr.ErrDeviceSetup, err)
	}

	timer := time.NewTimer(c.opts.RegisterTimeout)
	defer timer.Stop()
	select {
	case err := <-regDone:
		if err != nil {
			c.abortConnect(gen, dev, true, "device_error")
			return fmt.Errorf("session: %w: %v", apperr.ErrDeviceSetup, err)
		}
	case <-cctx.Done():
		c.abortConnect(gen, dev, true, "aborted")
		return fmt.Errorf("session: connect aborted: %w", cctx.Err())
	case <-timer.C:
		c.abortConnect(gen, dev, true, "register_timeout")
		return fmt.Errorf("session: %w: registration timed out", apperr.ErrDeviceSetup)
	}

	if err := c.deps.Credentials.RecordUsage(ctx, credentials.UsageConnection); err != nil {
		c.log.Warn("usage stats not updated", "err", err)
	}
	c.log.Info("device registered")
	return nil
}

// abortConnect reverts a failed connect attempt. The device is destroyed here unless
// a concurrent Disconnect already took ownership of it.
func (c *Controller) abortConnect(gen uint64, dev Device, installed bool, reason string) {
	metrics.SessionConnectFailures.WithLabelValues(reason).Inc()
	c.mu.Lock()
	current := c.gen == gen
	if current {
		c.device = nil
		c.cancel = nil
		c.regDone = nil
		c.tokenAt = nil
		c.transition(StateDisconnected)
	}
	c.unlockAndEmit()
	if dev != nil && (current || !installed) {
		if err := dev.Destroy(); err != nil {
			c.log.Warn("device destroy failed", "err", err)
		}
	}
	c.log.Warn("connect failed", "reason", reason)
}

// Disconnect tears down any call and the device. Legal from every state.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	handle, dev := c.teardownLocked()
	c.unlockAndEmit()
	c.release(handle, dev)
}

// teardownLocked ends the call, forgets the device and lands in Disconnected.
// The returned handles must be released after unlocking.
func (c *Controller) teardownLocked() (Call, Device) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.regDone = nil

	var handle Call
	if ac := c.call; ac != nil {
		handle = ac.handle
		if ac.direction == history.TypeIncoming && ac.answeredAt.IsZero() {
			ac.rejected = true
		}
		c.finishCallLocked(ac, terminalStatus(ac, EventDisconnect))
	}
	dev := c.device
	c.device = nil
	c.tokenAt = nil
	c.transition(StateDisconnected)
	return handle, dev
}

func (c *Controller) release(handle Call, dev Device) {
	if handle != nil {
		if err := handle.Disconnect(); err != nil {
			c.log.Warn("call disconnect failed", "err", err)
		}
	}
	if dev != nil {
		if err := dev.Destroy(); err != nil {
			c.log.Warn("device destroy failed", "err", err)
		}
	}
}

// --- calls ---

// normalizeDialed keeps "+" and digits only. The number must carry a country code.
func normalizeDialed(number string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(number) {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	n := b.String()
	if len(n) < 2 || n[0] != '+' || strings.Contains(n[1:], "+") {
		return "", false
	}
	return n, true
}

// MakeCall places an outgoing call. A second call while one exists fails
// synchronously with ErrCallInProgress.
func (c *Controller) MakeCall(ctx context.Context, number string) error {
	c.mu.Lock()
	switch {
	case c.call != nil || c.state.hasCall():
		c.mu.Unlock()
		return fmt.Errorf("session: %w", apperr.ErrCallInProgress)
	case c.state != StateConnected:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: make call while %s: %w", state, apperr.ErrNotConnected)
	}
	to, ok := normalizeDialed(number)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("session: %q: %w", number, apperr.ErrInvalidNumber)
	}

	ac := &activeCall{direction: history.TypeOutgoing, remote: to}
	ac.historyID = c.recordStartLocked(ctx, to, history.TypeOutgoing, history.StatusConnecting)
	c.call = ac
	dev := c.device
	c.transition(StateCalling)
	c.unlockAndEmit()

	metrics.CallsStarted.WithLabelValues(string(history.TypeOutgoing)).Inc()
	if err := c.deps.Credentials.RecordUsage(ctx, credentials.UsageCall); err != nil {
		c.log.Warn("usage stats not updated", "err", err)
	}

	handle, err := dev.Connect(ctx, to)

	c.mu.Lock()
	if err != nil {
		if c.call == ac {
			c.finishCallLocked(ac, history.StatusFailed)
			c.notify(NoticeError, categoryOf(err), "Could not place call.")
		}
		c.unlockAndEmit()
		return fmt.Errorf("session: place call: %w", err)
	}
	if c.call == ac {
		if ac.handle == nil {
			ac.handle = handle
		}
		c.unlockAndEmit()
		return nil
	}
	// hung up while the SDK was still dialing
	c.unlockAndEmit()
	if err := handle.Disconnect(); err != nil {
		c.log.Warn("call disconnect failed", "err", err)
	}
	return nil
}

func categoryOf(err error) ErrorCategory {
	var se *SDKError
	if errors.As(err, &se) {
		return se.Category()
	}
	return CategoryUnknown
}

func (c *Controller) recordStartLocked(ctx context.Context, number string, t history.CallType, st history.Status) string {
	if c.deps.History == nil {
		return ""
	}
	e, err := c.deps.History.Add(ctx, history.NewEntry{Number: number, Type: t, Status: st, Timestamp: c.clock()})
	if err != nil {
		c.log.Warn("call history entry not recorded", "err", err)
		return ""
	}
	return e.ID
}

// AcceptCall answers the pending inbound call.
func (c *Controller) AcceptCall() error {
	c.mu.Lock()
	ac := c.call
	if c.state != StateRinging || ac == nil || ac.direction != history.TypeIncoming {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: accept while %s: %w", state, apperr.ErrInvalidState)
	}
	c.answerLocked(ac)
	handle := ac.handle
	c.unlockAndEmit()

	if err := handle.Accept(); err != nil {
		c.mu.Lock()
		if c.call == ac {
			c.finishCallLocked(ac, history.StatusFailed)
			c.notify(NoticeError, categoryOf(err), "Could not answer call.")
		}
		c.unlockAndEmit()
		return fmt.Errorf("session: accept: %w", err)
	}
	return nil
}

// RejectCall declines the pending inbound call.
func (c *Controller) RejectCall() error {
	c.mu.Lock()
	ac := c.call
	if c.state != StateRinging || ac == nil || ac.direction != history.TypeIncoming {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: reject while %s: %w", state, apperr.ErrInvalidState)
	}
	ac.rejected = true
	handle := ac.handle
	c.finishCallLocked(ac, history.StatusRejected)
	c.unlockAndEmit()

	if err := handle.Reject(); err != nil {
		c.log.Warn("call reject failed", "err", err)
	}
	return nil
}

// Hangup ends the current call from Calling, Ringing or InCall.
func (c *Controller) Hangup() error {
	c.mu.Lock()
	ac := c.call
	if !c.state.hasCall() || ac == nil {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: hangup while %s: %w", state, apperr.ErrInvalidState)
	}
	pendingInbound := ac.direction == history.TypeIncoming && ac.answeredAt.IsZero()
	if pendingInbound {
		ac.rejected = true
	}
	handle := ac.handle
	c.finishCallLocked(ac, terminalStatus(ac, EventDisconnect))
	c.unlockAndEmit()

	if handle == nil {
		return nil
	}
	var err error
	if pendingInbound {
		err = handle.Reject()
	} else {
		err = handle.Disconnect()
	}
	if err != nil {
		c.log.Warn("call teardown failed", "err", err)
	}
	return nil
}

// ToggleMute flips the user mute flag and returns it.
func (c *Controller) ToggleMute() (bool, error) {
	return c.toggle(func() *bool { return &c.muted }, "mute")
}

// ToggleHold flips the hold flag and returns it. Hold is layered on mute:
// the line is silenced while either flag is set.
func (c *Controller) ToggleHold() (bool, error) {
	return c.toggle(func() *bool { return &c.held }, "hold")
}

func (c *Controller) toggle(flag func() *bool, name string) (bool, error) {
	c.mu.Lock()
	if c.state != StateInCall || c.call == nil || c.call.handle == nil {
		state := c.state
		c.mu.Unlock()
		return false, fmt.Errorf("session: %s while %s: %w", name, state, apperr.ErrInvalidState)
	}
	f := flag()
	*f = !*f
	v := *f
	silenced := c.muted || c.held
	handle := c.call.handle
	snap := c.snapshotLocked()
	c.pending = append(c.pending, Update{Kind: UpdateState, Snapshot: &snap})
	c.unlockAndEmit()

	if err := handle.Mute(silenced); err != nil {
		return v, fmt.Errorf("session: %s: %w", name, err)
	}
	return v, nil
}

// SendTone forwards one DTMF digit. Without an active call it does nothing.
func (c *Controller) SendTone(digit string) error {
	if len(digit) != 1 || !strings.Contains("0123456789*#", digit) {
		return apperr.NewValidation(fmt.Sprintf("tone %q is not a DTMF digit", digit))
	}
	c.mu.Lock()
	if c.state != StateInCall || c.call == nil || c.call.handle == nil {
		c.mu.Unlock()
		return nil
	}
	handle := c.call.handle
	c.mu.Unlock()
	return handle.SendDigits(digit)
}

// --- call lifecycle internals ---

func (c *Controller) answerLocked(ac *activeCall) {
	ac.answeredAt = c.clock()
	c.transition(StateInCall)

	tctx, stop := context.WithCancel(context.Background())
	ac.stopTick = stop
	c.bg.Add(1)
	go c.tick(tctx, ac)
}

func (c *Controller) tick(ctx context.Context, ac *activeCall) {
	defer c.bg.Done()
	t := time.NewTicker(c.opts.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.mu.Lock()
			if c.call != ac {
				c.mu.Unlock()
				return
			}
			snap := c.snapshotLocked()
			c.pending = append(c.pending, Update{Kind: UpdateTick, Snapshot: &snap})
			c.unlockAndEmit()
		}
	}
}

// terminalStatus decides how an ending call is recorded.
func terminalStatus(ac *activeCall, kind EventKind) history.Status {
	switch {
	case kind == EventCallError:
		return history.StatusFailed
	case !ac.answeredAt.IsZero():
		return history.StatusCompleted
	case ac.direction == history.TypeIncoming && ac.rejected:
		return history.StatusRejected
	case ac.direction == history.TypeIncoming:
		return history.StatusMissed
	default:
		return history.StatusFailed
	}
}

// finishCallLocked stops the ticker, records the outcome and returns to Connected
// (or stays Disconnected when the device is gone).
func (c *Controller) finishCallLocked(ac *activeCall, status history.Status) {
	if ac.stopTick != nil {
		ac.stopTick()
	}
	duration := 0
	if !ac.answeredAt.IsZero() {
		duration = elapsedSeconds(ac.answeredAt, c.clock())
		metrics.CallDuration.WithLabelValues(string(ac.direction)).Observe(float64(duration))
	}
	metrics.CallsEnded.WithLabelValues(string(ac.direction), string(status)).Inc()

	if ac.historyID != "" && c.deps.History != nil {
		st, d := status, duration
		if _, err := c.deps.History.Update(context.Background(), ac.historyID, history.Patch{Status: &st, Duration: &d}); err != nil {
			c.log.Warn("call history entry not finalized", "err", err)
		}
	}

	c.call = nil
	c.muted = false
	c.held = false
	if c.device != nil {
		c.transition(StateConnected)
	} else {
		c.transition(StateDisconnected)
	}
	c.log.Info("call ended", "direction", ac.direction, "status", status, "duration", duration)
}

// ownsLocked reports whether ev refers to the current call. An outgoing call whose
// handle has not come back from Device.Connect adopts the first handle seen.
func (c *Controller) ownsLocked(ev Event) bool {
	ac := c.call
	if ac == nil || ev.Call == nil {
		return false
	}
	if ac.handle == nil && ac.direction == history.TypeOutgoing {
		ac.handle = ev.Call
		return true
	}
	return ac.handle == ev.Call
}

// --- event dispatch ---

// Dispatch applies one SDK event. Events for calls that already ended are ignored.
func (c *Controller) Dispatch(ev Event) {
	c.mu.Lock()
	var releaseCall Call
	var releaseDev Device

	switch ev.Kind {
	case EventRegistered:
		if c.state == StateConnecting && c.regDone != nil {
			c.transition(StateConnected)
			c.regDone <- nil
			c.regDone = nil
		}

	case EventDeviceError:
		cat := ev.Err.Category()
		metrics.SessionDeviceErrors.WithLabelValues(string(cat)).Inc()
		if c.state == StateConnecting && c.regDone != nil {
			var err error = errors.New("device error")
			if ev.Err != nil {
				err = ev.Err
			}
			c.regDone <- err
			c.regDone = nil
			break
		}
		if ac := c.call; ac != nil {
			releaseCall = ac.handle
			c.finishCallLocked(ac, history.StatusFailed)
		}
		c.notify(NoticeError, cat, cat.userMessage(errMessage(ev.Err)))

	case EventOffline:
		if c.state == StateConnecting && c.regDone != nil {
			c.regDone <- errors.New("device went offline")
			c.regDone = nil
			break
		}
		if c.state == StateDisconnected || c.state == StateConnecting {
			break
		}
		releaseCall, releaseDev = c.teardownLocked()
		c.notify(NoticeWarning, CategoryConnectivity, "Device went offline.")

	case EventIncoming:
		if ev.Call == nil {
			break
		}
		from := ev.From
		if from == "" {
			from = "unknown"
		}
		if c.state != StateConnected || c.call != nil {
			c.recordStartLocked(context.Background(), from, history.TypeIncoming, history.StatusMissed)
			c.unlockAndEmit()
			if err := ev.Call.Reject(); err != nil {
				c.log.Warn("busy reject failed", "err", err)
			}
			return
		}
		ac := &activeCall{handle: ev.Call, direction: history.TypeIncoming, remote: from}
		ac.historyID = c.recordStartLocked(context.Background(), from, history.TypeIncoming, history.StatusRinging)
		c.call = ac
		metrics.CallsStarted.WithLabelValues(string(history.TypeIncoming)).Inc()
		c.transition(StateRinging)
		c.notify(NoticeInfo, "", "Incoming call from "+from)

	case EventTokenWillExpire:
		if c.device != nil {
			c.bg.Add(1)
			go c.refreshToken()
		}

	case EventRinging:
		c.ownsLocked(ev)

	case EventAccept:
		if c.ownsLocked(ev) && (c.state == StateCalling || c.state == StateRinging) {
			c.answerLocked(c.call)
		}

	case EventDisconnect, EventCancel, EventReject, EventCallError:
		if !c.ownsLocked(ev) {
			break
		}
		ac := c.call
		c.finishCallLocked(ac, terminalStatus(ac, ev.Kind))
		if ev.Kind == EventCallError {
			cat := ev.Err.Category()
			metrics.SessionDeviceErrors.WithLabelValues(string(cat)).Inc()
			c.notify(NoticeError, cat, cat.userMessage(errMessage(ev.Err)))
		}

	default:
		c.log.Warn("unknown sdk event", "kind", ev.Kind)
	}

	c.unlockAndEmit()
	if releaseCall != nil || releaseDev != nil {
		c.release(releaseCall, releaseDev)
	}
}

func errMessage(e *SDKError) string {
	if e == nil {
		return ""
	}
	return e.Message
}

// refreshToken fetches a fresh token and hands it to the current device.
func (c *Controller) refreshToken() {
	defer c.bg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RegisterTimeout)
	defer cancel()

	c.mu.Lock()
	dev := c.device
	c.mu.Unlock()
	if dev == nil {
		return
	}

	fail := func(msg string, err error) {
		c.log.Warn(msg, "err", err)
		c.mu.Lock()
		c.notify(NoticeWarning, CategoryAuthorization, "Could not refresh access token.")
		c.unlockAndEmit()
	}

	rec, err := c.deps.Credentials.Load(ctx)
	if err != nil || rec == nil {
		fail("token refresh: credentials unavailable", err)
		return
	}
	tok, err := c.deps.Tokens.Token(ctx, *rec)
	if err != nil {
		fail("token refresh failed", err)
		return
	}
	if err := dev.UpdateToken(tok.Token); err != nil {
		fail("token update rejected by device", err)
		return
	}

	c.mu.Lock()
	if c.device == dev {
		if exp, err := backend.TokenExpiry(tok.Token); err == nil {
			c.tokenAt = &exp
		}
		snap := c.snapshotLocked()
		c.pending = append(c.pending, Update{Kind: UpdateState, Snapshot: &snap})
	}
	c.unlockAndEmit()
	c.log.Info("access token refreshed")
}

// Wait blocks until background work (tickers, token refreshes) has finished.
// Callers should Disconnect first so tickers stop.
func (c *Controller) Wait() { c.bg.Wait() }
