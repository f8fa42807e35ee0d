package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"softphone/internal/apperr"
	"softphone/internal/backend"
	"softphone/internal/credentials"
	"softphone/internal/history"
	"softphone/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeCall struct {
	mu           sync.Mutex
	id           string
	accepted     bool
	rejected     bool
	disconnected bool
	muted        []bool
	digits       string
}

func (c *fakeCall) ID() string { return c.id }

func (c *fakeCall) Accept() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted = true
	return nil
}

func (c *fakeCall) Reject() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected = true
	return nil
}

func (c *fakeCall) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *fakeCall) Mute(m bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = append(c.muted, m)
	return nil
}

func (c *fakeCall) SendDigits(d string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.digits += d
	return nil
}

func (c *fakeCall) lastMute() (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.muted) == 0 {
		return false, false
	}
	return c.muted[len(c.muted)-1], true
}

type fakeDevice struct {
	mu         sync.Mutex
	sink       EventSink
	token      string
	onRegister *Event
	connectErr error
	calls      []*fakeCall
	destroyed  bool
}

func (d *fakeDevice) Register(context.Context) error {
	if d.onRegister != nil {
		d.sink.Dispatch(*d.onRegister)
	}
	return nil
}

func (d *fakeDevice) Connect(_ context.Context, to string) (Call, error) {
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &fakeCall{id: fmt.Sprintf("CA%d", len(d.calls)+1)}
	d.calls = append(d.calls, c)
	return c, nil
}

func (d *fakeDevice) UpdateToken(token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.token = token
	return nil
}

func (d *fakeDevice) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
	return nil
}

func (d *fakeDevice) lastCall() *fakeCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return nil
	}
	return d.calls[len(d.calls)-1]
}

func (d *fakeDevice) isDestroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

type fakeFactory struct {
	err        error
	onRegister *Event
	connectErr error
	devices    []*fakeDevice
}

func (f *fakeFactory) NewDevice(_ context.Context, token string, sink EventSink) (Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := &fakeDevice{sink: sink, token: token, onRegister: f.onRegister, connectErr: f.connectErr}
	f.devices = append(f.devices, d)
	return d, nil
}

func (f *fakeFactory) last() *fakeDevice { return f.devices[len(f.devices)-1] }

type fakeCreds struct {
	mu    sync.Mutex
	rec   *credentials.Record
	usage []string
}

func (f *fakeCreds) Load(context.Context) (*credentials.Record, error) { return f.rec, nil }

func (f *fakeCreds) RecordUsage(_ context.Context, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage = append(f.usage, action)
	return nil
}

type fakeTokens struct {
	mu    sync.Mutex
	token string
	err   error
	n     int
}

func (f *fakeTokens) Token(context.Context, credentials.Record) (backend.TokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.err != nil {
		return backend.TokenResponse{}, f.err
	}
	return backend.TokenResponse{Token: fmt.Sprintf("%s-%d", f.token, f.n), Identity: "browser_client"}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) observe(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	for _, u := range r.updates {
		if u.Notice != nil {
			out = append(out, *u.Notice)
		}
	}
	return out
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, u := range r.updates {
		if u.Kind == UpdateState && u.Snapshot != nil {
			out = append(out, u.Snapshot.State)
		}
	}
	return out
}

type harness struct {
	ctl     *Controller
	creds   *fakeCreds
	tokens  *fakeTokens
	devices *fakeFactory
	history *history.Store
	clock   *fakeClock
	rec     *recorder
}

func validRecord() *credentials.Record {
	return &credentials.Record{
		AccountSID: "AC1", AuthToken: "tok", APIKeySID: "SK1",
		APIKeySecret: "sec", AppSID: "AP1", PhoneNumber: "+15550000000",
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		creds:   &fakeCreds{rec: validRecord()},
		tokens:  &fakeTokens{token: "jwt"},
		devices: &fakeFactory{onRegister: &Event{Kind: EventRegistered}},
		history: history.NewStore(storage.NewMemoryKV(), nil, 0, nil),
		clock:   &fakeClock{now: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)},
		rec:     &recorder{},
	}
	h.ctl = New(Deps{
		Credentials: h.creds,
		Tokens:      h.tokens,
		Devices:     h.devices,
		History:     h.history,
		Observer:    h.rec.observe,
	}, Options{RegisterTimeout: time.Second, TickInterval: time.Hour})
	h.ctl.clock = h.clock.Now
	t.Cleanup(func() {
		h.ctl.Disconnect()
		h.ctl.Wait()
	})
	return h
}

func (h *harness) connect(t *testing.T) *fakeDevice {
	t.Helper()
	require.NoError(t, h.ctl.Connect(context.Background()))
	require.Equal(t, StateConnected, h.ctl.Snapshot().State)
	return h.devices.last()
}

func (h *harness) entries(t *testing.T) []history.Entry {
	t.Helper()
	list, err := h.history.List(context.Background())
	require.NoError(t, err)
	return list
}

// --- tests ---

func TestOutgoingCall_EndToEnd(t *testing.T) {
	h := newHarness(t)
	dev := h.connect(t)

	require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))
	assert.Equal(t, StateCalling, h.ctl.Snapshot().State)

	list := h.entries(t)
	require.Len(t, list, 1)
	assert.Equal(t, history.StatusConnecting, list[0].Status)
	assert.Equal(t, history.TypeOutgoing, list[0].Type)
	assert.Equal(t, "+15551234567", list[0].Number)

	call := dev.lastCall()
	require.NotNil(t, call)
	h.ctl.Dispatch(Event{Kind: EventAccept, Call: call})
	snap := h.ctl.Snapshot()
	assert.Equal(t, StateInCall, snap.State)
	require.NotNil(t, snap.AnsweredAt)

	h.clock.Advance(42 * time.Second)
	h.ctl.Dispatch(Event{Kind: EventDisconnect, Call: call})
	assert.Equal(t, StateConnected, h.ctl.Snapshot().State)

	list = h.entries(t)
	require.Len(t, list, 1)
	assert.Equal(t, history.StatusCompleted, list[0].Status)
	assert.Equal(t, 42, list[0].Duration)
	assert.NotNil(t, list[0].UpdatedAt)

	assert.Equal(t, []string{credentials.UsageConnection, credentials.UsageCall}, h.creds.usage)
	assert.Equal(t, []State{StateConnecting, StateConnected, StateCalling, StateInCall, StateConnected}, h.rec.states())
}

func TestMakeCall_SecondCallRejectedWhileBusy(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))
	err := h.ctl.MakeCall(context.Background(), "+15559999999")
	assert.ErrorIs(t, err, apperr.ErrCallInProgress)
	assert.Len(t, h.entries(t), 1)
}

func TestMakeCall_Preconditions(t *testing.T) {
	h := newHarness(t)

	err := h.ctl.MakeCall(context.Background(), "+15551234567")
	assert.ErrorIs(t, err, apperr.ErrNotConnected)

	h.connect(t)
	for _, n := range []string{"", "5551234567", "+", "abc", "+1+2"} {
		err := h.ctl.MakeCall(context.Background(), n)
		assert.ErrorIsf(t, err, apperr.ErrInvalidNumber, "number %q", n)
	}
	assert.Empty(t, h.entries(t))

	require.NoError(t, h.ctl.MakeCall(context.Background(), " +1 (555) 123-4567 "))
	assert.Equal(t, "+15551234567", h.ctl.Snapshot().Remote)
}

func TestMakeCall_DeviceConnectFailureRecordsFailed(t *testing.T) {
	h := newHarness(t)
	h.devices.connectErr = &SDKError{Code: 31201, Message: "no mic"}
	h.connect(t)

	err := h.ctl.MakeCall(context.Background(), "+15551234567")
	require.Error(t, err)
	assert.Equal(t, StateConnected, h.ctl.Snapshot().State)

	list := h.entries(t)
	require.Len(t, list, 1)
	assert.Equal(t, history.StatusFailed, list[0].Status)

	notices := h.rec.notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, CategoryMediaAcquisition, notices[len(notices)-1].Category)
}

func TestOutgoingCall_UnansweredEndIsFailed(t *testing.T) {
	h := newHarness(t)
	dev := h.connect(t)
	require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))

	h.ctl.Dispatch(Event{Kind: EventCancel, Call: dev.lastCall()})
	assert.Equal(t, StateConnected, h.ctl.Snapshot().State)
	list := h.entries(t)
	assert.Equal(t, history.StatusFailed, list[0].Status)
	assert.Equal(t, 0, list[0].Duration)
}

func TestConnect_MissingCredentials(t *testing.T) {
	h := newHarness(t)
	h.creds.rec = nil

	err := h.ctl.Connect(context.Background())
	assert.ErrorIs(t, err, apperr.ErrMissingCredentials)
	assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
	assert.Equal(t, 0, h.tokens.n)
}

func TestConnect_TokenFailure(t *testing.T) {
	h := newHarness(t)
	h.tokens.err = &backend.HTTPError{Status: 500, Message: "boom"}

	err := h.ctl.Connect(context.Background())
	assert.ErrorIs(t, err, apperr.ErrTokenAcquisition)
	assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
	assert.Empty(t, h.devices.devices)
}

func TestConnect_DeviceSetupFailure(t *testing.T) {
	h := newHarness(t)
	h.devices.err = errors.New("no transport")

	err := h.ctl.Connect(context.Background())
	assert.ErrorIs(t, err, apperr.ErrDeviceSetup)
	assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
}

func TestConnect_DeviceErrorDuringRegistration(t *testing.T) {
	h := newHarness(t)
	h.devices.onRegister = &Event{Kind: EventDeviceError, Err: &SDKError{Code: 20101, Message: "invalid token"}}

	err := h.ctl.Connect(context.Background())
	assert.ErrorIs(t, err, apperr.ErrDeviceSetup)
	assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
	assert.True(t, h.devices.last().isDestroyed())
}

func TestConnect_RegistrationTimeout(t *testing.T) {
	h := newHarness(t)
	h.devices.onRegister = nil
	h.ctl.opts.RegisterTimeout = 20 * time.Millisecond

	err := h.ctl.Connect(context.Background())
	assert.ErrorIs(t, err, apperr.ErrDeviceSetup)
	assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
	assert.True(t, h.devices.last().isDestroyed())
}

func TestConnect_OnlyFromDisconnected(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	assert.ErrorIs(t, h.ctl.Connect(context.Background()), apperr.ErrInvalidState)
}

func TestMuteAndHold_AreIndependent(t *testing.T) {
	h := newHarness(t)
	dev := h.connect(t)

	_, err := h.ctl.ToggleMute()
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))
	call := dev.lastCall()
	h.ctl.Dispatch(Event{Kind: EventAccept, Call: call})

	muted, err := h.ctl.ToggleMute()
	require.NoError(t, err)
	assert.True(t, muted)

	held, err := h.ctl.ToggleHold()
	require.NoError(t, err)
	assert.True(t, held)

	muted, err = h.ctl.ToggleMute()
	require.NoError(t, err)
	assert.False(t, muted)
	// still held, so the line stays silenced
	last, ok := call.lastMute()
	require.True(t, ok)
	assert.True(t, last)

	held, err = h.ctl.ToggleHold()
	require.NoError(t, err)
	assert.False(t, held)
	last, _ = call.lastMute()
	assert.False(t, last)

	snap := h.ctl.Snapshot()
	assert.False(t, snap.Muted)
	assert.False(t, snap.Held)
}

func TestSendTone(t *testing.T) {
	h := newHarness(t)
	dev := h.connect(t)

	assert.NoError(t, h.ctl.SendTone("5"), "no call is a no-op")
	assert.ErrorIs(t, h.ctl.SendTone("x"), apperr.ErrValidation)
	assert.ErrorIs(t, h.ctl.SendTone("12"), apperr.ErrValidation)

	require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))
	call := dev.lastCall()
	require.NoError(t, h.ctl.SendTone("1"), "not answered yet")
	h.ctl.Dispatch(Event{Kind: EventAccept, Call: call})
	require.NoError(t, h.ctl.SendTone("#"))
	require.NoError(t, h.ctl.SendTone("9"))

	call.mu.Lock()
	defer call.mu.Unlock()
	assert.Equal(t, "#9", call.digits)
}

func TestDisconnect_FromEveryState(t *testing.T) {
	t.Run("disconnected", func(t *testing.T) {
		h := newHarness(t)
		h.ctl.Disconnect()
		assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
	})
	t.Run("connected", func(t *testing.T) {
		h := newHarness(t)
		dev := h.connect(t)
		h.ctl.Disconnect()
		assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
		assert.True(t, dev.isDestroyed())
	})
	t.Run("in_call", func(t *testing.T) {
		h := newHarness(t)
		dev := h.connect(t)
		require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))
		call := dev.lastCall()
		h.ctl.Dispatch(Event{Kind: EventAccept, Call: call})
		h.clock.Advance(5 * time.Second)

		h.ctl.Disconnect()
		assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
		assert.True(t, dev.isDestroyed())
		call.mu.Lock()
		assert.True(t, call.disconnected)
		call.mu.Unlock()

		list := h.entries(t)
		assert.Equal(t, history.StatusCompleted, list[0].Status)
		assert.Equal(t, 5, list[0].Duration)
	})
	t.Run("ringing", func(t *testing.T) {
		h := newHarness(t)
		h.connect(t)
		h.ctl.Dispatch(Event{Kind: EventIncoming, Call: &fakeCall{id: "CA9"}, From: "+15557654321"})
		h.ctl.Disconnect()
		assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
		assert.Equal(t, history.StatusRejected, h.entries(t)[0].Status)
	})
}

func TestHangup(t *testing.T) {
	h := newHarness(t)
	dev := h.connect(t)
	assert.ErrorIs(t, h.ctl.Hangup(), apperr.ErrInvalidState)

	require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))
	call := dev.lastCall()
	h.ctl.Dispatch(Event{Kind: EventAccept, Call: call})
	h.clock.Advance(3 * time.Second)

	require.NoError(t, h.ctl.Hangup())
	assert.Equal(t, StateConnected, h.ctl.Snapshot().State)
	call.mu.Lock()
	assert.True(t, call.disconnected)
	call.mu.Unlock()

	// the SDK's own disconnect arrives late and must not touch the finished entry
	h.clock.Advance(time.Minute)
	h.ctl.Dispatch(Event{Kind: EventDisconnect, Call: call})
	list := h.entries(t)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Duration)
	assert.Equal(t, StateConnected, h.ctl.Snapshot().State)
}

func TestStaleEventsIgnored(t *testing.T) {
	h := newHarness(t)
	dev := h.connect(t)

	stranger := &fakeCall{id: "CAX"}
	h.ctl.Dispatch(Event{Kind: EventAccept, Call: stranger})
	h.ctl.Dispatch(Event{Kind: EventDisconnect, Call: stranger})
	assert.Equal(t, StateConnected, h.ctl.Snapshot().State)

	require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))
	h.ctl.Dispatch(Event{Kind: EventDisconnect, Call: stranger})
	assert.Equal(t, StateCalling, h.ctl.Snapshot().State)

	h.ctl.Dispatch(Event{Kind: EventAccept, Call: dev.lastCall()})
	assert.Equal(t, StateInCall, h.ctl.Snapshot().State)
}

func TestIncoming_AcceptThenRemoteHangup(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	in := &fakeCall{id: "CA1"}
	h.ctl.Dispatch(Event{Kind: EventIncoming, Call: in, From: "+15557654321"})
	snap := h.ctl.Snapshot()
	assert.Equal(t, StateRinging, snap.State)
	assert.Equal(t, history.TypeIncoming, snap.Direction)
	assert.Equal(t, "+15557654321", snap.Remote)
	assert.Equal(t, history.StatusRinging, h.entries(t)[0].Status)

	require.NoError(t, h.ctl.AcceptCall())
	assert.Equal(t, StateInCall, h.ctl.Snapshot().State)
	in.mu.Lock()
	assert.True(t, in.accepted)
	in.mu.Unlock()

	h.clock.Advance(10 * time.Second)
	h.ctl.Dispatch(Event{Kind: EventDisconnect, Call: in})
	list := h.entries(t)
	assert.Equal(t, history.StatusCompleted, list[0].Status)
	assert.Equal(t, 10, list[0].Duration)

	var sawIncoming bool
	for _, n := range h.rec.notices() {
		if n.Message == "Incoming call from +15557654321" {
			sawIncoming = true
		}
	}
	assert.True(t, sawIncoming)
}

func TestIncoming_RejectAndMissed(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	in := &fakeCall{id: "CA1"}
	h.ctl.Dispatch(Event{Kind: EventIncoming, Call: in, From: "+15557654321"})
	require.NoError(t, h.ctl.RejectCall())
	assert.Equal(t, StateConnected, h.ctl.Snapshot().State)
	assert.True(t, in.rejected)
	assert.Equal(t, history.StatusRejected, h.entries(t)[0].Status)

	missed := &fakeCall{id: "CA2"}
	h.ctl.Dispatch(Event{Kind: EventIncoming, Call: missed, From: "+15550001111"})
	h.ctl.Dispatch(Event{Kind: EventCancel, Call: missed})
	assert.Equal(t, StateConnected, h.ctl.Snapshot().State)
	assert.Equal(t, history.StatusMissed, h.entries(t)[0].Status)

	assert.ErrorIs(t, h.ctl.AcceptCall(), apperr.ErrInvalidState)
	assert.ErrorIs(t, h.ctl.RejectCall(), apperr.ErrInvalidState)
}

func TestIncoming_WhileBusyIsRejectedAndMissed(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))

	second := &fakeCall{id: "CA2"}
	h.ctl.Dispatch(Event{Kind: EventIncoming, Call: second, From: "+15550001111"})
	assert.Equal(t, StateCalling, h.ctl.Snapshot().State)
	assert.True(t, second.rejected)

	list := h.entries(t)
	require.Len(t, list, 2)
	assert.Equal(t, "+15550001111", list[0].Number)
	assert.Equal(t, history.StatusMissed, list[0].Status)
}

func TestDeviceErrorDuringCall(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))

	h.ctl.Dispatch(Event{Kind: EventDeviceError, Err: &SDKError{Code: 31005, Message: "gateway hung up"}})
	assert.Equal(t, StateConnected, h.ctl.Snapshot().State)
	assert.Equal(t, history.StatusFailed, h.entries(t)[0].Status)

	notices := h.rec.notices()
	require.NotEmpty(t, notices)
	last := notices[len(notices)-1]
	assert.Equal(t, NoticeError, last.Level)
	assert.Equal(t, CategoryConnectivity, last.Category)
	assert.Equal(t, "Connection problem. Check your network.", last.Message)
}

func TestCallError_RecordsFailedEvenWhenAnswered(t *testing.T) {
	h := newHarness(t)
	dev := h.connect(t)
	require.NoError(t, h.ctl.MakeCall(context.Background(), "+15551234567"))
	call := dev.lastCall()
	h.ctl.Dispatch(Event{Kind: EventAccept, Call: call})
	h.ctl.Dispatch(Event{Kind: EventCallError, Call: call, Err: &SDKError{Code: 99999, Message: "weird"}})

	assert.Equal(t, history.StatusFailed, h.entries(t)[0].Status)
	notices := h.rec.notices()
	assert.Equal(t, "Call error: weird", notices[len(notices)-1].Message)
}

func TestOffline_TearsDown(t *testing.T) {
	h := newHarness(t)
	dev := h.connect(t)

	h.ctl.Dispatch(Event{Kind: EventOffline})
	assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
	assert.True(t, dev.isDestroyed())
	notices := h.rec.notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, NoticeWarning, notices[len(notices)-1].Level)
}

func TestTokenWillExpire_RefreshesDeviceToken(t *testing.T) {
	h := newHarness(t)
	dev := h.connect(t)

	h.ctl.Dispatch(Event{Kind: EventTokenWillExpire})
	h.ctl.Wait()

	dev.mu.Lock()
	defer dev.mu.Unlock()
	assert.Equal(t, "jwt-2", dev.token)
}

func TestCategorize(t *testing.T) {
	cases := map[int]ErrorCategory{
		20101: CategoryAuthorization,
		20157: CategoryAuthorization,
		31204: CategoryAuthorization,
		31000: CategoryConnectivity,
		53405: CategoryConnectivity,
		31201: CategoryMediaAcquisition,
		31402: CategoryMediaAcquisition,
		12345: CategoryUnknown,
		0:     CategoryUnknown,
	}
	for code, want := range cases {
		assert.Equalf(t, want, Categorize(code), "code %d", code)
	}
	var nilErr *SDKError
	assert.Equal(t, CategoryUnknown, nilErr.Category())
}

type blockingTokens struct{ started chan struct{} }

func (b blockingTokens) Token(ctx context.Context, _ credentials.Record) (backend.TokenResponse, error) {
	close(b.started)
	<-ctx.Done()
	return backend.TokenResponse{}, ctx.Err()
}

func TestDisconnect_AbortsInFlightConnect(t *testing.T) {
	h := newHarness(t)
	tokens := blockingTokens{started: make(chan struct{})}
	h.ctl.deps.Tokens = tokens

	done := make(chan error, 1)
	go func() { done <- h.ctl.Connect(context.Background()) }()
	<-tokens.started

	assert.ErrorIs(t, h.ctl.Connect(context.Background()), apperr.ErrInvalidState, "overlapping connect")

	h.ctl.Disconnect()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateDisconnected, h.ctl.Snapshot().State)
	assert.Empty(t, h.devices.devices)
}
