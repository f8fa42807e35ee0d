package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"softphone/internal/apperr"
	"softphone/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	mu     sync.Mutex
	events []session.Event
}

func (s *sinkRecorder) Dispatch(ev session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sinkRecorder) last() session.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func newTestBridge() *Bridge {
	b := New(16, nil)
	n := 0
	b.newID = func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
	return b
}

func drain(b *Bridge) []Command {
	var out []Command
	for {
		select {
		case c := <-b.Commands():
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestNewDevice_RequiresAttachedPage(t *testing.T) {
	b := newTestBridge()
	_, err := b.NewDevice(context.Background(), "tok", &sinkRecorder{})
	assert.ErrorIs(t, err, ErrNoPage)

	detach := b.Attach()
	dev, err := b.NewDevice(context.Background(), "tok", &sinkRecorder{})
	require.NoError(t, err)
	require.NoError(t, dev.Register(context.Background()))

	cmds := drain(b)
	require.Len(t, cmds, 2)
	assert.Equal(t, OpSetup, cmds[0].Op)
	assert.Equal(t, "tok", cmds[0].Token)
	assert.Equal(t, OpRegister, cmds[1].Op)
	assert.Equal(t, cmds[0].Device, cmds[1].Device)

	detach()
	detach()
	assert.False(t, b.Attached())
}

func TestOutgoingCall_RoundTrip(t *testing.T) {
	b := newTestBridge()
	defer b.Attach()()
	sink := &sinkRecorder{}
	dev, err := b.NewDevice(context.Background(), "tok", sink)
	require.NoError(t, err)

	c, err := dev.Connect(context.Background(), "+15551234567")
	require.NoError(t, err)
	require.NoError(t, c.Mute(true))
	require.NoError(t, c.SendDigits("5"))

	cmds := drain(b)
	require.Len(t, cmds, 4)
	connect := cmds[1]
	assert.Equal(t, OpConnect, connect.Op)
	assert.Equal(t, "+15551234567", connect.To)
	assert.Equal(t, c.ID(), connect.CallID)
	require.NotNil(t, cmds[2].Muted)
	assert.True(t, *cmds[2].Muted)
	assert.Equal(t, "5", cmds[3].Digits)

	require.NoError(t, b.Deliver(InboundEvent{Type: "accept", Device: connect.Device, CallID: c.ID()}))
	ev := sink.last()
	assert.Equal(t, session.EventAccept, ev.Kind)
	assert.Same(t, c, ev.Call)

	require.NoError(t, b.Deliver(InboundEvent{Type: "disconnect", CallID: c.ID()}))
	assert.Same(t, c, sink.last().Call)

	// the call is forgotten after a terminal event
	require.NoError(t, b.Deliver(InboundEvent{Type: "disconnect", CallID: c.ID()}))
	assert.Nil(t, sink.last().Call)
}

func TestIncomingCall_CreatesHandle(t *testing.T) {
	b := newTestBridge()
	defer b.Attach()()
	sink := &sinkRecorder{}
	_, err := b.NewDevice(context.Background(), "tok", sink)
	require.NoError(t, err)
	drain(b)

	require.NoError(t, b.Deliver(InboundEvent{Type: "incoming", CallID: "CA42", From: "+15557654321"}))
	ev := sink.last()
	require.NotNil(t, ev.Call)
	assert.Equal(t, "CA42", ev.Call.ID())
	assert.Equal(t, "+15557654321", ev.From)

	require.NoError(t, ev.Call.Accept())
	cmds := drain(b)
	require.Len(t, cmds, 1)
	assert.Equal(t, OpAccept, cmds[0].Op)
	assert.Equal(t, "CA42", cmds[0].CallID)
}

func TestDeliver_Rejections(t *testing.T) {
	b := newTestBridge()
	defer b.Attach()()

	err := b.Deliver(InboundEvent{Type: "registered"})
	assert.ErrorIs(t, err, apperr.ErrNotConnected)

	sink := &sinkRecorder{}
	dev, err := b.NewDevice(context.Background(), "tok", sink)
	require.NoError(t, err)

	err = b.Deliver(InboundEvent{Type: "explode"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	err = b.Deliver(InboundEvent{Type: "registered", Device: "someone-else"})
	assert.ErrorIs(t, err, apperr.ErrNotConnected)

	require.NoError(t, b.Deliver(InboundEvent{Type: "device_error", Error: &session.SDKError{Code: 31005, Message: "x"}}))
	assert.Equal(t, session.CategoryConnectivity, sink.last().Err.Category())

	require.NoError(t, dev.Destroy())
	err = b.Deliver(InboundEvent{Type: "registered"})
	assert.ErrorIs(t, err, apperr.ErrNotConnected)
}

func TestSend_QueueFull(t *testing.T) {
	b := New(1, nil)
	defer b.Attach()()
	dev, err := b.NewDevice(context.Background(), "tok", &sinkRecorder{})
	require.NoError(t, err)
	assert.Error(t, dev.Register(context.Background()))
}
