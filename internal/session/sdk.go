package session

import (
	"context"
	"fmt"
)

// Device is this client's registration with the calling service.
type Device interface {
	Register(ctx context.Context) error
	Connect(ctx context.Context, to string) (Call, error)
	UpdateToken(token string) error
	Destroy() error
}

// Call is one active or pending call handle.
type Call interface {
	ID() string
	Accept() error
	Reject() error
	Disconnect() error
	Mute(muted bool) error
	SendDigits(digits string) error
}

// EventSink receives SDK events. The Controller is the only production sink.
type EventSink interface {
	Dispatch(Event)
}

// DeviceFactory creates a device bound to token that reports its events to sink.
type DeviceFactory interface {
	NewDevice(ctx context.Context, token string, sink EventSink) (Device, error)
}

type EventKind string

const (
	EventRegistered      EventKind = "registered"
	EventDeviceError     EventKind = "device_error"
	EventOffline         EventKind = "offline"
	EventIncoming        EventKind = "incoming"
	EventTokenWillExpire EventKind = "token_will_expire"
	EventRinging         EventKind = "ringing"
	EventAccept          EventKind = "accept"
	EventDisconnect      EventKind = "disconnect"
	EventCancel          EventKind = "cancel"
	EventReject          EventKind = "reject"
	EventCallError       EventKind = "call_error"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventRegistered, EventDeviceError, EventOffline, EventIncoming, EventTokenWillExpire,
		EventRinging, EventAccept, EventDisconnect, EventCancel, EventReject, EventCallError:
		return true
	}
	return false
}

// Event is one SDK notification. Call is set for call-scoped kinds and for incoming,
// From carries the caller number for incoming, Err is set for the error kinds.
type Event struct {
	Kind EventKind
	Call Call
	From string
	Err  *SDKError
}

// SDKError is an error reported by the SDK with its numeric code.
type SDKError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *SDKError) Error() string { return fmt.Sprintf("sdk error %d: %s", e.Code, e.Message) }

func (e *SDKError) Category() ErrorCategory {
	if e == nil {
		return CategoryUnknown
	}
	return Categorize(e.Code)
}

// ErrorCategory is the closed set of user-facing error classes.
type ErrorCategory string

const (
	CategoryAuthorization    ErrorCategory = "authorization"
	CategoryConnectivity     ErrorCategory = "connectivity"
	CategoryMediaAcquisition ErrorCategory = "media_acquisition"
	CategoryUnknown          ErrorCategory = "unknown"
)

// Categorize maps SDK error codes onto categories.
func Categorize(code int) ErrorCategory {
	switch code {
	case 20101, 20102, 20103, 20104, 20105, 20106, 20107, 20151, 20157,
		31202, 31204, 31205, 31206, 31207:
		return CategoryAuthorization
	case 31000, 31003, 31005, 31009, 53000, 53001, 53405:
		return CategoryConnectivity
	case 31201, 31208, 31401, 31402:
		return CategoryMediaAcquisition
	default:
		return CategoryUnknown
	}
}

func (c ErrorCategory) userMessage(detail string) string {
	switch c {
	case CategoryAuthorization:
		return "Authorization failed. Check your credentials."
	case CategoryConnectivity:
		return "Connection problem. Check your network."
	case CategoryMediaAcquisition:
		return "Microphone unavailable. Check device permissions."
	default:
		if detail == "" {
			return "Call error."
		}
		return "Call error: " + detail
	}
}
