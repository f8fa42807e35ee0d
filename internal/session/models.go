package session

import (
	"time"

	"softphone/internal/history"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateCalling      State = "calling"
	StateRinging      State = "ringing"
	StateInCall       State = "in_call"
)

func (s State) hasCall() bool {
	return s == StateCalling || s == StateRinging || s == StateInCall
}

// Snapshot is the observable session state.
type Snapshot struct {
	State          State            `json:"state"`
	Direction      history.CallType `json:"direction,omitempty"`
	Remote         string           `json:"remote,omitempty"`
	Muted          bool             `json:"muted"`
	Held           bool             `json:"held"`
	AnsweredAt     *time.Time       `json:"answeredAt,omitempty"`
	Duration       int              `json:"duration"`
	TokenExpiresAt *time.Time       `json:"tokenExpiresAt,omitempty"`
}

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient user-facing message.
type Notice struct {
	Level    NoticeLevel   `json:"level"`
	Message  string        `json:"message"`
	Category ErrorCategory `json:"category,omitempty"`
}

type UpdateKind string

const (
	UpdateState  UpdateKind = "state"
	UpdateNotice UpdateKind = "notice"
	UpdateTick   UpdateKind = "tick"
)

// Update is what the controller publishes to its observer.
type Update struct {
	Kind     UpdateKind `json:"kind"`
	Snapshot *Snapshot  `json:"snapshot,omitempty"`
	Notice   *Notice    `json:"notice,omitempty"`
}

// Observer receives updates outside the controller lock. It must not block.
type Observer func(Update)
