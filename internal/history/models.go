package history

import "time"

type CallType string

const (
	TypeIncoming CallType = "incoming"
	TypeOutgoing CallType = "outgoing"
	TypeMissed   CallType = "missed"
)

func (t CallType) Valid() bool {
	switch t {
	case TypeIncoming, TypeOutgoing, TypeMissed:
		return true
	}
	return false
}

type Status string

const (
	StatusCompleted  Status = "completed"
	StatusMissed     Status = "missed"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
	StatusConnecting Status = "connecting"
	StatusRinging    Status = "ringing"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusMissed, StatusRejected, StatusFailed, StatusConnecting, StatusRinging:
		return true
	}
	return false
}

// Entry is one call attempt. ContactName is resolved once at insert time and never rewritten.
type Entry struct {
	ID          string     `json:"id"`
	Number      string     `json:"number"`
	Type        CallType   `json:"type"`
	Status      Status     `json:"status"`
	Duration    int        `json:"duration"`
	Timestamp   time.Time  `json:"timestamp"`
	ContactName string     `json:"contactName,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// NewEntry is the input to Add. A zero Timestamp means now.
type NewEntry struct {
	Number    string    `json:"number"`
	Type      CallType  `json:"type"`
	Status    Status    `json:"status"`
	Duration  int       `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes,omitempty"`
}

// Patch updates selected fields of an existing entry. Nil fields are left alone.
type Patch struct {
	Type     *CallType `json:"type,omitempty"`
	Status   *Status   `json:"status,omitempty"`
	Duration *int      `json:"duration,omitempty"`
	Notes    *string   `json:"notes,omitempty"`
}

type Criterion string

const (
	FilterAll      Criterion = "all"
	FilterIncoming Criterion = "incoming"
	FilterOutgoing Criterion = "outgoing"
	FilterMissed   Criterion = "missed"
	FilterToday    Criterion = "today"
	FilterWeek     Criterion = "week"
	FilterMonth    Criterion = "month"
)

type Statistics struct {
	Total           int `json:"total"`
	Incoming        int `json:"incoming"`
	Outgoing        int `json:"outgoing"`
	Missed          int `json:"missed"`
	TotalDuration   int `json:"totalDuration"`
	AverageDuration int `json:"averageDuration"`
	Today           int `json:"today"`
	Week            int `json:"week"`
	Month           int `json:"month"`
}

// Day aggregates one local calendar day.
type Day struct {
	Date     string `json:"date"`
	Total    int    `json:"total"`
	Incoming int    `json:"incoming"`
	Outgoing int    `json:"outgoing"`
	Missed   int    `json:"missed"`
	Duration int    `json:"duration"`
}
