package credentials

import "time"

// Record is the fixed-shape credential set needed to obtain tokens and relay SMS.
// JSON names match the backend request body so the record can be posted as-is.
type Record struct {
	AccountSID   string `json:"accountSid"`
	AuthToken    string `json:"authToken"`
	APIKeySID    string `json:"apiKeySid"`
	APIKeySecret string `json:"apiKeySecret"`
	AppSID       string `json:"twimlAppSid"`
	PhoneNumber  string `json:"twilioPhoneNumber"`
}

// Result is the outcome of Validate. Errors lists every violated rule.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Backup is the portable export of a saved record.
type Backup struct {
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

const backupVersion = "1.0"

// Usage action names.
const (
	UsageConnection = "connection"
	UsageCall       = "call"
)

// Usage counts how often the saved credentials were used.
type Usage struct {
	LastUsed         *time.Time `json:"lastUsed"`
	TotalConnections int        `json:"totalConnections"`
	TotalCalls       int        `json:"totalCalls"`
	LastUpdate       *time.Time `json:"lastUpdate"`
}

const secretMask = "••••••••••••••••"
