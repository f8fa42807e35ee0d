package backend

import "softphone/internal/credentials"

type TokenResponse struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
}

type sendSMSRequest struct {
	credentials.Record
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type SendSMSResponse struct {
	Success    bool   `json:"success"`
	MessageSID string `json:"messageSid"`
	Status     string `json:"status"`
}

type messagesRequest struct {
	credentials.Record
	Contact    string `json:"phoneNumber"`
	UserNumber string `json:"userNumber,omitempty"`
}

// Message is one SMS in a thread. Timestamps are passed through as the backend formats them.
type Message struct {
	SID         string `json:"sid"`
	From        string `json:"from"`
	To          string `json:"to"`
	Body        string `json:"body"`
	Status      string `json:"status"`
	Direction   string `json:"direction"`
	Timestamp   string `json:"timestamp"`
	DateCreated string `json:"dateCreated"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}

type conversationsRequest struct {
	credentials.Record
	UserNumber string `json:"userNumber,omitempty"`
}

type Conversation struct {
	Contact         string `json:"contact"`
	LastMessage     string `json:"lastMessage"`
	LastMessageDate string `json:"lastMessageDate"`
	Direction       string `json:"direction"`
	MessageCount    int    `json:"messageCount"`
}

type ConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Count         int            `json:"count"`
}

type Capabilities struct {
	Voice bool `json:"voice"`
	SMS   bool `json:"sms"`
	MMS   bool `json:"mms"`
}

type PhoneNumber struct {
	SID          string       `json:"sid"`
	PhoneNumber  string       `json:"phoneNumber"`
	FriendlyName string       `json:"friendlyName"`
	Capabilities Capabilities `json:"capabilities"`
}

type PhoneNumbersResponse struct {
	PhoneNumbers []PhoneNumber `json:"phoneNumbers"`
	Count        int           `json:"count"`
}
