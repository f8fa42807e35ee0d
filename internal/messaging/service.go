package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"softphone/internal/apperr"
	"softphone/internal/backend"
	"softphone/internal/contacts"
	"softphone/internal/credentials"
	"softphone/internal/session"
)

// MaxBodyLength is the longest body the relay accepts (in characters).
const MaxBodyLength = 1600

// Relay is the SMS half of the backend client.
type Relay interface {
	SendSMS(ctx context.Context, creds credentials.Record, from, to, body string) (backend.SendSMSResponse, error)
	Messages(ctx context.Context, creds credentials.Record, contact, userNumber string) (backend.MessagesResponse, error)
	Conversations(ctx context.Context, creds credentials.Record, userNumber string) (backend.ConversationsResponse, error)
	PhoneNumbers(ctx context.Context, creds credentials.Record) (backend.PhoneNumbersResponse, error)
}

type CredentialLoader interface {
	Load(ctx context.Context) (*credentials.Record, error)
}

// SessionState reports whether the device is online.
type SessionState interface {
	Snapshot() session.Snapshot
}

// Service sends and lists SMS through the relay. Every operation requires
// saved credentials and a registered device.
type Service struct {
	relay   Relay
	creds   CredentialLoader
	session SessionState
	log     *slog.Logger
}

func NewService(relay Relay, creds CredentialLoader, sess SessionState, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{relay: relay, creds: creds, session: sess, log: log.With("component", "messaging")}
}

func (s *Service) online() bool {
	if s.session == nil {
		return true
	}
	st := s.session.Snapshot().State
	return st != session.StateDisconnected && st != session.StateConnecting
}

// prepare loads credentials after checking the device is online.
func (s *Service) prepare(ctx context.Context) (credentials.Record, error) {
	if !s.online() {
		return credentials.Record{}, fmt.Errorf("messaging: %w", apperr.ErrNotConnected)
	}
	rec, err := s.creds.Load(ctx)
	if err != nil {
		return credentials.Record{}, err
	}
	if rec == nil {
		return credentials.Record{}, fmt.Errorf("messaging: %w", apperr.ErrMissingCredentials)
	}
	return *rec, nil
}

// senderNumber picks the first number on the account, falling back to the saved one.
func (s *Service) senderNumber(ctx context.Context, rec credentials.Record) (string, error) {
	nums, err := s.relay.PhoneNumbers(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("messaging: list phone numbers: %w", err)
	}
	for _, n := range nums.PhoneNumbers {
		if n.PhoneNumber != "" {
			return n.PhoneNumber, nil
		}
	}
	if rec.PhoneNumber != "" {
		return rec.PhoneNumber, nil
	}
	return "", fmt.Errorf("messaging: no phone number on account: %w", apperr.ErrNotFound)
}

func (s *Service) Send(ctx context.Context, to, body string) (backend.SendSMSResponse, error) {
	var violations []string
	dest := contacts.Canonicalize(to)
	if dest == "" {
		violations = append(violations, "to must contain digits")
	}
	if strings.TrimSpace(body) == "" {
		violations = append(violations, "body is required")
	} else if utf8.RuneCountInString(body) > MaxBodyLength {
		violations = append(violations, fmt.Sprintf("body must be at most %d characters", MaxBodyLength))
	}
	if len(violations) > 0 {
		return backend.SendSMSResponse{}, apperr.NewValidation(violations...)
	}

	rec, err := s.prepare(ctx)
	if err != nil {
		return backend.SendSMSResponse{}, err
	}
	from, err := s.senderNumber(ctx, rec)
	if err != nil {
		return backend.SendSMSResponse{}, err
	}
	out, err := s.relay.SendSMS(ctx, rec, from, dest, body)
	if err != nil {
		return backend.SendSMSResponse{}, fmt.Errorf("messaging: send: %w", err)
	}
	s.log.Info("sms sent", "to", dest, "sid", out.MessageSID, "status", out.Status)
	return out, nil
}

// Messages returns the thread with contact.
func (s *Service) Messages(ctx context.Context, contact string) ([]backend.Message, error) {
	peer := contacts.Canonicalize(contact)
	if peer == "" {
		return nil, apperr.NewValidation("contact must contain digits")
	}
	rec, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	from, err := s.senderNumber(ctx, rec)
	if err != nil {
		return nil, err
	}
	out, err := s.relay.Messages(ctx, rec, peer, from)
	if err != nil {
		return nil, fmt.Errorf("messaging: messages: %w", err)
	}
	return out.Messages, nil
}

func (s *Service) Conversations(ctx context.Context) ([]backend.Conversation, error) {
	rec, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	from, err := s.senderNumber(ctx, rec)
	if err != nil {
		return nil, err
	}
	out, err := s.relay.Conversations(ctx, rec, from)
	if err != nil {
		return nil, fmt.Errorf("messaging: conversations: %w", err)
	}
	return out.Conversations, nil
}

func (s *Service) PhoneNumbers(ctx context.Context) ([]backend.PhoneNumber, error) {
	rec, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.relay.PhoneNumbers(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("messaging: phone numbers: %w", err)
	}
	return out.PhoneNumbers, nil
}
