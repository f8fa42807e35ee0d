package credentials

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"softphone/internal/apperr"
	"softphone/internal/storage"
)

// Store persists a single credential record under storage.KeyCredentials.
// The base64 wrapping is obfuscation only.
type Store struct {
	kv    storage.KV
	log   *slog.Logger
	clock func() time.Time
}

func NewStore(kv storage.KV, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{kv: kv, log: log.With("component", "credentials"), clock: time.Now}
}

// Validate checks presence of all six fields and the format rules. It never stops at the first violation.
func Validate(r Record) Result {
	var errs []string
	required := []struct {
		name  string
		value string
	}{
		{"accountSid", r.AccountSID},
		{"authToken", r.AuthToken},
		{"apiKeySid", r.APIKeySID},
		{"apiKeySecret", r.APIKeySecret},
		{"twimlAppSid", r.AppSID},
		{"twilioPhoneNumber", r.PhoneNumber},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, f.name+" is required")
		}
	}
	if v := strings.TrimSpace(r.AccountSID); v != "" && !strings.HasPrefix(v, "AC") {
		errs = append(errs, "accountSid must start with AC")
	}
	if v := strings.TrimSpace(r.APIKeySID); v != "" && !strings.HasPrefix(v, "SK") {
		errs = append(errs, "apiKeySid must start with SK")
	}
	if v := strings.TrimSpace(r.AppSID); v != "" && !strings.HasPrefix(v, "AP") {
		errs = append(errs, "twimlAppSid must start with AP")
	}
	if v := strings.TrimSpace(r.PhoneNumber); v != "" && !strings.HasPrefix(v, "+") {
		errs = append(errs, "twilioPhoneNumber must start with +")
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

func encode(r Record) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func decode(b []byte) (Record, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Save validates and persists r, replacing any previous record.
func (s *Store) Save(ctx context.Context, r Record) error {
	if res := Validate(r); !res.Valid {
		return apperr.NewValidation(res.Errors...)
	}
	b, err := encode(r)
	if err != nil {
		return fmt.Errorf("credentials: encode: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyCredentials, b); err != nil {
		return fmt.Errorf("credentials: save: %w", err)
	}
	s.log.Info("credentials saved", "account_sid", r.AccountSID)
	return nil
}

// Load returns the saved record, or nil when none exists.
// Undecodable or invalid data is deleted and reported as absent.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	b, ok, err := s.kv.Get(ctx, storage.KeyCredentials)
	if err != nil {
		return nil, fmt.Errorf("credentials: load: %w", err)
	}
	if !ok {
		return nil, nil
	}
	r, err := decode(b)
	if err == nil && Validate(r).Valid {
		return &r, nil
	}
	s.log.Warn("discarding corrupted credentials", "decode_error", err != nil)
	if err := s.kv.Delete(ctx, storage.KeyCredentials); err != nil {
		return nil, fmt.Errorf("credentials: discard corrupted: %w", err)
	}
	return nil, nil
}

// Clear removes the saved record. Clearing nothing is fine.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, storage.KeyCredentials); err != nil {
		return fmt.Errorf("credentials: clear: %w", err)
	}
	return nil
}

// Exists reports whether a valid record is saved.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	r, err := s.Load(ctx)
	return r != nil, err
}

// Update merges the non-empty fields of patch onto the saved record and saves the result.
func (s *Store) Update(ctx context.Context, patch Record) (Record, error) {
	cur, err := s.Load(ctx)
	if err != nil {
		return Record{}, err
	}
	var r Record
	if cur != nil {
		r = *cur
	}
	merge(&r.AccountSID, patch.AccountSID)
	merge(&r.AuthToken, patch.AuthToken)
	merge(&r.APIKeySID, patch.APIKeySID)
	merge(&r.APIKeySecret, patch.APIKeySecret)
	merge(&r.AppSID, patch.AppSID)
	merge(&r.PhoneNumber, patch.PhoneNumber)
	if err := s.Save(ctx, r); err != nil {
		return Record{}, err
	}
	return r, nil
}

func merge(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

// Masked returns the saved record for form display with secrets hidden.
// With nothing saved it returns an empty record.
func (s *Store) Masked(ctx context.Context) (Record, error) {
	r, err := s.Load(ctx)
	if err != nil || r == nil {
		return Record{}, err
	}
	out := *r
	if out.AuthToken != "" {
		out.AuthToken = secretMask
	}
	if out.APIKeySecret != "" {
		out.APIKeySecret = secretMask
	}
	return out, nil
}

// Export wraps the saved record in a Backup. It fails with ErrNotFound when nothing is saved.
func (s *Store) Export(ctx context.Context) (Backup, error) {
	r, err := s.Load(ctx)
	if err != nil {
		return Backup{}, err
	}
	if r == nil {
		return Backup{}, fmt.Errorf("credentials: export: %w", apperr.ErrNotFound)
	}
	b, err := encode(*r)
	if err != nil {
		return Backup{}, fmt.Errorf("credentials: encode: %w", err)
	}
	return Backup{Data: string(b), Timestamp: s.clock().UTC(), Version: backupVersion}, nil
}

// Import restores a record from a Backup produced by Export.
func (s *Store) Import(ctx context.Context, b Backup) error {
	if strings.TrimSpace(b.Data) == "" {
		return apperr.NewValidation("backup data is required")
	}
	r, err := decode([]byte(b.Data))
	if err != nil {
		return apperr.NewValidation("backup data cannot be decoded")
	}
	return s.Save(ctx, r)
}

// RecordUsage bumps the counter for action and stamps lastUsed.
func (s *Store) RecordUsage(ctx context.Context, action string) error {
	u, err := s.Usage(ctx)
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	switch action {
	case UsageConnection:
		u.TotalConnections++
	case UsageCall:
		u.TotalCalls++
	default:
		return fmt.Errorf("credentials: unknown usage action %q", action)
	}
	u.LastUsed = &now
	u.LastUpdate = &now

	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, storage.KeyUsageStats, b); err != nil {
		return fmt.Errorf("credentials: save usage: %w", err)
	}
	return nil
}

// Usage reads the usage counters. Unreadable data counts as zero.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	b, ok, err := s.kv.Get(ctx, storage.KeyUsageStats)
	if err != nil {
		return Usage{}, fmt.Errorf("credentials: load usage: %w", err)
	}
	if !ok {
		return Usage{}, nil
	}
	var u Usage
	if err := json.Unmarshal(b, &u); err != nil {
		s.log.Warn("discarding corrupted usage stats", "err", err)
		return Usage{}, nil
	}
	return u, nil
}
