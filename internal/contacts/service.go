package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"softphone/internal/apperr"
	"softphone/internal/storage"

	"github.com/google/uuid"
)

// Store owns the contact list. Every mutation reloads, edits and rewrites the whole list.
type Store struct {
	mu    sync.Mutex
	kv    storage.KV
	log   *slog.Logger
	clock func() time.Time
	newID func() string
}

func NewStore(kv storage.KV, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		kv:    kv,
		log:   log.With("component", "contacts"),
		clock: time.Now,
		newID: uuid.NewString,
	}
}

func (s *Store) load(ctx context.Context) ([]Contact, error) {
	b, ok, err := s.kv.Get(ctx, storage.KeyContacts)
	if err != nil {
		return nil, fmt.Errorf("contacts: load: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var out []Contact
	if err := json.Unmarshal(b, &out); err != nil {
		s.log.Warn("contact list unreadable, starting empty", "err", err)
		return nil, nil
	}
	return out, nil
}

func (s *Store) save(ctx context.Context, list []Contact) error {
	b, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("contacts: encode: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyContacts, b); err != nil {
		return fmt.Errorf("contacts: save: %w", err)
	}
	return nil
}

// validate returns the trimmed input with a canonical phone.
func validate(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Company = strings.TrimSpace(in.Company)
	in.Notes = strings.TrimSpace(in.Notes)

	var violations []string
	if in.Name == "" {
		violations = append(violations, "name is required")
	}
	if strings.TrimSpace(in.Phone) == "" {
		violations = append(violations, "phone is required")
	} else if in.Phone = Canonicalize(in.Phone); in.Phone == "" {
		violations = append(violations, "phone must contain digits")
	}
	if in.Email != "" && !validEmail(in.Email) {
		violations = append(violations, "email is not valid")
	}
	if len(violations) > 0 {
		return Input{}, apperr.NewValidation(violations...)
	}
	return in, nil
}

func indexByPhone(list []Contact, phone, exceptID string) int {
	for i := range list {
		if list[i].ID != exceptID && strings.EqualFold(list[i].Phone, phone) {
			return i
		}
	}
	return -1
}

func indexByID(list []Contact, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// Add validates in, rejects a canonical phone already in the list and stores a new contact.
func (s *Store) Add(ctx context.Context, in Input) (Contact, error) {
	in, err := validate(in)
	if err != nil {
		return Contact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return Contact{}, err
	}
	if indexByPhone(list, in.Phone, "") >= 0 {
		return Contact{}, fmt.Errorf("contacts: phone %s: %w", in.Phone, apperr.ErrDuplicate)
	}

	now := s.clock().UTC()
	c := Contact{
		ID:        s.newID(),
		Name:      in.Name,
		Phone:     in.Phone,
		Email:     in.Email,
		Company:   in.Company,
		Notes:     in.Notes,
		Avatar:    in.Avatar,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.Avatar == "" {
		c.Avatar = defaultAvatar(c.Name)
	}
	list = append(list, c)
	if err := s.save(ctx, list); err != nil {
		return Contact{}, err
	}
	s.log.Debug("contact added", "contact_id", c.ID)
	return c, nil
}

// Update replaces the editable fields of contact id.
func (s *Store) Update(ctx context.Context, id string, in Input) (Contact, error) {
	in, err := validate(in)
	if err != nil {
		return Contact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return Contact{}, err
	}
	i := indexByID(list, id)
	if i < 0 {
		return Contact{}, fmt.Errorf("contacts: %s: %w", id, apperr.ErrNotFound)
	}
	if indexByPhone(list, in.Phone, id) >= 0 {
		return Contact{}, fmt.Errorf("contacts: phone %s: %w", in.Phone, apperr.ErrDuplicate)
	}

	c := &list[i]
	c.Name = in.Name
	c.Phone = in.Phone
	c.Email = in.Email
	c.Company = in.Company
	c.Notes = in.Notes
	if in.Avatar != "" {
		c.Avatar = in.Avatar
	}
	c.UpdatedAt = s.clock().UTC()
	if err := s.save(ctx, list); err != nil {
		return Contact{}, err
	}
	return *c, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexByID(list, id)
	if i < 0 {
		return fmt.Errorf("contacts: %s: %w", id, apperr.ErrNotFound)
	}
	list = append(list[:i], list[i+1:]...)
	return s.save(ctx, list)
}

func (s *Store) Get(ctx context.Context, id string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return Contact{}, err
	}
	i := indexByID(list, id)
	if i < 0 {
		return Contact{}, fmt.Errorf("contacts: %s: %w", id, apperr.ErrNotFound)
	}
	return list[i], nil
}

// FindByPhone canonicalizes phone and returns the matching contact, if any.
func (s *Store) FindByPhone(ctx context.Context, phone string) (*Contact, error) {
	canonical := Canonicalize(phone)
	if canonical == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	i := indexByPhone(list, canonical, "")
	if i < 0 {
		return nil, nil
	}
	c := list[i]
	return &c, nil
}

// LookupName returns the contact name for phone, or "" when unknown.
func (s *Store) LookupName(ctx context.Context, phone string) (string, error) {
	c, err := s.FindByPhone(ctx, phone)
	if err != nil || c == nil {
		return "", err
	}
	return c.Name, nil
}

// Search matches query case-insensitively against name, phone, email and company.
// An empty query returns everything. Results are favorites first, then by name.
func (s *Store) Search(ctx context.Context, query string) ([]Contact, error) {
	s.mu.Lock()
	list, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Contact, 0, len(list))
	for _, c := range list {
		if q == "" || matches(c, q) {
			out = append(out, c)
		}
	}
	sortForDisplay(out)
	return out, nil
}

func matches(c Contact, q string) bool {
	for _, f := range []string{c.Name, c.Phone, c.Email, c.Company} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func sortForDisplay(list []Contact) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Favorite != b.Favorite {
			return a.Favorite
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
}

// RecordCall bumps call stats for the contact owning phone. Unknown numbers are ignored.
func (s *Store) RecordCall(ctx context.Context, phone string) error {
	canonical := Canonicalize(phone)
	if canonical == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexByPhone(list, canonical, "")
	if i < 0 {
		return nil
	}
	now := s.clock().UTC()
	list[i].CallCount++
	list[i].LastCall = &now
	list[i].UpdatedAt = now
	return s.save(ctx, list)
}

// ToggleFavorite flips the favorite flag and returns the updated contact.
func (s *Store) ToggleFavorite(ctx context.Context, id string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return Contact{}, err
	}
	i := indexByID(list, id)
	if i < 0 {
		return Contact{}, fmt.Errorf("contacts: %s: %w", id, apperr.ErrNotFound)
	}
	list[i].Favorite = !list[i].Favorite
	list[i].UpdatedAt = s.clock().UTC()
	if err := s.save(ctx, list); err != nil {
		return Contact{}, err
	}
	return list[i], nil
}

// Favorites returns favorite contacts by name.
func (s *Store) Favorites(ctx context.Context) ([]Contact, error) {
	all, err := s.Search(ctx, "")
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.Favorite {
			out = append(out, c)
		}
	}
	return out, nil
}

// Frequent returns up to limit contacts that have been called, most called first.
func (s *Store) Frequent(ctx context.Context, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 5
	}
	all, err := s.Search(ctx, "")
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.CallCount > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CallCount > out[j].CallCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Export returns the contact list as indented JSON.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	list, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Contact{}
	}
	return json.MarshalIndent(list, "", "  ")
}

// Import adds contacts from an exported JSON list. Invalid entries and phones
// already present are skipped; imported contacts get fresh ids and timestamps.
func (s *Store) Import(ctx context.Context, data []byte) (int, error) {
	var incoming []Contact
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, apperr.NewValidation("import data is not a contact list")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock().UTC()
	added := 0
	for _, c := range incoming {
		in, err := validate(Input{Name: c.Name, Phone: c.Phone, Email: c.Email, Company: c.Company, Notes: c.Notes})
		if err != nil || indexByPhone(list, in.Phone, "") >= 0 {
			continue
		}
		c.ID = s.newID()
		c.Name, c.Phone, c.Email, c.Company, c.Notes = in.Name, in.Phone, in.Email, in.Company, in.Notes
		if c.Avatar == "" {
			c.Avatar = defaultAvatar(c.Name)
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		list = append(list, c)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.save(ctx, list); err != nil {
		return 0, err
	}
	s.log.Info("contacts imported", "added", added, "skipped", len(incoming)-added)
	return added, nil
}
