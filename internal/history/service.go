package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"softphone/internal/apperr"
	"softphone/internal/storage"

	"github.com/google/uuid"
)

const DefaultMaxEntries = 1000

// Directory resolves numbers against the address book.
type Directory interface {
	LookupName(ctx context.Context, phone string) (string, error)
	RecordCall(ctx context.Context, phone string) error
}

// Store is the call log, newest first, capped at max entries.
type Store struct {
	mu    sync.Mutex
	kv    storage.KV
	dir   Directory
	max   int
	log   *slog.Logger
	clock func() time.Time
	newID func() string
}

// NewStore builds the log. dir may be nil; maxEntries <= 0 uses DefaultMaxEntries.
func NewStore(kv storage.KV, dir Directory, maxEntries int, log *slog.Logger) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		kv:    kv,
		dir:   dir,
		max:   maxEntries,
		log:   log.With("component", "history"),
		clock: time.Now,
		newID: uuid.NewString,
	}
}

func (s *Store) load(ctx context.Context) ([]Entry, error) {
	b, ok, err := s.kv.Get(ctx, storage.KeyCallHistory)
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var out []Entry
	if err := json.Unmarshal(b, &out); err != nil {
		s.log.Warn("call history unreadable, starting empty", "err", err)
		return nil, nil
	}
	return out, nil
}

func (s *Store) save(ctx context.Context, list []Entry) error {
	b, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyCallHistory, b); err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	return nil
}

func (s *Store) snapshot(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Add records a call attempt at the head of the log and evicts the oldest entries past the cap.
func (s *Store) Add(ctx context.Context, in NewEntry) (Entry, error) {
	var violations []string
	if strings.TrimSpace(in.Number) == "" {
		violations = append(violations, "number is required")
	}
	if !in.Type.Valid() {
		violations = append(violations, fmt.Sprintf("type %q is not valid", in.Type))
	}
	if !in.Status.Valid() {
		violations = append(violations, fmt.Sprintf("status %q is not valid", in.Status))
	}
	if in.Duration < 0 {
		violations = append(violations, "duration must not be negative")
	}
	if len(violations) > 0 {
		return Entry{}, apperr.NewValidation(violations...)
	}

	e := Entry{
		ID:        s.newID(),
		Number:    strings.TrimSpace(in.Number),
		Type:      in.Type,
		Status:    in.Status,
		Duration:  in.Duration,
		Timestamp: in.Timestamp,
		Notes:     in.Notes,
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock()
	}
	if s.dir != nil {
		name, err := s.dir.LookupName(ctx, e.Number)
		if err != nil {
			s.log.Warn("contact lookup failed", "err", err)
		}
		e.ContactName = name
	}

	s.mu.Lock()
	list, err := s.load(ctx)
	if err == nil {
		list = append([]Entry{e}, list...)
		if len(list) > s.max {
			list = list[:s.max]
		}
		err = s.save(ctx, list)
	}
	s.mu.Unlock()
	if err != nil {
		return Entry{}, err
	}

	if s.dir != nil {
		if err := s.dir.RecordCall(ctx, e.Number); err != nil {
			s.log.Warn("contact call stats not updated", "err", err)
		}
	}
	return e, nil
}

// Update applies patch to entry id and stamps UpdatedAt.
func (s *Store) Update(ctx context.Context, id string, p Patch) (Entry, error) {
	if p.Type != nil && !p.Type.Valid() {
		return Entry{}, apperr.NewValidation(fmt.Sprintf("type %q is not valid", *p.Type))
	}
	if p.Status != nil && !p.Status.Valid() {
		return Entry{}, apperr.NewValidation(fmt.Sprintf("status %q is not valid", *p.Status))
	}
	if p.Duration != nil && *p.Duration < 0 {
		return Entry{}, apperr.NewValidation("duration must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	for i := range list {
		if list[i].ID != id {
			continue
		}
		e := &list[i]
		if p.Type != nil {
			e.Type = *p.Type
		}
		if p.Status != nil {
			e.Status = *p.Status
		}
		if p.Duration != nil {
			e.Duration = *p.Duration
		}
		if p.Notes != nil {
			e.Notes = *p.Notes
		}
		now := s.clock()
		e.UpdatedAt = &now
		if err := s.save(ctx, list); err != nil {
			return Entry{}, err
		}
		return *e, nil
	}
	return Entry{}, fmt.Errorf("history: %s: %w", id, apperr.ErrNotFound)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == id {
			list = append(list[:i], list[i+1:]...)
			return s.save(ctx, list)
		}
	}
	return fmt.Errorf("history: %s: %w", id, apperr.ErrNotFound)
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, storage.KeyCallHistory); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// List returns the whole log, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	list, err := s.snapshot(ctx)
	if list == nil && err == nil {
		list = []Entry{}
	}
	return list, err
}

// window is the [from, to] range for a time-based criterion.
type window struct{ from, to time.Time }

func (w window) contains(t time.Time) bool { return !t.Before(w.from) && !t.After(w.to) }

func windows(now time.Time) (today, week, month window) {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return window{midnight, now}, window{now.AddDate(0, 0, -7), now}, window{now.AddDate(0, -1, 0), now}
}

func isMissed(e Entry) bool { return e.Type == TypeMissed || e.Status == StatusMissed }

// Filter returns the entries matching c, newest first. Time windows are evaluated against the clock at call time.
func (s *Store) Filter(ctx context.Context, c Criterion) ([]Entry, error) {
	var match func(Entry) bool
	today, week, month := windows(s.clock())
	switch c {
	case FilterAll, "":
		match = func(Entry) bool { return true }
	case FilterIncoming:
		match = func(e Entry) bool { return e.Type == TypeIncoming }
	case FilterOutgoing:
		match = func(e Entry) bool { return e.Type == TypeOutgoing }
	case FilterMissed:
		match = isMissed
	case FilterToday:
		match = func(e Entry) bool { return today.contains(e.Timestamp) }
	case FilterWeek:
		match = func(e Entry) bool { return week.contains(e.Timestamp) }
	case FilterMonth:
		match = func(e Entry) bool { return month.contains(e.Timestamp) }
	default:
		return nil, apperr.NewValidation(fmt.Sprintf("unknown filter %q", c))
	}

	list, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(list))
	for _, e := range list {
		if match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Search matches query case-insensitively against number, contact name and notes.
func (s *Store) Search(ctx context.Context, query string) ([]Entry, error) {
	list, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Entry, 0, len(list))
	for _, e := range list {
		if q == "" ||
			strings.Contains(strings.ToLower(e.Number), q) ||
			strings.Contains(strings.ToLower(e.ContactName), q) ||
			strings.Contains(strings.ToLower(e.Notes), q) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Statistics summarizes the whole log. The average only counts calls that lasted.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	list, err := s.snapshot(ctx)
	if err != nil {
		return Statistics{}, err
	}
	today, week, month := windows(s.clock())

	var st Statistics
	timed := 0
	for _, e := range list {
		st.Total++
		switch e.Type {
		case TypeIncoming:
			st.Incoming++
		case TypeOutgoing:
			st.Outgoing++
		}
		if isMissed(e) {
			st.Missed++
		}
		if e.Duration > 0 {
			st.TotalDuration += e.Duration
			timed++
		}
		if today.contains(e.Timestamp) {
			st.Today++
		}
		if week.contains(e.Timestamp) {
			st.Week++
		}
		if month.contains(e.Timestamp) {
			st.Month++
		}
	}
	if timed > 0 {
		st.AverageDuration = int(math.Round(float64(st.TotalDuration) / float64(timed)))
	}
	return st, nil
}

// Recent returns the newest limit entries.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *Store) Missed(ctx context.Context) ([]Entry, error) {
	return s.Filter(ctx, FilterMissed)
}

// DailySummary buckets the last days local calendar days, oldest first.
func (s *Store) DailySummary(ctx context.Context, days int) ([]Day, error) {
	if days <= 0 {
		days = 7
	}
	list, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	loc := now.Location()

	out := make([]Day, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		key := now.AddDate(0, 0, -(days - 1 - i)).Format(time.DateOnly)
		out[i] = Day{Date: key}
		index[key] = i
	}
	for _, e := range list {
		i, ok := index[e.Timestamp.In(loc).Format(time.DateOnly)]
		if !ok {
			continue
		}
		d := &out[i]
		d.Total++
		switch e.Type {
		case TypeIncoming:
			d.Incoming++
		case TypeOutgoing:
			d.Outgoing++
		}
		if isMissed(e) {
			d.Missed++
		}
		d.Duration += e.Duration
	}
	return out, nil
}

// Export returns the log as indented JSON.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(list, "", "  ")
}

// Import merges an exported log. Entries already present (same number and timestamp)
// are skipped; the result is re-sorted newest first and capped.
func (s *Store) Import(ctx context.Context, data []byte) (int, error) {
	var incoming []Entry
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, apperr.NewValidation("import data is not a call list")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(list))
	key := func(e Entry) string { return e.Number + "|" + e.Timestamp.UTC().Format(time.RFC3339Nano) }
	for _, e := range list {
		seen[key(e)] = struct{}{}
	}

	added := 0
	for _, e := range incoming {
		if strings.TrimSpace(e.Number) == "" || !e.Type.Valid() || !e.Status.Valid() || e.Timestamp.IsZero() {
			continue
		}
		k := key(e)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		e.ID = s.newID()
		if e.Duration < 0 {
			e.Duration = 0
		}
		list = append(list, e)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.After(list[j].Timestamp) })
	if len(list) > s.max {
		list = list[:s.max]
	}
	if err := s.save(ctx, list); err != nil {
		return 0, err
	}
	return added, nil
}
