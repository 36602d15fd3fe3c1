package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/agenda/internal/kv"
	"github.com/teemow/agenda/internal/logging"
)

// StorageKey is the kv key holding the persisted account list.
const StorageKey = "accounts"

// Store owns the list of connected accounts.
//
// All methods are safe for concurrent use. Every successful mutation writes
// the full account list back to the underlying kv.Store before returning.
// Upserts that change nothing are not written.
type Store struct {
	mu       sync.RWMutex
	accounts []Account
	kv       kv.Store
	logger   *slog.Logger
}

// NewStore creates an empty store backed by kvs. Call Init to load state.
func NewStore(kvs kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kvs, logger: logger}
}

// Init loads the persisted accounts. A missing key yields an empty store.
func (s *Store) Init(ctx context.Context) error {
	data, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		s.mu.Lock()
		s.accounts = nil
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	var accounts []Account
	if len(data) > 0 {
		if err := json.Unmarshal(data, &accounts); err != nil {
			return fmt.Errorf("failed to decode accounts: %w", err)
		}
	}

	s.mu.Lock()
	s.accounts = accounts
	s.mu.Unlock()

	s.logger.Debug("Loaded accounts", "count", len(accounts))
	return nil
}

// List returns copies of all accounts in insertion order.
func (s *Store) List() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	return out
}

// Get returns a copy of the account with the given id.
func (s *Store) Get(id string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.index(id); i >= 0 {
		return s.accounts[i].Clone(), true
	}
	return Account{}, false
}

// Upsert inserts a new account or replaces an existing one with the same ID.
//
// Calendars are merged by ID: an existing calendar keeps its Visible flag
// while adopting the incoming metadata, a new calendar starts with Visible
// equal to Selected, and calendars missing from the incoming list are
// dropped. A nil incoming Calendars slice leaves the stored calendars alone.
func (s *Store) Upsert(ctx context.Context, acc Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshot()
	acc = acc.Clone()

	i := indexIn(next, acc.ID)
	if i < 0 {
		acc.Calendars = mergeCalendars(nil, acc.Calendars)
		next = append(next, acc)
	} else {
		if acc.Calendars == nil {
			acc.Calendars = next[i].Calendars
		} else {
			acc.Calendars = mergeCalendars(next[i].Calendars, acc.Calendars)
		}
		if next[i].Equal(acc) {
			return nil
		}
		next[i] = acc
	}

	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.accounts = next

	logging.WithAccount(s.logger, acc.ID).Debug("Stored account",
		logging.UserHash(acc.Email),
		logging.Status(string(acc.Status.State)),
		"calendars", len(acc.Calendars))
	return nil
}

// Remove deletes the account with the given id. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return nil
	}

	next := s.snapshot()
	next = append(next[:i], next[i+1:]...)
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.accounts = next
	return nil
}

// ToggleCalendarVisibility flips the Visible flag of one calendar.
// Unknown accounts or calendars are a no-op.
func (s *Store) ToggleCalendarVisibility(ctx context.Context, accountID, calendarID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(accountID)
	if i < 0 {
		return nil
	}

	next := s.snapshot()
	found := false
	for j := range next[i].Calendars {
		if next[i].Calendars[j].ID == calendarID {
			next[i].Calendars[j].Visible = !next[i].Calendars[j].Visible
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.accounts = next
	return nil
}

// HandleRefresh returns a listener that upserts every broadcast account.
// Persistence errors are logged, since listeners cannot return errors.
func (s *Store) HandleRefresh(ctx context.Context) func(Account) {
	return func(acc Account) {
		if err := s.Upsert(ctx, acc); err != nil {
			logging.WithAccount(s.logger, acc.ID).Error("Failed to store refreshed account",
				logging.UserHash(acc.Email),
				logging.Err(err))
		}
	}
}

func (s *Store) persist(ctx context.Context, accounts []Account) error {
	if accounts == nil {
		accounts = []Account{}
	}
	data, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to encode accounts: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	return nil
}

// snapshot returns a deep copy so a failed persist leaves state untouched.
// Callers must hold s.mu.
func (s *Store) snapshot() []Account {
	out := make([]Account, len(s.accounts))
	for i, a := range s.accounts {
		out[i] = a.Clone()
	}
	return out
}

func (s *Store) index(id string) int {
	return indexIn(s.accounts, id)
}

func indexIn(accounts []Account, id string) int {
	for i, a := range accounts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func mergeCalendars(existing, incoming []CalendarConfig) []CalendarConfig {
	if incoming == nil {
		return nil
	}
	visible := make(map[string]bool, len(existing))
	for _, c := range existing {
		visible[c.ID] = c.Visible
	}

	out := make([]CalendarConfig, 0, len(incoming))
	for _, c := range incoming {
		if v, ok := visible[c.ID]; ok {
			c.Visible = v
		} else {
			c.Visible = c.Selected
		}
		out = append(out, c)
	}
	return out
}
