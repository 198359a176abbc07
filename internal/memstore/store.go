// Package memstore is an in-memory goGuard.Store for development servers and
// tests. All operations are serialized by one mutex, which also provides the
// row-lock semantics of UpdateAccount.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

// Store keeps accounts, password history, devices and incidents in maps.
type Store struct {
	mu        sync.Mutex
	accounts  map[string]*goGuard.Account
	history   map[string][]goGuard.PasswordHistoryEntry
	devices   map[string]*goGuard.Device
	incidents []goGuard.Incident
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts: map[string]*goGuard.Account{},
		history:  map[string][]goGuard.PasswordHistoryEntry{},
		devices:  map[string]*goGuard.Device{},
	}
}

var _ goGuard.Store = (*Store)(nil)

type tx struct {
	account *goGuard.Account
	history []goGuard.PasswordHistoryEntry
}

func (t *tx) Account() *goGuard.Account { return t.account }

func (t *tx) PasswordHistory(_ context.Context, limit int) ([]goGuard.PasswordHistoryEntry, error) {
	out := append([]goGuard.PasswordHistoryEntry(nil), t.history...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) AppendPasswordHistory(_ context.Context, entry goGuard.PasswordHistoryEntry, keep int) error {
	t.history = append([]goGuard.PasswordHistoryEntry{entry}, t.history...)
	if keep > 0 && len(t.history) > keep {
		t.history = t.history[:keep]
	}
	return nil
}

func clone(a *goGuard.Account) *goGuard.Account {
	c := *a
	return &c
}

func (s *Store) byUsername(username string) *goGuard.Account {
	for _, a := range s.accounts {
		if a.Username == username {
			return a
		}
	}
	return nil
}

func (s *Store) CreateAccount(_ context.Context, account *goGuard.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byUsername(account.Username) != nil {
		return goGuard.ErrAccountExists
	}
	s.accounts[account.ID] = clone(account)
	return nil
}

func (s *Store) AccountByID(_ context.Context, id string) (*goGuard.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, goGuard.ErrAccountNotFound
	}
	return clone(a), nil
}

func (s *Store) AccountByToken(_ context.Context, token string) (*goGuard.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		return nil, goGuard.ErrAccountNotFound
	}
	for _, a := range s.accounts {
		if a.Token == token {
			return clone(a), nil
		}
	}
	return nil, goGuard.ErrAccountNotFound
}

func (s *Store) update(a *goGuard.Account, fn func(goGuard.AccountTx) error) (*goGuard.Account, error) {
	t := &tx{account: clone(a), history: append([]goGuard.PasswordHistoryEntry(nil), s.history[a.ID]...)}
	if err := fn(t); err != nil {
		return nil, err
	}
	s.accounts[a.ID] = t.account
	s.history[a.ID] = t.history
	return clone(t.account), nil
}

func (s *Store) UpdateAccount(_ context.Context, id string, fn func(goGuard.AccountTx) error) (*goGuard.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, goGuard.ErrAccountNotFound
	}
	return s.update(a, fn)
}

func (s *Store) UpdateAccountByUsername(_ context.Context, username string, fn func(goGuard.AccountTx) error) (*goGuard.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.byUsername(username)
	if a == nil {
		return nil, goGuard.ErrAccountNotFound
	}
	return s.update(a, fn)
}

func (s *Store) AdminEmails(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.accounts {
		if a.IsAdmin() && !a.Disabled && a.Email != "" {
			out = append(out, a.Email)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeleteAccount(_ context.Context, id string, guard func(*goGuard.Account, int) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return goGuard.ErrAccountNotFound
	}
	admins := 0
	for _, other := range s.accounts {
		if other.IsAdmin() && !other.Disabled {
			admins++
		}
	}
	if guard != nil {
		if err := guard(clone(a), admins); err != nil {
			return err
		}
	}
	delete(s.accounts, id)
	delete(s.history, id)
	for devID, d := range s.devices {
		if d.AccountID == id {
			delete(s.devices, devID)
		}
	}
	return nil
}

func (s *Store) DeviceByFingerprint(_ context.Context, accountID, fingerprint string) (*goGuard.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.AccountID == accountID && d.Fingerprint == fingerprint {
			c := *d
			return &c, nil
		}
	}
	return nil, goGuard.ErrDeviceNotFound
}

func (s *Store) UpsertDevice(_ context.Context, device *goGuard.Device) (*goGuard.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.AccountID == device.AccountID && d.Fingerprint == device.Fingerprint {
			d.LoginCount++
			d.LastLoginAt = device.LastLoginAt
			d.LastLoginIP = device.LastLoginIP
			d.UserAgent = device.UserAgent
			c := *d
			return &c, nil
		}
	}
	c := *device
	c.LoginCount = 1
	c.Trusted = false
	c.Active = true
	s.devices[c.ID] = &c
	out := c
	return &out, nil
}

func (s *Store) ListDevices(_ context.Context, accountID string, activeOnly bool) ([]goGuard.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []goGuard.Device
	for _, d := range s.devices {
		if d.AccountID != accountID || (activeOnly && !d.Active) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastLoginAt.After(out[j].LastLoginAt) })
	return out, nil
}

func (s *Store) setDevice(accountID, deviceID string, fn func(*goGuard.Device)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok || d.AccountID != accountID {
		return goGuard.ErrDeviceNotFound
	}
	fn(d)
	return nil
}

func (s *Store) SetDeviceActive(_ context.Context, accountID, deviceID string, active bool) error {
	return s.setDevice(accountID, deviceID, func(d *goGuard.Device) { d.Active = active })
}

func (s *Store) SetDeviceTrusted(_ context.Context, accountID, deviceID string, trusted bool) error {
	return s.setDevice(accountID, deviceID, func(d *goGuard.Device) { d.Trusted = trusted })
}

func (s *Store) InsertIncident(_ context.Context, incident *goGuard.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, *incident)
	return nil
}

func (s *Store) ListIncidents(_ context.Context, f goGuard.IncidentFilter) ([]goGuard.Incident, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []goGuard.Incident
	for _, inc := range s.incidents {
		if matches(inc, f) {
			matched = append(matched, inc)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[f.Offset:]
		}
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func matches(inc goGuard.Incident, f goGuard.IncidentFilter) bool {
	switch {
	case !f.From.IsZero() && inc.CreatedAt.Before(f.From):
		return false
	case !f.To.IsZero() && inc.CreatedAt.After(f.To):
		return false
	case f.Type != "" && inc.Type != f.Type:
		return false
	case f.Severity != "" && inc.Severity != f.Severity:
		return false
	case f.Resolved != nil && inc.Resolved != *f.Resolved:
		return false
	}
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(inc.URL), q) ||
		strings.Contains(strings.ToLower(inc.IP), q) ||
		strings.Contains(strings.ToLower(inc.Description), q)
}

func (s *Store) ResolveIncident(_ context.Context, id, resolvedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.incidents {
		if s.incidents[i].ID == id {
			s.incidents[i].Resolved = true
			s.incidents[i].ResolvedBy = resolvedBy
			s.incidents[i].ResolvedAt = at
			return nil
		}
	}
	return goGuard.ErrIncidentNotFound
}

// Incidents returns a copy of every stored incident in insertion order.
func (s *Store) Incidents() []goGuard.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]goGuard.Incident(nil), s.incidents...)
}
