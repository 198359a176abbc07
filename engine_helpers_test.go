package goGuard

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testIP        = "10.0.0.1"
	testUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"
)

/*
====================================
FAKE STORE
====================================
*/

type fakeStore struct {
	mu        sync.Mutex
	accounts  map[string]*Account
	history   map[string][]PasswordHistoryEntry
	devices   map[string]*Device
	incidents []Incident

	updates           int
	insertIncidentErr error
	adminEmailsErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[string]*Account{},
		history:  map[string][]PasswordHistoryEntry{},
		devices:  map[string]*Device{},
	}
}

type fakeTx struct {
	store   *fakeStore
	account *Account
	history []PasswordHistoryEntry
}

func (tx *fakeTx) Account() *Account { return tx.account }

func (tx *fakeTx) PasswordHistory(_ context.Context, limit int) ([]PasswordHistoryEntry, error) {
	out := append([]PasswordHistoryEntry(nil), tx.history...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *fakeTx) AppendPasswordHistory(_ context.Context, entry PasswordHistoryEntry, keep int) error {
	tx.history = append([]PasswordHistoryEntry{entry}, tx.history...)
	if keep > 0 && len(tx.history) > keep {
		tx.history = tx.history[:keep]
	}
	return nil
}

func copyAccount(a *Account) *Account {
	c := *a
	return &c
}

func (s *fakeStore) CreateAccount(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == account.Username {
			return ErrAccountExists
		}
	}
	s.accounts[account.ID] = copyAccount(account)
	return nil
}

func (s *fakeStore) AccountByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (s *fakeStore) AccountByToken(_ context.Context, token string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Token != "" && a.Token == token {
			return copyAccount(a), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *fakeStore) update(a *Account, fn func(AccountTx) error) (*Account, error) {
	tx := &fakeTx{store: s, account: copyAccount(a), history: append([]PasswordHistoryEntry(nil), s.history[a.ID]...)}
	if err := fn(tx); err != nil {
		return nil, err
	}
	s.accounts[a.ID] = tx.account
	s.history[a.ID] = tx.history
	s.updates++
	return copyAccount(tx.account), nil
}

func (s *fakeStore) UpdateAccount(_ context.Context, id string, fn func(AccountTx) error) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return s.update(a, fn)
}

func (s *fakeStore) UpdateAccountByUsername(_ context.Context, username string, fn func(AccountTx) error) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return s.update(a, fn)
		}
	}
	return nil, ErrAccountNotFound
}

func (s *fakeStore) AdminEmails(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adminEmailsErr != nil {
		return nil, s.adminEmailsErr
	}
	var out []string
	for _, a := range s.accounts {
		if a.IsAdmin() && !a.Disabled && a.Email != "" {
			out = append(out, a.Email)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeStore) DeleteAccount(_ context.Context, id string, guard func(*Account, int) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	admins := 0
	for _, other := range s.accounts {
		if other.IsAdmin() && !other.Disabled {
			admins++
		}
	}
	if err := guard(copyAccount(a), admins); err != nil {
		return err
	}
	delete(s.accounts, id)
	delete(s.history, id)
	return nil
}

func (s *fakeStore) DeviceByFingerprint(_ context.Context, accountID, fingerprint string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.AccountID == accountID && d.Fingerprint == fingerprint {
			c := *d
			return &c, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (s *fakeStore) UpsertDevice(_ context.Context, device *Device) (*Device, error) {
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

func (s *fakeStore) ListDevices(_ context.Context, accountID string, activeOnly bool) ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Device
	for _, d := range s.devices {
		if d.AccountID != accountID || (activeOnly && !d.Active) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastLoginAt.After(out[j].LastLoginAt) })
	return out, nil
}

func (s *fakeStore) setDevice(accountID, deviceID string, fn func(*Device)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok || d.AccountID != accountID {
		return ErrDeviceNotFound
	}
	fn(d)
	return nil
}

func (s *fakeStore) SetDeviceActive(_ context.Context, accountID, deviceID string, active bool) error {
	return s.setDevice(accountID, deviceID, func(d *Device) { d.Active = active })
}

func (s *fakeStore) SetDeviceTrusted(_ context.Context, accountID, deviceID string, trusted bool) error {
	return s.setDevice(accountID, deviceID, func(d *Device) { d.Trusted = trusted })
}

func (s *fakeStore) InsertIncident(_ context.Context, incident *Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertIncidentErr != nil {
		return s.insertIncidentErr
	}
	s.incidents = append(s.incidents, *incident)
	return nil
}

func (s *fakeStore) ListIncidents(_ context.Context, f IncidentFilter) ([]Incident, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Incident
	for _, inc := range s.incidents {
		if !f.From.IsZero() && inc.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && inc.CreatedAt.After(f.To) {
			continue
		}
		if f.Type != "" && inc.Type != f.Type {
			continue
		}
		if f.Severity != "" && inc.Severity != f.Severity {
			continue
		}
		if f.Resolved != nil && inc.Resolved != *f.Resolved {
			continue
		}
		if f.Search != "" && !strings.Contains(inc.URL, f.Search) &&
			!strings.Contains(inc.IP, f.Search) && !strings.Contains(inc.Description, f.Search) {
			continue
		}
		matched = append(matched, inc)
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

func (s *fakeStore) ResolveIncident(_ context.Context, id, resolvedBy string, at time.Time) error {
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
	return ErrIncidentNotFound
}

func (s *fakeStore) account(t *testing.T, username string) *Account {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return copyAccount(a)
		}
	}
	t.Fatalf("account %q not found", username)
	return nil
}

func (s *fakeStore) mutate(username string, fn func(*Account)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			fn(a)
		}
	}
}

func (s *fakeStore) incidentsOf(typ IncidentType) []Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Incident
	for _, inc := range s.incidents {
		if inc.Type == typ {
			out = append(out, inc)
		}
	}
	return out
}

/*
====================================
FAKE CLOCK / NOTIFIER
====================================
*/

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *fakeNotifier) sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}

var codePattern = regexp.MustCompile(`<strong[^>]*>(\d+)</strong>`)

func (n *fakeNotifier) lastCode(t *testing.T) string {
	t.Helper()
	msgs := n.sent()
	if len(msgs) == 0 {
		t.Fatalf("no message sent")
	}
	m := codePattern.FindStringSubmatch(msgs[len(msgs)-1].HTML)
	if m == nil {
		t.Fatalf("no code in message body: %q", msgs[len(msgs)-1].HTML)
	}
	return m[1]
}

/*
====================================
HARNESS
====================================
*/

type harness struct {
	engine   *Engine
	store    *fakeStore
	clock    *fakeClock
	notifier *fakeNotifier
	mr       *miniredis.Miniredis
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newHarness(t *testing.T, mutators ...func(*Config)) *harness {
	t.Helper()
	return newHarnessWith(t, nil, mutators...)
}

func newHarnessWith(t *testing.T, configure func(*Builder), mutators ...func(*Config)) *harness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.Password.BcryptCost = 4
	for _, m := range mutators {
		m(&cfg)
	}

	h := &harness{
		store:    newFakeStore(),
		clock:    &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		notifier: &fakeNotifier{},
		mr:       mr,
	}
	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(h.store).
		WithClock(h.clock).
		WithNotifier(h.notifier)
	if configure != nil {
		configure(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *harness) addAccount(t *testing.T, username, pw, email string, role Role) *Account {
	t.Helper()
	a, err := h.engine.CreateAccount(context.Background(), CreateAccountRequest{
		Username: username,
		Password: pw,
		Email:    email,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s) failed: %v", username, err)
	}
	return a
}

func (h *harness) addAdmin(t *testing.T, username, pw, email string) *Account {
	t.Helper()
	return h.addAccount(t, username, pw, email, RoleAdmin)
}

func (h *harness) loginFrom(t *testing.T, username, pw, ip, ua string) *LoginResult {
	t.Helper()
	res, err := h.engine.Login(context.Background(), LoginRequest{
		Username:  username,
		Password:  pw,
		IP:        ip,
		UserAgent: ua,
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	return res
}

func (h *harness) login(t *testing.T, username, pw string) *LoginResult {
	t.Helper()
	return h.loginFrom(t, username, pw, testIP, testUserAgent)
}

func requireTwoFactorErr(t *testing.T, err error, want error) *TwoFactorError {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	var tfe *TwoFactorError
	if !errors.As(err, &tfe) {
		t.Fatalf("expected *TwoFactorError, got %T", err)
	}
	return tfe
}
