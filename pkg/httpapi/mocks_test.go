package httpapi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// memStore is an in-memory backend implementing Store and auth.Store
type memStore struct {
	mu sync.Mutex

	sessions map[string]model.Identity
	roles    map[model.Identity]model.Role
	profiles map[model.Identity]model.Profile
	accounts map[string]model.Account
	alerts   []model.Alert
	camps    []model.DonationCamp

	nextID int
	clock  time.Time
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]model.Identity),
		roles:    make(map[model.Identity]model.Role),
		profiles: make(map[model.Identity]model.Profile),
		accounts: make(map[string]model.Account),
		clock:    time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

// signIn registers a live session for identity with the given role
func (m *memStore) signIn(token string, identity model.Identity, role model.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = identity
	m.roles[identity] = role
	m.profiles[identity] = model.Profile{ID: identity, FullName: string(identity), Role: role}
}

func (m *memStore) addAlert(a model.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) LookupSession(ctx context.Context, token string) (model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.sessions[token]
	if !ok {
		return "", gateway.ErrAuthenticationRequired
	}
	return identity, nil
}

func (m *memStore) GetRole(ctx context.Context, identity model.Identity) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[identity]
	if !ok {
		return "", gateway.ErrNotFound
	}
	return role, nil
}

func (m *memStore) ListAlerts(ctx context.Context) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.Alert(nil), m.alerts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) CreateAlert(ctx context.Context, author model.Identity, fields model.AlertFields) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Minute)
	a := model.Alert{
		ID:         m.id("alert"),
		CreatedAt:  m.clock,
		AuthorID:   author,
		AuthorRole: string(m.roles[author]),
		BloodType:  fields.BloodType,
		Location:   fields.Location,
		Message:    fields.Message,
	}
	m.alerts = append(m.alerts, a)
	return a, nil
}

func (m *memStore) DeleteAlert(ctx context.Context, id string, acting model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.alerts {
		if a.ID != id {
			continue
		}
		if a.AuthorID != acting {
			return gateway.ErrPermissionDenied
		}
		m.alerts = append(m.alerts[:i], m.alerts[i+1:]...)
		return nil
	}
	return gateway.ErrNotFound
}

func (m *memStore) GetProfile(ctx context.Context, identity model.Identity) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[identity]
	if !ok {
		return model.Profile{}, gateway.ErrNotFound
	}
	return p, nil
}

func (m *memStore) SaveProfile(ctx context.Context, u model.ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[u.ID] = u.Role
	m.profiles[u.ID] = model.Profile{
		ID:               u.ID,
		FullName:         u.FullName,
		Role:             u.Role,
		BloodGroup:       u.BloodGroup,
		OrganizationID:   u.OrganizationID,
		OrganizationName: u.OrganizationName,
	}
	return nil
}

func (m *memStore) ListDonations(ctx context.Context, donor model.Identity) ([]model.Donation, error) {
	return nil, nil
}

func (m *memStore) ListDonors(ctx context.Context, f model.DonorFilter) ([]model.DonorSummary, error) {
	return nil, nil
}

func (m *memStore) ListVolunteers(ctx context.Context, organization model.Identity) ([]model.Person, error) {
	return nil, nil
}

func (m *memStore) SearchOrganizations(ctx context.Context, nameContains string) ([]model.Organization, error) {
	return []model.Organization{{ID: "org-1", Name: "Red Cross"}}, nil
}

func (m *memStore) ListCamps(ctx context.Context, f model.CampFilter) ([]model.DonationCamp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DonationCamp
	for _, c := range m.camps {
		if f.OrganizationID != "" && c.OrganizationID != f.OrganizationID {
			continue
		}
		if !f.From.IsZero() && c.Date.Before(f.From) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) GetCamp(ctx context.Context, id string) (model.DonationCamp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.camps {
		if c.ID == id {
			return c, nil
		}
	}
	return model.DonationCamp{}, gateway.ErrNotFound
}

func (m *memStore) InsertCamps(ctx context.Context, camps []model.DonationCamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.camps = append(m.camps, camps...)
	return nil
}

func (m *memStore) UpdateCamp(ctx context.Context, id string, owner model.Identity, f model.CampFields) (model.DonationCamp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.camps {
		if c.ID != id || c.OrganizationID != owner {
			continue
		}
		if f.Name != nil {
			c.Name = *f.Name
		}
		if f.Location != nil {
			c.Location = *f.Location
		}
		if f.Date != nil {
			c.Date = *f.Date
		}
		m.camps[i] = c
		return c, nil
	}
	return model.DonationCamp{}, gateway.ErrNotFound
}

func (m *memStore) DeleteCamp(ctx context.Context, id string, owner model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.camps {
		if c.ID == id && c.OrganizationID == owner {
			m.camps = append(m.camps[:i], m.camps[i+1:]...)
			return nil
		}
	}
	return gateway.ErrNotFound
}

func (m *memStore) CreateAccount(ctx context.Context, account model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.Email]; ok {
		return gateway.ErrEmailTaken
	}
	m.accounts[account.Email] = account
	return nil
}

func (m *memStore) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return model.Account{}, gateway.ErrNotFound
	}
	return a, nil
}

func (m *memStore) CreateSession(ctx context.Context, token string, account model.Identity, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = account
	return nil
}

func (m *memStore) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// fakeFeed hands the test the handlers of every subscription
type fakeFeed struct {
	mu         sync.Mutex
	handlers   []gateway.AlertHandlers
	closed     int
	subscribed chan struct{}
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subscribed: make(chan struct{}, 8)}
}

func (f *fakeFeed) SubscribeToAlertChanges(ctx context.Context, handlers gateway.AlertHandlers) (gateway.Subscription, error) {
	f.mu.Lock()
	f.handlers = append(f.handlers, handlers)
	f.mu.Unlock()
	f.subscribed <- struct{}{}
	return &fakeSubscription{feed: f}, nil
}

func (f *fakeFeed) emit(ev gateway.ChangeEvent) {
	f.mu.Lock()
	handlers := append([]gateway.AlertHandlers(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h.Dispatch(ev)
	}
}

func (f *fakeFeed) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSubscription struct {
	feed *fakeFeed
	once sync.Once
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() {
		s.feed.mu.Lock()
		s.feed.closed++
		s.feed.mu.Unlock()
	})
	return nil
}
