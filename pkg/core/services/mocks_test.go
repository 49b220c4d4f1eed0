package services

import (
	"context"
	"sort"
	"time"

	"github.com/jakechorley/donornet/pkg/clients/sheetsclient"
	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// mockSessions implements gateway.Sessions
type mockSessions struct {
	identity model.Identity
	err      error
}

func (m *mockSessions) CurrentIdentity(ctx context.Context) (model.Identity, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.identity == "" {
		return "", gateway.ErrAuthenticationRequired
	}
	return m.identity, nil
}

// mockStore is an in-memory store implementing every service store interface
type mockStore struct {
	profiles      map[model.Identity]model.Profile
	donations     map[model.Identity][]model.Donation
	donors        []model.DonorSummary
	volunteers    map[model.Identity][]model.Person
	camps         []model.DonationCamp
	organizations []model.Organization
	alerts        map[string]model.Alert

	saved        []model.ProfileUpdate
	campFilters  []model.CampFilter
	donorFilters []model.DonorFilter
	orgQueries   []string
	updated      []string
	deleted      []string
	recorded     []model.Donation
	assigned     map[model.Identity]model.Identity

	err error
}

func newMockStore() *mockStore {
	return &mockStore{
		profiles:   make(map[model.Identity]model.Profile),
		donations:  make(map[model.Identity][]model.Donation),
		volunteers: make(map[model.Identity][]model.Person),
		alerts:     make(map[string]model.Alert),
		assigned:   make(map[model.Identity]model.Identity),
	}
}

func (m *mockStore) GetProfile(ctx context.Context, identity model.Identity) (model.Profile, error) {
	if m.err != nil {
		return model.Profile{}, m.err
	}
	p, ok := m.profiles[identity]
	if !ok {
		return model.Profile{}, gateway.ErrNotFound
	}
	return p, nil
}

func (m *mockStore) SaveProfile(ctx context.Context, update model.ProfileUpdate) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, update)
	return nil
}

func (m *mockStore) ListDonations(ctx context.Context, donor model.Identity) ([]model.Donation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.donations[donor], nil
}

func (m *mockStore) ListDonors(ctx context.Context, f model.DonorFilter) ([]model.DonorSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.donorFilters = append(m.donorFilters, f)
	var out []model.DonorSummary
	for _, d := range m.donors {
		if f.BloodGroup != "" && d.BloodGroup != f.BloodGroup {
			continue
		}
		if f.VolunteerID != "" && d.VolunteerID != f.VolunteerID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *mockStore) ListVolunteers(ctx context.Context, organization model.Identity) ([]model.Person, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.volunteers[organization], nil
}

func (m *mockStore) ListCamps(ctx context.Context, f model.CampFilter) ([]model.DonationCamp, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.campFilters = append(m.campFilters, f)
	var out []model.DonationCamp
	for _, c := range m.camps {
		if f.OrganizationID != "" && c.OrganizationID != f.OrganizationID {
			continue
		}
		if !f.From.IsZero() && c.Date.Before(truncateDay(f.From)) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *mockStore) GetCamp(ctx context.Context, id string) (model.DonationCamp, error) {
	if m.err != nil {
		return model.DonationCamp{}, m.err
	}
	for _, c := range m.camps {
		if c.ID == id {
			return c, nil
		}
	}
	return model.DonationCamp{}, gateway.ErrNotFound
}

func (m *mockStore) InsertCamps(ctx context.Context, camps []model.DonationCamp) error {
	if m.err != nil {
		return m.err
	}
	m.camps = append(m.camps, camps...)
	return nil
}

func (m *mockStore) UpdateCamp(ctx context.Context, id string, owner model.Identity, f model.CampFields) (model.DonationCamp, error) {
	if m.err != nil {
		return model.DonationCamp{}, m.err
	}
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
		m.updated = append(m.updated, id)
		return c, nil
	}
	return model.DonationCamp{}, gateway.ErrNotFound
}

func (m *mockStore) DeleteCamp(ctx context.Context, id string, owner model.Identity) error {
	if m.err != nil {
		return m.err
	}
	for i, c := range m.camps {
		if c.ID == id && c.OrganizationID == owner {
			m.camps = append(m.camps[:i], m.camps[i+1:]...)
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return gateway.ErrNotFound
}

func (m *mockStore) SearchOrganizations(ctx context.Context, nameContains string) ([]model.Organization, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.orgQueries = append(m.orgQueries, nameContains)
	return m.organizations, nil
}

func (m *mockStore) GetOrganization(ctx context.Context, id model.Identity) (model.Organization, error) {
	if m.err != nil {
		return model.Organization{}, m.err
	}
	for _, o := range m.organizations {
		if o.ID == id {
			return o, nil
		}
	}
	return model.Organization{}, gateway.ErrNotFound
}

func (m *mockStore) GetAlert(ctx context.Context, id string) (model.Alert, error) {
	if m.err != nil {
		return model.Alert{}, m.err
	}
	a, ok := m.alerts[id]
	if !ok {
		return model.Alert{}, gateway.ErrNotFound
	}
	return a, nil
}

func (m *mockStore) InsertDonation(ctx context.Context, dn model.Donation) error {
	if m.err != nil {
		return m.err
	}
	m.recorded = append(m.recorded, dn)
	return nil
}

func (m *mockStore) AssignVolunteer(ctx context.Context, donor, volunteer model.Identity) error {
	if m.err != nil {
		return m.err
	}
	m.assigned[donor] = volunteer
	return nil
}

// mockEmailClient implements EmailClient
type mockEmailClient struct {
	sent    []string
	failFor map[string]error
}

func (m *mockEmailClient) SendEmail(to, subject, body string) error {
	if err, ok := m.failFor[to]; ok {
		return err
	}
	m.sent = append(m.sent, to)
	return nil
}

// mockPublisher implements CampsPublisher
type mockPublisher struct {
	spreadsheetID string
	published     *sheetsclient.PublishedCamps
	err           error
}

func (m *mockPublisher) PublishCamps(spreadsheetID string, published *sheetsclient.PublishedCamps) error {
	if m.err != nil {
		return m.err
	}
	m.spreadsheetID = spreadsheetID
	m.published = published
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string {
	return &s
}
