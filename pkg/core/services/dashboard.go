package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// NotAssigned is shown in place of a missing volunteer or organization
const NotAssigned = "Not Assigned"

// DashboardStore defines the database operations needed to build any dashboard
type DashboardStore interface {
	GetProfile(ctx context.Context, identity model.Identity) (model.Profile, error)
	ListDonations(ctx context.Context, donor model.Identity) ([]model.Donation, error)
	ListDonors(ctx context.Context, f model.DonorFilter) ([]model.DonorSummary, error)
	ListVolunteers(ctx context.Context, organization model.Identity) ([]model.Person, error)
	ListCamps(ctx context.Context, f model.CampFilter) ([]model.DonationCamp, error)
	SearchOrganizations(ctx context.Context, nameContains string) ([]model.Organization, error)
}

// Dashboard is the content of one role's landing screen.
// Only the sections for Role are populated.
type Dashboard struct {
	Role    model.Role    `json:"role"`
	Profile model.Profile `json:"profile"`

	// donor
	VolunteerName string           `json:"volunteerName,omitempty"`
	Donations     []model.Donation `json:"donations,omitempty"`

	// volunteer
	OrganizationName string               `json:"organizationName,omitempty"`
	Donors           []model.DonorSummary `json:"donors,omitempty"`

	// volunteer (upcoming for their organization) and organization (all of its own)
	Camps []model.DonationCamp `json:"camps,omitempty"`

	// organization
	Volunteers []model.Person `json:"volunteers,omitempty"`

	// admin
	OrganizationQuery string               `json:"organizationQuery,omitempty"`
	Organizations     []model.Organization `json:"organizations,omitempty"`
}

// DashboardOptions tune what BuildDashboard fetches
type DashboardOptions struct {
	// OrganizationQuery filters the admin organization search by name
	OrganizationQuery string
	// Now anchors "upcoming" camps; zero means time.Now()
	Now time.Time
}

// BuildDashboard assembles the dashboard for an identity whose role has already
// been resolved by the access gate
func BuildDashboard(
	ctx context.Context,
	store DashboardStore,
	logger *zap.Logger,
	identity model.Identity,
	role model.Role,
	opts DashboardOptions,
) (*Dashboard, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("cannot build dashboard: %w", gateway.ErrRoleUnresolved)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	logger.Debug("Building dashboard", zap.String("identity", string(identity)), zap.String("role", string(role)))

	profile, err := store.GetProfile(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	d := &Dashboard{Role: role, Profile: profile}

	switch role {
	case model.RoleDonor:
		err = buildDonorDashboard(ctx, store, d)
	case model.RoleVolunteer:
		err = buildVolunteerDashboard(ctx, store, d, now)
	case model.RoleOrganization:
		err = buildOrganizationDashboard(ctx, store, d, identity)
	case model.RoleAdmin:
		d.OrganizationQuery = opts.OrganizationQuery
		d.Organizations, err = store.SearchOrganizations(ctx, opts.OrganizationQuery)
		if err != nil {
			err = fmt.Errorf("failed to search organizations: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Dashboard built",
		zap.String("role", string(role)),
		zap.Int("donations", len(d.Donations)),
		zap.Int("donors", len(d.Donors)),
		zap.Int("camps", len(d.Camps)),
		zap.Int("volunteers", len(d.Volunteers)),
		zap.Int("organizations", len(d.Organizations)))

	return d, nil
}

func buildDonorDashboard(ctx context.Context, store DashboardStore, d *Dashboard) error {
	d.VolunteerName = NotAssigned
	if d.Profile.VolunteerID != "" {
		volunteer, err := store.GetProfile(ctx, d.Profile.VolunteerID)
		switch {
		case err == nil && volunteer.FullName != "":
			d.VolunteerName = volunteer.FullName
		case err != nil && !errors.Is(err, gateway.ErrNotFound):
			return fmt.Errorf("failed to fetch assigned volunteer: %w", err)
		}
	}

	donations, err := store.ListDonations(ctx, d.Profile.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch donations: %w", err)
	}
	d.Donations = donations
	return nil
}

func buildVolunteerDashboard(ctx context.Context, store DashboardStore, d *Dashboard, now time.Time) error {
	d.OrganizationName = d.Profile.OrganizationName
	if d.OrganizationName == "" {
		d.OrganizationName = NotAssigned
	}

	donors, err := store.ListDonors(ctx, model.DonorFilter{})
	if err != nil {
		return fmt.Errorf("failed to fetch donors: %w", err)
	}
	d.Donors = donors

	if d.Profile.OrganizationID == "" {
		return nil
	}
	camps, err := store.ListCamps(ctx, model.CampFilter{OrganizationID: d.Profile.OrganizationID, From: now})
	if err != nil {
		return fmt.Errorf("failed to fetch upcoming camps: %w", err)
	}
	d.Camps = camps
	return nil
}

func buildOrganizationDashboard(ctx context.Context, store DashboardStore, d *Dashboard, identity model.Identity) error {
	volunteers, err := store.ListVolunteers(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to fetch volunteers: %w", err)
	}
	d.Volunteers = volunteers

	camps, err := store.ListCamps(ctx, model.CampFilter{OrganizationID: identity})
	if err != nil {
		return fmt.Errorf("failed to fetch camps: %w", err)
	}
	d.Camps = camps
	return nil
}
