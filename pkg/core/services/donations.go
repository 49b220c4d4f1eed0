package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// DonationStore defines the database operations needed to record donations
// and link donors to volunteers
type DonationStore interface {
	GetProfile(ctx context.Context, identity model.Identity) (model.Profile, error)
	GetCamp(ctx context.Context, id string) (model.DonationCamp, error)
	InsertDonation(ctx context.Context, dn model.Donation) error
	AssignVolunteer(ctx context.Context, donor, volunteer model.Identity) error
}

// NewDonation describes a donation to record
type NewDonation struct {
	Donor  model.Identity
	CampID string
	Date   time.Time
	Units  int
	Notes  string
}

// RecordDonation adds a donation to a donor's history. recorderRole must be
// volunteer, organization or admin. An organization may only attach its own camps.
func RecordDonation(
	ctx context.Context,
	store DonationStore,
	logger *zap.Logger,
	recorder model.Identity,
	recorderRole model.Role,
	donation NewDonation,
) (model.Donation, error) {
	if recorder == "" {
		return model.Donation{}, gateway.ErrAuthenticationRequired
	}
	if recorderRole == model.RoleDonor || !recorderRole.IsValid() {
		return model.Donation{}, fmt.Errorf("%w: donors cannot record donations", gateway.ErrPermissionDenied)
	}
	if donation.Date.IsZero() {
		return model.Donation{}, fmt.Errorf("%w: date required", gateway.ErrInvalidInput)
	}
	if donation.Units < 1 {
		return model.Donation{}, fmt.Errorf("%w: units must be at least 1", gateway.ErrInvalidInput)
	}

	if err := requireRole(ctx, store, donation.Donor, model.RoleDonor); err != nil {
		return model.Donation{}, err
	}

	campID := strings.TrimSpace(donation.CampID)
	if campID != "" {
		camp, err := store.GetCamp(ctx, campID)
		if err != nil {
			return model.Donation{}, fmt.Errorf("failed to fetch camp: %w", err)
		}
		if recorderRole == model.RoleOrganization && camp.OrganizationID != recorder {
			return model.Donation{}, fmt.Errorf("%w: camp %s belongs to another organization", gateway.ErrPermissionDenied, campID)
		}
	}

	dn := model.Donation{
		ID:           uuid.New().String(),
		DonorID:      donation.Donor,
		CampID:       campID,
		DonationDate: donation.Date,
		UnitsDonated: donation.Units,
		Notes:        strings.TrimSpace(donation.Notes),
	}

	logger.Debug("Recording donation",
		zap.String("recorder", string(recorder)),
		zap.String("donor", string(dn.DonorID)),
		zap.String("camp_id", dn.CampID),
		zap.Int("units", dn.UnitsDonated))

	if err := store.InsertDonation(ctx, dn); err != nil {
		return model.Donation{}, fmt.Errorf("failed to record donation: %w", err)
	}
	return dn, nil
}

// AssignVolunteer links donor to volunteer, or unlinks when volunteer is empty.
// An organization may only assign its own volunteers.
func AssignVolunteer(
	ctx context.Context,
	store DonationStore,
	logger *zap.Logger,
	acting model.Identity,
	actingRole model.Role,
	donor, volunteer model.Identity,
) error {
	if acting == "" {
		return gateway.ErrAuthenticationRequired
	}
	if actingRole != model.RoleOrganization && actingRole != model.RoleAdmin {
		return fmt.Errorf("%w: only organizations and admins assign volunteers", gateway.ErrPermissionDenied)
	}

	if err := requireRole(ctx, store, donor, model.RoleDonor); err != nil {
		return err
	}

	if volunteer != "" {
		profile, err := store.GetProfile(ctx, volunteer)
		if err != nil {
			return fmt.Errorf("failed to fetch volunteer: %w", err)
		}
		if profile.Role != model.RoleVolunteer {
			return fmt.Errorf("%w: %s is not a volunteer", gateway.ErrInvalidInput, volunteer)
		}
		if actingRole == model.RoleOrganization && profile.OrganizationID != acting {
			return fmt.Errorf("%w: volunteer %s belongs to another organization", gateway.ErrPermissionDenied, volunteer)
		}
	}

	logger.Debug("Assigning volunteer",
		zap.String("donor", string(donor)),
		zap.String("volunteer", string(volunteer)))

	if err := store.AssignVolunteer(ctx, donor, volunteer); err != nil {
		return fmt.Errorf("failed to assign volunteer: %w", err)
	}
	return nil
}

func requireRole(ctx context.Context, store DonationStore, identity model.Identity, role model.Role) error {
	if identity == "" {
		return fmt.Errorf("%w: %s required", gateway.ErrInvalidInput, role)
	}
	profile, err := store.GetProfile(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", role, err)
	}
	if profile.Role != role {
		return fmt.Errorf("%w: %s is not a %s", gateway.ErrInvalidInput, identity, role)
	}
	return nil
}
