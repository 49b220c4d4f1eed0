package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// ProfileStore defines the database operations needed for the profile screen
type ProfileStore interface {
	GetProfile(ctx context.Context, identity model.Identity) (model.Profile, error)
	SaveProfile(ctx context.Context, update model.ProfileUpdate) error
}

// GetProfile returns the signed-in account's profile.
// An account that has never completed its profile comes back with only ID and Email.
func GetProfile(ctx context.Context, sessions gateway.Sessions, store ProfileStore, logger *zap.Logger) (model.Profile, error) {
	identity, err := sessions.CurrentIdentity(ctx)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to resolve session: %w", err)
	}

	logger.Debug("Fetching profile", zap.String("identity", string(identity)))
	profile, err := store.GetProfile(ctx, identity)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return profile, nil
}

// ValidateProfileUpdate checks a submitted profile and normalises it in place
func ValidateProfileUpdate(u *model.ProfileUpdate) error {
	u.FullName = strings.TrimSpace(u.FullName)
	u.BloodGroup = strings.ToUpper(strings.TrimSpace(u.BloodGroup))
	u.OrganizationName = strings.TrimSpace(u.OrganizationName)
	u.OrganizationID = model.Identity(strings.TrimSpace(string(u.OrganizationID)))

	if u.FullName == "" {
		return fmt.Errorf("%w: full name is required", gateway.ErrInvalidInput)
	}
	if u.Role == "" {
		return fmt.Errorf("%w: role is required", gateway.ErrInvalidInput)
	}
	if !slices.Contains(model.SelectableRoles, u.Role) {
		return fmt.Errorf("%w: role %q cannot be selected", gateway.ErrInvalidInput, u.Role)
	}

	switch u.Role {
	case model.RoleDonor:
		if !model.IsBloodGroup(u.BloodGroup) {
			return fmt.Errorf("%w: blood group must be one of %s", gateway.ErrInvalidInput, strings.Join(model.BloodGroups, ", "))
		}
	case model.RoleOrganization:
		if u.OrganizationName == "" {
			return fmt.Errorf("%w: organization name is required", gateway.ErrInvalidInput)
		}
	}
	return nil
}

// CompleteProfile saves the signed-in account's profile and returns the
// dashboard its role now routes to
func CompleteProfile(ctx context.Context, sessions gateway.Sessions, store ProfileStore, logger *zap.Logger, update model.ProfileUpdate) (model.Destination, error) {
	if err := ValidateProfileUpdate(&update); err != nil {
		return "", err
	}

	identity, err := sessions.CurrentIdentity(ctx)
	if err != nil {
		return model.DestinationLogin, fmt.Errorf("failed to resolve session: %w", err)
	}
	update.ID = identity

	logger.Debug("Saving profile",
		zap.String("identity", string(identity)),
		zap.String("role", string(update.Role)))

	if err := store.SaveProfile(ctx, update); err != nil {
		return "", fmt.Errorf("failed to save profile: %w", err)
	}

	destination, _ := model.DashboardFor(update.Role)
	logger.Info("Profile saved", zap.String("identity", string(identity)), zap.String("destination", string(destination)))
	return destination, nil
}
