package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

func TestValidateProfileUpdate(t *testing.T) {
	tests := []struct {
		name             string
		update           model.ProfileUpdate
		expectedContains string
	}{
		{"valid donor", model.ProfileUpdate{FullName: "Ada", Role: model.RoleDonor, BloodGroup: " o- "}, ""},
		{"valid volunteer without organization", model.ProfileUpdate{FullName: "Ben", Role: model.RoleVolunteer}, ""},
		{"valid organization", model.ProfileUpdate{FullName: "Cy", Role: model.RoleOrganization, OrganizationName: "Red Cross"}, ""},
		{"missing name", model.ProfileUpdate{FullName: "  ", Role: model.RoleDonor, BloodGroup: "A+"}, "full name is required"},
		{"missing role", model.ProfileUpdate{FullName: "Ada"}, "role is required"},
		{"admin not selectable", model.ProfileUpdate{FullName: "Ada", Role: model.RoleAdmin}, "cannot be selected"},
		{"unknown role", model.ProfileUpdate{FullName: "Ada", Role: "superuser"}, "cannot be selected"},
		{"donor without blood group", model.ProfileUpdate{FullName: "Ada", Role: model.RoleDonor}, "blood group must be one of"},
		{"donor with invalid blood group", model.ProfileUpdate{FullName: "Ada", Role: model.RoleDonor, BloodGroup: "C+"}, "blood group must be one of"},
		{"organization without name", model.ProfileUpdate{FullName: "Cy", Role: model.RoleOrganization}, "organization name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.update
			err := ValidateProfileUpdate(&u)
			if tt.expectedContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, gateway.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.expectedContains)
		})
	}

	t.Run("normalises", func(t *testing.T) {
		u := model.ProfileUpdate{FullName: "  Ada Lovelace ", Role: model.RoleDonor, BloodGroup: "ab+"}
		require.NoError(t, ValidateProfileUpdate(&u))
		assert.Equal(t, "Ada Lovelace", u.FullName)
		assert.Equal(t, "AB+", u.BloodGroup)
	})
}

func TestCompleteProfile(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("saves and routes to the role dashboard", func(t *testing.T) {
		store := newMockStore()
		sessions := &mockSessions{identity: "u-1"}

		dest, err := CompleteProfile(ctx, sessions, store, logger, model.ProfileUpdate{
			ID:         "someone-else",
			FullName:   "Ada",
			Role:       model.RoleDonor,
			BloodGroup: "O+",
		})
		require.NoError(t, err)
		assert.Equal(t, model.DestinationDonorDashboard, dest)

		require.Len(t, store.saved, 1)
		assert.Equal(t, model.Identity("u-1"), store.saved[0].ID, "identity comes from the session, not the request")
		assert.Equal(t, "O+", store.saved[0].BloodGroup)
	})

	t.Run("invalid input never reaches the backend", func(t *testing.T) {
		store := newMockStore()
		sessions := &mockSessions{identity: "u-1"}

		_, err := CompleteProfile(ctx, sessions, store, logger, model.ProfileUpdate{FullName: "Ada", Role: model.RoleAdmin})
		assert.ErrorIs(t, err, gateway.ErrInvalidInput)
		assert.Empty(t, store.saved)
	})

	t.Run("no session", func(t *testing.T) {
		store := newMockStore()

		dest, err := CompleteProfile(ctx, &mockSessions{}, store, logger, model.ProfileUpdate{FullName: "Ben", Role: model.RoleVolunteer})
		assert.ErrorIs(t, err, gateway.ErrAuthenticationRequired)
		assert.Equal(t, model.DestinationLogin, dest)
		assert.Empty(t, store.saved)
	})

	t.Run("store failure", func(t *testing.T) {
		store := newMockStore()
		store.err = gateway.ErrTransient

		_, err := CompleteProfile(ctx, &mockSessions{identity: "u-1"}, store, logger, model.ProfileUpdate{FullName: "Ben", Role: model.RoleVolunteer})
		assert.ErrorIs(t, err, gateway.ErrTransient)
	})
}

func TestGetProfile(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	store.profiles["u-1"] = model.Profile{ID: "u-1", Email: "a@b.com", FullName: "Ada", Role: model.RoleDonor, BloodGroup: "A-"}

	profile, err := GetProfile(ctx, &mockSessions{identity: "u-1"}, store, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "A-", profile.BloodGroup)

	_, err = GetProfile(ctx, &mockSessions{}, store, zap.NewNop())
	assert.ErrorIs(t, err, gateway.ErrAuthenticationRequired)
}
