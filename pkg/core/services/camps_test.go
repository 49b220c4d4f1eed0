package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

func TestCreateCamps(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("single camp", func(t *testing.T) {
		store := newMockStore()
		camps, err := CreateCamps(ctx, store, logger, "org-1", NewCamp{
			Name:     "  Spring Drive ",
			Location: "Town Hall",
			Date:     date(2025, 4, 5),
		}, 12)
		require.NoError(t, err)

		require.Len(t, camps, 1)
		assert.NotEmpty(t, camps[0].ID)
		assert.Equal(t, "Spring Drive", camps[0].Name)
		assert.Equal(t, model.Identity("org-1"), camps[0].OrganizationID)
		assert.Equal(t, camps, store.camps)
	})

	t.Run("recurring camps", func(t *testing.T) {
		store := newMockStore()
		camps, err := CreateCamps(ctx, store, logger, "org-1", NewCamp{
			Name:     "Monthly Drive",
			Location: "Town Hall",
			Date:     date(2025, 1, 4),
			RRule:    "FREQ=MONTHLY;BYDAY=SA;BYSETPOS=1;COUNT=3",
		}, 12)
		require.NoError(t, err)

		require.Len(t, camps, 3)
		assert.Equal(t, date(2025, 1, 4), camps[0].Date)
		assert.Equal(t, date(2025, 2, 1), camps[1].Date)
		assert.Equal(t, date(2025, 3, 1), camps[2].Date)
		assert.NotEqual(t, camps[0].ID, camps[1].ID)
	})

	tests := []struct {
		name             string
		camp             NewCamp
		expectedContains string
	}{
		{"missing everything", NewCamp{}, "name, location, date required"},
		{"blank name", NewCamp{Name: " ", Location: "x", Date: date(2025, 1, 1)}, "name required"},
		{"invalid rule", NewCamp{Name: "x", Location: "y", Date: date(2025, 1, 1), RRule: "FREQ=SOMETIMES"}, "invalid recurrence rule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			_, err := CreateCamps(ctx, store, logger, "org-1", tt.camp, 12)
			require.Error(t, err)
			assert.ErrorIs(t, err, gateway.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.expectedContains)
			assert.Empty(t, store.camps)
		})
	}
}

func TestExpandOccurrences(t *testing.T) {
	start := date(2025, 1, 5)

	t.Run("open-ended rule is capped", func(t *testing.T) {
		dates, err := ExpandOccurrences(start, "FREQ=WEEKLY", 4)
		require.NoError(t, err)
		assert.Equal(t, []time.Time{date(2025, 1, 5), date(2025, 1, 12), date(2025, 1, 19), date(2025, 1, 26)}, dates)
	})

	t.Run("count above the cap is capped", func(t *testing.T) {
		dates, err := ExpandOccurrences(start, "FREQ=DAILY;COUNT=500", 10)
		require.NoError(t, err)
		assert.Len(t, dates, 10)
	})

	t.Run("until bounds the series", func(t *testing.T) {
		dates, err := ExpandOccurrences(start, "RRULE:FREQ=WEEKLY;UNTIL=20250120T000000Z", 10)
		require.NoError(t, err)
		assert.Equal(t, []time.Time{date(2025, 1, 5), date(2025, 1, 12), date(2025, 1, 19)}, dates)
	})
}

func TestEditCamp(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	newStore := func() *mockStore {
		store := newMockStore()
		store.camps = []model.DonationCamp{
			{ID: "c-1", Name: "Spring", Location: "Hall", Date: date(2025, 4, 5), OrganizationID: "org-1"},
		}
		return store
	}

	t.Run("owner edits", func(t *testing.T) {
		store := newStore()
		camp, err := EditCamp(ctx, store, logger, "org-1", "c-1", model.CampFields{Location: strPtr("Library")})
		require.NoError(t, err)
		assert.Equal(t, "Library", camp.Location)
		assert.Equal(t, "Spring", camp.Name)
	})

	t.Run("other organization is refused before writing", func(t *testing.T) {
		store := newStore()
		_, err := EditCamp(ctx, store, logger, "org-2", "c-1", model.CampFields{Name: strPtr("Mine")})
		assert.ErrorIs(t, err, gateway.ErrPermissionDenied)
		assert.Empty(t, store.updated)
	})

	t.Run("missing camp", func(t *testing.T) {
		_, err := EditCamp(ctx, newStore(), logger, "org-1", "c-9", model.CampFields{Name: strPtr("x")})
		assert.ErrorIs(t, err, gateway.ErrNotFound)
	})

	t.Run("nothing to update", func(t *testing.T) {
		_, err := EditCamp(ctx, newStore(), logger, "org-1", "c-1", model.CampFields{})
		assert.ErrorIs(t, err, gateway.ErrInvalidInput)
	})

	t.Run("blank name", func(t *testing.T) {
		_, err := EditCamp(ctx, newStore(), logger, "org-1", "c-1", model.CampFields{Name: strPtr("  ")})
		assert.ErrorIs(t, err, gateway.ErrInvalidInput)
	})
}

func TestDeleteCamp(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	store := newMockStore()
	store.camps = []model.DonationCamp{
		{ID: "c-1", OrganizationID: "org-1"},
		{ID: "c-2", OrganizationID: "org-2"},
	}

	assert.ErrorIs(t, DeleteCamp(ctx, store, logger, "org-1", "c-2"), gateway.ErrPermissionDenied)
	assert.ErrorIs(t, DeleteCamp(ctx, store, logger, "", "c-1"), gateway.ErrPermissionDenied)
	require.NoError(t, DeleteCamp(ctx, store, logger, "org-1", "c-1"))
	assert.Equal(t, []string{"c-1"}, store.deleted)
	assert.ErrorIs(t, DeleteCamp(ctx, store, logger, "org-1", "c-1"), gateway.ErrNotFound)
}

func TestListCamps(t *testing.T) {
	store := newMockStore()
	store.camps = []model.DonationCamp{
		{ID: "c-2", Date: date(2025, 5, 1), OrganizationID: "org-1"},
		{ID: "c-1", Date: date(2025, 3, 1), OrganizationID: "org-1"},
		{ID: "c-x", Date: date(2025, 4, 1), OrganizationID: "org-2"},
	}

	camps, err := ListCamps(context.Background(), store, zap.NewNop(), "org-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1", "c-2"}, campIDs(camps))

	camps, err = ListCamps(context.Background(), store, zap.NewNop(), "org-1", date(2025, 4, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"c-2"}, campIDs(camps))
}
