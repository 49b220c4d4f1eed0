package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// CampStore defines the database operations needed to manage donation camps
type CampStore interface {
	ListCamps(ctx context.Context, f model.CampFilter) ([]model.DonationCamp, error)
	GetCamp(ctx context.Context, id string) (model.DonationCamp, error)
	InsertCamps(ctx context.Context, camps []model.DonationCamp) error
	UpdateCamp(ctx context.Context, id string, owner model.Identity, f model.CampFields) (model.DonationCamp, error)
	DeleteCamp(ctx context.Context, id string, owner model.Identity) error
}

// NewCamp describes a camp, or a recurring series of camps, to create
type NewCamp struct {
	Name     string
	Location string
	Date     time.Time
	// RRule optionally repeats the camp, e.g. "FREQ=MONTHLY;BYDAY=SA;BYSETPOS=1".
	// Date is the first occurrence.
	RRule string
}

// CreateCamps creates one camp per occurrence, all owned by organization.
// Recurrences without COUNT or UNTIL, and longer ones, stop at maxOccurrences.
func CreateCamps(
	ctx context.Context,
	store CampStore,
	logger *zap.Logger,
	organization model.Identity,
	camp NewCamp,
	maxOccurrences int,
) ([]model.DonationCamp, error) {
	camp.Name = strings.TrimSpace(camp.Name)
	camp.Location = strings.TrimSpace(camp.Location)

	var missing []string
	if camp.Name == "" {
		missing = append(missing, "name")
	}
	if camp.Location == "" {
		missing = append(missing, "location")
	}
	if camp.Date.IsZero() {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s required", gateway.ErrInvalidInput, strings.Join(missing, ", "))
	}
	if organization == "" {
		return nil, gateway.ErrAuthenticationRequired
	}

	dates := []time.Time{camp.Date}
	if strings.TrimSpace(camp.RRule) != "" {
		var err error
		dates, err = ExpandOccurrences(camp.Date, camp.RRule, maxOccurrences)
		if err != nil {
			return nil, err
		}
	}

	camps := make([]model.DonationCamp, len(dates))
	for i, date := range dates {
		camps[i] = model.DonationCamp{
			ID:             uuid.New().String(),
			Name:           camp.Name,
			Location:       camp.Location,
			Date:           date,
			OrganizationID: organization,
		}
	}

	logger.Debug("Creating camps",
		zap.String("organization", string(organization)),
		zap.String("name", camp.Name),
		zap.Int("occurrences", len(camps)))

	if err := store.InsertCamps(ctx, camps); err != nil {
		return nil, fmt.Errorf("failed to create camps: %w", err)
	}
	return camps, nil
}

// ExpandOccurrences returns the dates of a recurrence starting at start,
// at most max of them
func ExpandOccurrences(start time.Time, rule string, max int) ([]time.Time, error) {
	if max <= 0 {
		max = 1
	}

	opt, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid recurrence rule: %v", gateway.ErrInvalidInput, err)
	}
	opt.Dtstart = start
	if opt.Count == 0 && opt.Until.IsZero() {
		opt.Count = max
	}

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid recurrence rule: %v", gateway.ErrInvalidInput, err)
	}

	var dates []time.Time
	next := r.Iterator()
	for len(dates) < max {
		date, ok := next()
		if !ok {
			break
		}
		dates = append(dates, date)
	}

	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: recurrence rule produces no dates", gateway.ErrInvalidInput)
	}
	return dates, nil
}

// ListCamps returns an organization's camps, earliest first.
// A non-zero from hides camps before that date.
func ListCamps(ctx context.Context, store CampStore, logger *zap.Logger, organization model.Identity, from time.Time) ([]model.DonationCamp, error) {
	logger.Debug("Listing camps", zap.String("organization", string(organization)))
	camps, err := store.ListCamps(ctx, model.CampFilter{OrganizationID: organization, From: from})
	if err != nil {
		return nil, fmt.Errorf("failed to list camps: %w", err)
	}
	return camps, nil
}

// EditCamp updates the given fields of a camp owned by organization
func EditCamp(
	ctx context.Context,
	store CampStore,
	logger *zap.Logger,
	organization model.Identity,
	id string,
	fields model.CampFields,
) (model.DonationCamp, error) {
	if fields.Empty() {
		return model.DonationCamp{}, fmt.Errorf("%w: nothing to update", gateway.ErrInvalidInput)
	}
	if fields.Name != nil && strings.TrimSpace(*fields.Name) == "" {
		return model.DonationCamp{}, fmt.Errorf("%w: name cannot be blank", gateway.ErrInvalidInput)
	}
	if fields.Location != nil && strings.TrimSpace(*fields.Location) == "" {
		return model.DonationCamp{}, fmt.Errorf("%w: location cannot be blank", gateway.ErrInvalidInput)
	}

	if err := checkCampOwner(ctx, store, organization, id); err != nil {
		return model.DonationCamp{}, err
	}

	logger.Debug("Editing camp", zap.String("camp_id", id))
	camp, err := store.UpdateCamp(ctx, id, organization, fields)
	if err != nil {
		return model.DonationCamp{}, fmt.Errorf("failed to update camp: %w", err)
	}
	return camp, nil
}

// DeleteCamp deletes a camp owned by organization
func DeleteCamp(ctx context.Context, store CampStore, logger *zap.Logger, organization model.Identity, id string) error {
	if err := checkCampOwner(ctx, store, organization, id); err != nil {
		return err
	}

	logger.Debug("Deleting camp", zap.String("camp_id", id))
	if err := store.DeleteCamp(ctx, id, organization); err != nil {
		return fmt.Errorf("failed to delete camp: %w", err)
	}
	return nil
}

// checkCampOwner fails with ErrPermissionDenied before any write when the
// camp belongs to another organization. The store re-checks on write.
func checkCampOwner(ctx context.Context, store CampStore, organization model.Identity, id string) error {
	camp, err := store.GetCamp(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch camp: %w", err)
	}
	if organization == "" || camp.OrganizationID != organization {
		return fmt.Errorf("%w: camp %s belongs to another organization", gateway.ErrPermissionDenied, id)
	}
	return nil
}
