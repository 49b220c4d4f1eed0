package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/donornet/internal/config"
	"github.com/jakechorley/donornet/pkg/clients/sheetsclient"
	"github.com/jakechorley/donornet/pkg/core/model"
)

// PublishCampsStore defines the database operations needed to publish a camp schedule
type PublishCampsStore interface {
	GetOrganization(ctx context.Context, id model.Identity) (model.Organization, error)
	ListCamps(ctx context.Context, f model.CampFilter) ([]model.DonationCamp, error)
}

// CampsPublisher writes a schedule to a spreadsheet
type CampsPublisher interface {
	PublishCamps(spreadsheetID string, published *sheetsclient.PublishedCamps) error
}

// PublishCamps publishes an organization's camps from the given date onwards
// to the configured camps spreadsheet
func PublishCamps(
	ctx context.Context,
	store PublishCampsStore,
	publisher CampsPublisher,
	cfg *config.Config,
	logger *zap.Logger,
	organization model.Identity,
	from time.Time,
) (*sheetsclient.PublishedCamps, error) {
	if cfg.CampsSheetID == "" {
		return nil, fmt.Errorf("campsSheetID is not configured")
	}

	logger.Debug("Starting publishCamps", zap.String("organization", string(organization)))

	org, err := store.GetOrganization(ctx, organization)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch organization: %w", err)
	}

	camps, err := store.ListCamps(ctx, model.CampFilter{OrganizationID: organization, From: from})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch camps: %w", err)
	}

	published := &sheetsclient.PublishedCamps{OrganizationName: org.Name}
	for _, camp := range camps {
		published.Rows = append(published.Rows, sheetsclient.PublishedCampRow{
			CampID:   camp.ID,
			Date:     camp.Date.Format("Mon Jan 02 2006"),
			Name:     camp.Name,
			Location: camp.Location,
		})
	}

	logger.Debug("Publishing camps", zap.String("tab", published.TabTitle()), zap.Int("rows", len(published.Rows)))

	if err := publisher.PublishCamps(cfg.CampsSheetID, published); err != nil {
		return nil, fmt.Errorf("failed to publish camps: %w", err)
	}

	logger.Info("Camps published", zap.String("tab", published.TabTitle()), zap.Int("rows", len(published.Rows)))
	return published, nil
}
