package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
)

// NotifyDonorsStore defines the database operations needed to broadcast an alert
type NotifyDonorsStore interface {
	GetAlert(ctx context.Context, id string) (model.Alert, error)
	ListDonors(ctx context.Context, f model.DonorFilter) ([]model.DonorSummary, error)
}

// EmailClient sends one email
type EmailClient interface {
	SendEmail(to, subject, body string) error
}

// SentEmail records a delivered alert email
type SentEmail struct {
	DonorName string
	Email     string
}

// FailedEmail records an alert email that could not be sent
type FailedEmail struct {
	DonorName string
	Email     string
	Error     string
}

// NotifyResult is the outcome of a broadcast
type NotifyResult struct {
	Alert  model.Alert
	Sent   []SentEmail
	Failed []FailedEmail
}

// NotifyDonors emails every donor whose blood group matches the alert.
// A failed send is recorded and the batch continues.
func NotifyDonors(
	ctx context.Context,
	store NotifyDonorsStore,
	mail EmailClient,
	logger *zap.Logger,
	alertID string,
) (*NotifyResult, error) {
	logger.Debug("Starting notifyDonors", zap.String("alert_id", alertID))

	alert, err := store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alert: %w", err)
	}

	bloodGroup := strings.ToUpper(strings.TrimSpace(alert.BloodType))
	donors, err := store.ListDonors(ctx, model.DonorFilter{BloodGroup: bloodGroup})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch donors: %w", err)
	}

	logger.Debug("Found matching donors", zap.String("blood_group", bloodGroup), zap.Int("count", len(donors)))

	result := &NotifyResult{Alert: alert}
	subject, body := alertEmail(alert)

	for _, donor := range donors {
		if !strings.EqualFold(donor.BloodGroup, bloodGroup) || donor.Email == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("broadcast interrupted: %w", err)
		}

		name := donor.FullName
		if name == "" {
			name = donor.Email
		}

		if err := mail.SendEmail(donor.Email, subject, fmt.Sprintf("Dear %s,\n\n%s", name, body)); err != nil {
			logger.Warn("Failed to email donor", zap.String("donor_id", string(donor.ID)), zap.Error(err))
			result.Failed = append(result.Failed, FailedEmail{DonorName: name, Email: donor.Email, Error: err.Error()})
			continue
		}
		result.Sent = append(result.Sent, SentEmail{DonorName: name, Email: donor.Email})
	}

	logger.Info("Alert broadcast finished",
		zap.String("alert_id", alertID),
		zap.Int("sent", len(result.Sent)),
		zap.Int("failed", len(result.Failed)))

	return result, nil
}

func alertEmail(alert model.Alert) (subject, body string) {
	subject = fmt.Sprintf("Urgent: %s blood needed at %s", alert.BloodType, alert.Location)
	body = fmt.Sprintf(
		"An emergency request for %s blood has been posted.\n\nLocation: %s\nPosted: %s\n\n%s\n\nIf you are able to donate, please get in touch with the location above as soon as possible.\n",
		alert.BloodType,
		alert.Location,
		alert.CreatedAt.Format("Mon Jan 02 2006 15:04 MST"),
		alert.Message,
	)
	return subject, body
}
