package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/core/services"
)

// NotifyDonorsCmd creates the notifyDonors command
func NotifyDonorsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "notifyDonors <alert_id>",
		Short: "Email every donor whose blood group matches an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			d, ok := access.Authorize(app.Ctx, app.Gateway(), app.Logger, model.RoleOrganization, model.RoleAdmin)
			if !ok {
				if !d.Allowed {
					printDestination(out, d.Redirect)
					return nil
				}
				return fmt.Errorf("only organizations and admins can notify donors")
			}

			gmail, err := app.GmailClient()
			if err != nil {
				return err
			}

			result, err := services.NotifyDonors(app.Ctx, app.Backend, gmail, app.Logger, args[0])
			if err != nil {
				return err
			}

			// Display results
			fmt.Fprintf(out, "\n✓ Alert broadcast completed: %s blood at %s\n\n", result.Alert.BloodType, result.Alert.Location)

			if len(result.Sent) > 0 {
				fmt.Fprintf(out, "Emailed %d donors:\n", len(result.Sent))
				for _, s := range result.Sent {
					fmt.Fprintf(out, "  ✓ %s (%s)\n", s.DonorName, s.Email)
				}
				fmt.Fprintln(out)
			}

			if len(result.Failed) > 0 {
				fmt.Fprintf(out, "⚠️  Failed to send %d emails:\n", len(result.Failed))
				for _, f := range result.Failed {
					fmt.Fprintf(out, "  ✗ %s (%s): %s\n", f.DonorName, f.Email, f.Error)
				}
				fmt.Fprintln(out)
			}

			if len(result.Sent) == 0 && len(result.Failed) == 0 {
				fmt.Fprintln(out, "No donors with a matching blood group and an email address.")
			}

			return nil
		},
	}
}
