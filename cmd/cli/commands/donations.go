package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/core/services"
)

// RecordDonationCmd creates the recordDonation command
func RecordDonationCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordDonation <donor_id>",
		Short: "Record a donation in a donor's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			d, ok := access.Authorize(app.Ctx, app.Gateway(), app.Logger, model.RoleVolunteer, model.RoleOrganization, model.RoleAdmin)
			if !ok {
				if !d.Allowed {
					printDestination(out, d.Redirect)
					return nil
				}
				return fmt.Errorf("donors cannot record donations")
			}

			donation := services.NewDonation{Donor: model.Identity(args[0])}
			donation.CampID, _ = cmd.Flags().GetString("camp")
			donation.Units, _ = cmd.Flags().GetInt("units")
			donation.Notes, _ = cmd.Flags().GetString("notes")

			donation.Date = time.Now().UTC().Truncate(24 * time.Hour)
			if value, _ := cmd.Flags().GetString("date"); value != "" {
				date, err := parseDate("--date", value)
				if err != nil {
					return err
				}
				donation.Date = date
			}

			dn, err := services.RecordDonation(app.Ctx, app.Backend, app.Logger, d.Identity, d.Role, donation)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "✓ Recorded %d unit(s) for %s on %s (%s)\n", dn.UnitsDonated, dn.DonorID, dn.DonationDate.Format(dateLayout), dn.ID)
			return nil
		},
	}

	cmd.Flags().String("camp", "", "ID of the camp the donation was made at")
	cmd.Flags().String("date", "", "Donation date (YYYY-MM-DD, default today)")
	cmd.Flags().Int("units", 1, "Units donated")
	cmd.Flags().String("notes", "", "Free-text notes")

	return cmd
}

// AssignVolunteerCmd creates the assignVolunteer command
func AssignVolunteerCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assignVolunteer <donor_id> [volunteer_id]",
		Short: "Assign a volunteer to a donor, or unassign when no volunteer is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			d, ok := access.Authorize(app.Ctx, app.Gateway(), app.Logger, model.RoleOrganization, model.RoleAdmin)
			if !ok {
				if !d.Allowed {
					printDestination(out, d.Redirect)
					return nil
				}
				return fmt.Errorf("only organizations and admins assign volunteers")
			}

			donor := model.Identity(args[0])
			var volunteer model.Identity
			if len(args) == 2 {
				volunteer = model.Identity(args[1])
			}

			if err := services.AssignVolunteer(app.Ctx, app.Backend, app.Logger, d.Identity, d.Role, donor, volunteer); err != nil {
				return err
			}

			if volunteer == "" {
				fmt.Fprintf(out, "✓ %s is no longer assigned a volunteer\n", donor)
			} else {
				fmt.Fprintf(out, "✓ Assigned %s to %s\n", volunteer, donor)
			}
			return nil
		},
	}
}
