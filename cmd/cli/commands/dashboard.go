package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/core/services"
)

// RouteCmd creates the route command
func RouteCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "route",
		Short: "Show where the current session lands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printDestination(cmd.OutOrStdout(), access.ResolveDestination(app.Ctx, app.Gateway(), app.Logger))
			return nil
		},
	}
}

// DashboardCmd creates the dashboard command
func DashboardCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the dashboard for your role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			search, _ := cmd.Flags().GetString("search")
			out := cmd.OutOrStdout()

			d := access.CheckAccess(app.Ctx, app.Gateway(), app.Logger)
			if !d.Allowed {
				printDestination(out, d.Redirect)
				return nil
			}

			view, err := services.BuildDashboard(app.Ctx, app.Backend, app.Logger, d.Identity, d.Role, services.DashboardOptions{
				OrganizationQuery: search,
				Now:               time.Now(),
			})
			if err != nil {
				return err
			}

			printDashboard(out, view)
			return nil
		},
	}

	cmd.Flags().String("search", "", "Filter organizations by name (admin)")

	return cmd
}

func printDashboard(w io.Writer, d *services.Dashboard) {
	fmt.Fprintf(w, "\n%s dashboard: %s\n\n", d.Role, orDash(d.Profile.FullName))

	switch d.Role {
	case model.RoleDonor:
		fmt.Fprintf(w, "Blood group: %s\n", orDash(d.Profile.BloodGroup))
		fmt.Fprintf(w, "Volunteer:   %s\n\n", d.VolunteerName)
		fmt.Fprintf(w, "Donation history (%d):\n", len(d.Donations))
		if len(d.Donations) == 0 {
			fmt.Fprintln(w, "  (no donations yet)")
		}
		for _, dn := range d.Donations {
			fmt.Fprintf(w, "  %s  %-24s %d unit(s)\n", dn.DonationDate.Format(dateLayout), orDash(dn.CampName), dn.UnitsDonated)
		}

	case model.RoleVolunteer:
		fmt.Fprintf(w, "Organization: %s\n\n", d.OrganizationName)
		fmt.Fprintf(w, "Donors (%d):\n", len(d.Donors))
		for _, dn := range d.Donors {
			fmt.Fprintf(w, "  %-24s %-4s volunteer: %s\n", orDash(dn.FullName), dn.BloodGroup, orDash(dn.VolunteerName))
		}
		fmt.Fprintf(w, "\nUpcoming camps:\n")
		printCamps(w, d.Camps)

	case model.RoleOrganization:
		fmt.Fprintf(w, "Organization: %s (%s)\n\n", orDash(d.Profile.OrganizationName), d.Profile.ID)
		fmt.Fprintf(w, "Volunteers (%d):\n", len(d.Volunteers))
		for _, v := range d.Volunteers {
			fmt.Fprintf(w, "  %s (%s)\n", orDash(v.FullName), v.ID)
		}
		fmt.Fprintf(w, "\nCamps:\n")
		printCamps(w, d.Camps)

	case model.RoleAdmin:
		if d.OrganizationQuery != "" {
			fmt.Fprintf(w, "Organizations matching %q (%d):\n", d.OrganizationQuery, len(d.Organizations))
		} else {
			fmt.Fprintf(w, "Organizations (%d):\n", len(d.Organizations))
		}
		for _, o := range d.Organizations {
			fmt.Fprintf(w, "  %-32s %s\n", o.Name, o.ID)
		}
	}
	fmt.Fprintln(w)
}
