package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/core/services"
)

// ProfileCmd creates the profile command
func ProfileCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := services.GetProfile(app.Ctx, app.Sessions, app.Backend, app.Logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nEmail: %s\n", orDash(p.Email))
			fmt.Fprintf(out, "Name:  %s\n", orDash(p.FullName))
			fmt.Fprintf(out, "Role:  %s\n", orDash(string(p.Role)))
			switch p.Role {
			case model.RoleDonor:
				fmt.Fprintf(out, "Blood group: %s\n", orDash(p.BloodGroup))
			case model.RoleVolunteer:
				fmt.Fprintf(out, "Organization: %s (%s)\n", orDash(p.OrganizationName), orDash(string(p.OrganizationID)))
			case model.RoleOrganization:
				fmt.Fprintf(out, "Organization name: %s\n", orDash(p.OrganizationName))
			}
			if !p.Role.IsValid() {
				fmt.Fprintln(out, "\n⚠️  Profile incomplete: run completeProfile to choose a role")
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

// CompleteProfileCmd creates the completeProfile command
func CompleteProfileCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completeProfile <full_name> <role>",
		Short: "Set your name and role (" + selectableRoles() + ")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bloodGroup, _ := cmd.Flags().GetString("blood-group")
			orgID, _ := cmd.Flags().GetString("organization-id")
			orgName, _ := cmd.Flags().GetString("organization-name")

			dest, err := services.CompleteProfile(app.Ctx, app.Sessions, app.Backend, app.Logger, model.ProfileUpdate{
				FullName:         args[0],
				Role:             model.Role(strings.ToLower(strings.TrimSpace(args[1]))),
				BloodGroup:       bloodGroup,
				OrganizationID:   model.Identity(orgID),
				OrganizationName: orgName,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "\n✓ Profile saved")
			printDestination(out, dest)
			return nil
		},
	}

	cmd.Flags().String("blood-group", "", "Blood group, required for donors ("+strings.Join(model.BloodGroups, " ")+")")
	cmd.Flags().String("organization-id", "", "Organization you volunteer for (volunteer)")
	cmd.Flags().String("organization-name", "", "Organization name (organization, or volunteer display name)")

	return cmd
}

func selectableRoles() string {
	names := make([]string, len(model.SelectableRoles))
	for i, r := range model.SelectableRoles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
