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

// requireOrganization returns the signed-in organization. ok is false when
// the caller was redirected instead.
func requireOrganization(app *AppContext, out io.Writer) (model.Identity, bool, error) {
	d, ok := access.Authorize(app.Ctx, app.Gateway(), app.Logger, model.RoleOrganization)
	if ok {
		return d.Identity, true, nil
	}
	if !d.Allowed {
		printDestination(out, d.Redirect)
		return "", false, nil
	}
	return "", false, fmt.Errorf("only organizations manage donation camps")
}

func fromFlag(cmd *cobra.Command) (time.Time, error) {
	from, _ := cmd.Flags().GetString("from")
	if from == "" {
		return time.Time{}, nil
	}
	return parseDate("--from", from)
}

// ListCampsCmd creates the listCamps command
func ListCampsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listCamps",
		Short: "List your organization's donation camps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			org, ok, err := requireOrganization(app, out)
			if !ok {
				return err
			}
			from, err := fromFlag(cmd)
			if err != nil {
				return err
			}

			camps, err := services.ListCamps(app.Ctx, app.Backend, app.Logger, org, from)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%d camps:\n", len(camps))
			printCamps(out, camps)
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().String("from", "", "Only camps on or after this date (YYYY-MM-DD)")

	return cmd
}

// CreateCampsCmd creates the createCamps command
func CreateCampsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createCamps <name> <location> <date>",
		Short: "Schedule a donation camp, or a recurring series with --rrule",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			org, ok, err := requireOrganization(app, out)
			if !ok {
				return err
			}

			date, err := parseDate("date", args[2])
			if err != nil {
				return err
			}
			rule, _ := cmd.Flags().GetString("rrule")
			if rule == "" {
				rule = app.Cfg.CampDefaults.RRule
			}

			camps, err := services.CreateCamps(app.Ctx, app.Backend, app.Logger, org, services.NewCamp{
				Name:     args[0],
				Location: args[1],
				Date:     date,
				RRule:    rule,
			}, app.Cfg.CampDefaults.MaxOccurrences)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\n✓ Created %d camps:\n", len(camps))
			printCamps(out, camps)
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().String("rrule", "", `Recurrence rule, e.g. "FREQ=MONTHLY;BYDAY=SA;BYSETPOS=1;COUNT=6"`)

	return cmd
}

// EditCampCmd creates the editCamp command
func EditCampCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "editCamp <camp_id>",
		Short: "Change a camp's name, location or date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			org, ok, err := requireOrganization(app, out)
			if !ok {
				return err
			}

			var fields model.CampFields
			if cmd.Flags().Changed("name") {
				name, _ := cmd.Flags().GetString("name")
				fields.Name = &name
			}
			if cmd.Flags().Changed("location") {
				location, _ := cmd.Flags().GetString("location")
				fields.Location = &location
			}
			if cmd.Flags().Changed("date") {
				value, _ := cmd.Flags().GetString("date")
				date, err := parseDate("--date", value)
				if err != nil {
					return err
				}
				fields.Date = &date
			}

			camp, err := services.EditCamp(app.Ctx, app.Backend, app.Logger, org, args[0], fields)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "\n✓ Camp updated:")
			printCamps(out, []model.DonationCamp{camp})
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().String("name", "", "New name")
	cmd.Flags().String("location", "", "New location")
	cmd.Flags().String("date", "", "New date (YYYY-MM-DD)")

	return cmd
}

// DeleteCampCmd creates the deleteCamp command
func DeleteCampCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deleteCamp <camp_id>",
		Short: "Cancel a donation camp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			org, ok, err := requireOrganization(app, out)
			if !ok {
				return err
			}

			if err := services.DeleteCamp(app.Ctx, app.Backend, app.Logger, org, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n✓ Camp %s deleted\n\n", args[0])
			return nil
		},
	}
}

// PublishCampsCmd creates the publishCamps command
func PublishCampsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publishCamps",
		Short: "Publish your organization's camp schedule to the camps sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			org, ok, err := requireOrganization(app, out)
			if !ok {
				return err
			}
			from, err := fromFlag(cmd)
			if err != nil {
				return err
			}
			if from.IsZero() {
				from = time.Now()
			}

			sheets, err := app.SheetsClient()
			if err != nil {
				return err
			}

			published, err := services.PublishCamps(app.Ctx, app.Backend, sheets, app.Cfg, app.Logger, org, from)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\n✓ Published %d camps to tab %q\n\n", len(published.Rows), published.TabTitle())
			return nil
		},
	}

	cmd.Flags().String("from", "", "First date to publish (YYYY-MM-DD, default today)")

	return cmd
}
