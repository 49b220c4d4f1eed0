package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/core/alertsync"
	"github.com/jakechorley/donornet/pkg/core/model"
)

// openAlertScreen checks access and activates a synchronizer for the saved session.
// The caller must Deactivate it.
func openAlertScreen(ctx context.Context, app *AppContext, out io.Writer) (*alertsync.Synchronizer, model.Identity, bool) {
	d := access.CheckAccess(ctx, app.Gateway(), app.Logger)
	if !d.Allowed {
		printDestination(out, d.Redirect)
		return nil, "", false
	}

	screen := app.Synchronizer()
	if err := screen.Activate(ctx); err != nil {
		fmt.Fprintf(out, "⚠️  %v\n", err)
	}
	return screen, d.Identity, true
}

// AlertsCmd creates the alerts command
func AlertsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "List active emergency alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			screen, viewer, ok := openAlertScreen(app.Ctx, app, out)
			if !ok {
				return nil
			}
			defer screen.Deactivate()

			fmt.Fprintln(out)
			printAlerts(out, screen.Snapshot(), viewer)
			return nil
		},
	}
}

// WatchAlertsCmd creates the watchAlerts command
func WatchAlertsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watchAlerts",
		Short: "Follow emergency alerts live until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			d := access.CheckAccess(ctx, app.Gateway(), app.Logger)
			if !d.Allowed {
				printDestination(out, d.Redirect)
				return nil
			}

			bw := &blockWriter{w: out}
			screen := app.Synchronizer()
			screen.OnChange(func(alerts []model.Alert) {
				bw.block(func(w io.Writer) {
					fmt.Fprintf(w, "\n── %s ──\n", screen.State())
					printAlerts(w, alerts, d.Identity)
					if err := screen.Err(); err != nil {
						fmt.Fprintf(w, "⚠️  %v\n", err)
					}
				})
			})
			defer screen.Deactivate()

			if err := screen.Activate(ctx); err != nil {
				bw.printf("⚠️  %v\n", err)
			}

			bw.printf("\nWatching alerts, press Ctrl-C to stop\n")
			<-ctx.Done()

			if err := screen.Err(); err != nil {
				app.Logger.Warn("Alert screen closed with errors", zap.Error(err))
			}
			bw.printf("\n✓ Stopped watching\n")
			return nil
		},
	}
}

// SubmitAlertCmd creates the submitAlert command
func SubmitAlertCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submitAlert <blood_type> <location> <message>",
		Short: "Post an emergency blood request",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			alert, err := app.Synchronizer().Submit(app.Ctx, model.AlertFields{
				BloodType: args[0],
				Location:  args[1],
				Message:   args[2],
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Alert posted: %s blood needed at %s (id %s)\n\n", alert.BloodType, alert.Location, alert.ID)
			return nil
		},
	}
}

// DeleteAlertCmd creates the deleteAlert command
func DeleteAlertCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deleteAlert <alert_id>",
		Short: "Delete an alert you posted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			screen, _, ok := openAlertScreen(app.Ctx, app, out)
			if !ok {
				return nil
			}
			defer screen.Deactivate()

			if err := screen.Delete(app.Ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n✓ Alert %s deleted\n\n", args[0])
			return nil
		},
	}
}
