package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/cmd/cli/commands"
	"github.com/jakechorley/donornet/internal/config"
	"github.com/jakechorley/donornet/pkg/utils/logging"
)

var env string

func main() {
	app := &commands.AppContext{}

	rootCmd := &cobra.Command{
		Use:           "donornet",
		Short:         "DonorNet CLI - Coordinate blood donors, volunteers and organizations",
		Long:          `A CLI for blood donation coordination: sign in, land on your role's dashboard, follow emergency alerts live and manage donation camps.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(app)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
			if app.Logger != nil {
				_ = app.Logger.Sync()
			}
		},
	}

	// Add persistent environment flag
	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	_ = rootCmd.MarkPersistentFlagRequired("env")

	// Add all commands
	rootCmd.AddCommand(commands.SignUpCmd(app))
	rootCmd.AddCommand(commands.LoginCmd(app))
	rootCmd.AddCommand(commands.LogoutCmd(app))
	rootCmd.AddCommand(commands.RouteCmd(app))
	rootCmd.AddCommand(commands.DashboardCmd(app))
	rootCmd.AddCommand(commands.ProfileCmd(app))
	rootCmd.AddCommand(commands.CompleteProfileCmd(app))
	rootCmd.AddCommand(commands.AlertsCmd(app))
	rootCmd.AddCommand(commands.WatchAlertsCmd(app))
	rootCmd.AddCommand(commands.SubmitAlertCmd(app))
	rootCmd.AddCommand(commands.DeleteAlertCmd(app))
	rootCmd.AddCommand(commands.NotifyDonorsCmd(app))
	rootCmd.AddCommand(commands.RecordDonationCmd(app))
	rootCmd.AddCommand(commands.AssignVolunteerCmd(app))
	rootCmd.AddCommand(commands.ListCampsCmd(app))
	rootCmd.AddCommand(commands.CreateCampsCmd(app))
	rootCmd.AddCommand(commands.EditCampCmd(app))
	rootCmd.AddCommand(commands.DeleteCampCmd(app))
	rootCmd.AddCommand(commands.PublishCampsCmd(app))
	rootCmd.AddCommand(commands.MigrateCmd(app))
	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}

// initApp loads configuration, sets up the logger and connects to the backend
func initApp(app *commands.AppContext) error {
	app.Env = env
	app.Ctx = context.Background()

	cfg, err := config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Cfg = cfg

	app.Logger, err = logging.InitLogger(env, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger.Info("Starting application", zap.String("environment", env))
	app.Logger.Debug("Configuration loaded",
		zap.String("feed_driver", cfg.Feed.Driver),
		zap.Duration("session_ttl", cfg.SessionTTL))

	if err := app.Connect(); err != nil {
		return err
	}
	app.Logger.Debug("Application initialized")
	return nil
}
