package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/auth"
	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/session"
	"github.com/jakechorley/donornet/pkg/utils"
)

// SignUpCmd creates the signUp command
func SignUpCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "signUp <email> <password> <confirm_password>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Auth.SignUp(app.Ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if err := saveSession(app, sess); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n✓ Account created for %s\n", sess.Email)
			printDestination(out, access.ResolveDestination(app.Ctx, app.Gateway(), app.Logger))
			return nil
		},
	}
}

// LoginCmd creates the login command
func LoginCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [email] [password]",
		Short: "Sign in with email and password, or with Google",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			google, _ := cmd.Flags().GetBool("google")

			if identity, err := app.Sessions.CurrentIdentity(app.Ctx); err == nil {
				fmt.Fprintf(out, "\n✓ Already signed in (%s)\n", identity)
				printDestination(out, access.ResolveDestination(app.Ctx, app.Gateway(), app.Logger))
				return nil
			}

			var (
				sess auth.Session
				err  error
			)
			switch {
			case google:
				sess, err = loginWithGoogle(app)
			case len(args) == 2:
				sess, err = app.Auth.Login(app.Ctx, args[0], args[1])
			default:
				return fmt.Errorf("email and password are required (or use --google)")
			}
			if err != nil {
				return err
			}
			if err := saveSession(app, sess); err != nil {
				return err
			}

			fmt.Fprintf(out, "\n✓ Signed in as %s\n", sess.Email)
			printDestination(out, access.ResolveDestination(app.Ctx, app.Gateway(), app.Logger))
			return nil
		},
	}

	cmd.Flags().Bool("google", false, "Sign in with a Google account")

	return cmd
}

func loginWithGoogle(app *AppContext) (auth.Session, error) {
	account, err := app.GoogleAccount()
	if err != nil {
		return auth.Session{}, err
	}
	email, err := account.Email(app.Ctx)
	if err != nil {
		return auth.Session{}, err
	}

	app.Logger.Debug("Google account verified", zap.String("email", email))
	return app.Auth.LoginWithProvider(app.Ctx, email, auth.ProviderGoogle)
}

func saveSession(app *AppContext, sess auth.Session) error {
	if err := app.Files.Save(&session.Saved{Token: sess.Token, Email: sess.Email, ExpiresAt: sess.ExpiresAt}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LogoutCmd creates the logout command
func LogoutCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			forgetGoogle, _ := cmd.Flags().GetBool("forget-google")

			if err := app.Auth.Logout(app.Ctx, app.Sessions.Token()); err != nil {
				// The local session goes regardless
				app.Logger.Warn("Failed to end session on the backend", zap.Error(err))
			}
			if err := app.Files.Delete(); err != nil {
				return fmt.Errorf("failed to remove saved session: %w", err)
			}
			if forgetGoogle {
				if err := utils.ForgetGoogleToken(app.Env); err != nil {
					return fmt.Errorf("failed to remove google token: %w", err)
				}
				app.google, app.sheets, app.gmail = nil, nil, nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "\n✓ Signed out")
			return nil
		},
	}

	cmd.Flags().Bool("forget-google", false, "Also remove the saved Google authorization")

	return cmd
}
