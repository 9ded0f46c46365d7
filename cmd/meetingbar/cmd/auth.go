package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leits/MeetingBar-sub001/internal/auth"
	"github.com/leits/MeetingBar-sub001/internal/core"
)

var signOutOld bool

var authCmd = &cobra.Command{
	Use:   "auth [provider]",
	Short: "Sign in to your calendar provider",
	Long: `Sign in to your calendar provider using OAuth.

  1. Starts a local server to receive the OAuth callback
  2. Opens your browser to sign in
  3. Saves the session for future use

Without arguments the configured provider is used. Passing a provider
name (google, outlook) switches to it first: the calendar selection is
cleared and the new provider is signed in right away.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuth,
}

func init() {
	authCmd.Flags().BoolVar(&signOutOld, "signout-old", false, "sign out of the previous provider when switching")
	rootCmd.AddCommand(authCmd)
}

// managed is implemented by the OAuth-backed sources.
type managed interface {
	Manager() *auth.Manager
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(args) == 1 && args[0] != appPrefs.Provider() {
		if err := orch.SwitchProvider(ctx, args[0], signOutOld); err != nil {
			return describeAuthError(err)
		}
		fmt.Printf("✅ Switched to %s and signed in.\n", args[0])
		fmt.Println("\nRun 'meetingbar calendars' to pick the calendars to watch.")
		return nil
	}

	source, err := factory(appPrefs.Provider())
	if err != nil {
		return err
	}
	if err := source.SignIn(ctx); err != nil {
		return describeAuthError(err)
	}

	if m, ok := source.(managed); ok && m.Manager().Email() != "" {
		fmt.Printf("✅ Signed in to %s as %s.\n", appPrefs.Provider(), m.Manager().Email())
	} else {
		fmt.Printf("✅ Signed in to %s.\n", appPrefs.Provider())
	}
	fmt.Println("\nRun 'meetingbar calendars' to pick the calendars to watch.")
	return nil
}

func describeAuthError(err error) error {
	var authErr *core.AuthError
	if errors.As(err, &authErr) {
		switch authErr.Reason {
		case core.AuthCancelled:
			return errors.New("sign-in was cancelled")
		case core.AuthRefreshFailed:
			return fmt.Errorf("session could not be renewed, run 'meetingbar auth' again: %w", err)
		}
	}
	return err
}
