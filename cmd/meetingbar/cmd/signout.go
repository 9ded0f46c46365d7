package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and discard the stored session",
	Long: `Sign out of the configured provider.

The stored credential is deleted locally and revoked with the provider
where supported. Revocation failures are ignored: local state is gone
either way.`,
	RunE: runSignout,
}

func init() {
	rootCmd.AddCommand(signoutCmd)
}

func runSignout(cmd *cobra.Command, args []string) error {
	source, err := factory(appPrefs.Provider())
	if err != nil {
		return err
	}
	source.SignOut(cmd.Context())
	fmt.Printf("👋 Signed out of %s.\n", appPrefs.Provider())
	return nil
}
