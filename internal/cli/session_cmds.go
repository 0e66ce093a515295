package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv(*configFile)
			if err != nil {
				return err
			}
			defer env.Close()

			restored, err := env.Session.Restore(cmd.Context())
			if err != nil {
				return err
			}
			if !restored {
				fmt.Println("No session stored.")
				return nil
			}

			env.Session.Clear()
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account behind the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv(*configFile)
			if err != nil {
				return err
			}
			defer env.Close()

			restored, err := env.Session.Restore(cmd.Context())
			if err != nil {
				return err
			}
			if !restored {
				return fmt.Errorf("not logged in")
			}

			user, err := env.Client.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println(user.Username)
			if user.Bio != "" {
				fmt.Println(user.Bio)
			}
			return nil
		},
	}
}
