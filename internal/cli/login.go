package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login [username]",
		Short: "Authenticate and store the session token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv(*configFile)
			if err != nil {
				return err
			}
			defer env.Close()

			username, password, err := promptCredentials(args)
			if err != nil {
				return err
			}

			token, err := env.Client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if err := env.Session.Establish(cmd.Context(), username, token); err != nil {
				return fmt.Errorf("persist session: %w", err)
			}

			fmt.Printf("Logged in as %s\n", username)
			return nil
		},
	}
}

func newRegisterCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "register [username]",
		Short: "Create an account and log in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv(*configFile)
			if err != nil {
				return err
			}
			defer env.Close()

			username, password, err := promptCredentials(args)
			if err != nil {
				return err
			}

			token, err := env.Client.Register(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if err := env.Session.Establish(cmd.Context(), username, token); err != nil {
				return fmt.Errorf("persist session: %w", err)
			}

			fmt.Printf("Registered and logged in as %s\n", username)
			return nil
		},
	}
}

func promptCredentials(args []string) (string, string, error) {
	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		fmt.Print("Username: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	return username, string(password), nil
}
