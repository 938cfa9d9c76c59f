package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/aletheia/internal/auth"
)

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Save a bearer token for the backend",
	Long: "Save a bearer token to the token file. Without an argument the token is\n" +
		"read from stdin. Running chat sessions and the daemon pick it up.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			fmt.Fprint(os.Stderr, "Token: ")
			scanner := bufio.NewScanner(os.Stdin)
			if scanner.Scan() {
				token = scanner.Text()
			}
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return errors.New("no token given")
		}
		if exp, err := auth.Expiry(token); err == nil && !exp.After(time.Now()) {
			return fmt.Errorf("token expired at %s", exp.Format(time.RFC3339))
		}

		path := tokenPath(cfg)
		if err := auth.WriteTokenFile(path, token); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Token saved to %s.\n", path)
		if cfg.API.Token != "" {
			fmt.Fprintln(os.Stdout, "Note: api.token is set in the config and takes precedence.")
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved bearer token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := tokenPath(loadConfig())
		if err := auth.RemoveTokenFile(path); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		token, ok := newSupplier(cfg).Credential(cmd.Context())
		if !ok {
			fmt.Fprintln(os.Stdout, "Not signed in.")
			return nil
		}

		subject := auth.Subject(token)
		if subject == "" {
			subject = "(opaque token)"
		}
		fmt.Fprintf(os.Stdout, "Signed in as %s\n", subject)
		if exp, err := auth.Expiry(token); err == nil {
			fmt.Fprintf(os.Stdout, "Expires %s (in %s)\n", exp.Format(time.RFC3339), time.Until(exp).Round(time.Minute))
		}
		return nil
	},
}
