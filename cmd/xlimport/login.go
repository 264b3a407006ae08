// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cipl-app/xlimport/pkg/frappe"
)

var (
	loginKey    string
	loginSecret string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save API credentials for the site",
	Long: `Save API credentials for the site.

The key and secret are generated from the user's settings page on the
site ("API Access"). They are checked against the site before being saved
to ~/.xlimport/auth.json. Environment variables and the config file take
precedence over saved credentials.

Examples:
  xlimport login --site https://erp.example.com --key 1a2b3c --secret 4d5e6f
  xlimport login    # prompts for key and secret
`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove saved API credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := frappe.ClearAuth(frappe.AuthConfigPath()); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginKey, "key", "", "API key")
	loginCmd.Flags().StringVar(&loginSecret, "secret", "", "API secret")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

// userChecker is satisfied by *frappe.Client.
type userChecker interface {
	LoggedUser(ctx context.Context) (string, error)
}

func runLogin(cmd *cobra.Command, args []string) error {
	in := bufio.NewReader(os.Stdin)
	key, secret := loginKey, loginSecret
	if key == "" {
		key = promptLine(in, os.Stdout, "API key: ")
	}
	if secret == "" {
		secret = promptLine(in, os.Stdout, "API secret: ")
	}
	if key == "" || secret == "" {
		return errors.New("both an api key and an api secret are required")
	}

	cfg.APIKey, cfg.APISecret = key, secret
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	user, err := verifyLogin(ctx, client)
	if err != nil {
		return err
	}

	auth := &frappe.Auth{APIKey: key, APISecret: secret, User: user}
	if err := frappe.SaveAuth(frappe.AuthConfigPath(), auth); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	fmt.Printf("Logged in to %s as %s\n", cfg.SiteURL, user)
	return nil
}

// verifyLogin returns the user the credentials belong to.
func verifyLogin(ctx context.Context, api userChecker) (string, error) {
	user, err := api.LoggedUser(ctx)
	if err != nil {
		return "", fmt.Errorf("check credentials: %w", err)
	}
	if user == "" || user == "Guest" {
		return "", errors.New("the site did not accept the credentials")
	}
	return user, nil
}

func promptLine(in *bufio.Reader, out io.Writer, prompt string) string {
	fmt.Fprint(out, prompt)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}
