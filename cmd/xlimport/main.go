// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Command xlimport uploads Excel workbooks into a Frappe site through the
// cipl_app excel import and follows the import job to completion.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cipl-app/xlimport/internal/clierr"
	"github.com/cipl-app/xlimport/internal/config"
	"github.com/cipl-app/xlimport/pkg/frappe"
)

var (
	// BuildTag is set during build
	BuildTag = "dev"
	// BuildDate is set during build
	BuildDate = "unknown"
)

var (
	flagSite     string
	flagConfig   string
	flagLogLevel string

	// cfg is loaded once per invocation by the root command's pre-run hook.
	cfg *config.Config
	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "xlimport",
	Short: "Import Excel workbooks into a Frappe site",
	Long: `xlimport - import Excel workbooks into a Frappe site

xlimport drives the cipl_app Excel import:

  - Uploads a workbook (.xlsx or .xls) and previews how its columns map
  - Lets you choose whether to create new records and update existing ones
  - Starts the server-side import job and follows its progress live
  - Helps fill in field mappings with doctype and field search

Environment Variables:
  FRAPPE_URL              Site URL (e.g. https://erp.example.com)
  FRAPPE_API_KEY          API key of the importing user
  FRAPPE_API_SECRET       API secret of the importing user
  FRAPPE_REDIS_URL        Redis holding the site's realtime "events" channel
  FRAPPE_REALTIME_WS      Websocket URL relaying realtime events
  XLIMPORT_DISPLAY_DELAY  How long a finished import stays on screen (default 2s)
  XLIMPORT_STALL_TIMEOUT  Fail an import with no progress for this long (default 10m, 0 disables)
  LOG_LEVEL               debug, info, warn or error
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, clierr.Pretty(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSite, "site", "", "Frappe site URL (overrides FRAPPE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.xlimport/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	rootCmd.RegisterFlagCompletionFunc("log-level", completeLogLevels)

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("xlimport version %s (built %s)\n", BuildTag, BuildDate)
		},
	})

	// Add completion command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for xlimport.

Bash:
  $ source <(xlimport completion bash)
  # Or add to ~/.bashrc:
  $ xlimport completion bash >> ~/.bashrc

Zsh:
  $ source <(xlimport completion zsh)
  # Or install to fpath:
  $ xlimport completion zsh > "${fpath[1]}/_xlimport"

Fish:
  $ xlimport completion fish | source
  # Or install:
  $ xlimport completion fish > ~/.config/fish/completions/xlimport.fish

PowerShell:
  PS> xlimport completion powershell | Out-String | Invoke-Expression
`,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.ExactArgs(1),
		DisableFlagsInUseLine: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	})
}

// loadConfig reads config sources and applies the persistent flags.
func loadConfig() error {
	c, err := config.Load(config.Options{Path: flagConfig})
	if err != nil {
		return err
	}
	if flagSite != "" {
		c.SiteURL = flagSite
	}
	if flagLogLevel != "" {
		c.LogLevel = flagLogLevel
	}

	// Credentials saved by "xlimport login" fill in what config left empty.
	if c.APIKey == "" && c.APISecret == "" {
		if auth, err := frappe.LoadAuth(frappe.AuthConfigPath()); err == nil && auth.IsAuthenticated() {
			c.APIKey, c.APISecret = auth.APIKey, auth.APISecret
		}
	}

	log.SetOutput(os.Stderr)
	log.SetLevel(c.Level())
	cfg = c
	return nil
}

// newClient builds a Frappe client for the configured site.
func newClient() (*frappe.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	auth := &frappe.Auth{APIKey: cfg.APIKey, APISecret: cfg.APISecret}
	return frappe.NewClient(cfg.SiteURL, auth, frappe.WithTimeout(cfg.HTTPTimeout)), nil
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
