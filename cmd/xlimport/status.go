// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cipl-app/xlimport/pkg/frappe"
	"github.com/cipl-app/xlimport/pkg/realtime"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection status and realtime setup",
	Long: `Show xlimport connection status and realtime setup.

Displays:
  - Site connection status (Offline/Online/Connected)
  - The user the API key belongs to
  - Which realtime source import progress is read from, and whether it answers
  - Display delay and stall timeout

Examples:
  xlimport status
  xlimport status --json
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd)
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}

// StatusInfo holds status information for display
type StatusInfo struct {
	Mode         string        `json:"mode"` // "offline", "online", "connected"
	User         string        `json:"user,omitempty"`
	Site         string        `json:"site"`
	Realtime     *RealtimeInfo `json:"realtime,omitempty"`
	DisplayDelay string        `json:"display_delay"`
	StallTimeout string        `json:"stall_timeout"`
}

// RealtimeInfo describes the configured progress source
type RealtimeInfo struct {
	Source string `json:"source"` // "redis", "websocket"
	Target string `json:"target"`
	Status string `json:"status"` // "reachable", "unreachable", "unchecked"
	Error  string `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	status := StatusInfo{
		Mode:         frappe.Offline.String(),
		Site:         cfg.SiteURL,
		DisplayDelay: formatDuration(cfg.DisplayDelay),
		StallTimeout: "off",
	}
	if cfg.StallTimeout > 0 {
		status.StallTimeout = formatDuration(cfg.StallTimeout)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	if cfg.SiteURL != "" {
		client, err := newClient()
		if err != nil {
			return err
		}
		mode, user := client.CurrentMode(ctx)
		status.Mode = mode.String()
		status.User = user
	}
	status.Realtime = checkRealtime(ctx)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	// Human-readable output
	printStatus(os.Stdout, status)
	return nil
}

// checkRealtime reports the configured source. Only Redis can be checked
// without joining the feed.
func checkRealtime(ctx context.Context) *RealtimeInfo {
	switch {
	case cfg.RedisURL != "":
		info := &RealtimeInfo{Source: "redis", Target: redactURL(cfg.RedisURL), Status: "reachable"}
		src, err := realtime.NewRedisSource(cfg.RedisURL, realtime.NewBus(), log)
		if err == nil {
			err = src.Ping(ctx)
			src.Close()
		}
		if err != nil {
			info.Status = "unreachable"
			info.Error = err.Error()
		}
		return info
	case cfg.RealtimeWS != "":
		return &RealtimeInfo{Source: "websocket", Target: redactURL(cfg.RealtimeWS), Status: "unchecked"}
	}
	return nil
}

// redactURL drops credentials from a connection url.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}

func printStatus(w io.Writer, s StatusInfo) {
	// Mode indicator
	switch s.Mode {
	case "connected":
		fmt.Fprintf(w, "Site:       \033[32m●\033[0m Connected to %s", s.Site)
		if s.User != "" {
			fmt.Fprintf(w, " (%s)", s.User)
		}
		fmt.Fprintln(w)
	case "online":
		fmt.Fprintf(w, "Site:       \033[33m○\033[0m Online (not authenticated) %s\n", s.Site)
		fmt.Fprintln(w, "            Run: xlimport login")
	default:
		if s.Site == "" {
			fmt.Fprintln(w, "Site:       \033[31m○\033[0m Not configured")
			fmt.Fprintln(w, "            Set FRAPPE_URL or pass --site")
		} else {
			fmt.Fprintf(w, "Site:       \033[31m○\033[0m Offline %s\n", s.Site)
		}
	}

	// Realtime info
	if s.Realtime == nil {
		fmt.Fprintln(w, "Realtime:   (none, imports can only be previewed)")
		fmt.Fprintln(w, "            Set FRAPPE_REDIS_URL or FRAPPE_REALTIME_WS")
	} else {
		switch s.Realtime.Status {
		case "reachable":
			fmt.Fprintf(w, "Realtime:   \033[32m●\033[0m %s %s\n", s.Realtime.Source, s.Realtime.Target)
		case "unreachable":
			fmt.Fprintf(w, "Realtime:   \033[31m○\033[0m %s %s (%s)\n", s.Realtime.Source, s.Realtime.Target, s.Realtime.Error)
		default:
			fmt.Fprintf(w, "Realtime:   \033[33m○\033[0m %s %s (not checked)\n", s.Realtime.Source, s.Realtime.Target)
		}
	}

	fmt.Fprintf(w, "Timing:     completed imports close after %s, stall timeout %s\n", s.DisplayDelay, s.StallTimeout)
}
