// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

// Doctype completion cache (avoid repeated API calls during tab-complete)
var (
	cachedDoctypes     []string
	doctypeCacheExpiry time.Time
	doctypeCacheMu     sync.Mutex
)

// listDoctypes fetches the importable doctypes; tests replace it.
var listDoctypes = func(ctx context.Context) ([]string, error) {
	if cfg == nil {
		// Completion runs without the root pre-run hook.
		if err := loadConfig(); err != nil {
			return nil, err
		}
	}
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	return client.SearchDoctypes(ctx, "", 0, 100)
}

// completeDoctypes returns the site's importable doctypes
func completeDoctypes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	doctypeCacheMu.Lock()
	defer doctypeCacheMu.Unlock()

	// Return cache if fresh (3 second TTL)
	if time.Now().Before(doctypeCacheExpiry) && len(cachedDoctypes) > 0 {
		return filterPrefix(cachedDoctypes, toComplete), cobra.ShellCompDirectiveNoFileComp
	}

	// Quick timeout for completion - don't block shell
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	doctypes, err := listDoctypes(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	cachedDoctypes = doctypes
	doctypeCacheExpiry = time.Now().Add(3 * time.Second)

	return filterPrefix(doctypes, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeDoctypeArg completes the first positional argument only.
func completeDoctypeArg(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completeDoctypes(cmd, args, toComplete)
}

// completeLogLevels returns the levels --log-level accepts
func completeLogLevels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return filterPrefix([]string{"debug", "info", "warn", "error"}, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// filterPrefix filters strings by prefix (case-insensitive)
func filterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	var filtered []string
	lowerPrefix := strings.ToLower(prefix)
	for _, item := range items {
		if strings.HasPrefix(strings.ToLower(item), lowerPrefix) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
