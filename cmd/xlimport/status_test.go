// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintStatus(t *testing.T) {
	tests := []struct {
		name   string
		status StatusInfo
		want   []string
	}{
		{
			name: "connected with redis",
			status: StatusInfo{
				Mode: "connected", User: "ops@example.com", Site: "https://erp.example.com",
				Realtime:     &RealtimeInfo{Source: "redis", Target: "redis://cache:13000", Status: "reachable"},
				DisplayDelay: "2s", StallTimeout: "10m",
			},
			want: []string{"Connected to https://erp.example.com", "(ops@example.com)", "redis redis://cache:13000", "stall timeout 10m"},
		},
		{
			name:   "online without realtime",
			status: StatusInfo{Mode: "online", Site: "https://erp.example.com", DisplayDelay: "2s", StallTimeout: "off"},
			want:   []string{"Online (not authenticated)", "xlimport login", "FRAPPE_REDIS_URL", "stall timeout off"},
		},
		{
			name:   "not configured",
			status: StatusInfo{Mode: "offline", DisplayDelay: "2s", StallTimeout: "10m"},
			want:   []string{"Not configured", "FRAPPE_URL"},
		},
		{
			name: "unreachable redis",
			status: StatusInfo{
				Mode: "offline", Site: "https://erp.example.com",
				Realtime: &RealtimeInfo{Source: "redis", Target: "redis://cache:13000", Status: "unreachable", Error: "connection refused"},
			},
			want: []string{"Offline https://erp.example.com", "(connection refused)"},
		},
		{
			name: "websocket not checked",
			status: StatusInfo{
				Mode:     "connected",
				Realtime: &RealtimeInfo{Source: "websocket", Target: "wss://erp.example.com/rt", Status: "unchecked"},
			},
			want: []string{"websocket wss://erp.example.com/rt (not checked)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			printStatus(&out, tt.status)
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output missing %q:\n%s", w, out.String())
				}
			}
		})
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"redis://:secret@cache:13000/0", "redis://cache:13000/0"},
		{"redis://cache:13000", "redis://cache:13000"},
		{"wss://user:pw@erp.example.com/socket.io", "wss://erp.example.com/socket.io"},
		{"::not a url", "::not a url"},
	}
	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
