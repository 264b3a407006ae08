// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cipl-app/xlimport/internal/clierr"
	"github.com/cipl-app/xlimport/internal/config"
	"github.com/cipl-app/xlimport/internal/importsvc"
	"github.com/cipl-app/xlimport/pkg/frappe"
	"github.com/cipl-app/xlimport/pkg/realtime"
)

// importAPI is the part of the Frappe client the import flow calls.
type importAPI interface {
	ValidateImportPreview(ctx context.Context, doctype, fileURL string) (*frappe.PreviewResponse, error)
	StartExcelImport(ctx context.Context, doctype, fileURL string, allowCreate, allowUpdate bool) (*frappe.StartResponse, error)
}

// frappeBackend adapts the Frappe client to the import controller.
type frappeBackend struct {
	api importAPI
}

func (b frappeBackend) ValidateImportPreview(ctx context.Context, doctype, fileRef string) (importsvc.PreviewReply, error) {
	resp, err := b.api.ValidateImportPreview(ctx, doctype, fileRef)
	if err != nil {
		return importsvc.PreviewReply{}, err
	}
	return importsvc.PreviewReply{
		Status:  resp.Status,
		Message: resp.Message,
		Preview: importsvc.MappingPreview{
			MappedFields:      resp.MappedFields,
			MissingFields:     resp.MissingFields,
			MissingInExcel:    resp.MissingInExcel,
			TotalExcelColumns: resp.TotalExcelColumns,
			HasMissing:        resp.HasMissing,
		},
	}, nil
}

func (b frappeBackend) StartExcelImport(ctx context.Context, doctype, fileRef string, opts importsvc.ImportOptions) (importsvc.StartReply, error) {
	resp, err := b.api.StartExcelImport(ctx, doctype, fileRef, opts.AllowCreate, opts.AllowUpdate)
	if err != nil {
		return importsvc.StartReply{}, err
	}
	return importsvc.StartReply{Status: resp.Status, Message: resp.Message}, nil
}

// recordCounter is satisfied by *frappe.Client.
type recordCounter interface {
	GetCount(ctx context.Context, doctype string) (int, error)
}

// recordList stands in for the list view the import was started from.
// Refreshing it reloads the record count and reports it.
type recordList struct {
	api    recordCounter
	report func(string)

	mu      sync.Mutex
	doctype string
}

// show switches the list to doctype.
func (l *recordList) show(doctype string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.doctype = doctype
}

func (l *recordList) Doctype() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doctype
}

func (l *recordList) Refresh() {
	doctype := l.Doctype()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := l.api.GetCount(ctx, doctype)
	if err != nil {
		log.WithError(err).WithField("doctype", doctype).Warn("could not reload record count")
		return
	}
	l.report(fmt.Sprintf("%s now has %d records", doctype, n))
}

// consoleNotifier prints notices for the headless command.
type consoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

func (n *consoleNotifier) Notice(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, successStyle.Render("✓ ")+msg)
}

func (n *consoleNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.err, errorStyle.Render("✗ ")+msg)
}

var errNoRealtime = errors.New("no realtime source configured")

// startRealtime runs the configured progress source until ctx ends and
// returns once the source is subscribed. The returned channel receives the
// source's exit error once.
func startRealtime(ctx context.Context, c *config.Config, bus *realtime.Bus, room string, logger logrus.FieldLogger) (<-chan error, error) {
	var src realtime.Source
	switch {
	case c.RedisURL != "":
		var opts []realtime.RedisOption
		if c.RealtimeRoom != "" {
			room = c.RealtimeRoom
		}
		if room != "" {
			opts = append(opts, realtime.WithRoom(room))
		}
		if c.Namespace != "" {
			opts = append(opts, realtime.WithNamespace(c.Namespace))
		}
		rs, err := realtime.NewRedisSource(c.RedisURL, bus, logger, opts...)
		if err != nil {
			return nil, err
		}
		src = rs
	case c.RealtimeWS != "":
		header := http.Header{}
		if c.APIKey != "" {
			header.Set("Authorization", (&frappe.Auth{APIKey: c.APIKey, APISecret: c.APISecret}).Header())
		}
		src = realtime.NewWebsocketSource(c.RealtimeWS, header, bus, logger)
	default:
		return nil, clierr.WrapWithHint(errNoRealtime, "set FRAPPE_REDIS_URL or FRAPPE_REALTIME_WS to follow import progress, or use --dry-run")
	}

	return runSource(ctx, src, logger, realtimeReadyTimeout)
}

// realtimeReadyTimeout bounds how long an import waits for its progress
// source before submitting anyway.
var realtimeReadyTimeout = 15 * time.Second

// runSource starts src and returns once it is receiving, so no progress
// event published after submission is missed. The returned channel receives
// the source's exit error once.
func runSource(ctx context.Context, src realtime.Source, logger logrus.FieldLogger, timeout time.Duration) (<-chan error, error) {
	done := make(chan error, 1)
	exited := make(chan error, 1)
	go func() {
		err := src.Run(ctx)
		if err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("realtime source stopped")
		}
		exited <- err
		done <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-src.Ready():
		return done, nil
	case err := <-exited:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			err = errors.New("realtime source closed")
		}
		return nil, fmt.Errorf("start realtime source: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		logger.WithField("timeout", timeout).Warn("realtime source not ready, progress events may be missed")
		return done, nil
	}
}

// userRoom is the realtime room Frappe publishes a user's events to.
func userRoom(user string) string {
	if user == "" {
		return ""
	}
	return "user:" + user
}
