// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package importsvc orchestrates one Excel import session against a Frappe
// site: file selection, mapping preview, confirmation, submission and
// realtime progress. It owns no transport or UI; both are injected, which
// keeps the state machine testable without a site or a terminal.
package importsvc

import (
	"fmt"
	"strings"
)

// ProgressEventName is the realtime event the server job publishes.
const ProgressEventName = "excel_import_progress"

// Status is the state of an import session.
type Status int

const (
	StatusIdle Status = iota
	StatusFileSelected
	StatusPreviewing
	StatusAwaitingConfirmation
	StatusSubmitting
	StatusInProgress
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFileSelected:
		return "file-selected"
	case StatusPreviewing:
		return "previewing"
	case StatusAwaitingConfirmation:
		return "awaiting-confirmation"
	case StatusSubmitting:
		return "submitting"
	case StatusInProgress:
		return "in-progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MappingPreview is the server's dry-run answer for one file. Never mutated after receipt.
type MappingPreview struct {
	MappedFields      []string `json:"mapped_fields"`
	MissingFields     []string `json:"missing_fields"`   // excel columns with no mapping
	MissingInExcel    []string `json:"missing_in_excel"` // mappings with no excel column
	TotalExcelColumns int      `json:"total_excel_columns,omitempty"`
	HasMissing        bool     `json:"has_missing,omitempty"`
}

// Summary returns a one-line description, e.g. "4 mapped, 1 unmapped, 0 missing".
func (p MappingPreview) Summary() string {
	return fmt.Sprintf("%d mapped, %d unmapped, %d missing",
		len(p.MappedFields), len(p.MissingFields), len(p.MissingInExcel))
}

// ImportOptions are the create/update policy flags chosen at confirmation.
type ImportOptions struct {
	AllowCreate bool `json:"allow_create"`
	AllowUpdate bool `json:"allow_update"`
}

// DefaultImportOptions returns the options offered to the user: both enabled.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{AllowCreate: true, AllowUpdate: true}
}

func (o ImportOptions) String() string {
	var parts []string
	if o.AllowCreate {
		parts = append(parts, "create")
	}
	if o.AllowUpdate {
		parts = append(parts, "update")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// ProgressStatus is the status field of a progress event.
type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressError      ProgressStatus = "error"
)

// ProgressEvent is one realtime progress push.
type ProgressEvent struct {
	Progress int            `json:"progress"`
	Total    int            `json:"total,omitempty"`
	Message  string         `json:"message"`
	Status   ProgressStatus `json:"status"`
}

// clamped returns the progress bounded to 0..100.
func (e ProgressEvent) clamped() int {
	switch {
	case e.Progress < 0:
		return 0
	case e.Progress > 100:
		return 100
	default:
		return e.Progress
	}
}

// Indicator is what the progress display should show.
type Indicator int

const (
	IndicatorNone Indicator = iota
	IndicatorRunning
	IndicatorSuccess
	IndicatorError
)

func (i Indicator) String() string {
	switch i {
	case IndicatorRunning:
		return "running"
	case IndicatorSuccess:
		return "success"
	case IndicatorError:
		return "error"
	default:
		return "none"
	}
}

// Affordance is the state of a button-like control in the front end.
type Affordance struct {
	Enabled bool
	Label   string
}

// Button labels.
const (
	LabelPreview   = "Preview"
	LabelImport    = "Import"
	LabelImporting = "Importing..."
)

// Snapshot is an immutable copy of a session's visible state.
type Snapshot struct {
	ID            string
	Doctype       string
	FileRef       string
	Status        Status
	Preview       *MappingPreview
	Options       *ImportOptions
	Progress      int
	Total         int
	Message       string
	Indicator     Indicator
	PreviewButton Affordance
	SubmitButton  Affordance
	Err           error
	Closed        bool
}
