// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cipl-app/xlimport/internal/importsvc"
	"github.com/cipl-app/xlimport/pkg/attach"
)

// ImportLogger logs import operations to a file
type ImportLogger struct {
	file      *os.File
	startTime time.Time
	command   string
}

// NewImportLogger creates a new logger for an import operation under dir
func NewImportLogger(dir, command string) (*ImportLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	// Create log file with timestamp
	timestamp := time.Now().Format("2006-01-02-150405")
	logPath := filepath.Join(dir, fmt.Sprintf("%s-%s.log", command, timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	logger := &ImportLogger{
		file:      file,
		startTime: time.Now(),
		command:   command,
	}

	// Write header
	logger.writeHeader()

	return logger, nil
}

func (l *ImportLogger) writeHeader() {
	l.file.WriteString(strings.Repeat("=", 80) + "\n")
	l.file.WriteString(fmt.Sprintf("xlimport: %s\n", l.command))
	l.file.WriteString(fmt.Sprintf("Started: %s\n", l.startTime.Format(time.RFC3339)))
	l.file.WriteString(strings.Repeat("=", 80) + "\n\n")
}

// Log writes a message to the log file
func (l *ImportLogger) Log(format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	l.file.WriteString(fmt.Sprintf("[%s] %s\n", timestamp, msg))
}

// Write lets the logger receive structured log output while a TUI owns the terminal.
func (l *ImportLogger) Write(p []byte) (int, error) {
	if l == nil || l.file == nil {
		return len(p), nil
	}
	return l.file.Write(p)
}

// Section writes a section header
func (l *ImportLogger) Section(title string) {
	if l == nil || l.file == nil {
		return
	}
	l.file.WriteString(fmt.Sprintf("\n--- %s ---\n", title))
}

// LogWorkbook writes what was read from the local workbook
func (l *ImportLogger) LogWorkbook(path string, peek *attach.Peek) {
	if l == nil || l.file == nil || peek == nil {
		return
	}
	l.Section("WORKBOOK")
	l.Log("File: %s (%s)", path, peek.Format)
	l.Log("Sheets: %s", strings.Join(peek.Sheets, ", "))
	l.Log("Reading sheet: %s", peek.Sheet)
	l.Log("Columns (%d): %s", len(peek.Headers), strings.Join(peek.Headers, ", "))
	l.Log("Data rows: %d", peek.Rows)
}

// LogPreview writes the server's mapping preview
func (l *ImportLogger) LogPreview(p importsvc.MappingPreview) {
	if l == nil || l.file == nil {
		return
	}
	l.Section("MAPPING PREVIEW")
	l.Log("Excel columns: %d", p.TotalExcelColumns)
	l.Log("Mapped (%d): %s", len(p.MappedFields), strings.Join(p.MappedFields, ", "))
	for _, f := range p.MissingFields {
		l.Log("  not mapped, will be skipped: %s", f)
	}
	for _, f := range p.MissingInExcel {
		l.Log("  mapped but missing from file: %s", f)
	}
}

// LogResult writes the operation result
func (l *ImportLogger) LogResult(snap importsvc.Snapshot, err error) {
	if l == nil || l.file == nil {
		return
	}
	l.Section("RESULT")
	if err != nil {
		l.Log("ERROR: %v", err)
	}
	l.Log("Status: %s", snap.Status)
	if snap.Options != nil {
		l.Log("Options: %s", snap.Options)
	}
	if snap.Total > 0 {
		l.Log("Rows: %d", snap.Total)
	}
	if snap.Message != "" {
		l.Log("Message: %s", snap.Message)
	}
	l.Log("Duration: %s", time.Since(l.startTime).Round(time.Millisecond))
}

// Close closes the log file and prints path
func (l *ImportLogger) Close() string {
	if l == nil || l.file == nil {
		return ""
	}

	// Write footer
	l.file.WriteString(fmt.Sprintf("\n\nCompleted: %s\n", time.Now().Format(time.RFC3339)))
	l.file.WriteString(fmt.Sprintf("Duration: %s\n", time.Since(l.startTime).Round(time.Millisecond)))

	path := l.file.Name()
	l.file.Close()
	return path
}
