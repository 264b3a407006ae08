// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipl-app/xlimport/internal/config"
	"github.com/cipl-app/xlimport/internal/importsvc"
	"github.com/cipl-app/xlimport/pkg/realtime"
)

type stubSearcher struct {
	items []string
}

func (s stubSearcher) SearchDoctypes(_ context.Context, txt string, _, _ int) ([]string, error) {
	var out []string
	for _, it := range s.items {
		if strings.Contains(strings.ToLower(it), strings.ToLower(txt)) {
			out = append(out, it)
		}
	}
	return out, nil
}

type stubAttacher struct {
	ref string
	err error

	mu    sync.Mutex
	calls int
}

func (a *stubAttacher) Attach(context.Context, string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.ref, a.err
}

func (a *stubAttacher) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type stubBackend struct {
	mu sync.Mutex
	// previewFailures answers that many previews with a validation error
	previewFailures int
	preview         importsvc.PreviewReply
	start           importsvc.StartReply
	startErr        error
	starts          []importsvc.ImportOptions
}

func (b *stubBackend) ValidateImportPreview(context.Context, string, string) (importsvc.PreviewReply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.previewFailures > 0 {
		b.previewFailures--
		return importsvc.PreviewReply{Status: "error", Message: "No field mappings found for Customer"}, nil
	}
	return b.preview, nil
}

func (b *stubBackend) StartExcelImport(_ context.Context, _, _ string, opts importsvc.ImportOptions) (importsvc.StartReply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts = append(b.starts, opts)
	return b.start, b.startErr
}

func (b *stubBackend) startCalls() []importsvc.ImportOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]importsvc.ImportOptions(nil), b.starts...)
}

type stubCounter struct {
	mu    sync.Mutex
	calls int
}

func (c *stubCounter) GetCount(context.Context, string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 42, nil
}

func (c *stubCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type wizardHarness struct {
	backend  *stubBackend
	attacher *stubAttacher
	bus      *realtime.Bus
	counter  *stubCounter
	sender   *programSender
	model    ImportWizardModel
}

func newWizardHarness(t *testing.T, doctype string) *wizardHarness {
	t.Helper()
	prev := cfg
	cfg = config.Default()
	cfg.DisplayDelay = 10 * time.Millisecond
	cfg.StallTimeout = 0
	t.Cleanup(func() { cfg = prev })
	log.SetOutput(io.Discard)

	h := &wizardHarness{
		backend: &stubBackend{
			preview: importsvc.PreviewReply{
				Status: "success",
				Preview: importsvc.MappingPreview{
					MappedFields:   []string{"customer_name", "territory"},
					MissingFields:  []string{"Notes"},
					MissingInExcel: []string{"tax_id"},
				},
			},
			start: importsvc.StartReply{Status: "success", Message: "Import started"},
		},
		bus:     realtime.NewBus(),
		counter: &stubCounter{},
		sender:  &programSender{},
	}
	list := &recordList{api: h.counter, report: func(msg string) { h.sender.Send(wizardNoticeMsg{text: msg}) }}
	ctrl, err := newWizardController(h.sender.Send, h.backend, h.bus, list)
	require.NoError(t, err)

	searcher := stubSearcher{items: []string{"Customer", "Customer Group", "Supplier"}}
	h.attacher = &stubAttacher{ref: "/private/files/customers.xlsx"}
	h.model = NewImportWizardModel(context.Background(), ctrl, list, searcher, h.attacher, doctype, "")
	return h
}

func (h *wizardHarness) publish(t *testing.T, ev importsvc.ProgressEvent) {
	t.Helper()
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	h.bus.Publish(importsvc.ProgressEventName, raw)
}

// waitOutput waits until every text has been rendered. Output that one call
// reads is not seen by the next.
func waitOutput(t *testing.T, tm *teatest.TestModel, texts ...string) {
	t.Helper()
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		for _, text := range texts {
			if !bytes.Contains(b, []byte(text)) {
				return false
			}
		}
		return true
	}, teatest.WithDuration(3*time.Second), teatest.WithCheckInterval(10*time.Millisecond))
}

func TestImportWizardEndToEnd(t *testing.T) {
	h := newWizardHarness(t, "")
	tm := teatest.NewTestModel(t, h.model, teatest.WithInitialTermSize(100, 40))
	h.sender.bind(tm)

	tm.Type("cust")
	waitOutput(t, tm, "Customer Group")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})

	waitOutput(t, tm, "File:")
	tm.Type("/private/files/customers.xlsx")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})

	waitOutput(t, tm, "Not mapped, will be skipped")
	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'u'}})
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})

	waitOutput(t, tm, importsvc.LabelImporting)
	require.Eventually(t, func() bool {
		return h.bus.Subscribers(importsvc.ProgressEventName) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.publish(t, importsvc.ProgressEvent{Progress: 45, Total: 200, Message: "Importing row 90", Status: importsvc.ProgressInProgress})
	waitOutput(t, tm, "Importing row 90")

	h.publish(t, importsvc.ProgressEvent{Progress: 100, Total: 200, Message: "Imported 200 rows", Status: importsvc.ProgressCompleted})
	waitOutput(t, tm, "Import completed", "Customer now has 42 records")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	final := tm.FinalModel(t, teatest.WithFinalTimeout(2*time.Second)).(ImportWizardModel)

	assert.Equal(t, "Customer", final.doctype)
	assert.Equal(t, importsvc.StatusCompleted, final.snap.Status)
	assert.True(t, final.snap.Closed)
	assert.Equal(t, []importsvc.ImportOptions{{AllowCreate: true, AllowUpdate: false}}, h.backend.startCalls())
	assert.Equal(t, 1, h.counter.count())
	assert.Zero(t, h.bus.Subscribers(importsvc.ProgressEventName))
}

func TestImportWizardDeclineThenResume(t *testing.T) {
	h := newWizardHarness(t, "Customer")
	tm := teatest.NewTestModel(t, h.model, teatest.WithInitialTermSize(100, 40))
	h.sender.bind(tm)

	tm.Type("/private/files/customers.xlsx")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
	waitOutput(t, tm, "Create new records")

	tm.Send(tea.KeyMsg{Type: tea.KeyEsc})
	waitOutput(t, tm, "Import cancelled. Press enter")
	assert.Empty(t, h.backend.startCalls())

	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
	waitOutput(t, tm, "Update existing records")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
	waitOutput(t, tm, importsvc.LabelImporting)

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))
	assert.Equal(t, []importsvc.ImportOptions{importsvc.DefaultImportOptions()}, h.backend.startCalls())
}

func TestImportWizardErrorThenRetry(t *testing.T) {
	h := newWizardHarness(t, "Customer")
	tm := teatest.NewTestModel(t, h.model, teatest.WithInitialTermSize(100, 40))
	h.sender.bind(tm)

	tm.Type("/private/files/customers.xlsx")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
	waitOutput(t, tm, "Create new records")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
	require.Eventually(t, func() bool {
		return h.bus.Subscribers(importsvc.ProgressEventName) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.publish(t, importsvc.ProgressEvent{Progress: 10, Message: "Row 3: missing customer_name", Status: importsvc.ProgressError})
	waitOutput(t, tm, "r retry")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	waitOutput(t, tm, importsvc.LabelImporting)
	assert.Len(t, h.backend.startCalls(), 2)

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	final := tm.FinalModel(t, teatest.WithFinalTimeout(2*time.Second)).(ImportWizardModel)
	assert.Equal(t, importsvc.StatusInProgress, final.snap.Status)
}

func TestImportWizardRejectsNonExcel(t *testing.T) {
	h := newWizardHarness(t, "Customer")
	m := h.model
	m.fileInput.SetValue("customers.csv")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(ImportWizardModel)

	assert.Nil(t, cmd)
	assert.Equal(t, StepChooseFile, m.step)
	require.Error(t, m.err)
	assert.Contains(t, m.View(), "Error:")
}

func TestImportWizardIgnoresStaleSearch(t *testing.T) {
	h := newWizardHarness(t, "")
	m := h.model
	m.doctypeInput.SetValue("sup")

	updated, _ := m.Update(wizardDoctypesMsg{query: "cu", items: []string{"Customer"}})
	m = updated.(ImportWizardModel)
	assert.Empty(t, m.suggestions)

	updated, _ = m.Update(wizardDoctypesMsg{query: "sup", items: []string{"Supplier"}})
	m = updated.(ImportWizardModel)
	assert.Equal(t, []string{"Supplier"}, m.suggestions)
	assert.Contains(t, m.View(), "Supplier")
}

func TestImportWizardFailedPreviewKeepsFile(t *testing.T) {
	h := newWizardHarness(t, "Customer")
	m := h.model
	m.step = StepPreview

	err := &importsvc.ValidationError{Message: "No field mappings found for Customer"}
	updated, _ := m.Update(wizardRunDoneMsg{err: err})
	m = updated.(ImportWizardModel)

	assert.Equal(t, StepPreview, m.step)
	view := m.View()
	assert.Contains(t, view, "No field mappings found for Customer")
	assert.Contains(t, view, "enter retry preview")

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(ImportWizardModel)
	assert.Equal(t, StepChooseFile, m.step)
	assert.False(t, m.quit)
	assert.NoError(t, m.err)
}

func TestImportWizardRetryPreviewReusesUpload(t *testing.T) {
	h := newWizardHarness(t, "Customer")
	h.backend.previewFailures = 1
	tm := teatest.NewTestModel(t, h.model, teatest.WithInitialTermSize(100, 40))
	h.sender.bind(tm)

	tm.Type("/private/files/customers.xlsx")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
	waitOutput(t, tm, "No field mappings found for Customer", "enter retry preview")

	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
	waitOutput(t, tm, "Create new records")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	final := tm.FinalModel(t, teatest.WithFinalTimeout(2*time.Second)).(ImportWizardModel)

	assert.Equal(t, 1, h.attacher.count())
	assert.Equal(t, importsvc.StatusAwaitingConfirmation, final.snap.Status)
	assert.Equal(t, "/private/files/customers.xlsx", final.snap.FileRef)
}

func TestImportWizardSubmissionStaysOnConfirm(t *testing.T) {
	h := newWizardHarness(t, "Customer")
	m := h.model
	m.step = StepConfirm

	err := &importsvc.SubmissionError{Message: "Import already running", Err: errors.New("417")}
	updated, _ := m.Update(wizardRunDoneMsg{err: err})
	m = updated.(ImportWizardModel)

	assert.Equal(t, StepConfirm, m.step)
	view := m.View()
	assert.Contains(t, view, "Import already running")
	assert.Contains(t, view, "Press enter to try again")
}

func TestWizardTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer header list", 10, "a longe..."},
		{"tiny", 2, "tiny"},
	}
	for _, tt := range tests {
		if got := wizardTruncate(tt.in, tt.max); got != tt.want {
			t.Errorf("wizardTruncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
