// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cipl-app/xlimport/internal/importsvc"
	"github.com/cipl-app/xlimport/pkg/attach"
	"github.com/cipl-app/xlimport/pkg/frappe"
	"github.com/cipl-app/xlimport/pkg/realtime"
)

// Import wizard steps
const (
	StepChooseDoctype = iota
	StepChooseFile
	StepPreview
	StepConfirm
	StepProgress
)

var stepNames = []string{"Choose Doctype", "Choose File", "Preview", "Confirm", "Import"}

const maxSuggestions = 8

// doctypeSearcher is satisfied by *frappe.Client.
type doctypeSearcher interface {
	SearchDoctypes(ctx context.Context, txt string, start, pageLen int) ([]string, error)
}

// fileAttacher is satisfied by *attach.Attacher.
type fileAttacher interface {
	Attach(ctx context.Context, choice string) (string, error)
}

// ImportWizardModel is the bubbletea model for the import wizard. It plays
// the part of the import dialog; the controller owns the session state and
// the model renders the snapshots it publishes.
type ImportWizardModel struct {
	step int
	ctx  context.Context

	ctrl     *importsvc.Controller
	list     *recordList
	search   doctypeSearcher
	attacher fileAttacher
	inspect  func(path string) (*attach.Peek, error)

	// Step 1: doctype
	doctypeInput  textinput.Model
	suggestions   []string
	suggestCursor int
	doctype       string

	// Step 2: file
	fileInput textinput.Model
	peek      *attach.Peek

	// Session state mirrored from the controller
	session *importsvc.Session
	snap    importsvc.Snapshot

	// Step 4: pending confirmation
	// Step 3: a failed preview can be retried on the same file
	previewFailed bool

	confirm   *wizardConfirmMsg
	opts      importsvc.ImportOptions
	cancelled bool

	notices []wizardNoticeMsg

	// UI components
	spinner spinner.Model
	bar     progress.Model
	width   int
	height  int

	loading        bool
	loadingMessage string
	err            error

	quit bool
}

// Message types for the import wizard
type wizardDoctypesMsg struct {
	query string
	items []string
	err   error
}

type wizardAttachedMsg struct {
	session *importsvc.Session
	ref     string
	peek    *attach.Peek
	err     error
}

type wizardSnapshotMsg struct {
	snap importsvc.Snapshot
}

type wizardNoticeMsg struct {
	text  string
	isErr bool
}

type confirmReply struct {
	opts importsvc.ImportOptions
	ok   bool
}

type wizardConfirmMsg struct {
	preview  importsvc.MappingPreview
	defaults importsvc.ImportOptions
	reply    chan<- confirmReply
}

type wizardRunDoneMsg struct {
	err error
}

type wizardDialogClosedMsg struct{}

// NewImportWizardModel creates a new import wizard. doctype and file may be
// empty; the wizard asks for what is missing.
func NewImportWizardModel(ctx context.Context, ctrl *importsvc.Controller, list *recordList, search doctypeSearcher, attacher fileAttacher, doctype, file string) ImportWizardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	di := textinput.New()
	di.Placeholder = "Customer"
	di.Prompt = "Doctype: "
	di.CharLimit = 140

	fi := textinput.New()
	fi.Placeholder = "customers.xlsx or /private/files/customers.xlsx"
	fi.Prompt = "File: "
	fi.SetValue(file)

	m := ImportWizardModel{
		step:         StepChooseDoctype,
		ctx:          ctx,
		ctrl:         ctrl,
		list:         list,
		search:       search,
		attacher:     attacher,
		inspect:      attach.Inspect,
		doctypeInput: di,
		fileInput:    fi,
		spinner:      s,
		bar:          progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		opts:         importsvc.DefaultImportOptions(),
		width:        80,
		height:       24,
	}
	if doctype != "" {
		m.doctype = doctype
		m.step = StepChooseFile
		m.fileInput.Focus()
	} else {
		m.doctypeInput.Focus()
	}
	return m
}

// Init initializes the model
func (m ImportWizardModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, textinput.Blink}
	if m.step == StepChooseDoctype {
		cmds = append(cmds, m.searchDoctypesCmd(""))
	}
	return tea.Batch(cmds...)
}

// Update handles messages
func (m ImportWizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = min(max(msg.Width-20, 10), 60)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case wizardDoctypesMsg:
		if msg.query != strings.TrimSpace(m.doctypeInput.Value()) {
			return m, nil // stale
		}
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.suggestions = msg.items
		if len(m.suggestions) > maxSuggestions {
			m.suggestions = m.suggestions[:maxSuggestions]
		}
		m.suggestCursor = 0
		return m, nil

	case wizardAttachedMsg:
		m.loading = false
		if msg.session != nil {
			m.session = msg.session
		}
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.peek = msg.peek
		m.step = StepPreview
		m.loading = true
		m.loadingMessage = "Checking column mapping..."
		return m, m.runCmd()

	case wizardSnapshotMsg:
		if m.session == nil || msg.snap.ID != m.session.ID() {
			return m, nil
		}
		m.snap = msg.snap
		switch msg.snap.Status {
		case importsvc.StatusSubmitting:
			m.loading = true
			m.loadingMessage = "Starting import..."
		case importsvc.StatusInProgress, importsvc.StatusCompleted, importsvc.StatusFailed:
			m.loading = false
			m.step = StepProgress
		}
		return m, nil

	case wizardConfirmMsg:
		m.loading = false
		m.step = StepConfirm
		m.confirm = &msg
		m.cancelled = false
		m.opts = msg.defaults
		return m, nil

	case wizardRunDoneMsg:
		m.loading = false
		var verr *importsvc.ValidationError
		var serr *importsvc.SubmissionError
		switch {
		case msg.err == nil:
			m.err = nil
		case errors.Is(msg.err, importsvc.ErrCancelled):
			m.cancelled = true
			m.step = StepConfirm
		case errors.As(msg.err, &verr):
			// The session keeps its file; enter previews it again.
			m.err = verr
			m.step = StepPreview
			m.previewFailed = true
		case errors.As(msg.err, &serr):
			m.err = serr
			m.step = StepConfirm
		default:
			m.err = msg.err
		}
		return m, nil

	case wizardNoticeMsg:
		m.notices = append(m.notices, msg)
		if len(m.notices) > 3 {
			m.notices = m.notices[len(m.notices)-3:]
		}
		return m, nil

	case wizardDialogClosedMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateInputs(msg)
}

func (m ImportWizardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quit = true
		return m, tea.Quit
	}

	switch m.step {
	case StepChooseDoctype:
		switch msg.String() {
		case "esc":
			m.quit = true
			return m, tea.Quit
		case "up":
			if m.suggestCursor > 0 {
				m.suggestCursor--
			}
			return m, nil
		case "down":
			if m.suggestCursor < len(m.suggestions)-1 {
				m.suggestCursor++
			}
			return m, nil
		case "enter":
			choice := strings.TrimSpace(m.doctypeInput.Value())
			if len(m.suggestions) > 0 {
				choice = m.suggestions[m.suggestCursor]
			}
			if choice == "" {
				return m, nil
			}
			m.doctype = choice
			m.step = StepChooseFile
			m.doctypeInput.Blur()
			m.err = nil
			return m, m.fileInput.Focus()
		}
		before := m.doctypeInput.Value()
		var cmd tea.Cmd
		m.doctypeInput, cmd = m.doctypeInput.Update(msg)
		if after := m.doctypeInput.Value(); after != before {
			return m, tea.Batch(cmd, m.searchDoctypesCmd(strings.TrimSpace(after)))
		}
		return m, cmd

	case StepChooseFile:
		switch msg.String() {
		case "esc":
			m.quit = true
			return m, tea.Quit
		case "enter":
			if m.loading {
				return m, nil
			}
			path := strings.TrimSpace(m.fileInput.Value())
			if path == "" {
				return m, nil
			}
			if err := attach.ValidateExtension(path); err != nil {
				m.err = err
				return m, nil
			}
			m.loading = true
			m.loadingMessage = "Uploading " + path + "..."
			m.err = nil
			return m, m.attachCmd(path)
		}
		var cmd tea.Cmd
		m.fileInput, cmd = m.fileInput.Update(msg)
		return m, cmd

	case StepConfirm:
		switch msg.String() {
		case "q":
			m.quit = true
			return m, tea.Quit
		case "c":
			if m.confirm != nil {
				m.opts.AllowCreate = !m.opts.AllowCreate
			}
		case "u":
			if m.confirm != nil {
				m.opts.AllowUpdate = !m.opts.AllowUpdate
			}
		case "enter", "y":
			if m.confirm != nil {
				m.confirm.reply <- confirmReply{opts: m.opts, ok: true}
				m.confirm = nil
				m.err = nil
				return m, nil
			}
			if (m.cancelled || m.err != nil) && !m.loading {
				m.cancelled = false
				m.err = nil
				m.loading = true
				m.loadingMessage = "Reviewing mapping..."
				return m, m.resumeCmd()
			}
		case "esc", "n":
			if m.confirm != nil {
				m.confirm.reply <- confirmReply{}
				m.confirm = nil
				return m, nil
			}
			if msg.String() == "esc" {
				m.quit = true
				return m, tea.Quit
			}
		}
		return m, nil

	case StepPreview:
		switch msg.String() {
		case "q":
			m.quit = true
			return m, tea.Quit
		case "enter":
			if m.previewFailed && !m.loading {
				m.previewFailed = false
				m.err = nil
				m.loading = true
				m.loadingMessage = "Checking column mapping..."
				return m, m.runCmd()
			}
		case "esc":
			if !m.previewFailed {
				m.quit = true
				return m, tea.Quit
			}
			m.previewFailed = false
			m.err = nil
			m.step = StepChooseFile
			return m, m.fileInput.Focus()
		}
		return m, nil

	default:
		switch msg.String() {
		case "q", "esc":
			m.quit = true
			return m, tea.Quit
		case "r":
			if m.snap.Status == importsvc.StatusFailed && !m.snap.Closed && m.snap.SubmitButton.Enabled {
				opts := importsvc.DefaultImportOptions()
				if m.snap.Options != nil {
					opts = *m.snap.Options
				}
				m.err = nil
				return m, m.retryCmd(opts)
			}
		}
		return m, nil
	}
}

func (m ImportWizardModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.step {
	case StepChooseDoctype:
		m.doctypeInput, cmd = m.doctypeInput.Update(msg)
	case StepChooseFile:
		m.fileInput, cmd = m.fileInput.Update(msg)
	}
	return m, cmd
}

// Commands. Every controller call runs here, off the update loop, because
// the controller reports back through Program.Send.

func (m ImportWizardModel) searchDoctypesCmd(query string) tea.Cmd {
	search, ctx := m.search, m.ctx
	return func() tea.Msg {
		items, err := search.SearchDoctypes(ctx, query, 0, 20)
		return wizardDoctypesMsg{query: query, items: items, err: err}
	}
}

func (m ImportWizardModel) attachCmd(path string) tea.Cmd {
	ctx, ctrl, list, attacher, inspect := m.ctx, m.ctrl, m.list, m.attacher, m.inspect
	doctype, session := m.doctype, m.session
	return func() tea.Msg {
		if session == nil || session.Snapshot().Closed || session.Doctype() != doctype {
			if list != nil {
				list.show(doctype)
			}
			session = ctrl.OpenImportDialog(doctype)
		}
		var peek *attach.Peek
		if !attach.IsServerRef(path) {
			p, err := inspect(path)
			if err != nil {
				return wizardAttachedMsg{session: session, err: err}
			}
			peek = p
		}
		ref, err := attacher.Attach(ctx, path)
		if err != nil {
			return wizardAttachedMsg{session: session, err: err}
		}
		if err := session.AttachFile(ref); err != nil {
			return wizardAttachedMsg{session: session, err: err}
		}
		return wizardAttachedMsg{session: session, ref: ref, peek: peek}
	}
}

func (m ImportWizardModel) runCmd() tea.Cmd {
	ctx, ctrl, s := m.ctx, m.ctrl, m.session
	return func() tea.Msg {
		_, err := ctrl.Run(ctx, s)
		return wizardRunDoneMsg{err: err}
	}
}

// resumeCmd asks again after a declined or rejected confirmation.
func (m ImportWizardModel) resumeCmd() tea.Cmd {
	ctx, ctrl, s := m.ctx, m.ctrl, m.session
	return func() tea.Msg {
		opts, err := ctrl.PresentMapping(ctx, s)
		if err != nil {
			return wizardRunDoneMsg{err: err}
		}
		return wizardRunDoneMsg{err: ctrl.SubmitImport(ctx, s, opts)}
	}
}

func (m ImportWizardModel) retryCmd(opts importsvc.ImportOptions) tea.Cmd {
	ctx, ctrl, s := m.ctx, m.ctrl, m.session
	return func() tea.Msg {
		return wizardRunDoneMsg{err: ctrl.SubmitImport(ctx, s, opts)}
	}
}

// View renders the wizard
func (m ImportWizardModel) View() string {
	if m.quit {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.step {
	case StepChooseDoctype:
		b.WriteString(m.renderDoctypeStep())
	case StepChooseFile:
		b.WriteString(m.renderFileStep())
	case StepPreview:
		b.WriteString(m.renderWorkbook())
	case StepConfirm:
		b.WriteString(m.renderConfirmStep())
	case StepProgress:
		b.WriteString(m.renderProgressStep())
	}

	if m.loading {
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + " " + m.loadingMessage + "\n")
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: "+importMessage(m.err)) + "\n")
	}
	if len(m.notices) > 0 {
		b.WriteString("\n")
		for _, n := range m.notices {
			if n.isErr {
				b.WriteString(errorStyle.Render("✗ "+n.text) + "\n")
			} else {
				b.WriteString(successStyle.Render("✓ ") + n.text + "\n")
			}
		}
	}

	b.WriteString(m.renderHelp())
	return b.String()
}

func (m ImportWizardModel) renderHeader() string {
	title := fmt.Sprintf("IMPORT WIZARD - %s", stepNames[m.step])
	info := fmt.Sprintf("Step %d of %d", m.step+1, len(stepNames))
	if m.doctype != "" {
		info += "  " + m.doctype
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, wizardTitleStyle.Render(title), "  ", dimStyle.Render(info))
}

func (m ImportWizardModel) renderDoctypeStep() string {
	var b strings.Builder
	b.WriteString(m.doctypeInput.View() + "\n\n")
	if len(m.suggestions) == 0 {
		b.WriteString(dimStyle.Render("  no matching doctypes") + "\n")
		return b.String()
	}
	for i, s := range m.suggestions {
		if i == m.suggestCursor {
			b.WriteString(wizardSelectedStyle.Render("▸ "+s) + "\n")
		} else {
			b.WriteString("  " + s + "\n")
		}
	}
	return b.String()
}

func (m ImportWizardModel) renderFileStep() string {
	var b strings.Builder
	b.WriteString(m.fileInput.View() + "\n")
	b.WriteString(dimStyle.Render("Excel workbooks only (.xlsx, .xls). The first sheet is imported.") + "\n")
	return b.String()
}

func (m ImportWizardModel) renderWorkbook() string {
	if m.peek == nil {
		return dimStyle.Render("File: "+m.snap.FileRef) + "\n"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Sheet %s: %d columns, %d data rows\n", m.peek.Sheet, len(m.peek.Headers), m.peek.Rows))
	b.WriteString(dimStyle.Render(wizardTruncate(strings.Join(m.peek.Headers, ", "), m.width-4)) + "\n")
	return b.String()
}

func (m ImportWizardModel) renderConfirmStep() string {
	var b strings.Builder
	preview := m.snap.Preview
	if m.confirm != nil {
		preview = &m.confirm.preview
	}
	if preview != nil {
		b.WriteString(m.renderPreviewPane(*preview))
		b.WriteString("\n")
	}

	if m.confirm == nil {
		if m.cancelled {
			b.WriteString(dimStyle.Render("Import cancelled. Press enter to review again, q to quit.") + "\n")
		} else if m.err != nil {
			b.WriteString(dimStyle.Render("Press enter to try again, q to quit.") + "\n")
		}
		return b.String()
	}

	b.WriteString(checkbox(m.opts.AllowCreate) + " Create new records  " + dimStyle.Render("(c)") + "\n")
	b.WriteString(checkbox(m.opts.AllowUpdate) + " Update existing records  " + dimStyle.Render("(u)") + "\n")
	if !m.opts.AllowCreate && !m.opts.AllowUpdate {
		b.WriteString(warnStyle.Render("Neither is allowed; every row will be skipped.") + "\n")
	}
	return b.String()
}

func (m ImportWizardModel) renderPreviewPane(p importsvc.MappingPreview) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Mapped fields (%d)", len(p.MappedFields))) + "\n")
	for _, f := range p.MappedFields {
		b.WriteString(successStyle.Render("  ✓ ") + f + "\n")
	}
	if len(p.MissingFields) > 0 {
		b.WriteString(headerStyle.Render("Not mapped, will be skipped") + "\n")
		for _, f := range p.MissingFields {
			b.WriteString(warnStyle.Render("  ! ") + f + "\n")
		}
	}
	if len(p.MissingInExcel) > 0 {
		b.WriteString(headerStyle.Render("Mapped but missing from the file") + "\n")
		for _, f := range p.MissingInExcel {
			b.WriteString(warnStyle.Render("  ! ") + f + "\n")
		}
	}
	return wizardPaneStyle.Width(min(m.width-2, 70)).Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func (m ImportWizardModel) renderProgressStep() string {
	var b strings.Builder
	b.WriteString(m.renderWorkbook())
	b.WriteString("\n")

	b.WriteString(m.bar.ViewAs(float64(m.snap.Progress)/100) + "\n")
	line := m.snap.Message
	if m.snap.Total > 0 {
		line += dimStyle.Render(fmt.Sprintf("  (%d rows)", m.snap.Total))
	}
	b.WriteString(line + "\n\n")

	switch m.snap.Status {
	case importsvc.StatusInProgress:
		b.WriteString(m.spinner.View() + " " + m.snap.SubmitButton.Label + "\n")
	case importsvc.StatusCompleted:
		b.WriteString(successStyle.Render("✓ Import completed") + "\n")
	case importsvc.StatusFailed:
		b.WriteString(errorStyle.Render("✗ Import failed") + "\n")
	}
	return b.String()
}

func (m ImportWizardModel) renderHelp() string {
	var keys string
	switch m.step {
	case StepChooseDoctype:
		keys = "type to search  ↑/↓ select  enter choose  esc quit"
	case StepChooseFile:
		keys = "enter upload and preview  esc quit"
	case StepConfirm:
		if m.confirm != nil {
			keys = "c toggle create  u toggle update  enter " + importsvc.LabelImport + "  esc cancel"
		} else {
			keys = "enter review again  q quit"
		}
	case StepPreview:
		keys = "q quit"
		if m.previewFailed {
			keys = "enter retry preview  esc choose another file  q quit"
		}
	default:
		keys = "q quit"
		if m.snap.Status == importsvc.StatusFailed && !m.snap.Closed {
			keys = "r retry  q quit"
		}
	}
	return wizardHelpStyle.Render(keys)
}

func checkbox(on bool) string {
	if on {
		return wizardCheckboxOn.Render("[x]")
	}
	return wizardCheckboxOff.Render("[ ]")
}

// wizardTruncate truncates a string to maxLen
func wizardTruncate(s string, maxLen int) string {
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// importMessage prefers the message the server sent over the error chain.
func importMessage(err error) string {
	var verr *importsvc.ValidationError
	var serr *importsvc.SubmissionError
	var rerr *importsvc.RuntimeImportError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.As(err, &serr):
		return serr.Message
	case errors.As(err, &rerr):
		return rerr.Message
	}
	return err.Error()
}

// programSender forwards to a program that is created after the controller.
type programSender struct {
	mu sync.Mutex
	p  interface{ Send(tea.Msg) }
}

func (s *programSender) bind(p interface{ Send(tea.Msg) }) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
}

func (s *programSender) Send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// wizardPrompter asks for confirmation on the wizard's confirm step.
type wizardPrompter struct {
	send func(tea.Msg)
}

func (p wizardPrompter) Confirm(ctx context.Context, preview importsvc.MappingPreview, defaults importsvc.ImportOptions) (importsvc.ImportOptions, bool, error) {
	reply := make(chan confirmReply, 1)
	p.send(wizardConfirmMsg{preview: preview, defaults: defaults, reply: reply})
	select {
	case r := <-reply:
		return r.opts, r.ok, nil
	case <-ctx.Done():
		return importsvc.ImportOptions{}, false, ctx.Err()
	}
}

type wizardNotifier struct {
	send func(tea.Msg)
}

func (n wizardNotifier) Notice(msg string) { n.send(wizardNoticeMsg{text: msg}) }
func (n wizardNotifier) Error(msg string)  { n.send(wizardNoticeMsg{text: msg, isErr: true}) }

type dialogFunc func()

func (f dialogFunc) Close() { f() }

// newWizardController wires a controller whose collaborators report to the
// wizard program through send.
func newWizardController(send func(tea.Msg), backend importsvc.Backend, events importsvc.Events, list importsvc.ListView) (*importsvc.Controller, error) {
	return importsvc.NewController(importsvc.Config{
		Backend:  backend,
		Events:   events,
		Notifier: wizardNotifier{send: send},
		Prompter: wizardPrompter{send: send},
		ListView: list,
		OpenDialog: func(*importsvc.Session) importsvc.Dialog {
			return dialogFunc(func() { send(wizardDialogClosedMsg{}) })
		},
		Observer:     func(s importsvc.Snapshot) { send(wizardSnapshotMsg{snap: s}) },
		DisplayDelay: cfg.DisplayDelay,
		StallTimeout: cfg.StallTimeout,
		Log:          log,
	})
}

// RunImportWizard launches the interactive import wizard
func RunImportWizard(ctx context.Context, client *frappe.Client, doctype, file string) error {
	mode, user := client.CurrentMode(ctx)
	if mode != frappe.Connected {
		return &frappe.ModeError{Mode: mode, SiteURL: client.SiteURL()}
	}

	// The alt screen owns the terminal; structured logs go to the log file.
	var logger *ImportLogger
	if !importNoLog {
		logger, _ = NewImportLogger(cfg.LogDir, "wizard")
	}
	if logger != nil {
		log.SetOutput(logger)
	} else {
		log.SetOutput(io.Discard)
	}
	defer func() {
		log.SetOutput(os.Stderr)
		if path := logger.Close(); path != "" {
			fmt.Printf("Log: %s\n", path)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := realtime.NewBus()
	if _, err := startRealtime(ctx, cfg, bus, userRoom(user), log); err != nil {
		return err
	}

	sender := &programSender{}
	list := &recordList{api: client, report: func(msg string) { sender.Send(wizardNoticeMsg{text: msg}) }}
	ctrl, err := newWizardController(sender.Send, frappeBackend{api: client}, bus, list)
	if err != nil {
		return err
	}

	attachOpts := []attach.Option{attach.WithLogger(log)}
	if importPublic || cfg.PublicFiles {
		attachOpts = append(attachOpts, attach.Public())
	}
	m := NewImportWizardModel(ctx, ctrl, list, client, attach.New(client, attachOpts...), doctype, file)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	sender.bind(p)
	final, err := p.Run()
	cancel()
	ctrl.CloseSession()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	if fm, ok := final.(ImportWizardModel); ok {
		logger.LogResult(fm.snap, fm.err)
		switch fm.snap.Status {
		case importsvc.StatusCompleted:
			fmt.Println(successStyle.Render("✓ ") + fm.snap.Message)
		case importsvc.StatusFailed:
			return fm.snap.Err
		}
	}
	return nil
}
