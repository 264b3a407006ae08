// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package importsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cipl-app/xlimport/pkg/realtime"
)

// Defaults used by front ends that do not configure their own.
const (
	DefaultDisplayDelay = 2 * time.Second
	DefaultStallTimeout = 10 * time.Minute
)

// PreviewReply is the decoded answer of validate_import_preview.
type PreviewReply struct {
	Status  string
	Message string
	Preview MappingPreview
}

// StartReply is the decoded answer of start_excel_import.
type StartReply struct {
	Status  string
	Message string
}

// Backend performs the two remote calls of the import flow.
type Backend interface {
	ValidateImportPreview(ctx context.Context, doctype, fileRef string) (PreviewReply, error)
	StartExcelImport(ctx context.Context, doctype, fileRef string, opts ImportOptions) (StartReply, error)
}

// Events is the subscription side of the realtime bus.
type Events interface {
	Subscribe(event string, h realtime.Handler) realtime.Token
	Unsubscribe(tok realtime.Token) bool
}

// Notifier shows transient messages to the user.
type Notifier interface {
	Notice(msg string)
	Error(msg string)
}

// Prompter asks the user to accept a mapping preview. It returns the chosen
// options and true on acceptance, or false when the user declines.
type Prompter interface {
	Confirm(ctx context.Context, preview MappingPreview, defaults ImportOptions) (ImportOptions, bool, error)
}

// ListView is a displayed list of records that can be reloaded.
type ListView interface {
	Doctype() string
	Refresh()
}

// Dialog is the front end's view of one session.
type Dialog interface {
	Close()
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks; tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Config wires a Controller to its collaborators.
type Config struct {
	Backend  Backend // required
	Events   Events  // required
	Notifier Notifier
	Prompter Prompter // nil accepts the default options without asking
	ListView ListView

	// OpenDialog is called for every new session; the returned Dialog is
	// closed when the session is torn down.
	OpenDialog func(*Session) Dialog

	// Observer receives a snapshot after every visible change.
	Observer func(Snapshot)

	// DisplayDelay is how long a completed import stays on screen.
	DisplayDelay time.Duration

	// StallTimeout fails an in-progress session that receives no event for
	// this long. Zero disables the check.
	StallTimeout time.Duration

	Clock Clock
	Log   logrus.FieldLogger
}

// Controller owns the single active import session.
type Controller struct {
	cfg   Config
	clock Clock
	note  Notifier
	log   logrus.FieldLogger

	mu      sync.Mutex
	session *Session
	token   realtime.Token // the one live progress subscription, 0 when none
}

// NewController validates cfg and returns a controller with no session.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, errors.New("importsvc: backend is required")
	}
	if cfg.Events == nil {
		return nil, errors.New("importsvc: events source is required")
	}
	if cfg.DisplayDelay < 0 {
		cfg.DisplayDelay = 0
	}
	c := &Controller{cfg: cfg, clock: cfg.Clock, note: cfg.Notifier, log: cfg.Log}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if c.note == nil {
		c.note = nopNotifier{}
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	return c, nil
}

// Session is a handle to one import attempt. Its state is guarded by the
// owning controller; read it through Snapshot.
type Session struct {
	c       *Controller
	id      string
	doctype string

	fileRef    string
	status     Status
	preview    *MappingPreview
	options    *ImportOptions
	progress   int
	total      int
	message    string
	indicator  Indicator
	previewBtn Affordance
	submitBtn  Affordance
	err        error
	closed     bool
	dialog     Dialog

	stallTimer  Timer
	stallGen    uint64
	finishTimer Timer
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Doctype returns the target doctype.
func (s *Session) Doctype() string { return s.doctype }

// Snapshot returns a copy of the session's visible state.
func (s *Session) Snapshot() Snapshot {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.snapshotLocked()
}

// Status returns the current state.
func (s *Session) Status() Status {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.status
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		Doctype:       s.doctype,
		FileRef:       s.fileRef,
		Status:        s.status,
		Progress:      s.progress,
		Total:         s.total,
		Message:       s.message,
		Indicator:     s.indicator,
		PreviewButton: s.previewBtn,
		SubmitButton:  s.submitBtn,
		Err:           s.err,
		Closed:        s.closed,
	}
	if s.preview != nil {
		p := *s.preview
		snap.Preview = &p
	}
	if s.options != nil {
		o := *s.options
		snap.Options = &o
	}
	return snap
}

func (s *Session) fields() logrus.Fields {
	return logrus.Fields{"session_id": s.id, "doctype": s.doctype, "status": s.status.String()}
}

// Active returns the open session, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// OpenImportDialog tears down any open session (for any doctype, the same
// one included) and starts a new one in StatusIdle.
func (c *Controller) OpenImportDialog(doctype string) *Session {
	c.mu.Lock()
	var prevDialog Dialog
	var prevSnap *Snapshot
	if prev := c.session; prev != nil {
		prevDialog = c.teardownLocked(prev)
		snap := prev.snapshotLocked()
		prevSnap = &snap
		c.log.WithFields(prev.fields()).Debug("replaced by new import session")
	}
	s := &Session{
		c:          c,
		id:         uuid.NewString(),
		doctype:    doctype,
		status:     StatusIdle,
		previewBtn: Affordance{Label: LabelPreview},
		submitBtn:  Affordance{Label: LabelImport},
	}
	c.session = s
	c.mu.Unlock()

	if prevDialog != nil {
		prevDialog.Close()
	}
	if prevSnap != nil {
		c.emit(*prevSnap)
	}

	if c.cfg.OpenDialog != nil {
		d := c.cfg.OpenDialog(s)
		c.mu.Lock()
		closed := s.closed
		if !closed {
			s.dialog = d
		}
		c.mu.Unlock()
		if closed && d != nil {
			d.Close()
		}
	}

	c.log.WithFields(s.fields()).Info("import session opened")
	c.emit(s.Snapshot())
	return s
}

// CloseSession tears down the open session, if any.
func (c *Controller) CloseSession() {
	if s := c.Active(); s != nil {
		c.closeSession(s)
	}
}

func (c *Controller) closeSession(s *Session) {
	c.mu.Lock()
	if s.closed || c.session != s {
		c.mu.Unlock()
		return
	}
	d := c.teardownLocked(s)
	snap := s.snapshotLocked()
	c.mu.Unlock()

	if d != nil {
		d.Close()
	}
	c.log.WithFields(s.fields()).Info("import session closed")
	c.emit(snap)
}

// teardownLocked severs the subscription, cancels timers, clears the
// selection and detaches the session. The caller closes the returned dialog.
func (c *Controller) teardownLocked(s *Session) Dialog {
	c.unsubscribeLocked()
	c.stopStallLocked(s)
	if s.finishTimer != nil {
		s.finishTimer.Stop()
		s.finishTimer = nil
	}
	s.closed = true
	s.fileRef = ""
	s.preview = nil
	s.previewBtn.Enabled = false
	s.submitBtn.Enabled = false
	if c.session == s {
		c.session = nil
	}
	d := s.dialog
	s.dialog = nil
	return d
}

// AttachFile records the file reference chosen by the user. Choosing a new
// file discards any previous preview.
func (s *Session) AttachFile(ref string) error {
	c := s.c
	ref = strings.TrimSpace(ref)

	c.mu.Lock()
	if s.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if ref == "" {
		c.mu.Unlock()
		return fmt.Errorf("attach file: empty file reference: %w", ErrInvalidState)
	}
	switch s.status {
	case StatusIdle, StatusFileSelected, StatusAwaitingConfirmation, StatusFailed:
	default:
		st := s.status
		c.mu.Unlock()
		return stateError("attach file", st)
	}
	s.fileRef = ref
	s.status = StatusFileSelected
	s.preview = nil
	s.options = nil
	s.err = nil
	s.indicator = IndicatorNone
	s.progress, s.total, s.message = 0, 0, ""
	s.previewBtn = Affordance{Enabled: true, Label: LabelPreview}
	s.submitBtn = Affordance{Label: LabelImport}
	snap := s.snapshotLocked()
	c.mu.Unlock()

	c.log.WithFields(s.fields()).WithField("file", ref).Debug("file attached")
	c.emit(snap)
	return nil
}

// RequestPreview asks the server for a mapping preview of the attached file.
// On success the session awaits confirmation; on failure it returns to
// StatusFileSelected with a *ValidationError so the user can retry.
func (c *Controller) RequestPreview(ctx context.Context, s *Session) (MappingPreview, error) {
	c.mu.Lock()
	if err := c.liveLocked(s); err != nil {
		c.mu.Unlock()
		return MappingPreview{}, err
	}
	if s.status != StatusFileSelected || s.fileRef == "" {
		st := s.status
		c.mu.Unlock()
		return MappingPreview{}, stateError("preview", st)
	}
	s.status = StatusPreviewing
	s.previewBtn.Enabled = false
	s.err = nil
	doctype, ref := s.doctype, s.fileRef
	snap := s.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	reply, err := c.cfg.Backend.ValidateImportPreview(ctx, doctype, ref)

	c.mu.Lock()
	if s.closed {
		c.mu.Unlock()
		return MappingPreview{}, ErrSessionClosed
	}
	s.previewBtn.Enabled = true
	if err != nil || reply.Status != "success" {
		verr := &ValidationError{Err: err}
		switch {
		case err != nil:
			verr.Message = userMessage(err)
		case reply.Message != "":
			verr.Message = reply.Message
		default:
			verr.Message = "the server could not validate the file"
		}
		s.status = StatusFileSelected
		s.err = verr
		snap := s.snapshotLocked()
		c.mu.Unlock()

		c.log.WithFields(s.fields()).WithError(verr).Warn("import preview failed")
		c.note.Error(verr.Message)
		c.emit(snap)
		return MappingPreview{}, verr
	}

	preview := reply.Preview
	s.preview = &preview
	s.status = StatusAwaitingConfirmation
	s.submitBtn = Affordance{Enabled: true, Label: LabelImport}
	snap = s.snapshotLocked()
	c.mu.Unlock()

	c.log.WithFields(s.fields()).WithField("preview", preview.Summary()).Info("import preview ready")
	c.emit(snap)
	return preview, nil
}

// PresentMapping shows the preview to the user and returns the options
// they accepted. Declining returns ErrCancelled and changes nothing.
func (c *Controller) PresentMapping(ctx context.Context, s *Session) (ImportOptions, error) {
	c.mu.Lock()
	if err := c.liveLocked(s); err != nil {
		c.mu.Unlock()
		return ImportOptions{}, err
	}
	if s.status != StatusAwaitingConfirmation || s.preview == nil {
		st := s.status
		c.mu.Unlock()
		return ImportOptions{}, stateError("confirm", st)
	}
	preview := *s.preview
	c.mu.Unlock()

	opts, accepted := DefaultImportOptions(), true
	if c.cfg.Prompter != nil {
		var err error
		opts, accepted, err = c.cfg.Prompter.Confirm(ctx, preview, DefaultImportOptions())
		if err != nil {
			return ImportOptions{}, err
		}
	}

	c.mu.Lock()
	if s.closed {
		c.mu.Unlock()
		return ImportOptions{}, ErrSessionClosed
	}
	if !accepted {
		c.mu.Unlock()
		c.log.WithFields(s.fields()).Info("import declined at confirmation")
		c.note.Notice("Import cancelled")
		return ImportOptions{}, ErrCancelled
	}
	if s.status != StatusAwaitingConfirmation {
		st := s.status
		c.mu.Unlock()
		return ImportOptions{}, stateError("confirm", st)
	}
	s.options = &opts
	snap := s.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap)
	return opts, nil
}

// SubmitImport asks the server to start the job with opts. The progress
// listener is registered only after the server accepts. From StatusFailed
// this retries the job without re-attaching the file.
func (c *Controller) SubmitImport(ctx context.Context, s *Session, opts ImportOptions) error {
	c.mu.Lock()
	if err := c.liveLocked(s); err != nil {
		c.mu.Unlock()
		return err
	}
	if (s.status != StatusAwaitingConfirmation && s.status != StatusFailed) || s.preview == nil {
		st := s.status
		c.mu.Unlock()
		return stateError("submit", st)
	}
	s.options = &opts
	s.status = StatusSubmitting
	s.submitBtn.Enabled = false
	s.err = nil
	s.indicator = IndicatorNone
	doctype, ref := s.doctype, s.fileRef
	snap := s.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	reply, err := c.cfg.Backend.StartExcelImport(ctx, doctype, ref, opts)

	c.mu.Lock()
	if s.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if err != nil || reply.Status != "success" {
		serr := &SubmissionError{Err: err}
		switch {
		case err != nil:
			serr.Message = userMessage(err)
		case reply.Message != "":
			serr.Message = reply.Message
		default:
			serr.Message = "the server did not accept the import"
		}
		s.status = StatusAwaitingConfirmation
		s.submitBtn = Affordance{Enabled: true, Label: LabelImport}
		s.err = serr
		snap := s.snapshotLocked()
		c.mu.Unlock()

		c.log.WithFields(s.fields()).WithError(serr).Warn("import submission failed")
		c.note.Error(serr.Message)
		c.emit(snap)
		return serr
	}

	s.status = StatusInProgress
	s.submitBtn = Affordance{Enabled: false, Label: LabelImporting}
	s.indicator = IndicatorRunning
	s.progress, s.total = 0, 0
	s.message = reply.Message
	c.subscribeLocked(s)
	c.armStallLocked(s)
	snap = s.snapshotLocked()
	c.mu.Unlock()

	started := reply.Message
	if started == "" {
		started = "Import started"
	}
	c.log.WithFields(s.fields()).WithField("options", opts.String()).Info("import job accepted")
	c.note.Notice(started)
	c.emit(snap)
	return nil
}

// Run drives preview, confirmation and submission in order.
func (c *Controller) Run(ctx context.Context, s *Session) (ImportOptions, error) {
	if _, err := c.RequestPreview(ctx, s); err != nil {
		return ImportOptions{}, err
	}
	opts, err := c.PresentMapping(ctx, s)
	if err != nil {
		return ImportOptions{}, err
	}
	if err := c.SubmitImport(ctx, s, opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// OnProgressEvent applies one progress push to s. Events for a session that
// is not the active one, or that is not importing, are ignored.
func (c *Controller) OnProgressEvent(s *Session, ev ProgressEvent) {
	c.mu.Lock()
	if s.closed || c.session != s {
		c.mu.Unlock()
		c.log.WithField("session_id", s.id).Debug("ignoring progress for stale session")
		return
	}
	if s.status != StatusInProgress {
		c.mu.Unlock()
		return
	}

	s.progress = ev.clamped()
	s.total = ev.Total
	s.message = ev.Message

	var notify func()
	switch ev.Status {
	case ProgressCompleted:
		s.status = StatusCompleted
		s.indicator = IndicatorSuccess
		c.unsubscribeLocked()
		c.stopStallLocked(s)
		s.finishTimer = c.clock.AfterFunc(c.cfg.DisplayDelay, func() { c.finishCompleted(s) })
		msg := ev.Message
		notify = func() { c.note.Notice(msg) }

	case ProgressError:
		s.status = StatusFailed
		s.indicator = IndicatorError
		s.submitBtn = Affordance{Enabled: true, Label: LabelImport}
		s.err = &RuntimeImportError{Message: ev.Message}
		c.unsubscribeLocked()
		c.stopStallLocked(s)
		msg := ev.Message
		notify = func() { c.note.Error(msg) }

	default:
		if ev.Status != ProgressInProgress {
			c.log.WithFields(s.fields()).WithField("event_status", ev.Status).Warn("unknown progress status, treating as in progress")
		}
		s.indicator = IndicatorRunning
		c.armStallLocked(s)
	}
	snap := s.snapshotLocked()
	c.mu.Unlock()

	if ev.Status == ProgressCompleted || ev.Status == ProgressError {
		c.log.WithFields(s.fields()).WithField("message", ev.Message).Info("import finished")
	}
	if notify != nil {
		notify()
	}
	c.emit(snap)
}

// finishCompleted runs after the display delay of a completed import.
func (c *Controller) finishCompleted(s *Session) {
	c.mu.Lock()
	if s.closed || c.session != s {
		c.mu.Unlock()
		return
	}
	s.finishTimer = nil
	lv := c.cfg.ListView
	c.mu.Unlock()

	if lv != nil && lv.Doctype() == s.doctype {
		lv.Refresh()
	}
	c.closeSession(s)
}

func (c *Controller) subscribeLocked(s *Session) {
	c.unsubscribeLocked()
	c.token = c.cfg.Events.Subscribe(ProgressEventName, func(payload json.RawMessage) {
		var ev ProgressEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.log.WithError(err).WithField("session_id", s.id).Warn("dropping undecodable progress event")
			return
		}
		c.OnProgressEvent(s, ev)
	})
}

func (c *Controller) unsubscribeLocked() {
	if c.token != 0 {
		c.cfg.Events.Unsubscribe(c.token)
		c.token = 0
	}
}

func (c *Controller) armStallLocked(s *Session) {
	if c.cfg.StallTimeout <= 0 {
		return
	}
	if s.stallTimer != nil {
		s.stallTimer.Stop()
	}
	s.stallGen++
	gen := s.stallGen
	s.stallTimer = c.clock.AfterFunc(c.cfg.StallTimeout, func() { c.onStall(s, gen) })
}

func (c *Controller) stopStallLocked(s *Session) {
	if s.stallTimer != nil {
		s.stallTimer.Stop()
		s.stallTimer = nil
	}
	s.stallGen++
}

func (c *Controller) onStall(s *Session, gen uint64) {
	c.mu.Lock()
	if s.closed || c.session != s || s.status != StatusInProgress || s.stallGen != gen {
		c.mu.Unlock()
		return
	}
	msg := fmt.Sprintf("no progress received for %s", c.cfg.StallTimeout)
	s.status = StatusFailed
	s.indicator = IndicatorError
	s.message = msg
	s.submitBtn = Affordance{Enabled: true, Label: LabelImport}
	s.err = &RuntimeImportError{Message: msg}
	s.stallTimer = nil
	c.unsubscribeLocked()
	snap := s.snapshotLocked()
	c.mu.Unlock()

	c.log.WithFields(s.fields()).Warn("import stalled")
	c.note.Error(msg)
	c.emit(snap)
}

func (c *Controller) liveLocked(s *Session) error {
	if s == nil || s.closed || c.session != s {
		return ErrSessionClosed
	}
	return nil
}

func (c *Controller) emit(snap Snapshot) {
	if c.cfg.Observer != nil {
		c.cfg.Observer(snap)
	}
}

type nopNotifier struct{}

func (nopNotifier) Notice(string) {}
func (nopNotifier) Error(string)  {}
