// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cipl-app/xlimport/internal/importsvc"
	"github.com/cipl-app/xlimport/pkg/attach"
	"github.com/cipl-app/xlimport/pkg/frappe"
	"github.com/cipl-app/xlimport/pkg/realtime"
)

var (
	importDoctype  string
	importFile     string
	importDryRun   bool
	importYes      bool
	importJSON     bool
	importNoLog    bool
	importWizard   bool
	importNoCreate bool
	importNoUpdate bool
	importPublic   bool
)

// ImportResult is the JSON output structure
type ImportResult struct {
	Doctype  string                    `json:"doctype"`
	File     string                    `json:"file"`
	FileURL  string                    `json:"fileUrl"`
	Workbook *attach.Peek              `json:"workbook,omitempty"`
	Preview  *importsvc.MappingPreview `json:"preview,omitempty"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an Excel workbook into a doctype",
	Long: `Import an Excel workbook into a doctype.

This command:
  1. Uploads the workbook (or uses a file already on the site)
  2. Previews which columns map onto the doctype's fields
  3. Asks whether to create new records and update existing ones
  4. Starts the import job and follows its progress to the end

The doctype needs an excel_field_mapping record; see "xlimport fields".

Examples:
  # Import a local workbook
  xlimport import -d Customer -f customers.xlsx

  # Re-use a file already attached on the site
  xlimport import -d Customer -f /private/files/customers.xlsx

  # Only update existing records, no prompt
  xlimport import -d Customer -f customers.xlsx --no-create -y

  # Preview the mapping without importing
  xlimport import -d Customer -f customers.xlsx --dry-run

  # JSON output (for scripting, implies --dry-run)
  xlimport import -d Customer -f customers.xlsx --json

  # Interactive TUI wizard
  xlimport import --wizard
`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importDoctype, "doctype", "d", "", "Target doctype")
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Workbook path, or a /files/ or /private/files/ url on the site")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview the mapping without importing")
	importCmd.Flags().BoolVarP(&importYes, "yes", "y", false, "Skip confirmation")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "Output as JSON (for scripting)")
	importCmd.Flags().BoolVar(&importNoLog, "no-log", false, "Disable logging to file")
	importCmd.Flags().BoolVarP(&importWizard, "wizard", "w", false, "Launch interactive TUI wizard")
	importCmd.Flags().BoolVar(&importNoCreate, "no-create", false, "Do not create new records")
	importCmd.Flags().BoolVar(&importNoUpdate, "no-update", false, "Do not update existing records")
	importCmd.Flags().BoolVar(&importPublic, "public", false, "Upload the workbook as a public file")

	importCmd.RegisterFlagCompletionFunc("doctype", completeDoctypes)
	importCmd.RegisterFlagCompletionFunc("file", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"xlsx", "xls"}, cobra.ShellCompDirectiveFilterFileExt
	})

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client, err := newClient()
	if err != nil {
		return err
	}

	// Wizard mode - launch interactive TUI
	if importWizard {
		return RunImportWizard(ctx, client, importDoctype, importFile)
	}

	if importDoctype == "" || importFile == "" {
		return errors.New("--doctype and --file are required (or use --wizard)")
	}
	if err := attach.ValidateExtension(importFile); err != nil {
		return err
	}

	// JSON mode = dry-run (never import anything when outputting JSON)
	if importJSON {
		importDryRun = true
	}

	mode, user := client.CurrentMode(ctx)
	if mode != frappe.Connected {
		return &frappe.ModeError{Mode: mode, SiteURL: client.SiteURL()}
	}

	// Initialize logger (unless disabled or JSON mode)
	var logger *ImportLogger
	if !importNoLog && !importJSON {
		logger, err = NewImportLogger(cfg.LogDir, "import")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		}
	}
	defer func() {
		if logger != nil {
			logPath := logger.Close()
			if logPath != "" {
				fmt.Printf("\nLog: %s\n", logPath)
			}
		}
	}()

	logger.Log("Site: %s (as %s)", client.SiteURL(), user)
	logger.Log("Target doctype: %s", importDoctype)
	if importDryRun {
		logger.Log("Mode: dry-run")
	}

	// Step 1: Read the workbook locally
	result := ImportResult{Doctype: importDoctype, File: importFile}
	if !attach.IsServerRef(importFile) {
		peek, err := attach.Inspect(importFile)
		if err != nil {
			return err
		}
		result.Workbook = peek
		logger.LogWorkbook(importFile, peek)
		if !importJSON {
			printWorkbook(os.Stdout, importFile, peek)
		}
	}

	// Step 2: Upload
	attachOpts := []attach.Option{attach.WithLogger(log)}
	if importPublic || cfg.PublicFiles {
		attachOpts = append(attachOpts, attach.Public())
	}
	ref, err := attach.New(client, attachOpts...).Attach(ctx, importFile)
	if err != nil {
		return err
	}
	result.FileURL = ref
	logger.Log("File url: %s", ref)

	bus := realtime.NewBus()
	var sourceDone <-chan error
	if !importDryRun {
		rtCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		sourceDone, err = startRealtime(rtCtx, cfg, bus, userRoom(user), log)
		if err != nil {
			return err
		}
	}

	out := io.Writer(os.Stdout)
	if importJSON {
		out = io.Discard
	}
	runner := &importRunner{
		backend: frappeBackend{api: client},
		events:  bus,
		list: &recordList{doctype: importDoctype, api: client, report: func(msg string) {
			fmt.Fprintln(out, dimStyle.Render(msg))
		}},
		prompter: &consolePrompter{
			in:        bufio.NewReader(os.Stdin),
			out:       out,
			defaults:  importsvc.ImportOptions{AllowCreate: !importNoCreate, AllowUpdate: !importNoUpdate},
			assumeYes: importYes,
			logger:    logger,
		},
		notifier:     &consoleNotifier{out: out, err: os.Stderr},
		out:          out,
		logger:       logger,
		log:          log,
		displayDelay: cfg.DisplayDelay,
		stallTimeout: cfg.StallTimeout,
		sourceDone:   sourceDone,
	}

	snap, err := runner.run(ctx, importDoctype, ref, importDryRun)
	logger.LogResult(snap, err)
	if errors.Is(err, importsvc.ErrCancelled) {
		fmt.Println("Aborted.")
		return nil
	}
	if err != nil {
		return err
	}

	if importJSON {
		result.Preview = snap.Preview
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if importDryRun {
		fmt.Println("\n(dry-run mode - nothing imported)")
		fmt.Println("Run without --dry-run to import.")
	}
	return nil
}

// importRunner drives one session of the import controller to a final state
// and reports progress as text.
type importRunner struct {
	backend      importsvc.Backend
	events       *realtime.Bus
	list         importsvc.ListView
	prompter     importsvc.Prompter
	notifier     importsvc.Notifier
	out          io.Writer
	logger       *ImportLogger
	log          logrus.FieldLogger
	displayDelay time.Duration
	stallTimeout time.Duration
	sourceDone   <-chan error
	clock        importsvc.Clock
}

func (r *importRunner) run(ctx context.Context, doctype, ref string, dryRun bool) (importsvc.Snapshot, error) {
	changed := make(chan struct{}, 1)
	ctrl, err := importsvc.NewController(importsvc.Config{
		Backend:  r.backend,
		Events:   r.events,
		Notifier: r.notifier,
		Prompter: r.prompter,
		ListView: r.list,
		Observer: func(importsvc.Snapshot) {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
		DisplayDelay: r.displayDelay,
		StallTimeout: r.stallTimeout,
		Clock:        r.clock,
		Log:          r.log,
	})
	if err != nil {
		return importsvc.Snapshot{}, err
	}
	defer ctrl.CloseSession()

	s := ctrl.OpenImportDialog(doctype)
	if err := s.AttachFile(ref); err != nil {
		return s.Snapshot(), err
	}

	if dryRun {
		preview, err := ctrl.RequestPreview(ctx, s)
		if err != nil {
			return s.Snapshot(), err
		}
		r.logger.LogPreview(preview)
		printPreview(r.out, preview)
		return s.Snapshot(), nil
	}

	if _, err := ctrl.Run(ctx, s); err != nil {
		return s.Snapshot(), err
	}

	var last importsvc.Snapshot
	for {
		select {
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		case err := <-r.sourceDone:
			if err == nil {
				err = errors.New("realtime source closed")
			}
			return s.Snapshot(), fmt.Errorf("lost import progress: %w", err)
		case <-changed:
		}

		snap := s.Snapshot()
		if snap.Status == importsvc.StatusInProgress &&
			(snap.Progress != last.Progress || snap.Message != last.Message) {
			printProgress(r.out, snap)
		}
		last = snap

		switch {
		case snap.Status == importsvc.StatusFailed:
			return snap, snap.Err
		case snap.Closed && snap.Status == importsvc.StatusCompleted:
			return snap, nil
		case snap.Closed:
			return snap, importsvc.ErrSessionClosed
		}
	}
}

// consolePrompter shows the mapping preview and asks for the import options
// on the terminal.
type consolePrompter struct {
	in        *bufio.Reader
	out       io.Writer
	defaults  importsvc.ImportOptions
	assumeYes bool
	logger    *ImportLogger
}

func (p *consolePrompter) Confirm(ctx context.Context, preview importsvc.MappingPreview, _ importsvc.ImportOptions) (importsvc.ImportOptions, bool, error) {
	p.logger.LogPreview(preview)
	printPreview(p.out, preview)

	opts := p.defaults
	if p.assumeYes {
		return opts, true, nil
	}

	fmt.Fprintf(p.out, "\nCreate new records? %s ", yesNo(opts.AllowCreate))
	opts.AllowCreate = p.answer(opts.AllowCreate)
	fmt.Fprintf(p.out, "Update existing records? %s ", yesNo(opts.AllowUpdate))
	opts.AllowUpdate = p.answer(opts.AllowUpdate)
	if !opts.AllowCreate && !opts.AllowUpdate {
		fmt.Fprintln(p.out, warnStyle.Render("Neither creating nor updating is allowed; every row will be skipped."))
	}

	fmt.Fprintf(p.out, "Start import (%s)? [y/N] ", opts)
	if !p.answer(false) {
		p.logger.Log("User aborted import")
		return importsvc.ImportOptions{}, false, nil
	}
	return opts, true, nil
}

// answer returns the default if the user just presses enter
func (p *consolePrompter) answer(defaultYes bool) bool {
	response, err := p.in.ReadString('\n')
	if err != nil && response == "" {
		return defaultYes
	}
	response = strings.ToLower(strings.TrimSpace(response))
	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}

func yesNo(defaultYes bool) string {
	if defaultYes {
		return "[Y/n]"
	}
	return "[y/N]"
}

func printWorkbook(w io.Writer, path string, p *attach.Peek) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Workbook"), path)
	if len(p.Sheets) > 1 {
		fmt.Fprintf(w, "  Sheets: %s %s\n", strings.Join(p.Sheets, ", "), dimStyle.Render("(only "+p.Sheet+" is imported)"))
	}
	fmt.Fprintf(w, "  Columns (%d): %s\n", len(p.Headers), strings.Join(p.Headers, ", "))
	fmt.Fprintf(w, "  Data rows: %d\n\n", p.Rows)
}

func printPreview(w io.Writer, p importsvc.MappingPreview) {
	title := "Mapping preview"
	if p.TotalExcelColumns > 0 {
		title = fmt.Sprintf("Mapping preview (%d Excel columns)", p.TotalExcelColumns)
	}
	fmt.Fprintln(w, headerStyle.Render(title))
	fmt.Fprintf(w, "  %s Mapped (%d): %s\n", successStyle.Render("✓"), len(p.MappedFields), strings.Join(p.MappedFields, ", "))
	if len(p.MissingFields) > 0 {
		fmt.Fprintf(w, "  %s Not mapped, will be skipped (%d): %s\n", warnStyle.Render("!"), len(p.MissingFields), strings.Join(p.MissingFields, ", "))
	}
	if len(p.MissingInExcel) > 0 {
		fmt.Fprintf(w, "  %s Mapped but missing from the file (%d): %s\n", warnStyle.Render("!"), len(p.MissingInExcel), strings.Join(p.MissingInExcel, ", "))
	}
	if len(p.MissingFields) == 0 && len(p.MissingInExcel) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  Every column is mapped."))
	}
}

func printProgress(w io.Writer, snap importsvc.Snapshot) {
	line := fmt.Sprintf("%s %3d%%", progressBar(snap.Progress, 20), snap.Progress)
	if snap.Total > 0 {
		line += dimStyle.Render(fmt.Sprintf(" (%d rows)", snap.Total))
	}
	if snap.Message != "" {
		line += "  " + snap.Message
	}
	fmt.Fprintln(w, line)
}

func progressBar(pct, width int) string {
	filled := pct * width / 100
	return successStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", width-filled))
}
