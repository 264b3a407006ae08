// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cipl-app/xlimport/internal/clierr"
	"github.com/cipl-app/xlimport/pkg/attach"
	"github.com/cipl-app/xlimport/pkg/fieldmap"
	"github.com/cipl-app/xlimport/pkg/frappe"
)

var (
	doctypesJSON  bool
	doctypesLimit int

	fieldsJSON  bool
	fieldsLimit int
	fieldsMatch string
)

var doctypesCmd = &cobra.Command{
	Use:   "doctypes [query]",
	Short: "Search the doctypes an import can target",
	Long: `Search the doctypes an import can target.

The mapping doctypes themselves (excel_field_mapping, field_mapping_child)
are never listed.

Examples:
  xlimport doctypes
  xlimport doctypes cust
  xlimport doctypes --json
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDoctypes,
}

var fieldsCmd = &cobra.Command{
	Use:   "fields <doctype> [query]",
	Short: "Suggest doctype fields for an excel_field_mapping row",
	Long: `Suggest doctype fields for an excel_field_mapping row.

Lists the fields of a doctype that can receive a column value, ranked
against an optional query typed the way you would in the mapping form.
Layout fields (sections, columns, tabs, tables) are skipped.

With --match, reads the header row of a local workbook and proposes a
field for every column, as a first draft of the mapping.

Examples:
  xlimport fields Customer
  xlimport fields Customer "cust name"
  xlimport fields Customer --match customers.xlsx
`,
	Args:              cobra.RangeArgs(1, 2),
	ValidArgsFunction: completeDoctypeArg,
	RunE:              runFields,
}

func init() {
	doctypesCmd.Flags().BoolVar(&doctypesJSON, "json", false, "Output as JSON")
	doctypesCmd.Flags().IntVar(&doctypesLimit, "limit", 50, "Maximum number of doctypes")

	fieldsCmd.Flags().BoolVar(&fieldsJSON, "json", false, "Output as JSON")
	fieldsCmd.Flags().IntVar(&fieldsLimit, "limit", 10, "Maximum number of suggestions (0 for all)")
	fieldsCmd.Flags().StringVar(&fieldsMatch, "match", "", "Workbook whose header row to match against the fields")
	fieldsCmd.RegisterFlagCompletionFunc("match", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"xlsx", "xls"}, cobra.ShellCompDirectiveFilterFileExt
	})

	rootCmd.AddCommand(doctypesCmd)
	rootCmd.AddCommand(fieldsCmd)
}

func runDoctypes(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	query := ""
	if len(args) > 0 {
		query = args[0]
	}

	names, err := client.SearchDoctypes(cmd.Context(), query, 0, doctypesLimit)
	if err != nil {
		return fmt.Errorf("search doctypes: %w", err)
	}
	if len(names) == 0 {
		fmt.Println(clierr.NothingFound("doctypes"))
		return nil
	}

	if doctypesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(names)
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

// fieldLister is satisfied by *frappe.Client.
type fieldLister interface {
	GetDoctypeFields(ctx context.Context, doctype string) ([]frappe.DocField, error)
}

// FieldSuggestion is the JSON form of a suggested field
type FieldSuggestion struct {
	Fieldname string `json:"fieldname"`
	Label     string `json:"label"`
	Fieldtype string `json:"fieldtype"`
	Required  bool   `json:"required,omitempty"`
	Unique    bool   `json:"unique,omitempty"`
}

// ColumnMatch pairs a workbook column with a proposed field
type ColumnMatch struct {
	Column    string `json:"column"`
	Fieldname string `json:"fieldname,omitempty"`
}

func runFields(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	doctype := args[0]
	fields, err := loadTargets(cmd.Context(), client, doctype)
	if err != nil {
		return err
	}

	if fieldsMatch != "" {
		peek, err := attach.Inspect(fieldsMatch)
		if err != nil {
			return err
		}
		matches := matchColumns(peek.Headers, fields)
		if fieldsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(matches)
		}
		printColumnMatches(os.Stdout, doctype, matches)
		return nil
	}

	query := ""
	if len(args) > 1 {
		query = args[1]
	}
	ranked := fieldmap.Suggest(query, fields, fieldsLimit)
	if len(ranked) == 0 {
		fmt.Println(clierr.NothingFound("fields of " + doctype))
		return nil
	}

	if fieldsJSON {
		out := make([]FieldSuggestion, 0, len(ranked))
		for _, f := range ranked {
			out = append(out, FieldSuggestion{Fieldname: f.Name, Label: f.Display(), Fieldtype: f.Type, Required: f.Required, Unique: f.Unique})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printFields(os.Stdout, ranked)
	return nil
}

func loadTargets(ctx context.Context, api fieldLister, doctype string) ([]fieldmap.Field, error) {
	docFields, err := api.GetDoctypeFields(ctx, doctype)
	if err != nil {
		return nil, fmt.Errorf("load fields of %s: %w", doctype, err)
	}
	fields := fieldmap.Targets(docFields)
	if len(fields) == 0 {
		return nil, fmt.Errorf("doctype %s has no importable fields", doctype)
	}
	return fields, nil
}

// matchColumns keeps the workbook's column order.
func matchColumns(headers []string, fields []fieldmap.Field) []ColumnMatch {
	m := fieldmap.Match(headers, fields)
	out := make([]ColumnMatch, 0, len(m))
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if _, ok := m[h]; !ok || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, ColumnMatch{Column: h, Fieldname: m[h]})
	}
	return out
}

func printFields(w io.Writer, fields []fieldmap.Field) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELDNAME\tLABEL\tTYPE\t")
	for _, f := range fields {
		var flags []string
		if f.Required {
			flags = append(flags, "required")
		}
		if f.Unique {
			flags = append(flags, "unique")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, f.Display(), f.Type, dimStyle.Render(strings.Join(flags, ",")))
	}
	tw.Flush()
}

func printColumnMatches(w io.Writer, doctype string, matches []ColumnMatch) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Proposed mapping for"), doctype)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	var unmatched []string
	for _, m := range matches {
		if m.Fieldname == "" {
			unmatched = append(unmatched, m.Column)
			continue
		}
		fmt.Fprintf(tw, "  %s\t→ %s\n", m.Column, m.Fieldname)
	}
	tw.Flush()
	if len(unmatched) > 0 {
		sort.Strings(unmatched)
		fmt.Fprintf(w, "%s %s\n", warnStyle.Render("No candidate:"), strings.Join(unmatched, ", "))
	}
}
