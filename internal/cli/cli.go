// Package cli implements the command-line interface over a review session.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/medixtract-review/internal/domain"
	"github.com/medixtract-review/internal/filter"
	"github.com/medixtract-review/internal/fuse"
	"github.com/medixtract-review/internal/journal"
	"github.com/medixtract-review/internal/schemaio"
	"github.com/medixtract-review/internal/session"
)

// CLI dispatches subcommands against one session.
type CLI struct {
	session   *session.Session
	journal   *journal.Journal
	schemaDir string
	log       *logrus.Logger
}

// New creates a CLI. The journal may be nil when journaling is disabled.
func New(s *session.Session, j *journal.Journal, schemaDir string, logger *logrus.Logger) *CLI {
	return &CLI{session: s, journal: j, schemaDir: schemaDir, log: logger}
}

// Run executes the subcommand named by the first argument.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "status":
		return c.showStatus()
	case "patients":
		return c.listPatients()
	case "summary":
		return c.showSummary(args[1:])
	case "patient":
		return c.showPatient(args[1:])
	case "filter":
		return c.runFilter(args[1:])
	case "set":
		return c.setClassification(ctx, args[1:])
	case "delete":
		return c.deleteClassification(ctx, args[1:])
	case "save":
		return c.save()
	case "export":
		return c.export(args[1:])
	case "fuse":
		return c.fuse(args[1:])
	case "journal":
		return c.showJournal(ctx, args[1:])
	case "watch":
		return c.watch(ctx)
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		return c.showHelp()
	}
}

// showHelp displays usage information.
func (c *CLI) showHelp() error {
	help := `
MediXtract Review

Usage:
  medixtract-review <command> [options]

Commands:
  status          Show the loaded document set and document-wide totals
  patients        List every patient with classification data
  summary <var>   Show the per-category summary for one variable
  patient <id>    Show the per-category overview for one patient
  filter          List variables matching filter criteria
  set             Write a classification record
  delete          Remove a classification record
  save            Snapshot the working document as the next version
  export <path>   Write a metadata-free copy of the working document
  fuse <path>     Merge a performance dataset into the working document
  journal         List recent journal entries
  watch           Watch the schema directory and reload on changes

Examples:
  # Classify one variable for one patient
  medixtract-review set --variable ef_value --patient patient_003 \
      --flags correction,questioned --severity 5 --comment "unit mismatch"

  # List enum variables in the labs group that still have errors
  medixtract-review filter --types enum --groups labs --errors true

  # Snapshot the current state as a new schema version
  medixtract-review save
`
	fmt.Println(help)
	return nil
}

// showStatus prints the version set and the document totals.
func (c *CLI) showStatus() error {
	fmt.Println("MediXtract Review Status")
	fmt.Println("========================")
	fmt.Println()

	versions := c.session.Versions()
	fmt.Println("Document set:")
	fmt.Printf("  Schema directory: %s\n", c.schemaDir)
	fmt.Printf("  Versions loaded: %d\n", len(versions))
	fmt.Printf("  Current version: %d\n", c.session.CurrentVersion())
	fmt.Println()

	totals := c.session.Totals()
	fmt.Println("Working document:")
	fmt.Printf("  Variables: %d\n", totals.TotalVariables)
	fmt.Printf("  Classified fields: %d\n", totals.ClassifiedFields)
	fmt.Printf("  Distinct patients: %d\n", totals.DistinctPatients)
	fmt.Println()

	fmt.Println("Records by category:")
	for _, f := range domain.AllFlags() {
		if n := totals.RecordsByCategory[f]; n > 0 {
			fmt.Printf("  %-22s %d\n", f, n)
		}
	}
	return nil
}

// listPatients prints every patient ID with at least one record.
func (c *CLI) listPatients() error {
	patients := c.session.Patients()
	if len(patients) == 0 {
		fmt.Println("No classification data yet.")
		return nil
	}
	for _, id := range patients {
		overview := c.session.PatientOverview(id)
		fmt.Printf("%s  (%d fields)\n", id, overview.TotalFields)
	}
	return nil
}

// showSummary prints the category table for one variable.
func (c *CLI) showSummary(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: summary <variable>")
	}
	s := c.session.VariableSummary(args[0])
	fmt.Printf("Variable: %s\n", s.VariableID)
	fmt.Printf("Patients classified: %d\n\n", s.TotalPatients)
	for _, col := range s.Categories {
		fmt.Printf("  %-22s %-14s %d\n", col.Flag, col.Group, col.Count)
	}
	return nil
}

// showPatient prints the category table for one patient.
func (c *CLI) showPatient(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: patient <patient_id>")
	}
	id := domain.FormatPatientID(args[0])
	o := c.session.PatientOverview(id)
	fmt.Printf("Patient: %s\n", o.PatientID)
	fmt.Printf("Classified fields: %d\n\n", o.TotalFields)
	for _, col := range o.Categories {
		fmt.Printf("  %-22s %-14s %d\n", col.Flag, col.Group, col.Count)
	}
	return nil
}

// runFilter parses filter options and prints the matching variable keys.
func (c *CLI) runFilter(args []string) error {
	spec := filter.Spec{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--search", "-s":
			if i+1 < len(args) {
				spec.Search = args[i+1]
				i++
			}
		case "--types", "-t":
			if i+1 < len(args) {
				spec.Types = strings.Split(args[i+1], ",")
				i++
			}
		case "--groups", "-g":
			if i+1 < len(args) {
				spec.Groups = strings.Split(args[i+1], ",")
				i++
			}
		case "--comments":
			if i+1 < len(args) {
				spec.Comments = filter.TriState(args[i+1])
				i++
			}
		case "--errors":
			if i+1 < len(args) {
				spec.Errors = filter.TriState(args[i+1])
				i++
			}
		case "--changes":
			if i+1 < len(args) {
				spec.Changes = filter.TriState(args[i+1])
				i++
			}
		case "--improvements":
			if i+1 < len(args) {
				spec.Improvements = filter.TriState(args[i+1])
				i++
			}
		}
	}

	for _, t := range []filter.TriState{spec.Comments, spec.Errors, spec.Changes, spec.Improvements} {
		if t != "" && !t.IsValid() {
			return fmt.Errorf("tri-state options accept all, true or false, got '%s'", t)
		}
	}

	matched := c.session.Filter(spec)
	fmt.Printf("%d variables match\n", len(matched))
	for _, key := range matched {
		fmt.Printf("  %s\n", key)
	}
	return nil
}

// setClassification parses options and writes one record.
func (c *CLI) setClassification(ctx context.Context, args []string) error {
	var variableID, patientID, flagList, comment string
	severity := 0

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--variable", "-v":
			if i+1 < len(args) {
				variableID = args[i+1]
				i++
			}
		case "--patient", "-p":
			if i+1 < len(args) {
				patientID = args[i+1]
				i++
			}
		case "--flags", "-f":
			if i+1 < len(args) {
				flagList = args[i+1]
				i++
			}
		case "--severity":
			if i+1 < len(args) {
				n, err := strconv.Atoi(args[i+1])
				if err != nil {
					return fmt.Errorf("invalid severity '%s'", args[i+1])
				}
				severity = n
				i++
			}
		case "--comment":
			if i+1 < len(args) {
				comment = args[i+1]
				i++
			}
		}
	}

	if variableID == "" || patientID == "" || flagList == "" {
		return fmt.Errorf("usage: set --variable <var> --patient <id> --flags <flag,...> [--severity N] [--comment text]")
	}

	flags := domain.NewFlagSet()
	for _, name := range strings.Split(flagList, ",") {
		flags[domain.Flag(strings.TrimSpace(name))] = true
	}

	res, err := c.session.SetClassification(ctx, variableID, domain.FormatPatientID(patientID), flags, severity, comment)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Recorded %s for %s\n", variableID, patientID)
	for _, s := range res.Suggestions {
		fmt.Printf("  ⚠ %s\n", s.Message)
	}
	return nil
}

// deleteClassification removes one record.
func (c *CLI) deleteClassification(ctx context.Context, args []string) error {
	var variableID, patientID string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--variable", "-v":
			if i+1 < len(args) {
				variableID = args[i+1]
				i++
			}
		case "--patient", "-p":
			if i+1 < len(args) {
				patientID = args[i+1]
				i++
			}
		}
	}

	if variableID == "" || patientID == "" {
		return fmt.Errorf("usage: delete --variable <var> --patient <id>")
	}

	if c.session.DeleteClassification(ctx, variableID, domain.FormatPatientID(patientID)) {
		fmt.Printf("✓ Removed %s for %s\n", variableID, patientID)
	} else {
		fmt.Println("Nothing to remove.")
	}
	return nil
}

// save snapshots the working document as the next version.
func (c *CLI) save() error {
	receipt, err := c.session.Save()
	if err != nil {
		return err
	}
	fmt.Printf("✓ Saved version %d (save %s)\n", receipt.Version, receipt.ID)
	return nil
}

// export writes a metadata-free copy of the working document.
func (c *CLI) export(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: export <path>")
	}
	if err := c.session.ExportClean(args[0]); err != nil {
		return err
	}
	fmt.Printf("✓ Exported cleaned schema to %s\n", args[0])
	return nil
}

// fuse merges a performance dataset file into the working document.
func (c *CLI) fuse(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: fuse <performance.json> [--strict]")
	}
	strict := false
	for _, a := range args[1:] {
		if a == "--strict" {
			strict = true
		}
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading performance data: %w", err)
	}
	var src fuse.PerformanceSource
	if err := json.Unmarshal(data, &src); err != nil {
		return fmt.Errorf("parsing performance data: %w", err)
	}

	report, err := c.session.Fuse(src, strict)
	if err != nil {
		return err
	}

	fmt.Println("Fusion complete")
	fmt.Printf("  Fused into existing variables: %d\n", report.Fused)
	fmt.Printf("  Placeholders created: %d\n", report.Created)
	fmt.Printf("  Patients: %d\n", len(report.Patients))
	if len(report.Missing) > 0 {
		fmt.Println("  Missing variables (created as placeholders):")
		for _, name := range report.Missing {
			fmt.Printf("    - %s\n", name)
		}
	}
	return nil
}

// showJournal lists recent journal entries, newest first.
func (c *CLI) showJournal(ctx context.Context, args []string) error {
	if c.journal == nil {
		fmt.Println("Journal is disabled.")
		return nil
	}

	limit := 20
	for i := 0; i < len(args); i++ {
		if args[i] == "--limit" && i+1 < len(args) {
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid limit '%s'", args[i+1])
			}
			limit = n
			i++
		}
	}

	entries, err := c.journal.List(ctx, limit, 0)
	if err != nil {
		return err
	}
	count, err := c.journal.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Journal entries: %d total, showing %d\n\n", count, len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-6s %s/%s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Op, e.VariableID, e.PatientID)
		if len(e.Flags) > 0 {
			line += "  [" + strings.Join(e.Flags, ",") + "]"
		}
		if e.Severity > 0 {
			line += fmt.Sprintf("  severity=%d", e.Severity)
		}
		fmt.Println(line)
	}
	return nil
}

// watch reloads the session whenever a schema file changes, until a shutdown
// signal arrives.
func (c *CLI) watch(ctx context.Context) error {
	watcher, err := schemaio.NewWatcher(c.schemaDir, func(v int, path string) {
		if err := c.session.Load(); err != nil {
			c.log.WithError(err).Error("Reload after schema change failed")
			return
		}
		c.log.WithField("version", c.session.CurrentVersion()).Info("Reloaded document set")
	}, c.log)
	if err != nil {
		return err
	}

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", c.schemaDir)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-sigChan:
		fmt.Println("\nShutdown signal received, stopping watcher...")
	}
	return nil
}
