package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/originality/kit"
	"github.com/hazyhaar/originality/submission"
)

var submitFlags struct {
	course     string
	assignment string
	student    string
	parallel   int
	jsonOut    bool
}

var submitCmd = &cobra.Command{
	Use:   "submit <file>...",
	Short: "Run files through the pipeline and print their outcomes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSubmit,
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&submitFlags.course, "course", "", "course name (required)")
	f.StringVar(&submitFlags.assignment, "assignment", "", "assignment title (required)")
	f.StringVar(&submitFlags.student, "student", "", "student name recorded in the event log")
	f.IntVar(&submitFlags.parallel, "parallel", 0, "files processed concurrently (default: batch_parallel from config)")
	f.BoolVar(&submitFlags.jsonOut, "json", false, "print one JSON outcome per line")

	_ = submitCmd.MarkFlagRequired("course")
	_ = submitCmd.MarkFlagRequired("assignment")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel, os.Stderr)
	ctx := kit.WithTransport(cmd.Context(), "cli")

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	uploads := make([]submission.Upload, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		uploads = append(uploads, submission.Upload{
			CourseName:       submitFlags.course,
			AssignmentTitle:  submitFlags.assignment,
			OriginalFilename: filepath.Base(path),
			Content:          data,
			StudentName:      submitFlags.student,
		})
	}

	parallel := submitFlags.parallel
	if parallel <= 0 {
		parallel = cfg.BatchParallel
	}
	results := a.pipeline.SubmitBatch(ctx, uploads, parallel)

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Upload.OriginalFilename, r.Err)
			continue
		}
		if submitFlags.jsonOut {
			line, _ := json.Marshal(r.Outcome)
			fmt.Fprintln(out, string(line))
			continue
		}
		o := r.Outcome
		fmt.Fprintf(out, "%s\n", r.Upload.OriginalFilename)
		fmt.Fprintf(out, "  Words:     %d\n", o.WordCount)
		fmt.Fprintf(out, "  Score:     %.2f%% (%s)\n", o.Result.Score, o.Result.Status)
		fmt.Fprintf(out, "  Provider:  %s\n", o.Result.Provider)
		if o.Result.ScanID != "" {
			fmt.Fprintf(out, "  Scan:      %s\n", o.Result.ScanID)
		}
		fmt.Fprintf(out, "  Original:  %s\n", o.OriginalPath)
		fmt.Fprintf(out, "  Report:    %s\n", o.ReportPath)
		if o.ExtractionError != "" {
			fmt.Fprintf(out, "  Warning:   %s\n", o.ExtractionError)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(results))
	}
	return nil
}
