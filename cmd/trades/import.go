package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-trades-must-flow/internal/cli"
	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/ingest"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// maxErrorRows bounds the rejected rows printed after an import.
const maxErrorRows = 10

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a broker trade export",
		Long: `Import executions from a broker export, committing one chunk at a time.

Supported inputs are CSV, TSV, XLSX, XLS, IBKR Flex XML and OFX/QFX. A
known broker layout is detected automatically; anything else is mapped by
header names, which --map can override.

Examples:
  # Import a Webull export
  trades import --user alice ~/Downloads/webull_orders.csv

  # Map columns by hand
  trades import --user alice --map timestamp="Trade Time" --map side=Action trades.xlsx

  # Resume an interrupted import
  trades import --user alice --resume 6f1c2d0e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().StringP("user", "u", "", "user the executions belong to (required)")
	cmd.Flags().StringP("account", "a", "", "broker account id stamped on every execution")
	cmd.Flags().String("type", "", "file type override (csv, tsv, xlsx, xls, xml, ofx)")
	cmd.Flags().String("preset", "", "force a broker preset instead of detection")
	cmd.Flags().StringArray("map", nil, "manual mapping as field=Column (repeatable)")
	cmd.Flags().Int("chunk-size", 0, "rows per chunk (default: import.chunk_size)")
	cmd.Flags().String("resume", "", "job id of an interrupted import to resume")
	cmd.Flags().Bool("keep-going", false, "continue past chunks in which every row was rejected")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	resume, _ := cmd.Flags().GetString("resume")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	keepGoing, _ := cmd.Flags().GetBool("keep-going")

	if resume == "" && len(args) == 0 {
		return common.NewUserErrorWithHint("a file to import is required",
			"pass a file path, or --resume JOB to continue an earlier import", nil)
	}

	override, err := mappingOverride(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if chunkSize <= 0 {
		chunkSize = a.config.ChunkSize
	}

	handler := cli.NewInterruptHandler(os.Stdout)
	ctx := handler.HandleInterrupts(cmd.Context())

	var session *ingest.Session
	var progress *cli.ImportProgress
	if resume != "" {
		run, err := a.ctrl.Run(ctx, user, resume)
		if err != nil {
			return fmt.Errorf("failed to load import %s: %w", resume, err)
		}
		session, err = ingest.ResumeSession(a.ctrl, run, chunkSize)
		if err != nil {
			return err
		}
		fmt.Println(cli.FormatInfo(fmt.Sprintf("Resuming %s at row %d", run.FileName, run.LastRowIndex)))
		progress = cli.NewImportProgress(os.Stderr, run.TotalBytes, run.ProcessedBytes)
	} else {
		session = ingest.NewSession(a.ctrl, user, chunkSize)
		start, err := beginImport(ctx, cmd, session, args[0], override)
		if err != nil {
			return err
		}
		progress = cli.NewImportProgress(os.Stderr, start.Run.TotalBytes, 0)
	}

	handler.SetResumeHint(fmt.Sprintf("trades import --user %s --resume %s", user, session.JobID()))

	last, err := importChunks(ctx, session, progress, keepGoing)
	if handler.WasInterrupted() {
		return nil
	}
	if err != nil {
		var failure *ingest.ChunkFailure
		if !errors.As(err, &failure) || failure.Response == nil {
			return fmt.Errorf("import failed at row %d: %w", session.Cursor(), err)
		}
		if failure.RunOpen {
			fmt.Println(cli.FormatInfo(fmt.Sprintf(
				"Skip the failed rows with: trades import --user %s --resume %s", user, session.JobID())))
		}
		return fmt.Errorf("import failed: %w", err)
	}

	run, err := a.ctrl.Run(ctx, user, session.JobID())
	if err != nil {
		return fmt.Errorf("failed to load finished import: %w", err)
	}

	fmt.Println(cli.RenderSummary(cli.ChartIcon+" Import complete", run.Summary))
	printErrorDetails(last)

	slog.Debug("Import finished",
		"job_id", run.JobID,
		"run_id", run.ID,
		"status", run.Status)
	return nil
}

// importChunks commits the session's chunks. With keepGoing, chunks whose
// rows were all rejected are reported and the import moves on.
func importChunks(ctx context.Context, session *ingest.Session, progress *cli.ImportProgress, keepGoing bool) (*ingest.ChunkResponse, error) {
	for {
		last, err := session.ImportAll(ctx, progress.Update)
		var failure *ingest.ChunkFailure
		if !errors.As(err, &failure) {
			return last, err
		}

		fmt.Println(cli.FormatError(failure.Reason))
		printErrorDetails(failure.Response)
		if !keepGoing || !failure.RunOpen {
			return last, err
		}
		slog.Info("Continuing past failed chunk", "job_id", session.JobID(), "row", session.Cursor())
	}
}

// beginImport uploads the file, reports the proposal and applies any
// mapping override.
func beginImport(ctx context.Context, cmd *cobra.Command, session *ingest.Session, file string, override *ingest.ConfigureRequest) (*ingest.StartResult, error) {
	account, _ := cmd.Flags().GetString("account")
	fileType, _ := cmd.Flags().GetString("type")

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}

	start, err := session.Begin(ctx, ingest.StartRequest{
		FileName:        filepath.Base(file),
		FileType:        fileType,
		BrokerAccountID: account,
		Data:            data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start import: %w", err)
	}

	fmt.Println(describeProposal(start))

	if override != nil {
		if err := session.Configure(ctx, *override); err != nil {
			return nil, common.NewUserError("mapping rejected", err)
		}
		fmt.Println(cli.FormatInfo(fmt.Sprintf("Using %s mapping", start.Mode)))
	}
	return start, nil
}

func describeProposal(start *ingest.StartResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s file, %d columns\n", cli.InfoIcon, strings.ToUpper(string(start.Type)), len(start.Headers))
	if start.Preset != nil {
		fmt.Fprintf(&b, "%s Best preset: %s (%.0f%% match)\n", cli.InfoIcon, start.Preset.Label, start.Preset.Score*100)
	}
	if start.Mode == model.ModePreset {
		b.WriteString(cli.FormatSuccess("Importing with preset " + start.Preset.Label))
		return b.String()
	}

	b.WriteString(cli.FormatWarning("No preset matched; mapping columns by header"))
	fields := make([]string, 0, len(start.Mapping))
	for _, f := range model.AllFields {
		if col, ok := start.Mapping[f]; ok {
			fields = append(fields, fmt.Sprintf("  %s ← %s", f, col))
		}
	}
	if len(fields) > 0 {
		b.WriteString("\n" + strings.Join(fields, "\n"))
	}
	return b.String()
}

// mappingOverride builds a configure request from --preset and --map.
func mappingOverride(cmd *cobra.Command) (*ingest.ConfigureRequest, error) {
	presetID, _ := cmd.Flags().GetString("preset")
	pairs, _ := cmd.Flags().GetStringArray("map")

	switch {
	case presetID != "" && len(pairs) > 0:
		return nil, common.NewUserError("--preset and --map cannot be combined", nil)
	case presetID != "":
		return &ingest.ConfigureRequest{Mode: model.ModePreset, PresetID: presetID}, nil
	case len(pairs) > 0:
		m, err := parseMapping(pairs)
		if err != nil {
			return nil, err
		}
		return &ingest.ConfigureRequest{Mode: model.ModeManual, Mapping: m}, nil
	default:
		return nil, nil
	}
}

func parseMapping(pairs []string) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		field, column, ok := strings.Cut(p, "=")
		field, column = strings.TrimSpace(field), strings.TrimSpace(column)
		if !ok || field == "" || column == "" {
			return nil, common.NewUserError(fmt.Sprintf("invalid --map %q: expected field=Column", p), nil)
		}
		m[field] = column
	}
	return m, nil
}

func printErrorDetails(resp *ingest.ChunkResponse) {
	if resp == nil || len(resp.ErrorDetails) == 0 {
		return
	}
	fmt.Println(cli.RenderErrorDetails(resp.ErrorDetails, maxErrorRows))
	if resp.ErrorsCSVURL != "" {
		fmt.Println(cli.FormatInfo("Full error report: " + resp.ErrorsCSVURL))
	}
}
