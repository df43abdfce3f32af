package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-trades-must-flow/internal/cli"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and maintain import runs",
	}

	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	cmd.AddCommand(runsExpireCmd())

	return cmd
}

func runsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent import runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			switch model.RunStatus(status) {
			case "", model.RunProcessing, model.RunComplete, model.RunFailed:
			default:
				return fmt.Errorf("unknown status %q", status)
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.ctrl.Runs(cmd.Context(), service.RunFilter{
				UserID: user,
				Status: model.RunStatus(status),
				Limit:  limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println(cli.FormatInfo("No import runs found"))
				return nil
			}

			fmt.Println(cli.RenderRuns(runs))
			return nil
		},
	}

	cmd.Flags().StringP("user", "u", "", "only runs for this user")
	cmd.Flags().String("status", "", "only runs in this status (processing, complete, failed)")
	cmd.Flags().IntP("limit", "n", 20, "maximum runs to show")

	return cmd
}

func runsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show JOB",
		Short: "Show one import run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.ctrl.Run(cmd.Context(), user, args[0])
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}

			title := fmt.Sprintf("%s %s (%s)", cli.ChartIcon, run.FileName, run.Status)
			fmt.Println(cli.RenderSummary(title, run.Summary))
			fmt.Printf("Next row: %d  Bytes: %d/%d\n", run.LastRowIndex, run.ProcessedBytes, run.TotalBytes)
			if run.FailureReason != "" {
				fmt.Println(cli.FormatError(run.FailureReason))
			}
			return nil
		},
	}

	cmd.Flags().StringP("user", "u", "", "user that owns the run (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runsExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Fail processing runs whose lease has expired",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.ctrl.ExpireStale(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to expire runs: %w", err)
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Expired %d stale run(s)", n)))
			return nil
		},
	}
}
