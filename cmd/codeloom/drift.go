package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeloom/codeloom/drift"
)

func driftCmd(opts *cliOptions) *cobra.Command {
	var noSave bool

	cmd := &cobra.Command{
		Use:   "drift <baseline.json> [current.json]",
		Short: "Compare two graph snapshots and report structural drift",
		Long: `Compares a baseline graph snapshot against the current one, runs the
drift rules, and appends the report to the history directory.

Exit status follows the automation contract: zero when the report has
no blocking findings, non-zero when it has one or more. Advisory flags
never affect the exit status.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}

			baseline, err := loadGraph(cfg, args[0])
			if err != nil {
				return fmt.Errorf("load baseline: %w", err)
			}
			currentPath := ""
			if len(args) == 2 {
				currentPath = args[1]
			}
			current, err := loadGraph(cfg, currentPath)
			if err != nil {
				return fmt.Errorf("load current: %w", err)
			}

			report := drift.NewDetector(logger).Compare(baseline, current)

			if !noSave {
				path, err := drift.NewHistory(cfg.HistoryDir(), logger).Write(report)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", path)
			}

			if err := printJSON(report); err != nil {
				return err
			}
			if report.HasBlocks() {
				return fmt.Errorf("drift check failed: %d blocking finding(s)", len(report.Blocks))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not append the report to the history")
	return cmd
}

func historyCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the drift report archive",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List archived drift reports in chronological order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup(opts)
				if err != nil {
					return err
				}
				names, err := drift.NewHistory(cfg.HistoryDir(), logger).List()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show [report-name]",
			Short: "Print an archived drift report (latest by default)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup(opts)
				if err != nil {
					return err
				}
				h := drift.NewHistory(cfg.HistoryDir(), logger)

				var report *drift.Report
				if len(args) == 1 {
					report, err = h.Load(args[0])
				} else {
					report, err = h.Latest()
				}
				if err != nil {
					return err
				}
				return printJSON(report)
			},
		},
	)

	return cmd
}
