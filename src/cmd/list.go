package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/admi-n/poc-excavator/src/internal/handler"
	"github.com/admi-n/poc-excavator/src/internal/progress"
	"github.com/admi-n/poc-excavator/src/internal/report"
)

var errNoProgress = errors.New("进度库未启用 (progress.enabled=false)")

var listFlags struct {
	since  string
	source string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "列出 source 目录下的 PoC 项目",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyDirFlags(listFlags.source, listFlags.since)
		projects, err := handler.ListProjects(settings.Pipeline.SourceDir, settings.Pipeline.Since, report.DefaultReportName)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tPROJECT\tREPORT\tPATH")
		reported := 0
		for _, p := range projects {
			mark := "-"
			if p.HasReport {
				mark = "✅"
				reported++
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Date, p.Name, mark, p.Path)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n共 %d 个项目，%d 个已有报告\n", len(projects), reported)
		return nil
	},
}

var progressFlags struct {
	runs  bool
	reset bool
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "查看或重置断点续跑进度",
	RunE:  runProgress,
}

func init() {
	listCmd.Flags().StringVar(&listFlags.since, "since", "", "只列出不早于该日期目录的项目")
	listCmd.Flags().StringVar(&listFlags.source, "source", "", "PoC 根目录")

	progressCmd.Flags().BoolVar(&progressFlags.runs, "runs", false, "显示历史运行记录")
	progressCmd.Flags().BoolVar(&progressFlags.reset, "reset", false, "清空已完成项目")
}

func runProgress(cmd *cobra.Command, args []string) error {
	if !settings.Progress.Enabled {
		return errNoProgress
	}
	tracker, err := progress.NewTracker(settings.Progress.Path, logger)
	if err != nil {
		return err
	}
	defer tracker.Close()

	if progressFlags.reset {
		if err := tracker.Reset(); err != nil {
			return err
		}
		logger.Infof("🗑️  已清空进度: %s", tracker.Path())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if progressFlags.runs {
		runs, err := tracker.Runs()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "RUN\tPROVIDER\tSTARTED\tWRITTEN\tSKIPPED\tFAILED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n", r.RunID, r.Provider,
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Written, r.Skipped, r.Failed)
		}
		return w.Flush()
	}

	entries, err := tracker.List()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "DONE AT\tRUN\tSOURCE\tREPORT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.DoneAt.Format("2006-01-02 15:04:05"), e.RunID, e.SourcePath, e.ReportPath)
	}
	return w.Flush()
}
