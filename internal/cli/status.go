package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/logger"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show target paths and recent stage history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n\n", bold("Triplet:"), a.target.Triplet)

			paths := []struct {
				label string
				path  string
			}{
				{"vcpkg", a.target.Executable},
				{"ffmpeg", a.cfg.SourcePath()},
				{"addon", a.cfg.AddonPath()},
				{"report", a.reports.Path()},
			}
			for _, p := range paths {
				mark := red("✗")
				if exists(p.path) {
					mark = green("✓")
				}
				fmt.Fprintf(out, " %s %s %s\n", mark, cyan(fmt.Sprintf("%-7s", p.label)), p.path)
			}

			if exists(a.cfg.StagingPath()) {
				fmt.Fprintf(out, " %s %s %s\n", yellow("!"), cyan(fmt.Sprintf("%-7s", "staging")), a.cfg.StagingPath())
			}

			archives, err := a.cache.List(a.cfg.Package.Name, a.cfg.Package.ArchiveExts)
			if err != nil {
				return err
			}
			if len(archives) > 0 {
				fmt.Fprintf(out, "\n%s\n\n", bold("Cached archives:"))
				for _, ar := range archives {
					fmt.Fprintf(out, " %s %s %s\n", dim("•"), filepath.Base(ar.Path),
						dim(ar.ModTime.Local().Format("2006-01-02 15:04:05")))
				}
			}

			report, err := a.reports.Load()
			if err != nil {
				logger.Logger().Warnf("failed to read %s: %v", a.reports.Path(), err)
			}
			if report != nil {
				fmt.Fprintf(out, "\n%s %s %s\n", bold("Last prepare:"),
					report.CompletedAt.Local().Format("2006-01-02 15:04:05"), dim(report.RunID))
				for _, f := range report.Files {
					fmt.Fprintf(out, "  %s %s\n", dim("↳"), f)
				}
			}

			history, err := a.state.History(limit)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Fprintf(out, "\n%s No runs recorded\n", dim("○"))
				return nil
			}

			fmt.Fprintf(out, "\n%s\n\n", bold("Recent stages:"))
			for _, r := range history {
				fmt.Fprintf(out, " %s %-9s %s %s\n", statusMark(r.Status), r.Stage,
					dim(r.StartedAt.Local().Format("2006-01-02 15:04:05")), r.Detail)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of stage records to show")
	return cmd
}

func statusMark(s domain.StageStatus) string {
	switch s {
	case domain.StatusDone:
		return green("✓")
	case domain.StatusSkipped:
		return dim("○")
	case domain.StatusFailed:
		return red("✗")
	default:
		return yellow("…")
	}
}
