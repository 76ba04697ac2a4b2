package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/logger"
)

func newPrepareCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Bootstrap vcpkg, install FFmpeg, extract and patch its sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()

			return a.run(func() error {
				deps, err := a.mgr.Run(ctx)
				if deps.Bootstrap != nil {
					a.printBootstrap(deps.Bootstrap)
				}
				if deps.Install != nil {
					a.printInstall(deps.Install)
				}
				if deps.Extract != nil {
					a.printExtract(deps.Extract)
				}
				if err != nil {
					return err
				}

				res, err := a.patch(ctx)
				if err != nil {
					return err
				}

				report := &domain.Report{
					RunID:       a.state.RunID(),
					ToolRoot:    a.target.Root,
					ToolExe:     a.target.Executable,
					Triplet:     a.target.Triplet,
					SourceDir:   a.cfg.SourcePath(),
					AddonDir:    a.cfg.AddonPath(),
					Files:       res.Files,
					CompletedAt: time.Now().UTC(),
				}
				if stages, err := a.state.Stages(report.RunID); err == nil {
					report.Stages = stages
				}
				if err := a.reports.Save(report); err != nil {
					logger.Logger().Warnf("failed to write %s: %v", a.reports.Path(), err)
				}

				printReport(report, a.reports.Path())
				return nil
			})
		},
	}
}

func printReport(r *domain.Report, path string) {
	printDone("prepare", "addon sources ready")
	printPath("vcpkg", r.ToolRoot)
	printPath("exe", r.ToolExe)
	printPath("ffmpeg", r.SourceDir)
	printPath("addon", r.AddonDir)
	printPath("report", path)
}
