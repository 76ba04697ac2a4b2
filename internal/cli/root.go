package cli

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/teamcutter/addonforge/internal/addon"
	"github.com/teamcutter/addonforge/internal/cache"
	"github.com/teamcutter/addonforge/internal/config"
	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/extractor"
	"github.com/teamcutter/addonforge/internal/logger"
	"github.com/teamcutter/addonforge/internal/manager"
	"github.com/teamcutter/addonforge/internal/retry"
	"github.com/teamcutter/addonforge/internal/runner"
	"github.com/teamcutter/addonforge/internal/state"
)

type globalFlags struct {
	config  string
	triplet string
	verbose bool
}

func Execute(ctx context.Context) error {
	defer logger.Sync()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "addonforge",
		Short:         "Prepare FFmpeg sources for a Node.js native addon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(flags.verbose)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to addonforge.toml")
	rootCmd.PersistentFlags().StringVar(&flags.triplet, "triplet", "", "Override the vcpkg triplet")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newPrepareCmd(flags),
		newBootstrapCmd(flags),
		newInstallCmd(flags),
		newExtractCmd(flags),
		newPatchCmd(flags),
		newStatusCmd(flags),
		newDoctorCmd(flags),
		newCleanCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)

	return rootCmd
}

// FormatError renders a command failure for stderr.
func FormatError(err error) string {
	var se *domain.StageError
	if errors.As(err, &se) {
		return fmt.Sprintf("%s %s failed: %v", red("✗"), se.Stage, se.Err)
	}
	return fmt.Sprintf("%s %v", red("✗"), err)
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.triplet != "" {
		cfg.Package.Triplet = flags.triplet
	}
	return cfg, nil
}

func targetFor(cfg *config.Config) domain.InstallTarget {
	return domain.NewInstallTarget(cfg.ToolRoot(), runtime.GOOS, runtime.GOARCH, cfg.Package.Triplet)
}

// app wires the collaborators one command needs.
type app struct {
	cfg      *config.Config
	target   domain.InstallTarget
	state    *state.SQLiteState
	reports  *state.ReportWriter
	cache    *cache.DownloadCache
	mgr      *manager.Manager
	preparer *addon.Preparer
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	st, err := state.NewSQLite(cfg.StatePath())
	if err != nil {
		return nil, err
	}

	target := targetFor(cfg)
	c := cache.New(target.DownloadsDir())

	mgr := manager.New(
		runner.New(),
		c,
		extractor.New(extractor.WithProgress(extractProgress)),
		st,
		manager.Options{
			Target: target,
			Requirement: domain.PackageRequirement{
				Name:     cfg.Package.Name,
				Features: cfg.Package.Features,
				Triplet:  target.Triplet,
			},
			Mirrors:     cfg.Mirrors,
			CloneDepth:  cfg.CloneDepth,
			ArchiveExts: cfg.Package.ArchiveExts,
			SourceDir:   cfg.SourcePath(),
			StagingDir:  cfg.StagingPath(),
			Policy: retry.Policy{
				MaxAttempts: cfg.Retry.MaxAttempts,
				BaseBackoff: cfg.Retry.Backoff.Duration,
			},
		})

	return &app{
		cfg:      cfg,
		target:   target,
		state:    st,
		reports:  state.NewReportWriter(cfg.ReportPath()),
		cache:    c,
		mgr:      mgr,
		preparer: addon.New(cfg.SourcePath(), cfg.AddonPath(), target),
	}, nil
}

func (a *app) Close() error {
	return a.state.Close()
}

// run journals fn as one run and closes it with the matching status.
func (a *app) run(fn func() error) error {
	if _, err := a.state.StartRun(); err != nil {
		logger.Logger().Warnf("journal: start run: %v", err)
	}

	err := fn()

	status := domain.StatusDone
	if err != nil {
		status = domain.StatusFailed
	}
	if jerr := a.state.EndRun(status); jerr != nil {
		logger.Logger().Warnf("journal: end run: %v", jerr)
	}
	return err
}
