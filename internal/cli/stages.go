package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/teamcutter/addonforge/internal/addon"
	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/manager"
)

func (a *app) bootstrap(ctx context.Context) error {
	res, err := a.mgr.Bootstrap(ctx)
	if err != nil {
		return err
	}
	a.printBootstrap(res)
	return nil
}

func (a *app) install(ctx context.Context) error {
	res, err := a.mgr.Install(ctx)
	if err != nil {
		return err
	}
	a.printInstall(res)
	return nil
}

func (a *app) extract(ctx context.Context) error {
	res, err := a.mgr.Extract(ctx)
	if err != nil {
		return err
	}
	a.printExtract(res)
	return nil
}

func (a *app) printBootstrap(res *manager.BootstrapResult) {
	if res.Skipped {
		printSkipped("bootstrap", "vcpkg already present at "+a.target.Root)
		return
	}
	printDone("bootstrap", fmt.Sprintf("cloned %s %s", res.Mirror, dim(fmt.Sprintf("(%d attempt(s))", res.Attempts))))
}

func (a *app) printInstall(res *manager.InstallResult) {
	spec := a.mgr.Requirement().Spec()
	switch {
	case res.Skipped:
		printSkipped("install", spec+" already installed")
	case res.Removed:
		printDone("install", fmt.Sprintf("%s %s", spec, dim("(reinstalled with "+strings.Join(res.Status.Missing, ",")+")")))
	default:
		printDone("install", spec)
	}
}

func (a *app) printExtract(res *manager.ExtractResult) {
	if res.Skipped {
		printSkipped("extract", res.Path+" already present")
		return
	}
	printDone("extract", fmt.Sprintf("%s → %s", filepath.Base(res.Archive), res.Path))
}

func (a *app) patch(ctx context.Context) (*addon.Result, error) {
	var res *addon.Result
	err := manager.Track(a.state, domain.StagePatch, "", func() (domain.StageStatus, string, error) {
		stop := withSpinner(ctx, "Preparing addon sources...")
		var err error
		res, err = a.preparer.Prepare(ctx)
		stop()
		if err != nil {
			return domain.StatusFailed, "", err
		}
		if len(res.Written) == 0 && !res.ConfigCreated {
			return domain.StatusSkipped, "sources up to date", nil
		}
		return domain.StatusDone, fmt.Sprintf("%d file(s) written", len(res.Written)), nil
	})
	if err != nil {
		return nil, err
	}

	for _, job := range res.Jobs {
		if job.Skipped {
			fmt.Printf("  %s %s %s\n", yellow("!"), job.Job, dim("(not found, skipped)"))
			continue
		}
		fmt.Printf("  %s %s %s\n", dim("•"), job.Job, dim(fmt.Sprintf("(%d of %d edit(s) applied)", job.Applied(), len(job.Steps))))
	}
	if len(res.Written) == 0 && !res.ConfigCreated {
		printSkipped("patch", "addon sources up to date")
	} else {
		printDone("patch", fmt.Sprintf("%d file(s) written", len(res.Written)))
		for _, w := range res.Written {
			fmt.Printf("  %s %s\n", dim("↳"), w)
		}
	}
	return res, nil
}
