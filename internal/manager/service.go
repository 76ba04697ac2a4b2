package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/extractor"
	"github.com/teamcutter/addonforge/internal/logger"
	"github.com/teamcutter/addonforge/internal/retry"
)

type Options struct {
	Target      domain.InstallTarget
	Requirement domain.PackageRequirement
	Mirrors     domain.MirrorList
	CloneDepth  int
	ArchiveExts []string
	// SourceDir is where the extracted tree ends up; StagingDir is the
	// scratch directory it is unpacked into first.
	SourceDir  string
	StagingDir string
	Policy     retry.Policy
	Sleep      retry.Sleeper
}

type Manager struct {
	runner    domain.Runner
	locator   domain.ArchiveLocator
	extractor domain.Extractor
	journal   domain.Journal
	opts      Options
}

func New(
	runner domain.Runner,
	locator domain.ArchiveLocator,
	extractor domain.Extractor,
	journal domain.Journal,
	opts Options,
) *Manager {
	if journal == nil {
		journal = nopJournal{}
	}
	if opts.CloneDepth < 1 {
		opts.CloneDepth = 1
	}
	if opts.Requirement.Triplet == "" {
		opts.Requirement.Triplet = opts.Target.Triplet
	}

	return &Manager{
		runner:    runner,
		locator:   locator,
		extractor: extractor,
		journal:   journal,
		opts:      opts,
	}
}

func (m *Manager) Requirement() domain.PackageRequirement {
	return m.opts.Requirement
}

type BootstrapResult struct {
	Skipped  bool
	Mirror   string
	Attempts int
}

type InstallResult struct {
	Skipped  bool
	Removed  bool
	Attempts int
	Status   domain.FeatureStatus
}

type ExtractResult struct {
	Skipped bool
	Archive string
	TopDir  string
	Path    string
}

type Result struct {
	Bootstrap *BootstrapResult
	Install   *InstallResult
	Extract   *ExtractResult
}

// Run executes bootstrap, install and extract in order and stops at the
// first failure. Every stage re-probes its own precondition, so Run is safe
// to repeat after an interruption.
func (m *Manager) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	b, err := m.Bootstrap(ctx)
	if err != nil {
		return res, err
	}
	res.Bootstrap = b

	i, err := m.Install(ctx)
	if err != nil {
		return res, err
	}
	res.Install = i

	e, err := m.Extract(ctx)
	if err != nil {
		return res, err
	}
	res.Extract = e

	return res, nil
}

func (m *Manager) Bootstrap(ctx context.Context) (*BootstrapResult, error) {
	var res *BootstrapResult
	err := Track(m.journal, domain.StageBootstrap, "", func() (domain.StageStatus, string, error) {
		var err error
		res, err = m.bootstrap(ctx)
		if err != nil {
			return domain.StatusFailed, "", err
		}
		if res.Skipped {
			return domain.StatusSkipped, "executable present", nil
		}
		return domain.StatusDone, fmt.Sprintf("cloned from %s in %d attempt(s)", res.Mirror, res.Attempts), nil
	})
	return res, err
}

func (m *Manager) bootstrap(ctx context.Context) (*BootstrapResult, error) {
	log := logger.Logger()
	target := m.opts.Target

	if isFile(target.Executable) {
		log.Debugf("bootstrap: %s present, skipping", target.Executable)
		return &BootstrapResult{Skipped: true}, nil
	}

	if err := m.checkGit(ctx); err != nil {
		return nil, err
	}

	r := retry.Runner{
		Policy: m.opts.Policy,
		Sleep:  m.opts.Sleep,
		Cleanup: func() error {
			return os.RemoveAll(target.Root)
		},
	}

	outcome, err := r.Mirrors(ctx, m.opts.Mirrors, func(ctx context.Context, mirror string) error {
		log.Infof("cloning %s into %s", mirror, target.Root)
		cmd := domain.Command{
			Name: "git",
			Args: []string{"clone", "--depth", strconv.Itoa(m.opts.CloneDepth), mirror, target.Root},
		}
		return m.expectSuccess(ctx, cmd)
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return nil, fmt.Errorf("%w: %w", domain.ErrBootstrapExhausted, err)
		}
		return nil, err
	}

	if err := m.runBootstrapScript(ctx); err != nil {
		return nil, err
	}

	if !isFile(target.Executable) {
		return nil, fmt.Errorf("%w: %s not found after bootstrap", domain.ErrBootstrapVerification, target.Executable)
	}

	return &BootstrapResult{Mirror: outcome.Mirror, Attempts: outcome.Attempts}, nil
}

func (m *Manager) checkGit(ctx context.Context) error {
	res, err := m.runner.Run(ctx, domain.Command{Name: "git", Args: []string{"--version"}, Capture: true})
	if err != nil {
		if errors.Is(err, domain.ErrToolMissing) {
			return fmt.Errorf("git: %w", domain.ErrToolMissing)
		}
		return err
	}
	if !res.Success() {
		return fmt.Errorf("git: %w (git --version exited with code %d)", domain.ErrToolMissing, res.ExitCode)
	}
	return nil
}

func (m *Manager) runBootstrapScript(ctx context.Context) error {
	target := m.opts.Target
	cmd := domain.Command{Name: "bash", Args: []string{target.BootstrapScript}, Dir: target.Root}
	if strings.HasSuffix(strings.ToLower(target.BootstrapScript), ".bat") {
		cmd = domain.Command{Name: target.BootstrapScript, Dir: target.Root}
	}

	logger.Logger().Infof("running %s", target.BootstrapScript)
	res, err := m.runner.Run(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrBootstrapScript, err)
	}
	if !res.Success() {
		return fmt.Errorf("%w: exited with code %d", domain.ErrBootstrapScript, res.ExitCode)
	}
	return nil
}

// CheckFeatures asks the package manager what it has installed for the
// requirement. A listing that cannot be obtained counts as not present.
func (m *Manager) CheckFeatures(ctx context.Context) (domain.FeatureStatus, error) {
	req := m.opts.Requirement
	absent := domain.FeatureStatus{Missing: append([]string(nil), req.Features...)}

	res, err := m.runner.Run(ctx, domain.Command{
		Name:    m.opts.Target.Executable,
		Args:    []string{"list", req.Name},
		Capture: true,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return absent, ctxErr
		}
		logger.Logger().Warnf("listing %s failed: %v", req.Name, err)
		return absent, nil
	}
	if !res.Success() {
		logger.Logger().Warnf("listing %s exited with code %d", req.Name, res.ExitCode)
		return absent, nil
	}

	return ParseFeatures(res.Output, req), nil
}

// ParseFeatures reads `vcpkg list` output. Only lines whose first field is
// name:triplet or name[...]:triplet belong to req; a feature counts when it
// appears anywhere in one of those lines.
func ParseFeatures(output string, req domain.PackageRequirement) domain.FeatureStatus {
	var lines []string
	suffix := ":" + req.Triplet

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		first := fields[0]
		if !strings.HasSuffix(first, suffix) {
			continue
		}
		name := strings.TrimSuffix(first, suffix)
		if i := strings.IndexByte(name, '['); i >= 0 {
			if !strings.HasSuffix(name, "]") {
				continue
			}
			name = name[:i]
		}
		if name == req.Name {
			lines = append(lines, line)
		}
	}

	status := domain.FeatureStatus{Present: len(lines) > 0}
	for _, f := range req.Features {
		found := false
		for _, l := range lines {
			if strings.Contains(l, f) {
				found = true
				break
			}
		}
		if !found {
			status.Missing = append(status.Missing, f)
		}
	}
	status.Satisfied = status.Present && len(status.Missing) == 0

	return status
}

func (m *Manager) Install(ctx context.Context) (*InstallResult, error) {
	var res *InstallResult
	err := Track(m.journal, domain.StageInstall, "", func() (domain.StageStatus, string, error) {
		var err error
		res, err = m.install(ctx)
		if err != nil {
			return domain.StatusFailed, "", err
		}
		if res.Skipped {
			return domain.StatusSkipped, m.opts.Requirement.Spec() + " already installed", nil
		}
		return domain.StatusDone, m.opts.Requirement.Spec(), nil
	})
	return res, err
}

func (m *Manager) install(ctx context.Context) (*InstallResult, error) {
	log := logger.Logger()
	req := m.opts.Requirement
	exe := m.opts.Target.Executable

	if !isFile(exe) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotBootstrapped, exe)
	}

	status, err := m.CheckFeatures(ctx)
	if err != nil {
		return nil, err
	}
	res := &InstallResult{Status: status}

	if status.Satisfied {
		log.Debugf("install: %s satisfied, skipping", req.Spec())
		res.Skipped = true
		return res, nil
	}

	if status.Present {
		log.Infof("%s is installed without %s, removing", req.Key(), strings.Join(status.Missing, ","))
		cmd := domain.Command{Name: exe, Args: []string{"remove", req.Key()}}
		if err := m.expectSuccess(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrRemoveFailed, err)
		}
		res.Removed = true
	}

	r := retry.Runner{Policy: m.opts.Policy, Sleep: m.opts.Sleep}
	outcome, err := r.Do(ctx, func(ctx context.Context) error {
		log.Infof("installing %s", req.Spec())
		return m.expectSuccess(ctx, domain.Command{Name: exe, Args: []string{"install", req.Spec()}})
	})
	res.Attempts = outcome.Attempts
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return nil, fmt.Errorf("%w: %w", domain.ErrInstallFailed, err)
		}
		return nil, err
	}

	return res, nil
}

func (m *Manager) Extract(ctx context.Context) (*ExtractResult, error) {
	var res *ExtractResult
	err := Track(m.journal, domain.StageExtract, m.opts.StagingDir, func() (domain.StageStatus, string, error) {
		var err error
		res, err = m.extract(ctx)
		if err != nil {
			return domain.StatusFailed, "", err
		}
		if res.Skipped {
			return domain.StatusSkipped, res.Path + " present", nil
		}
		return domain.StatusDone, res.Archive, nil
	})
	return res, err
}

func (m *Manager) extract(ctx context.Context) (*ExtractResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final := m.opts.SourceDir
	if isDir(final) {
		logger.Logger().Debugf("extract: %s present, skipping", final)
		return &ExtractResult{Skipped: true, Path: final}, nil
	}

	name := m.opts.Requirement.Name
	archive, err := m.locator.Find(name, m.opts.ArchiveExts)
	if err != nil {
		return nil, err
	}
	if archive == nil {
		return nil, fmt.Errorf("%w: no %s archive in %s", domain.ErrArchiveMissing, name, m.opts.Target.DownloadsDir())
	}

	logger.Logger().Infof("extracting %s", archive.Path)
	top, err := extractor.Tree(m.extractor, archive.Path, m.opts.StagingDir, final)
	if err != nil {
		return nil, err
	}

	return &ExtractResult{Archive: archive.Path, TopDir: top, Path: final}, nil
}

// expectSuccess runs cmd with inherited streams. A missing binary is
// permanent; any other failure, including a non-zero exit, may be retried.
func (m *Manager) expectSuccess(ctx context.Context, cmd domain.Command) error {
	res, err := m.runner.Run(ctx, cmd)
	if err != nil {
		if errors.Is(err, domain.ErrToolMissing) {
			return retry.Permanent(err)
		}
		return err
	}
	if !res.Success() {
		return fmt.Errorf("%s %s exited with code %d", cmd.Name, strings.Join(cmd.Args, " "), res.ExitCode)
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
