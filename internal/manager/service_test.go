package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/retry"
)

type fakeRunner struct {
	calls   []domain.Command
	handler func(cmd domain.Command) (domain.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, cmd domain.Command) (domain.Result, error) {
	f.calls = append(f.calls, cmd)
	if f.handler == nil {
		return domain.Result{}, nil
	}
	return f.handler(cmd)
}

func (f *fakeRunner) count(sub string) int {
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.Name+" "+strings.Join(c.Args, " "), sub) {
			n++
		}
	}
	return n
}

type fakeLocator struct {
	archive *domain.Archive
}

func (f fakeLocator) Find(string, []string) (*domain.Archive, error) {
	return f.archive, nil
}

// fakeExtractor lays out a single pkg-1.2/ tree regardless of the archive.
type fakeExtractor struct{}

func (fakeExtractor) Extract(_, dest string) error {
	dir := filepath.Join(dest, "pkg-1.2")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "configure"), []byte("#!/bin/sh\n"), 0755)
}

type entry struct {
	stage  domain.Stage
	status domain.StageStatus
}

type fakeJournal struct {
	begun   []domain.Stage
	entries []entry
}

func (f *fakeJournal) Begin(stage domain.Stage, _ string) error {
	f.begun = append(f.begun, stage)
	return nil
}

func (f *fakeJournal) Finish(stage domain.Stage, status domain.StageStatus, _ string) error {
	f.entries = append(f.entries, entry{stage, status})
	return nil
}

type fixture struct {
	base    string
	target  domain.InstallTarget
	runner  *fakeRunner
	journal *fakeJournal
	delays  []time.Duration
	opts    Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		base:    base,
		target:  domain.NewInstallTarget(filepath.Join(base, "vcpkg"), "linux", "amd64", ""),
		runner:  &fakeRunner{},
		journal: &fakeJournal{},
	}
	f.opts = Options{
		Target:      f.target,
		Requirement: domain.PackageRequirement{Name: "ffmpeg", Features: []string{"x264", "x265", "vpx"}},
		Mirrors:     domain.MirrorList{"https://one.example/vcpkg.git", "https://two.example/vcpkg.git"},
		CloneDepth:  1,
		ArchiveExts: []string{".tar.gz"},
		SourceDir:   filepath.Join(base, "ffmpeg"),
		StagingDir:  filepath.Join(base, ".ffmpeg_staging"),
		Policy:      retry.Policy{MaxAttempts: 3, BaseBackoff: time.Second},
		Sleep: func(_ context.Context, d time.Duration) error {
			f.delays = append(f.delays, d)
			return nil
		},
	}
	return f
}

func (f *fixture) manager(locator domain.ArchiveLocator) *Manager {
	if locator == nil {
		locator = fakeLocator{}
	}
	return New(f.runner, locator, fakeExtractor{}, f.journal, f.opts)
}

func (f *fixture) installExecutable(t *testing.T) {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.target.Root, 0755))
	require.NoError(t, os.WriteFile(f.target.Executable, []byte("bin"), 0755))
}

func exit(code int) (domain.Result, error) {
	return domain.Result{ExitCode: code}, nil
}

func TestBootstrapExhaustsMirrors(t *testing.T) {
	f := newFixture(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) {
		if cmd.Name == "git" && cmd.Args[0] == "clone" {
			return exit(128)
		}
		return exit(0)
	}

	_, err := f.manager(nil).Bootstrap(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBootstrapExhausted)

	var se *domain.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.StageBootstrap, se.Stage)

	assert.Equal(t, 6, f.runner.count("git clone"))
	assert.Equal(t, 3, f.runner.count("one.example"))
	assert.Equal(t, 3, f.runner.count("two.example"))
	require.Len(t, f.delays, 6)
	for i := 1; i < len(f.delays); i++ {
		assert.GreaterOrEqual(t, f.delays[i], f.delays[i-1])
	}
	assert.Equal(t, []entry{{domain.StageBootstrap, domain.StatusFailed}}, f.journal.entries)
}

func TestBootstrapFallsBackToNextMirror(t *testing.T) {
	f := newFixture(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) {
		switch {
		case cmd.Name == "git" && cmd.Args[0] == "clone":
			if strings.Contains(cmd.Args[3], "one.example") {
				return exit(1)
			}
			if err := os.MkdirAll(cmd.Args[4], 0755); err != nil {
				return domain.Result{}, err
			}
			return exit(0)
		case cmd.Name == "bash":
			return domain.Result{}, os.WriteFile(f.target.Executable, []byte("bin"), 0755)
		}
		return exit(0)
	}

	res, err := f.manager(nil).Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://two.example/vcpkg.git", res.Mirror)
	assert.Equal(t, 4, res.Attempts)

	last := f.runner.calls[len(f.runner.calls)-1]
	assert.Equal(t, "bash", last.Name)
	assert.Equal(t, []string{f.target.BootstrapScript}, last.Args)
	assert.Equal(t, f.target.Root, last.Dir)

	clone := f.runner.calls[1]
	assert.Equal(t, []string{"clone", "--depth", "1", "https://one.example/vcpkg.git", f.target.Root}, clone.Args)
	assert.False(t, clone.Capture)
}

func TestBootstrapVerification(t *testing.T) {
	f := newFixture(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) { return exit(0) }

	_, err := f.manager(nil).Bootstrap(context.Background())
	assert.ErrorIs(t, err, domain.ErrBootstrapVerification)
}

func TestBootstrapScriptFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) {
		if cmd.Name == "bash" {
			return exit(2)
		}
		return exit(0)
	}

	_, err := f.manager(nil).Bootstrap(context.Background())
	assert.ErrorIs(t, err, domain.ErrBootstrapScript)
}

func TestBootstrapRequiresGit(t *testing.T) {
	f := newFixture(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) {
		return domain.Result{}, domain.ErrToolMissing
	}

	_, err := f.manager(nil).Bootstrap(context.Background())
	assert.ErrorIs(t, err, domain.ErrToolMissing)
	assert.Len(t, f.runner.calls, 1)
	assert.Empty(t, f.delays)
}

func TestBootstrapSkipsWhenPresent(t *testing.T) {
	f := newFixture(t)
	f.installExecutable(t)

	res, err := f.manager(nil).Bootstrap(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, f.runner.calls)
	assert.Equal(t, []entry{{domain.StageBootstrap, domain.StatusSkipped}}, f.journal.entries)
}

func TestParseFeatures(t *testing.T) {
	req := domain.PackageRequirement{Name: "ffmpeg", Features: []string{"x264", "x265"}, Triplet: "x64-linux"}

	tests := []struct {
		name      string
		output    string
		present   bool
		satisfied bool
		missing   []string
	}{
		{
			name:   "empty",
			output: "",
		},
		{
			name: "all features",
			output: "ffmpeg:x64-linux           7.1#1  a library to decode, encode, transcode\n" +
				"ffmpeg[x264]:x64-linux     7.1#1  Allow x264 encoder\n" +
				"ffmpeg[x265]:x64-linux     7.1#1  Allow x265 encoder\n",
			present:   true,
			satisfied: true,
		},
		{
			name:    "missing feature",
			output:  "ffmpeg:x64-linux  7.1#1  core\nffmpeg[x264]:x64-linux  7.1#1  Allow x264 encoder\n",
			present: true,
			missing: []string{"x265"},
		},
		{
			name: "other triplet",
			output: "ffmpeg:x64-windows-static        7.1#1  core\n" +
				"ffmpeg[x264]:x64-windows-static  7.1#1  x264\n" +
				"ffmpeg[x265]:x64-windows-static  7.1#1  x265\n",
			missing: []string{"x264", "x265"},
		},
		{
			name:    "similar package name",
			output:  "ffmpegthumbnailer:x64-linux  2.2  uses x264 and x265\n",
			missing: []string{"x264", "x265"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := ParseFeatures(tt.output, req)
			assert.Equal(t, tt.present, status.Present)
			assert.Equal(t, tt.satisfied, status.Satisfied)
			if tt.missing != nil {
				assert.Equal(t, tt.missing, status.Missing)
			}
		})
	}
}

func TestCheckFeaturesListingFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) { return exit(1) }

	status, err := f.manager(nil).CheckFeatures(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Present)
	assert.False(t, status.Satisfied)
	assert.True(t, f.runner.calls[0].Capture)
}

func TestInstallReplacesUnsatisfiedPackage(t *testing.T) {
	f := newFixture(t)
	f.installExecutable(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) {
		if cmd.Args[0] == "list" {
			return domain.Result{Output: "ffmpeg[x264]:x64-linux  7.1  x264\n"}, nil
		}
		return exit(0)
	}

	res, err := f.manager(nil).Install(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Equal(t, 1, res.Attempts)

	require.Len(t, f.runner.calls, 3)
	assert.Equal(t, []string{"remove", "ffmpeg:x64-linux"}, f.runner.calls[1].Args)
	assert.Equal(t, []string{"install", "ffmpeg[x264,x265,vpx]:x64-linux"}, f.runner.calls[2].Args)
}

func TestInstallRemoveFailure(t *testing.T) {
	f := newFixture(t)
	f.installExecutable(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) {
		switch cmd.Args[0] {
		case "list":
			return domain.Result{Output: "ffmpeg:x64-linux  7.1  core\n"}, nil
		case "remove":
			return exit(1)
		}
		return exit(0)
	}

	_, err := f.manager(nil).Install(context.Background())
	assert.ErrorIs(t, err, domain.ErrRemoveFailed)
	assert.Zero(t, f.runner.count(" install "))
}

func TestInstallRetriesThenFails(t *testing.T) {
	f := newFixture(t)
	f.installExecutable(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) {
		if cmd.Args[0] == "install" {
			return exit(1)
		}
		return exit(0)
	}

	_, err := f.manager(nil).Install(context.Background())
	assert.ErrorIs(t, err, domain.ErrInstallFailed)
	assert.Equal(t, 3, f.runner.count(" install "))
	assert.Equal(t, []time.Duration{0, time.Second, 2 * time.Second}, f.delays)
}

func TestInstallSkipsWhenSatisfied(t *testing.T) {
	f := newFixture(t)
	f.installExecutable(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) {
		return domain.Result{Output: "ffmpeg[x264,x265,vpx]:x64-linux  7.1  all\n"}, nil
	}

	res, err := f.manager(nil).Install(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Len(t, f.runner.calls, 1)
}

func TestInstallRequiresBootstrap(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager(nil).Install(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotBootstrapped)
	assert.Empty(t, f.runner.calls)
}

func TestExtractPromotesTree(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.opts.StagingDir, 0755))
	archive := &domain.Archive{Path: filepath.Join(f.target.DownloadsDir(), "ffmpeg-7.1.tar.gz")}

	res, err := f.manager(fakeLocator{archive}).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pkg-1.2", res.TopDir)
	assert.FileExists(t, filepath.Join(f.opts.SourceDir, "configure"))
	assert.NoDirExists(t, f.opts.StagingDir)

	res, err = f.manager(fakeLocator{archive}).Extract(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestExtractArchiveMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager(nil).Extract(context.Background())
	assert.ErrorIs(t, err, domain.ErrArchiveMissing)

	var se *domain.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, domain.StageExtract, se.Stage)
}

func TestRunSkipsCompletedStages(t *testing.T) {
	f := newFixture(t)
	f.installExecutable(t)
	require.NoError(t, os.MkdirAll(f.opts.SourceDir, 0755))
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) {
		return domain.Result{Output: "ffmpeg[x264,x265,vpx]:x64-linux  7.1\n"}, nil
	}

	res, err := f.manager(nil).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Bootstrap.Skipped)
	assert.True(t, res.Install.Skipped)
	assert.True(t, res.Extract.Skipped)
	assert.Equal(t, []entry{
		{domain.StageBootstrap, domain.StatusSkipped},
		{domain.StageInstall, domain.StatusSkipped},
		{domain.StageExtract, domain.StatusSkipped},
	}, f.journal.entries)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.handler = func(cmd domain.Command) (domain.Result, error) {
		return domain.Result{}, domain.ErrToolMissing
	}

	res, err := f.manager(nil).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res.Install)
	assert.Equal(t, []domain.Stage{domain.StageBootstrap}, f.journal.begun)
}
