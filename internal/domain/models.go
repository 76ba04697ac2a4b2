package domain

import (
	"path/filepath"
	"time"
)

type InstallTarget struct {
	Root            string
	Executable      string
	Triplet         string
	BootstrapScript string
}

// NewInstallTarget resolves the executable, bootstrap script and default
// triplet for goos/goarch. A non-empty triplet overrides the default.
func NewInstallTarget(root, goos, goarch, triplet string) InstallTarget {
	if triplet == "" {
		triplet = DefaultTriplet(goos, goarch)
	}

	return InstallTarget{
		Root:            root,
		Executable:      filepath.Join(root, executableName(goos)),
		Triplet:         triplet,
		BootstrapScript: filepath.Join(root, bootstrapScriptName(goos)),
	}
}

func (t InstallTarget) DownloadsDir() string {
	return filepath.Join(t.Root, "downloads")
}

func (t InstallTarget) InstalledDir() string {
	return filepath.Join(t.Root, "installed", t.Triplet)
}

type PackageRequirement struct {
	Name     string
	Features []string
	Triplet  string
}

// Spec renders the install argument, e.g. ffmpeg[x264,x265]:x64-linux.
func (p PackageRequirement) Spec() string {
	return formatSpec(p.Name, p.Features, p.Triplet)
}

// Key renders the removal argument, e.g. ffmpeg:x64-linux.
func (p PackageRequirement) Key() string {
	return formatSpec(p.Name, nil, p.Triplet)
}

type MirrorList []string

type FeatureStatus struct {
	Present   bool
	Satisfied bool
	Missing   []string
}

type Archive struct {
	Path    string
	ModTime time.Time
}

type Command struct {
	Name    string
	Args    []string
	Dir     string
	Capture bool
}

type Result struct {
	ExitCode int
	Output   string
}

func (r Result) Success() bool {
	return r.ExitCode == 0
}

type Stage string

const (
	StageBootstrap Stage = "bootstrap"
	StageInstall   Stage = "install"
	StageExtract   Stage = "extract"
	StagePatch     Stage = "patch"
)

type StageStatus string

const (
	StatusPending StageStatus = "pending"
	StatusDone    StageStatus = "done"
	StatusSkipped StageStatus = "skipped"
	StatusFailed  StageStatus = "failed"
)

type StageRecord struct {
	RunID      string      `json:"run_id"`
	Stage      Stage       `json:"stage"`
	Status     StageStatus `json:"status"`
	Detail     string      `json:"detail,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
}

type Report struct {
	RunID       string        `json:"run_id"`
	ToolRoot    string        `json:"tool_root"`
	ToolExe     string        `json:"tool_executable"`
	Triplet     string        `json:"triplet"`
	SourceDir   string        `json:"source_dir"`
	AddonDir    string        `json:"addon_dir"`
	Files       []string      `json:"files"`
	Stages      []StageRecord `json:"stages"`
	CompletedAt time.Time     `json:"completed_at"`
}
