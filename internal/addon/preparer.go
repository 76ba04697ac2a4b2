// Package addon turns an extracted FFmpeg tree into the sources of a
// Node.js native addon.
package addon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/logger"
	"github.com/teamcutter/addonforge/internal/patcher"
)

const (
	postprocLine = "    PRINT_LIB_INFO(postproc,   POSTPROC,   flags, level);"
	utilsInclude = `#include "ffmpeg_utils.h"`
)

type Preparer struct {
	SourceDir string
	AddonDir  string
	Target    domain.InstallTarget
	Now       func() time.Time
}

func New(sourceDir, addonDir string, target domain.InstallTarget) *Preparer {
	return &Preparer{
		SourceDir: sourceDir,
		AddonDir:  addonDir,
		Target:    target,
		Now:       time.Now,
	}
}

type Result struct {
	ConfigCreated bool
	Jobs          []*patcher.Result
	// Written lists generated files whose bytes changed on this run.
	Written []string
	// Files lists every file of the addon directory this tool owns.
	Files []string
}

// removeMain is shared by the removal and the run-function insertion, which
// is anchored on the removal marker.
var removeMain = patcher.RemoveFunction{
	Function:    "main",
	Signature:   "int main(int argc, char **argv)",
	Replacement: RunFunction,
}

// EntryPointOps is the ordered edit list for fftools/ffmpeg.c. The removal
// of main() must precede both insertions anchored on its marker.
func EntryPointOps() []patcher.Operation {
	return []patcher.Operation{
		patcher.Unqualify("static int transcode(Scheduler *sch)", "static"),
		patcher.Unqualify("static void ffmpeg_cleanup(int ret)", "static"),
		removeMain,
		patcher.InsertAfter{
			Label:     "include node_api.h",
			Marker:    utilsInclude,
			Text:      "\n" + napiInclude,
			Signature: napiInclude,
		},
		patcher.InsertAfter{
			Label:     "insert " + RunFunction + "()",
			Marker:    removeMain.Marker(),
			Text:      runFunctionC,
			Signature: runSignature,
		},
		patcher.InsertAfter{
			Label:     "insert free_argv()",
			Marker:    removeMain.Marker(),
			Text:      freeArgvC,
			Signature: freeArgvSignature,
		},
	}
}

// Prepare runs every step in order. Each step is idempotent, so Prepare can
// be repeated on a prepared tree without changing any file.
func (p *Preparer) Prepare(ctx context.Context) (*Result, error) {
	log := logger.Logger()
	res := &Result{}

	if err := os.MkdirAll(p.AddonDir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", p.AddonDir, err)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	configPath := filepath.Join(p.SourceDir, "config.h")
	created, err := patcher.WriteIfAbsent(configPath, []byte(ConfigHeader(PlatformFor(p.Target.Triplet, now().Year()))))
	if err != nil {
		return nil, fmt.Errorf("writing config.h: %w", err)
	}
	res.ConfigCreated = created
	if created {
		log.Infof("created %s", configPath)
	} else {
		log.Debugf("%s exists, leaving it alone", configPath)
	}

	jobs := []patcher.Job{
		{
			Name:     "opt_common.c",
			Source:   filepath.Join(p.SourceDir, "fftools", "opt_common.c"),
			Optional: true,
			Ops:      []patcher.Operation{patcher.Guard(postprocLine, "CONFIG_POSTPROC")},
		},
		{
			Name:   "ffmpeg.c",
			Source: filepath.Join(p.SourceDir, "fftools", "ffmpeg.c"),
			Target: filepath.Join(p.AddonDir, "ffmpeg.c"),
			Ops:    EntryPointOps(),
		},
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		jr, err := patcher.Run(job)
		if err != nil {
			return res, err
		}
		res.Jobs = append(res.Jobs, jr)
		if jr.Written {
			res.Written = append(res.Written, jr.Target)
		}
	}

	gyp, err := p.BuildManifest()
	if err != nil {
		return res, err
	}

	owned := []struct {
		name    string
		content []byte
	}{
		{"binding.c", []byte(bindingC)},
		{"binding.gyp", gyp},
	}

	for _, f := range owned {
		path := filepath.Join(p.AddonDir, f.name)
		written, err := patcher.WriteOwned(path, f.content)
		if err != nil {
			return res, fmt.Errorf("writing %s: %w", f.name, err)
		}
		if written {
			res.Written = append(res.Written, path)
		}
	}

	res.Files = []string{
		filepath.Join(p.AddonDir, "binding.c"),
		filepath.Join(p.AddonDir, "binding.gyp"),
		filepath.Join(p.AddonDir, "ffmpeg.c"),
	}

	return res, nil
}
