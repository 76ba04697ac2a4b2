package addon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teamcutter/addonforge/internal/logger"
)

// programs matches fftools sources that belong to a standalone program. The
// addon ships its own patched ffmpeg.c.
var programs = []string{"ffmpeg.c", "ffprobe", "ffplay"}

type gypFile struct {
	Targets []gypTarget `json:"targets"`
}

type gypTarget struct {
	Name        string   `json:"target_name"`
	Sources     []string `json:"sources"`
	IncludeDirs []string `json:"include_dirs"`
	Defines     []string `json:"defines"`
	Libraries   []string `json:"libraries"`
}

// BuildManifest renders binding.gyp. Sources are relative to the addon
// directory; include and library paths are absolute.
func (p *Preparer) BuildManifest() ([]byte, error) {
	sources := []string{"binding.c", "ffmpeg.c"}

	tools, err := p.toolSources()
	if err != nil {
		return nil, err
	}
	sources = append(sources, tools...)

	installed := p.Target.InstalledDir()

	libs, err := libraries(filepath.Join(installed, "lib"))
	if err != nil {
		return nil, err
	}
	if len(libs) == 0 {
		logger.Logger().Warnf("no libraries found in %s", filepath.Join(installed, "lib"))
	}

	manifest := gypFile{
		Targets: []gypTarget{{
			Name:    "ffmpeg",
			Sources: sources,
			IncludeDirs: []string{
				filepath.ToSlash(p.SourceDir),
				filepath.ToSlash(filepath.Join(p.SourceDir, "fftools")),
				filepath.ToSlash(filepath.Join(installed, "include")),
			},
			Defines:   []string{"HAVE_AV_CONFIG_H"},
			Libraries: libs,
		}},
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (p *Preparer) toolSources() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.SourceDir, "fftools", "*.c"))
	if err != nil {
		return nil, err
	}

	var out []string
	for _, m := range matches {
		if isProgram(filepath.Base(m)) {
			continue
		}
		rel, err := filepath.Rel(p.AddonDir, m)
		if err != nil {
			rel = m
		}
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)

	return out, nil
}

func isProgram(name string) bool {
	for _, prefix := range programs {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func libraries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var libs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".a", ".lib":
			libs = append(libs, filepath.ToSlash(filepath.Join(dir, e.Name())))
		}
	}
	sort.Strings(libs)

	return libs, nil
}
