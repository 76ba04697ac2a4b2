package extractor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/teamcutter/addonforge/internal/domain"
)

var ErrNoTopLevelDir = errors.New("top-level directory not found after extraction")

// ProgressFunc returns a writer that receives the archive bytes as they are
// consumed. It may return nil.
type ProgressFunc func(name string, total int64) io.Writer

type Extractor struct {
	tar *TARExtractor
	zip *ZIPExtractor
}

type Option func(*options)

type options struct {
	progress ProgressFunc
}

func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

func New(opts ...Option) *Extractor {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Extractor{
		tar: NewTAR(o.progress),
		zip: NewZIP(o.progress),
	}
}

func (e *Extractor) Extract(src, dst string) error {
	lower := strings.ToLower(src)

	switch {
	case strings.HasSuffix(lower, ".zip"):
		return e.zip.Extract(src, dst)
	case IsTarArchive(lower):
		return e.tar.Extract(src, dst)
	default:
		return fmt.Errorf("unsupported archive format: %s", src)
	}
}

var tarExts = []string{".tar.gz", ".tar.zst", ".tar.xz", ".tar.bz2", ".tgz", ".txz", ".tzst", ".tbz2", ".tar"}

func IsTarArchive(name string) bool {
	for _, ext := range tarExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Tree unpacks archive into a fresh staging directory and moves the single
// top-level directory it produced to final, replacing whatever was there.
// The staging directory is removed on every return path. It returns the name
// of the promoted top-level directory.
func Tree(e domain.Extractor, archive, staging, final string) (top string, err error) {
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("removing stale staging dir: %w", err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return "", err
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil && err == nil {
			err = fmt.Errorf("removing staging dir: %w", rmErr)
		}
	}()

	if err := e.Extract(archive, staging); err != nil {
		return "", fmt.Errorf("extracting %s: %w", filepath.Base(archive), err)
	}

	topDir, err := topLevelDir(staging)
	if err != nil {
		return "", err
	}

	if err := os.RemoveAll(final); err != nil {
		return "", fmt.Errorf("removing existing %s: %w", final, err)
	}
	if err := os.MkdirAll(filepath.Dir(final), 0755); err != nil {
		return "", err
	}
	if err := os.Rename(topDir, final); err != nil {
		return "", err
	}

	return filepath.Base(topDir), nil
}

func topLevelDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", ErrNoTopLevelDir
}

func safeJoin(dst, name string) (string, error) {
	target := filepath.Join(dst, name)
	rel, err := filepath.Rel(dst, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return target, nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
