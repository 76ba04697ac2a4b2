package extractor

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type ZIPExtractor struct {
	progress ProgressFunc
}

func NewZIP(progress ProgressFunc) *ZIPExtractor {
	return &ZIPExtractor{progress: progress}
}

func (ze *ZIPExtractor) Extract(src, dst string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("zip: %w", err)
	}
	defer r.Close()

	var total int64
	for _, f := range r.File {
		total += int64(f.UncompressedSize64)
	}
	var progress io.Writer
	if ze.progress != nil {
		progress = ze.progress(filepath.Base(src), total)
	}

	for _, f := range r.File {
		target, err := safeJoin(dst, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}

		var in io.Reader = rc
		if progress != nil {
			in = io.TeeReader(rc, progress)
		}

		err = writeFile(target, in, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}

	return nil
}
