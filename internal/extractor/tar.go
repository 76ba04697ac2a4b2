package extractor

import (
	"archive/tar"
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

type TARExtractor struct {
	progress ProgressFunc
}

func NewTAR(progress ProgressFunc) *TARExtractor {
	return &TARExtractor{progress: progress}
}

func (te *TARExtractor) Extract(src, dst string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	var in io.Reader = file
	if te.progress != nil {
		if info, err := file.Stat(); err == nil {
			if w := te.progress(filepath.Base(src), info.Size()); w != nil {
				in = io.TeeReader(file, w)
			}
		}
	}

	reader, cleanup, err := getDecompressor(bufio.NewReader(in))
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	tr := tar.NewReader(reader)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		target, err := safeJoin(dst, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, header.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := checkSymlink(dst, target, header.Linkname); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			linkSrc, err := safeJoin(dst, header.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(linkSrc, target); err != nil {
				return err
			}
		}
	}

	// drain trailing padding so progress reaches the archive size
	_, _ = io.Copy(io.Discard, in)
	return nil
}

// checkSymlink rejects a link at target whose destination leaves dst once
// symlinks already on disk are followed.
func checkSymlink(dst, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("invalid link in archive: %s -> %s", target, linkname)
	}
	root, err := filepath.EvalSymlinks(dst)
	if err != nil {
		return err
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(target))
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, filepath.Join(parent, linkname))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid link in archive: %s -> %s", target, linkname)
	}
	return nil
}

// https://gist.github.com/leommoore/f9e57ba2aa4bf197ebc5
func getDecompressor(br *bufio.Reader) (io.Reader, func(), error) {
	header, _ := br.Peek(6)
	n := len(header)

	switch {
	case n >= 4 && header[0] == 0x28 && header[1] == 0xb5 && header[2] == 0x2f && header[3] == 0xfd:
		// zstd: 0x28B52FFD
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, func() { zr.Close() }, nil

	case n >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		// gzip: 0x1F8B
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gzr, func() { gzr.Close() }, nil

	case n >= 6 && header[0] == 0xfd && header[1] == 0x37 && header[2] == 0x7a && header[3] == 0x58 && header[4] == 0x5a && header[5] == 0x00:
		// xz: 0xFD377A585A00
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("xz: %w", err)
		}
		return xzr, nil, nil

	case n >= 3 && header[0] == 0x42 && header[1] == 0x5a && header[2] == 0x68:
		// bzip2: "BZh"
		return bzip2.NewReader(br), nil, nil

	default:
		return br, nil, nil
	}
}
