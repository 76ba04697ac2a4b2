package cache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/teamcutter/addonforge/internal/domain"
)

// DownloadCache is the package manager's download directory. The package
// manager fills it; this type only looks things up and clears it.
type DownloadCache struct {
	sync.RWMutex
	dir string
}

func New(dir string) *DownloadCache {
	return &DownloadCache{dir: dir}
}

func (c *DownloadCache) Dir() string {
	return c.dir
}

// Find returns the newest archive whose name starts with prefix and ends with
// one of exts, or nil when there is none.
func (c *DownloadCache) Find(prefix string, exts []string) (*domain.Archive, error) {
	c.RLock()
	defer c.RUnlock()

	matches, err := c.list(prefix, exts)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return &matches[0], nil
}

// List returns matching archives, newest first.
func (c *DownloadCache) List(prefix string, exts []string) ([]domain.Archive, error) {
	c.RLock()
	defer c.RUnlock()
	return c.list(prefix, exts)
}

func (c *DownloadCache) list(prefix string, exts []string) ([]domain.Archive, error) {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var archives []domain.Archive
	for _, e := range entries {
		if e.IsDir() || !matches(e.Name(), prefix, exts) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		archives = append(archives, domain.Archive{
			Path:    filepath.Join(c.dir, e.Name()),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(archives, func(i, j int) bool {
		if !archives[i].ModTime.Equal(archives[j].ModTime) {
			return archives[i].ModTime.After(archives[j].ModTime)
		}
		return archives[i].Path > archives[j].Path
	})

	return archives, nil
}

func (c *DownloadCache) Size() (int64, error) {
	c.RLock()
	defer c.RUnlock()

	var size int64

	err := filepath.Walk(c.dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}

	return size, err
}

func (c *DownloadCache) Clear() error {
	c.Lock()
	defer c.Unlock()

	return os.RemoveAll(c.dir)
}

func matches(name, prefix string, exts []string) bool {
	lower := strings.ToLower(name)
	if !strings.HasPrefix(lower, strings.ToLower(prefix)) {
		return false
	}
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
