package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teamcutter/addonforge/internal/config"
)

func newCleanCmd(flags *globalFlags) *cobra.Command {
	var all, downloads bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove staging leftovers and, optionally, generated trees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()

			var freed int64
			for _, path := range cleanTargets(a.cfg, all) {
				if !exists(path) {
					continue
				}
				size, _ := dirSize(path)
				if err := os.RemoveAll(path); err != nil {
					return fmt.Errorf("failed to remove %s: %w", path, err)
				}
				freed += size
				fmt.Fprintf(out, "%s Removed %s\n", green("✓"), path)
			}

			if downloads {
				size, _ := a.cache.Size()
				if err := a.cache.Clear(); err != nil {
					return fmt.Errorf("failed to clear downloads: %w", err)
				}
				freed += size
				fmt.Fprintf(out, "%s Cleared %s\n", green("✓"), a.cache.Dir())
			}

			fmt.Fprintf(out, "%s %s freed\n", dim("○"), formatSize(freed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also remove the extracted sources and the addon directory")
	cmd.Flags().BoolVar(&downloads, "downloads", false, "Also clear the vcpkg download cache")
	return cmd
}

// cleanTargets lists the directories clean removes. The vcpkg tree is never
// among them.
func cleanTargets(cfg *config.Config, all bool) []string {
	targets := []string{cfg.StagingPath()}
	if all {
		targets = append(targets, cfg.SourcePath(), cfg.AddonPath())
	}
	return targets
}

func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

func formatSize(bytes int64) string {
	const (
		KB = 1 << 10
		MB = 1 << 20
		GB = 1 << 30
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
