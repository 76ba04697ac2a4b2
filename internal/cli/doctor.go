package cli

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/runner"
)

type probe struct {
	name     string
	cmd      domain.Command
	optional bool
}

type probeResult struct {
	ok     bool
	detail string
}

func newDoctorCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the tools the pipeline depends on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			target := targetFor(cfg)

			probes := []probe{
				{name: "git", cmd: domain.Command{Name: "git", Args: []string{"--version"}}},
				{name: "vcpkg", cmd: domain.Command{Name: target.Executable, Args: []string{"version"}}, optional: true},
				{name: "node", cmd: domain.Command{Name: "node", Args: []string{"--version"}}, optional: true},
			}
			if runtime.GOOS != "windows" {
				probes = append(probes, probe{name: "bash", cmd: domain.Command{Name: "bash", Args: []string{"--version"}}})
			}

			ctx := cmd.Context()
			r := runner.New()
			results := make([]probeResult, len(probes))

			stop := withSpinner(ctx, "Checking tools...")
			g, gctx := errgroup.WithContext(ctx)
			for i, p := range probes {
				i, p := i, p
				g.Go(func() error {
					results[i] = runProbe(gctx, r, p)
					return nil
				})
			}
			_ = g.Wait()
			stop()

			failed := 0
			for i, p := range probes {
				res := results[i]
				switch {
				case res.ok:
					fmt.Printf("%s %s %s\n", green("✓"), bold(p.name), dim(res.detail))
				case p.optional:
					fmt.Printf("%s %s %s\n", yellow("!"), bold(p.name), dim(res.detail))
				default:
					failed++
					fmt.Printf("%s %s %s\n", red("✗"), bold(p.name), res.detail)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d required tool(s) unavailable", failed)
			}
			return nil
		},
	}
}

func runProbe(ctx context.Context, r domain.Runner, p probe) probeResult {
	cmd := p.cmd
	cmd.Capture = true

	res, err := r.Run(ctx, cmd)
	if err != nil {
		return probeResult{detail: err.Error()}
	}
	if !res.Success() {
		return probeResult{detail: fmt.Sprintf("exited with code %d", res.ExitCode)}
	}

	line, _, _ := strings.Cut(strings.TrimSpace(res.Output), "\n")
	return probeResult{ok: true, detail: line}
}
