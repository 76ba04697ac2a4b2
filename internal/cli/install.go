package cli

import (
	"github.com/spf13/cobra"
)

// stageCmd builds a command that runs a single pipeline step as its own run.
func stageCmd(flags *globalFlags, use, short string, step func(a *app, cmd *cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.run(func() error { return step(a, cmd) })
		},
	}
}

func newBootstrapCmd(flags *globalFlags) *cobra.Command {
	return stageCmd(flags, "bootstrap", "Clone and bootstrap vcpkg", func(a *app, cmd *cobra.Command) error {
		return a.bootstrap(cmd.Context())
	})
}

func newInstallCmd(flags *globalFlags) *cobra.Command {
	return stageCmd(flags, "install", "Install FFmpeg with the configured features", func(a *app, cmd *cobra.Command) error {
		return a.install(cmd.Context())
	})
}

func newExtractCmd(flags *globalFlags) *cobra.Command {
	return stageCmd(flags, "extract", "Extract the FFmpeg source archive from the vcpkg downloads", func(a *app, cmd *cobra.Command) error {
		return a.extract(cmd.Context())
	})
}

func newPatchCmd(flags *globalFlags) *cobra.Command {
	return stageCmd(flags, "patch", "Patch the extracted sources and generate the addon glue", func(a *app, cmd *cobra.Command) error {
		_, err := a.patch(cmd.Context())
		return err
	})
}
