package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X github.com/kubev2v/media-analyzer/internal/cli.gitVersion=..."
var (
	gitVersion = "v0.0.0-unknown"
	gitCommit  = ""
)

type VersionOptions struct{}

func DefaultVersionOptions() *VersionOptions {
	return &VersionOptions{}
}

func NewCmdVersion() *cobra.Command {
	o := DefaultVersionOptions()
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print analyzer version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd, args)
		},
	}
	return cmd
}

func (o *VersionOptions) Run(cmd *cobra.Command, args []string) error {
	version := gitVersion
	if gitCommit != "" {
		version = fmt.Sprintf("%s (%s)", version, gitCommit)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Analyzer Version: %s %s/%s\n", version, runtime.GOOS, runtime.GOARCH)
	return nil
}
