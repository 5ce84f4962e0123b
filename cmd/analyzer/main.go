package main

import (
	"os"

	"github.com/kubev2v/media-analyzer/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	command := NewAnalyzerCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewAnalyzerCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyzer [flags] [options]",
		Short: "analyzer controls the media analyzer service.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdSubmit())
	cmd.AddCommand(cli.NewCmdGet())
	cmd.AddCommand(cli.NewCmdWait())
	cmd.AddCommand(cli.NewCmdCancel())
	cmd.AddCommand(cli.NewCmdDelete())
	cmd.AddCommand(cli.NewCmdReport())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
