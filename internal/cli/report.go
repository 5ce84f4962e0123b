package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ReportOptions struct {
	GlobalOptions

	OutputFile string
}

func DefaultReportOptions() *ReportOptions {
	return &ReportOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdReport() *cobra.Command {
	o := DefaultReportOptions()
	cmd := &cobra.Command{
		Use:          "report ID",
		Short:        "Print the report of a completed job.",
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ReportOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.OutputFile, "file", "f", o.OutputFile, "Write the report to this file instead of stdout.")
}

func (o *ReportOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *ReportOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	_, err := parseJobArg(args[0])
	return err
}

func (o *ReportOptions) Run(cmd *cobra.Command, args []string) (err error) {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	id, err := parseJobArg(args[0])
	if err != nil {
		return err
	}

	var dst io.Writer = o.out
	if o.OutputFile != "" {
		f, createErr := os.Create(o.OutputFile)
		if createErr != nil {
			return createErr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		dst = f
	}

	if err := c.GetReport(cmd.Context(), id, dst); err != nil {
		return fmt.Errorf("reading report of %s/%s: %w", JobKind, id, err)
	}
	return nil
}
