package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type SubmitOptions struct {
	GlobalOptions
	OutputOptions
	WaitFlags
}

func DefaultSubmitOptions() *SubmitOptions {
	return &SubmitOptions{
		GlobalOptions: DefaultGlobalOptions(),
		WaitFlags:     DefaultWaitFlags(),
	}
}

func NewCmdSubmit() *cobra.Command {
	o := DefaultSubmitOptions()
	cmd := &cobra.Command{
		Use:          "submit FILE",
		Short:        "Upload a video for analysis.",
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *SubmitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	o.OutputOptions.Bind(fs)
	o.WaitFlags.Bind(fs)

	fs.BoolVarP(&o.Wait, "wait", "w", o.Wait, "Wait for the analysis to finish.")
}

func (o *SubmitOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *SubmitOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if err := o.OutputOptions.Validate(); err != nil {
		return err
	}
	if err := o.WaitFlags.Validate(); err != nil {
		return err
	}

	fi, err := os.Stat(args[0])
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", args[0])
	}
	return nil
}

func (o *SubmitOptions) Run(cmd *cobra.Command, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	submitted, err := c.SubmitFile(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("submitting %s: %w", args[0], err)
	}
	if !o.Wait {
		return o.print(o.out, submitted)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "job %s submitted, waiting for it to finish\n", submitted.JobId)
	job, err := o.waitFor(cmd, c, submitted.JobId)
	if err != nil {
		return err
	}
	return o.print(o.out, job)
}

// WaitFlags are shared by the commands that poll a job.
type WaitFlags struct {
	Wait     bool
	Interval time.Duration
	Timeout  time.Duration
}

func DefaultWaitFlags() WaitFlags {
	return WaitFlags{
		Interval: 5 * time.Second,
	}
}

func (f *WaitFlags) Bind(fs *pflag.FlagSet) {
	fs.DurationVar(&f.Interval, "interval", f.Interval, "Time between two status polls.")
	fs.DurationVar(&f.Timeout, "timeout", f.Timeout, "Give up waiting after this long. Zero waits forever.")
}

func (f *WaitFlags) Validate() error {
	if f.Interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	if f.Timeout < 0 {
		return fmt.Errorf("--timeout must not be negative")
	}
	return nil
}
