package cli

import (
	"context"
	"fmt"

	api "github.com/kubev2v/media-analyzer/api/v1alpha1"
	"github.com/kubev2v/media-analyzer/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type WaitOptions struct {
	GlobalOptions
	OutputOptions
	WaitFlags
}

func DefaultWaitOptions() *WaitOptions {
	return &WaitOptions{
		GlobalOptions: DefaultGlobalOptions(),
		WaitFlags:     DefaultWaitFlags(),
	}
}

func NewCmdWait() *cobra.Command {
	o := DefaultWaitOptions()
	cmd := &cobra.Command{
		Use:          "wait ID",
		Short:        "Wait until a job is COMPLETE or FAILED.",
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *WaitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	o.OutputOptions.Bind(fs)
	o.WaitFlags.Bind(fs)
}

func (o *WaitOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *WaitOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if err := o.OutputOptions.Validate(); err != nil {
		return err
	}
	if err := o.WaitFlags.Validate(); err != nil {
		return err
	}
	_, err := parseJobArg(args[0])
	return err
}

func (o *WaitOptions) Run(cmd *cobra.Command, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	id, err := parseJobArg(args[0])
	if err != nil {
		return err
	}

	job, err := o.waitFor(cmd, c, id)
	if err != nil {
		return err
	}
	return o.print(o.out, job)
}

// waitFor polls id until it finishes, printing progress on stderr.
func (f *WaitFlags) waitFor(cmd *cobra.Command, c *client.Client, id string) (*api.Job, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	last := ""
	job, err := c.WaitForJob(ctx, id, f.Interval, func(j *api.Job) {
		progress := fmt.Sprintf("%s %d/%d", j.Status, j.ChunksProcessed, j.TotalChunks)
		if progress != last {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", id, progress)
			last = progress
		}
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for %s/%s: %w", JobKind, id, err)
	}
	return job, nil
}
