package cli

import (
	"fmt"
	"strings"

	"github.com/kubev2v/media-analyzer/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type GetOptions struct {
	GlobalOptions
	OutputOptions

	Statuses []string
	Offset   int
	Limit    int
}

func DefaultGetOptions() *GetOptions {
	return &GetOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdGet() *cobra.Command {
	o := DefaultGetOptions()
	cmd := &cobra.Command{
		Use:   "get (TYPE | TYPE/ID)",
		Short: "Display one or many jobs.",
		Example: `  analyzer get jobs --status PENDING,PROCESSING
  analyzer get job/3f1b9c1e-6f1a-4c1e-9d5e-1a2b3c4d5e6f -o yaml`,
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *GetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	o.OutputOptions.Bind(fs)

	fs.StringSliceVar(&o.Statuses, "status", o.Statuses, "Only list jobs with these statuses.")
	fs.IntVar(&o.Offset, "offset", o.Offset, "Number of jobs to skip.")
	fs.IntVar(&o.Limit, "limit", o.Limit, "Maximum number of jobs to list.")
}

func (o *GetOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *GetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if err := o.OutputOptions.Validate(); err != nil {
		return err
	}

	_, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	if id != "" && (len(o.Statuses) > 0 || o.Offset != 0 || o.Limit != 0) {
		return fmt.Errorf("--status, --offset and --limit only apply when listing %s", plural(JobKind))
	}
	if o.Offset < 0 || o.Limit < 0 {
		return fmt.Errorf("--offset and --limit must not be negative")
	}
	return nil
}

func (o *GetOptions) Run(cmd *cobra.Command, args []string) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	if id != "" {
		job, err := c.GetJob(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("reading %s/%s: %w", kind, id, err)
		}
		return o.print(o.out, job)
	}

	statuses := make([]string, 0, len(o.Statuses))
	for _, s := range o.Statuses {
		statuses = append(statuses, strings.ToUpper(s))
	}
	list, err := c.ListJobs(cmd.Context(), client.ListOptions{Statuses: statuses, Offset: o.Offset, Limit: o.Limit})
	if err != nil {
		return fmt.Errorf("listing %s: %w", plural(kind), err)
	}
	return o.print(o.out, list)
}
