package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	api "github.com/kubev2v/media-analyzer/api/v1alpha1"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	jsonFormat  = "json"
	yamlFormat  = "yaml"
	tableFormat = "table"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat, tableFormat}
)

type OutputOptions struct {
	Output string
}

func (o *OutputOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *OutputOptions) Validate() error {
	if len(o.Output) > 0 && !funk.ContainsString(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

// print writes v in the selected format. table is the default.
func (o *OutputOptions) print(w io.Writer, v any) error {
	switch o.Output {
	case jsonFormat:
		marshalled, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", marshalled)
		return err
	case yamlFormat:
		marshalled, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s", marshalled)
		return err
	default:
		return printTable(w, v)
	}
}

func printTable(out io.Writer, v any) error {
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	switch r := v.(type) {
	case *api.Job:
		printJobsTable(w, *r)
	case *api.JobList:
		printJobsTable(w, r.Jobs...)
		fmt.Fprintf(w, "\nshowing %d of %d (offset %d)\n", len(r.Jobs), r.Total, r.Offset)
	case *api.SubmitResponse:
		fmt.Fprintln(w, "ID\tSTATUS\tFILENAME\tSIZE\tSTATUS URL")
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.JobId, r.Status, r.Filename, r.FileSize, r.StatusUrl)
	default:
		return fmt.Errorf("unknown resource type %T", v)
	}
	return w.Flush()
}

func printJobsTable(w *tabwriter.Writer, jobs ...api.Job) {
	fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tFILENAME\tCREATED\tERROR")
	for _, j := range jobs {
		errMsg := ""
		if j.Error != nil {
			errMsg = *j.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			j.JobId, j.Status, j.ChunksProcessed, j.TotalChunks, j.Filename, j.CreatedAt.Format(time.RFC3339), errMsg)
	}
}
