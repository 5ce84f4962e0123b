package cli

import (
	"fmt"
	"io"

	"github.com/kubev2v/media-analyzer/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type GlobalOptions struct {
	ConfigFilePath string
	ServerUrl      string

	out io.Writer
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: client.DefaultConfigPath(),
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path to the client configuration file")
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the server, overrides the configuration file")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	o.out = cmd.OutOrStdout()
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

func (o *GlobalOptions) Client() (*client.Client, error) {
	cfg, err := client.LoadConfig(o.ConfigFilePath)
	if err != nil {
		return nil, fmt.Errorf("reading client config: %w", err)
	}
	if o.ServerUrl != "" {
		cfg.Service.Server = o.ServerUrl
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return client.NewFromConfig(cfg), nil
}

// runOptions is implemented by every command's options.
type runOptions interface {
	Complete(cmd *cobra.Command, args []string) error
	Validate(args []string) error
	Run(cmd *cobra.Command, args []string) error
}

func runE(o runOptions) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := o.Complete(cmd, args); err != nil {
			return err
		}
		if err := o.Validate(args); err != nil {
			return err
		}
		return o.Run(cmd, args)
	}
}
