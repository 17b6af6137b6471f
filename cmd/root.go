// Package cmd implements the ccpctl command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"

	"github.com/content-control-plane/ccp/internal/config"
	"github.com/content-control-plane/ccp/internal/logging"
	"github.com/content-control-plane/ccp/internal/service"
)

var RootCommand = &cobra.Command{
	Use:          "ccpctl",
	Short:        "Keep a content tree in sync with its git repository",
	SilenceUsage: true,
}

// commonParams are the flags every command that opens the service accepts.
type commonParams struct {
	configFile string
	logLevel   logging.Level
}

func newCommonParams() commonParams {
	return commonParams{configFile: "config.yaml", logLevel: logging.Info}
}

func (p *commonParams) register(fs *pflag.FlagSet) {
	fs.StringVarP(&p.configFile, "config", "c", p.configFile, "configuration file")
	fs.Var(enumflag.New(&p.logLevel, "level", logging.LevelIds, enumflag.EnumCaseInsensitive), "log-level", "log level: debug, info, warn or error")
}

func (p *commonParams) logger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: p.logLevel, Output: os.Stderr})
}

// open parses the configuration and initializes the service. The caller
// closes it.
func (p *commonParams) open(ctx context.Context, log *logging.Logger) (*service.Service, error) {
	cfg, err := config.ParseFile(p.configFile)
	if err != nil {
		return nil, err
	}

	svc := service.New().WithConfig(cfg).WithLogger(log)
	if err := svc.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize service: %w", err)
	}

	return svc, nil
}

func init() {
	RootCommand.AddCommand(
		newRunCommand(),
		newEnsureCommand(),
		newUpdateCommand(),
		newLogCommand(),
		newRecordCommand(),
	)
}
