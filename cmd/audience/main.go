// Command audience validates customer spreadsheets and serves the upload API.
//
// Usage:
//
//	audience validate customers.csv leads.xlsx --max-rows 500
//	audience serve --config audience.yaml
//	audience config check audience.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"audience/internal/config"
	"audience/internal/logging"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "audience",
		Short:         "Validate and load customer upload files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "YAML config path (or set "+config.EnvPath+")")
	cmd.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newValidateCmd(f))
	cmd.AddCommand(newServeCmd(f))
	cmd.AddCommand(newConfigCmd(f))
	return cmd
}

// load resolves the config and builds its logger.
func (f *rootFlags) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadDefault(f.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	level := cfg.Log.Level
	if f.verbose {
		level = "debug"
	}
	log, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
