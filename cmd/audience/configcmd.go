package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"audience/internal/config"
)

func newConfigCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [FILE]",
		Short: "Validate a config file and print its issues",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := root.configPath
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.LoadDefault(path)
			if err != nil {
				return err
			}
			issues := config.Validate(cfg)
			w := cmd.OutOrStdout()
			for _, iss := range issues {
				fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if config.HasErrors(issues) {
				return fmt.Errorf("configuration is invalid")
			}
			fmt.Fprintln(w, "configuration is valid")
			return nil
		},
	})
	return cmd
}
