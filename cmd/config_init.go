package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NaruseNia/progest/internal/config"
)

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "config:init",
	Short: "Write a commented default config file",
	Long: `Write a commented default config file to --config, or to
~/.config/progest/config.yaml. An existing file is left alone unless --force
is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		path := cfgFile
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if path == "" {
			return fmt.Errorf("failed to locate the config directory")
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		return formatter.FormatMessage("Wrote "+path, map[string]string{"config": path})
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(configInitCmd)
}
