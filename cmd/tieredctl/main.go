// Command tieredctl reads and seeds data through a tiered pipeline built
// from a configuration file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/tiered/config"
	"github.com/kbukum/tiered/version"
)

const appName = "tieredctl"

var rootFlags struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Read through memory, disk and redis tiers in front of a SQL store",
		Version:       version.Get().Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	f := root.PersistentFlags()
	f.StringVarP(&rootFlags.configFile, "config", "c", "", "config file (default: tieredctl.yml, config/tieredctl.yml)")
	f.StringVar(&rootFlags.envFile, "env-file", "", "dotenv file loaded before TIERED_* overrides")

	root.AddCommand(newGetCmd(), newPutCmd(), newHealthCmd(), newVersionCmd())
	return root
}

// loadConfig reads the configuration named by the persistent flags.
func loadConfig() (*Config, error) {
	var opts []config.LoaderOption
	if rootFlags.configFile != "" {
		opts = append(opts, config.WithConfigFile(rootFlags.configFile))
	}
	if rootFlags.envFile != "" {
		opts = append(opts, config.WithEnvFile(rootFlags.envFile))
	}
	cfg := &Config{}
	if err := config.Load(appName, cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
