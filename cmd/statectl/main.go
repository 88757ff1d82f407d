package main

import (
	"github.com/RuiFG/streaming/streaming-state/config"
	"github.com/RuiFG/streaming/streaming-state/state"
	"github.com/spf13/cobra"
	"os"
)

var (
	configPath string
	backend    string
	dir        string
)

var Command = &cobra.Command{
	Use:          "statectl",
	Short:        "inspect a streaming state store",
	Long:         `inspect the epoch, namespaces and units of a streaming state store directory`,
	SilenceUsage: true,
}

func init() {
	Command.PersistentFlags().StringVarP(&configPath, "config", "c", "", "yaml config file")
	Command.PersistentFlags().StringVar(&backend, "backend", "", "store backend, overrides the config")
	Command.PersistentFlags().StringVar(&dir, "dir", "", "store directory, overrides the config")
}

// openEnvironment loads the config and applies the flag overrides. The logger
// is quiet so command output stays parseable.
func openEnvironment(cmd *cobra.Command) (*state.Environment, error) {
	options, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("backend") {
		options.Store.Backend = backend
	}
	if cmd.Flags().Changed("dir") {
		options.Store.Dir = dir
	}
	options.Log.Level = "error"
	return state.Open(options)
}

func main() {
	if err := Command.Execute(); err != nil {
		os.Exit(1)
	}
}
