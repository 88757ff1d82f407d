package main

import (
	"fmt"
	"github.com/RuiFG/streaming/streaming-state/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func init() {
	Command.AddCommand(&cobra.Command{
		Use:   "compact",
		Short: "compact the store files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, env.Close()) }()
			compactor, ok := env.Store().(store.Compactor)
			if !ok {
				return errors.Errorf("%s store does not support compaction", env.Options().Store.Backend)
			}
			if err = compactor.Compact(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "compacted")
			return nil
		},
	})
}
