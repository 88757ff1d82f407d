package main

import (
	"fmt"
	"github.com/RuiFG/streaming/streaming-state/checkpoint"
	"github.com/RuiFG/streaming/streaming-state/codec"
	"github.com/RuiFG/streaming/streaming-state/index"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func init() {
	Command.AddCommand(&cobra.Command{
		Use:   "epoch",
		Short: "print the epoch of the last successful checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, env.Close()) }()
			epoch, _, err := index.NewValue(checkpoint.EpochNamespace, env.Store(), codec.Uint64(), env.IndexOptions()).GetCommitted()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), epoch)
			return nil
		},
	})
}
