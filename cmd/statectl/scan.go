package main

import (
	"encoding/hex"
	"fmt"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func init() {
	var limit int
	scanCmd := &cobra.Command{
		Use:   "scan <namespace>",
		Short: "print the raw units of a namespace in key order",
		Long:  `print the raw units of a namespace in key order, one hex encoded key and value per line`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			env, err := openEnvironment(cmd)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, env.Close()) }()
			iter, err := env.Store().Scan(args[0], nil, nil)
			if err != nil {
				return err
			}
			defer iter.Release()
			printed := 0
			for iter.Next() {
				if limit > 0 && printed >= limit {
					break
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", hex.EncodeToString(iter.Key()), hex.EncodeToString(iter.Value()))
				printed++
			}
			return iter.Err()
		},
	}
	scanCmd.Flags().IntVarP(&limit, "limit", "n", 0, "max units to print, 0 prints all")
	Command.AddCommand(scanCmd)
}
