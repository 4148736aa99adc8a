package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tacboard/pkg/phonetic"
	"tacboard/pkg/types"
)

func newPhoneticCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phonetic [n|letter|word]",
		Short: "Show the NATO label of a board slot, or all slots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for n := types.MinWordIndex; n <= types.MaxWordIndex; n++ {
					label, _ := phonetic.Label(n)
					fmt.Fprintf(out, "%2d %s\n", n, label)
				}
				return nil
			}

			n, err := phonetic.Parse(args[0])
			if err != nil {
				return err
			}
			label, err := phonetic.Label(n)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d %s\n", n, label)
			return nil
		},
	}
}
