package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maxgio92/vestigo"
)

func newProloguesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "prologues FILE",
		Short: "List the frame-establishing prologues of a firmware ELF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			prologues, err := vestigo.DetectProloguesFromELF(f)
			if err != nil {
				return err
			}
			log.WithField("count", len(prologues)).Debug("prologues detected")

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(prologues)
			}

			t := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(t, "ADDRESS\tTYPE\tWORDS\tINSTRUCTIONS\n")
			for _, p := range prologues {
				fmt.Fprintf(t, "0x%08x\t%s\t%d\t%s\n", p.Address, p.Type, p.FrameWords, p.Instructions)
			}
			return t.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
