package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashureev/astrocare/internal/companion"
)

func newPersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List built-in personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tADDRESS\tSLEEP BANDS")
			for _, id := range companion.BuiltinPersonaIDs() {
				p, err := companion.BuiltinPersona(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t>=%dh ok, >=%dh fair\n", p.ID, p.Name, p.Address, p.Sleep.High, p.Sleep.Mid)
			}
			return w.Flush()
		},
	}
}

func newPersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Inspect persona files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a YAML persona file loads and is complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := companion.LoadPersona(args[0])
			if err != nil {
				return err
			}
			pools := 0
			for _, entries := range p.Pools {
				pools += len(entries)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s), %d pools, %d templates\n", p.ID, p.Name, len(p.Pools), pools)
			return nil
		},
	})
	return cmd
}
