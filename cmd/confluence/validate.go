package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/confluence/internal/dsl"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [rules.yaml]",
	Short: "Validate a strategy rule document",
	Long:  "Parse a YAML or JSON strategy rule document and list the strategies it defines",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	defs, err := dsl.ParseFile(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREGIMES\tTRIGGER\tFILTERS")
	for _, d := range defs {
		regimes := make([]string, len(d.Regimes))
		for i, r := range d.Regimes {
			regimes[i] = string(r)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			d.Name,
			strings.Join(regimes, ","),
			strings.Join(d.Trigger.Groups(), ","),
			strings.Join(d.Filters.Groups(), ","),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d strategies OK\n", len(defs))
	return nil
}
